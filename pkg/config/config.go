package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Settings holds the full runtime configuration, loaded from environment
// variables and an optional config file.
type Settings struct {
	// Hosted OpenAI-compatible endpoint.
	OpenAIAPIKey   string `mapstructure:"openai_api_key"`
	OpenAIAPIBase  string `mapstructure:"openai_api_base"`
	OpenAIAPIModel string `mapstructure:"openai_api_model"`

	// Assistant protocol. When set together with ToolForced, turns run
	// through the thread/run adapter instead of chat completions.
	AssistantID string `mapstructure:"assistant_id"`
	ToolForced  bool   `mapstructure:"tool_forced"`

	// Local OpenAI-compatible endpoint, takes precedence when set.
	OllamaBaseURL  string `mapstructure:"ollama_base_url"`
	OllamaModel    string `mapstructure:"ollama_model"`
	OllamaSubModel string `mapstructure:"ollama_sub_model"`

	// Assistant run polling.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`

	// Search providers.
	TavilyAPIKey      string `mapstructure:"tavily_api_key"`
	ExaAPIKey         string `mapstructure:"exa_api_key"`
	SearchAPIURL      string `mapstructure:"search_api_url"`
	RecommendationURL string `mapstructure:"recommendation_api_url"`
	VideoAPIURL       string `mapstructure:"video_api_url"`

	// Feature switches.
	RetrieveEnabled bool `mapstructure:"retrieve_enabled"`
	VideoEnabled    bool `mapstructure:"video_enabled"`
	ModerateTerms   bool `mapstructure:"moderate_terms"`

	// Moderation term map source. TermsURL accepts file://, s3:// and
	// mem:// URLs; RedisAddr switches to a redis hash instead.
	TermsURL  string `mapstructure:"terms_url"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key"`

	// Conversation persistence base URL, same scheme set as TermsURL.
	ChatsURL string `mapstructure:"chats_url"`
}

// setDefaults registers every key; viper only surfaces automatic env
// bindings through Unmarshal for keys it knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_api_base", "https://api.openai.com/v1")
	v.SetDefault("openai_api_model", "gpt-4o-mini")
	v.SetDefault("assistant_id", "")
	v.SetDefault("tool_forced", false)
	v.SetDefault("ollama_base_url", "")
	v.SetDefault("ollama_model", "")
	v.SetDefault("ollama_sub_model", "")
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("run_timeout", 2*time.Minute)
	v.SetDefault("tavily_api_key", "")
	v.SetDefault("exa_api_key", "")
	v.SetDefault("search_api_url", "")
	v.SetDefault("recommendation_api_url", "")
	v.SetDefault("video_api_url", "")
	v.SetDefault("retrieve_enabled", false)
	v.SetDefault("video_enabled", false)
	v.SetDefault("moderate_terms", false)
	v.SetDefault("terms_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_key", "moderation:terms")
	v.SetDefault("chats_url", "file://./chats")
}

// bindLegacyEnv accepts the unprefixed env names the keys were known by
// before the MORPHIC_ prefix. The prefixed name is listed first so it wins
// when both are set.
func bindLegacyEnv(v *viper.Viper) {
	legacy := map[string]string{
		"openai_api_key":   "OPENAI_API_KEY",
		"openai_api_base":  "OPENAI_API_BASE",
		"openai_api_model": "OPENAI_API_MODEL",
		"assistant_id":     "ASSISTANT_ID",
		"ollama_base_url":  "OLLAMA_BASE_URL",
		"ollama_model":     "OLLAMA_MODEL",
		"ollama_sub_model": "OLLAMA_SUB_MODEL",
		"tavily_api_key":   "TAVILY_API_KEY",
		"exa_api_key":      "EXA_API_KEY",
	}
	for key, name := range legacy {
		_ = v.BindEnv(key, "MORPHIC_"+name, name)
	}
}

// Load reads settings from the environment (MORPHIC_ prefix, with the
// unprefixed legacy names as fallback) and, when configFile is non-empty,
// from that file.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("morphic")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "unmarshal settings")
	}
	return s, nil
}

// Validate checks that at least one model backend is reachable from the
// settings.
func (s *Settings) Validate() error {
	if s.OllamaBaseURL == "" && s.OpenAIAPIKey == "" {
		return errors.New("no model backend configured: set MORPHIC_OLLAMA_BASE_URL or MORPHIC_OPENAI_API_KEY")
	}
	if s.ToolForced && s.AssistantID == "" && s.OllamaBaseURL == "" {
		return errors.New("tool_forced requires assistant_id or a local endpoint")
	}
	return nil
}

// UseLocal reports whether turns should run against the local endpoint.
func (s *Settings) UseLocal() bool {
	return s.OllamaBaseURL != ""
}

// UseAssistant reports whether turns should run through the assistant
// thread/run protocol.
func (s *Settings) UseAssistant() bool {
	return s.ToolForced && s.AssistantID != "" && !s.UseLocal()
}
