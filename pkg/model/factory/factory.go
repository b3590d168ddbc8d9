package factory

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/kaledar/morphic/pkg/config"
	"github.com/kaledar/morphic/pkg/model"
	"github.com/kaledar/morphic/pkg/model/assistant"
	"github.com/kaledar/morphic/pkg/model/chatmodel"
)

func assistantClient(s *config.Settings) *openai.Client {
	cfg := openai.DefaultConfig(s.OpenAIAPIKey)
	if s.OpenAIAPIBase != "" {
		cfg.BaseURL = s.OpenAIAPIBase
	}
	cfg.AssistantVersion = "v2"
	return openai.NewClientWithConfig(cfg)
}

// NewModel selects the model backend for a conversation. Precedence: local
// endpoint, then the assistant protocol when tool-forced with an assistant
// configured, then the hosted chat endpoint. One call per conversation; the
// assistant adapter is stateful and owns its thread.
func NewModel(s *config.Settings) (model.Model, error) {
	switch {
	case s.UseLocal():
		if s.OllamaModel == "" {
			return nil, errors.New("local endpoint configured without a model name")
		}
		log.Debug().Str("base_url", s.OllamaBaseURL).Str("model", s.OllamaModel).
			Msg("selecting local model")
		return chatmodel.New("ollama", s.OllamaBaseURL, s.OllamaModel, "ollama"), nil

	case s.UseAssistant():
		log.Debug().Str("assistant_id", s.AssistantID).Msg("selecting assistant model")
		return assistant.New(assistantClient(s), s.AssistantID,
			assistant.WithPollInterval(s.PollInterval),
			assistant.WithRunTimeout(s.RunTimeout)), nil

	case s.OpenAIAPIKey != "":
		log.Debug().Str("model", s.OpenAIAPIModel).Msg("selecting hosted chat model")
		return chatmodel.New(s.OpenAIAPIKey, s.OpenAIAPIBase, s.OpenAIAPIModel, "openai"), nil

	default:
		return nil, errors.New("no model backend configured")
	}
}

// NewSubModel returns the lighter model used for auxiliary generations, the
// task-manager gate, suggestions and the writer fallback. Falls back to the
// main chat backend when no sub-model is configured.
func NewSubModel(s *config.Settings) (model.Model, error) {
	if s.UseLocal() && s.OllamaSubModel != "" {
		return chatmodel.New("ollama", s.OllamaBaseURL, s.OllamaSubModel, "ollama"), nil
	}
	if s.UseLocal() {
		return chatmodel.New("ollama", s.OllamaBaseURL, s.OllamaModel, "ollama"), nil
	}
	if s.OpenAIAPIKey != "" {
		return chatmodel.New(s.OpenAIAPIKey, s.OpenAIAPIBase, s.OpenAIAPIModel, "openai"), nil
	}
	return nil, errors.New("no model backend configured")
}
