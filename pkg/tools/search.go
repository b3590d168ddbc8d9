package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SearchSource routes a search to one of the configured providers. It is
// threaded explicitly from the caller; there is no process-wide default.
type SearchSource string

const (
	// SourceGeneral is the general web search provider (POST JSON).
	SourceGeneral SearchSource = "general"
	// SourceSemantic is the semantic / neural search provider.
	SourceSemantic SearchSource = "semantic"
	// SourceRecommendation is the curated recommendation API (GET with a
	// {query} template).
	SourceRecommendation SearchSource = "recommendation"
)

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type SearchResults struct {
	Query           string         `json:"query"`
	Results         []SearchResult `json:"results"`
	Images          []string       `json:"images,omitempty"`
	NumberOfResults int            `json:"number_of_results"`
}

type SearchArgs struct {
	Query          string   `json:"query" jsonschema:"description=The query to search for"`
	MaxResults     int      `json:"max_results,omitempty" jsonschema:"description=Maximum number of results to return"`
	SearchDepth    string   `json:"search_depth,omitempty" jsonschema:"enum=basic,enum=advanced,description=Depth of the search"`
	IncludeDomains []string `json:"include_domains,omitempty" jsonschema:"description=Only include results from these domains"`
	ExcludeDomains []string `json:"exclude_domains,omitempty" jsonschema:"description=Exclude results from these domains"`
}

// SearchConfig carries provider endpoints and credentials.
type SearchConfig struct {
	Source SearchSource

	GeneralAPIKey string
	GeneralURL    string

	SemanticAPIKey string
	SemanticURL    string

	// RecommendationURL contains a literal {query} placeholder.
	RecommendationURL string

	Client *http.Client
}

func (c SearchConfig) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

// padQuery pads short queries to the provider minimum of 5 characters.
func padQuery(q string) string {
	if len(q) >= 5 {
		return q
	}
	return q + strings.Repeat(" ", 5-len(q))
}

// floorMaxResults enforces the provider minimum of 5 results.
func floorMaxResults(n int) int {
	if n < 5 {
		return 5
	}
	return n
}

// withNewsTag appends the news domain tag unless already present, deduping
// the list.
func withNewsTag(domains []string) []string {
	seen := make(map[string]struct{}, len(domains)+1)
	out := make([]string, 0, len(domains)+1)
	for _, d := range append(domains, "news") {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

func postJSON(ctx context.Context, client *http.Client, target string, headers map[string]string, body interface{}) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "execute request")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("search provider returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func generalSearch(ctx context.Context, cfg SearchConfig, args SearchArgs) (*SearchResults, error) {
	depth := args.SearchDepth
	if depth != "basic" && depth != "advanced" {
		depth = "basic"
	}
	target := cfg.GeneralURL
	if target == "" {
		target = "https://api.tavily.com/search"
	}
	body := map[string]interface{}{
		"api_key":         cfg.GeneralAPIKey,
		"query":           padQuery(args.Query),
		"max_results":     floorMaxResults(args.MaxResults),
		"search_depth":    depth,
		"include_images":  true,
		"include_answers": true,
		"include_domains": withNewsTag(args.IncludeDomains),
		"exclude_domains": args.ExcludeDomains,
	}

	raw, err := postJSON(ctx, cfg.httpClient(), target, nil, body)
	if err != nil {
		return nil, err
	}
	var out SearchResults
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode general search response")
	}
	out.Query = args.Query
	out.NumberOfResults = len(out.Results)
	return &out, nil
}

type semanticResponse struct {
	Results []struct {
		Title      string   `json:"title"`
		URL        string   `json:"url"`
		Text       string   `json:"text"`
		Highlights []string `json:"highlights"`
	} `json:"results"`
}

func semanticSearch(ctx context.Context, cfg SearchConfig, args SearchArgs) (*SearchResults, error) {
	target := cfg.SemanticURL
	if target == "" {
		target = "https://api.exa.ai/search"
	}
	body := map[string]interface{}{
		"query":      args.Query,
		"numResults": floorMaxResults(args.MaxResults),
		"contents": map[string]interface{}{
			"text":       true,
			"highlights": true,
		},
	}
	if len(args.IncludeDomains) > 0 {
		body["includeDomains"] = args.IncludeDomains
	}
	if len(args.ExcludeDomains) > 0 {
		body["excludeDomains"] = args.ExcludeDomains
	}

	raw, err := postJSON(ctx, cfg.httpClient(), target,
		map[string]string{"x-api-key": cfg.SemanticAPIKey}, body)
	if err != nil {
		return nil, err
	}
	var decoded semanticResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, "decode semantic search response")
	}

	out := &SearchResults{Query: args.Query}
	for _, r := range decoded.Results {
		content := r.Text
		if content == "" {
			content = strings.Join(r.Highlights, " ")
		}
		out.Results = append(out.Results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: content,
		})
	}
	out.NumberOfResults = len(out.Results)
	return out, nil
}

func recommendationSearch(ctx context.Context, cfg SearchConfig, args SearchArgs) (*SearchResults, error) {
	if cfg.RecommendationURL == "" {
		return nil, errors.New("recommendation URL not configured")
	}
	target := strings.ReplaceAll(cfg.RecommendationURL, "{query}", url.QueryEscape(args.Query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build recommendation request")
	}
	resp, err := cfg.httpClient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "execute recommendation request")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("recommendation API returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read recommendation response")
	}

	out := &SearchResults{Query: args.Query}
	if err := json.Unmarshal(raw, out); err != nil {
		// some deployments return a bare result list
		var results []SearchResult
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, errors.Wrap(err, "decode recommendation response")
		}
		out.Results = results
	}
	out.Query = args.Query
	out.NumberOfResults = len(out.Results)
	return out, nil
}

// Search runs one search against the provider selected by cfg.Source.
func Search(ctx context.Context, cfg SearchConfig, args SearchArgs) (*SearchResults, error) {
	log.Debug().Str("source", string(cfg.Source)).Str("query", args.Query).Msg("running search")
	switch cfg.Source {
	case SourceSemantic:
		return semanticSearch(ctx, cfg, args)
	case SourceRecommendation:
		return recommendationSearch(ctx, cfg, args)
	case SourceGeneral, "":
		return generalSearch(ctx, cfg, args)
	default:
		return nil, errors.Errorf("unknown search source %q", cfg.Source)
	}
}

// NewSearchTool builds the search tool definition bound to one provider
// configuration.
func NewSearchTool(cfg SearchConfig) Definition {
	return Definition{
		Name:        "search",
		Description: "Search the web for information",
		Parameters:  ReflectSchema(&SearchArgs{}),
		Execute: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args SearchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, errors.Wrap(err, "decode search arguments")
			}
			return Search(ctx, cfg, args)
		},
	}
}
