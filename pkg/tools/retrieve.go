package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

const maxRetrieveRunes = 10000

type RetrieveArgs struct {
	URL string `json:"url" jsonschema:"description=The URL of the page to retrieve"`
}

type RetrieveResults struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// extractText pulls the readable text out of an HTML document, dropping
// script and style content and collapsing whitespace.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, iframe").Remove()
	text := doc.Find("body").Text()
	return strings.Join(strings.Fields(text), " ")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Retrieve fetches a page and extracts its readable text.
func Retrieve(ctx context.Context, client *http.Client, target string) (*RetrieveResults, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build retrieve request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch page")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "parse page")
	}

	return &RetrieveResults{
		URL:     target,
		Title:   strings.TrimSpace(doc.Find("title").First().Text()),
		Content: truncateRunes(extractText(doc), maxRetrieveRunes),
	}, nil
}

// NewRetrieveTool builds the page retrieval tool. Registered only when
// enabled in the settings.
func NewRetrieveTool(client *http.Client) Definition {
	return Definition{
		Name:        "retrieve",
		Description: "Retrieve the readable content of a web page",
		Parameters:  ReflectSchema(&RetrieveArgs{}),
		Execute: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args RetrieveArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, errors.Wrap(err, "decode retrieve arguments")
			}
			if args.URL == "" {
				return nil, errors.New("url is required")
			}
			return Retrieve(ctx, client, args.URL)
		},
	}
}
