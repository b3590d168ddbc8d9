package moderation

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Moderator rewrites sensitive terms in user text. Terms are re-fetched on
// every call so source updates take effect without restarts.
type Moderator struct {
	source TermSource
}

func NewModerator(source TermSource) *Moderator {
	return &Moderator{source: source}
}

// Terms returns the current term map.
func (m *Moderator) Terms(ctx context.Context) (map[string]string, error) {
	return m.source.Fetch(ctx)
}

// TermsPrompt renders the term map for injection into a system prompt,
// sorted for stable output.
func (m *Moderator) TermsPrompt(ctx context.Context) (string, error) {
	terms, err := m.source.Fetch(ctx)
	if err != nil {
		return "", err
	}
	if len(terms) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(terms))
	for k := range terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(`- "` + k + `" must be referred to as "` + terms[k] + "\"\n")
	}
	return sb.String(), nil
}

// Moderate replaces every term in text with its configured substitute,
// matching whole words case-insensitively, then normalizes whitespace.
func (m *Moderator) Moderate(ctx context.Context, text string) (string, error) {
	terms, err := m.source.Fetch(ctx)
	if err != nil {
		return text, errors.Wrap(err, "fetch moderation terms")
	}
	return ReplaceTerms(text, terms), nil
}

// ModerateOrPass is the fail-open form: on source failure the original text
// goes through unchanged.
func (m *Moderator) ModerateOrPass(ctx context.Context, text string) string {
	out, err := m.Moderate(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("moderation unavailable, passing text through")
		return text
	}
	return out
}

// ReplaceTerms applies the term map to text. Longer terms match first so a
// term that contains another is not partially rewritten.
func ReplaceTerms(text string, terms map[string]string) string {
	if len(terms) == 0 {
		return normalize(text)
	}

	keys := make([]string, 0, len(terms))
	lookup := make(map[string]string, len(terms))
	for k, v := range terms {
		keys = append(keys, regexp.QuoteMeta(k))
		lookup[strings.ToLower(k)] = v
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	re, err := regexp.Compile(`(?i)\b(` + strings.Join(keys, "|") + `)\b`)
	if err != nil {
		log.Warn().Err(err).Msg("failed to compile term pattern")
		return normalize(text)
	}

	replaced := re.ReplaceAllStringFunc(text, func(match string) string {
		if sub, ok := lookup[strings.ToLower(match)]; ok {
			return sub
		}
		return match
	})
	return normalize(replaced)
}

func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
