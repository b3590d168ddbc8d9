package agents

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/kaledar/morphic/pkg/chat"
	"github.com/kaledar/morphic/pkg/model"
	"github.com/kaledar/morphic/pkg/tools"
)

// TaskManager runs the proceed/inquire gate over the current window.
type TaskManager struct {
	model model.Model
	terms TermProvider
}

// TermProvider supplies the current sensitive-term instructions for prompt
// injection. May be nil.
type TermProvider interface {
	TermsPrompt(ctx context.Context) (string, error)
}

func NewTaskManager(m model.Model, terms TermProvider) *TaskManager {
	return &TaskManager{model: m, terms: terms}
}

// Decide returns the gate decision, or nil when the decision could not be
// made. Callers treat nil as proceed; the gate never blocks a turn.
func (tm *TaskManager) Decide(ctx context.Context, messages []chat.Message) *NextAction {
	prompt := taskManagerPrompt
	if tm.terms != nil {
		terms, err := tm.terms.TermsPrompt(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("term source unavailable for gate prompt")
		} else {
			prompt = withTerms(prompt, terms)
		}
	}

	resp, err := tm.model.Generate(ctx, model.Request{
		System:   prompt,
		Messages: messages,
		Output: &model.OutputSchema{
			Name:   "next_action",
			Schema: tools.ReflectSchema(&NextAction{}),
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("task manager decision failed, falling through to proceed")
		return nil
	}

	action := &NextAction{}
	if err := json.Unmarshal([]byte(resp.Text), action); err != nil {
		log.Warn().Err(err).Str("text", resp.Text).Msg("task manager returned malformed decision")
		return nil
	}
	if action.Next != NextProceed && action.Next != NextInquire {
		log.Warn().Str("next", action.Next).Msg("task manager returned unknown decision")
		return nil
	}
	return action
}
