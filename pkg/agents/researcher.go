package agents

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/kaledar/morphic/pkg/chat"
	"github.com/kaledar/morphic/pkg/events"
	"github.com/kaledar/morphic/pkg/model"
	"github.com/kaledar/morphic/pkg/tools"
)

// maxResearchRounds bounds the tool loop; a round is one model stream plus
// the execution of the tool calls it requested.
const maxResearchRounds = 5

// Outcome is what a research run produced. ToolMessages are recorded in the
// conversation whether or not the run reached an answer.
type Outcome struct {
	Text         string
	ToolMessages []chat.Message
	Errored      bool
	Err          error
}

// Answered reports whether the run produced answer text.
func (o *Outcome) Answered() bool {
	return !o.Errored && o.Text != ""
}

// Researcher drives the tool-augmented answer loop. In tool-forced mode the
// first round must call a tool and the loop ends as soon as text arrives.
type Researcher struct {
	model      model.Model
	registry   *tools.Registry
	sink       events.EventSink
	toolForced bool
}

func NewResearcher(m model.Model, registry *tools.Registry, sink events.EventSink, toolForced bool) *Researcher {
	return &Researcher{model: m, registry: registry, sink: sink, toolForced: toolForced}
}

func (r *Researcher) Run(ctx context.Context, meta events.EventMetadata, messages []chat.Message) *Outcome {
	outcome := &Outcome{}
	var pending *model.ToolResult
	window := messages

	for round := 0; round < maxResearchRounds; round++ {
		req := model.Request{
			System:      r.systemPrompt(),
			Messages:    window,
			Tools:       r.registry.ToolDefs(),
			RequireTool: r.toolForced && pending == nil,
			ToolResult:  pending,
		}
		pending = nil

		parts, err := r.model.Stream(ctx, req)
		if err != nil {
			outcome.Errored = true
			outcome.Err = err
			return outcome
		}

		var calls []model.ToolCall
		finish := model.FinishReasonOther
		for part := range parts {
			switch part.Type {
			case model.PartTypeTextDelta:
				outcome.Text += part.TextDelta
				collapsed := len(outcome.ToolMessages) > 0
				_ = r.sink.PublishEvent(events.NewPartialEvent(meta, part.TextDelta, outcome.Text, collapsed))
			case model.PartTypeToolCall:
				calls = append(calls, model.ToolCall{
					ID:    part.ToolCallID,
					Name:  part.ToolName,
					Input: part.Input,
				})
				_ = r.sink.PublishEvent(events.NewToolCallEvent(meta, events.ToolCall{
					ID:    part.ToolCallID,
					Name:  part.ToolName,
					Input: string(part.Input),
				}))
			case model.PartTypeFinish:
				finish = part.FinishReason
			case model.PartTypeError:
				outcome.Errored = true
				outcome.Err = part.Err
				return outcome
			}
		}

		// tool calls run sequentially once the stream has drained
		for _, call := range calls {
			result := r.registry.Execute(ctx, tools.Invocation{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Input,
			})
			_ = r.sink.PublishEvent(events.NewToolResultEvent(meta, events.ToolResult{
				ID:      result.ID,
				Name:    result.Name,
				Result:  string(result.Payload()),
				Errored: result.Errored,
			}))

			toolMsg, err := chat.NewToolMessage(result.Name, result.ID, result.Payload())
			if err != nil {
				outcome.Errored = true
				outcome.Err = err
				return outcome
			}
			outcome.ToolMessages = append(outcome.ToolMessages, toolMsg)
			pending = &model.ToolResult{
				CallID: result.ID,
				Name:   result.Name,
				Args:   call.Input,
				Result: result.Payload(),
			}
		}

		if r.toolForced && outcome.Text != "" {
			return outcome
		}
		if len(calls) == 0 {
			if finish != model.FinishReasonStop && outcome.Text == "" {
				log.Debug().Str("finish", string(finish)).Msg("research round ended without text or tool calls")
			}
			return outcome
		}
	}

	log.Warn().Int("rounds", maxResearchRounds).Msg("research loop hit round bound")
	return outcome
}

func (r *Researcher) systemPrompt() string {
	if r.toolForced {
		return toolForcedResearcherPrompt
	}
	return researcherPrompt
}
