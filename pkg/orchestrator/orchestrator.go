package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kaledar/morphic/pkg/agents"
	"github.com/kaledar/morphic/pkg/chat"
	"github.com/kaledar/morphic/pkg/events"
	"github.com/kaledar/morphic/pkg/model"
	"github.com/kaledar/morphic/pkg/moderation"
	"github.com/kaledar/morphic/pkg/tools"
)

// Window sizes per mode. The tool-forced protocol keeps its own remote
// history, the constrained local mode cannot handle long prompts, everything
// else gets the default.
const (
	windowToolForced  = 5
	windowConstrained = 1
	windowDefault     = 10
)

// Config selects the orchestration mode for one conversation.
type Config struct {
	ToolForced       bool
	ConstrainedLocal bool
	Moderate         bool
	VideoEnabled     bool
	UserID           string
}

// Deps carries the collaborators for one conversation.
type Deps struct {
	Model     model.Model
	SubModel  model.Model
	Registry  *tools.Registry
	Sink      events.EventSink
	State     *chat.State
	Store     chat.Store
	Moderator *moderation.Moderator
	Video     *tools.VideoClient
}

// Orchestrator runs complete turns over one conversation: gate, research,
// answer, suggestions, persistence.
type Orchestrator struct {
	deps Deps
	cfg  Config

	taskManager *agents.TaskManager
	inquirer    *agents.Inquirer
	researcher  *agents.Researcher
	suggestor   *agents.Suggestor
	writer      *agents.Writer
}

func New(deps Deps, cfg Config) *Orchestrator {
	var terms agents.TermProvider
	if deps.Moderator != nil {
		terms = deps.Moderator
	}
	return &Orchestrator{
		deps:        deps,
		cfg:         cfg,
		taskManager: agents.NewTaskManager(deps.SubModel, terms),
		inquirer:    agents.NewInquirer(deps.Model, deps.Sink),
		researcher:  agents.NewResearcher(deps.Model, deps.Registry, deps.Sink, cfg.ToolForced),
		suggestor:   agents.NewSuggestor(deps.SubModel, deps.Sink, cfg.ToolForced),
		writer:      agents.NewWriter(deps.SubModel, deps.Sink),
	}
}

func (o *Orchestrator) windowSize() int {
	switch {
	case o.cfg.ToolForced:
		return windowToolForced
	case o.cfg.ConstrainedLocal:
		return windowConstrained
	default:
		return windowDefault
	}
}

// Submit runs one turn for the given user input content (plain text or the
// UI form JSON). The returned error reflects the turn outcome; events carry
// the incremental updates either way.
func (o *Orchestrator) Submit(ctx context.Context, content string) error {
	meta := events.EventMetadata{
		ID:     uuid.New(),
		ChatID: o.deps.State.ChatID(),
		TurnID: uuid.NewString(),
	}
	_ = o.deps.Sink.PublishEvent(events.NewStartEvent(meta))

	input := chat.ParseUserInput(content)
	skip := input.Action == "skip"

	if o.cfg.Moderate && o.deps.Moderator != nil {
		content = o.deps.Moderator.ModerateOrPass(ctx, content)
	}

	msgType := chat.TypeInput
	if input.RelatedQuery != "" {
		msgType = chat.TypeInputRelated
	}
	if err := o.deps.State.Append(chat.NewMessage(chat.RoleUser, content, msgType)); err != nil {
		return o.fail(meta, err)
	}

	window := o.deps.State.ModelWindow(o.windowSize())

	if !skip {
		if action := o.taskManager.Decide(ctx, window); action != nil && action.Next == agents.NextInquire {
			return o.inquire(ctx, meta, window)
		}
	}

	return o.research(ctx, meta, window)
}

func (o *Orchestrator) inquire(ctx context.Context, meta events.EventMetadata, window []chat.Message) error {
	inquiry, err := o.inquirer.Inquire(ctx, meta, window)
	if err != nil {
		return o.fail(meta, errors.Wrap(err, "inquiry generation"))
	}
	content, err := json.Marshal(inquiry)
	if err != nil {
		return o.fail(meta, errors.Wrap(err, "encode inquiry"))
	}
	if err := o.deps.State.Append(chat.NewMessage(chat.RoleAssistant, string(content), chat.TypeInquiry)); err != nil {
		return o.fail(meta, err)
	}
	_ = o.deps.Sink.PublishEvent(events.NewFinalEvent(meta, inquiry.Question))
	log.Debug().Str("chat_id", meta.ChatID).Msg("turn ended with inquiry")
	return nil
}

func (o *Orchestrator) research(ctx context.Context, meta events.EventMetadata, window []chat.Message) error {
	outcome := o.researcher.Run(ctx, meta, window)

	// tool messages are recorded even when the turn errors afterwards
	if len(outcome.ToolMessages) > 0 {
		if err := o.deps.State.Append(outcome.ToolMessages...); err != nil {
			return o.fail(meta, err)
		}
	}
	if outcome.Errored {
		return o.fail(meta, outcome.Err)
	}

	text := outcome.Text
	if text == "" && len(outcome.ToolMessages) > 0 && o.cfg.ToolForced {
		written, err := o.writer.Write(ctx, meta, append(window, outcome.ToolMessages...))
		if err != nil {
			return o.fail(meta, errors.Wrap(err, "writer fallback"))
		}
		text = written
	}
	if text == "" {
		return o.fail(meta, errors.New("turn produced no answer"))
	}

	if err := o.deps.State.Append(chat.NewMessage(chat.RoleAssistant, text, chat.TypeAnswer)); err != nil {
		return o.fail(meta, err)
	}
	_ = o.deps.Sink.PublishEvent(events.NewFinalEvent(meta, text))

	o.attachVideos(ctx, meta)
	o.suggest(ctx, meta)

	if err := o.persist(ctx); err != nil {
		log.Warn().Err(err).Str("chat_id", meta.ChatID).Msg("failed to persist conversation")
	}
	return nil
}

func (o *Orchestrator) attachVideos(ctx context.Context, meta events.EventMetadata) {
	if !o.cfg.VideoEnabled || o.deps.Video == nil {
		return
	}
	query := o.deps.State.UserQuery()
	results, err := o.deps.Video.Search(ctx, query)
	if err != nil {
		log.Warn().Err(err).Msg("video lookup failed")
		return
	}
	_ = o.deps.Sink.PublishEvent(events.NewVideoResultsEvent(meta, query, results.Results))
}

func (o *Orchestrator) suggest(ctx context.Context, meta events.EventMetadata) {
	window := o.deps.State.ModelWindow(o.windowSize())
	related, err := o.suggestor.Suggest(ctx, meta, window)
	if err != nil {
		log.Warn().Err(err).Msg("suggestion generation failed")
		return
	}
	content, err := json.Marshal(related)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode related queries")
		return
	}
	if err := o.deps.State.Append(
		chat.NewMessage(chat.RoleAssistant, string(content), chat.TypeRelated),
		chat.NewMessage(chat.RoleAssistant, "", chat.TypeFollowup),
	); err != nil {
		log.Warn().Err(err).Msg("failed to record related queries")
	}
}

// persist saves the conversation once it holds an answer. The end marker
// goes on the saved copy only; the live conversation stays open for
// follow-up turns.
func (o *Orchestrator) persist(ctx context.Context) error {
	if o.deps.Store == nil || !o.deps.State.HasAnswer() {
		return nil
	}
	chatID := o.deps.State.ChatID()
	messages := append(o.deps.State.Messages(),
		chat.NewMessage(chat.RoleAssistant, "", chat.TypeEnd))
	record := &chat.Record{
		ID:        chatID,
		CreatedAt: time.Now(),
		UserID:    o.cfg.UserID,
		Path:      "/search/" + chatID,
		Title:     o.deps.State.Title(),
		Messages:  messages,
	}
	return o.deps.Store.Save(ctx, record)
}

func (o *Orchestrator) fail(meta events.EventMetadata, err error) error {
	if err == nil {
		err = errors.New("turn failed")
	}
	log.Error().Err(err).Str("chat_id", meta.ChatID).Msg("turn errored")
	_ = o.deps.Sink.PublishEvent(events.NewErrorEvent(meta, err))
	return err
}
