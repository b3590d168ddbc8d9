package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/kaledar/morphic/pkg/model"
)

// Invocation is one tool call requested by a model.
type Invocation struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Result is the outcome of executing an invocation. Failures degrade into a
// result with Errored set; execution never returns an error to the caller,
// the model sees the failure text instead.
type Result struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data,omitempty"`
	Errored bool            `json:"errored,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Payload returns the JSON handed back to the model.
func (r Result) Payload() json.RawMessage {
	if r.Errored {
		b, _ := json.Marshal(map[string]interface{}{"error": r.Error})
		return b
	}
	return r.Data
}

// Registry holds the registered tools. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.Name == "" {
		return errors.New("tool name cannot be empty")
	}
	if def.Execute == nil {
		return errors.Errorf("tool %s has no executor", def.Name)
	}
	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.tools[name]
	if !exists {
		return nil, errors.Errorf("tool not found: %s", name)
	}
	return &def, nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name])
	}
	return defs
}

// ToolDefs returns the model-facing declarations in registration order.
func (r *Registry) ToolDefs() []model.ToolDef {
	defs := r.List()
	out := make([]model.ToolDef, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.ToolDef())
	}
	return out
}

func validateArgs(def *Definition, args json.RawMessage) error {
	if def.Parameters == nil {
		return nil
	}
	schemaJSON, err := json.Marshal(def.Parameters)
	if err != nil {
		return errors.Wrap(err, "marshal parameter schema")
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(args))
	if err != nil {
		return errors.Wrap(err, "validate arguments")
	}
	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			descs = append(descs, re.String())
		}
		return errors.Errorf("invalid arguments: %s", strings.Join(descs, "; "))
	}
	return nil
}

func errored(inv Invocation, err error) Result {
	log.Warn().Str("tool", inv.Name).Err(err).Msg("tool execution degraded to error result")
	return Result{ID: inv.ID, Name: inv.Name, Errored: true, Error: err.Error()}
}

// Execute validates and runs one invocation. An unknown tool, invalid
// arguments or an executor failure all come back as an errored result.
func (r *Registry) Execute(ctx context.Context, inv Invocation) Result {
	def, err := r.Get(inv.Name)
	if err != nil {
		return errored(inv, err)
	}
	if err := validateArgs(def, inv.Args); err != nil {
		return errored(inv, err)
	}

	log.Debug().Str("tool", inv.Name).RawJSON("args", normalizedArgs(inv.Args)).Msg("executing tool")
	out, err := def.Execute(ctx, inv.Args)
	if err != nil {
		return errored(inv, err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return errored(inv, errors.Wrap(err, "marshal tool result"))
	}
	return Result{ID: inv.ID, Name: inv.Name, Data: data}
}

func normalizedArgs(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage(`{}`)
	}
	return args
}
