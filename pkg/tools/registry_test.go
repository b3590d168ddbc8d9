package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Text string `json:"text" jsonschema:"description=Text to echo"`
}

func echoTool() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echo the input",
		Parameters:  ReflectSchema(&echoArgs{}),
		Execute: func(_ context.Context, raw json.RawMessage) (interface{}, error) {
			var args echoArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, err
			}
			return map[string]string{"text": args.Text}, nil
		},
	}
}

func TestRegistryRegisterAndList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool()))
	require.NoError(t, r.Register(Definition{
		Name:    "noop",
		Execute: func(context.Context, json.RawMessage) (interface{}, error) { return nil, nil },
	}))

	assert.Equal(t, 2, r.Count())
	assert.True(t, r.Has("echo"))
	assert.False(t, r.Has("missing"))

	defs := r.List()
	require.Len(t, defs, 2)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "noop", defs[1].Name)

	toolDefs := r.ToolDefs()
	require.Len(t, toolDefs, 2)
	assert.Equal(t, "echo", toolDefs[0].Name)
	assert.NotNil(t, toolDefs[0].Parameters)
}

func TestRegistryRejectsInvalid(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(Definition{Name: ""}))
	require.Error(t, r.Register(Definition{Name: "no-exec"}))
}

func TestExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool()))

	res := r.Execute(context.Background(), Invocation{
		ID:   "call_1",
		Name: "echo",
		Args: json.RawMessage(`{"text":"hi"}`),
	})
	assert.False(t, res.Errored)
	assert.JSONEq(t, `{"text":"hi"}`, string(res.Data))
	assert.JSONEq(t, `{"text":"hi"}`, string(res.Payload()))
}

func TestExecuteDegradesFailures(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool()))
	require.NoError(t, r.Register(Definition{
		Name: "boom",
		Execute: func(context.Context, json.RawMessage) (interface{}, error) {
			return nil, errors.New("provider down")
		},
	}))

	// unknown tool
	res := r.Execute(context.Background(), Invocation{ID: "c1", Name: "missing"})
	assert.True(t, res.Errored)

	// schema violation: text must be a string
	res = r.Execute(context.Background(), Invocation{
		ID: "c2", Name: "echo", Args: json.RawMessage(`{"text":42}`),
	})
	assert.True(t, res.Errored)
	assert.Contains(t, res.Error, "invalid arguments")

	// executor failure
	res = r.Execute(context.Background(), Invocation{ID: "c3", Name: "boom"})
	assert.True(t, res.Errored)
	assert.Equal(t, "provider down", res.Error)
	assert.JSONEq(t, `{"error":"provider down"}`, string(res.Payload()))
}
