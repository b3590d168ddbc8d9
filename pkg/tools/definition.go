package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/kaledar/morphic/pkg/model"
)

// Executor runs a tool against validated raw JSON arguments.
type Executor func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Definition describes a callable tool. Parameters is the JSON schema the
// arguments are validated against before Execute runs.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
	Execute     Executor           `json:"-"`
}

// ToolDef converts the definition into the shape handed to models.
func (d Definition) ToolDef() model.ToolDef {
	return model.ToolDef{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Parameters,
	}
}

// ReflectSchema builds an inlined JSON schema from an argument struct.
func ReflectSchema(v interface{}) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(v)
}
