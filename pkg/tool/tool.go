// Package tool defines the typed, versioned tool catalogue of spec.md
// §4.5. Each tool declares a jsonschema-shaped argument schema
// (github.com/invopop/jsonschema, a direct dependency of
// kadirpekel/hector used there for the same purpose) and is validated
// and decoded via github.com/mitchellh/mapstructure before dispatch, so
// "a tool that accepts unknown keys" (spec.md §9) is a schema rejection,
// not a silent pass-through.
package tool

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/clenoble/sovereign/pkg/registry"
	"github.com/clenoble/sovereign/pkg/types"
)

// Definition is the metadata the agent loop and prompt formatter need to
// advertise a tool to the model and validate its calls.
type Definition struct {
	Name        string
	Description string
	Level       types.ActionLevel
	Plane       types.Plane
	Provenance  types.Provenance
	Schema      *jsonschema.Schema
	Args        any // zero value of the struct mapstructure decodes into
}

// Tool is one registered, invocable capability.
type Tool interface {
	Definition() Definition
	Invoke(ctx context.Context, args map[string]any) (types.ToolResult, error)
}

// Registry is the statically registered tool catalogue.
type Registry struct {
	base *registry.BaseRegistry[Tool]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Tool]()}
}

// Register adds a tool under its own declared name.
func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool: definition missing name")
	}
	return r.base.Register(def.Name, t)
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	return r.base.Get(name)
}

// Definitions returns every registered tool's Definition, in
// name-sorted order, suitable for rendering into the prompt's tool
// catalogue.
func (r *Registry) Definitions() []Definition {
	tools := r.base.List()
	out := make([]Definition, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Definition())
	}
	return out
}

// ValidateArgs decodes raw into the tool's declared Args struct via
// mapstructure with ErrorUnused set, so unknown keys are a validation
// failure rather than being silently dropped.
func ValidateArgs(def Definition, raw map[string]any) error {
	if def.Args == nil {
		return nil
	}
	decoderConfig := &mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      def.Args,
	}
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("tool %s: build decoder: %w", def.Name, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("tool %s: invalid arguments: %w", def.Name, err)
	}
	return nil
}

// Dispatch looks up name, validates args against its schema, and invokes
// it. This is the only call site the Tool Registry exposes for
// execution; the Action Gate decides *whether* to reach it, never this
// package.
func (r *Registry) Dispatch(ctx context.Context, call types.ToolCall) (types.ToolResult, error) {
	t, ok := r.Get(call.Name)
	if !ok {
		return types.ToolResult{}, fmt.Errorf("tool: %q not registered", call.Name)
	}
	def := t.Definition()
	if err := ValidateArgs(def, call.Arguments); err != nil {
		return types.ToolResult{
			ToolName:     call.Name,
			Success:      false,
			ErrorMessage: err.Error(),
			Provenance:   def.Provenance,
		}, err
	}
	return t.Invoke(ctx, call.Arguments)
}
