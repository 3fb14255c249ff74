package orchestrator

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/clenoble/sovereign/pkg/autocommit"
	"github.com/clenoble/sovereign/pkg/tool"
	"github.com/clenoble/sovereign/pkg/types"
)

// restoreVersionArgs is restoreVersionTool's declared argument shape.
type restoreVersionArgs struct {
	DocumentID string `mapstructure:"document_id"`
	CommitID   string `mapstructure:"commit_id"`
}

// restoreVersionTool exposes the auto-commit engine's Restore operation
// as an ordinary registered tool, so a version restore reaches the graph
// store through the same gate path every other write does rather than a
// bespoke approval branch (§4.6's sole-path invariant).
type restoreVersionTool struct {
	engine *autocommit.Engine
}

func newRestoreVersionTool(engine *autocommit.Engine) tool.Tool {
	return &restoreVersionTool{engine: engine}
}

func (t *restoreVersionTool) Definition() tool.Definition {
	reflector := &jsonschema.Reflector{DoNotReference: true}
	return tool.Definition{
		Name:        "restore_version",
		Description: "Restore a document to a prior committed version.",
		Level:       types.LevelModify,
		Plane:       types.PlaneControl,
		Provenance:  types.ProvenanceOwned,
		Schema:      reflector.Reflect(restoreVersionArgs{}),
		Args:        &restoreVersionArgs{},
	}
}

func (t *restoreVersionTool) Invoke(ctx context.Context, raw map[string]any) (types.ToolResult, error) {
	if err := tool.ValidateArgs(t.Definition(), raw); err != nil {
		return types.ToolResult{}, err
	}
	var args restoreVersionArgs
	if err := mapstructure.Decode(raw, &args); err != nil {
		return types.ToolResult{}, err
	}
	doc, err := t.engine.Restore(ctx, args.DocumentID, args.CommitID)
	if err != nil {
		return types.ToolResult{ToolName: "restore_version", Success: false, ErrorMessage: err.Error()}, nil
	}
	msg := fmt.Sprintf("Restored %q from %s", doc.Title, args.CommitID)
	return types.ToolResult{ToolName: "restore_version", ForModel: msg, ForUser: msg, Provenance: types.ProvenanceOwned, Success: true}, nil
}
