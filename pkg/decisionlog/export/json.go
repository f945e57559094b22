package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/keel/pkg/decisionlog"
)

// JSONExporter writes decisions as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes decisions to w. An empty input produces "[]".
func (e *JSONExporter) Export(ctx context.Context, decisions []*decisionlog.Decision, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if decisions == nil {
		decisions = []*decisionlog.Decision{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(decisions); err != nil {
		return decisionlog.NewExportError("json", len(decisions), err)
	}
	return nil
}
