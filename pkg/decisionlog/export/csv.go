package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/keel/pkg/decisionlog"
)

// CSVExporter writes decisions as CSV, one row per decision.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{"id", "project_id", "task_id", "ts", "tool", "targets", "summary", "output_hash", "output_bytes"}

// Export writes decisions to w. Targets are joined with ";".
func (e *CSVExporter) Export(ctx context.Context, decisions []*decisionlog.Decision, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return decisionlog.NewExportError("csv", len(decisions), err)
		}
	}

	for _, d := range decisions {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := []string{
			d.ID,
			d.ProjectID,
			d.TaskID,
			d.Timestamp.UTC().Format(time.RFC3339Nano),
			d.Tool,
			strings.Join(d.Targets, ";"),
			d.Summary,
			d.OutputHash,
			strconv.Itoa(d.OutputBytes),
		}
		if err := writer.Write(row); err != nil {
			return decisionlog.NewExportError("csv", len(decisions), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return decisionlog.NewExportError("csv", len(decisions), err)
	}
	return nil
}

// ForFormat returns the exporter for "json" or "csv".
func ForFormat(format string, pretty bool) (decisionlog.Exporter, bool) {
	switch format {
	case "json":
		return NewJSONExporter(pretty), true
	case "csv":
		return NewCSVExporter(true), true
	default:
		return nil, false
	}
}
