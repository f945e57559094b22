package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/keel/pkg/decisionlog"
)

func sampleDecisions() []*decisionlog.Decision {
	return []*decisionlog.Decision{
		{
			ID:          "d1",
			ProjectID:   "pm_abc",
			TaskID:      "t1",
			Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Tool:        "write_file",
			Targets:     []string{"src/a.go", "src/b.go"},
			Summary:     "wrote 2 files",
			OutputHash:  decisionlog.HashOutput([]byte("ok")),
			OutputBytes: 2,
		},
	}
}

func TestJSONExporter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(true).Export(context.Background(), sampleDecisions(), &buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	var got []*decisionlog.Decision
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if diff := cmp.Diff(sampleDecisions(), got); diff != "" {
		t.Errorf("Decisions mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONExporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(false).Export(context.Background(), nil, &buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("Expected [], got %q", got)
	}
}

func TestCSVExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), sampleDecisions(), &buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected header plus 1 row, got %d rows", len(rows))
	}
	if diff := cmp.Diff(csvHeader, rows[0]); diff != "" {
		t.Errorf("Header mismatch (-want +got):\n%s", diff)
	}
	if rows[1][5] != "src/a.go;src/b.go" {
		t.Errorf("Expected joined targets, got %q", rows[1][5])
	}
	if rows[1][3] != "2026-03-01T12:00:00Z" {
		t.Errorf("Expected RFC3339 timestamp, got %q", rows[1][3])
	}
}

func TestForFormat(t *testing.T) {
	if _, ok := ForFormat("json", false); !ok {
		t.Error("Expected json exporter")
	}
	if _, ok := ForFormat("csv", false); !ok {
		t.Error("Expected csv exporter")
	}
	if _, ok := ForFormat("xml", false); ok {
		t.Error("Expected xml to be unsupported")
	}
}
