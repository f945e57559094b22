package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys recorded on keel spans.
const (
	AttrProjectID    = "keel.project_id"
	AttrTaskID       = "keel.task_id"
	AttrMode         = "keel.mode"
	AttrTool         = "keel.tool"
	AttrTargets      = "keel.targets"
	AttrSnapshotKind = "keel.rao.kind"
	AttrDeduplicated = "keel.rao.deduplicated"
	AttrEventType    = "keel.pm.event_type"
	AttrVersion      = "keel.pm.version"
	AttrVerdict      = "keel.gate.verdict"
	AttrWarnings     = "keel.gate.warnings"
	AttrProvider     = "keel.provider"
	AttrTimedOut     = "keel.provider.timed_out"
)

// ProjectAttr returns the project ID attribute.
func ProjectAttr(projectID string) attribute.KeyValue {
	return attribute.String(AttrProjectID, projectID)
}

// ToolAttrs returns the attributes of a tool call.
func ToolAttrs(tool string, targets []string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTool, tool),
		attribute.StringSlice(AttrTargets, targets),
	}
}

// VerdictAttrs returns the attributes of a gate verdict.
func VerdictAttrs(verdict string, warnings int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrVerdict, verdict),
		attribute.Int(AttrWarnings, warnings),
	}
}
