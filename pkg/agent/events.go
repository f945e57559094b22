package agent

import (
	"encoding/json"
	"io"
	"sync"
)

// Event types emitted to an EventSink.
const (
	EventMeta       = "meta"
	EventState      = "state"
	EventTextDelta  = "text_delta"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventGate       = "gate"
	EventComplete   = "complete"
	EventError      = "error"
)

// Event is one item of the agent's progress stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventSink receives agent events. Emit is called with the agent's lock
// held and must not call back into the agent.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit calls f.
func (f EventSinkFunc) Emit(e Event) { f(e) }

// MetaData is the payload of a meta event.
type MetaData struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// StateData is the payload of a state event.
type StateData struct {
	State State `json:"state"`
}

// TextDeltaData is the payload of a text_delta event.
type TextDeltaData struct {
	Text string `json:"text"`
}

// ToolCallData is the payload of a tool_call event.
type ToolCallData struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// ToolResultData is the payload of a tool_result event.
type ToolResultData struct {
	ToolID    string `json:"tool_id"`
	Success   bool   `json:"success"`
	Output    string `json:"output"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// GateWarningData is one warning inside a gate event.
type GateWarningData struct {
	Code    string `json:"code"`
	Subject string `json:"subject"`
}

// GateData is the payload of a gate event.
type GateData struct {
	ID       string            `json:"id"`
	Blocked  bool              `json:"blocked"`
	Warnings []GateWarningData `json:"warnings"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}

// JSONLineSink writes each event as one line of JSON.
type JSONLineSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLineSink returns a sink writing to w.
func NewJSONLineSink(w io.Writer) *JSONLineSink {
	return &JSONLineSink{enc: json.NewEncoder(w)}
}

// Emit writes e. Write errors are dropped.
func (s *JSONLineSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(e)
}

type nopSink struct{}

func (nopSink) Emit(Event) {}
