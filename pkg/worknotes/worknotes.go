// Package worknotes defines the structured plan a model writes at the
// start of a task and its defensive parser.
package worknotes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmpty indicates the completion carried no JSON object.
var ErrEmpty = errors.New("worknotes: no JSON object in completion")

// Notes is the model's plan for one task. Notes are replaced wholesale,
// never merged.
type Notes struct {
	Intent      Intent     `json:"intent"`
	Hypothesis  Hypothesis `json:"hypothesis"`
	Plan        Plan       `json:"plan"`
	Scope       Scope      `json:"scope"`
	Assumptions []string   `json:"assumptions"`
	Risks       Risks      `json:"risks"`
	Status      string     `json:"status"`
}

// Intent states what the task changes and why.
type Intent struct {
	What string `json:"what"`
	Why  string `json:"why"`
}

// Hypothesis states the expected effect and how to measure it.
type Hypothesis struct {
	Expected string   `json:"expected"`
	Metrics  []string `json:"metrics"`
}

// Plan lists the steps the model intends to take.
type Plan struct {
	Steps        []string `json:"steps"`
	Alternatives []string `json:"alternatives"`
	Rationale    string   `json:"rationale"`
}

// Scope bounds the files the task may touch.
type Scope struct {
	Files    []string `json:"files"`
	MaxFiles int      `json:"max_files"`
	MaxLOC   int      `json:"max_loc"`
}

// Risks splits risks by nature.
type Risks struct {
	Technical  []string `json:"technical"`
	Behavioral []string `json:"behavioral"`
}

// SyntaxError reports a completion that is not valid work-notes JSON.
type SyntaxError struct {
	Cause error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("worknotes: invalid JSON: %v", e.Cause)
}

func (e *SyntaxError) Unwrap() error {
	return e.Cause
}

// Parse decodes work notes from a model completion. Markdown code fences
// and text around the outermost JSON object are ignored; unknown fields
// are rejected.
func Parse(completion string) (*Notes, error) {
	body := extractObject(stripFences(completion))
	if body == "" {
		return nil, ErrEmpty
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()

	var n Notes
	if err := dec.Decode(&n); err != nil {
		return nil, &SyntaxError{Cause: err}
	}
	n.normalize()
	return &n, nil
}

// Empty reports whether n carries no plan at all.
func (n *Notes) Empty() bool {
	return n == nil || (n.Intent.What == "" && len(n.Plan.Steps) == 0 && len(n.Scope.Files) == 0)
}

func (n *Notes) normalize() {
	for _, s := range []*[]string{
		&n.Hypothesis.Metrics, &n.Plan.Steps, &n.Plan.Alternatives,
		&n.Scope.Files, &n.Assumptions, &n.Risks.Technical, &n.Risks.Behavioral,
	} {
		if *s == nil {
			*s = []string{}
		}
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	if j := strings.LastIndex(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}

// extractObject returns the text from the first '{' to the last '}'.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
