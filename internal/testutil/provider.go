// Package testutil holds scripted providers and fake tools for tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"mercator-hq/keel/pkg/providers"
)

// ErrScriptExhausted is returned once every scripted step has been used.
var ErrScriptExhausted = errors.New("scripted provider: no more responses")

// Step is one scripted reply. Exactly one of Response or Err is used.
type Step struct {
	Response *providers.CompletionResponse
	Err      error
}

// Reply returns a text-only step.
func Reply(content string) Step {
	return Step{Response: &providers.CompletionResponse{Content: content, FinishReason: providers.FinishReasonStop}}
}

// Call returns a step proposing a single tool call.
func Call(id, name, arguments string) Step {
	return Calls(providers.ToolCall{
		ID:       id,
		Type:     providers.ToolTypeFunction,
		Function: providers.FunctionCall{Name: name, Arguments: arguments},
	})
}

// Calls returns a step proposing several tool calls.
func Calls(calls ...providers.ToolCall) Step {
	return Step{Response: &providers.CompletionResponse{ToolCalls: calls, FinishReason: providers.FinishReasonToolCalls}}
}

// ScriptedProvider replays a fixed sequence of responses and records
// every request it receives.
type ScriptedProvider struct {
	name string

	mu       sync.Mutex
	steps    []Step
	requests []*providers.CompletionRequest
}

// NewScriptedProvider returns a provider that answers with steps in order.
func NewScriptedProvider(steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{name: "scripted", steps: steps}
}

// Push appends more steps to the script.
func (p *ScriptedProvider) Push(steps ...Step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, steps...)
}

// SendCompletion returns the next scripted step.
func (p *ScriptedProvider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, cloneRequest(req))
	if len(p.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Response
	return &resp, nil
}

// GetName returns the provider name.
func (p *ScriptedProvider) GetName() string {
	return p.name
}

// Requests returns copies of the requests received so far.
func (p *ScriptedProvider) Requests() []*providers.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*providers.CompletionRequest(nil), p.requests...)
}

// Remaining reports how many scripted steps are left.
func (p *ScriptedProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps)
}

// StreamingProvider is a ScriptedProvider that also streams. Each scripted
// response is split into one chunk per element of Deltas, or a single chunk
// when Deltas is empty.
type StreamingProvider struct {
	*ScriptedProvider

	// Deltas overrides how content is chunked.
	Deltas []string

	// Delay is slept before each chunk.
	Delay time.Duration

	// Stall makes the stream send nothing until ctx is cancelled.
	Stall bool
}

// NewStreamingProvider returns a streaming provider over steps.
func NewStreamingProvider(steps ...Step) *StreamingProvider {
	return &StreamingProvider{ScriptedProvider: NewScriptedProvider(steps...)}
}

// StreamCompletion streams the next scripted step.
func (p *StreamingProvider) StreamCompletion(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	ch := make(chan *providers.StreamChunk)

	if p.Stall {
		p.mu.Lock()
		p.requests = append(p.requests, cloneRequest(req))
		p.mu.Unlock()
		go func() {
			defer close(ch)
			<-ctx.Done()
		}()
		return ch, nil
	}

	resp, err := p.SendCompletion(ctx, req)
	if err != nil {
		return nil, err
	}

	deltas := p.Deltas
	if len(deltas) == 0 {
		deltas = []string{resp.Content}
	}

	go func() {
		defer close(ch)
		for i, d := range deltas {
			chunk := &providers.StreamChunk{Delta: d}
			if i == len(deltas)-1 {
				chunk.ToolCalls = resp.ToolCalls
				chunk.FinishReason = resp.FinishReason
				chunk.Usage = resp.Usage
			}
			if p.Delay > 0 {
				select {
				case <-time.After(p.Delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func cloneRequest(req *providers.CompletionRequest) *providers.CompletionRequest {
	if req == nil {
		return nil
	}
	out := *req
	out.Messages = append([]providers.Message(nil), req.Messages...)
	out.Tools = append([]providers.Tool(nil), req.Tools...)
	return &out
}
