package providers

import (
	"context"
	"strings"
	"time"
)

// StreamTimeouts bounds how long CollectStream waits on a provider stream.
// A zero duration disables the corresponding deadline.
type StreamTimeouts struct {
	// FirstToken is the maximum wait for the first chunk.
	FirstToken time.Duration

	// Overall is the maximum wait for the whole stream.
	Overall time.Duration
}

// CollectStream drains chunks into a single CompletionResponse.
//
// Deltas are passed to onDelta (which may be nil) as they arrive. When a
// deadline fires, CollectStream stops reading and returns the partial
// response together with a *StreamTimeoutError; zero collected chunks is a
// valid partial response. The provider goroutine feeding the channel is not
// waited for; cancelling ctx is the caller's way to stop it.
func CollectStream(ctx context.Context, chunks <-chan *StreamChunk, timeouts StreamTimeouts, onDelta func(string)) (*CompletionResponse, error) {
	resp := &CompletionResponse{}
	var content strings.Builder
	received := 0

	var firstC, overallC <-chan time.Time
	if timeouts.FirstToken > 0 {
		first := time.NewTimer(timeouts.FirstToken)
		defer first.Stop()
		firstC = first.C
	}
	if timeouts.Overall > 0 {
		overall := time.NewTimer(timeouts.Overall)
		defer overall.Stop()
		overallC = overall.C
	}

	finish := func() *CompletionResponse {
		resp.Content = content.String()
		return resp
	}

	for {
		select {
		case <-ctx.Done():
			return finish(), ctx.Err()

		case <-firstC:
			return finish(), &StreamTimeoutError{Phase: "first_token", After: timeouts.FirstToken, Received: received}

		case <-overallC:
			return finish(), &StreamTimeoutError{Phase: "overall", After: timeouts.Overall, Received: received}

		case chunk, ok := <-chunks:
			if !ok {
				return finish(), nil
			}
			if chunk == nil {
				continue
			}
			if chunk.Error != nil {
				return finish(), chunk.Error
			}

			received++
			firstC = nil

			if chunk.Delta != "" {
				content.WriteString(chunk.Delta)
				if onDelta != nil {
					onDelta(chunk.Delta)
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, chunk.ToolCalls...)
			if chunk.FinishReason != "" {
				resp.FinishReason = chunk.FinishReason
			}
			if chunk.Usage != nil {
				resp.Usage = chunk.Usage
			}
		}
	}
}
