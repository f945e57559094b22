package providers

import "context"

// Provider is the contract every language-model adapter implements.
// The agent is provider-agnostic and only ever talks to this interface.
//
// Implementations must respect context cancellation and return promptly
// when the context is cancelled.
//
// Example usage:
//
//	resp, err := provider.SendCompletion(ctx, &CompletionRequest{
//	    Model:    "some-model",
//	    Messages: []Message{{Role: RoleUser, Content: "Hello!"}},
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(resp.Content)
type Provider interface {
	// SendCompletion sends a completion request and returns the full response.
	SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// GetName returns the provider's name (e.g., "openai", "local").
	GetName() string
}

// Streamer is implemented by providers that can deliver incremental output.
//
// The returned channel yields chunks as they arrive and is closed by the
// provider when the stream ends. An error during streaming is reported in
// the Error field of the last chunk.
//
//	chunks, err := provider.StreamCompletion(ctx, req)
//	if err != nil {
//	    return err
//	}
//	for chunk := range chunks {
//	    if chunk.Error != nil {
//	        return chunk.Error
//	    }
//	    fmt.Print(chunk.Delta)
//	}
type Streamer interface {
	StreamCompletion(ctx context.Context, req *CompletionRequest) (<-chan *StreamChunk, error)
}
