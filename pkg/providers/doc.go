// Package providers defines the language-model provider contract consumed by
// the agent.
//
// Concrete HTTP adapters live outside this repository. The package holds the
// provider-agnostic message, tool and completion types, the Provider and
// Streamer interfaces, and CollectStream, which folds an incremental stream
// into a CompletionResponse while racing a first-token deadline and an
// overall deadline against the provider's output.
package providers
