package llms

import "context"

// Exchange is one completed prompt/reply pair. The orchestrator keeps a slice
// of these as conversation history and passes it to the generator on every
// turn.
type Exchange struct {
	Prompt string
	Reply  string
}

// Stream is an in-flight generation. Chunks yields incremental reply text;
// abandoning the iteration releases the underlying connection.
type Stream interface {
	Chunks(context.Context) func(func(string, error) bool)
}
