package textgen

import "context"

// Generation parameters are fixed: bounded output, deterministic sampling,
// full nucleus. Task extraction must be a pure function of the transcript so
// duplicate deliveries produce identical task objects.
const (
	MaxTokens   = 400
	Temperature = 0.0
	TopP        = 1.0
)

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
