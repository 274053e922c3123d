// Package llmclient declares the LLM boundary the NLU and slot-extraction
// layers call through. Both operations are timeout-bounded and may fail
// without affecting correctness — callers always have a deterministic
// fallback path.
package llmclient

import (
	"context"

	"github.com/coursebot/assistant/domain"
)

// ClassifyResult is classifyIntent's response.
type ClassifyResult struct {
	Intent     string
	Confidence float64
	Usage      Usage
}

// Usage reports token accounting, surfaced in trace metadata only.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Client is the LLMClient capability. Implementations must honor ctx's
// deadline; the caller is responsible for applying AI_FALLBACK_TIMEOUT_MS.
type Client interface {
	ClassifyIntent(ctx context.Context, text string) (ClassifyResult, error)
	ExtractSlots(ctx context.Context, text, intent string, existing domain.Slots) (domain.Slots, error)
}
