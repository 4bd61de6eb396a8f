// Package llm implements the email classification client on top of
// interchangeable language-model providers.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
)

// ErrMalformedOutput marks provider responses that arrived but could not be
// parsed into a classification. Callers treat it as "no signal" rather than
// a transport failure.
var ErrMalformedOutput = errors.New("malformed classification output")

// Client defines the interface for LLM providers.
type Client interface {
	// ExtractApplication sends the classification prompt and parses the
	// model's answer. Parse failures are wrapped with ErrMalformedOutput.
	ExtractApplication(ctx context.Context, prompt string) (model.Classification, error)
}

// Config holds provider configuration.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	Temperature float64
	MaxTokens   int
}
