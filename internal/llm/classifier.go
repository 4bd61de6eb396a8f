package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wheresmyjobat/wheresmyjobat/internal/common"
	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
	"github.com/wheresmyjobat/wheresmyjobat/internal/service"
)

// Classifier wraps a provider client with retries and the no-signal
// contract: malformed model output yields a zero Classification and a nil
// error, because the caller's polling loop must keep running.
type Classifier struct {
	client Client
	opts   service.RetryOptions
}

// NewClassifier creates a classifier from provider configuration. A missing
// API key is not an error: it returns an unavailable classifier, matching a
// deployment that monitors mail without LLM analysis.
func NewClassifier(cfg Config) (*Classifier, error) {
	if cfg.APIKey == "" {
		return &Classifier{}, nil
	}

	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = time.Second
	}

	return &Classifier{
		client: client,
		opts: service.RetryOptions{
			MaxAttempts:  maxRetries,
			InitialDelay: retryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// Available reports whether a provider is configured.
func (c *Classifier) Available() bool {
	return c.client != nil
}

// Classify analyzes one email and extracts job application information.
func (c *Classifier) Classify(ctx context.Context, subject, body, sender string) (model.Classification, error) {
	if c.client == nil {
		return model.Classification{}, common.ErrClassifierUnavailable
	}

	prompt := buildPrompt(subject, body, sender)

	var result model.Classification
	err := common.WithRetry(ctx, func() error {
		var callErr error
		result, callErr = c.client.ExtractApplication(ctx, prompt)
		if errors.Is(callErr, ErrMalformedOutput) {
			// Garbage out of the model is not retryable and not fatal.
			return &common.RetryableError{Err: callErr, Retryable: false}
		}
		return callErr
	}, c.opts)

	if errors.Is(err, ErrMalformedOutput) {
		slog.Debug("Classifier returned unparseable output, treating as no signal",
			"subject", subject, "error", err)
		return model.Classification{}, nil
	}
	if err != nil {
		return model.Classification{}, fmt.Errorf("%w: %v", common.ErrClassificationFailed, err)
	}

	return result, nil
}

// buildPrompt renders the extraction prompt for one email.
func buildPrompt(subject, body, sender string) string {
	return fmt.Sprintf(`Analyze this email and extract job application information:

Subject: %s
Body: %s
Sender: %s

Extract the following information:
1. Company name
2. Job title/position
3. Interview stage (choose from: application_received, phone_screen, technical_interview, behavioral_interview, final_interview, offer, rejected, other)
4. Confidence level (0-100) based on how certain you are

Return the response in this exact JSON format:
{
    "company_name": "extracted company name or null",
    "job_title": "extracted job title or null",
    "interview_stage": "stage or null",
    "confidence": confidence_score
}

Only return the JSON, no other text.`, subject, body, sender)
}
