package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
	"github.com/wheresmyjobat/wheresmyjobat/internal/service"
)

// stubClient scripts provider behavior for classifier tests.
type stubClient struct {
	result model.Classification
	err    error
	calls  int
}

func (s *stubClient) ExtractApplication(_ context.Context, _ string) (model.Classification, error) {
	s.calls++
	if s.err != nil {
		return model.Classification{}, s.err
	}
	return s.result, nil
}

func fastRetryOpts() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestClassifierReturnsResult(t *testing.T) {
	want := model.Classification{Company: "Acme", Title: "SWE", Tag: model.TagOffer, Confidence: 88}
	c := &Classifier{client: &stubClient{result: want}, opts: fastRetryOpts()}

	got, err := c.Classify(context.Background(), "Offer from Acme", "We are pleased...", "hr@acme.com")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestClassifierMalformedOutputIsNoSignal(t *testing.T) {
	stub := &stubClient{err: ErrMalformedOutput}
	c := &Classifier{client: stub, opts: fastRetryOpts()}

	got, err := c.Classify(context.Background(), "subject", "body", "sender")
	require.NoError(t, err, "malformed output must not surface as an error")
	assert.Equal(t, model.Classification{}, got)
	assert.Equal(t, 1, stub.calls, "malformed output must not be retried")
}

func TestClassifierTransportErrorPropagates(t *testing.T) {
	stub := &stubClient{err: errors.New("connection refused")}
	c := &Classifier{client: stub, opts: fastRetryOpts()}

	_, err := c.Classify(context.Background(), "subject", "body", "sender")
	require.Error(t, err)
	assert.Equal(t, 2, stub.calls, "transport errors should be retried")
}

func TestClassifierUnavailableWithoutKey(t *testing.T) {
	c, err := NewClassifier(Config{})
	require.NoError(t, err)
	assert.False(t, c.Available())

	_, err = c.Classify(context.Background(), "s", "b", "x")
	assert.Error(t, err)
}

func TestNewClassifierRejectsUnknownProvider(t *testing.T) {
	_, err := NewClassifier(Config{Provider: "ouija", APIKey: "k"})
	assert.Error(t, err)
}

func TestBuildPromptContainsEmailFields(t *testing.T) {
	prompt := buildPrompt("Interview at Acme", "Please pick a slot", "recruiter@acme.com")
	assert.Contains(t, prompt, "Interview at Acme")
	assert.Contains(t, prompt, "Please pick a slot")
	assert.Contains(t, prompt, "recruiter@acme.com")
	assert.Contains(t, prompt, "application_received")
}
