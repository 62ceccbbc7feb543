package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"skillvet/internal/telemetry"
)

// Request is one prompt pair sent to a provider.
type Request struct {
	System    string
	User      string
	MaxTokens int
}

// StatusError is a non-200 response from a provider API.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.Code, e.Body)
}

// Temporary reports whether retrying the call could succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// BaseClient holds the retry and mock plumbing shared by all HTTP clients.
type BaseClient struct {
	Provider   string
	MaxRetries int
	BackoffFn  func(int) time.Duration
	// mockResponder is used for testing to bypass real API calls
	mockResponder func(Request) (string, error)
}

// NewBaseClient creates a base client with the default retry policy.
func NewBaseClient(provider string) BaseClient {
	return BaseClient{Provider: provider, MaxRetries: 2, BackoffFn: defaultBackoff}
}

// SendWithRetry runs once until it succeeds, fails permanently, runs out of
// retries or ctx ends.
func (b *BaseClient) SendWithRetry(ctx context.Context, req Request, once func(context.Context, Request) (string, error)) (string, error) {
	if b.mockResponder != nil {
		once = func(_ context.Context, r Request) (string, error) { return b.mockResponder(r) }
	}
	backoffFn := b.BackoffFn
	if backoffFn == nil {
		backoffFn = defaultBackoff
	}

	var lastErr error
	for i := 0; i <= b.MaxRetries; i++ {
		if i > 0 {
			wait := backoffFn(i)
			telemetry.LogInfo("Retrying agent call", "provider", b.Provider, "retry", i, "wait", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		start := time.Now()
		result, err := once(ctx, req)
		telemetry.TrackAgentCall(b.Provider, err, time.Since(start))
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if !retryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("failed after %d retries: %w", b.MaxRetries, lastErr)
}

func retryable(err error) bool {
	if errors.Is(err, errMissingAPIKey) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
