package search

import (
	"context"
	"math"
	"math/rand"
	"time"

	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
)

// SearchWithRetry repeats Search while it fails with a retryable error,
// such as an unreachable datastore, up to Config.MaxAttempts times. Each
// attempt is a complete request with its own audit record.
func (s *Service) SearchWithRetry(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < s.config.MaxAttempts; attempt++ {
		response, err := s.Search(ctx, req)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if ctx.Err() != nil || !apperrors.IsRetryable(err) || attempt == s.config.MaxAttempts-1 {
			break
		}

		delay := backoff(attempt, s.config.RetryBaseDelay, s.config.RetryMaxDelay)
		s.logger.Warn(ctx, "Search attempt failed, retrying", map[string]interface{}{
			"attempt":  attempt + 1,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// backoff doubles base per attempt up to max and applies 50-150% jitter.
func backoff(attempt int, base, max time.Duration) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * base
	if delay > max {
		delay = max
	}
	return time.Duration(float64(delay) * (0.5 + rand.Float64()))
}
