package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// ErrSynthesisCircuitOpen is returned by Available while the breaker is open.
var ErrSynthesisCircuitOpen = errors.New("synthesis circuit open")

// CircuitBreakerConfig tunes the breaker in front of the generative service.
type CircuitBreakerConfig struct {
	MaxRequests   uint32        // probes allowed while half-open
	Interval      time.Duration // closed-state window after which counts reset
	Timeout       time.Duration // how long the circuit stays open
	ReadyToTrip   func(counts gobreaker.Counts) bool
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig opens after repeated failures so that an
// unavailable generative service costs searches no latency.
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxRequests: 1,
	Interval:    30 * time.Second,
	Timeout:     30 * time.Second,
	ReadyToTrip: func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 5 {
			return true
		}
		return counts.Requests >= 3 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
	},
}

// CircuitBreakerClient is a Client that stops calling the service once it
// keeps failing.
type CircuitBreakerClient struct {
	client  Client
	breaker *gobreaker.CircuitBreaker
}

func NewCircuitBreakerClient(client Client, name string, config CircuitBreakerConfig) *CircuitBreakerClient {
	return &CircuitBreakerClient{
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:          name,
			MaxRequests:   config.MaxRequests,
			Interval:      config.Interval,
			Timeout:       config.Timeout,
			ReadyToTrip:   config.ReadyToTrip,
			OnStateChange: config.OnStateChange,
			IsSuccessful:  countsAsHealthy,
		}),
	}
}

// countsAsHealthy decides which errors leave the breaker's counts alone.
// A caller that gave up, or a request the service rejected as malformed,
// says nothing about whether the service is up.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

// Complete fails fast with gobreaker.ErrOpenState while the circuit is open.
func (cb *CircuitBreakerClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		completion, err := cb.client.Complete(ctx, req)
		if err != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, context.Canceled
		}
		return completion, err
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis breaker %s: %w", cb.breaker.Name(), err)
	}
	return result.(*Completion), nil
}

// Available reports ErrSynthesisCircuitOpen while calls are being refused.
// It matches the health check signature.
func (cb *CircuitBreakerClient) Available(context.Context) error {
	if cb.breaker.State() == gobreaker.StateOpen {
		return ErrSynthesisCircuitOpen
	}
	return nil
}

func (cb *CircuitBreakerClient) State() gobreaker.State {
	return cb.breaker.State()
}

func (cb *CircuitBreakerClient) Counts() gobreaker.Counts {
	return cb.breaker.Counts()
}
