package blob

import (
	"context"
	"errors"
	"io"

	gobreaker "github.com/sony/gobreaker/v2"

	"goreels/internal/config"
	"goreels/internal/logging"
	"goreels/internal/metrics"
)

// Breaker wraps a Store with a circuit breaker. A definitive "absent" answer
// from Exists counts as a success; only transport failures trip the circuit.
// While open, calls fail fast with gobreaker.ErrOpenState.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

func NewBreaker(next Store, name string, cfg config.BlobConfig) *Breaker {
	metrics.BlobBreakerState.WithLabelValues(name).Set(0)

	minRequests := cfg.BreakerMinRequests
	ratio := cfg.BreakerFailRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= ratio {
				logging.Warn().Str("breaker", name).Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).Msg("opening blob store circuit")
				return true
			}
			return false
		},
		// The caller giving up says nothing about the store's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("blob store circuit state change")
			metrics.BlobBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Breaker{next: next, cb: cb, name: name}
}

func (b *Breaker) Upload(ctx context.Context, name, contentType string, r io.Reader) (*Object, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Upload(ctx, name, contentType, r)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Object), nil
}

func (b *Breaker) Exists(ctx context.Context, ref string) (bool, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Exists(ctx, ref)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (b *Breaker) Delete(ctx context.Context, ref string) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Delete(ctx, ref)
	})
	return err
}

// Open bypasses the breaker; a streaming read outlives the Execute call.
func (b *Breaker) Open(ctx context.Context, ref string) (io.ReadCloser, *Object, error) {
	return b.next.Open(ctx, ref)
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
