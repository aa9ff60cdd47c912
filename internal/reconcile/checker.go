// Package reconcile finds reels whose media has gone missing from the blob
// store and retires them. Every existence check fails open: only a definitive
// "absent" answer can invalidate an item.
package reconcile

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"goreels/internal/blob"
	"goreels/internal/logging"
	"goreels/internal/metrics"
	"goreels/internal/reel"
)

const DefaultCheckTimeout = 5 * time.Second

// Checker answers existence questions against a blob store.
type Checker struct {
	blob    blob.Store
	timeout time.Duration
	limiter *rate.Limiter
}

// NewChecker bounds each check by timeout and, when rps > 0, throttles
// outbound checks to rps with the given burst.
func NewChecker(b blob.Store, timeout time.Duration, rps float64, burst int) *Checker {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	c := &Checker{blob: b, timeout: timeout}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return c
}

// CheckExists reports false only when the blob store definitively says the
// object is absent, or when ref is empty. Errors, timeouts and an open
// breaker all report true.
func (c *Checker) CheckExists(ctx context.Context, ref string) bool {
	if ref == "" {
		metrics.ExistenceChecks.WithLabelValues("no_ref").Inc()
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.failOpen(ctx, ref, err)
			return true
		}
	}

	start := time.Now()
	ok, err := c.blob.Exists(ctx, ref)
	metrics.ExistenceCheckDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.failOpen(ctx, ref, err)
		return true
	}
	if !ok {
		metrics.ExistenceChecks.WithLabelValues("missing").Inc()
		return false
	}
	metrics.ExistenceChecks.WithLabelValues("found").Inc()
	return true
}

func (c *Checker) failOpen(ctx context.Context, ref string, err error) {
	metrics.ExistenceChecks.WithLabelValues("fail_open").Inc()
	logging.Ctx(ctx).Warn().Err(err).Str("media_ref", ref).Msg("existence check failed, assuming media exists")
}

// BatchResult lists ids in input order.
type BatchResult struct {
	Valid      []string `json:"valid"`
	InvalidIDs []string `json:"invalidIds"`
}

// ValidateBatch checks items in chunks of batchSize, concurrently within a
// chunk, sleeping delay between chunks. A failing check never aborts the
// batch. When ctx is cancelled between chunks the partial result is returned
// together with ctx.Err().
func (c *Checker) ValidateBatch(ctx context.Context, items []*reel.ContentItem, batchSize int, delay time.Duration) (*BatchResult, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	res := &BatchResult{Valid: []string{}, InvalidIDs: []string{}}
	for start := 0; start < len(items); start += batchSize {
		if start > 0 && delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		end := min(start+batchSize, len(items))
		chunk := items[start:end]
		exists := make([]bool, len(chunk))

		var g errgroup.Group
		for i, item := range chunk {
			if item.MediaRef == "" {
				metrics.ExistenceChecks.WithLabelValues("no_ref").Inc()
				continue
			}
			g.Go(func() error {
				exists[i] = c.CheckExists(ctx, item.MediaRef)
				return nil
			})
		}
		_ = g.Wait()

		for i, item := range chunk {
			if exists[i] {
				res.Valid = append(res.Valid, item.ID)
			} else {
				res.InvalidIDs = append(res.InvalidIDs, item.ID)
			}
		}
	}
	return res, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
