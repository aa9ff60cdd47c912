package ledger

import (
	"context"
	"fmt"
	"sync"

	"goreels/internal/errors"
	"goreels/internal/logging"
	"goreels/internal/metrics"
	"goreels/internal/store"
)

// Cascader runs delete cascades on a worker pool. A full queue never drops a
// cascade: it is persisted as a cleanup task instead.
type Cascader struct {
	store      store.RecordStore
	jobs       chan string
	workerPool int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	pending    sync.WaitGroup
}

func NewCascader(s store.RecordStore, workerPoolSize, queueSize int) *Cascader {
	if workerPoolSize <= 0 {
		workerPoolSize = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := &Cascader{
		store:      s,
		jobs:       make(chan string, queueSize),
		workerPool: workerPoolSize,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < workerPoolSize; i++ {
		c.wg.Add(1)
		go c.processJobs()
	}
	return c
}

func (c *Cascader) Enqueue(ctx context.Context, contentID string) {
	c.pending.Add(1)
	select {
	case <-c.ctx.Done():
		c.pending.Done()
		c.persist(ctx, contentID, "cascader stopped")
	case c.jobs <- contentID:
	default:
		c.pending.Done()
		c.persist(ctx, contentID, "cascade queue full")
	}
}

// persist records a whole cascade for the cleanup sweep.
func (c *Cascader) persist(ctx context.Context, contentID, reason string) {
	logging.Ctx(ctx).Warn().Str("reel_id", contentID).Str("reason", reason).Msg("delete cascade deferred to cleanup")
	if err := c.store.AddCleanupTask(context.WithoutCancel(ctx), contentID, "", reason); err != nil {
		metrics.CascadeFailures.Inc()
		logging.Ctx(ctx).Error().Err(err).Str("reel_id", contentID).Msg("failed to persist deferred cascade")
	}
}

func (c *Cascader) processJobs() {
	defer c.wg.Done()

	for {
		select {
		case id := <-c.jobs:
			if err := runCascade(c.ctx, c.store, id); err != nil {
				logging.Warn().Err(err).Str("reel_id", id).Msg("delete cascade incomplete")
			}
			c.pending.Done()
		case <-c.ctx.Done():
			return
		}
	}
}

// Wait blocks until every queued cascade has run.
func (c *Cascader) Wait() {
	c.pending.Wait()
}

// Shutdown stops the workers. Cascades still queued are persisted as
// cleanup tasks.
func (c *Cascader) Shutdown() {
	c.cancel()
	c.wg.Wait()

	for {
		select {
		case id := <-c.jobs:
			c.persist(context.Background(), id, "shutdown")
			c.pending.Done()
		default:
			logging.Info().Msg("delete cascader shutdown complete")
			return
		}
	}
}

// runCascade pulls contentID out of every referencing user's indexes. A user
// whose pull fails gets a cleanup task and the result is a PartialFailure; a
// failed lookup persists the whole cascade.
func runCascade(ctx context.Context, s store.RecordStore, contentID string) error {
	users, err := s.UsersReferencing(ctx, contentID)
	if err != nil {
		metrics.CascadeFailures.Inc()
		if perr := s.AddCleanupTask(context.WithoutCancel(ctx), contentID, "", err.Error()); perr != nil {
			return fmt.Errorf("list referencing users: %w (and persisting task: %v)", err, perr)
		}
		return fmt.Errorf("list referencing users: %w", err)
	}

	failed := 0
	for _, user := range users {
		if err := s.PullReference(ctx, user, contentID); err != nil {
			failed++
			metrics.CascadeFailures.Inc()
			if perr := s.AddCleanupTask(context.WithoutCancel(ctx), contentID, user, err.Error()); perr != nil {
				logging.Error().Err(perr).Str("reel_id", contentID).Str("user_id", user).Msg("failed to persist cleanup task")
			}
		}
	}
	if failed > 0 {
		return errors.PartialFailure(fmt.Sprintf("%d of %d index removals failed", failed, len(users))).
			WithDetails(map[string]any{"content_id": contentID})
	}
	return nil
}
