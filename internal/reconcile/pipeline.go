package reconcile

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"goreels/internal/common"
	"goreels/internal/config"
	"goreels/internal/errors"
	"goreels/internal/ledger"
	"goreels/internal/logging"
	"goreels/internal/metrics"
	"goreels/internal/reel"
	"goreels/internal/store"
)

const invalidateRetries = 3

// Pipeline validates media for sampled feed pages and for full sweeps, and
// retires items whose media is gone.
type Pipeline struct {
	store   store.RecordStore
	ledger  *ledger.Ledger
	checker *Checker

	batchSize  int
	delay      time.Duration
	pageSize   int
	sampleRate float64
	random     func() float64
	now        func() time.Time

	queue      chan []*reel.ContentItem
	workerPool int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	pending    sync.WaitGroup

	mu      sync.Mutex
	running *sweepRun
	last    *SweepReport
}

type sweepRun struct {
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewPipeline(s store.RecordStore, l *ledger.Ledger, checker *Checker, cfg config.ReconcileConfig) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pipeline{
		store:      s,
		ledger:     l,
		checker:    checker,
		batchSize:  cfg.BatchSize,
		delay:      cfg.InterBatchDelay,
		pageSize:   pageSize,
		sampleRate: cfg.SampleRate,
		random:     rand.Float64,
		now:        time.Now,
		queue:      make(chan []*reel.ContentItem, queueSize),
		workerPool: workers,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.processSamples()
	}
	return p
}

// InvalidateReport counts what Invalidate did per id.
type InvalidateReport struct {
	Invalidated     []string `json:"invalidated"`
	AlreadyInactive int      `json:"alreadyInactive"`
	Missing         int      `json:"missing"`
	Failed          int      `json:"failed"`
}

// Invalidate retires each id in its own transaction: deactivate with reason
// media_missing, and decrement the category only if the row actually
// changed. Replaying it is harmless. Items are kept for audit.
func (p *Pipeline) Invalidate(ctx context.Context, ids []string) *InvalidateReport {
	report := &InvalidateReport{Invalidated: []string{}}
	for _, id := range ids {
		changed, err := p.invalidateOne(ctx, id)
		switch {
		case errors.Is(err, errors.ErrNotFound):
			report.Missing++
		case err != nil:
			report.Failed++
			metrics.Invalidations.WithLabelValues("failed").Inc()
			logging.Ctx(ctx).Error().Err(err).Str("reel_id", id).Msg("failed to invalidate reel")
		case changed:
			report.Invalidated = append(report.Invalidated, id)
			metrics.Invalidations.WithLabelValues("invalidated").Inc()
			logging.Ctx(ctx).Info().Str("reel_id", id).Msg("reel invalidated, media missing")
		default:
			report.AlreadyInactive++
			metrics.Invalidations.WithLabelValues("already_inactive").Inc()
		}
	}
	return report
}

func (p *Pipeline) invalidateOne(ctx context.Context, id string) (bool, error) {
	var err error
	for attempt := 0; attempt <= invalidateRetries; attempt++ {
		var changed bool
		err = p.store.WithTx(ctx, func(tx store.RecordStore) error {
			var txErr error
			changed, txErr = tx.Deactivate(ctx, id, common.ReasonMediaMissing, p.now().UTC())
			if txErr != nil || !changed {
				return txErr
			}
			item, txErr := tx.GetContent(ctx, id)
			if txErr != nil {
				return txErr
			}
			return p.ledger.WithStore(tx).OnInvalidate(ctx, item)
		})
		if err == nil {
			return changed, nil
		}
		if !errors.Is(err, errors.ErrConflict) {
			return false, err
		}
	}
	return false, err
}

// Sample submits a feed page for background validation with probability
// sampleRate. It never blocks: when the queue is full the page is dropped.
func (p *Pipeline) Sample(items []*reel.ContentItem) {
	if len(items) == 0 || p.sampleRate <= 0 || p.random() >= p.sampleRate {
		return
	}

	batch := make([]*reel.ContentItem, 0, len(items))
	for _, item := range items {
		if item.IsActive {
			batch = append(batch, item)
		}
	}
	if len(batch) == 0 {
		return
	}

	p.pending.Add(1)
	select {
	case <-p.ctx.Done():
		p.pending.Done()
	case p.queue <- batch:
		metrics.SampledBatches.WithLabelValues("queued").Inc()
	default:
		p.pending.Done()
		metrics.SampledBatches.WithLabelValues("dropped").Inc()
	}
}

func (p *Pipeline) processSamples() {
	defer p.wg.Done()

	for {
		select {
		case batch := <-p.queue:
			p.validateAndInvalidate(p.ctx, batch)
			p.pending.Done()
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pipeline) validateAndInvalidate(ctx context.Context, items []*reel.ContentItem) (*BatchResult, *InvalidateReport, error) {
	res, err := p.checker.ValidateBatch(ctx, items, p.batchSize, p.delay)
	inv := p.Invalidate(context.WithoutCancel(ctx), res.InvalidIDs)
	return res, inv, err
}

// Wait blocks until every queued sample has been processed.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}

// SweepReport describes one full sweep. Progress made before a cancellation
// is kept.
type SweepReport struct {
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Pages       int        `json:"pages"`
	Checked     int        `json:"checked"`
	Invalid     int        `json:"invalid"`
	Invalidated int        `json:"invalidated"`
	Failed      int        `json:"failed"`
	Cancelled   bool       `json:"cancelled"`
	Error       string     `json:"error,omitempty"`
}

// Sweep walks every active item in id order, page by page, validating and
// invalidating as it goes. Cancellation is honoured between batches.
func (p *Pipeline) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{StartedAt: p.now().UTC()}
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
		finished := p.now().UTC()
		report.FinishedAt = &finished
	}()

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			report.Cancelled = true
			return report, err
		}

		page, err := p.store.FindContent(ctx, store.Query{
			Filter: store.Filter{ActiveOnly: true, IDAfter: after},
			Sort:   store.SortID,
			Limit:  p.pageSize,
			Lean:   true,
		})
		if err != nil {
			if ctx.Err() != nil {
				report.Cancelled = true
				return report, ctx.Err()
			}
			report.Error = err.Error()
			return report, fmt.Errorf("sweep page after %q: %w", after, err)
		}
		if len(page) == 0 {
			return report, nil
		}
		if report.Pages > 0 && p.delay > 0 {
			if err := sleep(ctx, p.delay); err != nil {
				report.Cancelled = true
				return report, err
			}
		}

		res, inv, verr := p.validateAndInvalidate(ctx, page)
		report.Pages++
		report.Checked += len(res.Valid) + len(res.InvalidIDs)
		report.Invalid += len(res.InvalidIDs)
		report.Invalidated += len(inv.Invalidated)
		report.Failed += inv.Failed

		if verr != nil {
			report.Cancelled = true
			return report, verr
		}
		if len(page) < p.pageSize {
			return report, nil
		}
		after = page[len(page)-1].ID
	}
}

// StartSweep runs a sweep in the background. Only one sweep runs at a time.
func (p *Pipeline) StartSweep() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running != nil {
		return errors.Conflict("a reconciliation sweep is already running")
	}
	if p.ctx.Err() != nil {
		return errors.UpstreamUnavailable("reconciliation pipeline is shut down")
	}

	ctx, cancel := context.WithCancel(p.ctx)
	run := &sweepRun{startedAt: p.now().UTC(), cancel: cancel, done: make(chan struct{})}
	p.running = run

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(run.done)
		defer cancel()

		logging.Info().Msg("reconciliation sweep started")
		report, err := p.Sweep(ctx)
		switch {
		case report.Cancelled:
			logging.Warn().Int("checked", report.Checked).Int("invalidated", report.Invalidated).
				Msg("reconciliation sweep cancelled")
		case err != nil:
			logging.Error().Err(err).Msg("reconciliation sweep failed")
		default:
			logging.Info().Int("pages", report.Pages).Int("checked", report.Checked).
				Int("invalidated", report.Invalidated).Msg("reconciliation sweep finished")
		}

		p.mu.Lock()
		p.last = report
		p.running = nil
		p.mu.Unlock()
	}()
	return nil
}

// CancelSweep stops the running sweep, if any, and waits for it to stop.
func (p *Pipeline) CancelSweep() bool {
	p.mu.Lock()
	run := p.running
	p.mu.Unlock()
	if run == nil {
		return false
	}
	run.cancel()
	<-run.done
	return true
}

// SweepStatus is what the admin route reports.
type SweepStatus struct {
	Running   bool         `json:"running"`
	StartedAt *time.Time   `json:"startedAt,omitempty"`
	Last      *SweepReport `json:"last,omitempty"`
}

func (p *Pipeline) Status() SweepStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := SweepStatus{Last: p.last}
	if p.running != nil {
		started := p.running.startedAt
		st.Running = true
		st.StartedAt = &started
	}
	return st
}

// Schedule starts a sweep every interval until ctx is done. A tick that
// lands while a sweep is still running is skipped.
func (p *Pipeline) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.StartSweep(); err != nil {
				logging.Debug().Err(err).Msg("scheduled sweep skipped")
			}
		}
	}
}

// Shutdown cancels the running sweep and stops the sample workers. Samples
// still queued are discarded; the next sweep covers them.
func (p *Pipeline) Shutdown() {
	p.cancel()
	p.wg.Wait()

	for {
		select {
		case <-p.queue:
			p.pending.Done()
		default:
			logging.Info().Msg("reconciliation pipeline shutdown complete")
			return
		}
	}
}
