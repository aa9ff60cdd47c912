// Package ledger owns the denormalized counters: the per-category content
// count and the per-author content index. Nothing else writes them.
package ledger

import (
	"context"
	"fmt"
	"time"

	"goreels/internal/common"
	"goreels/internal/errors"
	"goreels/internal/logging"
	"goreels/internal/metrics"
	"goreels/internal/reel"
	"goreels/internal/store"
)

type Ledger struct {
	store   store.RecordStore
	cascade *Cascader
	now     func() time.Time
}

func New(s store.RecordStore, cascade *Cascader) *Ledger {
	return &Ledger{store: s, cascade: cascade, now: time.Now}
}

// WithStore returns a ledger writing through tx, so its adjustments commit or
// roll back with the caller's transaction.
func (l *Ledger) WithStore(tx store.RecordStore) *Ledger {
	cp := *l
	cp.store = tx
	return &cp
}

// OnCreate counts a new item in its category and indexes it under its author.
func (l *Ledger) OnCreate(ctx context.Context, item *reel.ContentItem) error {
	if item.IsActive {
		if err := l.store.IncrementCategory(ctx, item.Category, 1); err != nil {
			return fmt.Errorf("ledger create: %w", err)
		}
		metrics.LedgerAdjustments.WithLabelValues("create").Inc()
	}
	if err := l.store.AddUserContent(ctx, item.AuthorID, item.ID); err != nil {
		return fmt.Errorf("ledger create: %w", err)
	}
	return nil
}

// OnPermanentDelete retires an item from the counters ahead of its hard
// delete and returns the item as it stood. The conditional deactivate decides
// who decrements: if reconciliation already deactivated the item, its count
// is already gone.
//
// The per-user saved and liked indexes are not touched here; call Cascade
// once the delete has committed.
func (l *Ledger) OnPermanentDelete(ctx context.Context, contentID string) (*reel.ContentItem, error) {
	changed, err := l.store.Deactivate(ctx, contentID, common.ReasonRemoved, l.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("ledger delete: %w", err)
	}

	item, err := l.store.GetContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("ledger delete: %w", err)
	}

	if changed {
		if err := l.store.IncrementCategory(ctx, item.Category, -1); err != nil {
			return nil, fmt.Errorf("ledger delete: %w", err)
		}
		metrics.LedgerAdjustments.WithLabelValues("delete").Inc()
	}
	if err := l.store.RemoveUserContent(ctx, item.AuthorID, item.ID); err != nil {
		return nil, fmt.Errorf("ledger delete: %w", err)
	}
	return item, nil
}

// Cascade queues removal of contentID from every user's saved and liked
// indexes. It never fails the caller: work that cannot be queued or applied
// is persisted as cleanup tasks.
func (l *Ledger) Cascade(ctx context.Context, contentID string) {
	if l.cascade == nil {
		l.cascadeNow(ctx, contentID)
		return
	}
	l.cascade.Enqueue(ctx, contentID)
}

func (l *Ledger) cascadeNow(ctx context.Context, contentID string) {
	if err := runCascade(ctx, l.store, contentID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("reel_id", contentID).Msg("delete cascade incomplete")
	}
}

// OnCategoryChange moves an item between categories in one transaction. The
// update only applies if the item is still at item.Version; a stale item
// yields a Conflict and nothing is written.
func (l *Ledger) OnCategoryChange(ctx context.Context, item *reel.ContentItem, oldCat, newCat common.Category) error {
	if oldCat == newCat {
		return nil
	}
	if !newCat.IsValid() {
		return errors.InvalidArgumentf("unknown category %q", newCat)
	}

	return l.store.WithTx(ctx, func(tx store.RecordStore) error {
		if err := tx.UpdateCategory(ctx, item.ID, item.Version, newCat); err != nil {
			return err
		}
		if !item.IsActive {
			return nil
		}
		if err := tx.IncrementCategory(ctx, oldCat, -1); err != nil {
			return fmt.Errorf("ledger category change: %w", err)
		}
		if err := tx.IncrementCategory(ctx, newCat, 1); err != nil {
			return fmt.Errorf("ledger category change: %w", err)
		}
		metrics.LedgerAdjustments.WithLabelValues("category_change").Inc()
		return nil
	})
}

// OnInvalidate is the reconciliation side of the ledger: one decrement for an
// item that just went inactive.
func (l *Ledger) OnInvalidate(ctx context.Context, item *reel.ContentItem) error {
	if err := l.store.IncrementCategory(ctx, item.Category, -1); err != nil {
		return fmt.Errorf("ledger invalidate: %w", err)
	}
	metrics.LedgerAdjustments.WithLabelValues("invalidate").Inc()
	return nil
}

// RecountReport is the outcome of a recount sweep.
type RecountReport struct {
	Counts      map[common.Category]int64 `json:"counts"`
	Corrections map[common.Category]int64 `json:"corrections"` // stored minus actual, only where they differed
}

// Recount recomputes every category count from the active items and repairs
// drift. Writes racing with the sweep may be overwritten; the next sweep
// converges.
func (l *Ledger) Recount(ctx context.Context) (*RecountReport, error) {
	report := &RecountReport{
		Counts:      make(map[common.Category]int64),
		Corrections: make(map[common.Category]int64),
	}

	for _, cat := range common.Categories {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		actual, err := l.store.CountContent(ctx, store.Filter{ActiveOnly: true, Category: cat})
		if err != nil {
			return report, fmt.Errorf("recount %s: %w", cat, err)
		}
		stored, err := l.store.CategoryCount(ctx, cat)
		if err != nil {
			return report, fmt.Errorf("recount %s: %w", cat, err)
		}

		report.Counts[cat] = actual
		if stored == actual {
			continue
		}

		if err := l.store.SetCategoryCount(ctx, cat, actual); err != nil {
			return report, fmt.Errorf("recount %s: %w", cat, err)
		}
		report.Corrections[cat] = stored - actual
		metrics.LedgerAnomalies.WithLabelValues(string(cat)).Inc()
		logging.Warn().Str("category", string(cat)).Int64("stored", stored).Int64("actual", actual).
			Msg("category counter drift corrected")
	}
	return report, nil
}

// CleanupReport is the outcome of a cleanup sweep.
type CleanupReport struct {
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

// RetryCleanups re-applies persisted cascade pulls. Successful tasks are
// deleted, failing ones have their attempt count bumped.
func (l *Ledger) RetryCleanups(ctx context.Context, limit int) (*CleanupReport, error) {
	tasks, err := l.store.ListCleanupTasks(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list cleanup tasks: %w", err)
	}

	report := &CleanupReport{}
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var pullErr error
		if task.UserID == "" {
			// Per-user failures are persisted as their own tasks.
			pullErr = runCascade(ctx, l.store, task.ContentID)
			if errors.Is(pullErr, errors.ErrPartialFailure) {
				pullErr = nil
			}
		} else {
			pullErr = l.store.PullReference(ctx, task.UserID, task.ContentID)
		}

		if pullErr != nil {
			report.Failed++
			if err := l.store.BumpCleanupTask(ctx, task.ID, pullErr.Error()); err != nil {
				logging.Warn().Err(err).Int64("task_id", task.ID).Msg("failed to update cleanup task")
			}
			continue
		}

		if err := l.store.DeleteCleanupTask(ctx, task.ID); err != nil {
			logging.Warn().Err(err).Int64("task_id", task.ID).Msg("failed to delete cleanup task")
			continue
		}
		report.Resolved++
		metrics.CleanupTasksResolved.Inc()
	}
	return report, nil
}
