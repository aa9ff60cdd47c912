// Package engagement records likes, views and shares against reels and keeps
// the trending flag in step with them.
package engagement

import (
	"context"
	"time"

	"goreels/internal/common"
	"goreels/internal/errors"
	"goreels/internal/lock"
	"goreels/internal/logging"
	"goreels/internal/metrics"
	"goreels/internal/reel"
	"goreels/internal/store"
)

const (
	DefaultViewWindow = 24 * time.Hour
	DefaultMaxRetries = 3
)

type LikeResult struct {
	Liked      bool `json:"liked"`
	LikeCount  int  `json:"likeCount"`
	IsTrending bool `json:"isTrending"`
}

type ViewResult struct {
	Counted    bool `json:"counted"`
	ViewCount  int  `json:"viewCount"`
	IsTrending bool `json:"isTrending"`
}

type ShareResult struct {
	ShareCount int  `json:"shareCount"`
	IsTrending bool `json:"isTrending"`
}

// Recorder is the only writer of engagement logs and of IsTrending.
type Recorder struct {
	store      store.RecordStore
	locker     lock.Locker
	scoring    reel.Scoring
	viewWindow time.Duration
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
}

type Option func(*Recorder)

func WithScoring(s reel.Scoring) Option {
	return func(r *Recorder) { r.scoring = s }
}

func WithViewWindow(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.viewWindow = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(r *Recorder) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func NewRecorder(s store.RecordStore, l lock.Locker, opts ...Option) *Recorder {
	r := &Recorder{
		store:      s,
		locker:     l,
		scoring:    reel.DefaultScoring(),
		viewWindow: DefaultViewWindow,
		maxRetries: DefaultMaxRetries,
		backoff:    10 * time.Millisecond,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) clock() time.Time {
	return r.now().UTC()
}

// ToggleLike removes the actor's like if present and adds it otherwise.
func (r *Recorder) ToggleLike(ctx context.Context, contentID, actorID string) (*LikeResult, error) {
	if err := requireIDs(contentID, actorID); err != nil {
		return nil, err
	}

	var res LikeResult
	err := r.serialized(ctx, "like", contentID, actorID, func(tx store.RecordStore) error {
		now := r.clock()
		liked, err := tx.ToggleLike(ctx, contentID, actorID, now)
		if err != nil {
			return err
		}
		item, err := tx.GetContent(ctx, contentID)
		if err != nil {
			return err
		}
		trending, err := r.refresh(ctx, tx, item, now)
		if err != nil {
			return err
		}
		res = LikeResult{Liked: liked, LikeCount: len(item.Likes), IsTrending: trending}
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := "like"
	if !res.Liked {
		kind = "unlike"
	}
	metrics.EngagementEvents.WithLabelValues(kind, "ok").Inc()
	return &res, nil
}

// RecordView counts a view unless the actor already viewed the item inside
// the dedup window.
func (r *Recorder) RecordView(ctx context.Context, contentID, actorID string, watchSeconds float64) (*ViewResult, error) {
	if err := requireIDs(contentID, actorID); err != nil {
		return nil, err
	}
	if watchSeconds < 0 {
		return nil, errors.InvalidArgument("watch duration must not be negative")
	}

	var res ViewResult
	err := r.serialized(ctx, "view", contentID, actorID, func(tx store.RecordStore) error {
		now := r.clock()
		view := reel.View{ActorID: actorID, At: now, WatchSeconds: watchSeconds}
		counted, err := tx.AppendViewIfAbsent(ctx, contentID, view, now.Add(-r.viewWindow))
		if err != nil {
			return err
		}
		item, err := tx.GetContent(ctx, contentID)
		if err != nil {
			return err
		}
		trending := item.IsTrending
		if counted {
			if trending, err = r.refresh(ctx, tx, item, now); err != nil {
				return err
			}
		}
		res = ViewResult{Counted: counted, ViewCount: len(item.Views), IsTrending: trending}
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := "counted"
	if !res.Counted {
		outcome = "deduplicated"
	}
	metrics.EngagementEvents.WithLabelValues("view", outcome).Inc()
	return &res, nil
}

// RecordShare always appends. Shares need no per-actor serialization.
func (r *Recorder) RecordShare(ctx context.Context, contentID, actorID string, platform common.SharePlatform) (*ShareResult, error) {
	if err := requireIDs(contentID, actorID); err != nil {
		return nil, err
	}
	if !platform.IsValid() {
		return nil, errors.InvalidArgumentf("unknown share platform %q", platform)
	}

	var res ShareResult
	err := r.withRetry(ctx, "share", func() error {
		return r.store.WithTx(ctx, func(tx store.RecordStore) error {
			now := r.clock()
			if err := tx.AppendShare(ctx, contentID, reel.Share{ActorID: actorID, At: now, Platform: platform}); err != nil {
				return err
			}
			item, err := tx.GetContent(ctx, contentID)
			if err != nil {
				return err
			}
			trending, err := r.refresh(ctx, tx, item, now)
			if err != nil {
				return err
			}
			res = ShareResult{ShareCount: len(item.Shares), IsTrending: trending}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.EngagementEvents.WithLabelValues("share", "ok").Inc()
	return &res, nil
}

// ComputeEngagementScore is the weighted event count trailing asOf.
func (r *Recorder) ComputeEngagementScore(item *reel.ContentItem, asOf time.Time) int {
	return r.scoring.Score(item, asOf)
}

// RefreshTrending recomputes the flag for one item. It is also the hook for
// engagement written by other services, such as comments.
func (r *Recorder) RefreshTrending(ctx context.Context, contentID string) (bool, error) {
	var trending bool
	err := r.withRetry(ctx, "refresh", func() error {
		return r.store.WithTx(ctx, func(tx store.RecordStore) error {
			item, err := tx.GetContent(ctx, contentID)
			if err != nil {
				return err
			}
			if !item.IsActive {
				return errors.NotFoundf("content %s not found", contentID)
			}
			trending, err = r.refresh(ctx, tx, item, r.clock())
			return err
		})
	})
	return trending, err
}

// refresh writes IsTrending only when it changes.
func (r *Recorder) refresh(ctx context.Context, tx store.RecordStore, item *reel.ContentItem, now time.Time) (bool, error) {
	score := r.scoring.Score(item, now)
	trending := r.scoring.IsTrending(score)
	if trending == item.IsTrending {
		return trending, nil
	}

	if err := tx.SetTrending(ctx, item.ID, trending); err != nil {
		return false, err
	}
	item.IsTrending = trending

	to := "off"
	if trending {
		to = "on"
	}
	metrics.TrendingTransitions.WithLabelValues(to).Inc()
	logging.Ctx(ctx).Debug().Str("reel_id", item.ID).Int("score", score).Bool("trending", trending).Msg("trending flag changed")
	return trending, nil
}

// serialized holds the (content, actor) lock around a retried transaction.
func (r *Recorder) serialized(ctx context.Context, kind, contentID, actorID string, fn func(tx store.RecordStore) error) error {
	unlock, err := r.locker.Lock(ctx, contentID+":"+actorID)
	if err != nil {
		metrics.EngagementEvents.WithLabelValues(kind, "lock_failed").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.UpstreamUnavailable("engagement lock unavailable").WithCause(err)
	}
	defer unlock()

	return r.withRetry(ctx, kind, func() error {
		return r.store.WithTx(ctx, fn)
	})
}

// withRetry retries Conflict errors up to maxRetries times with linear backoff.
func (r *Recorder) withRetry(ctx context.Context, kind string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, errors.ErrConflict) || attempt >= r.maxRetries {
			if !errors.Is(err, errors.ErrNotFound) && !errors.Is(err, errors.ErrInvalidArgument) {
				metrics.EngagementEvents.WithLabelValues(kind, "error").Inc()
			}
			return err
		}

		metrics.EngagementConflictRetries.Inc()
		logging.Ctx(ctx).Debug().Err(err).Str("kind", kind).Int("attempt", attempt+1).Msg("retrying engagement write")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * r.backoff):
		}
	}
}

func requireIDs(contentID, actorID string) error {
	if contentID == "" {
		return errors.InvalidArgument("content id is required")
	}
	if actorID == "" {
		return errors.InvalidArgument("actor id is required")
	}
	return nil
}
