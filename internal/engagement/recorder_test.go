package engagement

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goreels/internal/common"
	"goreels/internal/errors"
	"goreels/internal/lock"
	"goreels/internal/reel"
	"goreels/internal/store"
	"goreels/internal/store/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T, opts ...Option) (*Recorder, *memstore.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := memstore.New()
	require.NoError(t, s.CreateContent(context.Background(), &reel.ContentItem{
		ID:         "r1",
		AuthorID:   "author",
		Category:   common.CategoryComedy,
		IsActive:   true,
		IsApproved: true,
		CreatedAt:  clock.Now(),
	}))

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewRecorder(s, lock.NewLocal(), opts...), s, clock
}

func TestToggleLike_IsItsOwnInverse(t *testing.T) {
	ctx := context.Background()
	r, s, _ := setup(t)

	res, err := r.ToggleLike(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, 1, res.LikeCount)

	res, err = r.ToggleLike(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.Equal(t, 0, res.LikeCount)

	item, _ := s.GetContent(ctx, "r1")
	assert.False(t, item.HasLike("alice"))
	liked, _ := s.ListLikedByUser(ctx, "alice")
	assert.Empty(t, liked)
}

func TestToggleLike_NotFound(t *testing.T) {
	ctx := context.Background()
	r, s, clock := setup(t)

	_, err := r.ToggleLike(ctx, "missing", "alice")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = s.Deactivate(ctx, "r1", common.ReasonMediaMissing, clock.Now())
	require.NoError(t, err)
	_, err = r.ToggleLike(ctx, "r1", "alice")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestToggleLike_RequiresActor(t *testing.T) {
	r, _, _ := setup(t)
	_, err := r.ToggleLike(context.Background(), "r1", "")
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestToggleLike_ConcurrentSameActor(t *testing.T) {
	ctx := context.Background()
	r, s, _ := setup(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.ToggleLike(ctx, "r1", "alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// An even number of toggles leaves no like behind.
	item, _ := s.GetContent(ctx, "r1")
	assert.Empty(t, item.Likes)
}

func TestRecordView_DedupWithinWindow(t *testing.T) {
	ctx := context.Background()
	r, _, clock := setup(t)

	res, err := r.RecordView(ctx, "r1", "alice", 3.5)
	require.NoError(t, err)
	assert.True(t, res.Counted)

	clock.Advance(23 * time.Hour)
	res, err = r.RecordView(ctx, "r1", "alice", 1)
	require.NoError(t, err)
	assert.False(t, res.Counted)
	assert.Equal(t, 1, res.ViewCount)
}

func TestRecordView_CountsAgainAfterWindow(t *testing.T) {
	ctx := context.Background()
	r, _, clock := setup(t)

	_, err := r.RecordView(ctx, "r1", "alice", 1)
	require.NoError(t, err)

	clock.Advance(24*time.Hour + time.Second)
	res, err := r.RecordView(ctx, "r1", "alice", 1)
	require.NoError(t, err)
	assert.True(t, res.Counted)
	assert.Equal(t, 2, res.ViewCount)
}

func TestRecordView_ConcurrentSameActorCountsOnce(t *testing.T) {
	ctx := context.Background()
	r, s, _ := setup(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.RecordView(ctx, "r1", "alice", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	item, _ := s.GetContent(ctx, "r1")
	assert.Len(t, item.Views, 1)
}

func TestRecordView_RejectsNegativeDuration(t *testing.T) {
	r, _, _ := setup(t)
	_, err := r.RecordView(context.Background(), "r1", "alice", -1)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestRecordShare(t *testing.T) {
	ctx := context.Background()
	r, _, _ := setup(t)

	_, err := r.RecordShare(ctx, "r1", "alice", common.SharePlatform("myspace"))
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	for i := 0; i < 2; i++ {
		res, err := r.RecordShare(ctx, "r1", "alice", common.PlatformWhatsApp)
		require.NoError(t, err)
		assert.Equal(t, i+1, res.ShareCount)
	}
}

func TestTrending_CrossesThresholdAndDecays(t *testing.T) {
	ctx := context.Background()
	r, s, clock := setup(t)

	// 16 likes = 48, not trending yet.
	for i := 0; i < 16; i++ {
		res, err := r.ToggleLike(ctx, "r1", fmt.Sprintf("actor-%d", i))
		require.NoError(t, err)
		assert.False(t, res.IsTrending)
	}

	// Two views bring it to exactly 50, still not trending.
	for _, a := range []string{"v1", "v2"} {
		res, err := r.RecordView(ctx, "r1", a, 1)
		require.NoError(t, err)
		assert.False(t, res.IsTrending)
	}

	res, err := r.RecordView(ctx, "r1", "v3", 1)
	require.NoError(t, err)
	assert.True(t, res.IsTrending)

	item, _ := s.GetContent(ctx, "r1")
	assert.True(t, item.IsTrending)
	assert.Equal(t, 51, r.ComputeEngagementScore(item, clock.Now()))

	clock.Advance(25 * time.Hour)
	trending, err := r.RefreshTrending(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, trending)

	item, _ = s.GetContent(ctx, "r1")
	assert.False(t, item.IsTrending)
}

func TestTrending_ConfigurableThreshold(t *testing.T) {
	scoring := reel.DefaultScoring()
	scoring.Threshold = 5
	r, _, _ := setup(t, WithScoring(scoring))

	res, err := r.RecordShare(context.Background(), "r1", "alice", common.PlatformInternal)
	require.NoError(t, err)
	assert.True(t, res.IsTrending) // 7 > 5
}

// conflictingStore fails the first n transactions with a Conflict.
type conflictingStore struct {
	store.RecordStore
	mu      sync.Mutex
	remain  int
	attempt int
}

func (c *conflictingStore) WithTx(ctx context.Context, fn func(tx store.RecordStore) error) error {
	c.mu.Lock()
	c.attempt++
	fail := c.remain > 0
	if fail {
		c.remain--
	}
	c.mu.Unlock()
	if fail {
		return errors.Conflict("deadlock")
	}
	return c.RecordStore.WithTx(ctx, fn)
}

func TestRetry_ConflictsAreRetried(t *testing.T) {
	_, s, clock := setup(t)
	cs := &conflictingStore{RecordStore: s, remain: 2}
	r := NewRecorder(cs, lock.NewLocal(), WithClock(clock.Now))
	r.backoff = 0

	res, err := r.ToggleLike(context.Background(), "r1", "alice")
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, 3, cs.attempt)
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	_, s, clock := setup(t)
	cs := &conflictingStore{RecordStore: s, remain: 10}
	r := NewRecorder(cs, lock.NewLocal(), WithClock(clock.Now), WithMaxRetries(2))
	r.backoff = 0

	_, err := r.ToggleLike(context.Background(), "r1", "alice")
	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.Equal(t, 3, cs.attempt)
}
