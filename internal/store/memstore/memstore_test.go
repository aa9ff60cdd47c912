package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goreels/internal/common"
	"goreels/internal/errors"
	"goreels/internal/reel"
	"goreels/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, id string, mutate func(*reel.ContentItem)) {
	t.Helper()
	item := &reel.ContentItem{
		ID:         id,
		AuthorID:   "author",
		Category:   common.CategoryComedy,
		MediaRef:   "media/" + id,
		IsActive:   true,
		IsApproved: true,
		CreatedAt:  t0,
	}
	if mutate != nil {
		mutate(item)
	}
	require.NoError(t, s.CreateContent(context.Background(), item))
}

func TestGetContent_NotFound(t *testing.T) {
	s := New()
	_, err := s.GetContent(context.Background(), "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestCreateContent_DuplicateIsConflict(t *testing.T) {
	s := New()
	seed(t, s, "r1", nil)
	err := s.CreateContent(context.Background(), &reel.ContentItem{ID: "r1"})
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestToggleLike_MaintainsLikedIndex(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "r1", nil)

	liked, err := s.ToggleLike(ctx, "r1", "u1", t0)
	require.NoError(t, err)
	assert.True(t, liked)

	ids, _ := s.ListLikedByUser(ctx, "u1")
	assert.Equal(t, []string{"r1"}, ids)

	liked, err = s.ToggleLike(ctx, "r1", "u1", t0)
	require.NoError(t, err)
	assert.False(t, liked)

	ids, _ = s.ListLikedByUser(ctx, "u1")
	assert.Empty(t, ids)
	item, _ := s.GetContent(ctx, "r1")
	assert.Empty(t, item.Likes)
}

func TestToggleLike_InactiveIsNotFound(t *testing.T) {
	s := New()
	seed(t, s, "r1", func(c *reel.ContentItem) { c.IsActive = false })
	_, err := s.ToggleLike(context.Background(), "r1", "u1", t0)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAppendViewIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "r1", nil)

	counted, err := s.AppendViewIfAbsent(ctx, "r1", reel.View{ActorID: "u1", At: t0}, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, counted)

	later := t0.Add(time.Hour)
	counted, err = s.AppendViewIfAbsent(ctx, "r1", reel.View{ActorID: "u1", At: later}, later.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.False(t, counted)

	muchLater := t0.Add(25 * time.Hour)
	counted, err = s.AppendViewIfAbsent(ctx, "r1", reel.View{ActorID: "u1", At: muchLater}, muchLater.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, counted)
}

func TestDeactivate_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "r1", nil)

	changed, err := s.Deactivate(ctx, "r1", common.ReasonMediaMissing, t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Deactivate(ctx, "r1", common.ReasonMediaMissing, t0)
	require.NoError(t, err)
	assert.False(t, changed)

	item, _ := s.GetContent(ctx, "r1")
	assert.False(t, item.IsActive)
	assert.Equal(t, common.ReasonMediaMissing, item.InactiveReason)
	require.NotNil(t, item.InactivatedAt)
}

func TestUpdateCategory_VersionCheck(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "r1", nil)

	item, _ := s.GetContent(ctx, "r1")
	require.NoError(t, s.UpdateCategory(ctx, "r1", item.Version, common.CategoryMusic))

	err := s.UpdateCategory(ctx, "r1", item.Version, common.CategoryDance)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	got, _ := s.GetContent(ctx, "r1")
	assert.Equal(t, common.CategoryMusic, got.Category)
}

func TestIncrementCategory_FloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.IncrementCategory(ctx, common.CategoryMusic, 2))
	require.NoError(t, s.IncrementCategory(ctx, common.CategoryMusic, -5))
	n, _ := s.CategoryCount(ctx, common.CategoryMusic)
	assert.Equal(t, int64(0), n)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "r1", nil)

	err := s.WithTx(ctx, func(tx store.RecordStore) error {
		if _, err := tx.Deactivate(ctx, "r1", common.ReasonRemoved, t0); err != nil {
			return err
		}
		if err := tx.IncrementCategory(ctx, common.CategoryComedy, 1); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	item, _ := s.GetContent(ctx, "r1")
	assert.True(t, item.IsActive)
	n, _ := s.CategoryCount(ctx, common.CategoryComedy)
	assert.Equal(t, int64(0), n)
}

func TestWithTx_Commits(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithTx(ctx, func(tx store.RecordStore) error {
		if err := tx.CreateContent(ctx, &reel.ContentItem{ID: "r1", IsActive: true}); err != nil {
			return err
		}
		return tx.IncrementCategory(ctx, common.CategoryFood, 1)
	})
	require.NoError(t, err)

	_, err = s.GetContent(ctx, "r1")
	assert.NoError(t, err)
	n, _ := s.CategoryCount(ctx, common.CategoryFood)
	assert.Equal(t, int64(1), n)
}

func TestFindContent_FiltersAndSort(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "a", func(c *reel.ContentItem) { c.CreatedAt = t0.Add(-2 * time.Hour); c.Tags = []string{"cats"} })
	seed(t, s, "b", func(c *reel.ContentItem) { c.CreatedAt = t0.Add(-time.Hour); c.IsTrending = true })
	seed(t, s, "c", func(c *reel.ContentItem) { c.CreatedAt = t0; c.IsNSFW = true })
	seed(t, s, "d", func(c *reel.ContentItem) { c.CreatedAt = t0; c.IsActive = false })
	seed(t, s, "e", func(c *reel.ContentItem) { c.CreatedAt = t0; c.Title = "Funny Cats compilation" })

	ids := func(items []*reel.ContentItem) []string {
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.ID
		}
		return out
	}

	got, err := s.FindContent(ctx, store.Query{Filter: store.Filter{ActiveOnly: true}, Sort: store.SortNewest})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "e", "b", "a"}, ids(got))

	got, _ = s.FindContent(ctx, store.Query{Filter: store.Filter{ActiveOnly: true, ExcludeNSFW: true}, Sort: store.SortTrending})
	assert.Equal(t, []string{"b", "e", "a"}, ids(got))

	got, _ = s.FindContent(ctx, store.Query{Filter: store.Filter{ActiveOnly: true, Text: "CATS"}, Sort: store.SortOldest})
	assert.Equal(t, []string{"a", "e"}, ids(got))

	got, _ = s.FindContent(ctx, store.Query{Filter: store.Filter{AnyTags: []string{"dogs", "cats"}}})
	assert.Equal(t, []string{"a"}, ids(got))

	got, _ = s.FindContent(ctx, store.Query{Filter: store.Filter{IDAfter: "b"}, Sort: store.SortID, Limit: 2})
	assert.Equal(t, []string{"c", "d"}, ids(got))

	got, _ = s.FindContent(ctx, store.Query{Filter: store.Filter{ActiveOnly: true}, Sort: store.SortNewest, Skip: 2, Limit: 5})
	assert.Equal(t, []string{"b", "a"}, ids(got))

	n, _ := s.CountContent(ctx, store.Filter{ActiveOnly: true})
	assert.Equal(t, int64(4), n)
}

func TestUsersReferencingAndPull(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "r1", nil)

	require.NoError(t, s.SaveForUser(ctx, "u1", "r1"))
	_, err := s.ToggleLike(ctx, "r1", "u2", t0)
	require.NoError(t, err)
	require.NoError(t, s.SaveForUser(ctx, "u2", "r1"))

	users, _ := s.UsersReferencing(ctx, "r1")
	assert.Equal(t, []string{"u1", "u2"}, users)

	require.NoError(t, s.PullReference(ctx, "u2", "r1"))
	users, _ = s.UsersReferencing(ctx, "r1")
	assert.Equal(t, []string{"u1"}, users)

	saved, _ := s.SavedAmong(ctx, "u1", []string{"r1", "r2"})
	assert.Equal(t, map[string]bool{"r1": true}, saved)
}

func TestCleanupTasks(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.AddCleanupTask(ctx, "r1", "u1", "timeout"))
	require.NoError(t, s.AddCleanupTask(ctx, "r1", "u2", "timeout"))

	tasks, _ := s.ListCleanupTasks(ctx, 10)
	require.Len(t, tasks, 2)

	require.NoError(t, s.BumpCleanupTask(ctx, tasks[0].ID, "again"))
	require.NoError(t, s.DeleteCleanupTask(ctx, tasks[1].ID))

	tasks, _ = s.ListCleanupTasks(ctx, 10)
	require.Len(t, tasks, 1)
	assert.Equal(t, 1, tasks[0].Attempts)
	assert.Equal(t, "again", tasks[0].LastError)
}
