package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goreels/internal/common"
	"goreels/internal/errors"
	"goreels/internal/reel"
	"goreels/internal/store"
)

func TestBuildQuery_Defaults(t *testing.T) {
	q, page, limit, err := BuildQuery(Request{})
	require.NoError(t, err)

	assert.Equal(t, DefaultPage, page)
	assert.Equal(t, DefaultLimit, limit)
	assert.Equal(t, 0, q.Skip)
	assert.Equal(t, DefaultLimit, q.Limit)
	assert.Equal(t, store.SortNewest, q.Sort)
	assert.True(t, q.Filter.ActiveOnly)
	require.NotNil(t, q.Filter.Approved)
	assert.True(t, *q.Filter.Approved)
	assert.True(t, q.Filter.ExcludeNSFW)
}

func TestBuildQuery_LimitIsCapped(t *testing.T) {
	q, _, limit, err := BuildQuery(Request{Page: 3, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, limit)
	assert.Equal(t, 2*MaxLimit, q.Skip)
}

func TestBuildQuery_Rejects(t *testing.T) {
	cases := map[string]Request{
		"negative page":    {Page: -1},
		"negative limit":   {Limit: -5},
		"unknown sort":     {Sort: "random"},
		"unknown category": {Category: "cooking"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := BuildQuery(req)
			assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestBuildQuery_Filters(t *testing.T) {
	q, _, _, err := BuildQuery(Request{
		Sort:            SortTrending,
		Category:        "Music",
		Tags:            []string{"#Dance", "fun"},
		AuthorID:        "a1",
		Search:          "  cats ",
		IncludeNSFW:     true,
		ModerationQueue: true,
	})
	require.NoError(t, err)

	assert.Equal(t, store.SortTrending, q.Sort)
	assert.Equal(t, common.CategoryMusic, q.Filter.Category)
	assert.Equal(t, []string{"dance", "fun"}, q.Filter.AnyTags)
	assert.Equal(t, "a1", q.Filter.AuthorID)
	assert.Equal(t, "cats", q.Filter.Text)
	assert.False(t, q.Filter.ExcludeNSFW)
	assert.False(t, *q.Filter.Approved)
}

func TestBuildQuery_PopularIsNewest(t *testing.T) {
	q, _, _, err := BuildQuery(Request{Sort: SortPopular})
	require.NoError(t, err)
	assert.Equal(t, store.SortNewest, q.Sort)

	q, _, _, err = BuildQuery(Request{Sort: SortOldest})
	require.NoError(t, err)
	assert.Equal(t, store.SortOldest, q.Sort)
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 45)
	assert.Equal(t, Pagination{Page: 2, Limit: 20, Total: 45, TotalPages: 3, HasNext: true, HasPrev: true}, p)

	p = NewPagination(1, 20, 0)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, p.HasNext)
	assert.False(t, p.HasPrev)

	p = NewPagination(3, 20, 45)
	assert.False(t, p.HasNext)
}

func TestShape(t *testing.T) {
	now := time.Now()
	it := &reel.ContentItem{
		ID:       "r1",
		MediaRef: "abc",
		Likes:    []reel.Like{{ActorID: "alice", At: now}},
		Views:    []reel.View{{ActorID: "bob", At: now}, {ActorID: "carol", At: now}},
		Shares:   []reel.Share{{ActorID: "bob", At: now, Platform: common.PlatformOther}},
		Comments: []reel.Comment{{ActorID: "dave", At: now}},
	}

	out := Shape(it, "alice", map[string]bool{"r1": true})
	assert.Equal(t, 1, out.LikesCount)
	assert.Equal(t, 2, out.ViewsCount)
	assert.Equal(t, 1, out.SharesCount)
	assert.Equal(t, 1, out.CommentsCount)
	assert.True(t, out.IsLiked)
	assert.True(t, out.IsSaved)
	assert.Equal(t, "/media/abc", out.MediaURL)
	assert.Empty(t, out.ThumbnailURL)
	assert.NotNil(t, out.Tags)

	anon := Shape(it, "", map[string]bool{"r1": true})
	assert.False(t, anon.IsLiked)
	assert.False(t, anon.IsSaved)
}
