// Package store defines the record store contract the engine runs against.
//
// The record store is the single source of truth and the serialization point:
// every read-modify-write the engine needs is expressed as one primitive here
// (toggle, append-if-absent, floored increment, conditional deactivate) or run
// inside WithTx.
package store

import (
	"context"
	"time"

	"goreels/internal/common"
	"goreels/internal/reel"
)

// SortMode orders query results. Every mode breaks ties by id ascending.
type SortMode int

const (
	SortNewest SortMode = iota
	SortOldest
	SortTrending // is_trending desc, created_at desc
	SortID       // id asc, used for keyset sweeps
)

// Filter is a conjunction of conditions. Zero values mean "no condition".
type Filter struct {
	ActiveOnly  bool
	Approved    *bool
	ExcludeNSFW bool
	Category    common.Category
	AnyTags     []string // item carries at least one of these
	AuthorID    string
	Text        string // case-insensitive substring of title, description or any tag
	IDAfter     string // keyset cursor, id > IDAfter
}

// Query is a filtered, sorted, windowed find.
type Query struct {
	Filter Filter
	Sort   SortMode
	Skip   int
	Limit  int // 0 means no limit
	// Lean skips loading engagement logs. Stores may ignore it.
	Lean bool
}

// CleanupTask is a cascade pull that failed and waits for the cleanup sweep.
type CleanupTask struct {
	ID        int64
	ContentID string
	UserID    string
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentStore covers the content records and their engagement logs.
type ContentStore interface {
	CreateContent(ctx context.Context, item *reel.ContentItem) error
	// GetContent returns errors.ErrNotFound when the id is unknown.
	GetContent(ctx context.Context, id string) (*reel.ContentItem, error)
	FindContent(ctx context.Context, q Query) ([]*reel.ContentItem, error)
	CountContent(ctx context.Context, f Filter) (int64, error)
	DeleteContent(ctx context.Context, id string) error

	// ToggleLike removes the actor's like if present, adds one stamped at
	// otherwise, and mirrors the change in the actor's liked index. It fails
	// with NotFound unless the item is active.
	ToggleLike(ctx context.Context, contentID, actorID string, at time.Time) (liked bool, err error)
	// AppendViewIfAbsent appends v unless the actor already has a view
	// stamped after since. Fails with NotFound unless the item is active.
	AppendViewIfAbsent(ctx context.Context, contentID string, v reel.View, since time.Time) (counted bool, err error)
	// AppendShare always appends. Fails with NotFound unless the item is active.
	AppendShare(ctx context.Context, contentID string, s reel.Share) error
	SetTrending(ctx context.Context, contentID string, trending bool) error

	// Deactivate flips an active item to inactive. It reports changed=false
	// for an item that is already inactive and NotFound for an unknown id.
	Deactivate(ctx context.Context, contentID string, reason common.InactiveReason, at time.Time) (changed bool, err error)
	// UpdateCategory succeeds only if the stored version equals expectedVersion,
	// and returns Conflict otherwise. The version is bumped on success.
	UpdateCategory(ctx context.Context, contentID string, expectedVersion int64, category common.Category) error
}

// CounterStore covers the denormalized category counters.
type CounterStore interface {
	// IncrementCategory atomically adds delta (upsert from zero), flooring
	// the result at zero.
	IncrementCategory(ctx context.Context, category common.Category, delta int64) error
	CategoryCount(ctx context.Context, category common.Category) (int64, error)
	SetCategoryCount(ctx context.Context, category common.Category, count int64) error
}

// IndexStore covers the per-user indexes.
type IndexStore interface {
	AddUserContent(ctx context.Context, userID, contentID string) error
	RemoveUserContent(ctx context.Context, userID, contentID string) error
	ListUserContent(ctx context.Context, userID string) ([]string, error)

	SaveForUser(ctx context.Context, userID, contentID string) error
	UnsaveForUser(ctx context.Context, userID, contentID string) error
	// SavedAmong returns which of contentIDs the user has saved.
	SavedAmong(ctx context.Context, userID string, contentIDs []string) (map[string]bool, error)
	ListLikedByUser(ctx context.Context, userID string) ([]string, error)

	// UsersReferencing lists users whose saved or liked index holds contentID.
	UsersReferencing(ctx context.Context, contentID string) ([]string, error)
	// PullReference removes contentID from the user's saved and liked indexes.
	PullReference(ctx context.Context, userID, contentID string) error
}

// CleanupStore persists failed cascade pulls for the later cleanup sweep.
type CleanupStore interface {
	AddCleanupTask(ctx context.Context, contentID, userID, lastError string) error
	ListCleanupTasks(ctx context.Context, limit int) ([]CleanupTask, error)
	DeleteCleanupTask(ctx context.Context, id int64) error
	BumpCleanupTask(ctx context.Context, id int64, lastError string) error
}

// RecordStore is the full record store. WithTx runs fn against a
// transactional view; fn's error rolls every write back.
type RecordStore interface {
	ContentStore
	CounterStore
	IndexStore
	CleanupStore

	WithTx(ctx context.Context, fn func(tx RecordStore) error) error
	Ping(ctx context.Context) error
}

// Bool is a helper for Filter.Approved.
func Bool(b bool) *bool {
	return &b
}
