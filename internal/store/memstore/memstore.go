// Package memstore is an in-process store.RecordStore used for local runs and tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"goreels/internal/common"
	"goreels/internal/errors"
	"goreels/internal/reel"
	"goreels/internal/store"
)

type state struct {
	items    map[string]*reel.ContentItem
	counters map[common.Category]int64
	authored map[string]map[string]struct{}
	saved    map[string]map[string]struct{}
	liked    map[string]map[string]struct{}
	tasks    map[int64]store.CleanupTask
	nextTask int64
}

func newState() *state {
	return &state{
		items:    make(map[string]*reel.ContentItem),
		counters: make(map[common.Category]int64),
		authored: make(map[string]map[string]struct{}),
		saved:    make(map[string]map[string]struct{}),
		liked:    make(map[string]map[string]struct{}),
		tasks:    make(map[int64]store.CleanupTask),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for id, it := range s.items {
		cp.items[id] = it.Clone()
	}
	for c, n := range s.counters {
		cp.counters[c] = n
	}
	copySets(cp.authored, s.authored)
	copySets(cp.saved, s.saved)
	copySets(cp.liked, s.liked)
	for id, t := range s.tasks {
		cp.tasks[id] = t
	}
	cp.nextTask = s.nextTask
	return cp
}

func copySets(dst, src map[string]map[string]struct{}) {
	for k, set := range src {
		m := make(map[string]struct{}, len(set))
		for v := range set {
			m[v] = struct{}{}
		}
		dst[k] = m
	}
}

// Store guards a state with one mutex. Every operation, including a whole
// WithTx callback, is serialized.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

func (s *Store) lock() (*view, func()) {
	s.mu.Lock()
	return &view{st: s.st, now: s.now}, s.mu.Unlock
}

// WithTx runs fn against a private copy of the state and swaps it in only if
// fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.RecordStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &view{st: s.st.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) CreateContent(ctx context.Context, item *reel.ContentItem) error {
	v, unlock := s.lock()
	defer unlock()
	return v.CreateContent(ctx, item)
}

func (s *Store) GetContent(ctx context.Context, id string) (*reel.ContentItem, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.GetContent(ctx, id)
}

func (s *Store) FindContent(ctx context.Context, q store.Query) ([]*reel.ContentItem, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.FindContent(ctx, q)
}

func (s *Store) CountContent(ctx context.Context, f store.Filter) (int64, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.CountContent(ctx, f)
}

func (s *Store) DeleteContent(ctx context.Context, id string) error {
	v, unlock := s.lock()
	defer unlock()
	return v.DeleteContent(ctx, id)
}

func (s *Store) ToggleLike(ctx context.Context, contentID, actorID string, at time.Time) (bool, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.ToggleLike(ctx, contentID, actorID, at)
}

func (s *Store) AppendViewIfAbsent(ctx context.Context, contentID string, vw reel.View, since time.Time) (bool, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.AppendViewIfAbsent(ctx, contentID, vw, since)
}

func (s *Store) AppendShare(ctx context.Context, contentID string, sh reel.Share) error {
	v, unlock := s.lock()
	defer unlock()
	return v.AppendShare(ctx, contentID, sh)
}

func (s *Store) SetTrending(ctx context.Context, contentID string, trending bool) error {
	v, unlock := s.lock()
	defer unlock()
	return v.SetTrending(ctx, contentID, trending)
}

func (s *Store) Deactivate(ctx context.Context, contentID string, reason common.InactiveReason, at time.Time) (bool, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.Deactivate(ctx, contentID, reason, at)
}

func (s *Store) UpdateCategory(ctx context.Context, contentID string, expectedVersion int64, category common.Category) error {
	v, unlock := s.lock()
	defer unlock()
	return v.UpdateCategory(ctx, contentID, expectedVersion, category)
}

func (s *Store) IncrementCategory(ctx context.Context, category common.Category, delta int64) error {
	v, unlock := s.lock()
	defer unlock()
	return v.IncrementCategory(ctx, category, delta)
}

func (s *Store) CategoryCount(ctx context.Context, category common.Category) (int64, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.CategoryCount(ctx, category)
}

func (s *Store) SetCategoryCount(ctx context.Context, category common.Category, count int64) error {
	v, unlock := s.lock()
	defer unlock()
	return v.SetCategoryCount(ctx, category, count)
}

func (s *Store) AddUserContent(ctx context.Context, userID, contentID string) error {
	v, unlock := s.lock()
	defer unlock()
	return v.AddUserContent(ctx, userID, contentID)
}

func (s *Store) RemoveUserContent(ctx context.Context, userID, contentID string) error {
	v, unlock := s.lock()
	defer unlock()
	return v.RemoveUserContent(ctx, userID, contentID)
}

func (s *Store) ListUserContent(ctx context.Context, userID string) ([]string, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.ListUserContent(ctx, userID)
}

func (s *Store) SaveForUser(ctx context.Context, userID, contentID string) error {
	v, unlock := s.lock()
	defer unlock()
	return v.SaveForUser(ctx, userID, contentID)
}

func (s *Store) UnsaveForUser(ctx context.Context, userID, contentID string) error {
	v, unlock := s.lock()
	defer unlock()
	return v.UnsaveForUser(ctx, userID, contentID)
}

func (s *Store) SavedAmong(ctx context.Context, userID string, contentIDs []string) (map[string]bool, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.SavedAmong(ctx, userID, contentIDs)
}

func (s *Store) ListLikedByUser(ctx context.Context, userID string) ([]string, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.ListLikedByUser(ctx, userID)
}

func (s *Store) UsersReferencing(ctx context.Context, contentID string) ([]string, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.UsersReferencing(ctx, contentID)
}

func (s *Store) PullReference(ctx context.Context, userID, contentID string) error {
	v, unlock := s.lock()
	defer unlock()
	return v.PullReference(ctx, userID, contentID)
}

func (s *Store) AddCleanupTask(ctx context.Context, contentID, userID, lastError string) error {
	v, unlock := s.lock()
	defer unlock()
	return v.AddCleanupTask(ctx, contentID, userID, lastError)
}

func (s *Store) ListCleanupTasks(ctx context.Context, limit int) ([]store.CleanupTask, error) {
	v, unlock := s.lock()
	defer unlock()
	return v.ListCleanupTasks(ctx, limit)
}

func (s *Store) DeleteCleanupTask(ctx context.Context, id int64) error {
	v, unlock := s.lock()
	defer unlock()
	return v.DeleteCleanupTask(ctx, id)
}

func (s *Store) BumpCleanupTask(ctx context.Context, id int64, lastError string) error {
	v, unlock := s.lock()
	defer unlock()
	return v.BumpCleanupTask(ctx, id, lastError)
}

// view operates on a state without locking. The caller holds Store.mu.
type view struct {
	st  *state
	now func() time.Time
}

// WithTx inside a transaction runs fn in the same transaction.
func (v *view) WithTx(ctx context.Context, fn func(tx store.RecordStore) error) error {
	return fn(v)
}

func (v *view) Ping(ctx context.Context) error { return nil }

func (v *view) CreateContent(ctx context.Context, item *reel.ContentItem) error {
	if item.ID == "" {
		return errors.InvalidArgument("content id is required")
	}
	if _, ok := v.st.items[item.ID]; ok {
		return errors.Conflict("content already exists: " + item.ID)
	}
	v.st.items[item.ID] = item.Clone()
	return nil
}

func (v *view) get(id string) (*reel.ContentItem, error) {
	it, ok := v.st.items[id]
	if !ok {
		return nil, errors.NotFoundf("content %s not found", id)
	}
	return it, nil
}

func (v *view) getActive(id string) (*reel.ContentItem, error) {
	it, err := v.get(id)
	if err != nil {
		return nil, err
	}
	if !it.IsActive {
		return nil, errors.NotFoundf("content %s not found", id)
	}
	return it, nil
}

func (v *view) GetContent(ctx context.Context, id string) (*reel.ContentItem, error) {
	it, err := v.get(id)
	if err != nil {
		return nil, err
	}
	return it.Clone(), nil
}

func (v *view) FindContent(ctx context.Context, q store.Query) ([]*reel.ContentItem, error) {
	matched := v.filter(q.Filter)
	sortItems(matched, q.Sort)

	if q.Skip > 0 {
		if q.Skip >= len(matched) {
			return []*reel.ContentItem{}, nil
		}
		matched = matched[q.Skip:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*reel.ContentItem, len(matched))
	for i, it := range matched {
		out[i] = it.Clone()
	}
	return out, nil
}

func (v *view) CountContent(ctx context.Context, f store.Filter) (int64, error) {
	return int64(len(v.filter(f))), nil
}

func (v *view) filter(f store.Filter) []*reel.ContentItem {
	var out []*reel.ContentItem
	for _, it := range v.st.items {
		if Matches(it, f) {
			out = append(out, it)
		}
	}
	return out
}

// Matches reports whether item satisfies every condition of f.
func Matches(item *reel.ContentItem, f store.Filter) bool {
	if f.ActiveOnly && !item.IsActive {
		return false
	}
	if f.Approved != nil && item.IsApproved != *f.Approved {
		return false
	}
	if f.ExcludeNSFW && item.IsNSFW {
		return false
	}
	if f.Category != "" && item.Category != f.Category {
		return false
	}
	if f.AuthorID != "" && item.AuthorID != f.AuthorID {
		return false
	}
	if f.IDAfter != "" && item.ID <= f.IDAfter {
		return false
	}
	if len(f.AnyTags) > 0 && !hasAnyTag(item.Tags, f.AnyTags) {
		return false
	}
	if f.Text != "" && !matchesText(item, f.Text) {
		return false
	}
	return true
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func matchesText(item *reel.ContentItem, text string) bool {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(item.Title), needle) ||
		strings.Contains(strings.ToLower(item.Description), needle) {
		return true
	}
	for _, t := range item.Tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

func sortItems(items []*reel.ContentItem, mode store.SortMode) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch mode {
		case store.SortOldest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case store.SortTrending:
			if a.IsTrending != b.IsTrending {
				return a.IsTrending
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		case store.SortID:
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	})
}

func (v *view) DeleteContent(ctx context.Context, id string) error {
	if _, err := v.get(id); err != nil {
		return err
	}
	delete(v.st.items, id)
	return nil
}

func (v *view) ToggleLike(ctx context.Context, contentID, actorID string, at time.Time) (bool, error) {
	it, err := v.getActive(contentID)
	if err != nil {
		return false, err
	}
	liked := true
	for i, l := range it.Likes {
		if l.ActorID == actorID {
			it.Likes = append(it.Likes[:i:i], it.Likes[i+1:]...)
			liked = false
			break
		}
	}
	if liked {
		it.Likes = append(it.Likes, reel.Like{ActorID: actorID, At: at})
		addTo(v.st.liked, actorID, contentID)
	} else {
		removeFrom(v.st.liked, actorID, contentID)
	}
	v.touch(it)
	return liked, nil
}

func (v *view) AppendViewIfAbsent(ctx context.Context, contentID string, vw reel.View, since time.Time) (bool, error) {
	it, err := v.getActive(contentID)
	if err != nil {
		return false, err
	}
	for _, existing := range it.Views {
		if existing.ActorID == vw.ActorID && existing.At.After(since) {
			return false, nil
		}
	}
	it.Views = append(it.Views, vw)
	v.touch(it)
	return true, nil
}

func (v *view) AppendShare(ctx context.Context, contentID string, sh reel.Share) error {
	it, err := v.getActive(contentID)
	if err != nil {
		return err
	}
	it.Shares = append(it.Shares, sh)
	v.touch(it)
	return nil
}

func (v *view) SetTrending(ctx context.Context, contentID string, trending bool) error {
	it, err := v.get(contentID)
	if err != nil {
		return err
	}
	it.IsTrending = trending
	return nil
}

func (v *view) Deactivate(ctx context.Context, contentID string, reason common.InactiveReason, at time.Time) (bool, error) {
	it, err := v.get(contentID)
	if err != nil {
		return false, err
	}
	if !it.IsActive {
		return false, nil
	}
	it.IsActive = false
	it.InactiveReason = reason
	stamp := at
	it.InactivatedAt = &stamp
	v.touch(it)
	return true, nil
}

func (v *view) UpdateCategory(ctx context.Context, contentID string, expectedVersion int64, category common.Category) error {
	it, err := v.get(contentID)
	if err != nil {
		return err
	}
	if it.Version != expectedVersion {
		return errors.Conflict("content was modified concurrently")
	}
	it.Category = category
	v.touch(it)
	return nil
}

func (v *view) touch(it *reel.ContentItem) {
	it.Version++
	it.UpdatedAt = v.now().UTC()
}

func (v *view) IncrementCategory(ctx context.Context, category common.Category, delta int64) error {
	n := v.st.counters[category] + delta
	if n < 0 {
		n = 0
	}
	v.st.counters[category] = n
	return nil
}

func (v *view) CategoryCount(ctx context.Context, category common.Category) (int64, error) {
	return v.st.counters[category], nil
}

func (v *view) SetCategoryCount(ctx context.Context, category common.Category, count int64) error {
	if count < 0 {
		count = 0
	}
	v.st.counters[category] = count
	return nil
}

func (v *view) AddUserContent(ctx context.Context, userID, contentID string) error {
	addTo(v.st.authored, userID, contentID)
	return nil
}

func (v *view) RemoveUserContent(ctx context.Context, userID, contentID string) error {
	removeFrom(v.st.authored, userID, contentID)
	return nil
}

func (v *view) ListUserContent(ctx context.Context, userID string) ([]string, error) {
	return members(v.st.authored[userID]), nil
}

func (v *view) SaveForUser(ctx context.Context, userID, contentID string) error {
	if _, err := v.getActive(contentID); err != nil {
		return err
	}
	addTo(v.st.saved, userID, contentID)
	return nil
}

func (v *view) UnsaveForUser(ctx context.Context, userID, contentID string) error {
	removeFrom(v.st.saved, userID, contentID)
	return nil
}

func (v *view) SavedAmong(ctx context.Context, userID string, contentIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	set := v.st.saved[userID]
	for _, id := range contentIDs {
		if _, ok := set[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (v *view) ListLikedByUser(ctx context.Context, userID string) ([]string, error) {
	return members(v.st.liked[userID]), nil
}

func (v *view) UsersReferencing(ctx context.Context, contentID string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, idx := range []map[string]map[string]struct{}{v.st.saved, v.st.liked} {
		for user, set := range idx {
			if _, ok := set[contentID]; ok {
				seen[user] = struct{}{}
			}
		}
	}
	return members(seen), nil
}

func (v *view) PullReference(ctx context.Context, userID, contentID string) error {
	removeFrom(v.st.saved, userID, contentID)
	removeFrom(v.st.liked, userID, contentID)
	return nil
}

func (v *view) AddCleanupTask(ctx context.Context, contentID, userID, lastError string) error {
	v.st.nextTask++
	now := v.now().UTC()
	v.st.tasks[v.st.nextTask] = store.CleanupTask{
		ID:        v.st.nextTask,
		ContentID: contentID,
		UserID:    userID,
		LastError: lastError,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (v *view) ListCleanupTasks(ctx context.Context, limit int) ([]store.CleanupTask, error) {
	out := make([]store.CleanupTask, 0, len(v.st.tasks))
	for _, t := range v.st.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *view) DeleteCleanupTask(ctx context.Context, id int64) error {
	delete(v.st.tasks, id)
	return nil
}

func (v *view) BumpCleanupTask(ctx context.Context, id int64, lastError string) error {
	t, ok := v.st.tasks[id]
	if !ok {
		return errors.NotFoundf("cleanup task %d not found", id)
	}
	t.Attempts++
	t.LastError = lastError
	t.UpdatedAt = v.now().UTC()
	v.st.tasks[id] = t
	return nil
}

func addTo(idx map[string]map[string]struct{}, key, val string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[val] = struct{}{}
}

func removeFrom(idx map[string]map[string]struct{}, key, val string) {
	if set, ok := idx[key]; ok {
		delete(set, val)
		if len(set) == 0 {
			delete(idx, key)
		}
	}
}

func members(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

var (
	_ store.RecordStore = (*Store)(nil)
	_ store.RecordStore = (*view)(nil)
)
