package dbmysql

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"goreels/internal/common"
	"goreels/internal/errors"
	"goreels/internal/reel"
	"goreels/internal/store"
)

const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

const incrementCategorySQL = "INSERT INTO category_counters (category, count) VALUES (?, GREATEST(?, 0)) " +
	"ON DUPLICATE KEY UPDATE count = GREATEST(count + ?, 0)"

const usersReferencingSQL = "SELECT user_id FROM user_saved_items WHERE content_id = ? " +
	"UNION SELECT user_id FROM user_liked_items WHERE content_id = ? ORDER BY user_id"

// Repository implements store.RecordStore on MySQL.
type Repository struct {
	db   *gorm.DB
	inTx bool
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx store.RecordStore) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx, inTx: true})
	})
}

// atomic runs fn in the current transaction, or a new one.
func (r *Repository) atomic(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.inTx {
		return translate(fn(r.db.WithContext(ctx)))
	}
	return translate(r.db.WithContext(ctx).Transaction(fn))
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// translate maps driver and GORM errors onto domain codes. Domain errors pass through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *errors.Error
	if stderrors.As(err, &domainErr) {
		return err
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NotFound("record not found").WithCause(err)
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Conflict("duplicate key").WithCause(err)
	}
	var myErr *mysqldrv.MySQLError
	if stderrors.As(err, &myErr) && (myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout) {
		return errors.Conflict("transaction conflict").WithCause(err)
	}
	return err
}

// ---- content ----

func (r *Repository) CreateContent(ctx context.Context, item *reel.ContentItem) error {
	if item.ID == "" {
		return errors.InvalidArgument("content id is required")
	}
	if err := r.db.WithContext(ctx).Create(fromItem(item)).Error; err != nil {
		return fmt.Errorf("failed to create content: %w", translate(err))
	}
	return nil
}

func preloadAll(db *gorm.DB) *gorm.DB {
	return db.Preload("Tags").Preload("Likes").Preload("Views").Preload("Shares").Preload("Comments")
}

func (r *Repository) GetContent(ctx context.Context, id string) (*reel.ContentItem, error) {
	var c Content
	err := preloadAll(r.db.WithContext(ctx)).Where("id = ?", id).Take(&c).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundf("content %s not found", id)
		}
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return c.toItem(), nil
}

func applyFilter(db *gorm.DB, f store.Filter) *gorm.DB {
	if f.ActiveOnly {
		db = db.Where("is_active = ?", true)
	}
	if f.Approved != nil {
		db = db.Where("is_approved = ?", *f.Approved)
	}
	if f.ExcludeNSFW {
		db = db.Where("is_nsfw = ?", false)
	}
	if f.Category != "" {
		db = db.Where("category = ?", string(f.Category))
	}
	if f.AuthorID != "" {
		db = db.Where("author_id = ?", f.AuthorID)
	}
	if f.IDAfter != "" {
		db = db.Where("id > ?", f.IDAfter)
	}
	if len(f.AnyTags) > 0 {
		db = db.Where("id IN (SELECT content_id FROM content_tags WHERE tag IN ?)", f.AnyTags)
	}
	if f.Text != "" {
		p := "%" + escapeLike(strings.ToLower(f.Text)) + "%"
		db = db.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR id IN (SELECT content_id FROM content_tags WHERE tag LIKE ?))", p, p, p)
	}
	return db
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func orderBy(mode store.SortMode) string {
	switch mode {
	case store.SortOldest:
		return "created_at ASC, id ASC"
	case store.SortTrending:
		return "is_trending DESC, created_at DESC, id ASC"
	case store.SortID:
		return "id ASC"
	default:
		return "created_at DESC, id ASC"
	}
}

func (r *Repository) FindContent(ctx context.Context, q store.Query) ([]*reel.ContentItem, error) {
	db := applyFilter(r.db.WithContext(ctx).Model(&Content{}), q.Filter).Order(orderBy(q.Sort))
	if q.Skip > 0 {
		db = db.Offset(q.Skip)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Lean {
		db = db.Preload("Tags")
	} else {
		db = preloadAll(db)
	}

	var rows []Content
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find content: %w", err)
	}

	out := make([]*reel.ContentItem, len(rows))
	for i := range rows {
		out[i] = rows[i].toItem()
	}
	return out, nil
}

func (r *Repository) CountContent(ctx context.Context, f store.Filter) (int64, error) {
	var count int64
	if err := applyFilter(r.db.WithContext(ctx).Model(&Content{}), f).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count content: %w", err)
	}
	return count, nil
}

func (r *Repository) DeleteContent(ctx context.Context, id string) error {
	return r.atomic(ctx, func(tx *gorm.DB) error {
		for _, child := range []interface{}{&ContentTag{}, &ContentLike{}, &ContentView{}, &ContentShare{}, &ContentComment{}} {
			if err := tx.Where("content_id = ?", id).Delete(child).Error; err != nil {
				return fmt.Errorf("failed to delete content children: %w", err)
			}
		}
		res := tx.Where("id = ?", id).Delete(&Content{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete content: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.NotFoundf("content %s not found", id)
		}
		return nil
	})
}

// lockActive takes a row lock on an active item for the rest of the transaction.
func lockActive(tx *gorm.DB, id string) error {
	var c Content
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "version").
		Where("id = ? AND is_active = ?", id, true).
		Take(&c).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NotFoundf("content %s not found", id)
	}
	return err
}

func bumpVersion(tx *gorm.DB, id string) error {
	return tx.Model(&Content{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) ToggleLike(ctx context.Context, contentID, actorID string, at time.Time) (bool, error) {
	liked := false
	err := r.atomic(ctx, func(tx *gorm.DB) error {
		if err := lockActive(tx, contentID); err != nil {
			return err
		}

		res := tx.Where("content_id = ? AND actor_id = ?", contentID, actorID).Delete(&ContentLike{})
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected > 0 {
			if err := tx.Where("user_id = ? AND content_id = ?", actorID, contentID).Delete(&UserLikedItem{}).Error; err != nil {
				return err
			}
		} else {
			liked = true
			if err := tx.Create(&ContentLike{ContentID: contentID, ActorID: actorID, At: at}).Error; err != nil {
				return err
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&UserLikedItem{UserID: actorID, ContentID: contentID, CreatedAt: at}).Error; err != nil {
				return err
			}
		}
		return bumpVersion(tx, contentID)
	})
	return liked, err
}

func (r *Repository) AppendViewIfAbsent(ctx context.Context, contentID string, v reel.View, since time.Time) (bool, error) {
	counted := false
	err := r.atomic(ctx, func(tx *gorm.DB) error {
		if err := lockActive(tx, contentID); err != nil {
			return err
		}

		var recent int64
		if err := tx.Model(&ContentView{}).
			Where("content_id = ? AND actor_id = ? AND at > ?", contentID, v.ActorID, since).
			Count(&recent).Error; err != nil {
			return err
		}
		if recent > 0 {
			return nil
		}

		counted = true
		if err := tx.Create(&ContentView{ContentID: contentID, ActorID: v.ActorID, At: v.At, WatchSeconds: v.WatchSeconds}).Error; err != nil {
			return err
		}
		return bumpVersion(tx, contentID)
	})
	return counted, err
}

func (r *Repository) AppendShare(ctx context.Context, contentID string, s reel.Share) error {
	return r.atomic(ctx, func(tx *gorm.DB) error {
		if err := lockActive(tx, contentID); err != nil {
			return err
		}
		if err := tx.Create(&ContentShare{ContentID: contentID, ActorID: s.ActorID, Platform: string(s.Platform), At: s.At}).Error; err != nil {
			return err
		}
		return bumpVersion(tx, contentID)
	})
}

func (r *Repository) SetTrending(ctx context.Context, contentID string, trending bool) error {
	res := r.db.WithContext(ctx).Model(&Content{}).Where("id = ?", contentID).
		UpdateColumn("is_trending", trending)
	if res.Error != nil {
		return fmt.Errorf("failed to set trending: %w", translate(res.Error))
	}
	return nil
}

func (r *Repository) exists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Content{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Deactivate is a conditional update on is_active, so concurrent callers
// see exactly one transition.
func (r *Repository) Deactivate(ctx context.Context, contentID string, reason common.InactiveReason, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Content{}).
		Where("id = ? AND is_active = ?", contentID, true).
		Updates(map[string]interface{}{
			"is_active":       false,
			"inactive_reason": string(reason),
			"inactivated_at":  at,
			"version":         gorm.Expr("version + 1"),
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to deactivate content: %w", translate(res.Error))
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	ok, err := r.exists(ctx, contentID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate content: %w", err)
	}
	if !ok {
		return false, errors.NotFoundf("content %s not found", contentID)
	}
	return false, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, contentID string, expectedVersion int64, category common.Category) error {
	res := r.db.WithContext(ctx).Model(&Content{}).
		Where("id = ? AND version = ?", contentID, expectedVersion).
		Updates(map[string]interface{}{
			"category":   string(category),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update category: %w", translate(res.Error))
	}
	if res.RowsAffected > 0 {
		return nil
	}

	ok, err := r.exists(ctx, contentID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	if !ok {
		return errors.NotFoundf("content %s not found", contentID)
	}
	return errors.Conflict("content was modified concurrently")
}

// ---- counters ----

func (r *Repository) IncrementCategory(ctx context.Context, category common.Category, delta int64) error {
	if err := r.db.WithContext(ctx).Exec(incrementCategorySQL, string(category), delta, delta).Error; err != nil {
		return fmt.Errorf("failed to adjust category counter: %w", translate(err))
	}
	return nil
}

func (r *Repository) CategoryCount(ctx context.Context, category common.Category) (int64, error) {
	var c CategoryCounter
	err := r.db.WithContext(ctx).Where("category = ?", string(category)).Take(&c).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read category counter: %w", err)
	}
	return c.Count, nil
}

func (r *Repository) SetCategoryCount(ctx context.Context, category common.Category, count int64) error {
	if count < 0 {
		count = 0
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"count"}),
	}).Create(&CategoryCounter{Category: string(category), Count: count}).Error
	if err != nil {
		return fmt.Errorf("failed to set category counter: %w", translate(err))
	}
	return nil
}

// ---- user indexes ----

func (r *Repository) AddUserContent(ctx context.Context, userID, contentID string) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&UserContent{UserID: userID, ContentID: contentID}).Error
	if err != nil {
		return fmt.Errorf("failed to index user content: %w", translate(err))
	}
	return nil
}

func (r *Repository) RemoveUserContent(ctx context.Context, userID, contentID string) error {
	err := r.db.WithContext(ctx).Where("user_id = ? AND content_id = ?", userID, contentID).Delete(&UserContent{}).Error
	if err != nil {
		return fmt.Errorf("failed to unindex user content: %w", translate(err))
	}
	return nil
}

func (r *Repository) ListUserContent(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&UserContent{}).Where("user_id = ?", userID).
		Order("content_id").Pluck("content_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user content: %w", err)
	}
	return ids, nil
}

func (r *Repository) SaveForUser(ctx context.Context, userID, contentID string) error {
	return r.atomic(ctx, func(tx *gorm.DB) error {
		if err := lockActive(tx, contentID); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&UserSavedItem{UserID: userID, ContentID: contentID}).Error
	})
}

func (r *Repository) UnsaveForUser(ctx context.Context, userID, contentID string) error {
	err := r.db.WithContext(ctx).Where("user_id = ? AND content_id = ?", userID, contentID).Delete(&UserSavedItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to unsave content: %w", translate(err))
	}
	return nil
}

func (r *Repository) SavedAmong(ctx context.Context, userID string, contentIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if userID == "" || len(contentIDs) == 0 {
		return out, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).Model(&UserSavedItem{}).
		Where("user_id = ? AND content_id IN ?", userID, contentIDs).
		Pluck("content_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read saved items: %w", err)
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *Repository) ListLikedByUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&UserLikedItem{}).Where("user_id = ?", userID).
		Order("content_id").Pluck("content_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list liked items: %w", err)
	}
	return ids, nil
}

func (r *Repository) UsersReferencing(ctx context.Context, contentID string) ([]string, error) {
	var users []string
	if err := r.db.WithContext(ctx).Raw(usersReferencingSQL, contentID, contentID).Scan(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list referencing users: %w", err)
	}
	return users, nil
}

func (r *Repository) PullReference(ctx context.Context, userID, contentID string) error {
	return r.atomic(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND content_id = ?", userID, contentID).Delete(&UserSavedItem{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND content_id = ?", userID, contentID).Delete(&UserLikedItem{}).Error
	})
}

// ---- cleanup tasks ----

func (r *Repository) AddCleanupTask(ctx context.Context, contentID, userID, lastError string) error {
	err := r.db.WithContext(ctx).Create(&CleanupTask{ContentID: contentID, UserID: userID, LastError: lastError}).Error
	if err != nil {
		return fmt.Errorf("failed to record cleanup task: %w", translate(err))
	}
	return nil
}

func (r *Repository) ListCleanupTasks(ctx context.Context, limit int) ([]store.CleanupTask, error) {
	var rows []CleanupTask
	db := r.db.WithContext(ctx).Order("id ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list cleanup tasks: %w", err)
	}

	out := make([]store.CleanupTask, len(rows))
	for i, t := range rows {
		out[i] = store.CleanupTask{
			ID:        t.ID,
			ContentID: t.ContentID,
			UserID:    t.UserID,
			Attempts:  t.Attempts,
			LastError: t.LastError,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		}
	}
	return out, nil
}

func (r *Repository) DeleteCleanupTask(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&CleanupTask{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete cleanup task: %w", err)
	}
	return nil
}

func (r *Repository) BumpCleanupTask(ctx context.Context, id int64, lastError string) error {
	res := r.db.WithContext(ctx).Model(&CleanupTask{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update cleanup task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NotFoundf("cleanup task %d not found", id)
	}
	return nil
}

var _ store.RecordStore = (*Repository)(nil)
