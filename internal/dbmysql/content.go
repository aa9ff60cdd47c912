package dbmysql

import (
	"time"

	"goreels/internal/common"
	"goreels/internal/reel"
)

// Content is one row of content_items. Engagement logs live in child tables.
type Content struct {
	ID             string     `gorm:"primaryKey;size:36"`
	AuthorID       string     `gorm:"not null;index;size:36"`
	Title          string     `gorm:"size:255"`
	Description    string     `gorm:"type:text"`
	Category       string     `gorm:"not null;size:32;index:idx_content_feed,priority:2"`
	IsNSFW         bool       `gorm:"not null;default:false"`
	IsApproved     bool       `gorm:"not null;default:true"`
	MediaRef       string     `gorm:"size:255"`
	ThumbnailRef   string     `gorm:"size:255"`
	IsActive       bool       `gorm:"not null;default:true;index:idx_content_feed,priority:1"`
	IsTrending     bool       `gorm:"not null;default:false"`
	InactiveReason string     `gorm:"size:32"`
	InactivatedAt  *time.Time
	Version        int64     `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"index:idx_content_feed,priority:3"`
	UpdatedAt      time.Time

	Tags     []ContentTag     `gorm:"foreignKey:ContentID;constraint:OnDelete:CASCADE"`
	Likes    []ContentLike    `gorm:"foreignKey:ContentID;constraint:OnDelete:CASCADE"`
	Views    []ContentView    `gorm:"foreignKey:ContentID;constraint:OnDelete:CASCADE"`
	Shares   []ContentShare   `gorm:"foreignKey:ContentID;constraint:OnDelete:CASCADE"`
	Comments []ContentComment `gorm:"foreignKey:ContentID;constraint:OnDelete:CASCADE"`
}

func (Content) TableName() string { return "content_items" }

type ContentTag struct {
	ContentID string `gorm:"primaryKey;size:36"`
	Tag       string `gorm:"primaryKey;size:50;index"`
}

func (ContentTag) TableName() string { return "content_tags" }

// ContentLike is unique per (content, actor); the index backs the
// one-like-per-actor rule.
type ContentLike struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ContentID string    `gorm:"not null;size:36;uniqueIndex:idx_like_content_actor"`
	ActorID   string    `gorm:"not null;size:36;uniqueIndex:idx_like_content_actor"`
	At        time.Time `gorm:"not null"`
}

func (ContentLike) TableName() string { return "content_likes" }

type ContentView struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	ContentID    string    `gorm:"not null;size:36;index:idx_view_content_actor,priority:1"`
	ActorID      string    `gorm:"not null;size:36;index:idx_view_content_actor,priority:2"`
	At           time.Time `gorm:"not null;index:idx_view_content_actor,priority:3"`
	WatchSeconds float64
}

func (ContentView) TableName() string { return "content_views" }

type ContentShare struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ContentID string    `gorm:"not null;size:36;index"`
	ActorID   string    `gorm:"not null;size:36"`
	Platform  string    `gorm:"not null;size:20"`
	At        time.Time `gorm:"not null"`
}

func (ContentShare) TableName() string { return "content_shares" }

// ContentComment is written by the comments service.
type ContentComment struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ContentID string    `gorm:"not null;size:36;index"`
	ActorID   string    `gorm:"not null;size:36"`
	At        time.Time `gorm:"not null"`
}

func (ContentComment) TableName() string { return "content_comments" }

type CategoryCounter struct {
	Category string `gorm:"primaryKey;size:32"`
	Count    int64  `gorm:"not null;default:0"`
}

func (CategoryCounter) TableName() string { return "category_counters" }

type UserContent struct {
	UserID    string `gorm:"primaryKey;size:36"`
	ContentID string `gorm:"primaryKey;size:36"`
	CreatedAt time.Time
}

func (UserContent) TableName() string { return "user_content" }

type UserSavedItem struct {
	UserID    string `gorm:"primaryKey;size:36"`
	ContentID string `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}

func (UserSavedItem) TableName() string { return "user_saved_items" }

type UserLikedItem struct {
	UserID    string `gorm:"primaryKey;size:36"`
	ContentID string `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}

func (UserLikedItem) TableName() string { return "user_liked_items" }

type CleanupTask struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	ContentID string `gorm:"not null;size:36;index"`
	UserID    string `gorm:"not null;size:36"`
	Attempts  int    `gorm:"not null;default:0"`
	LastError string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CleanupTask) TableName() string { return "cleanup_tasks" }

// Models lists every table for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&Content{}, &ContentTag{}, &ContentLike{}, &ContentView{}, &ContentShare{}, &ContentComment{},
		&CategoryCounter{}, &UserContent{}, &UserSavedItem{}, &UserLikedItem{}, &CleanupTask{},
	}
}

func fromItem(it *reel.ContentItem) *Content {
	c := &Content{
		ID:             it.ID,
		AuthorID:       it.AuthorID,
		Title:          it.Title,
		Description:    it.Description,
		Category:       string(it.Category),
		IsNSFW:         it.IsNSFW,
		IsApproved:     it.IsApproved,
		MediaRef:       it.MediaRef,
		ThumbnailRef:   it.ThumbnailRef,
		IsActive:       it.IsActive,
		IsTrending:     it.IsTrending,
		InactiveReason: string(it.InactiveReason),
		InactivatedAt:  it.InactivatedAt,
		Version:        it.Version,
		CreatedAt:      it.CreatedAt,
		UpdatedAt:      it.UpdatedAt,
	}
	for _, t := range it.Tags {
		c.Tags = append(c.Tags, ContentTag{ContentID: it.ID, Tag: t})
	}
	for _, l := range it.Likes {
		c.Likes = append(c.Likes, ContentLike{ContentID: it.ID, ActorID: l.ActorID, At: l.At})
	}
	for _, v := range it.Views {
		c.Views = append(c.Views, ContentView{ContentID: it.ID, ActorID: v.ActorID, At: v.At, WatchSeconds: v.WatchSeconds})
	}
	for _, s := range it.Shares {
		c.Shares = append(c.Shares, ContentShare{ContentID: it.ID, ActorID: s.ActorID, Platform: string(s.Platform), At: s.At})
	}
	for _, cm := range it.Comments {
		c.Comments = append(c.Comments, ContentComment{ContentID: it.ID, ActorID: cm.ActorID, At: cm.At})
	}
	return c
}

func (c *Content) toItem() *reel.ContentItem {
	it := &reel.ContentItem{
		ID:             c.ID,
		AuthorID:       c.AuthorID,
		Title:          c.Title,
		Description:    c.Description,
		Category:       common.Category(c.Category),
		IsNSFW:         c.IsNSFW,
		IsApproved:     c.IsApproved,
		MediaRef:       c.MediaRef,
		ThumbnailRef:   c.ThumbnailRef,
		IsActive:       c.IsActive,
		IsTrending:     c.IsTrending,
		InactiveReason: common.InactiveReason(c.InactiveReason),
		InactivatedAt:  c.InactivatedAt,
		Version:        c.Version,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	for _, t := range c.Tags {
		it.Tags = append(it.Tags, t.Tag)
	}
	for _, l := range c.Likes {
		it.Likes = append(it.Likes, reel.Like{ActorID: l.ActorID, At: l.At})
	}
	for _, v := range c.Views {
		it.Views = append(it.Views, reel.View{ActorID: v.ActorID, At: v.At, WatchSeconds: v.WatchSeconds})
	}
	for _, s := range c.Shares {
		it.Shares = append(it.Shares, reel.Share{ActorID: s.ActorID, At: s.At, Platform: common.SharePlatform(s.Platform)})
	}
	for _, cm := range c.Comments {
		it.Comments = append(it.Comments, reel.Comment{ActorID: cm.ActorID, At: cm.At})
	}
	return it
}
