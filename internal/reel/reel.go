// Package reel holds the content record and its engagement state.
package reel

import (
	"time"

	"goreels/internal/common"
)

type Like struct {
	ActorID string    `json:"actor_id"`
	At      time.Time `json:"at"`
}

type View struct {
	ActorID      string    `json:"actor_id"`
	At           time.Time `json:"at"`
	WatchSeconds float64   `json:"watch_seconds"`
}

type Share struct {
	ActorID  string               `json:"actor_id"`
	At       time.Time            `json:"at"`
	Platform common.SharePlatform `json:"platform"`
}

// Comment is written by the comments collaborator; the engine only reads it.
type Comment struct {
	ActorID string    `json:"actor_id"`
	At      time.Time `json:"at"`
}

// ContentItem is one uploaded reel.
type ContentItem struct {
	ID          string          `json:"id"`
	AuthorID    string          `json:"author_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    common.Category `json:"category"`
	Tags        []string        `json:"tags"`
	IsNSFW      bool            `json:"is_nsfw"`
	IsApproved  bool            `json:"is_approved"`

	MediaRef     string `json:"media_ref"`
	ThumbnailRef string `json:"thumbnail_ref,omitempty"`

	Likes    []Like    `json:"likes"`
	Views    []View    `json:"views"`
	Shares   []Share   `json:"shares"`
	Comments []Comment `json:"comments"`

	IsActive       bool                  `json:"is_active"`
	IsTrending     bool                  `json:"is_trending"`
	InactiveReason common.InactiveReason `json:"inactive_reason,omitempty"`
	InactivatedAt  *time.Time            `json:"inactivated_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLike reports whether actorID currently likes the item.
func (c *ContentItem) HasLike(actorID string) bool {
	if actorID == "" {
		return false
	}
	for _, l := range c.Likes {
		if l.ActorID == actorID {
			return true
		}
	}
	return false
}

// LastViewBy returns the most recent view timestamp of actorID.
func (c *ContentItem) LastViewBy(actorID string) (time.Time, bool) {
	var last time.Time
	found := false
	for _, v := range c.Views {
		if v.ActorID == actorID && (!found || v.At.After(last)) {
			last = v.At
			found = true
		}
	}
	return last, found
}

// Clone returns a deep copy, so stores can hand out items without aliasing.
func (c *ContentItem) Clone() *ContentItem {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	cp.Likes = append([]Like(nil), c.Likes...)
	cp.Views = append([]View(nil), c.Views...)
	cp.Shares = append([]Share(nil), c.Shares...)
	cp.Comments = append([]Comment(nil), c.Comments...)
	if c.InactivatedAt != nil {
		at := *c.InactivatedAt
		cp.InactivatedAt = &at
	}
	return &cp
}
