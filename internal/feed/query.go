package feed

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"goreels/internal/common"
	"goreels/internal/errors"
	"goreels/internal/reel"
	"goreels/internal/store"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 50
)

// Sort names accepted on the wire. popular is served as newest.
const (
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortTrending = "trending"
	SortPopular  = "popular"
)

// MediaBaseURL prefixes blob refs in shaped output.
var MediaBaseURL = "/media/"

func MediaURL(ref string) string {
	if ref == "" {
		return ""
	}
	return MediaBaseURL + ref
}

// Request is a feed query as the boundary parsed it. Zero Page and Limit
// mean the defaults.
type Request struct {
	Page     int      `validate:"gte=0"`
	Limit    int      `validate:"gte=0"`
	Sort     string   `validate:"omitempty,oneof=newest oldest trending popular"`
	Category string   `validate:"omitempty,category"`
	Tags     []string `validate:"omitempty,max=20,dive,max=50"`
	AuthorID string   `validate:"omitempty,max=64"`
	Search   string   `validate:"omitempty,max=200"`

	// ActorID is empty for anonymous callers.
	ActorID string `validate:"omitempty,max=64"`
	// IncludeNSFW is the actor's opt-in.
	IncludeNSFW bool
	// ModerationQueue lists unapproved items instead of approved ones.
	ModerationQueue bool
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			_, ok := common.ParseCategory(fl.Field().String())
			return ok
		})
	})
	return validate
}

// Pagination echoes the window that was served.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// BuildQuery turns a request into a store query plus the normalized page
// and limit. Every query is restricted to active items.
func BuildQuery(req Request) (store.Query, int, int, error) {
	if err := getValidator().Struct(req); err != nil {
		return store.Query{}, 0, 0, translateValidation(err)
	}

	page := req.Page
	if page == 0 {
		page = DefaultPage
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	f := store.Filter{
		ActiveOnly:  true,
		Approved:    store.Bool(!req.ModerationQueue),
		ExcludeNSFW: !req.IncludeNSFW,
		AnyTags:     common.NormalizeTags(req.Tags),
		AuthorID:    req.AuthorID,
		Text:        strings.TrimSpace(req.Search),
	}
	if req.Category != "" {
		f.Category, _ = common.ParseCategory(req.Category)
	}

	sort := store.SortNewest
	switch req.Sort {
	case SortOldest:
		sort = store.SortOldest
	case SortTrending:
		sort = store.SortTrending
	}

	return store.Query{
		Filter: f,
		Sort:   sort,
		Skip:   (page - 1) * limit,
		Limit:  limit,
	}, page, limit, nil
}

func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.InvalidArgument(err.Error())
	}
	fe := verrs[0]
	msg := fmt.Sprintf("invalid %s", strings.ToLower(fe.Field()))
	switch fe.Tag() {
	case "gte":
		msg = fmt.Sprintf("%s must not be negative", strings.ToLower(fe.Field()))
	case "oneof":
		msg = fmt.Sprintf("unknown sort %q", fe.Value())
	case "category":
		msg = fmt.Sprintf("unknown category %q", fe.Value())
	case "max":
		msg = fmt.Sprintf("%s is too long", strings.ToLower(fe.Field()))
	}
	return errors.InvalidArgument(msg).WithDetails(map[string]any{
		"field": fe.Field(),
		"tag":   fe.Tag(),
	})
}

func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Item is the shaped view of a reel. Raw engagement logs never leave the
// engine; only their counts and the caller's own flags do.
type Item struct {
	ID           string          `json:"id"`
	AuthorID     string          `json:"authorId"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     common.Category `json:"category"`
	Tags         []string        `json:"tags"`
	IsNSFW       bool            `json:"isNsfw"`
	IsApproved   bool            `json:"isApproved"`
	IsTrending   bool            `json:"isTrending"`
	MediaURL     string          `json:"mediaUrl"`
	ThumbnailURL string          `json:"thumbnailUrl,omitempty"`

	LikesCount    int  `json:"likesCount"`
	CommentsCount int  `json:"commentsCount"`
	ViewsCount    int  `json:"viewsCount"`
	SharesCount   int  `json:"sharesCount"`
	IsLiked       bool `json:"isLiked"`
	IsSaved       bool `json:"isSaved"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Shape converts an item for actorID. saved holds the ids the actor saved.
func Shape(it *reel.ContentItem, actorID string, saved map[string]bool) Item {
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	return Item{
		ID:            it.ID,
		AuthorID:      it.AuthorID,
		Title:         it.Title,
		Description:   it.Description,
		Category:      it.Category,
		Tags:          tags,
		IsNSFW:        it.IsNSFW,
		IsApproved:    it.IsApproved,
		IsTrending:    it.IsTrending,
		MediaURL:      MediaURL(it.MediaRef),
		ThumbnailURL:  MediaURL(it.ThumbnailRef),
		LikesCount:    len(it.Likes),
		CommentsCount: len(it.Comments),
		ViewsCount:    len(it.Views),
		SharesCount:   len(it.Shares),
		IsLiked:       actorID != "" && it.HasLike(actorID),
		IsSaved:       actorID != "" && saved[it.ID],
		CreatedAt:     it.CreatedAt,
		UpdatedAt:     it.UpdatedAt,
	}
}

// Page is one window of the feed.
type Page struct {
	Items      []Item     `json:"items"`
	Pagination Pagination `json:"pagination"`
}
