package feed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"goreels/internal/blob"
	"goreels/internal/common"
	"goreels/internal/engagement"
	"goreels/internal/errors"
	"goreels/internal/ledger"
	"goreels/internal/logging"
	"goreels/internal/metrics"
	"goreels/internal/reel"
	"goreels/internal/store"
)

// Usecase is everything the HTTP boundary calls.
type Usecase interface {
	Create(ctx context.Context, in CreateInput) (*Item, error)
	Get(ctx context.Context, id, actorID string) (*Item, error)
	Delete(ctx context.Context, id string) error
	ChangeCategory(ctx context.Context, id string, category common.Category) (*Item, error)
	Save(ctx context.Context, userID, id string) error
	Unsave(ctx context.Context, userID, id string) error
	Feed(ctx context.Context, req Request) (*Page, error)

	ToggleLike(ctx context.Context, id, actorID string) (*engagement.LikeResult, error)
	RecordView(ctx context.Context, id, actorID string, watchSeconds float64) (*engagement.ViewResult, error)
	RecordShare(ctx context.Context, id, actorID string, platform common.SharePlatform) (*engagement.ShareResult, error)

	OpenMedia(ctx context.Context, ref string) (io.ReadCloser, *blob.Object, error)
}

// Sampler receives served feed pages for background media validation.
type Sampler interface {
	Sample(items []*reel.ContentItem)
}

// Upload is one file of a multipart create.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

type CreateInput struct {
	AuthorID    string
	Title       string
	Description string
	Category    string
	Tags        []string
	IsNSFW      bool
	Media       *Upload
	Thumbnail   *Upload
}

type Service struct {
	store    store.RecordStore
	blobs    blob.Store
	ledger   *ledger.Ledger
	recorder *engagement.Recorder
	sampler  Sampler

	maxRetries int
	now        func() time.Time
	newID      func() string
}

func NewService(s store.RecordStore, b blob.Store, l *ledger.Ledger, r *engagement.Recorder, sampler Sampler) *Service {
	return &Service{
		store:      s,
		blobs:      b,
		ledger:     l,
		recorder:   r,
		sampler:    sampler,
		maxRetries: engagement.DefaultMaxRetries,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Create stores the media first and only then the record, so a persisted
// item always has durable media. If persistence fails the uploads are
// removed again.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Item, error) {
	if in.AuthorID == "" {
		return nil, errors.InvalidArgument("author id is required")
	}
	if in.Media == nil || in.Media.Body == nil {
		return nil, errors.InvalidArgument("media file is required")
	}
	if kind := common.DetectFileType(in.Media.ContentType); kind != common.MediaFileTypeVideo {
		return nil, errors.InvalidArgumentf("media must be a video, got %s", kind)
	}
	category, ok := common.ParseCategory(in.Category)
	if !ok {
		return nil, errors.InvalidArgumentf("unknown category %q", in.Category)
	}
	tags := common.NormalizeTags(in.Tags)
	for _, tag := range tags {
		if err := common.ValidateTag(tag); err != nil {
			return nil, errors.InvalidArgumentf("tag %q: %v", tag, err)
		}
	}

	media, err := s.blobs.Upload(ctx, in.Media.Name, in.Media.ContentType, in.Media.Body)
	if err != nil {
		return nil, errors.UpstreamUnavailable("failed to store media").WithCause(err)
	}
	uploaded := []string{media.Ref}

	var thumbRef string
	if in.Thumbnail != nil && in.Thumbnail.Body != nil {
		thumb, err := s.blobs.Upload(ctx, in.Thumbnail.Name, in.Thumbnail.ContentType, in.Thumbnail.Body)
		if err != nil {
			s.deleteBlobs(ctx, uploaded...)
			return nil, errors.UpstreamUnavailable("failed to store thumbnail").WithCause(err)
		}
		thumbRef = thumb.Ref
		uploaded = append(uploaded, thumbRef)
	}

	now := s.now().UTC()
	item := &reel.ContentItem{
		ID:           s.newID(),
		AuthorID:     in.AuthorID,
		Title:        in.Title,
		Description:  in.Description,
		Category:     category,
		Tags:         tags,
		IsNSFW:       in.IsNSFW,
		IsApproved:   true,
		IsActive:     true,
		MediaRef:     media.Ref,
		ThumbnailRef: thumbRef,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.store.WithTx(ctx, func(tx store.RecordStore) error {
		if err := tx.CreateContent(ctx, item); err != nil {
			return err
		}
		return s.ledger.WithStore(tx).OnCreate(ctx, item)
	})
	if err != nil {
		s.deleteBlobs(ctx, uploaded...)
		return nil, fmt.Errorf("create reel: %w", err)
	}

	logging.Ctx(ctx).Info().Str("reel_id", item.ID).Str("author_id", item.AuthorID).
		Str("category", string(item.Category)).Msg("reel created")
	shaped := Shape(item, in.AuthorID, nil)
	return &shaped, nil
}

func (s *Service) Get(ctx context.Context, id, actorID string) (*Item, error) {
	item, err := s.store.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.IsActive {
		return nil, errors.NotFoundf("content %s not found", id)
	}
	saved, err := s.savedFor(ctx, actorID, []*reel.ContentItem{item})
	if err != nil {
		return nil, err
	}
	shaped := Shape(item, actorID, saved)
	return &shaped, nil
}

// Delete hard-deletes an item. Counters and the author index are adjusted in
// the same transaction; index fan-out and blob removal follow the commit and
// never fail the delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	var deleted *reel.ContentItem
	err := s.store.WithTx(ctx, func(tx store.RecordStore) error {
		item, err := s.ledger.WithStore(tx).OnPermanentDelete(ctx, id)
		if err != nil {
			return err
		}
		deleted = item
		return tx.DeleteContent(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete reel: %w", err)
	}

	s.ledger.Cascade(ctx, id)
	s.deleteBlobs(ctx, deleted.MediaRef, deleted.ThumbnailRef)

	logging.Ctx(ctx).Info().Str("reel_id", id).Msg("reel deleted")
	return nil
}

// deleteBlobs is best effort: failures are logged and counted, never returned.
func (s *Service) deleteBlobs(ctx context.Context, refs ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, ref); err != nil {
			metrics.BlobDeleteFailures.Inc()
			logging.Ctx(ctx).Warn().Err(err).Str("media_ref", ref).Msg("failed to delete blob")
		}
	}
}

// ChangeCategory re-reads and retries when the item moved underneath it.
func (s *Service) ChangeCategory(ctx context.Context, id string, category common.Category) (*Item, error) {
	if !category.IsValid() {
		return nil, errors.InvalidArgumentf("unknown category %q", category)
	}

	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		var item *reel.ContentItem
		item, err = s.store.GetContent(ctx, id)
		if err != nil {
			return nil, err
		}
		err = s.ledger.OnCategoryChange(ctx, item, item.Category, category)
		if err == nil {
			return s.Get(ctx, id, "")
		}
		if !errors.Is(err, errors.ErrConflict) {
			return nil, err
		}
		logging.Ctx(ctx).Debug().Str("reel_id", id).Int("attempt", attempt+1).Msg("category change conflict, retrying")
	}
	return nil, err
}

func (s *Service) Save(ctx context.Context, userID, id string) error {
	if userID == "" {
		return errors.InvalidArgument("user id is required")
	}
	return s.store.SaveForUser(ctx, userID, id)
}

func (s *Service) Unsave(ctx context.Context, userID, id string) error {
	if userID == "" {
		return errors.InvalidArgument("user id is required")
	}
	return s.store.UnsaveForUser(ctx, userID, id)
}

// Feed serves one page and hands it to the sampler.
func (s *Service) Feed(ctx context.Context, req Request) (*Page, error) {
	q, page, limit, err := BuildQuery(req)
	if err != nil {
		return nil, err
	}

	items, err := s.store.FindContent(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("feed query: %w", err)
	}
	total, err := s.store.CountContent(ctx, q.Filter)
	if err != nil {
		return nil, fmt.Errorf("feed count: %w", err)
	}
	saved, err := s.savedFor(ctx, req.ActorID, items)
	if err != nil {
		return nil, err
	}

	out := &Page{Items: make([]Item, 0, len(items)), Pagination: NewPagination(page, limit, total)}
	for _, it := range items {
		out.Items = append(out.Items, Shape(it, req.ActorID, saved))
	}

	if s.sampler != nil {
		s.sampler.Sample(items)
	}
	return out, nil
}

func (s *Service) savedFor(ctx context.Context, actorID string, items []*reel.ContentItem) (map[string]bool, error) {
	if actorID == "" || len(items) == 0 {
		return nil, nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	saved, err := s.store.SavedAmong(ctx, actorID, ids)
	if err != nil {
		return nil, fmt.Errorf("saved lookup: %w", err)
	}
	return saved, nil
}

func (s *Service) ToggleLike(ctx context.Context, id, actorID string) (*engagement.LikeResult, error) {
	return s.recorder.ToggleLike(ctx, id, actorID)
}

func (s *Service) RecordView(ctx context.Context, id, actorID string, watchSeconds float64) (*engagement.ViewResult, error) {
	return s.recorder.RecordView(ctx, id, actorID, watchSeconds)
}

func (s *Service) RecordShare(ctx context.Context, id, actorID string, platform common.SharePlatform) (*engagement.ShareResult, error) {
	return s.recorder.RecordShare(ctx, id, actorID, platform)
}

func (s *Service) OpenMedia(ctx context.Context, ref string) (io.ReadCloser, *blob.Object, error) {
	rc, obj, err := s.blobs.Open(ctx, ref)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil, errors.NotFoundf("media %s not found", ref)
	}
	return rc, obj, err
}

var _ Usecase = (*Service)(nil)
