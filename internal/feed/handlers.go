package feed

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"goreels/internal/common"
	"goreels/internal/errors"
	"goreels/internal/ledger"
	"goreels/internal/logging"
	"goreels/internal/reconcile"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderRequestID = "X-Request-ID"

	RoleModerator = "moderator"

	defaultMaxUploadMB = 100
	cleanupBatch       = 500
)

// Sweeper drives reconciliation sweeps.
type Sweeper interface {
	StartSweep() error
	CancelSweep() bool
	Status() reconcile.SweepStatus
}

// Maintainer runs the ledger repair jobs.
type Maintainer interface {
	Recount(ctx context.Context) (*ledger.RecountReport, error)
	RetryCleanups(ctx context.Context, limit int) (*ledger.CleanupReport, error)
}

// Pinger reports record store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	svc         Usecase
	sweeps      Sweeper
	maintenance Maintainer
	health      Pinger
	maxUpload   int64
}

func NewHandlers(svc Usecase, sweeps Sweeper, maintenance Maintainer, health Pinger, maxUploadMB int) *Handlers {
	if maxUploadMB <= 0 {
		maxUploadMB = defaultMaxUploadMB
	}
	return &Handlers{
		svc:         svc,
		sweeps:      sweeps,
		maintenance: maintenance,
		health:      health,
		maxUpload:   int64(maxUploadMB) << 20,
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r *mux.Router) {
	r.Use(requestID)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/reels", h.createReel).Methods(http.MethodPost)
	api.HandleFunc("/reels", h.listFeed).Methods(http.MethodGet)
	api.HandleFunc("/reels/{id}", h.getReel).Methods(http.MethodGet)
	api.HandleFunc("/reels/{id}", h.deleteReel).Methods(http.MethodDelete)
	api.HandleFunc("/reels/{id}/category", h.changeCategory).Methods(http.MethodPut)
	api.HandleFunc("/reels/{id}/like", h.toggleLike).Methods(http.MethodPost)
	api.HandleFunc("/reels/{id}/view", h.recordView).Methods(http.MethodPost)
	api.HandleFunc("/reels/{id}/share", h.recordShare).Methods(http.MethodPost)
	api.HandleFunc("/reels/{id}/save", h.save).Methods(http.MethodPost)
	api.HandleFunc("/reels/{id}/save", h.unsave).Methods(http.MethodDelete)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/reconcile", h.startSweep).Methods(http.MethodPost)
	admin.HandleFunc("/reconcile", h.cancelSweep).Methods(http.MethodDelete)
	admin.HandleFunc("/reconcile", h.sweepStatus).Methods(http.MethodGet)
	admin.HandleFunc("/recount", h.recount).Methods(http.MethodPost)
	admin.HandleFunc("/cleanup", h.cleanup).Methods(http.MethodPost)

	r.HandleFunc("/media/{ref}", h.serveMedia).Methods(http.MethodGet)
	r.HandleFunc("/health", h.healthCheck).Methods(http.MethodGet)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = logging.NewRequestID()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderUserID))
}

func (h *Handlers) createReel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, errors.InvalidArgumentf("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	media, closeMedia, err := formFile(r, "media")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if media == nil {
		writeError(w, r, errors.InvalidArgument("media file is required"))
		return
	}
	defer closeMedia()

	thumb, closeThumb, err := formFile(r, "thumbnail")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if thumb != nil {
		defer closeThumb()
	}

	nsfw, _ := strconv.ParseBool(r.FormValue("nsfw"))
	item, err := h.svc.Create(r.Context(), CreateInput{
		AuthorID:    actor(r),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Tags:        common.SplitTags(r.FormValue("tags")),
		IsNSFW:      nsfw,
		Media:       media,
		Thumbnail:   thumb,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// formFile returns nil when the field is absent.
func formFile(r *http.Request, field string) (*Upload, func(), error) {
	f, hdr, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.InvalidArgumentf("invalid %s upload: %v", field, err)
	}
	return &Upload{Name: hdr.Filename, ContentType: uploadType(hdr), Body: f}, func() { _ = f.Close() }, nil
}

func uploadType(hdr *multipart.FileHeader) string {
	if ct := hdr.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return contentTypeFor(hdr.Filename)
}

func (h *Handlers) listFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	nsfw, _ := strconv.ParseBool(q.Get("nsfw"))

	res, err := h.svc.Feed(r.Context(), Request{
		Page:            page,
		Limit:           limit,
		Sort:            q.Get("sort"),
		Category:        q.Get("category"),
		Tags:            common.SplitTags(q.Get("tags")),
		AuthorID:        q.Get("author"),
		Search:          q.Get("q"),
		ActorID:         actor(r),
		IncludeNSFW:     nsfw,
		ModerationQueue: q.Get("queue") == "moderation" && r.Header.Get(HeaderUserRole) == RoleModerator,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.InvalidArgumentf("%s must be an integer", name)
	}
	return n, nil
}

func (h *Handlers) getReel(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Get(r.Context(), mux.Vars(r)["id"], actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handlers) deleteReel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) changeCategory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category string `json:"category"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	cat, ok := common.ParseCategory(body.Category)
	if !ok {
		writeError(w, r, errors.InvalidArgumentf("unknown category %q", body.Category))
		return
	}
	item, err := h.svc.ChangeCategory(r.Context(), mux.Vars(r)["id"], cat)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handlers) toggleLike(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ToggleLike(r.Context(), mux.Vars(r)["id"], actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) recordView(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WatchSeconds float64 `json:"watchSeconds"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.RecordView(r.Context(), mux.Vars(r)["id"], actor(r), body.WatchSeconds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) recordShare(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Platform string `json:"platform"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	platform, ok := common.ParseSharePlatform(body.Platform)
	if !ok {
		writeError(w, r, errors.InvalidArgumentf("unknown share platform %q", body.Platform))
		return
	}
	res, err := h.svc.RecordShare(r.Context(), mux.Vars(r)["id"], actor(r), platform)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) save(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Save(r.Context(), actor(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (h *Handlers) unsave(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unsave(r.Context(), actor(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": false})
}

func (h *Handlers) startSweep(w http.ResponseWriter, r *http.Request) {
	if err := h.sweeps.StartSweep(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.sweeps.Status())
}

func (h *Handlers) cancelSweep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.sweeps.CancelSweep()})
}

func (h *Handlers) sweepStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sweeps.Status())
}

func (h *Handlers) recount(w http.ResponseWriter, r *http.Request) {
	report, err := h.maintenance.Recount(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) cleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.maintenance.RetryCleanups(r.Context(), cleanupBatch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) serveMedia(w http.ResponseWriter, r *http.Request) {
	rc, obj, err := h.svc.OpenMedia(r.Context(), mux.Vars(r)["ref"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	ct := obj.ContentType
	if ct == "" {
		ct = contentTypeFor(obj.Name)
	}
	w.Header().Set("Content-Type", ct)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("media_ref", obj.Ref).Msg("error streaming media")
	}
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

func (h *Handlers) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return errors.InvalidArgumentf("invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("failed to encode response")
	}
}

type errorBody struct {
	Error *errors.Error `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatusOf(err)

	var domainErr *errors.Error
	if !errors.As(err, &domainErr) {
		domainErr = errors.Internal("internal error")
	}
	if status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		if domainErr.Code == errors.CodeInternal {
			domainErr = errors.Internal("internal error")
		}
	}
	writeJSON(w, status, errorBody{Error: domainErr})
}
