package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goreels/internal/common"
	"goreels/internal/config"
	"goreels/internal/ledger"
	"goreels/internal/reconcile"
)

const (
	defaultWait = 2 * time.Second
	pollEvery   = 10 * time.Millisecond
)

type server struct {
	*env
	router   *mux.Router
	pipeline *reconcile.Pipeline
}

func newServer(t *testing.T) *server {
	t.Helper()
	e := newEnv(t)
	l := ledger.New(e.store, nil)
	p := reconcile.NewPipeline(e.store, l, reconcile.NewChecker(e.blobs, 0, 0, 0), config.ReconcileConfig{Workers: 1, QueueSize: 1})
	t.Cleanup(p.Shutdown)

	r := mux.NewRouter()
	NewHandlers(e.svc, p, l, e.store, 10).Register(r)
	return &server{env: e, router: r, pipeline: p}
}

func (s *server) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *server) upload(t *testing.T, user string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("media", "clip.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake video bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reels", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderUserID, user)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHTTP_UploadLikeDeleteScenario(t *testing.T) {
	s := newServer(t)

	rec := s.upload(t, "alice", map[string]string{"title": "first", "category": "comedy", "tags": "Fun,#fun,cats"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[Item](t, rec)
	assert.Equal(t, []string{"fun", "cats"}, created.Tags)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec = s.do(t, http.MethodPost, "/api/v1/reels/"+created.ID+"/like", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	like := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, like["liked"])
	assert.Equal(t, float64(1), like["likeCount"])

	rec = s.do(t, http.MethodPost, "/api/v1/reels/"+created.ID+"/view", "bob", map[string]any{"watchSeconds": 4.5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["counted"])

	rec = s.do(t, http.MethodPost, "/api/v1/reels/"+created.ID+"/share", "bob", map[string]any{"platform": "whatsapp"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/reels", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[Page](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].LikesCount)
	assert.Equal(t, 1, page.Items[0].ViewsCount)
	assert.Equal(t, 1, page.Items[0].SharesCount)
	assert.True(t, page.Items[0].IsLiked)
	assert.NotContains(t, rec.Body.String(), "actor_id")

	rec = s.do(t, http.MethodGet, page.Items[0].MediaURL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fake video bytes", rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/api/v1/reels/"+created.ID, "alice", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/reels/"+created.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/reels", "bob", nil)
	assert.Empty(t, decodeBody[Page](t, rec).Items)
	assert.Equal(t, int64(0), categoryCount(t, s.store, common.CategoryComedy))
	assert.Equal(t, 0, s.blobs.Len())
	liked, _ := s.store.ListLikedByUser(context.Background(), "bob")
	assert.Empty(t, liked)
}

func TestHTTP_ErrorMapping(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/reels?page=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]map[string]any](t, rec)
	assert.Equal(t, "INVALID_ARGUMENT", body["error"]["code"])

	rec = s.do(t, http.MethodGet, "/api/v1/reels?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/reels?sort=random", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/reels/missing/like", "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/reels/missing/share", "bob", map[string]any{"platform": "myspace"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.upload(t, "alice", map[string]string{"category": "cooking"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, s.blobs.Len())

	rec = s.do(t, http.MethodGet, "/media/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_CategoryAndSave(t *testing.T) {
	s := newServer(t)
	created := decodeBody[Item](t, s.upload(t, "alice", map[string]string{"category": "music"}))

	rec := s.do(t, http.MethodPut, "/api/v1/reels/"+created.ID+"/category", "alice", map[string]string{"category": "dance"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, common.CategoryDance, decodeBody[Item](t, rec).Category)

	rec = s.do(t, http.MethodPost, "/api/v1/reels/"+created.ID+"/save", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/reels/"+created.ID, "bob", nil)
	assert.True(t, decodeBody[Item](t, rec).IsSaved)

	rec = s.do(t, http.MethodDelete, "/api/v1/reels/"+created.ID+"/save", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v1/reels/"+created.ID, "bob", nil)
	assert.False(t, decodeBody[Item](t, rec).IsSaved)
}

func TestHTTP_AdminRoutes(t *testing.T) {
	s := newServer(t)
	created := decodeBody[Item](t, s.upload(t, "alice", map[string]string{"category": "music"}))

	// Lose the media behind the engine's back.
	ref := strings.TrimPrefix(created.MediaURL, MediaBaseURL)
	require.NoError(t, s.blobs.Delete(context.Background(), ref))

	rec := s.do(t, http.MethodPost, "/api/v1/admin/reconcile", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		st := s.pipeline.Status()
		return !st.Running && st.Last != nil
	}, defaultWait, pollEvery)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/reconcile", "", nil)
	status := decodeBody[reconcile.SweepStatus](t, rec)
	require.NotNil(t, status.Last)
	assert.Equal(t, 1, status.Last.Invalidated)

	rec = s.do(t, http.MethodDelete, "/api/v1/admin/reconcile", "", nil)
	assert.Equal(t, false, decodeBody[map[string]bool](t, rec)["cancelled"])

	require.NoError(t, s.store.SetCategoryCount(context.Background(), common.CategoryMusic, 9))
	rec = s.do(t, http.MethodPost, "/api/v1/admin/recount", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), categoryCount(t, s.store, common.CategoryMusic))

	rec = s.do(t, http.MethodPost, "/api/v1/admin/cleanup", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
