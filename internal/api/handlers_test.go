package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-tracker/internal/eventlog"
	"github.com/ignite/engagement-tracker/internal/images"
	"github.com/ignite/engagement-tracker/internal/pkg/httpfetch"
	"github.com/ignite/engagement-tracker/internal/tracking"
)

type testEnv struct {
	router    http.Handler
	events    *eventlog.Store
	imgReads  *eventlog.Store
	uploadDir string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	uploadDir := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploadDir, 0755))

	events := eventlog.New(filepath.Join(dir, "tracking_logs.jsonl"))
	imgReads := eventlog.New(filepath.Join(dir, "img_reads.jsonl"))

	recorder := tracking.NewRecorder(events, 10*time.Minute)
	query := tracking.NewQuery(events, imgReads)
	resolver := images.NewResolver(uploadDir, imgReads, httpfetch.New(nil, 100*time.Millisecond))

	h := NewHandlers(recorder, query, resolver, events, imgReads)
	return &testEnv{
		router:    SetupRoutes(h),
		events:    events,
		imgReads:  imgReads,
		uploadDir: uploadDir,
	}
}

func (env *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) primaryEvents(t *testing.T) []tracking.Event {
	t.Helper()
	records, err := env.events.ReadAll()
	require.NoError(t, err)
	out := make([]tracking.Event, 0, len(records))
	for _, raw := range records {
		var e tracking.Event
		require.NoError(t, json.Unmarshal(raw, &e))
		out = append(out, e)
	}
	return out
}

func TestImgServesPlaceholderAndLogsOpen(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/api/img?email=a@x.com&message_id=m1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
	assert.Equal(t, "inline; filename=pixel.gif", rec.Header().Get("Content-Disposition"))

	gif, _ := images.Placeholder()
	assert.Equal(t, gif, rec.Body.Bytes())

	events := env.primaryEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, tracking.EventPixelOpen, events[0].Type)
	assert.Equal(t, "a@x.com", events[0].Email)
	assert.Equal(t, "m1", events[0].MessageID)
	assert.NotEmpty(t, events[0].Time)
	assert.NotEmpty(t, events[0].EventID)
}

func TestImgDedupWithinWindow(t *testing.T) {
	env := setupTestEnv(t)

	first := env.get(t, "/api/img?email=a@x.com&message_id=m1")
	second := env.get(t, "/api/img?email=a@x.com&message_id=m1")

	// Both requests succeed; only one open is logged.
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, env.primaryEvents(t), 1)
}

func TestImgDifferentMessageNotDeduped(t *testing.T) {
	env := setupTestEnv(t)

	env.get(t, "/api/img?email=a@x.com&message_id=m1")
	env.get(t, "/api/img?email=a@x.com&message_id=m2")

	assert.Len(t, env.primaryEvents(t), 2)
}

func TestImgMissingEmail(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/api/img")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.primaryEvents(t))
}

func TestImgServesLocalUpload(t *testing.T) {
	env := setupTestEnv(t)

	pngBytes := []byte{0x89, 'P', 'N', 'G'}
	require.NoError(t, os.WriteFile(filepath.Join(env.uploadDir, "photo.png"), pngBytes, 0644))

	rec := env.get(t, "/api/img?email=a@x.com&message_id=m1&image=photo.png")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	reads, err := env.imgReads.ReadAll()
	require.NoError(t, err)
	assert.Len(t, reads, 1)
}

func TestImgRemoteFailureDegradesToPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	env := setupTestEnv(t)

	remote := url.QueryEscape(srv.URL + "/pic.jpg")
	rec := env.get(t, "/api/img?email=a@x.com&message_id=m1&image="+remote)

	require.Equal(t, http.StatusOK, rec.Code)
	gif, _ := images.Placeholder()
	assert.Equal(t, gif, rec.Body.Bytes())

	reads, err := env.imgReads.ReadAll()
	require.NoError(t, err)
	require.Len(t, reads, 1)

	var read tracking.ImageReadEvent
	require.NoError(t, json.Unmarshal(reads[0], &read))
	assert.Equal(t, tracking.ServedRemote, read.Served)
	assert.NotEmpty(t, read.Error)
}

func TestClickLogsAndRedirects(t *testing.T) {
	env := setupTestEnv(t)

	target := url.QueryEscape("https://example.com/offer")
	rec := env.get(t, "/api/click?email=a@x.com&message_id=m1&redirect="+target)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/offer", rec.Header().Get("Location"))

	events := env.primaryEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, tracking.EventClick, events[0].Type)
	assert.Equal(t, "https://example.com/offer", events[0].Redirect)
}

func TestClickRepeatsAreAllLogged(t *testing.T) {
	env := setupTestEnv(t)

	target := url.QueryEscape("https://example.com/offer")
	env.get(t, "/api/click?email=a@x.com&redirect="+target)
	env.get(t, "/api/click?email=a@x.com&redirect="+target)

	assert.Len(t, env.primaryEvents(t), 2)
}

func TestClickMissingParams(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/api/click?email=a@x.com")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get(t, "/api/click?redirect=https%3A%2F%2Fexample.com")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestByEmail(t *testing.T) {
	env := setupTestEnv(t)

	env.get(t, "/api/img?email=a@x.com&message_id=m1")
	env.get(t, "/api/click?email=a@x.com&message_id=m1&redirect="+url.QueryEscape("https://example.com"))
	env.get(t, "/api/img?email=b@x.com&message_id=m9")

	rec := env.get(t, "/tracking/by_email?email=a@x.com")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Opens    []json.RawMessage `json:"opens"`
		Clicks   []json.RawMessage `json:"clicks"`
		ImgReads []json.RawMessage `json:"img_reads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Opens, 1)
	assert.Len(t, body.Clicks, 1)
	assert.Empty(t, body.ImgReads)
}

func TestByEmailMissingParam(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/tracking/by_email")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatest(t *testing.T) {
	env := setupTestEnv(t)

	env.get(t, "/api/img?email=a@x.com&message_id=m1")
	env.get(t, "/api/img?email=a@x.com&message_id=m2")
	env.get(t, "/api/img?email=a@x.com&message_id=m3")

	rec := env.get(t, "/tracking/latest?n=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events   []tracking.Event  `json:"events"`
		ImgReads []json.RawMessage `json:"img_reads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 2)
	assert.Equal(t, "m3", body.Events[0].MessageID)
	assert.Equal(t, "m2", body.Events[1].MessageID)
}

func TestDownloadReturnsRawLog(t *testing.T) {
	env := setupTestEnv(t)

	env.get(t, "/api/img?email=a@x.com&message_id=m1")

	// A corrupt line is part of the raw file and must survive download.
	f, err := os.OpenFile(env.events.Path(), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{corrupt\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rec := env.get(t, "/tracking/download")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "{corrupt")
	assert.Contains(t, rec.Body.String(), "pixel_open")
}

func TestDownloadBeforeAnyEvent(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/tracking/download_imgreads")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestApiTest(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/api/test")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRealIPPrefersForwardedFor(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/img?email=a@x.com&message_id=m1", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	events := env.primaryEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, "203.0.113.7", events[0].RemoteAddr)
}
