package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ignite/engagement-tracker/internal/eventlog"
	"github.com/ignite/engagement-tracker/internal/images"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/tracking"
)

// Handlers contains all HTTP handlers for the tracking service
type Handlers struct {
	recorder *tracking.Recorder
	query    *tracking.Query
	resolver *images.Resolver
	events   *eventlog.Store
	imgReads *eventlog.Store
}

// NewHandlers creates a new Handlers instance
func NewHandlers(recorder *tracking.Recorder, query *tracking.Query, resolver *images.Resolver, events, imgReads *eventlog.Store) *Handlers {
	return &Handlers{
		recorder: recorder,
		query:    query,
		resolver: resolver,
		events:   events,
		imgReads: imgReads,
	}
}

// HandleImg serves the tracking pixel and image proxy.
//
//	GET /api/img?email=...&image=...&message_id=...
//
// The open is logged unless the dedup window suppresses it; the image
// reference then resolves to local bytes, a proxied remote image, or the
// placeholder pixel. Resolution failures never surface as HTTP errors —
// a broken image in the recipient's mail client would reveal the tracker.
func (h *Handlers) HandleImg(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}
	messageID := r.URL.Query().Get("message_id")
	imageParam := decodeImageParam(r.URL.Query().Get("image"))

	logged, err := h.recorder.RecordOpen(tracking.Event{
		Email:      email,
		MessageID:  messageID,
		ImageParam: imageParam,
		UserAgent:  r.UserAgent(),
		RemoteAddr: realIP(r),
	})
	if err != nil {
		// Pixel delivery has priority over bookkeeping.
		logger.Error("open event append failed", "error", err.Error())
	} else if logged {
		logger.Info("pixel open", "email", email, "message_id", messageID)
	}

	content, ctype := h.resolver.Resolve(r.Context(), imageParam, email, messageID)

	writeNoCacheHeaders(w)
	w.Header().Set("Content-Type", ctype)
	w.Write(content)
}

// HandleClick logs a click event and redirects to the caller-supplied
// target.
//
//	GET /api/click?email=...&redirect=...&message_id=...
//
// The redirect target is not validated; this is a known open-redirect
// exposure accepted for link tracking.
func (h *Handlers) HandleClick(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	redirect := r.URL.Query().Get("redirect")
	if email == "" || redirect == "" {
		respondWithError(w, http.StatusBadRequest, "email and redirect are required")
		return
	}
	messageID := r.URL.Query().Get("message_id")

	err := h.recorder.RecordClick(tracking.Event{
		Email:      email,
		MessageID:  messageID,
		Redirect:   redirect,
		UserAgent:  r.UserAgent(),
		RemoteAddr: realIP(r),
	})
	if err != nil {
		logger.Error("click event append failed", "error", err.Error())
	} else {
		logger.Info("click", "email", email, "message_id", messageID, "redirect", redirect)
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

// HandleByEmail returns a recipient's opens, clicks and image reads.
//
//	GET /tracking/by_email?email=...
func (h *Handlers) HandleByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}

	activity, err := h.query.ByEmail(email)
	if err != nil {
		logger.Error("by_email query failed", "error", err.Error())
		respondWithError(w, http.StatusInternalServerError, "failed to read event logs")
		return
	}
	respondJSON(w, http.StatusOK, activity)
}

// HandleLatest returns the newest records of both logs.
//
//	GET /tracking/latest?n=200
func (h *Handlers) HandleLatest(w http.ResponseWriter, r *http.Request) {
	n := tracking.DefaultLatestN
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}

	latest, err := h.query.Latest(n)
	if err != nil {
		logger.Error("latest query failed", "error", err.Error())
		respondWithError(w, http.StatusInternalServerError, "failed to read event logs")
		return
	}
	respondJSON(w, http.StatusOK, latest)
}

// HandleDownload streams the raw primary log.
//
//	GET /tracking/download
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	h.serveLog(w, r, h.events)
}

// HandleDownloadImgReads streams the raw image-read log.
//
//	GET /tracking/download_imgreads
func (h *Handlers) HandleDownloadImgReads(w http.ResponseWriter, r *http.Request) {
	h.serveLog(w, r, h.imgReads)
}

func (h *Handlers) serveLog(w http.ResponseWriter, r *http.Request, store *eventlog.Store) {
	// An untouched deployment has no log yet; download still succeeds
	// with an empty file.
	if err := store.Ensure(); err != nil {
		logger.Error("log file create failed", "path", store.Path(), "error", err.Error())
		respondWithError(w, http.StatusInternalServerError, "failed to open log file")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename=`+filepath.Base(store.Path()))
	w.Header().Set("Content-Type", "application/x-ndjson")
	http.ServeFile(w, r, store.Path())
}

// HandleTest is the liveness probe.
//
//	GET /api/test
func (h *Handlers) HandleTest(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "API is working!",
	})
}

// HandleHealth reports process health.
//
//	GET /health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// writeNoCacheHeaders forces mail clients to re-request the pixel on
// every render instead of serving it from cache.
func writeNoCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Content-Disposition", "inline; filename=pixel.gif")
}

// decodeImageParam undoes one extra round of URL encoding. Image
// references arrive double-encoded from some template engines; a value
// that does not decode is used as-is.
func decodeImageParam(image string) string {
	if image == "" {
		return ""
	}
	if decoded, err := url.QueryUnescape(image); err == nil {
		return decoded
	}
	return image
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]interface{}{
		"error": message,
	})
}
