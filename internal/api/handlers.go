// Package api exposes the file store over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/ryanuber/go-glob"
	"github.com/sirupsen/logrus"

	"github.com/viktor/chat-storage-gateway/internal/audit"
	"github.com/viktor/chat-storage-gateway/internal/metrics"
	"github.com/viktor/chat-storage-gateway/internal/middleware"
	"github.com/viktor/chat-storage-gateway/internal/storage"
	"github.com/viktor/chat-storage-gateway/internal/tracker"
)

// CaptionHeader carries the optional remote-side caption on uploads.
const CaptionHeader = "X-File-Caption"

// Handler handles HTTP requests for file operations.
type Handler struct {
	store       *storage.Store
	logger      *logrus.Logger
	metrics     *metrics.Metrics
	auditLogger audit.Logger
	maxBodySize int64
}

// NewHandler creates an API handler. auditLogger may be nil; maxBodySize of
// zero disables the request body limit.
func NewHandler(store *storage.Store, logger *logrus.Logger, m *metrics.Metrics, auditLogger audit.Logger, maxBodySize int64) *Handler {
	return &Handler{
		store:       store,
		logger:      logger,
		metrics:     m,
		auditLogger: auditLogger,
		maxBodySize: maxBodySize,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealth).Methods("GET")
	r.HandleFunc("/ready", h.handleReady).Methods("GET")
	r.HandleFunc("/live", h.handleLive).Methods("GET")

	r.HandleFunc("/files", h.handleListFiles).Methods("GET")
	r.HandleFunc("/copy", h.handleCopy).Methods("POST")
	r.HandleFunc("/move", h.handleMove).Methods("POST")

	r.HandleFunc("/files/{path:.*}", h.handleGetFile).Methods("GET")
	r.HandleFunc("/files/{path:.*}", h.handlePutFile).Methods("PUT")
	r.HandleFunc("/files/{path:.*}", h.handleDeleteFile).Methods("DELETE")
	r.HandleFunc("/files/{path:.*}", h.handleHeadFile).Methods("HEAD")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *Handler) handlePutFile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := mux.Vars(r)["path"]
	if path == "" {
		h.writeError(w, r, ErrEmptyPath, start)
		return
	}

	body := r.Body
	if h.maxBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}
	contents, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, r, ErrBodyTooLarge, start)
			return
		}
		h.logger.WithError(err).Warn("Failed to read request body")
		h.writeError(w, r, ErrInvalidRequest, start)
		return
	}

	opts := storage.Options{
		Caption:  r.Header.Get(CaptionHeader),
		MimeType: r.Header.Get("Content-Type"),
	}

	err = h.store.Write(r.Context(), path, contents, opts)
	h.audit(r, audit.EventTypeWrite, path, "", int64(len(contents)), err, start)
	if err != nil {
		h.logger.WithField("path", path).WithError(err).Error("Write failed")
		h.writeError(w, r, TranslateError(err, path), start)
		return
	}

	h.recordHTTP(r, http.StatusCreated, start, int64(len(contents)))
	writeJSON(w, http.StatusCreated, map[string]any{
		"path": path,
		"size": len(contents),
	})
}

func (h *Handler) handleGetFile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := mux.Vars(r)["path"]
	if path == "" {
		h.writeError(w, r, ErrEmptyPath, start)
		return
	}

	contents, err := h.store.Read(r.Context(), path)
	h.audit(r, audit.EventTypeRead, path, "", int64(len(contents)), err, start)
	if err != nil {
		apiErr := TranslateError(err, path)
		if apiErr.HTTPStatus >= http.StatusInternalServerError {
			h.logger.WithField("path", path).WithError(err).Error("Read failed")
		}
		h.writeError(w, r, apiErr, start)
		return
	}

	contentType := "application/octet-stream"
	if record, err := h.store.Get(r.Context(), path); err == nil && record != nil {
		if record.MimeType != "" {
			contentType = record.MimeType
		}
		w.Header().Set("X-File-Chunked", strconv.FormatBool(record.IsChunked))
		w.Header().Set("X-File-Encrypted", strconv.FormatBool(record.IsEncrypted))
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(contents)))
	w.WriteHeader(http.StatusOK)
	w.Write(contents)

	h.recordHTTP(r, http.StatusOK, start, int64(len(contents)))
}

func (h *Handler) handleHeadFile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := mux.Vars(r)["path"]
	if path == "" {
		h.writeError(w, r, ErrEmptyPath, start)
		return
	}

	record, err := h.store.Get(r.Context(), path)
	if err != nil {
		h.writeError(w, r, TranslateError(err, path), start)
		return
	}
	if record == nil {
		w.WriteHeader(http.StatusNotFound)
		h.recordHTTP(r, http.StatusNotFound, start, 0)
		return
	}

	if record.MimeType != "" {
		w.Header().Set("Content-Type", record.MimeType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(record.OriginalSize, 10))
	w.Header().Set("X-File-Chunked", strconv.FormatBool(record.IsChunked))
	w.Header().Set("X-File-Encrypted", strconv.FormatBool(record.IsEncrypted))
	w.WriteHeader(http.StatusOK)

	h.recordHTTP(r, http.StatusOK, start, 0)
}

func (h *Handler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := mux.Vars(r)["path"]
	if path == "" {
		h.writeError(w, r, ErrEmptyPath, start)
		return
	}

	err := h.store.Forget(r.Context(), path)
	h.audit(r, audit.EventTypeForget, path, "", 0, err, start)
	if err != nil {
		h.logger.WithField("path", path).WithError(err).Error("Forget failed")
		h.writeError(w, r, TranslateError(err, path), start)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	h.recordHTTP(r, http.StatusNoContent, start, 0)
}

// listEntry is one row in the list response.
type listEntry struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	MimeType    string    `json:"mime_type,omitempty"`
	IsChunked   bool      `json:"is_chunked"`
	IsEncrypted bool      `json:"is_encrypted"`
	Segments    int       `json:"segments"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	prefix := r.URL.Query().Get("prefix")
	match := r.URL.Query().Get("match")

	records, err := h.store.List(r.Context(), prefix)
	if err != nil {
		h.logger.WithField("prefix", prefix).WithError(err).Error("List failed")
		h.writeError(w, r, TranslateError(err, prefix), start)
		return
	}

	entries := make([]listEntry, 0, len(records))
	for _, record := range records {
		if match != "" && !glob.Glob(match, record.Path) {
			continue
		}
		entries = append(entries, toListEntry(record))
	}

	h.recordHTTP(r, http.StatusOK, start, 0)
	writeJSON(w, http.StatusOK, map[string]any{
		"prefix": prefix,
		"files":  entries,
	})
}

func toListEntry(record *tracker.FileRecord) listEntry {
	return listEntry{
		Path:        record.Path,
		Size:        record.OriginalSize,
		MimeType:    record.MimeType,
		IsChunked:   record.IsChunked,
		IsEncrypted: record.IsEncrypted,
		Segments:    len(record.RemoteIDs),
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

// transferRequest is the body of copy and move requests.
type transferRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

func (h *Handler) decodeTransfer(r *http.Request) (*transferRequest, *APIError) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, ErrInvalidRequest
	}
	if req.Source == "" || req.Destination == "" {
		return nil, &APIError{
			Code:       "InvalidRequest",
			Message:    "Both source and destination are required.",
			HTTPStatus: http.StatusBadRequest,
		}
	}
	return &req, nil
}

func (h *Handler) handleCopy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, apiErr := h.decodeTransfer(r)
	if apiErr != nil {
		h.writeError(w, r, apiErr, start)
		return
	}

	err := h.store.Copy(r.Context(), req.Source, req.Destination)
	h.audit(r, audit.EventTypeCopy, req.Source, req.Destination, 0, err, start)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"source":      req.Source,
			"destination": req.Destination,
		}).WithError(err).Error("Copy failed")
		h.writeError(w, r, TranslateError(err, req.Source), start)
		return
	}

	h.recordHTTP(r, http.StatusOK, start, 0)
	writeJSON(w, http.StatusOK, map[string]string{
		"source":      req.Source,
		"destination": req.Destination,
	})
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, apiErr := h.decodeTransfer(r)
	if apiErr != nil {
		h.writeError(w, r, apiErr, start)
		return
	}

	err := h.store.Move(r.Context(), req.Source, req.Destination)
	h.audit(r, audit.EventTypeMove, req.Source, req.Destination, 0, err, start)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"source":      req.Source,
			"destination": req.Destination,
		}).WithError(err).Error("Move failed")
		h.writeError(w, r, TranslateError(err, req.Source), start)
		return
	}

	h.recordHTTP(r, http.StatusOK, start, 0)
	writeJSON(w, http.StatusOK, map[string]string{
		"source":      req.Source,
		"destination": req.Destination,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, apiErr *APIError, start time.Time) {
	// Copy before stamping the request id: some callers pass shared
	// sentinel errors.
	e := *apiErr
	if e.RequestID == "" {
		e.RequestID = middleware.RequestIDFromContext(r.Context())
	}
	e.WriteJSON(w)
	h.recordHTTP(r, e.HTTPStatus, start, 0)
}

func (h *Handler) recordHTTP(r *http.Request, status int, start time.Time, bytes int64) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordHTTPRequest(r.Method, r.URL.Path, status, time.Since(start), bytes)
}

func (h *Handler) audit(r *http.Request, eventType audit.EventType, path, destination string, bytes int64, err error, start time.Time) {
	if h.auditLogger == nil {
		return
	}

	event := &audit.Event{
		Timestamp:   time.Now(),
		EventType:   eventType,
		Path:        path,
		Destination: destination,
		ClientIP:    r.RemoteAddr,
		RequestID:   middleware.RequestIDFromContext(r.Context()),
		Bytes:       bytes,
		Success:     err == nil,
		DurationMs:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
	}

	h.auditLogger.Log(event)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
