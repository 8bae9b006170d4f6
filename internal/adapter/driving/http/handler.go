// Package httphandler serves the local JSON API used by the list subscription,
// credential capture and progress views.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/blocksync/internal/application"
	"github.com/ericfisherdev/blocksync/internal/domain/model"
	"github.com/ericfisherdev/blocksync/internal/domain/port/driven"
)

// maxBodyBytes bounds request bodies. Large lists are expected on enqueue.
const maxBodyBytes = 8 << 20

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	subs       *application.SubscriptionService
	creds      *application.CredentialService
	blockList  *application.BlockListSync
	reconciler *application.Reconciler
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	subs *application.SubscriptionService,
	creds *application.CredentialService,
	blockList *application.BlockListSync,
	reconciler *application.Reconciler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		subs:       subs,
		creds:      creds,
		blockList:  blockList,
		reconciler: reconciler,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request ID, logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/handles", h.Enqueue)
	mux.HandleFunc("GET /api/v1/handles", h.ListHandles)
	mux.HandleFunc("GET /api/v1/handles/{platform}/{handle}", h.GetHandle)
	mux.HandleFunc("POST /api/v1/handles/{platform}/{handle}/unblock", h.RequestUnblock)
	mux.HandleFunc("POST /api/v1/platforms/{platform}/requeue", h.Requeue)
	mux.HandleFunc("GET /api/v1/platforms/{platform}/progress", h.Progress)
	mux.HandleFunc("POST /api/v1/platforms/{platform}/credentials", h.CaptureCredentials)
	mux.HandleFunc("GET /api/v1/platforms/{platform}/blocked", h.ListBlocked)
	mux.HandleFunc("POST /api/v1/platforms/{platform}/sync", h.SyncBlocked)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Enqueue seeds TO_BLOCK records for a subscribed list.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	platform, err := model.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Handles) == 0 {
		writeError(w, http.StatusBadRequest, "handles must not be empty")
		return
	}

	res, err := h.subs.Enqueue(r.Context(), platform, req.Handles)
	if err != nil {
		h.writeServiceError(w, r, "failed to enqueue handles", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ListHandles returns handle records filtered by the optional platform and
// status query parameters.
func (h *Handler) ListHandles(w http.ResponseWriter, r *http.Request) {
	var (
		platform model.Platform
		status   model.BlockStatus
		err      error
	)

	if v := r.URL.Query().Get("platform"); v != "" {
		if platform, err = model.ParsePlatform(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		if status, err = model.ParseBlockStatus(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	records, err := h.subs.List(r.Context(), platform, status)
	if err != nil {
		h.writeServiceError(w, r, "failed to list handles", err)
		return
	}

	resp := make([]HandleResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toHandleResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetHandle returns a single handle record.
func (h *Handler) GetHandle(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	rec, err := h.subs.Get(r.Context(), platform, r.PathValue("handle"))
	if err != nil {
		h.writeServiceError(w, r, "failed to get handle", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "handle not found")
		return
	}

	writeJSON(w, http.StatusOK, toHandleResponse(*rec))
}

// RequestUnblock queues an unblock intent.
func (h *Handler) RequestUnblock(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	if err := h.subs.RequestUnblock(r.Context(), platform, r.PathValue("handle")); err != nil {
		h.writeServiceError(w, r, "failed to request unblock", err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Requeue moves attempted records of a platform back to pending.
func (h *Handler) Requeue(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	n, err := h.subs.Requeue(r.Context(), platform)
	if err != nil {
		h.writeServiceError(w, r, "failed to requeue handles", err)
		return
	}

	writeJSON(w, http.StatusOK, RequeueResponse{Platform: string(platform), Requeued: n})
}

// Progress returns per-status counts for a platform.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	p, err := h.subs.Progress(r.Context(), platform)
	if err != nil {
		h.writeServiceError(w, r, "failed to load progress", err)
		return
	}

	writeJSON(w, http.StatusOK, toProgressResponse(p))
}

// CaptureCredentials stores secrets observed by the capture flow. Values are
// never echoed back.
func (h *Handler) CaptureCredentials(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var bundle model.CredentialBundle
	for name, value := range req.Tokens {
		tt, err := model.ParseTokenType(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		bundle.Set(tt, value)
	}
	if req.Expires > 0 {
		bundle.Expires = time.Unix(req.Expires, 0).UTC()
	}

	if err := h.creds.Capture(r.Context(), platform, bundle); err != nil {
		h.writeServiceError(w, r, "failed to store credentials", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListBlocked returns the accounts currently blocked on the remote platform.
func (h *Handler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	accounts, err := h.blockList.Remote(r.Context(), platform)
	if err != nil {
		h.writeServiceError(w, r, "failed to list blocked accounts", err)
		return
	}

	resp := make([]RemoteAccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toRemoteAccountResponse(a))
	}

	writeJSON(w, http.StatusOK, resp)
}

// SyncBlocked refreshes local platform_status values from the remote block list.
func (h *Handler) SyncBlocked(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	res, err := h.blockList.Sync(r.Context(), platform)
	if err != nil {
		h.writeServiceError(w, r, "failed to sync block list", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Health returns the service status and the reconciler snapshot.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339),
		Reconciler: h.reconciler.Snapshot(),
	})
}

// pathPlatform parses the {platform} path value, writing a 400 on failure.
func pathPlatform(w http.ResponseWriter, r *http.Request) (model.Platform, bool) {
	platform, err := model.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return platform, true
}

// writeServiceError maps application errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, model.ErrUnknownPlatform),
		errors.Is(err, model.ErrUnknownTokenType),
		errors.Is(err, application.ErrInvalidHandle),
		errors.Is(err, application.ErrEmptyCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, application.ErrUnblockDisabled),
		errors.Is(err, application.ErrStatusChanged):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, application.ErrNoAdapter):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error(msg, "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, msg)
	}
}
