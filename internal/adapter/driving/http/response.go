package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/blocksync/internal/application"
	"github.com/ericfisherdev/blocksync/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// EnqueueRequest is the body of POST /api/v1/handles.
type EnqueueRequest struct {
	Platform string   `json:"platform"`
	Handles  []string `json:"handles"`
}

// CredentialsRequest is the body of POST /api/v1/platforms/{platform}/credentials.
// Tokens are keyed by token type name. Expires is optional epoch seconds.
type CredentialsRequest struct {
	Tokens  map[string]string `json:"tokens"`
	Expires int64             `json:"expires,omitempty"`
}

// HandleResponse is the JSON representation of a handle record.
type HandleResponse struct {
	Key            string `json:"key"`
	Handle         string `json:"handle"`
	Platform       string `json:"platform"`
	BlockStatus    string `json:"block_status"`
	PlatformStatus string `json:"platform_status"`
	LastChanged    string `json:"last_changed"`
}

// RemoteAccountResponse is the JSON representation of a remotely blocked account.
type RemoteAccountResponse struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Name   string `json:"name,omitempty"`
}

// RequeueResponse reports how many attempted records were re-queued.
type RequeueResponse struct {
	Platform string `json:"platform"`
	Requeued int    `json:"requeued"`
}

// ProgressResponse is the per-status handle count for a platform.
type ProgressResponse struct {
	Platform string         `json:"platform"`
	Total    int            `json:"total"`
	Counts   map[string]int `json:"counts"`
}

// HealthResponse is the JSON body for the health check endpoint.
type HealthResponse struct {
	Status     string                         `json:"status"`
	Time       string                         `json:"time"`
	Reconciler application.ReconcilerSnapshot `json:"reconciler"`
}

func toHandleResponse(rec model.HandleRecord) HandleResponse {
	return HandleResponse{
		Key:            rec.Key,
		Handle:         rec.Handle,
		Platform:       string(rec.Platform),
		BlockStatus:    string(rec.BlockStatus),
		PlatformStatus: string(rec.PlatformStatus),
		LastChanged:    rec.LastChanged.UTC().Format(time.RFC3339),
	}
}

func toRemoteAccountResponse(a model.RemoteAccount) RemoteAccountResponse {
	return RemoteAccountResponse{ID: a.ID, Handle: a.Handle, Name: a.Name}
}

func toProgressResponse(p application.Progress) ProgressResponse {
	counts := make(map[string]int, len(p.Counts))
	for status, n := range p.Counts {
		counts[string(status)] = n
	}
	return ProgressResponse{Platform: string(p.Platform), Total: p.Total, Counts: counts}
}
