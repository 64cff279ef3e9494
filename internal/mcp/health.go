package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON body of the /health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Qdrant    string `json:"qdrant"`
	Index     string `json:"index"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker reports backing-store connectivity. The storage layer
// implements this via its Health() method.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ReadyChecker reports whether an index generation is loaded.
type ReadyChecker interface {
	Ready() bool
}

// NewHealthHandler creates the /health endpoint. It returns 200 only when
// Qdrant is reachable and an index generation is serving; a reachable store
// with no loaded index reports 503 "warming" so orchestrators hold traffic
// until the first sync completes.
func NewHealthHandler(store HealthChecker, ready ReadyChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")

		if err := store.Health(ctx); err != nil {
			response.Status = "unhealthy"
			response.Qdrant = "disconnected"
			response.Index = "unknown"
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(response)
			return
		}
		response.Qdrant = "connected"

		if !ready.Ready() {
			response.Status = "warming"
			response.Index = "not_loaded"
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(response)
			return
		}

		response.Status = "healthy"
		response.Index = "serving"
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}
