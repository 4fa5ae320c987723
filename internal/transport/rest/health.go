package rest

import (
	"context"
	"net/http"
	"time"
)

// pinger is anything whose reachability can be probed.
type pinger interface {
	Ping(ctx context.Context) error
}

const pingTimeout = 3 * time.Second

// HealthHandler serves the probe endpoints. The daemon works offline, so an
// unreachable remote database degrades health but does not make it unready;
// an unusable local cache does.
type HealthHandler struct {
	remote  pinger
	cache   pinger
	version string
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(remote, cache pinger, version string) *HealthHandler {
	return &HealthHandler{remote: remote, cache: cache, version: version}
}

// HealthResponse is the JSON response of the probe endpoints.
type HealthResponse struct {
	Status     string                `json:"status"`
	Version    string                `json:"version,omitempty"`
	Components map[string]CompStatus `json:"components,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// CompStatus is the status of one component.
type CompStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Live always answers 200.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now()})
}

// Ready answers 503 only when the local cache is unusable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := h.cache.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "down", Timestamp: time.Now()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now()})
}

// Health reports every component with its latency. Overall status is "ok",
// "degraded" when only the remote is unreachable, or "down".
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	cache := probe(ctx, h.cache)
	remote := probe(ctx, h.remote)

	status, code := "ok", http.StatusOK
	switch {
	case cache.Status != "ok":
		status, code = "down", http.StatusServiceUnavailable
	case remote.Status != "ok":
		status = "degraded"
	}

	writeJSON(w, code, HealthResponse{
		Status:  status,
		Version: h.version,
		Components: map[string]CompStatus{
			"cache":    cache,
			"database": remote,
		},
		Timestamp: time.Now(),
	})
}

func probe(ctx context.Context, p pinger) CompStatus {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return CompStatus{Status: "down", Error: err.Error()}
	}
	return CompStatus{Status: "ok", Latency: time.Since(start).String()}
}
