package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingerMock struct {
	err error
}

func (m *pingerMock) Ping(context.Context) error { return m.err }

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestLive_Always200(t *testing.T) {
	t.Parallel()

	down := &pingerMock{err: errors.New("down")}
	h := NewHealthHandler(down, down, "v1")

	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if resp := decodeHealth(t, rec); resp.Status != "ok" || resp.Timestamp.IsZero() {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		remoteErr error
		cacheErr  error
		wantCode  int
	}{
		{name: "all up", wantCode: http.StatusOK},
		{name: "remote down is still ready", remoteErr: errors.New("refused"), wantCode: http.StatusOK},
		{name: "cache down", cacheErr: errors.New("locked"), wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthHandler(&pingerMock{err: tt.remoteErr}, &pingerMock{err: tt.cacheErr}, "v1")
			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteErr  error
		cacheErr   error
		wantCode   int
		wantStatus string
	}{
		{name: "all up", wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "offline", remoteErr: errors.New("no route"), wantCode: http.StatusOK, wantStatus: "degraded"},
		{name: "cache broken", cacheErr: errors.New("disk"), wantCode: http.StatusServiceUnavailable, wantStatus: "down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthHandler(&pingerMock{err: tt.remoteErr}, &pingerMock{err: tt.cacheErr}, "1.2.3")
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status code: got %d, want %d", rec.Code, tt.wantCode)
			}
			resp := decodeHealth(t, rec)
			if resp.Status != tt.wantStatus {
				t.Errorf("status: got %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Version != "1.2.3" {
				t.Errorf("version: got %q", resp.Version)
			}
			db, ok := resp.Components["database"]
			if !ok {
				t.Fatal("missing database component")
			}
			if tt.remoteErr != nil && (db.Status != "down" || db.Error == "") {
				t.Errorf("database component: %+v", db)
			}
			if tt.remoteErr == nil && db.Latency == "" {
				t.Error("expected latency for a reachable database")
			}
		})
	}
}
