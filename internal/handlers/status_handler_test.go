package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/koios/eplayer/pkg/models"
)

func setupStatusServer(t *testing.T) (*testController, *http.ServeMux) {
	t.Helper()

	tc := newTestController(t)
	h := NewStatusHandler(tc.Controller, "1920x1080 32bpp", "1.2.0", zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return tc, mux
}

func TestHealthEndpoint(t *testing.T) {
	_, mux := setupStatusServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" || body["version"] != "1.2.0" {
		t.Errorf("body = %v", body)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	_, mux := setupStatusServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestStatusEndpoint(t *testing.T) {
	tc, mux := setupStatusServer(t)
	tc.state.SetTaskID("T-5")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body struct {
		Geometry string `json:"geometry"`
		Agent    Status `json:"agent"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Geometry != "1920x1080 32bpp" {
		t.Errorf("geometry = %q", body.Geometry)
	}
	if body.Agent.DeviceID != "6A10000000FF" || body.Agent.TaskID != "T-5" {
		t.Errorf("agent = %+v", body.Agent)
	}
	if !body.Agent.Connected || body.Agent.HeartbeatSeconds != 60 {
		t.Errorf("agent = %+v", body.Agent)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		seed       bool
		wantStatus int
		wantQueued int
	}{
		{"wrong method", http.MethodGet, true, http.StatusMethodNotAllowed, 0},
		{"no playlist", http.MethodPost, false, http.StatusNotFound, 0},
		{"stored playlist", http.MethodPost, true, http.StatusOK, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, mux := setupStatusServer(t)
			if tt.seed {
				body, _ := json.Marshal(models.Playlist{
					Device: "6A10000000FF",
					Items:  []models.MediaDescriptor{{ID: "a"}},
				})
				if _, err := tc.store.Save(body); err != nil {
					t.Fatalf("Save: %v", err)
				}
			}

			req := httptest.NewRequest(tt.method, "/refresh", nil)
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := len(tc.downloads.ids()); got != tt.wantQueued {
				t.Errorf("enqueued = %d, want %d", got, tt.wantQueued)
			}
		})
	}
}
