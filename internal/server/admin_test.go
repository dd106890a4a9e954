package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/kettle/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAdminHealthAndReady(t *testing.T) {
	testlog.Start(t)

	svc := NewService(testConfig(), nil)
	r := svc.AdminRouter()

	w := get(t, r, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("health status: %d", w.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["service"] != "kettle-test" || health["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", health)
	}

	if w := get(t, r, "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected not ready before serve, got %d", w.Code)
	}
}

func TestAdminSessionsListsLiveConnections(t *testing.T) {
	testlog.Start(t)

	svc, addr, stop := startService(t, testConfig(), nil)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, "session", func() bool { return len(svc.SnapshotSessions()) == 1 })

	r := svc.AdminRouter()
	if w := get(t, r, "/ready"); w.Code != http.StatusOK {
		t.Fatalf("expected ready while serving, got %d", w.Code)
	}

	w := get(t, r, "/sessions")
	if w.Code != http.StatusOK {
		t.Fatalf("sessions status: %d", w.Code)
	}
	var body struct {
		Count    int           `json:"count"`
		Limit    int           `json:"limit"`
		Sessions []SessionInfo `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if body.Count != 1 || len(body.Sessions) != 1 {
		t.Fatalf("unexpected sessions body: %s", w.Body.String())
	}
	if body.Sessions[0].RemoteAddr != conn.LocalAddr().String() {
		t.Fatalf("unexpected remote addr: %q want %q", body.Sessions[0].RemoteAddr, conn.LocalAddr().String())
	}
	if body.Limit != testConfig().MaxSessions {
		t.Fatalf("unexpected limit: %d", body.Limit)
	}
}

func TestAdminMetricsExposesKettleSeries(t *testing.T) {
	testlog.Start(t)

	svc := NewService(testConfig(), nil)
	r := svc.AdminRouter()
	_ = get(t, r, "/health")

	w := get(t, r, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "kettle_http_requests_total") {
		t.Fatalf("expected kettle http metrics in output")
	}
}

func TestAdminCORSAllowsConfiguredOrigin(t *testing.T) {
	svc := NewService(testConfig(), nil)
	r := svc.AdminRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin: %q", got)
	}
}
