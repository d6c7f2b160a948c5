package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// startTestServer starts a server on a random port and stops it on cleanup
func startTestServer(t *testing.T) *Server {
	t.Helper()
	config := DefaultConfig()
	config.Port = 0
	server := New(config, nil)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Port != 18765 {
		t.Errorf("Expected port 18765, got %d", config.Port)
	}
	if config.ReadTimeout != 10*time.Second || config.WriteTimeout != 10*time.Second {
		t.Errorf("Unexpected timeouts %v/%v", config.ReadTimeout, config.WriteTimeout)
	}
	if config.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected ShutdownTimeout 5s, got %v", config.ShutdownTimeout)
	}
}

func TestNewBeforeStart(t *testing.T) {
	config := DefaultConfig()
	config.Port = 12345
	server := New(config, nil)

	if server.IsRunning() {
		t.Error("Expected server to not be running initially")
	}
	if server.Port() != 12345 {
		t.Errorf("Expected configured port before start, got %d", server.Port())
	}
	if got := server.URL(); got != "http://127.0.0.1:12345" {
		t.Errorf("Unexpected URL %s", got)
	}
}

func TestStartStop(t *testing.T) {
	config := DefaultConfig()
	config.Port = 0
	server := New(config, nil)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if !server.IsRunning() || server.Port() == 0 {
		t.Errorf("Expected running server on an assigned port, got port %d", server.Port())
	}
	if err := server.Start(); err == nil {
		t.Error("Expected error when starting already running server")
	}

	if err := server.Stop(); err != nil {
		t.Errorf("Failed to stop server: %v", err)
	}
	if server.IsRunning() {
		t.Error("Expected server to be stopped")
	}
	// Stop again is a no-op
	if err := server.Stop(); err != nil {
		t.Errorf("Expected no error when stopping already stopped server: %v", err)
	}
}

func TestServerServesFrontend(t *testing.T) {
	server := startTestServer(t)

	resp, err := http.Get(server.URL() + "/")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	for _, want := range []string{"<title>DeepWater</title>", "/api/detector/", "/api/settings"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected frontend to contain %q", want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "http://127.0.0.1:18765/api/settings", nil)
	req.Header.Set("Origin", "http://127.0.0.1:18765")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://127.0.0.1:18765" {
		t.Errorf("Unexpected Allow-Origin %q", got)
	}
}

func TestCORSRejectsForeignOrigin(t *testing.T) {
	called := false
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantCalled bool
	}{
		{"foreign POST", http.MethodPost, "http://evil.example", http.StatusForbidden, false},
		{"lookalike POST", http.MethodPost, "http://localhost.evil.example", http.StatusForbidden, false},
		{"foreign GET", http.MethodGet, "http://evil.example", http.StatusOK, true},
		{"local POST", http.MethodPost, "http://localhost:18765", http.StatusOK, true},
		{"no origin POST", http.MethodPost, "", http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			req := httptest.NewRequest(tt.method, "http://127.0.0.1:18765/api/detector/start", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if called != tt.wantCalled {
				t.Errorf("Expected handler called=%v, got %v", tt.wantCalled, called)
			}
		})
	}
}

func TestGetMuxRoutes(t *testing.T) {
	config := DefaultConfig()
	config.Port = 0
	server := New(config, nil)

	server.GetMux().HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	resp, err := http.Get(server.URL() + "/api/ping")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" {
		t.Errorf("Expected pong, got %q", body)
	}
}

func TestRestartSameServer(t *testing.T) {
	config := DefaultConfig()
	config.Port = 0
	server := New(config, nil)

	for i := 0; i < 2; i++ {
		if err := server.Start(); err != nil {
			t.Fatalf("Iteration %d: Failed to start server: %v", i, err)
		}
		if err := server.Stop(); err != nil {
			t.Fatalf("Iteration %d: Failed to stop server: %v", i, err)
		}
	}
}
