package dashboard

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ferguskendall2k/devman/internal/config"
	"github.com/ferguskendall2k/devman/internal/cost"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tmp := t.TempDir()
	s := New(cfg, cost.NewTracker("", nil), nil, nil, tmp, NewBroadcaster())
	return s, tmp
}

func TestConfigPostRejectsDisallowedTable(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader(`{"telegram":{"bot_token":"\"evil\""}}`))
	w := httptest.NewRecorder()

	s.Mux().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestConfigPostAcceptsModelsTable(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader(`{"models":{"standard":"\"claude-haiku-4-5-20250512\""}}`))
	w := httptest.NewRecorder()

	s.Mux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestTmpStatusAndClear(t *testing.T) {
	s, tmp := newTestServer(t)
	if err := os.WriteFile(filepath.Join(tmp, "scratch.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed tmp file: %v", err)
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/api/tmp", nil)
	statusW := httptest.NewRecorder()
	s.Mux().ServeHTTP(statusW, statusReq)
	if !strings.Contains(statusW.Body.String(), `"files":1`) {
		t.Errorf("expected one file reported, got %s", statusW.Body.String())
	}

	clearReq := httptest.NewRequest(http.MethodPost, "/api/tmp/clear", nil)
	clearW := httptest.NewRecorder()
	s.Mux().ServeHTTP(clearW, clearReq)
	if clearW.Code != http.StatusOK {
		t.Fatalf("clear status = %d", clearW.Code)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected tmp dir to be empty after clear, got %v", entries)
	}
}
