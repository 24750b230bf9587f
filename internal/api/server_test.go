package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/catalog"
	"bybit-trading-bot/internal/clock"
	"bybit-trading-bot/internal/cooldown"
	"bybit-trading-bot/internal/ledger"
	"bybit-trading-bot/internal/logging"
	"bybit-trading-bot/internal/position"
	"bybit-trading-bot/internal/scanner"
)

type stubBot struct{}

func (stubBot) Status() map[string]interface{} {
	return map[string]interface{}{"running": true}
}

func testAPIConfig(t *testing.T) config.APIConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return config.APIConfig{
		Enabled:      true,
		Host:         "127.0.0.1",
		Port:         0,
		JWTSecret:    "test-secret",
		Username:     "operator",
		PasswordHash: string(hash),
		TokenMinutes: 5,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := logging.New(&logging.Config{Level: "ERROR"})

	led, err := ledger.New(12, zerolog.Nop())
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	client := bybit.NewMockClient()
	cooldowns := cooldown.New(0, clock.Real{})
	mgr := position.New(client, "linear", led, cooldowns, nil, nil, nil,
		config.TradingConfig{TotalCapital: 12, OrderValue: 5, Leverage: 10, MaxOpenPositions: 2},
		config.PositionConfig{MonitorInterval: 60, MaxHoldSeconds: 300, TakeProfitPercent: 3, StopLossPercent: 1.5, CloseTimeout: 5},
		clock.Real{}, zerolog.Nop())
	t.Cleanup(func() { mgr.Shutdown(context.Background()) })

	cat := catalog.New(client, "linear", log)
	scn := scanner.New(client, "linear", cat, cooldowns, mgr, nil, 0, config.ScannerConfig{BatchSize: 4, KlineLimit: 60}, log)

	hub := NewWSHub(log)
	return NewServer(testAPIConfig(t), stubBot{}, mgr, led, scn, nil, hub, log)
}

func login(t *testing.T, s *Server) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": "operator", "password": "letmein"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	return resp.Token
}

func TestLoginIssuesToken(t *testing.T) {
	s := newTestServer(t)
	login(t, s)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"username": "operator", "password": "wrong"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"username": "intruder", "password": "letmein"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestProtectedRouteRejectsGarbageToken(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data["running"] != true {
		t.Fatalf("running = %v, want true", resp.Data["running"])
	}
}

func TestLedgerEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ledger", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Data struct {
			Total     float64 `json:"total"`
			Available float64 `json:"available"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Total != 12 || resp.Data.Available != 12 {
		t.Fatalf("ledger = %+v, want total 12 available 12", resp.Data)
	}
}

func TestScanResultsBeforeFirstScan(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/scanner/results", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestCloseUnknownPosition(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/positions/no-such-id/close", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
