package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func testConfig() Config {
	return Config{
		HTTPAddr:      "127.0.0.1:0",
		DevSeedPosts:  3,
		VoteTxTimeout: 2 * time.Second,
	}
}

func setFastPasswordEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FORUM_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("FORUM_ARGON2_ITERATIONS", "1")
	t.Setenv("FORUM_ARGON2_PARALLELISM", "1")
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	setFastPasswordEnv(t)

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.close)
	return a
}

func postJSON(t *testing.T, srv *httptest.Server, path, body, tok string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestApp_InMemoryEndToEnd(t *testing.T) {
	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp := postJSON(t, srv, "/auth/register", `{"email":"e2e@example.com","username":"e2e","password":"correct-horse-9"}`, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status=%d", resp.StatusCode)
	}
	var reg struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	if len(reg.Token) != 24 {
		t.Fatalf("expected 24-char token, got %q", reg.Token)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}

	resp = postJSON(t, srv, "/vote/post", `{"id":2,"is_upvote":true,"allow_toggle":false}`, reg.Token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("vote: status=%d", resp.StatusCode)
	}
	var v struct {
		PostID int64 `json:"post_id"`
		Votes  int64 `json:"votes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode vote: %v", err)
	}
	if v.PostID != 2 || v.Votes != 1 {
		t.Fatalf("unexpected vote response: %+v", v)
	}

	resp = postJSON(t, srv, "/vote/post", `{"id":4,"is_upvote":true,"allow_toggle":false}`, reg.Token)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("vote on unseeded post: status=%d", resp.StatusCode)
	}

	mresp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = mresp.Body.Close() }()
	body, _ := io.ReadAll(mresp.Body)
	for _, want := range []string{
		`forum_votes_total{result="inserted"} 1`,
		`forum_votes_total{result="post_not_found"} 1`,
		`forum_auth_total{op="register",result="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestApp_Probes(t *testing.T) {
	a := newTestApp(t, testConfig())
	h := a.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz without db requirement: %d", rr.Code)
	}

	cfg := testConfig()
	cfg.ReadinessRequireDB = true
	strict := newTestApp(t, cfg)
	rr = httptest.NewRecorder()
	strict.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with db required but absent: %d", rr.Code)
	}
}

func TestApp_TokenCacheWiring(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()
	a := newTestApp(t, cfg)
	if a.redis == nil {
		t.Fatalf("expected redis client to be configured")
	}

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp := postJSON(t, srv, "/auth/register", `{"email":"cache@example.com","username":"cached","password":"correct-horse-9"}`, "")
	var reg struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		t.Fatalf("decode register: %v", err)
	}

	resp = postJSON(t, srv, "/vote/post", `{"id":1,"is_upvote":false,"allow_toggle":false}`, reg.Token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("vote: status=%d", resp.StatusCode)
	}

	if n := len(mr.Keys()); n != 1 {
		t.Fatalf("expected one cached token mapping, got %d keys", n)
	}
}

func TestApp_RequireTokenHMAC(t *testing.T) {
	setFastPasswordEnv(t)
	t.Setenv("FORUM_TOKEN_HMAC_KEY", "short")

	cfg := testConfig()
	cfg.RequireTokenHMAC = true
	cfg.RedisAddr = miniredis.RunT(t).Addr()
	if _, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected startup to fail with a short HMAC key")
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a := newTestApp(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
