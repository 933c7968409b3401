package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.VoteResult("inserted")
	m.VoteResult("inserted")
	m.VoteResult("already_voted")
	m.VoteRetry()
	m.AuthResult("login", "ok")
	m.HTTPRequest(http.MethodPost, 201)
	m.LiveSubscribers(2)
	m.LiveSubscribers(-1)

	if got := testutil.ToFloat64(m.votes.WithLabelValues("inserted")); got != 2 {
		t.Fatalf("votes inserted: expected 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.voteRetry); got != 1 {
		t.Fatalf("retries: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.auth.WithLabelValues("login", "ok")); got != 1 {
		t.Fatalf("auth: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpReqs.WithLabelValues("POST", "201")); got != 1 {
		t.Fatalf("http: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.liveOnline); got != 1 {
		t.Fatalf("live: expected 1, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.VoteResult("inserted")
	m.VoteRetry()
	m.AuthResult("register", "ok")
	m.HTTPRequest("GET", 200)
	m.LiveSubscribers(1)
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.VoteResult("flipped")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), `forum_votes_total{result="flipped"} 1`) {
		t.Fatalf("missing vote counter in exposition:\n%s", body)
	}
}
