package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"forum/cmd/identity/ids"
	"forum/cmd/internal/ratelimit"
	"forum/cmd/internal/vote"
)

// Snapshotter reads a post's current total. *vote.Ledger satisfies it.
type Snapshotter interface {
	Total(ctx context.Context, postID int64) (int64, error)
}

// Gateway is the websocket entrypoint for live vote totals.
//
// It enforces origin policy, subprotocol selection, an inbound rate limit
// and heartbeats.
type Gateway struct {
	log  *slog.Logger
	hub  *Hub
	snap Snapshotter
	cfg  Config

	// Derived for websocket.Accept, which only authorizes cross-origin
	// requests whose host matches one of these patterns.
	originPatterns []string
}

// NewGateway constructs a Gateway.
func NewGateway(log *slog.Logger, hub *Hub, snap Snapshotter, cfg Config) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log, nil)
	}
	cfg = cfg.withDefaults()
	return &Gateway{
		log:            log,
		hub:            hub,
		snap:           snap,
		cfg:            cfg,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

// ServeHTTP upgrades to a websocket and streams totals for ?post_id=N.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("live.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	postID, err := strconv.ParseInt(r.URL.Query().Get("post_id"), 10, 64)
	if err != nil || postID <= 0 {
		http.Error(w, "invalid post_id", http.StatusBadRequest)
		return
	}

	// Reject unknown posts before upgrading.
	if _, err := g.snap.Total(r.Context(), postID); err != nil {
		if errors.Is(err, vote.ErrPostNotFound) {
			http.Error(w, "post not found", http.StatusNotFound)
			return
		}
		g.log.Error("live.snapshot.fail", "post_id", postID, "err", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("live.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		g.log.Info("live.reject.subprotocol", "got", sp, "want", Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "id")
		return
	}
	sub := NewSubscriber(id, postID, g.cfg.SendQueue)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unsubscribe(sub)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	// Subscribe first, then snapshot, so no committed cast falls between the two.
	g.hub.Subscribe(sub)

	total, err := g.snap.Total(ctx, postID)
	if err != nil {
		g.log.Info("live.snapshot.fail", "post_id", postID, "err", err)
		shutdown(websocket.StatusInternalError, "snapshot failed")
		return
	}
	snapshot := Message{Type: TypeSnapshot, PostID: postID, Votes: total, TS: time.Now().UTC()}
	if err := writeMessage(ctx, conn, snapshot, g.cfg.WriteTimeout); err != nil {
		shutdown(websocket.StatusAbnormalClosure, "write failed")
		return
	}

	g.log.Info("live.connect", "subscriber_id", id, "post_id", postID, "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case m := <-sub.Send:
				if err := writeMessage(ctx, conn, m, g.cfg.WriteTimeout); err != nil {
					g.log.Info("live.write.fail", "subscriber_id", id, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatWait)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("live.ping.fail", "subscriber_id", id, "failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	// Inbound frames carry no meaning; the loop exists to answer pongs, to
	// observe close and to throttle clients that spam. Silent clients are
	// expected, so liveness is left to the heartbeat.
	rl := ratelimit.NewWindow(g.cfg.RateEvents, g.cfg.RateWindow)
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			switch {
			case websocket.CloseStatus(err) != -1:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case errors.Is(err, context.Canceled):
				shutdown(websocket.StatusNormalClosure, "closing")
			case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("live.read.fail", "subscriber_id", id, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break
		}

		if !rl.Allow(time.Now().UTC()) {
			_ = writeMessage(ctx, conn, Message{Type: TypeError, Code: "rate_limited", TS: time.Now().UTC()}, g.cfg.WriteTimeout)
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break
		}
	}

	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
	g.log.Info("live.disconnect", "subscriber_id", id, "post_id", postID)
}

func writeMessage(parent context.Context, conn *websocket.Conn, m Message, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		switch {
		case a == "*":
			return nil
		case origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
		if s == "" {
			return ""
		}
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
