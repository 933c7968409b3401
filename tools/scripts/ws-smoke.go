// Package main is a CI-friendly smoke test against a running forum server.
//
// It validates:
//   - register over HTTP
//   - handshake + subprotocol selection on the live feed
//   - snapshot on connect
//   - cast -> live total on a second connection
//   - already_voted without toggle, flip with toggle
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// Mirrors the live feed frame; the server package is internal.
const (
	subprotocol  = "forum.live.v1"
	typeSnapshot = "snapshot"
	typeVotes    = "votes"
)

type frame struct {
	Type   string `json:"type"`
	PostID int64  `json:"post_id"`
	Votes  int64  `json:"votes"`
	Code   string `json:"code"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header for the websocket handshake")
		postID  = flag.Int64("post", 1, "Post to vote on (must exist; see FORUM_DEV_SEED_POSTS)")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := url.Parse(*baseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -url: %q", *baseURL)
	}

	root := context.Background()
	suffix := strconv.FormatInt(time.Now().UnixNano(), 36)

	tok := mustRegister(root, base, "smoke-"+suffix, *timeout)
	if *verbose {
		fmt.Printf("registered smoke-%s\n", suffix)
	}

	conn := mustConnect(root, base, *origin, *postID, *timeout)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	snap := mustRead(root, conn, *timeout)
	if snap.Type != typeSnapshot || snap.PostID != *postID {
		fatalf("expected snapshot for post %d, got %+v", *postID, snap)
	}
	if *verbose {
		fmt.Printf("snapshot: votes=%d\n", snap.Votes)
	}

	total, status := castVote(root, base, tok, *postID, true, false, *timeout)
	if status != http.StatusOK || total != snap.Votes+1 {
		fatalf("upvote: status=%d total=%d (snapshot %d)", status, total, snap.Votes)
	}
	if m := mustRead(root, conn, *timeout); m.Type != typeVotes || m.Votes != total {
		fatalf("expected live total %d, got %+v", total, m)
	}

	if _, status := castVote(root, base, tok, *postID, false, false, *timeout); status != http.StatusConflict {
		fatalf("second vote without toggle: expected 409, got %d", status)
	}

	flipped, status := castVote(root, base, tok, *postID, false, true, *timeout)
	if status != http.StatusOK || flipped != total-2 {
		fatalf("flip: status=%d total=%d (before %d)", status, flipped, total)
	}
	if m := mustRead(root, conn, *timeout); m.Type != typeVotes || m.Votes != flipped {
		fatalf("expected live total %d, got %+v", flipped, m)
	}

	fmt.Printf("OK: post_id=%d snapshot=%d up=%d flipped=%d\n", *postID, snap.Votes, total, flipped)
}

func mustRegister(parent context.Context, base *url.URL, name string, stepTimeout time.Duration) string {
	body := map[string]string{
		"email":    name + "@example.com",
		"username": name,
		"password": "smoke-password-1",
	}
	var out struct {
		Token string `json:"token"`
	}
	status := postJSON(parent, base, "/auth/register", "", body, &out, stepTimeout)
	if status != http.StatusCreated || out.Token == "" {
		fatalf("register: status=%d", status)
	}
	return out.Token
}

func castVote(parent context.Context, base *url.URL, tok string, postID int64, up, toggle bool, stepTimeout time.Duration) (int64, int) {
	body := map[string]any{"id": postID, "is_upvote": up, "allow_toggle": toggle}
	var out struct {
		Votes int64 `json:"votes"`
	}
	status := postJSON(parent, base, "/vote/post", tok, body, &out, stepTimeout)
	return out.Votes, status
}

func postJSON(parent context.Context, base *url.URL, path, tok string, in, out any, stepTimeout time.Duration) int {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(in)
	if err != nil {
		fatalf("marshal %s: %v", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.JoinPath(path).String(), bytes.NewReader(b))
	if err != nil {
		fatalf("request %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("POST %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 300 && out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func mustConnect(parent context.Context, base *url.URL, origin string, postID int64, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u := base.JoinPath("/ws/posts")
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.RawQuery = "post_id=" + strconv.FormatInt(postID, 10)

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, subprotocol)
	}
	return conn
}

func mustRead(parent context.Context, conn *websocket.Conn, stepTimeout time.Duration) frame {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	_, b, err := conn.Read(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fatalf("timed out waiting for a frame")
		}
		fatalf("read: %v", err)
	}
	var m frame
	if err := json.Unmarshal(b, &m); err != nil {
		fatalf("decode frame: %v", err)
	}
	return m
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
