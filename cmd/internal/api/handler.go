package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"forum/cmd/identity"
	"forum/cmd/internal/ratelimit"
	"forum/cmd/internal/vote"
)

// Recorder receives auth outcomes for metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	AuthResult(op, result string)
}

// Handler wires HTTP endpoints to the identity service and the vote ledger.
type Handler struct {
	log *slog.Logger
	cfg Config

	users *identity.Service
	votes *vote.Ledger

	authLimiter *ratelimit.Keyed
	rec         Recorder
	now         func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithRecorder reports auth outcomes to r.
func WithRecorder(r Recorder) HandlerOption {
	return func(h *Handler) {
		if h == nil || r == nil {
			return
		}
		h.rec = r
	}
}

// WithClock overrides the clock used by the rate limiter.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, users *identity.Service, votes *vote.Ledger, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil {
		return nil, errors.New("api: nil identity service")
	}
	if votes == nil {
		return nil, errors.New("api: nil vote ledger")
	}

	cfg = cfg.withDefaults()
	h := &Handler{
		log:         log,
		cfg:         cfg,
		users:       users,
		votes:       votes,
		authLimiter: ratelimit.NewKeyed(cfg.AuthRateMax, cfg.AuthRateWindow),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/reissue", h.handleReissue)
	mux.HandleFunc("/me", h.handleMe)
	mux.HandleFunc("/vote/post", h.handleVote)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "register"

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.allowAuth(w, r, op) {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	tok, err := h.users.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		code, rejected := writeDomainError(w, err)
		if !rejected {
			h.log.Error("api.register.fail", "err", err)
		}
		h.record(op, code)
		return
	}

	h.record(op, "ok")
	h.setTokenCookie(w, tok)
	writeJSON(w, http.StatusCreated, tokenResponse{Token: tok})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "login"

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.allowAuth(w, r, op) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	tok, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		code, rejected := writeDomainError(w, err)
		if !rejected {
			h.log.Error("api.login.fail", "err", err)
		}
		h.record(op, code)
		return
	}

	h.record(op, "ok")
	h.setTokenCookie(w, tok)
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok})
}

func (h *Handler) handleReissue(w http.ResponseWriter, r *http.Request) {
	const op = "reissue"

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.allowAuth(w, r, op) {
		return
	}

	userID, ok := h.requireAuth(w, r)
	if !ok {
		h.record(op, "unauthorized")
		return
	}

	tok, err := h.users.ReissueToken(r.Context(), userID)
	if err != nil {
		code, rejected := writeDomainError(w, err)
		if !rejected {
			h.log.Error("api.reissue.fail", "user_id", userID, "err", err)
		}
		h.record(op, code)
		return
	}

	h.record(op, "ok")
	h.setTokenCookie(w, tok)
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tok := requestToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}

	u, ok, err := h.users.GetUserByToken(r.Context(), tok)
	if err != nil {
		h.log.Error("api.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req voteRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	total, err := h.votes.CastVote(r.Context(), userID, req.PostID, req.IsUpvote, req.AllowToggle)
	if err != nil {
		// The ledger already logs internal failures.
		_, _ = writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, voteResponse{PostID: req.PostID, Votes: total})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (int64, bool) {
	tok := requestToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing token")
		return 0, false
	}

	userID, ok, err := h.users.Resolve(r.Context(), tok)
	if err != nil {
		h.log.Error("api.auth.resolve.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return 0, false
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return 0, false
	}
	return userID, true
}

func (h *Handler) allowAuth(w http.ResponseWriter, r *http.Request, op string) bool {
	key := "unknown"
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		key = ip.String()
	}
	if h.authLimiter.Allow(key, h.now()) {
		return true
	}

	h.record(op, "rate_limited")
	secs := int(h.cfg.AuthRateWindow.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
	return false
}

func (h *Handler) setTokenCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    tok,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) record(op, result string) {
	if h.rec != nil {
		h.rec.AuthResult(op, result)
	}
}

// requestToken prefers the Authorization header over the cookie.
func requestToken(r *http.Request) string {
	if tok := bearerToken(r); tok != "" {
		return tok
	}
	c, err := r.Cookie(TokenCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

// parseForwardedIP returns the left-most valid address of X-Forwarded-For.
func parseForwardedIP(raw string) net.IP {
	for _, part := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
			return ip
		}
	}
	return nil
}
