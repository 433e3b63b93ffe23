package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gaa1973/memo-platform/internal/config"
	"github.com/gaa1973/memo-platform/internal/handler"
	"github.com/gaa1973/memo-platform/internal/memo"
	"github.com/gaa1973/memo-platform/internal/middleware"
	"github.com/gaa1973/memo-platform/internal/store"
	ws "github.com/gaa1973/memo-platform/internal/websocket"
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	memoH          *handler.MemoHandler
	authH          *handler.AuthHandler
	sessionStore   *store.SessionStore
	rateLimiter    *middleware.RateLimiter
	loginLimit     int
	allowedOrigin  string
	originPatterns []string
	logger         *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db, cfg.SessionTTL)
	memoSvc := memo.NewService(store.NewMemoStore(db), hub, logger.With("component", "memo"))

	var patterns []string
	if host := originHost(cfg.AllowedOrigin); host != "" {
		patterns = append(patterns, host)
	}

	return &Server{
		db:             db,
		hub:            hub,
		memoH:          handler.NewMemoHandler(memoSvc, logger.With("component", "memo_handler")),
		authH:          handler.NewAuthHandler(userStore, sessionStore, cfg.SessionTTL, cfg.CookieSecure, logger.With("component", "auth")),
		sessionStore:   sessionStore,
		rateLimiter:    middleware.NewRateLimiter(),
		loginLimit:     cfg.LoginRateLimit,
		allowedOrigin:  cfg.AllowedOrigin,
		originPatterns: patterns,
		logger:         logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Cleanup drops expired sessions and stale rate limit windows.
func (s *Server) Cleanup(ctx context.Context) {
	if n, err := s.sessionStore.DeleteExpired(ctx); err != nil {
		s.logger.Error("cleanup expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned up expired sessions", "count", n)
	}
	s.rateLimiter.Cleanup()
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore)
	outerMux.Handle("/", authMiddleware(jsonFallback(protectedMux)))

	var h http.Handler = outerMux
	h = middleware.CORS(s.allowedOrigin)(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return middleware.RequestID(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// jsonFallback renders the mux's own 404 and 405 replies as {"message"} bodies.
func jsonFallback(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := mux.Handler(r)
		if pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}
		sc := &statusCapture{header: make(http.Header), code: http.StatusOK}
		h.ServeHTTP(sc, r)
		if allow := sc.header.Get("Allow"); allow != "" {
			w.Header().Set("Allow", allow)
		}
		writeJSON(w, sc.code, map[string]string{"message": strings.ToLower(http.StatusText(sc.code))})
	})
}

// statusCapture keeps the status and headers of a reply and drops its body.
type statusCapture struct {
	header http.Header
	code   int
}

func (c *statusCapture) Header() http.Header         { return c.header }
func (c *statusCapture) Write(b []byte) (int, error) { return len(b), nil }
func (c *statusCapture) WriteHeader(code int)        { c.code = code }

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RouteAndIP, s.loginLimit, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	mux.HandleFunc("GET /api/memos", s.memoH.List)
	mux.HandleFunc("POST /api/memos", s.memoH.Create)
	mux.HandleFunc("GET /api/memos/{id}", s.memoH.Get)
	mux.HandleFunc("PUT /api/memos/{id}", s.memoH.Update)
	mux.HandleFunc("DELETE /api/memos/{id}", s.memoH.Delete)

	mux.HandleFunc("GET /api/ws", ws.HandleWebSocket(s.hub, s.originPatterns, s.logger.With("component", "websocket")))
}

// originHost turns the allowed browser origin into a websocket origin pattern.
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return u.Host
}
