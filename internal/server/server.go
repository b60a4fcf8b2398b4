// Package server exposes the retrieval pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/kiln/internal/auth"
	"github.com/efebarandurmaz/kiln/internal/observability"
	"github.com/efebarandurmaz/kiln/internal/service"
)

// Config configures the HTTP server.
type Config struct {
	Addr    string
	Version string
	// Audit receives login and query events. Nil disables auditing.
	Audit *observability.AuditLogger
}

// Server serves the JSON API.
type Server struct {
	svc    *service.Service
	users  auth.UserStore
	tokens *auth.TokenManager
	health *HealthState
	audit  *observability.AuditLogger
	logger *slog.Logger
	http   *http.Server
}

// New creates a Server. All handlers except login and the probes require a
// valid Bearer token.
func New(cfg Config, svc *service.Service, users auth.UserStore, tokens *auth.TokenManager, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		svc:    svc,
		users:  users,
		tokens: tokens,
		health: NewHealthState(cfg.Version),
		audit:  cfg.Audit,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.Handle("POST /api/ask", tokens.Middleware(http.HandlerFunc(s.handleAsk)))
	mux.Handle("POST /api/search", tokens.Middleware(http.HandlerFunc(s.handleSearch)))
	mux.Handle("POST /api/feedback", tokens.Middleware(http.HandlerFunc(s.handleFeedback)))
	mux.Handle("GET /api/history/{session}", tokens.Middleware(http.HandlerFunc(s.handleHistory)))
	mux.Handle("GET /api/provenance/{chunk}", tokens.Middleware(http.HandlerFunc(s.handleProvenance)))
	mux.HandleFunc("GET /api/health", s.health.handleHealth)
	mux.HandleFunc("GET /api/ready", s.health.handleReady)
	mux.HandleFunc("GET /api/live", s.health.handleLive)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      corsMiddleware(s.loggingMiddleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // LLM calls are slow
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Health exposes the health state for check registration.
func (s *Server) Health() *HealthState { return s.health }

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("api server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping api server")
	s.health.SetReady(false)
	return s.http.Shutdown(ctx)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.Authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.audit.LogLogin(req.Username, false)
		s.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.logger.Error("authentication failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "authentication unavailable")
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		s.logger.Error("token issue failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}

	s.audit.LogLogin(req.Username, true)
	s.writeJSON(w, http.StatusOK, loginResponse{Token: token, Username: user.Username})
}

type askRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	// The session ID is minted here, not in the service, so the user prefix
	// below covers the very first turn too. Clients always see and reuse the
	// unprefixed ID; the prefixed form stays an internal storage key.
	clientSession := req.SessionID
	if clientSession == "" {
		clientSession = uuid.NewString()
	}

	// Scope sessions to the authenticated user so histories don't leak.
	claims, _ := auth.FromContext(r.Context())
	sessionID := clientSession
	if claims != nil {
		sessionID = claims.Subject + ":" + clientSession
	}

	start := time.Now()
	res, err := s.svc.Ask(r.Context(), sessionID, req.Query)
	if err != nil {
		s.audit.LogAsk(userID(claims), sessionID, time.Since(start), 0, err)
		s.logger.Error("ask failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "answer generation failed")
		return
	}
	res.SessionID = clientSession
	s.audit.LogAsk(userID(claims), sessionID, time.Since(start), len(res.Hits), nil)
	s.writeJSON(w, http.StatusOK, res)
}

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	hits, err := s.svc.Search(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

type feedbackRequest struct {
	TurnID   string `json:"turn_id"`
	Feedback int    `json:"feedback"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TurnID == "" {
		s.writeError(w, http.StatusBadRequest, "turn_id is required")
		return
	}

	if err := s.svc.Feedback(r.Context(), req.TurnID, req.Feedback); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	claims, _ := auth.FromContext(r.Context())
	s.audit.LogFeedback(userID(claims), req.TurnID, req.Feedback)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	claims, _ := auth.FromContext(r.Context())
	if claims != nil {
		session = claims.Subject + ":" + session
	}

	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	turns, err := s.svc.History(r.Context(), session, limit)
	if err != nil {
		s.logger.Error("history failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleProvenance(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Provenance(r.Context(), r.PathValue("chunk"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown chunk")
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func userID(claims *auth.Claims) string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
