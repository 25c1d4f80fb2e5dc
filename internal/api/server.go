package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"codorachat/internal/auth"
	"codorachat/pkg/interfaces"
	"codorachat/pkg/types"
)

// maxBodyBytes bounds register/login request bodies
const maxBodyBytes = 1 << 16

// HealthChecker reports whether the credential store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsProvider exposes live hub statistics
type StatsProvider interface {
	GetStats() map[string]int64
}

// Server is the HTTP boundary: account endpoints, health and the banner page.
// It holds no chat state.
type Server struct {
	auth    interfaces.Authenticator
	health  HealthChecker
	stats   StatsProvider
	router  *http.ServeMux
	started time.Time
}

// NewServer wires routes over the given collaborators
func NewServer(authenticator interfaces.Authenticator, health HealthChecker, stats StatsProvider) *Server {
	s := &Server{
		auth:    authenticator,
		health:  health,
		stats:   stats,
		router:  http.NewServeMux(),
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/register", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRegister))))
	s.router.Handle("/api/login", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleLogin))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
	s.router.Handle("/", s.corsMiddleware(http.HandlerFunc(s.banner)))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// CredentialsRequest is the body of register and login
type CredentialsRequest = types.Credentials

type TokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Database  string           `json:"database"`
	Uptime    string           `json:"uptime"`
	Chat      map[string]int64 `json:"chat"`
}

// ErrorResponse carries a human-readable reason in msg
type ErrorResponse struct {
	Msg string `json:"msg"`
}

// POST /api/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CredentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	token, username, err := s.auth.Register(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		s.sendJSON(w, http.StatusOK, TokenResponse{Token: token, Username: username})
	case errors.Is(err, auth.ErrUserAlreadyExists):
		s.sendError(w, "User already exists", http.StatusBadRequest)
	case errors.Is(err, types.ErrInvalidUsername), errors.Is(err, types.ErrInvalidPassword):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Registration failed: %v", err)
		s.sendError(w, "Server error", http.StatusInternalServerError)
	}
}

// POST /api/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CredentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	token, username, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		s.sendJSON(w, http.StatusOK, TokenResponse{Token: token, Username: username})
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.sendError(w, "Invalid Credentials", http.StatusBadRequest)
	default:
		log.Printf("Login failed: %v", err)
		s.sendError(w, "Server error", http.StatusInternalServerError)
	}
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  dbStatus,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Chat:      s.stats.GetStats(),
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

// GET /
func (s *Server) banner(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, "<h1>Codora chat server is running</h1>")
}

// decode reads a JSON body, answering 400 itself on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{Msg: message})
}

// corsMiddleware allows any origin, as browser clients are served separately
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
