// Package httpapi implements the AdminAPI (C11): a gorilla/mux router
// exposing poll/category/binding CRUD over PollStore plus the websocket
// upgrade endpoint, so the core pipeline has a real admin surface to read
// an active poll from in tests and local runs.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ocx/donationbox/internal/broadcast"
	"github.com/ocx/donationbox/internal/database"
	"github.com/ocx/donationbox/internal/middleware"
	"github.com/ocx/donationbox/internal/pollstore"
)

// Server wires PollStore and the broadcast hub behind an HTTP router.
type Server struct {
	store          pollstore.PollStore
	adminStore     *database.AdminClient // optional; when set, serves list reads
	wsServer       *broadcast.Server
	allowedOrigins []string
	rateLimiter    *middleware.RateLimiter
}

// NewServer builds the AdminAPI router's dependencies. rateLimiter may be
// nil to disable rate limiting (used in tests). adminStore may be nil, in
// which case every route is served from store; when set, the read-mostly
// list endpoints (GET /polls, GET /categories) are served from adminStore
// instead, keeping that traffic off the primary transactional connection
// pool.
func NewServer(store pollstore.PollStore, adminStore *database.AdminClient, wsServer *broadcast.Server, allowedOrigins []string, rateLimiter *middleware.RateLimiter) *Server {
	return &Server{store: store, adminStore: adminStore, wsServer: wsServer, allowedOrigins: allowedOrigins, rateLimiter: rateLimiter}
}

// Router builds the mux.Router exposing the full AdminAPI surface.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.corsMiddleware)
	if s.rateLimiter != nil {
		r.Use(s.rateLimiter.Middleware)
	}

	r.HandleFunc("/polls", s.handleListPolls).Methods(http.MethodGet)
	r.HandleFunc("/polls", s.handleCreatePoll).Methods(http.MethodPost)
	r.HandleFunc("/polls/{id}", s.handleGetPoll).Methods(http.MethodGet)
	r.HandleFunc("/polls/{id}", s.handleUpdatePoll).Methods(http.MethodPut)
	r.HandleFunc("/polls/{id}", s.handleDeletePoll).Methods(http.MethodDelete)

	r.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	r.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	r.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	if s.wsServer != nil {
		r.HandleFunc("/ws", s.wsServer.ServeHTTP).Methods(http.MethodGet)
	}

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowAll := len(s.allowedOrigins) == 0
	allowed := make(map[string]bool, len(s.allowedOrigins))
	for _, o := range s.allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: failed to encode response", "error", err)
	}
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
