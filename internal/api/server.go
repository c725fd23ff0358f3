// Package api provides the HTTP API server and handlers for the Stacks application.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stacksapp/stacks-server/internal/http/response"
	"github.com/stacksapp/stacks-server/internal/ratelimit"
	"github.com/stacksapp/stacks-server/internal/service"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	circulation *service.CirculationService
	catalog     *service.CatalogService
	members     *service.MemberService
	limiter     *ratelimit.KeyedRateLimiter
	router      *chi.Mux
	logger      *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(circulation *service.CirculationService, catalog *service.CatalogService, members *service.MemberService, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) *Server {
	s := &Server{
		circulation: circulation,
		catalog:     catalog,
		members:     members,
		limiter:     limiter,
		router:      chi.NewRouter(),
		logger:      logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Health check.
	s.router.Get("/health", s.handleHealthCheck)

	// API v1.
	s.router.Route("/api/v1", func(r chi.Router) {
		// Catalog.
		r.Route("/books", func(r chi.Router) {
			r.Post("/", s.handleAddBook)
			r.Get("/", s.handleListBooks)
			r.Get("/search", s.handleSearchBooks)
			r.Get("/{isbn}", s.handleGetBook)
			r.Put("/{isbn}/inventory/{branchID}", s.handleSetBranchInventory)
		})
		r.Post("/authors", s.handleAddAuthor)
		r.Post("/categories", s.handleAddCategory)
		r.Post("/branches", s.handleAddBranch)

		// Membership.
		r.Route("/members", func(r chi.Router) {
			r.Post("/", s.handleRegisterMember)
			r.Get("/", s.handleListMembers)
			r.Get("/{id}", s.handleGetMember)
			r.Get("/{id}/account", s.handleMemberAccount)
			r.Get("/{id}/history", s.handleMemberHistory)
			r.Post("/{id}/renew", s.handleRenewMembership)
		})

		// Circulation desk: mutating routes are rate limited per client IP.
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(s.limiter, s.logger))
			r.Post("/loans", s.handleBorrow)
			r.Post("/loans/{id}/return", s.handleReturn)
			r.Post("/reservations", s.handleReserve)
			r.Post("/reservations/expire", s.handleExpireReservations)
			r.Post("/payments", s.handleProcessPayment)
		})

		// Reports.
		r.Route("/reports", func(r chi.Router) {
			r.Get("/overdue", s.handleOverdueReport)
			r.Get("/most-borrowed", s.handleMostBorrowed)
			r.Get("/inventory-audit", s.handleInventoryAudit)
		})
	})
}

// handleHealthCheck returns server health status.
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, map[string]string{
		"status": "healthy",
	}, s.logger)
}
