/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a proxy
  3. Logger:     zerolog request logging, one line per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /health               Liveness, public
  /api/auth/*           Signup and login, public
  /api/*                Everything else, bearer token required
  /api/scenarios/*      Demo scenarios, only when enabled

SEE ALSO:
  - handlers.go, groups.go, auth_handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/warp/finance-engine/finance"
	"github.com/warp/finance-engine/logger"
)

// Options tune the router.
type Options struct {
	AllowOrigins    []string
	Log             zerolog.Logger
	EnableScenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(opts.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, finance.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", Code: "method_not_allowed"})
	})

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
		})

		// Scenario routes
		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		}

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(h.Issuer.Middleware(writeError))

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", h.ListTransactions)
				r.Post("/", h.CreateTransaction)
				r.Get("/{id}", h.GetTransaction)
				r.Put("/{id}", h.UpdateTransaction)
				r.Delete("/{id}", h.DeleteTransaction)
				r.Post("/{id}/pay", h.PayTransaction)
				r.Delete("/{id}/pay", h.UnpayTransaction)
				r.Put("/{id}/status", h.UpdateTransactionStatus)
				r.Put("/{id}/category", h.UpdateTransactionCategory)
			})

			r.Get("/balance", h.GetBalance)

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", h.ListGroups)
				r.Post("/", h.CreateGroup)
				r.Get("/me", h.GetPersonalGroup)
				r.Get("/{id}", h.GetGroup)
				r.Get("/{id}/members", h.ListMembers)
				r.Post("/{id}/members", h.AddMember)
				r.Delete("/{id}/members/{userId}", h.RemoveMember)
			})

			r.Route("/invitations", func(r chi.Router) {
				r.Get("/", h.ListInvitations)
				r.Post("/", h.Invite)
				r.Put("/", h.RespondInvitation)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", h.ListGroupCategories)
				r.Post("/", h.CreateCategory)
				r.Get("/mine", h.ListMyCategories)
			})

			r.Route("/bank-accounts", func(r chi.Router) {
				r.Get("/", h.ListBankAccounts)
				r.Post("/", h.CreateBankAccount)
			})
		})
	})

	return r
}
