// Package api provides the storefront HTTP API: catalog, search, cart,
// orders and accounts.
package api

import (
	"context"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/bookstore/services/storefront/internal/auth"
	"github.com/bookstore/services/storefront/internal/cart"
	"github.com/bookstore/services/storefront/internal/clients"
	"github.com/bookstore/services/storefront/internal/events"
	"github.com/bookstore/services/storefront/internal/repo"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const publishTimeout = 10 * time.Second

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping() error
}

// Deps are the collaborators the API is built from.
type Deps struct {
	Catalog   *repo.CatalogRepository
	Users     *repo.UserRepository
	Orders    *repo.OrderRepository
	Carts     cart.Store
	Tokens    *auth.TokenManager
	Images    clients.ImageUploader
	Publisher events.Publisher
	DB        Pinger
	Registry  *prometheus.Registry
	Log       *zap.Logger

	AdminUsernames     []string
	CORSOrigins        []string
	LoginRatePerMinute int

	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are believed. Empty trusts none.
	TrustedProxies []string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	catalog   *repo.CatalogRepository
	users     *repo.UserRepository
	orders    *repo.OrderRepository
	carts     cart.Store
	tokens    *auth.TokenManager
	images    clients.ImageUploader
	publisher events.Publisher
	db        Pinger
	metrics   *metrics
	registry  *prometheus.Registry
	validate  *validator.Validate
	login     *keyedLimiter
	loginIDs  *keyedLimiter
	proxies   []netip.Prefix
	admins    map[string]struct{}
	cors      []string
	router    *chi.Mux
	log       *zap.Logger

	// in-flight event publications
	pending sync.WaitGroup
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(d Deps) *Server {
	admins := make(map[string]struct{}, len(d.AdminUsernames))
	for _, name := range d.AdminUsernames {
		admins[name] = struct{}{}
	}

	publisher := d.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	registry := d.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		catalog:   d.Catalog,
		users:     d.Users,
		orders:    d.Orders,
		carts:     d.Carts,
		tokens:    d.Tokens,
		images:    d.Images,
		publisher: publisher,
		db:        d.DB,
		registry:  registry,
		validate:  newValidator(),
		login:     newKeyedLimiter(d.LoginRatePerMinute),
		loginIDs:  newKeyedLimiter(d.LoginRatePerMinute),
		proxies:   parseProxies(d.TrustedProxies, d.Log),
		admins:    admins,
		cors:      d.CORSOrigins,
		router:    chi.NewRouter(),
		log:       d.Log,
	}
	s.metrics = newMetrics(registry, d.Catalog, d.Log)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// WaitForEvents blocks until every event queued by a handler has been
// published or has failed.
func (s *Server) WaitForEvents() {
	s.pending.Wait()
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.realIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.metrics.instrument)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cors,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", cartSessionHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthCheck)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/books", func(r chi.Router) {
			r.Get("/", s.handleListBooks)
			r.Delete("/", s.handleDeleteAllBooks)
			r.With(s.requireAuth).Post("/", s.handleCreateBook)
			r.With(s.requireAuth).Post("/bulk", s.handleBulkCreateBooks)
			r.Post("/multiple", s.handleDeleteBooks)
			r.Delete("/multiple", s.handleDeleteBooks)
			r.Get("/isbn/{isbn}", s.handleGetBookByISBN)
			r.Get("/{id}", s.handleGetBook)
			r.Put("/{id}", s.handleUpdateBook)
			r.Delete("/{id}", s.handleDeleteBook)
		})

		r.Get("/search", s.handleSearch)
		r.Get("/advanced-search", s.handleAdvancedSearch)
		r.Get("/filter", s.handleFilter)

		r.Group(func(r chi.Router) {
			r.Use(s.optionalAuth)
			r.Post("/cart", s.handleAddToCart)
			r.Get("/cart", s.handleGetCart)
			r.Delete("/cart", s.handleClearCart)
			r.Post("/order", s.handlePlaceOrder)
		})
		r.With(s.requireAuth).Get("/orders", s.handleListOrders)

		r.Post("/register", s.handleRegister)
		r.With(s.rateLimitLogin).Post("/login", s.handleLogin)
		r.With(s.requireAuth).Post("/logout", s.handleLogout)

		r.Get("/users", s.handleListUsers)
		r.With(s.requireAuth, s.requireAdmin).Delete("/users/{id}", s.handleDeleteUser)
		r.With(s.requireAuth).Get("/user", s.handleGetCurrentUser)
		r.With(s.requireAuth).Put("/profile/update", s.handleUpdateProfile)
	})
}

// publish runs fn in the background with its own deadline so a slow broker
// never holds up the response.
func (s *Server) publish(r *http.Request, event string, fn func(ctx context.Context) error) {
	corrID := requestID(r.Context())

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(events.WithCorrelationID(context.Background(), corrID), publishTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.log.Error("Failed to publish event",
				zap.String("event_type", event),
				zap.String("correlation_id", corrID),
				zap.Error(err),
			)
		}
	}()
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Error("Database health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "reason": "database connection failed"})
		return
	}

	if !s.publisher.IsHealthy() {
		s.log.Error("RabbitMQ health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "reason": "rabbitmq connection failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
