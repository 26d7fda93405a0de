// Package api provides the HTTP API server and handlers for the bookshelf library.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/http/response"
	"github.com/listenupapp/bookshelf/internal/ratelimit"
	"github.com/listenupapp/bookshelf/internal/service"
	"github.com/listenupapp/bookshelf/internal/store"
)

// Services groups the services the handlers call.
type Services struct {
	Book   *service.BookService
	Author *service.AuthorService
	Tag    *service.TagService
	Search *service.SearchService // nil when full-text search is disabled
}

// DefaultMaxBodyBytes is the book request body limit used when Options leaves it unset.
const DefaultMaxBodyBytes int64 = 64 << 20

// Options configures the router.
type Options struct {
	CORSOrigins []string
	// MaxBodyBytes caps book create and update bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// WriteLimiter throttles mutating requests per client. Nil disables it.
	WriteLimiter *ratelimit.KeyedRateLimiter
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	db       *store.DB
	services *Services
	router   chi.Router
	api      huma.API
	logger   *slog.Logger

	maxBodyBytes int64
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(db *store.DB, services *Services, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router := chi.NewRouter()
	s := &Server{
		db:       db,
		services: services,
		router:   router,
		logger:   logger,

		maxBodyBytes: opts.MaxBodyBytes,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = DefaultMaxBodyBytes
	}

	s.setupMiddleware(opts)

	humaConfig := huma.DefaultConfig("Bookshelf API", "1.0.0")
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.HandleError(w, errors.NotFoundf("no route for %s %s", r.Method, r.URL.Path), s.logger)
	})

	s.registerHealthRoutes()
	s.registerBookRoutes()
	s.registerAuthorRoutes()
	s.registerTagRoutes()
	s.registerSearchRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for tests.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	if len(opts.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	if opts.WriteLimiter != nil {
		s.router.Use(WriteRateLimitMiddleware(opts.WriteLimiter, s.logger))
	}
}
