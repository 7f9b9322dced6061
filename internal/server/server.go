package server

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sendrec/watchtrail/internal/auth"
	"github.com/sendrec/watchtrail/internal/database"
	"github.com/sendrec/watchtrail/internal/httputil"
	"github.com/sendrec/watchtrail/internal/ratelimit"
	"github.com/sendrec/watchtrail/internal/segment"
	"github.com/sendrec/watchtrail/internal/validate"
	"github.com/sendrec/watchtrail/internal/viewer"
	"github.com/sendrec/watchtrail/internal/watch"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	DB                    database.DBTX
	Pinger                Pinger
	Storage               watch.ObjectStorage
	Geo                   viewer.CountryResolver
	Durations             watch.DurationResolver
	JWTSecret             string
	BaseURL               string
	MaxSegmentsPerRequest int
	// AllowedOrigins lists the player origins allowed to call the viewer
	// endpoints. Empty allows any origin.
	AllowedOrigins []string
	// TrustProxy takes the client address from True-Client-IP, X-Real-IP or
	// X-Forwarded-For. Enable only behind a proxy that overwrites them.
	TrustProxy bool
}

type Server struct {
	router       chi.Router
	pinger       Pinger
	auth         *auth.Authenticator
	watchHandler *watch.Handler
	maxSegments  int
	origins      []string
	limiters     []*ratelimit.Limiter
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{BaseURL: cfg.BaseURL}))

	maxSegments := cfg.MaxSegmentsPerRequest
	if maxSegments <= 0 {
		maxSegments = watch.DefaultMaxSegmentsPerRequest
	}

	s := &Server{
		router:      r,
		pinger:      cfg.Pinger,
		maxSegments: maxSegments,
		origins:     cfg.AllowedOrigins,
	}

	if cfg.DB != nil {
		if cfg.JWTSecret == "" {
			log.Fatal("JWT_SECRET is required; set the environment variable")
		}
		s.auth = auth.New(cfg.JWTSecret)
		s.watchHandler = watch.NewHandler(cfg.DB, cfg.Storage, maxSegments)
		if cfg.Geo != nil {
			s.watchHandler.SetCountryResolver(cfg.Geo)
		}
		if cfg.Durations != nil {
			s.watchHandler.SetDurationResolver(cfg.Durations)
		}
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RunLimiters evicts idle rate limit entries until ctx is cancelled.
func (s *Server) RunLimiters(ctx context.Context) {
	for _, l := range s.limiters {
		go l.Run(ctx)
	}
}

func (s *Server) newLimiter(requestsPerSecond float64, burst int) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(requestsPerSecond, burst)
	s.limiters = append(s.limiters, l)
	return l
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/limits", s.handleLimits)

	if s.watchHandler == nil {
		return
	}

	ownerLimiter := s.newLimiter(2, 10)
	s.router.Route("/api/videos", func(r chi.Router) {
		r.Use(ownerLimiter.Middleware)
		r.Use(s.auth.Middleware)
		r.With(auth.RequireScope(auth.ScopeSegmentsRead)).Get("/{id}/segments", s.watchHandler.Segments)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope())
			r.Post("/", s.watchHandler.Create)
			r.Get("/", s.watchHandler.List)
			r.Delete("/{id}", s.watchHandler.Delete)
			r.Get("/{id}/progress", s.watchHandler.Progress)
			r.Post("/{id}/segments/export", s.watchHandler.Export)
		})
	})

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	playerCORS := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Retry-After", httputil.RequestIDHeader},
	})

	viewerLimiter := s.newLimiter(5, 20)
	s.router.Route("/api/watch/{shareToken}", func(r chi.Router) {
		r.Use(playerCORS.Handler)
		r.Use(viewerLimiter.Middleware)
		r.Post("/segments", s.watchHandler.RecordSegments)
		r.Get("/progress", s.watchHandler.ViewerProgress)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type limitsResponse struct {
	MaxSegmentsPerRequest int            `json:"maxSegmentsPerRequest"`
	MinVisibleWidth       int            `json:"minVisibleWidth"`
	Fields                map[string]int `json:"fields"`
}

func (s *Server) handleLimits(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, limitsResponse{
		MaxSegmentsPerRequest: s.maxSegments,
		MinVisibleWidth:       segment.MinVisibleWidth,
		Fields:                validate.FieldLimits(),
	})
}
