package api

import (
	"net/http"
	"time"

	"credit-ledger-go/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter wires every route. The user id in the path is trusted;
// authentication happens in front of this service.
func NewRouter(s *LedgerService, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(requestContext)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Actor", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/users/{userId}", func(r chi.Router) {
		r.Get("/balance", s.handleGetBalance)
		r.Get("/sufficient", s.handleSufficient)
		r.Get("/entries", s.handleListEntries)
		r.Post("/credits", s.handleAddCredits)
		r.Post("/consume", s.handleConsume)
		r.Post("/refunds", s.handleRefund)
		r.Post("/sweep", s.handleSweep)
		r.Get("/reconcile", s.handleReconcile)
	})

	return r
}

// NewServer builds the http.Server for ledgerd.
func NewServer(s *LedgerService, cfg models.ServerConfig) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(s, cfg.CorsOrigins),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		zap.L().Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// requestContext tags the request so audit events record where they came from.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := models.WithRequestContext(r.Context(), &models.RequestContext{
			RequestId: middleware.GetReqID(r.Context()),
			Source:    "http",
			Actor:     r.Header.Get("X-Actor"),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
