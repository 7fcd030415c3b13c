package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neftie/neftie/backend/internal/auth"
	"github.com/neftie/neftie/backend/internal/middleware"
	"github.com/neftie/neftie/backend/internal/uploads"
)

type routerDeps struct {
	corsOrigins []string
	tokens      *auth.TokenIssuer
	graphql     http.Handler
	files       uploads.FileStore
	log         *slog.Logger
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(d.log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// GraphQL (token optional; resolvers gate)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(d.tokens, d.log))
		r.Use(chimw.Timeout(30 * time.Second))
		r.Method(http.MethodGet, "/graphql", d.graphql)
		r.Method(http.MethodPost, "/graphql", d.graphql)
	})

	// Attachments
	if d.files != nil {
		r.Route("/api/uploads", func(r chi.Router) {
			uploads.NewHandler(d.files, d.log).Routes(r, middleware.RequireAuth(d.tokens, d.log))
		})
	}

	return r
}
