package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all routes for the tracking service.
// Tracking endpoints carry no auth: the pixel and click URLs are fetched
// by arbitrary mail clients, so anything that could fail a request would
// break tracking.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Pixel and image requests come from webmail proxies across every
	// origin; allow all.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/img", h.HandleImg)
		r.Get("/click", h.HandleClick)
		r.Get("/test", h.HandleTest)
	})

	r.Route("/tracking", func(r chi.Router) {
		r.Get("/by_email", h.HandleByEmail)
		r.Get("/latest", h.HandleLatest)
		r.Get("/download", h.HandleDownload)
		r.Get("/download_imgreads", h.HandleDownloadImgReads)
	})

	return r
}
