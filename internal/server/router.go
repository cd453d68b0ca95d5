package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/veritas-labs/lorebase/internal/api"
	"github.com/veritas-labs/lorebase/internal/api/handlers"
	"github.com/veritas-labs/lorebase/internal/api/middleware"
)

type RouterConfig struct {
	KnowledgeHandler   *handlers.KnowledgeHandler
	SearchHandler      *handlers.SearchHandler
	TagHandler         *handlers.TagHandler
	ConceptHandler     *handlers.ConceptHandler
	MaintenanceHandler *handlers.MaintenanceHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))
	r.Use(middleware.Identity)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/knowledge", func(r chi.Router) {
		r.Post("/", cfg.KnowledgeHandler.Create)
		r.Get("/", cfg.KnowledgeHandler.List)
		r.Get("/by-topic", cfg.KnowledgeHandler.GetByTopic)
		r.Post("/batch", cfg.MaintenanceHandler.BatchCreate)
		r.Get("/{id}", cfg.KnowledgeHandler.Get)
		r.Patch("/{id}", cfg.KnowledgeHandler.Update)
		r.Delete("/{id}", cfg.KnowledgeHandler.Delete)
		r.Get("/{id}/audit", cfg.KnowledgeHandler.Audit)
	})

	r.Post("/search", cfg.SearchHandler.Search)

	r.Route("/tags", func(r chi.Router) {
		r.Post("/", cfg.TagHandler.Create)
		r.Get("/", cfg.TagHandler.List)
		r.Get("/{id}", cfg.TagHandler.Get)
		r.Put("/{id}", cfg.TagHandler.Rename)
		r.Delete("/{id}", cfg.TagHandler.Delete)
	})

	r.Route("/concepts", func(r chi.Router) {
		r.Post("/", cfg.ConceptHandler.Create)
		r.Get("/", cfg.ConceptHandler.List)
		r.Get("/by-path", cfg.ConceptHandler.GetByPath)
		r.Get("/hierarchy", cfg.ConceptHandler.Hierarchy)
		r.Get("/{id}", cfg.ConceptHandler.Get)
		r.Patch("/{id}", cfg.ConceptHandler.Update)
		r.Put("/{id}/parent", cfg.ConceptHandler.Reparent)
		r.Delete("/{id}", cfg.ConceptHandler.Delete)
		r.Get("/{id}/ancestors", cfg.ConceptHandler.Ancestors)
		r.Get("/{id}/descendants", cfg.ConceptHandler.Descendants)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/cleanup/orphaned", cfg.MaintenanceHandler.CleanupOrphaned)
		r.Post("/cleanup/stale", cfg.MaintenanceHandler.CleanupStale)
		r.Post("/reindex", cfg.MaintenanceHandler.Reindex)
	})

	return r
}
