package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/engine", func(r chi.Router) {
			r.Post("/start", s.handleEngineStart)
			r.Post("/stop", s.handleEngineStop)
			r.Put("/kind", s.handleEngineKind)
		})

		r.Route("/path", func(r chi.Router) {
			r.Get("/", s.handleGetPath)
			r.Delete("/", s.handleClearPath)
			r.Put("/kind", s.handlePathKind)
			r.Put("/vendor-name", s.handleVendorName)
		})

		r.Route("/paths", func(r chi.Router) {
			r.Get("/", s.handleListPaths)
			r.Route("/{name}", func(r chi.Router) {
				r.Post("/load", s.handleLoadPath)
				r.Post("/save", s.handleSavePath)
				r.Get("/revisions", s.handleRevisions)
			})
		})

		r.Post("/revisions/{id}/restore", s.handleRestoreRevision)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleEntities)
			r.Get("/nearest", s.handleNearest)
			r.Get("/{id}", s.handleEntity)
		})

		r.Route("/actions", func(r chi.Router) {
			r.Post("/focus", s.handleFocus)
			r.Post("/interact", s.handleInteract)
			r.Post("/face", s.handleFace)
			r.Post("/cast", s.handleCast)
			r.Post("/sell", s.handleSell)
			r.Post("/close-dialog", s.handleCloseDialog)
			r.Post("/script", s.handleScript)
		})
	})

	return r
}
