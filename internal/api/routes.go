package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig — параметры router'а.
type RouterConfig struct {
	// OperatorToken защищает операторские endpoints; пустой — без проверки.
	OperatorToken string

	// AllowedOrigins — CORS origins для синхронных вызовов.
	AllowedOrigins []string
}

// Router возвращает chi router со всеми маршрутами API.
func (h *Handler) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Recovery(h.logger))
	r.Use(Logging(h.logger))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Route("/v1/tenants/{tenantID}", func(r chi.Router) {
		// Синхронный вызов функции: любой метод, любой путь после /http.
		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: origins,
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"*"},
			}))
			r.HandleFunc("/functions/{functionID}/http", h.InvokeHTTP)
			r.HandleFunc("/functions/{functionID}/http/*", h.InvokeHTTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(OperatorAuth(cfg.OperatorToken))

			r.Post("/functions/{functionID}/deployments/{deploymentID}/builds", h.CreateBuild)
			r.Get("/builds/{buildID}", h.GetBuild)
			r.Post("/builds/{buildID}/cancel", h.CancelBuild)

			r.Post("/functions/{functionID}/executions", h.CreateExecution)
			r.Get("/executions/{executionID}", h.GetExecution)
		})
	})

	return r
}
