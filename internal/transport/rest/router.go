package rest

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi"

	"github.com/oemhub/identity-broker/internal/broker"
	"github.com/oemhub/identity-broker/internal/popup"
	"github.com/oemhub/identity-broker/internal/reconcile"
	"github.com/oemhub/identity-broker/internal/solutions"
	"github.com/oemhub/identity-broker/internal/transport/middleware"
)

// RegisterAllRoutes mounts the broker's HTTP surface. The routing layer is
// deliberately thin: shapes in, typed service errors out.
func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	allowedOrigins string,
	brokerHandler *broker.Handler,
	popupHandler *popup.Handler,
	solutionsHandler *solutions.Handler,
	reconcileHandler *reconcile.Handler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Auth surface: login/register/logout need no session.
		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", brokerHandler.Login)
			sr.Post("/register", brokerHandler.Register)
			sr.Post("/logout", brokerHandler.Logout)

			sr.Group(func(pr chi.Router) {
				pr.Use(brokerHandler.SessionMiddleware)
				pr.Patch("/credentials", brokerHandler.UpdateCredentials)
			})
		})

		// Everything below requires a live session.
		r.Group(func(pr chi.Router) {
			pr.Use(brokerHandler.SessionMiddleware)

			pr.Get("/me", brokerHandler.Me)
			pr.Get("/viewer", solutionsHandler.Viewer)

			pr.Route("/auths", func(ar chi.Router) {
				ar.Get("/", solutionsHandler.ListAuthentications)
				ar.Post("/url", popupHandler.EditAuthURL)
				ar.Post("/create-url", popupHandler.CreateAuthURL)
				ar.Delete("/{authID}", solutionsHandler.DeleteAuthentication)
			})

			pr.Get("/solutions", solutionsHandler.ListSolutions)

			pr.Route("/solution-instances", func(ir chi.Router) {
				ir.Get("/", solutionsHandler.ListInstances)
				ir.Post("/", solutionsHandler.CreateInstance)
				ir.Patch("/{instanceID}", solutionsHandler.UpdateInstance)
				ir.Patch("/{instanceID}/config", solutionsHandler.ConfigureInstance)
				ir.Delete("/{instanceID}", solutionsHandler.DeleteInstance)
			})

			// Admin surface: cross-system deletion and reconciliation.
			pr.Group(func(ar chi.Router) {
				ar.Use(brokerHandler.RequireAdmin)
				ar.Get("/users", reconcileHandler.ListUsers)
				ar.Delete("/users/{remoteID}", reconcileHandler.DeleteUser)
				ar.Post("/reconcile", reconcileHandler.Reconcile)
			})
		})
	})
}
