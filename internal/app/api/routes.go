package api

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/ratishjain12/subscription-management-api/internal/http/handlers/auth/login"
	"github.com/ratishjain12/subscription-management-api/internal/http/handlers/auth/register"
	"github.com/ratishjain12/subscription-management-api/internal/http/handlers/health"
	"github.com/ratishjain12/subscription-management-api/internal/http/handlers/subscription/cancel"
	"github.com/ratishjain12/subscription-management-api/internal/http/handlers/subscription/create"
	"github.com/ratishjain12/subscription-management-api/internal/http/handlers/subscription/list"
	"github.com/ratishjain12/subscription-management-api/internal/http/handlers/subscription/read"
	"github.com/ratishjain12/subscription-management-api/internal/http/handlers/subscription/remove"
	"github.com/ratishjain12/subscription-management-api/internal/http/handlers/subscription/update"
	"github.com/ratishjain12/subscription-management-api/internal/http/handlers/workflow/trigger"
	"github.com/ratishjain12/subscription-management-api/internal/http/middlewarectx"
	authservice "github.com/ratishjain12/subscription-management-api/internal/services/auth"
	runstartservice "github.com/ratishjain12/subscription-management-api/internal/services/runstart"
	subservice "github.com/ratishjain12/subscription-management-api/internal/services/subscription"
	"github.com/ratishjain12/subscription-management-api/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, db *repository.Storage,
	authService *authservice.AuthService, subscriptionService *subservice.SubscriptionService,
	runStartService *runstartservice.RunStartService) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)
		r.Get("/health", health.New(logger, db).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/subscriptions", create.New(logger, subscriptionService).ServeHTTP)
			r.Get("/subscriptions/list", list.New(logger, subscriptionService).ServeHTTP)
			r.Get("/subscriptions/{id}", read.New(logger, subscriptionService).ServeHTTP)
			r.Put("/subscriptions/{id}", update.New(logger, subscriptionService).ServeHTTP)
			r.Delete("/subscriptions/{id}", remove.New(logger, subscriptionService).ServeHTTP)
			r.Post("/subscriptions/{id}/cancel", cancel.New(logger, subscriptionService).ServeHTTP)
			r.Post("/workflows/reminders", trigger.New(logger, runStartService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
