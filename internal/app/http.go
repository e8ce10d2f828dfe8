package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/storybook-admin/internal/http"
	httpH "github.com/yungbote/storybook-admin/internal/http/handlers"
	httpMW "github.com/yungbote/storybook-admin/internal/http/middleware"
	"github.com/yungbote/storybook-admin/internal/observability"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

type Middleware struct {
	AdminAuth *httpMW.AdminAuth
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Pipeline *httpH.PipelineHandler
	Book     *httpH.BookHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		Pipeline: httpH.NewPipelineHandler(log, services.Trigger, services.Status),
		Book:     httpH.NewBookHandler(log, services.BookAdmin, services.BookViews),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	if cfg.AdminJWTSecret == "" {
		log.Warn("ADMIN_JWT_SECRET not set; /api routes are unauthenticated")
		return Middleware{}
	}
	return Middleware{
		AdminAuth: httpMW.NewAdminAuth(log, cfg.AdminJWTSecret, cfg.AdminJWTIssuer),
	}
}

func wireRouter(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.Otel.ServiceName,
		TracingEnabled:  cfg.Otel.Enabled,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		AdminAuth:       middleware.AdminAuth,
		HealthHandler:   handlers.Health,
		PipelineHandler: handlers.Pipeline,
		BookHandler:     handlers.Book,
	})
}
