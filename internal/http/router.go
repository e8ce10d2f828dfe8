package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/storybook-admin/internal/http/handlers"
	httpMW "github.com/yungbote/storybook-admin/internal/http/middleware"
	"github.com/yungbote/storybook-admin/internal/observability"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	TracingEnabled bool
	AllowedOrigins []string

	// AdminAuth is nil when no signing secret is configured; /api is then open.
	AdminAuth *httpMW.AdminAuth

	PipelineHandler *httpH.PipelineHandler
	BookHandler     *httpH.BookHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		name := cfg.ServiceName
		if name == "" {
			name = "storybook-admin"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	if cfg.AdminAuth != nil {
		api.Use(cfg.AdminAuth.RequireOperator())
	}
	{
		// Pipeline
		if cfg.PipelineHandler != nil {
			api.POST("/pipeline/trigger", cfg.PipelineHandler.Trigger)
			api.GET("/pipeline/status", cfg.PipelineHandler.GetStatus)
			api.POST("/pipeline/stop", cfg.PipelineHandler.Stop)
			api.POST("/pipeline/remove", cfg.PipelineHandler.RemoveHistory)
		}

		// Books
		if cfg.BookHandler != nil {
			api.GET("/books", cfg.BookHandler.ListBooks)
			api.POST("/books", cfg.BookHandler.CreateBook)
			api.GET("/books/:safeTitle", cfg.BookHandler.GetBook)
			api.PUT("/books/:safeTitle", cfg.BookHandler.SaveBook)
			api.DELETE("/books/:safeTitle", cfg.BookHandler.DeleteBook)
			api.POST("/books/:safeTitle/images", cfg.BookHandler.UploadImage)
		}
	}

	return r
}
