package api

import (
	"github.com/gin-gonic/gin"
	"github.com/saedlagr/foodio-beta-sub000/internal/api/handler"
	"github.com/saedlagr/foodio-beta-sub000/internal/api/middleware"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
)

// RouterConfig holds HTTP settings for SetupRouter.
type RouterConfig struct {
	Mode           string
	CORS           middleware.CORSConfig
	UserHeader     string
	MaxUploadBytes int64
	WorkflowSecret string
}

// RecordService backs the workflow callback and history routes.
type RecordService interface {
	handler.WorkflowUpdater
	handler.HistoryReader
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	registry *tracker.Registry,
	records RecordService,
	cfg RouterConfig,
	log *logger.Logger,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Multipart parts beyond this are spooled to disk.
	r.MaxMultipartMemory = 32 << 20

	healthHandler := handler.NewHealthHandler(registry)
	jobHandler := handler.NewJobHandler(registry, cfg.MaxUploadBytes)
	sessionHandler := handler.NewSessionHandler(registry)
	eventHandler := handler.NewEventHandler(registry)
	historyHandler := handler.NewHistoryHandler(records)
	workflowHandler := handler.NewWorkflowHandler(records, cfg.WorkflowSecret)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Called by the enhancement workflow, not by users.
		v1.POST("/workflow/records/:id", workflowHandler.Update)

		user := v1.Group("")
		user.Use(middleware.UserIdentity(cfg.UserHeader))
		{
			user.POST("/jobs", jobHandler.Submit)
			user.GET("/jobs", jobHandler.List)
			user.GET("/jobs/:id", jobHandler.Get)
			user.GET("/jobs/:id/preview", jobHandler.Preview)
			user.POST("/jobs/:id/retry", jobHandler.Retry)
			user.DELETE("/jobs/:id", jobHandler.Delete)

			user.GET("/balance", sessionHandler.Balance)
			user.DELETE("/session", sessionHandler.End)

			user.GET("/events", eventHandler.Stream)

			user.GET("/history", historyHandler.List)
			user.GET("/history/:id/original", historyHandler.Original)
		}
	}

	return r
}
