package http

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"meshbridge/internal/application/command"
	"meshbridge/internal/application/query"
	"meshbridge/internal/application/tag"
	"meshbridge/internal/domain/device"
	"meshbridge/internal/infrastructure/config"
	"meshbridge/internal/infrastructure/metrics"
	"meshbridge/internal/infrastructure/repository"
	"meshbridge/internal/infrastructure/stream"
	"meshbridge/internal/interfaces/http/handlers"
	commandhandler "meshbridge/internal/interfaces/http/handlers/command"
	nodehandler "meshbridge/internal/interfaces/http/handlers/node"
	recordhandler "meshbridge/internal/interfaces/http/handlers/record"
	streamhandler "meshbridge/internal/interfaces/http/handlers/stream"
	"meshbridge/internal/interfaces/http/middleware"
	"meshbridge/internal/shared/db"
	"meshbridge/internal/shared/logger"
)

// Router represents the HTTP router configuration
type Router struct {
	engine         *gin.Engine
	systemHandler  *handlers.SystemHandler
	nodeHandler    *nodehandler.NodeHandler
	recordHandler  *recordhandler.RecordHandler
	commandHandler *commandhandler.CommandHandler
	streamHandler  *streamhandler.StreamHandler
	metrics        *metrics.Metrics
	cfg            *config.Config
	logger         logger.Interface
}

// NewRouter creates a new HTTP router with all dependencies
func NewRouter(
	database *gorm.DB,
	port device.Port,
	pipeline *command.Pipeline,
	hub *stream.Hub,
	m *metrics.Metrics,
	cfg *config.Config,
	log logger.Interface,
) *Router {
	engine := gin.New()

	nodeRepo := repository.NewNodeRepository(database, log)
	tagRepo := repository.NewNodeTagRepository(database, log)
	messageRepo := repository.NewMessageRepository(database, log)
	advertRepo := repository.NewAdvertisementRepository(database, log)
	telemetryRepo := repository.NewTelemetryRepository(database, log)
	traceRepo := repository.NewTracePathRepository(database, log)
	eventLogRepo := repository.NewEventLogRepository(database, log)

	queries := query.NewService(nodeRepo, messageRepo, advertRepo, telemetryRepo, traceRepo, eventLogRepo, log)
	tags := tag.NewService(nodeRepo, tagRepo, db.NewTransactionManager(database), log)

	return &Router{
		engine:         engine,
		systemHandler:  handlers.NewSystemHandler(database, port),
		nodeHandler:    nodehandler.NewNodeHandler(queries, tags, log),
		recordHandler:  recordhandler.NewRecordHandler(queries, log),
		commandHandler: commandhandler.NewCommandHandler(pipeline, log),
		streamHandler:  streamhandler.NewStreamHandler(hub, log),
		metrics:        m,
		cfg:            cfg,
		logger:         log.Named("http"),
	}
}

// SetupRoutes configures all HTTP routes
func (r *Router) SetupRoutes() {
	r.engine.Use(middleware.RequestLogger(r.logger))
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.ErrorHandler())
	r.engine.Use(middleware.CORS(r.cfg.Server.AllowedOrigins))
	r.engine.Use(middleware.SecurityHeaders())

	r.engine.GET("/health", r.systemHandler.HealthCheck)
	r.engine.GET("/version", r.systemHandler.Version)
	r.engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))

	v1 := r.engine.Group("/api/v1")
	{
		nodes := v1.Group("/nodes")
		{
			nodes.GET("", r.nodeHandler.ListNodes)
			nodes.GET("/:key", r.nodeHandler.GetNode)
			nodes.GET("/:key/tags", r.nodeHandler.ListTags)
			nodes.PUT("/:key/tags/:tag", r.nodeHandler.PutTag)
			nodes.DELETE("/:key/tags/:tag", r.nodeHandler.DeleteTag)
		}

		v1.GET("/messages", r.recordHandler.ListMessages)
		v1.GET("/advertisements", r.recordHandler.ListAdvertisements)
		v1.GET("/telemetry", r.recordHandler.ListTelemetry)
		v1.GET("/traces", r.recordHandler.ListTraces)
		v1.GET("/events", r.recordHandler.ListEvents)

		commands := v1.Group("/commands")
		{
			commands.POST("", r.commandHandler.Enqueue)
			commands.GET("/stats", r.commandHandler.Stats)
			commands.GET("/:hash", r.commandHandler.GetResult)
		}

		v1.GET("/events/stream", r.streamHandler.EventStream)
	}
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
