package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"meshbridge/internal/application/command"
	"meshbridge/internal/application/ingest"
	"meshbridge/internal/infrastructure/config"
	"meshbridge/internal/infrastructure/database"
	"meshbridge/internal/infrastructure/device"
	"meshbridge/internal/infrastructure/metrics"
	"meshbridge/internal/infrastructure/pubsub"
	"meshbridge/internal/infrastructure/repository"
	"meshbridge/internal/infrastructure/scheduler"
	"meshbridge/internal/infrastructure/stream"
	"meshbridge/internal/infrastructure/webhook"
	httpRouter "meshbridge/internal/interfaces/http"
	"meshbridge/internal/shared/db"
	"meshbridge/internal/shared/goroutine"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/version"
)

var configPath string

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge",
		Long:  `Connect to the radio device, ingest its event stream into the local store, and serve the query API, command queue, and live event stream.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.Options{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.OutputPath,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()

	log.Infow("starting meshbridge",
		"version", version.Version,
		"env", cfg.App.Env,
		"device_mode", cfg.Device.Mode,
	)

	gin.SetMode(ginMode(cfg.Server.Mode))
	gin.DefaultWriter = io.Discard
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, nuHandlers int) {
	}

	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("failed to initialize database", "error", err)
	}
	defer database.Close()

	m := metrics.New()

	bus := pubsub.NewBus(log)
	bus.OnDrop(m.EventsDropped.Inc)

	port, err := device.New(&cfg.Device, log)
	if err != nil {
		logger.Fatal("failed to build device port", "error", err)
	}

	// rootCtx bounds every background consumer. It is cancelled only after
	// the command worker has drained, so in-flight work never sees it.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if err := port.Connect(rootCtx); err != nil {
		logger.Fatal("failed to connect device", "error", err)
	}
	m.RegisterDeviceGauge(port.IsConnected)

	goroutine.SafeGo(log, "event-pump", func() {
		for {
			select {
			case <-rootCtx.Done():
				return
			case ev, ok := <-port.Events():
				if !ok {
					return
				}
				bus.Publish(ev)
			}
		}
	})

	gormDB := database.Get()
	txManager := db.NewTransactionManager(gormDB)
	nodeRepo := repository.NewNodeRepository(gormDB, log)
	messageRepo := repository.NewMessageRepository(gormDB, log)
	advertRepo := repository.NewAdvertisementRepository(gormDB, log)
	telemetryRepo := repository.NewTelemetryRepository(gormDB, log)
	traceRepo := repository.NewTracePathRepository(gormDB, log)
	eventLogRepo := repository.NewEventLogRepository(gormDB, log)

	fanout := webhook.NewFanout(cfg.Webhooks, m, log)

	normalizer := ingest.NewNormalizer(
		bus, port, txManager,
		nodeRepo, messageRepo, advertRepo, telemetryRepo, traceRepo, eventLogRepo,
		fanout, m, cfg.EventLog, log,
	)
	normalizer.Start(rootCtx)

	pipeline := command.NewPipeline(cfg.Commands, port, m, log)
	pipeline.Start(rootCtx)
	m.RegisterPipelineGauges(
		func() float64 { return float64(pipeline.Stats().QueueSize) },
		func() float64 { return pipeline.Stats().TokensAvailable },
		func() float64 { return float64(pipeline.Stats().DebounceCacheSize) },
	)

	hub := stream.NewHub(bus, log)
	hub.Start(rootCtx)

	sched, err := scheduler.NewManager(log)
	if err != nil {
		logger.Fatal("failed to create scheduler", "error", err)
	}
	sweeper := scheduler.NewRetentionSweeper(
		cfg.Database.RetentionDays, txManager,
		messageRepo, advertRepo, telemetryRepo, traceRepo, eventLogRepo, log,
	)
	if err := sched.RegisterRetentionJob(sweeper, cfg.Database.CleanupInterval()); err != nil {
		logger.Fatal("failed to register retention job", "error", err)
	}
	if cfg.Commands.Debounce.Enabled {
		if err := sched.RegisterDebounceSweepJob(pipeline, cfg.Commands.Debounce.SweepInterval()); err != nil {
			logger.Fatal("failed to register debounce sweep job", "error", err)
		}
	}
	sched.Start()

	router := httpRouter.NewRouter(gormDB, port, pipeline, hub, m, cfg, log)
	router.SetupRoutes()

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "address", cfg.Server.GetAddr(), "mode", gin.Mode())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down")

	grace := cfg.Shutdown.Grace()
	deadline := time.Now().Add(grace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	// Intake first: no new requests, then let the worker finish the command
	// it already pulled.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("http server forced to shutdown", "error", err)
	}
	pipeline.Stop(time.Until(deadline))

	if err := sched.Stop(); err != nil {
		log.Errorw("scheduler stop failed", "error", err)
	}
	if err := port.Disconnect(); err != nil {
		log.Errorw("device disconnect failed", "error", err)
	}

	rootCancel()
	select {
	case <-normalizer.Done():
	case <-shutdownCtx.Done():
		log.Warnw("normalizer did not drain before deadline")
	}
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
	}

	fanout.Drain(time.Until(deadline))

	log.Infow("meshbridge exited")
	return nil
}

// ginMode maps the configured server mode onto a gin mode, falling back to
// release so a typo never ships a debug server.
func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	default:
		return gin.ReleaseMode
	}
}
