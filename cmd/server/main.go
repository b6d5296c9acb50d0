// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gauge-service/internal/config"
	"gauge-service/internal/driver"
	"gauge-service/internal/handler"
	"gauge-service/internal/metrics"
	"gauge-service/internal/routes"
	"gauge-service/internal/service"
	"gauge-service/internal/utils"
	gauge "gauge-service/pkg/driver"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	collector      *metrics.Collector
	driverRegistry *driver.Registry
	gauge          gauge.GaugeDriver
	bus            *handler.EventBus
	websocket      *handler.WebSocketHandler
	gaugeService   *service.GaugeService

	cancel context.CancelFunc
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, cfg.App.Name)
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDriver(); err != nil {
		return nil, fmt.Errorf("failed to initialize driver: %w", err)
	}

	app.initializeEvents()
	app.gaugeService = service.NewGaugeService(app.gauge, cfg.Device.TickInterval, logger)
	app.initializeServer()

	return app, nil
}

// initializeDriver creates the gauge driver for the configured controller model
func (app *Application) initializeDriver() error {
	app.collector = metrics.NewCollector(app.config.Device.Name)

	app.driverRegistry = driver.NewRegistry(app.logger)
	driver.RegisterDefaultDrivers(app.driverRegistry, app.logger)

	g, err := app.driverRegistry.CreateDriver(&app.config.Device, app.collector)
	if err != nil {
		return err
	}
	app.gauge = g

	app.logger.Info("Gauge driver initialized",
		zap.String("model", app.config.Device.Model),
		zap.String("serial_line", app.config.Device.SerialLine),
		zap.String("protocol", app.config.Device.Protocol),
	)
	return nil
}

// initializeEvents wires controller events to the bus and the WebSocket clients
func (app *Application) initializeEvents() {
	app.bus = handler.NewEventBus(app.logger)
	app.gauge.SetEventHandler(handler.NewGaugeEventHandler(app.bus, app.logger))
	app.websocket = handler.NewWebSocketHandler(app.gauge, app.bus, app.config.Security.AllowedOrigins, app.logger)
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.gauge,
		app.bus,
		app.websocket,
		app.collector.Handler(),
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.config.GetServerAddr()))
}

// Start runs the application until a shutdown signal arrives
func (app *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	go app.bus.Start()
	go app.websocket.Run(ctx)

	if err := app.gaugeService.Start(ctx); err != nil {
		cancel()
		return err
	}

	go func() {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.waitForShutdown()
	return nil
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	utils.NewServiceLogger(app.logger, app.config.App.Name).LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if err := app.gaugeService.Stop(); err != nil {
		app.logger.Error("Gauge service stop error", zap.Error(err))
	}

	app.cancel()
	app.websocket.Wait()
	app.bus.Stop()

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
