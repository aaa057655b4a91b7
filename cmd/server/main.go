package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/forkbox/config"
	"github.com/isdmx/forkbox/httpapi"
	"github.com/isdmx/forkbox/hydrator"
	"github.com/isdmx/forkbox/logger"
	"github.com/isdmx/forkbox/mcpserver"
	"github.com/isdmx/forkbox/sandbox"
	"github.com/isdmx/forkbox/service"
)

func main() {
	app := fx.New(
		appOptions(),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

func appOptions() fx.Option {
	return fx.Options(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Metrics
			fx.Annotate(
				newMetricsRegistry,
				fx.As(new(prometheus.Registerer)),
				fx.As(new(prometheus.Gatherer)),
			),
			sandbox.NewMetrics,

			// Fork registry, background reaper and network hydration
			sandbox.NewRegistryFromConfig,
			sandbox.NewReaperFromConfig,
			hydrator.NewPoolFromConfig,

			// Fork operations shared by both transports
			fx.Annotate(
				newService,
				fx.As(new(mcpserver.ForkService)),
				fx.As(new(httpapi.ForkService)),
			),

			// MCP Server
			mcpserver.New,

			// HTTP surface
			newRouter,
			httpapi.NewServerFromConfig,
		),

		fx.Invoke(registerReaper, registerTransport),
	)
}

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newService(log *zap.Logger, registry *sandbox.Registry, pool *hydrator.Pool) *service.Service {
	return service.New(log, registry, pool)
}

func newRouter(cfg *config.Config, log *zap.Logger, forks httpapi.ForkService, gatherer prometheus.Gatherer, server *mcpserver.MCPServer) http.Handler {
	if cfg.Logging.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return httpapi.NewRouter(log, forks, gatherer, server.HTTPHandler())
}

func registerReaper(lc fx.Lifecycle, reaper *sandbox.Reaper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// the start context is cancelled once startup completes
			return reaper.Start(context.Background())
		},
		OnStop: func(context.Context) error {
			reaper.Stop()
			return nil
		},
	})
}

// registerTransport starts the configured transport
func registerTransport(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, log *zap.Logger, server *mcpserver.MCPServer, httpServer *httpapi.Server) error {
	switch cfg.Server.Transport {
	case "stdio":
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := server.ServeStdio(); err != nil {
						log.Error("stdio transport stopped", zap.Error(err))
					}
					// stdin closed: the client is gone
					_ = shutdowner.Shutdown()
				}()
				return nil
			},
		})
	case "http":
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return httpServer.Start()
			},
			OnStop: httpServer.Stop,
		})
	default:
		return fmt.Errorf("unsupported transport: %s", cfg.Server.Transport)
	}
	return nil
}
