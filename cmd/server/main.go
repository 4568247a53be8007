package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/gridsmart/backend/internal/broadcast"
	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/config"
	"github.com/gridsmart/backend/internal/delivery/http"
	"github.com/gridsmart/backend/internal/metrics"
	"github.com/gridsmart/backend/internal/repository/postgres"
	"github.com/gridsmart/backend/internal/repository/sqlite"
	"github.com/gridsmart/backend/internal/service"
)

func main() {
	// Load environment variables
	dotenv := config.LoadDotEnv()
	cfg := config.FromEnv()
	log := config.NewLogger(os.Stdout, cfg.LogLevel)
	if !dotenv {
		log.Info("no .env file found, using system environment")
	}

	tunables, err := config.Load(cfg.SimConfig)
	if err != nil {
		log.Error("loading simulator config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Dependency Injection: Repositories
	dataRepo, closeRepo := openRepository(ctx, cfg, log)
	defer closeRepo()

	m := metrics.New()
	clk := clock.Real{}
	rng := service.NewRandSource(time.Now().UnixNano())

	// Dependency Injection: Services
	load := service.NewLoadSimulator(clk, rng, tunables.LoadSettings(), log)
	load.Instrument(m)
	engine := service.NewPredictionEngine(clk, rng, tunables.PredictionSettings(), log)
	engine.Instrument(m)

	gwSettings := tunables.GatewaySettings(cfg.ChainRPCURL)
	chain := service.NewChainBridge(gwSettings.RPCURL, gwSettings.ChainID, gwSettings.NetworkName, clk, gwSettings.RPCTimeout)
	gateway := service.NewGateway(clk, rng, gwSettings, chain, load, log)

	grid := service.NewGridService(load, engine, dataRepo, clk, log)
	detachGrid := grid.Attach()

	bridge := broadcast.NewBridge(broadcast.NewTopics(cfg.BroadcastPrefix), openSinks(cfg, log), clk, 0, log)
	bridge.Instrument(m)
	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		bridge.Run(ctx)
	}()
	detachBridge := bridge.Attach(load, engine)

	engine.Start(ctx)

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "GridSmart API v1.0",
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: http.ErrorHandler,
		// no WriteTimeout: event streams stay open

		DisableStartupMessage: cfg.IsProduction(),
		EnablePrintRoutes:     !cfg.IsProduction(),
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(m.Middleware())

	// Routes
	handler := http.SetupRoutes(app, http.Deps{
		Grid:    grid,
		Load:    load,
		Engine:  engine,
		Gateway: gateway,
		Metrics: m,
		Logger:  log,
	})

	// Graceful shutdown
	go func() {
		log.Info("server starting", slog.String("port", cfg.Port), slog.String("env", cfg.Env))
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	handler.Close()
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Warn("server forced to shutdown", slog.String("error", err.Error()))
	}

	detachBridge()
	detachGrid()
	engine.Close()
	load.Close()
	grid.WaitBackground()

	cancel()
	<-bridgeDone
	if err := bridge.Close(); err != nil {
		log.Warn("closing broadcast sinks", slog.String("error", err.Error()))
	}
	log.Info("server exited gracefully")
}

// openRepository prefers PostgreSQL, then SQLite, then the in-memory store
func openRepository(ctx context.Context, cfg *config.Env, log *slog.Logger) (service.DataRepository, func()) {
	if cfg.DatabaseURL != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := postgres.Open(dbCtx, cfg.DatabaseURL)
		if err == nil {
			repo := postgres.NewPostgresRepository(pool)
			if err = repo.EnsureSchema(dbCtx); err == nil {
				log.Info("connected to PostgreSQL")
				return repo, pool.Close
			}
			pool.Close()
		}
		log.Warn("could not connect to database", slog.String("error", err.Error()))
	}

	if cfg.SQLitePath != "" {
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err == nil {
			log.Info("using SQLite store", slog.String("path", cfg.SQLitePath))
			return repo, func() { _ = repo.Close() }
		}
		log.Warn("could not open SQLite store", slog.String("error", err.Error()))
	}

	log.Info("running with in-memory storage only")
	return postgres.NewMockRepository(), func() {}
}

func openSinks(cfg *config.Env, log *slog.Logger) []broadcast.Sink {
	var sinks []broadcast.Sink
	if cfg.MQTTBroker != "" {
		sink, err := broadcast.NewMQTTSink(broadcast.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			QoS:      1,
		})
		if err != nil {
			log.Warn("mqtt sink disabled", slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := broadcast.NewKafkaSink(cfg.KafkaBrokers)
		if err != nil {
			log.Warn("kafka sink disabled", slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}
