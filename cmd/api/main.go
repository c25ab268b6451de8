package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"casino-engine/internal/config"
	"casino-engine/internal/handlers"
	"casino-engine/internal/logger"
	"casino-engine/internal/middleware"
	"casino-engine/internal/services"
	"casino-engine/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		Development: !cfg.IsProduction(),
	})
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	// Redis only backs rate limits and the state cache, so the engine runs
	// without it.
	var (
		limiter middleware.Limiter
		cache   services.CrashStateCache
		reader  handlers.CrashStateReader
	)
	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		zlog.Warn("redis unavailable, running without rate limits and state cache", zap.Error(err))
	} else {
		defer redisService.Close()
		limiter, cache, reader = redisService, redisService, redisService
	}

	jwtService := services.NewJWTService(cfg)
	ledger := services.NewLedger(store, zlog, cfg.StartingBalance)

	mines := services.NewMinesEngine(store, ledger, zlog)
	plinko := services.NewPlinkoEngine(store, ledger, zlog)
	dice := services.NewDiceEngine(store, ledger, zlog)
	slots := services.NewSlotsEngine(store, ledger, zlog)
	crash := services.NewCrashEngine(store, ledger, zlog, services.CrashTiming{
		Waiting: cfg.CrashWaiting,
		Pause:   cfg.CrashPause,
	})

	hub, err := handlers.NewHub(cfg.BroadcastWorkers, crash, zlog)
	if err != nil {
		return err
	}
	defer hub.Close()
	crash.SetBroadcaster(hub)

	scheduler := services.NewScheduler(crash, cache, cfg.CrashTick, zlog)

	userHandler := handlers.NewUserHandler(jwtService, ledger, !cfg.IsProduction(), zlog)
	userHandler.AddHealthCheck("sqlite", store)
	if redisService != nil {
		userHandler.AddHealthCheck("redis", redisService)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		JWT:     jwtService,
		Limiter: limiter,
		Log:     zlog,
		User:    userHandler,
		Wallet:  handlers.NewWalletHandler(ledger, !cfg.IsProduction(), zlog),
		Games:   handlers.NewGameHandler(mines, plinko, dice, slots, zlog),
		Crash:   handlers.NewCrashHandler(crash, reader, zlog),
		Hub:     hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		zlog.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
