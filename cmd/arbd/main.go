package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"arbscan/internal/analyzer"
	"arbscan/internal/auth"
	"arbscan/internal/collector"
	"arbscan/internal/config"
	cronrunner "arbscan/internal/cron"
	"arbscan/internal/db"
	"arbscan/internal/detector"
	"arbscan/internal/handler"
	"arbscan/internal/logger"
	"arbscan/internal/oddsfeed"
	"arbscan/internal/ratelimit"
	gormrepository "arbscan/internal/repository/gorm"
	"arbscan/internal/scheduler"
	"arbscan/internal/stake"
)

func main() {
	cfgPath := os.Getenv("ARB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("ARB_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	oddsClient := oddsfeed.NewClient(cfg.OddsFeed)
	oddsCollector := &collector.Collector{
		Source: oddsClient,
		Repo:   store,
		Logger: logger,
		Config: cfg.Collector,
	}
	arbDetector := &detector.Detector{
		Repo:   store,
		Logger: logger,
		Config: cfg.Detector,
	}
	var chat analyzer.ChatClient
	if cfg.Analyzer.Enabled && cfg.Analyzer.APIKey != "" {
		chat = analyzer.NewOpenAIClient(cfg.Analyzer.APIKey)
	}
	oppAnalyzer := &analyzer.Analyzer{
		Repo:   store,
		Chat:   chat,
		Logger: logger,
		Config: cfg.Analyzer,
	}
	allocator := stake.Allocator{Config: cfg.Stake}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loops := []scheduler.Loop{
		{
			Name:     "collection",
			Interval: cfg.Collector.Interval,
			Backoff:  cfg.Collector.Backoff,
			Run:      oddsCollector.RunCycle,
		},
		{
			Name:     "detection",
			Interval: cfg.Detector.Interval,
			Backoff:  cfg.Detector.Backoff,
			Run:      arbDetector.RunCycle,
		},
		{
			Name:     "cleanup",
			Interval: cfg.Cleanup.Interval,
			Backoff:  cfg.Cleanup.Backoff,
			Run: func(ctx context.Context) error {
				cutoff := time.Now().UTC().Add(-cfg.Cleanup.SnapshotRetention)
				n, err := store.DeleteOldSnapshots(ctx, cutoff)
				if err != nil {
					return err
				}
				if n > 0 {
					logger.Info("deleted old odds snapshots", zap.Int64("count", n))
				}
				return nil
			},
		},
	}
	if cfg.Analyzer.Enabled {
		loops = append(loops, scheduler.Loop{
			Name:     "analysis",
			Interval: cfg.Analyzer.Interval,
			Backoff:  cfg.Analyzer.Backoff,
			Run:      oppAnalyzer.RunCycle,
		})
	}

	sched := &scheduler.Scheduler{Logger: logger}
	sched.Start(ctx, loops...)
	defer sched.Stop(30 * time.Second)

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err := cronRunner.Add(cfg.Cron.ExpirySweep, "opportunity expiry", arbDetector.ExpireDue)
		if err != nil {
			logger.Warn("cron register expiry sweep failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.RequestLogger(logger))

	limiter := &ratelimit.Limiter{Redis: redisClient, Logger: logger, Config: cfg.RateLimit}
	engine.Use(limiter.Middleware())

	jwt := auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), TokenTTL: cfg.Auth.TokenTTL}
	authRequired := auth.Middleware(jwt)

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	authHandler := &handler.AuthHandler{JWT: jwt, Config: cfg.Auth}
	authHandler.Register(engine)
	oppHandler := &handler.OpportunityHandler{
		Repo:      store,
		Analyzer:  oppAnalyzer,
		Allocator: allocator,
		Logger:    logger,
	}
	oppHandler.Register(engine, authRequired)
	eventHandler := &handler.EventHandler{Repo: store}
	eventHandler.Register(engine, authRequired)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
