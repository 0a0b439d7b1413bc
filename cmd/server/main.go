package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"nojsfp/internal/config"
	cronrunner "nojsfp/internal/cron"
	"nojsfp/internal/db"
	"nojsfp/internal/fingerprint"
	"nojsfp/internal/handler"
	"nojsfp/internal/ingest"
	"nojsfp/internal/logger"
	"nojsfp/internal/metrics"
	"nojsfp/internal/repository"
	gormrepository "nojsfp/internal/repository/gorm"
	"nojsfp/internal/repository/memory"
	redisrepository "nojsfp/internal/repository/redis"
	fpsignal "nojsfp/internal/signal"

	_ "nojsfp/docs"
)

func main() {
	cfgPath := os.Getenv("NOJSFP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("NOJSFP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log, zap.String("env", cfg.App.Env))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var recorder metrics.Recorder = metrics.Noop()
	if cfg.Metrics.Enabled {
		prom, err := metrics.NewPrometheus(reg)
		if err != nil {
			logger.Fatal("metrics init failed", zap.Error(err))
		}
		recorder = prom
	}

	cronRunner := cronrunner.New(logger, ctx)
	registry := fpsignal.Default
	store, closeStore, err := openStore(cfg, logger, fingerprint.For(registry), cronRunner)
	if err != nil {
		logger.Fatal("visit store init failed", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("visit store close failed", zap.Error(err))
		}
	}()
	logger.Info("visit store ready",
		zap.String("driver", cfg.Storage.Driver),
		zap.Int("signal_sources", registry.Len()),
	)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Fatal("invalid trusted proxies", zap.Error(err))
	}
	engine.Use(gin.Recovery())
	engine.Use(handler.RequestID())
	engine.Use(handler.AccessLog(logger, recorder))

	healthHandler := &handler.HealthHandler{Store: store}
	healthHandler.Register(engine)
	probeHandler := &handler.ProbeHandler{
		Registry: registry,
		Store:    store,
		Ingest: &ingest.Service{
			Registry: registry,
			Store:    store,
			Logger:   logger,
			Metrics:  recorder,
		},
		Logger:  logger,
		Metrics: recorder,
	}
	probeHandler.Register(engine)
	resultHandler := &handler.ResultHandler{
		Registry:        registry,
		Store:           store,
		Logger:          logger,
		Metrics:         recorder,
		DefaultDownlink: cfg.Probe.DefaultDownlink,
	}
	resultHandler.Register(engine)

	if cfg.Metrics.Enabled {
		engine.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}
	if cfg.Server.Swagger {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cronRunner.Start()
	defer cronRunner.Stop()

	go func() {
		logger.Info("http server started", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}
	logger.Info("http server stopped")
}

// openStore builds the configured visit store and schedules its maintenance job.
func openStore(cfg config.Config, logger *zap.Logger, fp fingerprint.Func, runner *cronrunner.Runner) (repository.Storage, func() error, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		dbConn, err := db.Open(cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		if cfg.DB.AutoMigrate {
			if err := db.AutoMigrate(dbConn); err != nil {
				_ = db.Close(dbConn)
				return nil, nil, err
			}
		}
		store := gormrepository.New(dbConn.Gorm, fp)
		if retention := cfg.Storage.Retention; retention > 0 {
			if _, err := runner.Add("visit retention", cfg.Storage.RetentionSchedule, func(ctx context.Context) error {
				deleted, err := store.DeleteVisitsBefore(ctx, time.Now().Add(-retention))
				if err == nil && deleted > 0 {
					logger.Info("old visits deleted", zap.Int64("visits", deleted))
				}
				return err
			}); err != nil {
				_ = db.Close(dbConn)
				return nil, nil, err
			}
		}
		return store, func() error { return db.Close(dbConn) }, nil

	case config.StorageRedis:
		store, err := redisrepository.NewFromURL(cfg.Redis.URL, fp, cfg.Redis.KeyPrefix, cfg.Storage.VisitLifetime)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		store := memory.New(fp, cfg.Storage.VisitLifetime)
		if cfg.Storage.VisitLifetime > 0 {
			if _, err := runner.Add("visit sweep", cfg.Storage.SweepInterval, func(context.Context) error {
				if removed := store.Sweep(time.Now()); removed > 0 {
					logger.Debug("expired visits swept", zap.Int("visits", removed), zap.Int("remaining", store.Len()))
				}
				return nil
			}); err != nil {
				return nil, nil, err
			}
		}
		return store, func() error { return nil }, nil
	}
}
