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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"pollboard/internal/config"
	cronrunner "pollboard/internal/cron"
	"pollboard/internal/db"
	"pollboard/internal/handler"
	"pollboard/internal/ledger"
	"pollboard/internal/logger"
	"pollboard/internal/notify"
	gormrepository "pollboard/internal/repository/gorm"
	"pollboard/internal/service"
	"pollboard/internal/settlement"

	_ "pollboard/docs"
)

func main() {
	cfgPath := os.Getenv("PB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PB_ENV_ONLY"); envOnlyRaw != "" {
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
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	assetLedger := &ledger.Service{Repo: store, Logger: logger}
	notifier := &notify.LogNotifier{Logger: logger}

	reader := &settlement.Reader{Repo: store}
	validator := &settlement.Validator{
		Strict: cfg.Settlement.StrictValidation,
		Logger: logger,
	}
	executor := &settlement.Executor{
		Reader:    reader,
		Guard:     &settlement.Guard{Repo: store},
		Validator: validator,
		Ledger:    assetLedger,
		Notifier:  notifier,
		Logger:    logger,
	}
	batch := &settlement.Batch{
		Executor:   executor,
		ChunkSize:  cfg.Settlement.ChunkSize,
		ChunkDelay: cfg.Settlement.ChunkDelay,
		Logger:     logger,
	}
	tracker := &settlement.Tracker{Repo: store}
	finalizer := &settlement.Finalizer{
		Repo:   store,
		Logger: logger,
		Agent:  cfg.Settlement.Agent,
	}
	driver := &settlement.Driver{
		Repo:           store,
		Reader:         reader,
		Batch:          batch,
		Tracker:        tracker,
		Finalizer:      finalizer,
		Cache:          settlement.NewCache(),
		Logger:         logger,
		Agent:          cfg.Settlement.Agent,
		BatchSize:      cfg.Settlement.BatchSize,
		SafetyMargin:   cfg.Settlement.SafetyMargin,
		EstimateFactor: cfg.Settlement.EstimateFactor,
	}
	sweepSvc := &service.SettlementSweepService{
		Repo:   store,
		Driver: driver,
		Config: cfg.Settlement,
		Logger: logger,
		Flags:  settingsSvc,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	settlementHandler := &handler.SettlementHandler{
		Repo:    store,
		Driver:  driver,
		Tracker: tracker,
		Reader:  reader,
		Logger:  logger,
	}
	settlementHandler.Register(engine)
	wsHandler := &handler.SettlementWSHandler{Tracker: tracker, Logger: logger}
	wsHandler.Register(engine)
	settingsHandler := &handler.SystemSettingsHandler{Settings: settingsSvc}
	settingsHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.SettlementSweep, func(ctx context.Context) {
			if err := sweepSvc.RunOnceIfEnabled(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("cron settlement sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register settlement sweep failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
}
