package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/abuFahad-vp/care-connect-backend/internal/config"
	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/httpapi"
	"github.com/abuFahad-vp/care-connect-backend/internal/ledger"
	"github.com/abuFahad-vp/care-connect-backend/internal/matching"
	"github.com/abuFahad-vp/care-connect-backend/internal/notify"
	"github.com/abuFahad-vp/care-connect-backend/internal/presence"
	"github.com/abuFahad-vp/care-connect-backend/internal/repository"
	"github.com/abuFahad-vp/care-connect-backend/internal/service"
	"github.com/abuFahad-vp/care-connect-backend/internal/storage"
)

func newLogger(cfg *config.Config) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.Set(cfg.Log.Level)

	var zcfg zap.Config
	if cfg.Log.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	hostname, _ := os.Hostname()
	return logger.With(
		zap.String("service", "care-connect-server"),
		zap.String("host", hostname),
	)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdle)
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	if err := repository.EnsureSchema(ctx, db); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	defer db.Close()

	// Redis：token 存储 + 事件审计流
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to ping redis", zap.Error(err))
	}
	defer redisClient.Close()

	// 仓库
	usersRepo := repository.NewUsersRepository(db, logger)
	careRepo := repository.NewCareRecordsRepository(db, logger)
	feedbackRepo := repository.NewFeedbackRepository(db, logger)

	// 附件存储
	files, err := storage.NewFileStore(cfg.Storage.UploadDir, logger)
	if err != nil {
		logger.Fatal("Failed to init file store", zap.Error(err))
	}

	// 通知扇出：在线推送 + Redis 审计流（+ 可选 MQTT 桥）
	registry := presence.NewRegistry(logger)
	sinks := []notify.Sink{notify.NewStreamAudit(redisClient, cfg.Events.Stream, logger)}
	if cfg.MQTT.Enabled {
		bridge, err := notify.NewMQTTBridge(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT bridge unavailable, continuing without it", zap.Error(err))
		} else {
			defer bridge.Close()
			sinks = append(sinks, bridge)
			logger.Info("MQTT bridge connected", zap.String("broker", cfg.MQTT.Broker))
		}
	}
	fanout := notify.NewFanout(registry, usersRepo, logger, sinks...)

	// 台账 + 匹配引擎 + 清扫器
	serviceLedger := ledger.NewLedger(logger)
	engine := matching.NewEngine(serviceLedger, careRepo, usersRepo, registry, fanout,
		cfg.Matching.OfferTimeout, cfg.Matching.RetryBackoff, logger)

	sweeper := ledger.NewSweeper(serviceLedger, cfg.Matching.SweepInterval, func(req domain.ServiceRequest) {
		if req.Status == domain.ServicePending {
			// 从未被接受就过期：通知 elder 与被通知过的志愿者
			fanout.Expired(req)
		}
		_ = careRepo.ClearActiveService(context.Background(), req.ElderEmail, req.ID)
		if err := files.DeleteAll(req.ID); err != nil {
			logger.Warn("Failed to clean attachments",
				zap.String("service_id", req.ID), zap.Error(err))
		}
	}, logger)
	go sweeper.Run(ctx)

	// 认证与 HTTP 层
	authSvc := service.NewAuthService(usersRepo, careRepo, redisClient, cfg.Auth.TokenTTL, logger)
	auth := httpapi.NewAuth(authSvc, logger)

	router := httpapi.NewRouter(logger)
	router.RegisterAuthRoutes(httpapi.NewAuthHandler(authSvc, logger), auth)
	router.RegisterWSRoutes(httpapi.NewWSHandler(registry, engine, auth, logger))
	router.RegisterElderRoutes(httpapi.NewElderHandler(
		engine, careRepo, usersRepo, files, auth, cfg.Storage.MaxUploadSize, logger))
	router.RegisterVolunteerRoutes(httpapi.NewVolunteerHandler(
		careRepo, usersRepo, serviceLedger, files, fanout, auth, cfg.Matching.CheckInGap, logger))
	router.RegisterUserRoutes(httpapi.NewUserHandler(
		engine, careRepo, usersRepo, feedbackRepo, fanout, auth, logger))
	router.RegisterAdminRoutes(httpapi.NewAdminHandler(
		usersRepo, careRepo, feedbackRepo, fanout, auth, logger))

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 长轮询接口自己控制超时
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", cfg.HTTP.Addr))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("Server stopped", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
