package main // Entry point package

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/config"
	"github.com/pulselink/emergency-alert-backend/internal/database"
	"github.com/pulselink/emergency-alert-backend/internal/handler"
	"github.com/pulselink/emergency-alert-backend/internal/logger"
	"github.com/pulselink/emergency-alert-backend/internal/notify"
	"github.com/pulselink/emergency-alert-backend/internal/push"
	"github.com/pulselink/emergency-alert-backend/internal/queue"
	"github.com/pulselink/emergency-alert-backend/internal/repository"
	"github.com/pulselink/emergency-alert-backend/internal/router"
	"github.com/pulselink/emergency-alert-backend/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set env vars directly
	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat, "emergency-alert-backend")
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		zl.Fatal("database open failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	rdb := config.NewRedisClient()
	if rdb == nil {
		zl.Warn("redis unavailable, rate limiting disabled")
	}

	// Repositories over the one shared store handle.
	users := repository.NewUserRepo(db)
	contacts := repository.NewContactRepo(db)
	invitations := repository.NewInvitationRepo(db)
	emergencies := repository.NewEmergencyRepo(db)

	// Core services.
	pushClient := push.NewClient(cfg.PushBaseURL, cfg.PushServerKey, cfg.PushSendTimeout, zl)
	dispatcher := notify.NewDispatcher(pushClient, cfg.PushSendTimeout, zl)
	processor := service.NewEmergencyProcessor(users, contacts, emergencies, dispatcher, zl)
	invitationService := service.NewInvitationService(invitations, zl)
	linker := service.NewContactLinker(db, invitations, contacts, zl)
	sweeper := service.NewRetentionSweeper(invitations, emergencies, zl)
	publisher := queue.NewPublisher(cfg.AMQPURL, zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background workers: trigger-queue consumers and retention sweeps.
	consumers := queue.NewConsumers(cfg.AMQPURL, processor, invitationService, emergencies, zl)
	go consumers.Run(ctx)
	go sweeper.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.Register(e, cfg, rdb,
		handler.NewAuthHandler(cfg, users),
		handler.NewEmergencyHandler(users, emergencies, publisher, zl),
		handler.NewLinkHandler(users, invitations, contacts, linker, publisher, zl),
	)

	addr := ":" + cfg.Port
	zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()
	if err := e.Start(addr); err != nil {
		zl.Info("server stopped", zap.Error(err))
	}
}
