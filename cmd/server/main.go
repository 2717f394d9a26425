package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"billoffice/internal/artifact"
	"billoffice/internal/config"
	"billoffice/internal/handler"
	"billoffice/internal/httpserver"
	"billoffice/internal/mailer"
	"billoffice/internal/mqhandler"
	"billoffice/internal/render"
	"billoffice/internal/repository"
	"billoffice/internal/service/auth"
	"billoffice/internal/service/lifecycle"
	"billoffice/internal/util"
	"billoffice/pkg/db"
	"billoffice/pkg/logger"
	"billoffice/pkg/mq"
	"billoffice/pkg/outbox"
	"billoffice/pkg/redisclient"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting billoffice server...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("mq_url", cfg.MQ.URL),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis (artifact store backend)
	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// MQ publisher (outbox dispatcher output)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	documentRepo := repository.NewDocumentRepository(dbConn, outboxRepo, log)
	clientRepo := repository.NewClientRepository(dbConn, log)
	categoryRepo := repository.NewCategoryRepository(dbConn, log)
	userRepo := repository.NewUserRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn, log)

	// Artifact store + renderer + coordinator
	artifactStore := artifact.NewRedisStore(rdb, log)
	renderer := render.NewPDFRenderer()
	coordinator := lifecycle.NewCoordinator(
		documentRepo,
		artifactStore,
		renderer,
		userRepo,
		clientRepo,
		categoryRepo,
		log,
	)

	// Outbox dispatcher
	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	go dispatcher.Start(dispatcherCtx)

	// Mail pipeline: document.created -> SMTP
	sender := mailer.NewSMTPSender(cfg.SMTP)
	mailService := mailer.NewService(clientRepo, artifactStore, sender, log)
	retryCounter := util.NewRetryCounter(rdb, 24*time.Hour)
	mailHandler := mqhandler.NewDocumentCreatedHandler(mailService, retryCounter, publisher, log)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, "document.created.mailer", repository.EventDocumentCreated, log)
	if err != nil {
		log.Fatal("Failed to init MQ consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(mailHandler.HandleDocumentCreated)
	go func() {
		if err := consumer.StartConsuming(); err != nil {
			log.Error("Consumer stopped", zap.Error(err))
		}
	}()

	// HTTP
	authService := auth.NewService(userRepo, cfg.JWT.Secret)
	authHandler := handler.NewAuthHandler(authService)
	documentHandler := handler.NewDocumentHandler(coordinator, documentRepo, log)
	paymentHandler := handler.NewPaymentHandler(paymentRepo, documentRepo)
	router := httpserver.NewRouter(authHandler, documentHandler, paymentHandler, cfg.JWT.Secret, log, dbConn)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("billoffice server is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down billoffice server gracefully...")

	dispatcherCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("billoffice server shutdown complete")
}
