package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-ticket-payments/internal/adapters/postgres"
	"github.com/robertarktes/event-ticket-payments/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/event-ticket-payments/internal/adapters/redis"
	"github.com/robertarktes/event-ticket-payments/internal/checkout"
	"github.com/robertarktes/event-ticket-payments/internal/config"
	httphandler "github.com/robertarktes/event-ticket-payments/internal/http"
	"github.com/robertarktes/event-ticket-payments/internal/idempotency"
	"github.com/robertarktes/event-ticket-payments/internal/notify"
	"github.com/robertarktes/event-ticket-payments/internal/observability"
	"github.com/robertarktes/event-ticket-payments/internal/paystack"
	"github.com/robertarktes/event-ticket-payments/internal/payout"
	"github.com/robertarktes/event-ticket-payments/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := ratelimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	dispatcher := notify.NewDispatcher(rabbitPub, logger)

	gateway := paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecret, nil, observability.Logrus())
	verifier := paystack.NewVerifier(cfg.PaystackSecret)

	checkoutSvc := checkout.NewService(repo, gateway, cfg.CheckoutCallback, logger)
	payoutSvc := payout.NewService(repo, gateway, dispatcher, logger)

	handlers := httphandler.NewHandlers(checkoutSvc, payoutSvc, verifier, idemp, redisCache, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
