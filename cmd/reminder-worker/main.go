package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-ticket-payments/internal/adapters/postgres"
	"github.com/robertarktes/event-ticket-payments/internal/adapters/rabbit"
	"github.com/robertarktes/event-ticket-payments/internal/config"
	"github.com/robertarktes/event-ticket-payments/internal/domain"
	"github.com/robertarktes/event-ticket-payments/internal/notify"
	"github.com/robertarktes/event-ticket-payments/internal/observability"
)

const batchSize = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	worker := NewReminderWorker(repo, rabbitPub, logger, cfg.ReminderAge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.ReminderInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown reminder worker")
}

// ReminderWorker nudges buyers who started checkout but never paid. The
// reminder is read-only with respect to the order's financial state; the
// only write is the one-way reminder_sent flag, flipped before the message
// goes out so a crash can at worst drop a reminder, never double-send it.
type ReminderWorker struct {
	repo      *postgres.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
	age       time.Duration
}

func NewReminderWorker(repo *postgres.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger, age time.Duration) *ReminderWorker {
	return &ReminderWorker{repo: repo, rabbitPub: rabbitPub, logger: logger, age: age}
}

func (w *ReminderWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.sweep(ctx, now)
		}
	}
}

func (w *ReminderWorker) sweep(ctx context.Context, now time.Time) {
	orders, err := w.repo.ListUnremindedPending(ctx, now.Add(-w.age), batchSize)
	if err != nil {
		w.logger.WithError(err).Error("failed to list stale pending orders")
		return
	}
	for _, order := range orders {
		if err := w.remind(ctx, order); err != nil {
			w.logger.WithError(err).WithField("order_id", order.ID.String()).Error("failed to send reminder")
		}
	}
}

func (w *ReminderWorker) remind(ctx context.Context, order domain.Order) error {
	won, err := w.repo.MarkReminderSent(ctx, order.ID)
	if err != nil {
		return err
	}
	if !won {
		// Another worker instance already claimed this order.
		return nil
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"order_id":    order.ID,
		"buyer_email": order.BuyerEmail,
		"buyer_name":  order.BuyerName,
		"event_id":    order.EventID,
	})
	msg := amqp.Publishing{
		MessageId:   order.ID.String(),
		ContentType: "application/json",
		Body:        payload,
	}
	return w.rabbitPub.Publish(ctx, notify.EventOrderReminder, msg)
}
