package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pawzr/marketplace/internal/auth"
	"github.com/pawzr/marketplace/internal/config"
	kafkax "github.com/pawzr/marketplace/internal/kafka"
	"github.com/pawzr/marketplace/internal/mailer"
	"github.com/pawzr/marketplace/internal/notifier"
	"github.com/pawzr/marketplace/internal/orders"
	"github.com/pawzr/marketplace/internal/postgres"
	"github.com/pawzr/marketplace/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{
		Redis: rdb,
		Users: &auth.Users{DB: db},
		Mail: mailer.NewSMTP(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}),
		BaseURL:     cfg.AppBaseURL,
		ServiceName: cfg.NotifierGroup,
	}

	topics := []string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged}
	dlq := kafkax.NewDeadLetterWriter(cfg.KafkaBrokers, cfg.NotifierDLQ)
	defer dlq.Close()
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, topics, cfg.NotifierWorkers).
		WithDeadLetter(dlq, cfg.NotifierRetries)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("notifier started: group=%s topics=%v workers=%d", cfg.NotifierGroup, topics, cfg.NotifierWorkers)
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down consumer...")
	cancel()
	<-done
}
