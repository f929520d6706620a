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

	"github.com/joho/godotenv"
	"github.com/pawzr/marketplace/internal/auth"
	"github.com/pawzr/marketplace/internal/catalog"
	"github.com/pawzr/marketplace/internal/config"
	"github.com/pawzr/marketplace/internal/httpx"
	kafkax "github.com/pawzr/marketplace/internal/kafka"
	"github.com/pawzr/marketplace/internal/notify"
	"github.com/pawzr/marketplace/internal/orders"
	"github.com/pawzr/marketplace/internal/postgres"
	"github.com/pawzr/marketplace/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fees, err := orders.NewFeeSchedule(cfg.PlatformFeeRate, cfg.PlatformFeeMode)
	if err != nil {
		log.Fatalf("fees: %v", err)
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Println("schema applied")
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	created := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	created.Start()
	changed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024)
	changed.Start()

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	router := httpx.NewRouter(cfg.CORSOrigins)
	httpx.MountAPI(router, tokens,
		&httpx.AuthHandler{Users: &auth.Users{DB: db}, Tokens: tokens},
		&httpx.ProductsHandler{Catalog: &catalog.Repo{DB: db}},
		&httpx.OrdersHandler{
			Orders:        &orders.Repo{DB: db, Fees: fees},
			Idem:          redisx.Idempotency{R: rdb},
			Cache:         redisx.StatusCache{R: rdb},
			Created:       created,
			StatusChanged: changed,
			Service:       cfg.ServiceName,
		},
		&httpx.NotificationsHandler{Store: &notify.Store{DB: db}},
	)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Printf("HTTP listening at %s (fee %s, mode %s)", cfg.HTTPAddr, fees.Rate, fees.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	created.Close()
	changed.Close()
	created.WaitClosed()
	changed.WaitClosed()
}
