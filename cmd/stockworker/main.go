package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/estzone/storefront/internal/config"
	"github.com/estzone/storefront/internal/inventory"
	kafkax "github.com/estzone/storefront/internal/kafka"
	"github.com/estzone/storefront/internal/logging"
	"github.com/estzone/storefront/internal/orders"
	"github.com/estzone/storefront/internal/postgres"
	"github.com/estzone/storefront/internal/redisx"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.ServiceName + "-stockworker")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	mon := &inventory.Monitor{
		Repo:        &orders.Repo{DB: db},
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-stockworker",
		Log:         logger,
	}

	group := getenv("STOCKWORKER_GROUP", "stockworker")
	workers := mustAtoi(os.Getenv("STOCKWORKER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicPaymentCompleted, workers)

	go func() {
		log.Printf("stockworker consumer started: group=%s topic=%s workers=%d", group, orders.TopicPaymentCompleted, workers)
		if err := cons.Start(ctx, mon.HandlePaymentCompleted); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
