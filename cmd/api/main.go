package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/estzone/storefront/internal/config"
	"github.com/estzone/storefront/internal/httpx"
	kafkax "github.com/estzone/storefront/internal/kafka"
	"github.com/estzone/storefront/internal/logging"
	"github.com/estzone/storefront/internal/orders"
	"github.com/estzone/storefront/internal/payments"
	"github.com/estzone/storefront/internal/postgres"
	"github.com/estzone/storefront/internal/reaper"
	"github.com/estzone/storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pCompleted := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentCompleted, 1024)
	pCompleted.Start(ctx)
	pFailed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentFailed, 1024)
	pFailed.Start(ctx)
	pExpired := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicReservationExpired, 256)
	pExpired.Start(ctx)

	// Repos
	repo := &orders.Repo{DB: db, ReservationTTL: cfg.ReservationTTL}
	ledger := &orders.ReservationLedger{DB: db}

	// Payment orchestrator
	orch := &payments.Orchestrator{
		Store:             &payments.Repo{DB: db},
		Events:            &payments.EventStore{DB: db},
		CompletedProducer: pCompleted,
		FailedProducer:    pFailed,
		Redis:             rdb,
		ServiceName:       cfg.ServiceName,
		Log:               logger,
	}

	// Handlers
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Repo:     repo,
		Producer: pCreated,
		Redis:    rdb,
		Service:  cfg.ServiceName,
	}
	oh.Register(router)

	wh := &httpx.WebhooksHandler{
		Adapters: payments.NewRegistry(
			&payments.GenericAdapter{Name: "generic", Secret: cfg.WebhookSecret},
			&payments.MontonioAdapter{Secret: cfg.WebhookSecret},
		),
		Orchestrator: orch,
		Log:          logger,
	}
	wh.Register(router)

	ah := &httpx.AdminHandler{Ledger: ledger, Events: &payments.EventStore{DB: db}}
	ah.Register(router)

	// Reservation reaper
	rp := &reaper.Reaper{
		Ledger:      ledger,
		Interval:    cfg.ReaperInterval,
		Producer:    pExpired,
		ServiceName: cfg.ServiceName,
		Log:         logger,
	}
	go rp.Run(ctx)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// close inboxes -> flush, stop loops, drain
	pCreated.Close()
	pCompleted.Close()
	pFailed.Close()
	pExpired.Close()
	cancel()
	pCreated.WaitClosed()
	pCompleted.WaitClosed()
	pFailed.WaitClosed()
	pExpired.WaitClosed()
}
