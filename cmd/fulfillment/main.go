package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-checkout-orders/internal/config"
	"github.com/ariefcatur/go-checkout-orders/internal/fulfillment"
	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	"github.com/ariefcatur/go-checkout-orders/internal/logging"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/postgres"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	name := cfg.ServiceName + "-fulfillment"
	log, err := logging.New(logging.Options{Service: name, Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis: dedup, dan order store kalau ORDER_STORE=redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	var store orders.Store = orders.NewRedisStore(rdb)
	if cfg.OrderStore == "postgres" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db", zap.Error(err))
		}
		defer db.Close()
		store = &orders.PostgresStore{DB: db}
	}

	// Producer untuk OrderStatusChanged
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	repo := orders.NewRepository(store, orders.Calculator{
		TaxRate:      cfg.Checkout.TaxRate,
		FlatShipping: cfg.Checkout.FlatShipping,
		Currency:     cfg.Checkout.Currency,
	}, orders.WithPublisher(prod, name), orders.WithLogger(log.Named("orders")))

	svc := &fulfillment.Service{
		Repo:        repo,
		Redis:       rdb,
		ServiceName: name,
		Log:         log,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.FulfillmentGroup, orders.TopicFulfillmentUpdated, cfg.FulfillmentWorkers, log)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		log.Info("fulfillment consumer started",
			zap.String("group", cfg.FulfillmentGroup),
			zap.String("topic", orders.TopicFulfillmentUpdated),
			zap.Int("workers", cfg.FulfillmentWorkers))
		if err := cons.Start(ctx, svc.HandleFulfillmentUpdated); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer...")
	cancel()
	// tunggu semua worker selesai sebelum producer ditutup
	<-consumerDone
	prod.Close()
	prod.WaitClosed()
}
