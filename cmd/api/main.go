package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/checkout"
	"github.com/ariefcatur/go-checkout-orders/internal/config"
	"github.com/ariefcatur/go-checkout-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	"github.com/ariefcatur/go-checkout-orders/internal/logging"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/ariefcatur/go-checkout-orders/internal/postgres"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(logging.Options{Service: cfg.ServiceName, Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Order store
	var store orders.Store
	switch cfg.OrderStore {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		store = &orders.PostgresStore{DB: db}
	default:
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		store = orders.NewRedisStore(rdb)
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	calc := orders.Calculator{
		TaxRate:      cfg.Checkout.TaxRate,
		FlatShipping: cfg.Checkout.FlatShipping,
		Currency:     cfg.Checkout.Currency,
	}
	repo := orders.NewRepository(store, calc,
		orders.WithPublisher(prod, cfg.ServiceName),
		orders.WithLogger(log.Named("orders")),
	)

	// Payment gateway
	var mode payment.Mode = payment.Direct{}
	if cfg.Payment.Mode == "hosted" {
		mode = payment.Hosted{Config: payment.HostedConfig{
			MerchantDisplayName: cfg.Payment.MerchantDisplayName,
			ReturnURL:           cfg.Payment.ReturnURL,
		}}
	}
	var gw payment.Gateway
	if cfg.Payment.GatewayURL == "" {
		log.Warn("PAYMENT_GATEWAY_URL not set, using sandbox gateway")
		// tidak ada sheet sungguhan di lokal: intent langsung dianggap sukses
		gw = payment.NewSandbox(payment.WithAutoConfirm())
	} else {
		gw = payment.NewHTTPClient(payment.HTTPConfig{
			BaseURL:  cfg.Payment.GatewayURL,
			APIKey:   cfg.Payment.GatewayKey,
			Currency: cfg.Checkout.Currency,
			Timeout:  cfg.Payment.Timeout,
		}, log.Named("payment"))
	}

	svc := checkout.NewService(gw, mode, repo, log.Named("checkout"))
	sessions := checkout.NewRegistry(svc.SessionConfig(calc, checkout.NewCountries(cfg.Checkout.SupportedCountries...)))

	router := httpx.NewRouter()
	(&httpx.CheckoutHandler{Sessions: sessions, Service: svc, Pricing: calc}).Register(router)
	(&httpx.OrdersHandler{Repo: repo}).Register(router)

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr),
			zap.String("order_store", cfg.OrderStore), zap.String("payment_mode", cfg.Payment.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // tutup inbox -> flush & close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
