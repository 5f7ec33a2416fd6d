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

	"github.com/hmaulana/go-order-engine/internal/config"
	"github.com/hmaulana/go-order-engine/internal/httpx"
	"github.com/hmaulana/go-order-engine/internal/inventory"
	kafkax "github.com/hmaulana/go-order-engine/internal/kafka"
	"github.com/hmaulana/go-order-engine/internal/logx"
	"github.com/hmaulana/go-order-engine/internal/notify"
	"github.com/hmaulana/go-order-engine/internal/orders"
	"github.com/hmaulana/go-order-engine/internal/postgres"
	"github.com/hmaulana/go-order-engine/internal/redisx"
	"github.com/hmaulana/go-order-engine/internal/requests"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start()

	repo := &orders.Repo{DB: db}
	ledger := inventory.NewLedger(db)
	holds := inventory.NewReservationManager(rdb, log)

	engine := orders.NewEngine(repo, ledger, orders.RestorePolicy{
		OnDeny:   cfg.RestoreOnDeny,
		OnReturn: cfg.RestoreOnReturn,
		OnCancel: cfg.RestoreOnCancel,
	}, prod, log, cfg.ServiceName)

	orderSvc := orders.NewService(repo, ledger, holds, prod, log, cfg.ServiceName,
		cfg.ReservationTTL, cfg.DeliveryFeeCents)

	reqSvc := requests.NewService(requests.NewRepo(db), repo, engine, prod, log, cfg.ServiceName)

	router := httpx.NewRouter()
	(&httpx.OrdersHandler{Svc: orderSvc, Engine: engine, Log: repo}).Register(router)
	(&httpx.StockHandler{Ledger: ledger}).Register(router)
	(&httpx.RequestsHandler{Svc: reqSvc}).Register(router)
	(&httpx.NotificationsHandler{Store: notify.NewRepo(db)}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	prod.Close()
	prod.WaitClosed()
}
