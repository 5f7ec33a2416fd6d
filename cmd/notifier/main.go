package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hmaulana/go-order-engine/internal/config"
	kafkax "github.com/hmaulana/go-order-engine/internal/kafka"
	"github.com/hmaulana/go-order-engine/internal/logx"
	"github.com/hmaulana/go-order-engine/internal/notify"
	"github.com/hmaulana/go-order-engine/internal/orders"
	"github.com/hmaulana/go-order-engine/internal/postgres"
	"github.com/hmaulana/go-order-engine/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName + "-notifier")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	group := getenv("NOTIFIER_GROUP", "staff-notifier")
	workers := getint("NOTIFIER_WORKERS", 8)

	svc := notify.NewService(notify.NewRepo(db), rdb, log, group)

	topics := []string{
		orders.TopicOrderSubmitted,
		orders.TopicOrderMoved,
		orders.TopicRequestSubmitted,
		orders.TopicRequestDecided,
		orders.TopicTornMove,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topics, workers, log)

	go func() {
		log.Info("notifier consumer started",
			zap.String("group", group),
			zap.Strings("topics", topics),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
