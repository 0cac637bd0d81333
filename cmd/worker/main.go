package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/trainer-api/pkg/jobqueue"
	"github.com/jwalitptl/trainer-api/pkg/logger"
	messagingredis "github.com/jwalitptl/trainer-api/pkg/messaging/redis"
	"github.com/jwalitptl/trainer-api/pkg/metrics"
	"github.com/jwalitptl/trainer-api/pkg/push"

	"github.com/jwalitptl/trainer-api/internal/config"
	"github.com/jwalitptl/trainer-api/internal/repository/postgres"
	"github.com/jwalitptl/trainer-api/internal/worker"
)

func setupHealthCheck(logg *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			logg.ZL.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logg := logger.NewLogger(nil)
	m := metrics.New("trainer_worker")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		logg.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	queue, err := jobqueue.NewRedisQueue(jobqueue.RedisConfig{
		URL:          cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, logg, m)
	if err != nil {
		logg.Fatal(err, "failed to connect to job queue")
	}
	defer queue.Close()

	broker, err := messagingredis.NewRedisBroker(messagingredis.Config{
		URL:          cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &logg.ZL)
	if err != nil {
		logg.Fatal(err, "failed to create broker")
	}
	defer broker.Close()

	baseRepo := postgres.NewBaseRepository(db)
	reminderRepo := postgres.NewReminderRepository(baseRepo)
	subscriptionRepo := postgres.NewSubscriptionRepository(baseRepo)

	sender := push.NewSender(push.Config{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
		TTL:             cfg.Push.TTL,
		RatePerSecond:   cfg.Push.RatePerSecond,
		RateBurst:       cfg.Push.RateBurst,
	}, logg)

	consumer := worker.NewConsumer(reminderRepo, subscriptionRepo, sender, broker, logg, m)

	poller := jobqueue.NewPoller(queue, consumer.HandleReminderDue, jobqueue.PollerConfig{
		PollInterval: cfg.Worker.PollInterval(),
		BatchSize:    cfg.Worker.BatchSize,
		Workers:      cfg.Worker.Workers,
	}, logg, m)

	setupHealthCheck(logg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logg.Info("shutting down")
		cancel()
	}()

	poller.Start(ctx)
}
