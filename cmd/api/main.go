package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/trainer-api/pkg/jobqueue"
	"github.com/jwalitptl/trainer-api/pkg/logger"
	"github.com/jwalitptl/trainer-api/pkg/metrics"

	"github.com/jwalitptl/trainer-api/internal/config"
	reminderHandler "github.com/jwalitptl/trainer-api/internal/handler/reminder"
	subscriptionHandler "github.com/jwalitptl/trainer-api/internal/handler/subscription"
	"github.com/jwalitptl/trainer-api/internal/repository/postgres"
	"github.com/jwalitptl/trainer-api/internal/router"
	"github.com/jwalitptl/trainer-api/internal/service/scheduler"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logg := logger.NewLogger(nil)
	m := metrics.New("trainer_api")

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

	baseRepo := postgres.NewBaseRepository(db)
	reminderRepo := postgres.NewReminderRepository(baseRepo)
	subscriptionRepo := postgres.NewSubscriptionRepository(baseRepo)

	schedulerSvc := scheduler.NewService(reminderRepo, subscriptionRepo, queue, logg, m)

	r := router.NewRouter(logg,
		reminderHandler.NewHandler(schedulerSvc),
		subscriptionHandler.NewHandler(subscriptionRepo, cfg.Push.VAPIDPublicKey),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		logg.Info("starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal(err, "server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logg.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logg.Error(err, "graceful shutdown failed")
	}
}
