package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mailkite/mailkite/internal/config"
	"github.com/mailkite/mailkite/internal/db"
	"github.com/mailkite/mailkite/internal/dispatch"
	"github.com/mailkite/mailkite/internal/logging"
	"github.com/mailkite/mailkite/internal/mailer"
	"github.com/mailkite/mailkite/internal/queue"
	"github.com/mailkite/mailkite/internal/repository"
	"github.com/mailkite/mailkite/internal/sentlog"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log, "worker")

	conn, err := db.Open(cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	q, err := queue.Connect(cfg.Queue.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to queue")
	}
	defer q.Close()

	var delivered sentlog.Log
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		delivered = sentlog.NewRedisLog(rdb, cfg.Redis.TTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("delivery registry enabled")
	} else {
		log.Warn().Msg("delivery registry disabled, retried runs may re-send")
	}

	pipeline := dispatch.New(
		&repository.CampaignRepository{DB: conn, StaleClaimAge: cfg.Dispatch.JobTimeout},
		&repository.TemplateRepository{DB: conn},
		&repository.CustomerRepository{DB: conn},
		mailer.NewSMTPMailer(cfg.SMTP),
		delivered,
		dispatch.Config{
			ChunkSize:        cfg.Dispatch.ChunkSize,
			ProgressInterval: cfg.Dispatch.ProgressInterval,
			Throttle:         cfg.Dispatch.Throttle,
			Timeout:          cfg.Dispatch.JobTimeout,
		},
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("worker running, waiting for dispatch jobs")
	err = q.Consume(ctx, func(ctx context.Context, job queue.DispatchJob) error {
		return pipeline.Run(ctx, job.CampaignID)
	}, cfg.Dispatch.JobRetries)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("consumer stopped")
	}
	log.Info().Msg("worker stopped")
}
