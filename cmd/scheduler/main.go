package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/mailkite/mailkite/internal/config"
	"github.com/mailkite/mailkite/internal/db"
	"github.com/mailkite/mailkite/internal/logging"
	"github.com/mailkite/mailkite/internal/queue"
	"github.com/mailkite/mailkite/internal/repository"
	"github.com/mailkite/mailkite/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log, "scheduler")

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

	probe := scheduler.NewProbe(&repository.CampaignRepository{DB: conn}, q, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New()
	_, err = c.AddFunc(fmt.Sprintf("@every %s", cfg.Scheduler.Interval), func() {
		probe.Tick(ctx)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid scheduler interval")
	}

	// Probe once on startup so campaigns due during downtime go out
	// without waiting a full interval.
	probe.Tick(ctx)

	log.Info().Str("interval", cfg.Scheduler.Interval.String()).Msg("scheduler started")
	c.Start()
	<-ctx.Done()

	<-c.Stop().Done()
	log.Info().Msg("scheduler stopped")
}
