package main

import (
	"net/http"

	"github.com/joho/godotenv"

	"github.com/mailkite/mailkite/internal/config"
	"github.com/mailkite/mailkite/internal/db"
	"github.com/mailkite/mailkite/internal/handler"
	"github.com/mailkite/mailkite/internal/logging"
	"github.com/mailkite/mailkite/internal/queue"
	"github.com/mailkite/mailkite/internal/repository"
	"github.com/mailkite/mailkite/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log, "server")

	if cfg.Database.RunMigrations {
		if err := db.Migrate(cfg.Database.URL); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
	}

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

	campaignRepo := &repository.CampaignRepository{DB: conn}
	customerRepo := &repository.CustomerRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	groupRepo := &repository.GroupRepository{DB: conn}

	campaignService := service.NewCampaignService(campaignRepo, templateRepo, q, log)
	templateService := &service.TemplateService{Templates: templateRepo, Customers: customerRepo}
	customerService := &service.CustomerService{Customers: customerRepo, Log: log}

	router := handler.NewRouter(
		&handler.CampaignHandler{Service: campaignService},
		&handler.TemplateHandler{Repo: templateRepo, Service: templateService},
		&handler.GroupHandler{Repo: groupRepo},
		&handler.CustomerHandler{Repo: customerRepo, Service: customerService},
	)

	log.Info().Str("address", cfg.Server.Address).Msg("server listening")
	if err := http.ListenAndServe(cfg.Server.Address, router); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
