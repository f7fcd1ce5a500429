package main

import (
	"context"
	"log"

	"github.com/datacharted/go-provisioning-backend/config"
	"github.com/datacharted/go-provisioning-backend/internal/auth"
	"github.com/datacharted/go-provisioning-backend/internal/bootstrap"
	"github.com/datacharted/go-provisioning-backend/internal/gcp"
	"github.com/datacharted/go-provisioning-backend/internal/notify"
	cronjob "github.com/datacharted/go-provisioning-backend/internal/provisioning/cron"
	"github.com/datacharted/go-provisioning-backend/internal/provisioning/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	bootstrap.SetGinMode(cfg.App.Environment)

	ctx := context.Background()

	pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{DSN: bootstrap.DSN(&cfg.Database)})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer pool.Close()

	rdb, err := bootstrap.OpenRedis(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("open redis: %v", err)
	}
	defer rdb.Close()

	cloud, err := gcp.NewClient(ctx, cfg.GCP)
	if err != nil {
		log.Fatalf("init gcp client: %v", err)
	}

	authClient, err := auth.InitializeFirebase(&cfg.Firebase)
	if err != nil {
		if cfg.App.Environment == "production" {
			log.Fatalf("init firebase: %v", err)
		}
		log.Printf("Warning: firebase disabled, using header auth: %v", err)
		authClient = nil
	}

	notifier := notify.NewClient(cfg.Notify.BaseURL, cfg.Notify.APIKey)

	scheduler := cronjob.NewScheduler(repository.NewRepo(pool))
	scheduler.Start()

	r := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:      "go-provisioning-backend",
		Version:          cfg.App.Version,
		DB:               pool,
		Redis:            rdb,
		AuthClient:       authClient,
		Cloud:            cloud,
		Notifier:         notifier,
		BillingAccountID: cfg.GCP.BillingAccountID,
		DatasetLocation:  cfg.GCP.DatasetLocation,
	})

	log.Printf("listening on :%s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
