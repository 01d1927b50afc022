package main

import (
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"settlement-service/internal/app"
	"settlement-service/internal/config"
	"settlement-service/internal/database"
	"settlement-service/internal/worker"
)

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	cfg.ConfigureLogging()

	// Connect DB
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Redis
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisURL}
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	dispatcher := worker.NewDispatcher(client)
	svc, err := app.NewServices(cfg, db, dispatcher)
	if err != nil {
		log.Fatalf("Failed to build services: %v", err)
	}

	log.Info("Starting Asynq Worker...")
	if err := worker.StartWorker(redisOpt, worker.NewWorker(svc.Ledger, svc.Settlement, dispatcher)); err != nil {
		log.Fatalf("Worker stopped: %v", err)
	}
}
