package main

import (
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"settlement-service/internal/app"
	"settlement-service/internal/config"
	"settlement-service/internal/database"
	grpcServer "settlement-service/internal/grpc"
	"settlement-service/internal/handlers"
	"settlement-service/internal/middleware"
	"settlement-service/internal/worker"
)

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	cfg.ConfigureLogging()

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	// Initialize Database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Redis/Asynq Client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisURL})
	defer asynqClient.Close()

	svc, err := app.NewServices(cfg, db, worker.NewDispatcher(asynqClient))
	if err != nil {
		log.Fatalf("Failed to build services: %v", err)
	}

	auth, err := middleware.NewAdminAuth(cfg.AdminJWTSecret)
	if err != nil {
		log.Fatalf("ADMIN_JWT_SECRET: %v", err)
	}

	// Start gRPC server
	go func() {
		srv := grpcServer.NewServer(svc.Settlement, svc.Approvals, svc.Wallets)
		if err := grpcServer.StartGRPCServer(cfg.GRPCPort, auth, srv); err != nil {
			log.Fatalf("gRPC server stopped: %v", err)
		}
	}()

	// Start Cron Schedulers
	gameCron, err := svc.Games.StartScheduler(cfg.SchedulerSpec)
	if err != nil {
		log.Fatalf("Failed to start game scheduler: %v", err)
	}
	defer gameCron.Stop()

	reconcileCron, err := svc.Ledger.StartScheduler(cfg.ReconcileSpec, cfg.Location())
	if err != nil {
		log.Fatalf("Failed to start reconcile scheduler: %v", err)
	}
	defer reconcileCron.Stop()

	r := handlers.NewRouter(&handlers.Handler{
		Games:      svc.Games,
		Bets:       svc.Bets,
		Settlement: svc.Settlement,
		Approvals:  svc.Approvals,
		Wallets:    svc.Wallets,
		Ledger:     svc.Ledger,
	}, auth.RequireAdmin())

	log.Infof("HTTP Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
