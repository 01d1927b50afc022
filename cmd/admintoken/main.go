// Command admintoken mints an admin bearer token signed with ADMIN_JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"settlement-service/internal/config"
	"settlement-service/internal/middleware"
)

func main() {
	adminID := flag.String("admin", "", "admin id recorded as the actor")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if *adminID == "" {
		log.Fatal("-admin is required")
	}

	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	auth, err := middleware.NewAdminAuth(cfg.AdminJWTSecret)
	if err != nil {
		log.Fatalf("ADMIN_JWT_SECRET: %v", err)
	}
	token, err := auth.IssueToken(*adminID, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
