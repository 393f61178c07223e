package main

import (
	"context"
	"log"

	"chatwave-be/internal/bootstrap"
	"chatwave-be/internal/config"
	"chatwave-be/internal/server"
	"chatwave-be/pkg/database"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)

	// 4. Start Background Services
	log.Println("Background: Starting AutoResponder...")
	if err := container.AutoResponder.Start(context.Background()); err != nil {
		log.Printf("Background AutoResponder Error: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run Server
	log.Fatal(srv.Run())
}
