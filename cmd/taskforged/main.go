package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/crackops/taskforge/internal/app"
	"github.com/crackops/taskforge/internal/config"
	"github.com/crackops/taskforge/internal/db"
	"github.com/crackops/taskforge/pkg/debug"
)

func main() {
	debug.Reinitialize()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	resourceDir := os.Getenv("RESOURCE_DIR")
	if resourceDir == "" {
		resourceDir = "data"
	}

	application, err := app.New(cfg, database, resourceDir)
	if err != nil {
		log.Fatalf("failed to build application: %v", err)
	}
	if err := application.Start(); err != nil {
		log.Fatalf("failed to start application: %v", err)
	}

	debug.Info("taskforge scheduling core running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	debug.Info("Shutting down")
	application.Stop()
}
