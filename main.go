package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"chamapool/cmd"
	"chamapool/config"
	"chamapool/database"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	_ = godotenv.Load()

	configureLogging()

	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.Fatal("Migration error: ", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Admin subcommands run one operation and exit
	if len(os.Args) > 1 && (os.Args[1] == "distribute" || os.Args[1] == "retry") {
		if err := handleAdminCommand(ctx); err != nil {
			log.Fatal("Command error: ", err)
		}
		return
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Run the application
	if err := cmd.Run(ctx); err != nil {
		log.Fatal("Application error: ", err)
	}
}

func configureLogging() {
	level, err := log.ParseLevel(config.Get().LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func handleAdminCommand(ctx context.Context) error {
	if len(os.Args) < 4 {
		return fmt.Errorf("usage: chamapool %s <fund-id> <admin-phone> [request-id]", os.Args[1])
	}

	fundID, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid fund id %q: %w", os.Args[2], err)
	}
	adminPhone := os.Args[3]

	switch os.Args[1] {
	case "distribute":
		return cmd.Distribute(ctx, fundID, adminPhone)
	case "retry":
		var requestID *int64
		if len(os.Args) > 4 {
			id, err := strconv.ParseInt(os.Args[4], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid request id %q: %w", os.Args[4], err)
			}
			requestID = &id
		}
		return cmd.Retry(ctx, fundID, adminPhone, requestID)
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: chamapool migrate [up|down|status] [args...]")
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
