package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/RASA-RCS/userauth-service/internal/infra/app"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading AUTH_* variables")
	flag.Parse()

	// Real environment variables win over the file.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to read %s: %v", *envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Printf("auth service stopped: %v", err)
		os.Exit(1)
	}
}
