package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := SetupApp()
	if err != nil {
		log.Fatalf("failed to set up relay: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		app.Logger.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
}
