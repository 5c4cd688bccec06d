package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/suspectuso/boost-tracker/internal/config"
	"github.com/suspectuso/boost-tracker/internal/live"
	"github.com/suspectuso/boost-tracker/internal/storage"
	"github.com/suspectuso/boost-tracker/internal/webhook"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	cfg := config.Load()

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Relaying to nostr is optional
	var relay webhook.Relay
	if cfg.NostrSecret != "" {
		publisher, err := live.NewPublisher(cfg.NostrSecret, cfg.Relays, log.With("component", "publisher"))
		if err != nil {
			log.Error("init nostr publisher", "error", err)
			os.Exit(1)
		}
		log.Info("nostr publisher initialized", "pubkey", publisher.PublicKey(), "relays", len(cfg.Relays))

		manager := webhook.NewManager(store, publisher, log.With("component", "manager"))
		go manager.SyncLoop(ctx, 30*time.Second)
		relay = manager
	}

	if cfg.HelipadToken == "" {
		log.Warn("HELIPAD_TOKEN not set, webhook will reject every request")
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	server := webhook.NewServer(store, relay, cfg.HelipadToken, log.With("component", "api"))
	if err := server.Start(ctx, cfg.APIPort); err != nil && err != http.ErrServerClosed {
		log.Error("api server", "error", err)
		os.Exit(1)
	}
}
