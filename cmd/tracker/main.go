package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/suspectuso/boost-tracker/internal/config"
	"github.com/suspectuso/boost-tracker/internal/notifier"
	"github.com/suspectuso/boost-tracker/internal/payment"
	"github.com/suspectuso/boost-tracker/internal/telegram"
	"github.com/suspectuso/boost-tracker/internal/tracker"
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

	if cfg.BoostPubkey == "" && cfg.ZapActivity == "" {
		log.Error("NOSTR_BOOST_PUBKEY or NOSTR_ZAP_EVENT is required")
		os.Exit(1)
	}

	t, err := tracker.Build(cfg, log)
	if err != nil {
		log.Error("init tracker", "error", err)
		os.Exit(1)
	}
	defer t.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telegram alerts are optional; without a bot payments are only logged
	var bot *telegram.Bot
	listeners := []tracker.Listener{logPayment(log)}

	if cfg.BotToken != "" {
		var notify *notifier.Notifier
		var board *notifier.Board

		bot, err = telegram.New(cfg.BotToken, func() string {
			return notify.Status() + "\n\n" + board.Digest()
		}, log.With("component", "telegram"))
		if err != nil {
			log.Error("init telegram bot", "error", err)
			os.Exit(1)
		}
		log.Info("telegram bot initialized")

		notify = notifier.New(bot, cfg.AlertChatID, log.With("component", "notifier"))
		board = notifier.NewBoard(bot, cfg.AlertChatID, cfg.BoardTop, log.With("component", "board"))
		listeners = append(listeners, board.Listen)

		if cfg.AlertChatID != 0 {
			listeners = append(listeners, notify.Listen)
			go notify.Run(ctx)
			if cfg.BoardInterval > 0 {
				go board.Start(ctx, cfg.BoardInterval)
			}
		} else {
			log.Warn("ALERT_CHAT_ID not set, send /start to the bot to find it")
		}
	}

	t.SetListener(fanOut(listeners))

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	if err := t.Start(ctx); err != nil {
		log.Error("start tracker", "error", err)
		os.Exit(1)
	}
	log.Info("tracker started", "boost_pubkey", cfg.BoostPubkey, "zap_event", cfg.ZapActivity)

	if bot != nil {
		log.Info("starting bot polling...")
		bot.Start(ctx)
		return
	}

	<-ctx.Done()
}

// fanOut delivers each payment to every listener in order
func fanOut(listeners []tracker.Listener) tracker.Listener {
	return func(p payment.Payment, isOld bool) {
		for _, fn := range listeners {
			fn(p, isOld)
		}
	}
}

func logPayment(log *slog.Logger) tracker.Listener {
	return func(p payment.Payment, isOld bool) {
		log.Info("payment",
			"type", p.Type,
			"identifier", p.Identifier,
			"sender", p.SenderName,
			"sats", p.Sats,
			"podcast", p.Podcast,
			"old", isOld,
		)
	}
}
