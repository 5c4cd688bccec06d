package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// StatusFunc reports what the alert pipeline has done so far, as HTML
type StatusFunc func() string

// Bot wraps the telegram bot used to post payment alerts
type Bot struct {
	bot    *bot.Bot
	status StatusFunc
	log    *slog.Logger
}

// New creates a new telegram bot. status may be nil.
func New(token string, status StatusFunc, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		status: status,
		log:    log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}

	tgBot, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot

	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, b.statusHandler)

	return b, nil
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// --- Handlers ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, startText(update.Message.Chat.ID), nil)
}

func (b *Bot) statusHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	text := "Tracker is not running."
	if b.status != nil {
		text = b.status()
	}
	b.sendMessage(ctx, update.Message.Chat.ID, text, nil)
}

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	b.log.Debug("ignoring message", "chat_id", update.Message.Chat.ID)
}

func startText(chatID int64) string {
	return fmt.Sprintf(
		"⚡ <b>Boost Tracker</b>\n\n"+
			"I post boosts and zaps for your podcast as they arrive.\n\n"+
			"Set <code>ALERT_CHAT_ID=%d</code> to receive alerts in this chat.\n"+
			"Send /status to see what has been delivered.",
		chatID,
	)
}

// --- Helpers ---

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	if err := b.SendNotification(ctx, chatID, text, keyboard); err != nil {
		b.log.Error("send message", "error", err)
	}
}

// SendNotification sends an HTML message to chatID
func (b *Bot) SendNotification(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) error {
	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	return err
}
