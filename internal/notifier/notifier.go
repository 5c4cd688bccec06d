package notifier

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/boost-tracker/internal/payment"
	"github.com/suspectuso/boost-tracker/internal/telegram"
)

const queueSize = 256

// Sender delivers formatted alerts
type Sender interface {
	SendNotification(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) error
}

// Notifier turns fresh payments into chat alerts. Listen is safe to use as a
// tracker listener: it never blocks.
type Notifier struct {
	sender Sender
	chatID int64
	log    *slog.Logger
	queue  chan payment.Payment

	received atomic.Int64
	sent     atomic.Int64
	dropped  atomic.Int64
}

// New creates a new Notifier
func New(sender Sender, chatID int64, log *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		chatID: chatID,
		log:    log,
		queue:  make(chan payment.Payment, queueSize),
	}
}

// Listen queues p for alerting. Backlog payments are not alerted.
func (n *Notifier) Listen(p payment.Payment, isOld bool) {
	n.received.Add(1)
	if isOld {
		return
	}

	select {
	case n.queue <- p:
	default:
		n.dropped.Add(1)
		n.log.Warn("alert queue full, dropping payment", "identifier", p.Identifier)
	}
}

// Run sends queued alerts until ctx is cancelled
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-n.queue:
			n.send(ctx, p)
		}
	}
}

func (n *Notifier) send(ctx context.Context, p payment.Payment) {
	n.log.Info("handling payment",
		"identifier", p.Identifier,
		"type", p.Type,
		"sats", p.Sats,
		"podcast", p.Podcast,
	)

	text := FormatPayment(p)
	if err := n.sender.SendNotification(ctx, n.chatID, text, telegram.PaymentKeyboard(p)); err != nil {
		n.log.Error("send payment notification", "identifier", p.Identifier, "error", err)
		return
	}
	n.sent.Add(1)
}

// Status summarizes the alert counters as HTML
func (n *Notifier) Status() string {
	return fmt.Sprintf(
		"<b>📊 Alerts</b>\n\nPayments received: <b>%d</b>\nAlerts sent: <b>%d</b>\nDropped (queue full): <b>%d</b>",
		n.received.Load(), n.sent.Load(), n.dropped.Load(),
	)
}

// FormatPayment renders an alert. Sender name and message arrive escaped;
// the remaining text fields are escaped here.
func FormatPayment(p payment.Payment) string {
	verb, emoji := "boosted", "🚀"
	if p.Type == payment.TypeZap {
		verb, emoji = "zapped", "⚡"
	}

	lines := []string{
		fmt.Sprintf("%s <b>%s</b> %s <b>%s sats</b>", emoji, p.SenderName, verb, formatSats(p.Sats)),
	}

	target := html.EscapeString(p.Podcast)
	if p.Episode != "" {
		target += " · " + html.EscapeString(p.Episode)
	}
	lines = append(lines, "<i>"+target+"</i>")

	if p.Type == payment.TypeBoost {
		lines = append(lines, "via "+html.EscapeString(p.AppName))
	}

	if !p.Remote.IsZero() {
		remote := html.EscapeString(p.Remote.Feed)
		if p.Remote.Item != "" {
			remote += " · " + html.EscapeString(p.Remote.Item)
		}
		lines = append(lines, "🎵 "+remote)
	}

	if p.Message != "" {
		lines = append(lines, "", "💬 "+p.Message)
	}

	return strings.Join(lines, "\n")
}

// formatSats groups thousands: 1234567 -> 1,234,567
func formatSats(sats int64) string {
	s := fmt.Sprintf("%d", sats)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if neg {
		return "-" + b.String()
	}
	return b.String()
}
