package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/suspectuso/boost-tracker/internal/payment"
)

// Board keeps running totals and a sender leaderboard over every delivered
// payment, backlog included, and periodically posts a digest.
type Board struct {
	sender Sender
	chatID int64
	top    int
	log    *slog.Logger

	mu       sync.Mutex
	total    int64
	count    int
	bySender map[string]int64
	latest   *payment.Payment
	reported int64
}

// NewBoard creates a board listing the top senders
func NewBoard(sender Sender, chatID int64, top int, log *slog.Logger) *Board {
	if top <= 0 {
		top = 10
	}
	return &Board{
		sender:   sender,
		chatID:   chatID,
		top:      top,
		log:      log,
		bySender: make(map[string]int64),
	}
}

// Listen adds p to the totals
func (b *Board) Listen(p payment.Payment, isOld bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += p.Sats
	b.count++
	b.bySender[p.SenderName] += p.Sats

	if p.Action != "boost" && p.Action != "zap" {
		return
	}
	if b.latest != nil && b.latest.CreationDate > p.CreationDate {
		return
	}
	latest := p
	b.latest = &latest
}

// Total returns the sats and number of payments seen
func (b *Board) Total() (int64, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total, b.count
}

type senderTotal struct {
	name string
	sats int64
}

// Leaders returns the top senders by sats, ties broken by name
func (b *Board) Leaders() []senderTotal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.leaders()
}

func (b *Board) leaders() []senderTotal {
	list := make([]senderTotal, 0, len(b.bySender))
	for name, sats := range b.bySender {
		list = append(list, senderTotal{name: name, sats: sats})
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].sats != list[j].sats {
			return list[i].sats > list[j].sats
		}
		return list[i].name < list[j].name
	})

	if len(list) > b.top {
		list = list[:b.top]
	}
	return list
}

// Digest renders the board as HTML
func (b *Board) Digest() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.digest()
}

func (b *Board) digest() string {
	lines := []string{
		fmt.Sprintf("<b>🏆 %s sats</b> from %d payments", formatSats(b.total), b.count),
		"",
	}

	for i, l := range b.leaders() {
		lines = append(lines, fmt.Sprintf("%d. %s · <b>%s</b>", i+1, l.name, formatSats(l.sats)))
	}

	if b.latest != nil {
		lines = append(lines, "", fmt.Sprintf("Latest: %s, %s sats", b.latest.SenderName, formatSats(b.latest.Sats)))
	}

	return strings.Join(lines, "\n")
}

// Start posts a digest every interval when the totals changed
func (b *Board) Start(ctx context.Context, interval time.Duration) {
	b.log.Info("board digest started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.report(ctx)
		}
	}
}

func (b *Board) report(ctx context.Context) {
	b.mu.Lock()
	if b.total == b.reported {
		b.mu.Unlock()
		return
	}
	text := b.digest()
	total := b.total
	b.mu.Unlock()

	if err := b.sender.SendNotification(ctx, b.chatID, text, nil); err != nil {
		b.log.Error("send board digest", "error", err)
		return
	}

	b.mu.Lock()
	b.reported = total
	b.mu.Unlock()
}
