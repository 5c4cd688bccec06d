package webhook

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/suspectuso/boost-tracker/internal/payment"
)

const syncBatch = 50

// Publisher signs and sends a boost to relays
type Publisher interface {
	Publish(ctx context.Context, inv payment.Invoice) error
}

// PublishStore tracks which boosts reached nostr
type PublishStore interface {
	ListUnpublished(limit int) ([]payment.Invoice, error)
	MarkPublished(identifier string) error
}

// Manager relays stored boosts to nostr and retries the ones that failed
type Manager struct {
	store     PublishStore
	publisher Publisher
	log       *slog.Logger

	// one publish at a time per identifier
	mu       sync.Mutex
	inflight map[string]bool
}

// NewManager creates a new relay manager
func NewManager(store PublishStore, publisher Publisher, log *slog.Logger) *Manager {
	return &Manager{
		store:     store,
		publisher: publisher,
		log:       log,
		inflight:  make(map[string]bool),
	}
}

// Publish sends inv and records success
func (m *Manager) Publish(ctx context.Context, inv payment.Invoice) error {
	if !m.claim(inv.Identifier) {
		return nil
	}
	defer m.release(inv.Identifier)

	if err := m.publisher.Publish(ctx, inv); err != nil {
		return err
	}

	if err := m.store.MarkPublished(inv.Identifier); err != nil {
		return err
	}

	m.log.Info("boost relayed", "identifier", inv.Identifier)
	return nil
}

// SyncLoop periodically republishes boosts that never reached a relay
func (m *Manager) SyncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("relay sync loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sync(ctx); err != nil {
				m.log.Error("sync unpublished boosts", "error", err)
			}
		}
	}
}

func (m *Manager) sync(ctx context.Context) error {
	pending, err := m.store.ListUnpublished(syncBatch)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		return nil
	}

	published := 0
	for _, inv := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := m.Publish(ctx, inv); err != nil {
			m.log.Warn("republish boost", "identifier", inv.Identifier, "error", err)
			continue
		}
		published++
	}

	m.log.Info("unpublished boosts synced", "pending", len(pending), "published", published)
	return nil
}

func (m *Manager) claim(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[id] {
		return false
	}
	m.inflight[id] = true
	return true
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, id)
}
