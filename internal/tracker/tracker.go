package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/suspectuso/boost-tracker/internal/boostapi"
	"github.com/suspectuso/boost-tracker/internal/live"
	"github.com/suspectuso/boost-tracker/internal/payment"
)

var (
	ErrNoListener     = errors.New("tracker has no listener")
	ErrDestroyed      = errors.New("tracker destroyed")
	ErrAlreadyStarted = errors.New("tracker already started")
)

// Listener receives every payment that passes the filters, exactly once
type Listener func(p payment.Payment, isOld bool)

// HistoryLoader replays stored boosts and returns the newest creation date
type HistoryLoader interface {
	Load(ctx context.Context, f boostapi.Filters, fn func(payment.Payment)) int64
}

// LiveSource opens the boost and zap subscriptions
type LiveSource interface {
	SubscribeBoosts(ctx context.Context, sourceKey string, h live.Handler) error
	SubscribeZaps(ctx context.Context, sourceAddress string, h live.Handler) error
	Close() error
}

// Options configures a Tracker. Use DefaultOptions as a starting point.
type Options struct {
	// BoostPubkey is the hex or npub key publishing boost records
	BoostPubkey string
	// ZapActivity is the kind:pubkey:d address or naddr being zapped
	ZapActivity string

	// LoadBoosts enables the historical replay and backlog boosts;
	// LoadZaps enables backlog zaps. Live records are never gated.
	LoadBoosts bool
	LoadZaps   bool

	DedupCapacity int

	History HistoryLoader
	Live    LiveSource
	// Closers are released on Destroy after Live
	Closers []io.Closer
}

func DefaultOptions() Options {
	return Options{
		LoadBoosts:    true,
		LoadZaps:      true,
		DedupCapacity: DefaultDedupCapacity,
	}
}

// Tracker merges historical and live payments into one filtered,
// deduplicated stream for a single listener.
type Tracker struct {
	log  *slog.Logger
	opts Options

	destroyed atomic.Bool

	// mu serializes Add, so each evaluation sees and updates filters and
	// the seen set atomically. The listener runs under mu.
	mu        sync.Mutex
	filters   Filters
	watermark int64
	seen      *seenSet
	listener  Listener
	started   bool
	cancel    context.CancelFunc
}

func New(opts Options, log *slog.Logger) *Tracker {
	return &Tracker{
		log:  log,
		opts: opts,
		seen: newSeenSet(opts.DedupCapacity),
	}
}

// SetFilter sets a named filter. Setting "after" also moves the watermark
// below which live boosts are ignored.
func (t *Tracker) SetFilter(name string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.filters.set(name, value); err != nil {
		return err
	}
	if name == FilterAfter {
		t.watermark = t.filters.After
	}
	return nil
}

// Filters returns a copy of the current filters
func (t *Tracker) Filters() Filters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filters.clone()
}

// Watermark is the creation date below which live boosts are skipped
func (t *Tracker) Watermark() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watermark
}

func (t *Tracker) SetListener(fn Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = fn
}

// Start replays history, then opens the live subscriptions. It returns once
// the subscriptions are open; they keep running until Destroy or ctx ends.
func (t *Tracker) Start(ctx context.Context) error {
	if t.destroyed.Load() {
		return ErrDestroyed
	}

	t.mu.Lock()
	if t.listener == nil {
		t.mu.Unlock()
		return ErrNoListener
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	filters := t.filters.clone()
	t.mu.Unlock()

	if t.opts.LoadBoosts && t.opts.History != nil {
		last := t.opts.History.Load(ctx, filters.history(), func(p payment.Payment) {
			t.Add(p)
		})

		t.mu.Lock()
		if last > t.watermark {
			t.watermark = last
		}
		t.mu.Unlock()

		t.log.Info("history replayed", "watermark", last)
	}

	if t.destroyed.Load() {
		return ErrDestroyed
	}

	if t.opts.Live == nil {
		return nil
	}

	if t.opts.BoostPubkey != "" {
		if err := t.opts.Live.SubscribeBoosts(ctx, t.opts.BoostPubkey, t.onBoost); err != nil {
			cancel()
			return fmt.Errorf("subscribe boosts: %w", err)
		}
		t.log.Info("boost subscription opened", "pubkey", t.opts.BoostPubkey)
	}

	if t.opts.ZapActivity != "" {
		if err := t.opts.Live.SubscribeZaps(ctx, t.opts.ZapActivity, t.onZap); err != nil {
			// the boost subscription may already be running
			cancel()
			return fmt.Errorf("subscribe zaps: %w", err)
		}
		t.log.Info("zap subscription opened", "activity", t.opts.ZapActivity)
	}

	return nil
}

// Add evaluates one payment and delivers it when every check passes. It
// reports whether the listener was called.
func (t *Tracker) Add(p payment.Payment) bool {
	if t.destroyed.Load() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(p)
}

func (t *Tracker) onBoost(p payment.Payment, isOld bool) {
	if t.destroyed.Load() {
		return
	}
	p.IsOld = isOld

	t.mu.Lock()
	defer t.mu.Unlock()

	// already covered by the historical replay
	if t.watermark > p.CreationDate {
		return
	}
	t.add(p)
}

func (t *Tracker) onZap(p payment.Payment, isOld bool) {
	if t.destroyed.Load() {
		return
	}
	p.IsOld = isOld
	t.Add(p)
}

// add runs the drop checks in order, cheapest first. Caller holds mu.
func (t *Tracker) add(p payment.Payment) bool {
	if t.destroyed.Load() || t.listener == nil {
		return false
	}

	if p.IsOld && !t.categoryEnabled(p.Type) {
		return false
	}
	if p.Sats <= 0 {
		return false
	}
	if t.seen.Contains(p.Identifier) {
		return false
	}
	if t.filters.excluded(p.Podcast) {
		return false
	}
	if !t.filters.inRange(p.CreationDate) {
		return false
	}
	if p.Type == payment.TypeBoost && !t.filters.included(p) {
		return false
	}

	p = p.Sanitized()
	t.listener(p, p.IsOld)
	t.seen.Add(p.Identifier)
	return true
}

func (t *Tracker) categoryEnabled(typ payment.Type) bool {
	switch typ {
	case payment.TypeBoost:
		return t.opts.LoadBoosts
	case payment.TypeZap:
		return t.opts.LoadZaps
	}
	return true
}

// Destroy makes the tracker inert and releases subscriptions and resolvers.
// Calling it again does nothing.
func (t *Tracker) Destroy() {
	if t.destroyed.Swap(true) {
		return
	}

	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if t.opts.Live != nil {
		if err := t.opts.Live.Close(); err != nil {
			t.log.Warn("close live source", "error", err)
		}
	}

	for _, c := range t.opts.Closers {
		if err := c.Close(); err != nil {
			t.log.Warn("close tracker resource", "error", err)
		}
	}

	t.log.Info("tracker destroyed")
}
