package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/errgroup"

	"github.com/suspectuso/boost-tracker/internal/bolt11"
	"github.com/suspectuso/boost-tracker/internal/payment"
)

const (
	DefaultRetryBase   = time.Second
	DefaultMaxAttempts = 8

	handlerConcurrency = 32
)

// ErrMalformedZap marks a zap receipt missing its description or bolt11 tag
var ErrMalformedZap = errors.New("malformed zap receipt")

// Handler receives normalized payments from a subscription
type Handler func(p payment.Payment, isOld bool)

// Options tunes reconnection and backlog detection. Zero values use defaults.
type Options struct {
	RetryBase   time.Duration
	MaxAttempts int
	BacklogGap  time.Duration
}

// Subscriber keeps boost and zap subscriptions open on a relay pool
type Subscriber struct {
	pool     Pool
	profiles *ProfileResolver
	remote   payment.RemoteResolver
	log      *slog.Logger

	retryBase   time.Duration
	maxAttempts int
	gap         time.Duration
	now         func() time.Time

	destroyed atomic.Bool

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewSubscriber creates a subscriber. profiles is used for zap senders and
// remote for boost enrichment; either may be nil.
func NewSubscriber(pool Pool, profiles *ProfileResolver, remote payment.RemoteResolver, opts Options, log *slog.Logger) *Subscriber {
	if opts.RetryBase <= 0 {
		opts.RetryBase = DefaultRetryBase
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BacklogGap <= 0 {
		opts.BacklogGap = BacklogGap
	}

	return &Subscriber{
		pool:        pool,
		profiles:    profiles,
		remote:      remote,
		log:         log,
		retryBase:   opts.RetryBase,
		maxAttempts: opts.MaxAttempts,
		gap:         opts.BacklogGap,
		now:         time.Now,
	}
}

// SubscribeBoosts follows kind 30078 boost records published by sourceKey
func (s *Subscriber) SubscribeBoosts(ctx context.Context, sourceKey string, h Handler) error {
	pubkey, err := ParsePubkey(sourceKey)
	if err != nil {
		return fmt.Errorf("boost source: %w", err)
	}

	filters := nostr.Filters{{
		Authors: []string{pubkey},
		Kinds:   []int{nostr.KindApplicationSpecificData},
	}}

	return s.start(ctx, "boosts", filters, func(ctx context.Context, ev *nostr.Event, isOld bool) {
		s.handleBoost(ctx, ev, isOld, h)
	})
}

// SubscribeZaps follows zap receipts referencing the activity at sourceAddress
func (s *Subscriber) SubscribeZaps(ctx context.Context, sourceAddress string, h Handler) error {
	activity, err := ParseActivity(sourceAddress)
	if err != nil {
		return fmt.Errorf("zap source: %w", err)
	}

	filters := nostr.Filters{{
		Kinds: []int{nostr.KindZap},
		Tags:  nostr.TagMap{"a": []string{activity}},
	}}

	return s.start(ctx, "zaps", filters, func(ctx context.Context, ev *nostr.Event, isOld bool) {
		s.handleZap(ctx, ev, isOld, h)
	})
}

// Close stops every subscription. Callbacks already running become no-ops.
func (s *Subscriber) Close() error {
	if s.destroyed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

func (s *Subscriber) start(ctx context.Context, name string, filters nostr.Filters, handle eventFunc) error {
	if s.destroyed.Load() {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	go s.run(ctx, name, filters, handle)
	return nil
}

type eventFunc func(ctx context.Context, ev *nostr.Event, isOld bool)

// run keeps one subscription alive, reconnecting with exponential backoff
// until it gives up after maxAttempts consecutive empty connections.
func (s *Subscriber) run(ctx context.Context, name string, filters nostr.Filters, handle eventFunc) {
	log := s.log.With("subscription", name)
	attempt := 0

	for {
		if s.destroyed.Load() || ctx.Err() != nil {
			return
		}

		received := s.consume(ctx, filters, handle)

		if s.destroyed.Load() || ctx.Err() != nil {
			return
		}

		if received > 0 {
			attempt = 0
		}

		if attempt >= s.maxAttempts {
			log.Error("subscription abandoned", "attempts", attempt)
			return
		}

		delay := s.retryBase << uint(attempt)
		attempt++

		log.Warn("subscription closed, reconnecting", "attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// consume reads one connection until it closes and returns the number of
// records received. Records are classified on arrival and handled
// concurrently.
func (s *Subscriber) consume(ctx context.Context, filters nostr.Filters, handle eventFunc) int {
	events := s.pool.Subscribe(ctx, filters)
	clock := newBacklog(s.now(), s.gap)

	var g errgroup.Group
	g.SetLimit(handlerConcurrency)

	received := 0
	for ev := range events {
		if s.destroyed.Load() {
			continue
		}
		received++

		isOld := clock.observe(s.now())
		ev := ev
		g.Go(func() error {
			handle(ctx, ev, isOld)
			return nil
		})
	}

	g.Wait()
	return received
}

func (s *Subscriber) handleBoost(ctx context.Context, ev *nostr.Event, isOld bool, h Handler) {
	if s.destroyed.Load() {
		return
	}

	inv, err := payment.DecodeInvoice(ev.Content)
	if err != nil {
		return
	}

	p, ok := inv.Boost()
	if !ok {
		return
	}
	p.IsOld = isOld
	p = payment.Enrich(ctx, s.remote, p)

	if s.destroyed.Load() {
		return
	}
	h(p, isOld)
}

func (s *Subscriber) handleZap(ctx context.Context, ev *nostr.Event, isOld bool, h Handler) {
	if s.destroyed.Load() {
		return
	}

	p, err := s.zapPayment(ctx, ev)
	if err != nil {
		if !s.destroyed.Load() {
			s.log.Warn("skipping zap", "event_id", ev.ID, "error", err)
		}
		return
	}
	p.IsOld = isOld

	if s.destroyed.Load() {
		return
	}
	h(p, isOld)
}

type zapRequest struct {
	PubKey string `json:"pubkey"`
}

func (s *Subscriber) zapPayment(ctx context.Context, ev *nostr.Event) (payment.Payment, error) {
	description, ok := firstTag(ev.Tags, "description")
	if !ok {
		return payment.Payment{}, fmt.Errorf("%w: no description tag", ErrMalformedZap)
	}

	invoice, ok := firstTag(ev.Tags, "bolt11")
	if !ok {
		return payment.Payment{}, fmt.Errorf("%w: no bolt11 tag", ErrMalformedZap)
	}

	var req zapRequest
	if err := json.Unmarshal([]byte(description), &req); err != nil {
		return payment.Payment{}, fmt.Errorf("%w: description: %v", ErrMalformedZap, err)
	}

	// an undecodable amount leaves sats at 0 and the tracker drops it
	sats, _ := bolt11.AmountSats(invoice)

	var profile Profile
	if req.PubKey != "" && s.profiles != nil {
		var err error
		profile, err = s.profiles.Get(ctx, req.PubKey)
		if err != nil {
			return payment.Payment{}, fmt.Errorf("sender profile: %w", err)
		}
	}

	sender := profile.DisplayedName()
	if sender == "" {
		sender = "Anonymous"
	}

	return payment.Payment{
		Type:         payment.TypeZap,
		Action:       "zap",
		Identifier:   ev.ID,
		CreationDate: int64(ev.CreatedAt),
		SenderName:   sender,
		Picture:      profile.Picture,
		AppName:      "Nostr",
		Podcast:      "Nostr",
		Sats:         sats,
		Message:      ev.Content,
	}, nil
}

func firstTag(tags nostr.Tags, name string) (string, bool) {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}
	return "", false
}
