package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nbd-wtf/go-nostr"
)

const (
	DefaultProfileInterval  = time.Second
	DefaultProfileTimeout   = 5 * time.Second
	DefaultProfileCacheSize = 5000
)

var ErrClosed = errors.New("resolver closed")

// Profile is the kind 0 metadata we display for a zap sender
type Profile struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
}

// DisplayedName prefers display_name, then name
func (p Profile) DisplayedName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// ProfileResolver coalesces pubkey lookups into one relay query per tick
type ProfileResolver struct {
	pool     Pool
	log      *slog.Logger
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	cache   *lru.Cache[string, Profile]
	queue   map[string][]chan Profile
	started bool
	closed  bool

	stop chan struct{}
	done chan struct{}
}

// NewProfileResolver creates a resolver. Call Start to begin polling.
func NewProfileResolver(pool Pool, log *slog.Logger) *ProfileResolver {
	cache, _ := lru.New[string, Profile](DefaultProfileCacheSize)

	return &ProfileResolver{
		pool:     pool,
		log:      log,
		interval: DefaultProfileInterval,
		timeout:  DefaultProfileTimeout,
		cache:    cache,
		queue:    make(map[string][]chan Profile),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop
func (r *ProfileResolver) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.closed {
		return
	}
	r.started = true

	go r.loop()
}

// Close stops polling; pending Get calls return ErrClosed
func (r *ProfileResolver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	started := r.started
	close(r.stop)
	r.queue = make(map[string][]chan Profile)
	r.mu.Unlock()

	if started {
		<-r.done
	}
	return nil
}

// Get returns the profile for pubkey, waiting for the next batch when it is
// not cached yet.
func (r *ProfileResolver) Get(ctx context.Context, pubkey string) (Profile, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Profile{}, ErrClosed
	}
	if p, ok := r.cache.Get(pubkey); ok {
		r.mu.Unlock()
		return p, nil
	}
	ch := make(chan Profile, 1)
	r.queue[pubkey] = append(r.queue[pubkey], ch)
	r.mu.Unlock()

	select {
	case p := <-ch:
		return p, nil
	case <-ctx.Done():
		return Profile{}, ctx.Err()
	case <-r.stop:
		return Profile{}, ErrClosed
	}
}

func (r *ProfileResolver) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *ProfileResolver) tick() {
	r.mu.Lock()
	pubkeys := make([]string, 0, len(r.queue))
	for pk := range r.queue {
		pubkeys = append(pubkeys, pk)
	}
	r.mu.Unlock()

	if len(pubkeys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	events, err := r.pool.Query(ctx, nostr.Filter{
		Authors: pubkeys,
		Kinds:   []int{nostr.KindProfileMetadata},
	})
	if err != nil {
		r.log.Debug("profile query incomplete", "pubkeys", len(pubkeys), "received", len(events), "error", err)
	}

	found := make(map[string]Profile, len(events))
	newest := make(map[string]nostr.Timestamp, len(events))
	for _, ev := range events {
		var p Profile
		if jsonErr := json.Unmarshal([]byte(ev.Content), &p); jsonErr != nil {
			continue
		}
		if ts, seen := newest[ev.PubKey]; seen && ts >= ev.CreatedAt {
			continue
		}
		newest[ev.PubKey] = ev.CreatedAt
		found[ev.PubKey] = p
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	for _, pk := range pubkeys {
		p, ok := found[pk]
		if ok {
			r.cache.Add(pk, p)
		} else if err != nil {
			// timed out before this key came back, try again next tick
			continue
		}

		for _, ch := range r.queue[pk] {
			ch <- p
		}
		delete(r.queue, pk)
	}
}
