package remoteinfo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/suspectuso/boost-tracker/internal/payment"
)

const (
	DefaultInterval  = 100 * time.Millisecond
	DefaultTimeout   = 10 * time.Second
	DefaultCacheSize = 10_000
)

// Fetcher performs a single remote item lookup
type Fetcher interface {
	Fetch(ctx context.Context, podcastGUID, episodeGUID string) (payment.RemoteItem, error)
}

type request struct {
	podcastGUID string
	episodeGUID string
	waiters     []chan payment.RemoteItem
	inflight    bool
}

// Resolver batches remote item lookups on a fixed tick and caches every
// result, including empty ones, for the lifetime of the resolver.
type Resolver struct {
	fetcher  Fetcher
	log      *slog.Logger
	interval time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	resolved *lru.Cache[string, payment.RemoteItem]
	pending  map[string]*request
	started  bool
	closed   bool

	stop chan struct{}
	done chan struct{}
}

// NewResolver creates a resolver. Call Start to begin draining the queue.
func NewResolver(fetcher Fetcher, cacheSize int, log *slog.Logger) *Resolver {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	resolved, _ := lru.New[string, payment.RemoteItem](cacheSize)

	return &Resolver{
		fetcher:  fetcher,
		log:      log,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		resolved: resolved,
		pending:  make(map[string]*request),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func cacheKey(podcastGUID, episodeGUID string) string {
	return podcastGUID + "|" + episodeGUID
}

// Start launches the background tick
func (r *Resolver) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.closed {
		return
	}
	r.started = true

	go r.loop()
}

// Close stops the tick and releases every waiting caller with an empty result
func (r *Resolver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	started := r.started
	close(r.stop)
	r.pending = make(map[string]*request)
	r.mu.Unlock()

	if started {
		<-r.done
	}
	return nil
}

// Resolve returns the feed/item titles for a guid pair. It never fails:
// errors, timeouts and cancellation all yield an empty RemoteItem.
func (r *Resolver) Resolve(ctx context.Context, podcastGUID, episodeGUID string) payment.RemoteItem {
	if podcastGUID == "" || episodeGUID == "" {
		return payment.RemoteItem{}
	}

	key := cacheKey(podcastGUID, episodeGUID)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return payment.RemoteItem{}
	}
	if item, ok := r.resolved.Get(key); ok {
		r.mu.Unlock()
		return item
	}

	req, ok := r.pending[key]
	if !ok {
		req = &request{podcastGUID: podcastGUID, episodeGUID: episodeGUID}
		r.pending[key] = req
	}
	ch := make(chan payment.RemoteItem, 1)
	req.waiters = append(req.waiters, ch)
	r.mu.Unlock()

	select {
	case item := <-ch:
		return item
	case <-ctx.Done():
		return payment.RemoteItem{}
	case <-r.stop:
		return payment.RemoteItem{}
	}
}

func (r *Resolver) loop() {
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

func (r *Resolver) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, req := range r.pending {
		if item, ok := r.resolved.Get(key); ok {
			deliver(req, item)
			delete(r.pending, key)
			continue
		}

		if req.inflight {
			continue
		}
		req.inflight = true

		go r.fetch(key, req.podcastGUID, req.episodeGUID)
	}
}

func (r *Resolver) fetch(key, podcastGUID, episodeGUID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	item, err := r.fetcher.Fetch(ctx, podcastGUID, episodeGUID)
	if err != nil {
		r.log.Debug("remote item lookup failed",
			"podcast_guid", podcastGUID,
			"episode_guid", episodeGUID,
			"error", err,
		)
		item = payment.RemoteItem{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.resolved.Add(key, item)

	if req, ok := r.pending[key]; ok {
		deliver(req, item)
		delete(r.pending, key)
	}
}

func deliver(req *request, item payment.RemoteItem) {
	for _, ch := range req.waiters {
		ch <- item
	}
	req.waiters = nil
}
