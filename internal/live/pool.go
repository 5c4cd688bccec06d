package live

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nbd-wtf/go-nostr"
)

// relay connections share this many recent event ids to drop copies
const seenPerSubscription = 4096

// Pool is the slice of relay functionality the subscriber needs
type Pool interface {
	// Subscribe streams matching events until ctx ends or a relay connection
	// goes away, then closes the channel.
	Subscribe(ctx context.Context, filters nostr.Filters) <-chan *nostr.Event
	// Query collects stored events until every relay sent EOSE. A non-nil
	// error means ctx expired first and the result may be partial.
	Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	Close() error
}

// relayFeed opens one subscription on one relay. The channel closes when the
// connection drops, the relay sends CLOSED, or ctx ends.
type relayFeed func(ctx context.Context, url string, filters nostr.Filters) (<-chan *nostr.Event, error)

// RelayPool adapts a nostr.SimplePool to Pool
type RelayPool struct {
	pool   *nostr.SimplePool
	relays []string
	log    *slog.Logger
	cancel context.CancelFunc
}

// NewRelayPool creates a pool connected lazily to the given relays
func NewRelayPool(relays []string, log *slog.Logger) *RelayPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &RelayPool{
		pool:   nostr.NewSimplePool(ctx),
		relays: relays,
		log:    log,
		cancel: cancel,
	}
}

// Subscribe holds one plain subscription per relay and does not reconnect:
// the first connection to end closes the stream, so the caller decides when
// and whether to retry. Relays that cannot be reached are skipped.
func (p *RelayPool) Subscribe(ctx context.Context, filters nostr.Filters) <-chan *nostr.Event {
	return fanIn(ctx, p.relays, filters, p.subscribeRelay, p.log)
}

func (p *RelayPool) subscribeRelay(ctx context.Context, url string, filters nostr.Filters) (<-chan *nostr.Event, error) {
	relay, err := p.pool.EnsureRelay(url)
	if err != nil {
		return nil, err
	}

	sub, err := relay.Subscribe(ctx, filters)
	if err != nil {
		return nil, err
	}
	return sub.Events, nil
}

func fanIn(ctx context.Context, relays []string, filters nostr.Filters, open relayFeed, log *slog.Logger) <-chan *nostr.Event {
	out := make(chan *nostr.Event)
	ctx, cancel := context.WithCancel(ctx)
	seen, _ := lru.New[string, struct{}](seenPerSubscription)

	var wg sync.WaitGroup
	for _, url := range relays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()

			events, err := open(ctx, url, filters)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("subscribe relay", "relay", url, "error", err)
				}
				return
			}

			// one dead connection ends the whole stream
			defer cancel()

			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						log.Debug("relay subscription closed", "relay", url)
						return
					}
					if ev == nil || ev.ID == "" {
						continue
					}
					if dup, _ := seen.ContainsOrAdd(ev.ID, struct{}{}); dup {
						continue
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}(url)
	}

	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()

	return out
}

func (p *RelayPool) Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	var events []*nostr.Event
	for ev := range p.pool.SubManyEose(ctx, p.relays, nostr.Filters{filter}) {
		if ev.Event != nil {
			events = append(events, ev.Event)
		}
	}
	return events, ctx.Err()
}

// Close drops every relay connection held by the pool
func (p *RelayPool) Close() error {
	p.cancel()
	return nil
}
