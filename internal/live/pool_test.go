package live

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePool serves scripted connections. The i-th Subscribe call reads from
// feeds[i]; calls beyond the script get a connection that closes at once.
type fakePool struct {
	mu      sync.Mutex
	feeds   []chan *nostr.Event
	filters []nostr.Filters
	calls   int

	profiles []*nostr.Event
	queryErr error
	queries  []nostr.Filter
}

func (p *fakePool) Subscribe(ctx context.Context, filters nostr.Filters) <-chan *nostr.Event {
	p.mu.Lock()
	var feed chan *nostr.Event
	if p.calls < len(p.feeds) {
		feed = p.feeds[p.calls]
	}
	p.calls++
	p.filters = append(p.filters, filters)
	p.mu.Unlock()

	out := make(chan *nostr.Event)
	go func() {
		defer close(out)
		if feed == nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-feed:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (p *fakePool) Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queries = append(p.queries, filter)

	var events []*nostr.Event
	for _, ev := range p.profiles {
		if slices.Contains(filter.Authors, ev.PubKey) {
			events = append(events, ev)
		}
	}
	return events, p.queryErr
}

func (p *fakePool) Close() error { return nil }

func (p *fakePool) subscribeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakePool) queryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}
