package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRelays hands out one channel per relay url and counts dials
type scriptedRelays struct {
	mu    sync.Mutex
	chans map[string]chan *nostr.Event
	fail  map[string]bool
	dials int
}

func (r *scriptedRelays) open(ctx context.Context, url string, filters nostr.Filters) (<-chan *nostr.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dials++
	if r.fail[url] {
		return nil, errors.New("connection refused")
	}
	return r.chans[url], nil
}

func recv(t *testing.T, out <-chan *nostr.Event) *nostr.Event {
	t.Helper()
	select {
	case ev, ok := <-out:
		require.True(t, ok, "stream closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func requireClosed(t *testing.T, out <-chan *nostr.Event) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream not closed")
		}
	}
}

func TestFanInDropsDuplicatesAcrossRelays(t *testing.T) {
	relays := &scriptedRelays{chans: map[string]chan *nostr.Event{
		"wss://a": make(chan *nostr.Event),
		"wss://b": make(chan *nostr.Event),
	}}

	out := fanIn(context.Background(), []string{"wss://a", "wss://b"}, nil, relays.open, discardLogger())

	relays.chans["wss://a"] <- &nostr.Event{ID: "one"}
	assert.Equal(t, "one", recv(t, out).ID)

	relays.chans["wss://b"] <- &nostr.Event{ID: "one"}
	relays.chans["wss://a"] <- &nostr.Event{ID: "two"}
	assert.Equal(t, "two", recv(t, out).ID)

	close(relays.chans["wss://a"])
	requireClosed(t, out)
}

func TestFanInClosesWhenAConnectionDrops(t *testing.T) {
	relays := &scriptedRelays{chans: map[string]chan *nostr.Event{
		"wss://a": make(chan *nostr.Event),
		"wss://b": make(chan *nostr.Event),
	}}

	out := fanIn(context.Background(), []string{"wss://a", "wss://b"}, nil, relays.open, discardLogger())

	close(relays.chans["wss://b"])
	requireClosed(t, out)
}

func TestFanInSkipsUnreachableRelays(t *testing.T) {
	relays := &scriptedRelays{
		chans: map[string]chan *nostr.Event{"wss://good": make(chan *nostr.Event)},
		fail:  map[string]bool{"wss://bad": true},
	}

	out := fanIn(context.Background(), []string{"wss://bad", "wss://good"}, nil, relays.open, discardLogger())

	relays.chans["wss://good"] <- &nostr.Event{ID: "one"}
	assert.Equal(t, "one", recv(t, out).ID)

	close(relays.chans["wss://good"])
	requireClosed(t, out)
}

func TestFanInClosesWhenNoRelayConnects(t *testing.T) {
	relays := &scriptedRelays{fail: map[string]bool{"wss://a": true, "wss://b": true}}

	out := fanIn(context.Background(), []string{"wss://a", "wss://b"}, nil, relays.open, discardLogger())
	requireClosed(t, out)

	out = fanIn(context.Background(), nil, nil, relays.open, discardLogger())
	requireClosed(t, out)
}

func TestFanInStopsOnCancel(t *testing.T) {
	relays := &scriptedRelays{chans: map[string]chan *nostr.Event{"wss://a": make(chan *nostr.Event)}}

	ctx, cancel := context.WithCancel(context.Background())
	out := fanIn(ctx, []string{"wss://a"}, nil, relays.open, discardLogger())

	cancel()
	requireClosed(t, out)
}

// droppingPool is a Pool whose relay connections die right after connecting
type droppingPool struct {
	fakePool
	relays *scriptedRelays
}

func (p *droppingPool) Subscribe(ctx context.Context, filters nostr.Filters) <-chan *nostr.Event {
	p.relays.mu.Lock()
	ch := make(chan *nostr.Event)
	close(ch)
	p.relays.chans["wss://a"] = ch
	p.relays.mu.Unlock()

	return fanIn(ctx, []string{"wss://a"}, filters, p.relays.open, discardLogger())
}

func TestSubscriberRetriesDroppedRelayConnections(t *testing.T) {
	relays := &scriptedRelays{chans: map[string]chan *nostr.Event{}}
	pool := &droppingPool{relays: relays}

	s := NewSubscriber(pool, nil, nil, Options{RetryBase: time.Millisecond, MaxAttempts: 2}, discardLogger())
	defer s.Close()

	h, _ := collect()
	require.NoError(t, s.SubscribeBoosts(context.Background(), sourceKey, h))

	// first connection plus two retries, then the subscription is abandoned
	assert.Eventually(t, func() bool {
		relays.mu.Lock()
		defer relays.mu.Unlock()
		return relays.dials == 3
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	relays.mu.Lock()
	assert.Equal(t, 3, relays.dials)
	relays.mu.Unlock()
}
