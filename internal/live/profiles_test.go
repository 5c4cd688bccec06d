package live

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookup struct {
	p   Profile
	err error
}

func getAsync(r *ProfileResolver, pubkey string) chan lookup {
	ch := make(chan lookup, 1)
	go func() {
		p, err := r.Get(context.Background(), pubkey)
		ch <- lookup{p: p, err: err}
	}()
	return ch
}

func waitQueued(t *testing.T, r *ProfileResolver, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.queue) == n
	}, time.Second, time.Millisecond)
}

func await(t *testing.T, ch chan lookup) lookup {
	t.Helper()
	select {
	case l := <-ch:
		return l
	case <-time.After(time.Second):
		t.Fatal("lookup did not finish")
		return lookup{}
	}
}

func profileEvent(pubkey string, createdAt nostr.Timestamp, content string) *nostr.Event {
	return &nostr.Event{PubKey: pubkey, Kind: nostr.KindProfileMetadata, CreatedAt: createdAt, Content: content}
}

func TestProfilesBatchIntoOneQuery(t *testing.T) {
	alice := strings.Repeat("a1", 32)
	bob := strings.Repeat("b2", 32)

	pool := &fakePool{profiles: []*nostr.Event{
		profileEvent(alice, 1, `{"name":"alice"}`),
		profileEvent(bob, 1, `{"name":"bob","display_name":"Bobby"}`),
	}}
	r := NewProfileResolver(pool, discardLogger())

	a := getAsync(r, alice)
	b := getAsync(r, bob)
	waitQueued(t, r, 2)

	r.tick()

	require.Equal(t, 1, pool.queryCount())
	assert.ElementsMatch(t, []string{alice, bob}, pool.queries[0].Authors)
	assert.Equal(t, []int{nostr.KindProfileMetadata}, pool.queries[0].Kinds)

	la := await(t, a)
	require.NoError(t, la.err)
	assert.Equal(t, "alice", la.p.DisplayedName())

	lb := await(t, b)
	require.NoError(t, lb.err)
	assert.Equal(t, "Bobby", lb.p.DisplayedName())

	// cached now, no further query
	p, err := r.Get(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
	assert.Equal(t, 1, pool.queryCount())
}

func TestProfilesNewestWins(t *testing.T) {
	alice := strings.Repeat("a1", 32)
	pool := &fakePool{profiles: []*nostr.Event{
		profileEvent(alice, 5, `{"name":"new"}`),
		profileEvent(alice, 2, `{"name":"old"}`),
	}}
	r := NewProfileResolver(pool, discardLogger())

	ch := getAsync(r, alice)
	waitQueued(t, r, 1)
	r.tick()

	assert.Equal(t, "new", await(t, ch).p.Name)
}

func TestProfilesMissingResolvesEmptyUncached(t *testing.T) {
	ghost := strings.Repeat("0f", 32)
	pool := &fakePool{}
	r := NewProfileResolver(pool, discardLogger())

	ch := getAsync(r, ghost)
	waitQueued(t, r, 1)
	r.tick()

	l := await(t, ch)
	require.NoError(t, l.err)
	assert.Equal(t, Profile{}, l.p)

	// asks again next time
	ch = getAsync(r, ghost)
	waitQueued(t, r, 1)
	r.tick()
	await(t, ch)
	assert.Equal(t, 2, pool.queryCount())
}

func TestProfilesTimeoutKeepsMissingQueued(t *testing.T) {
	alice := strings.Repeat("a1", 32)
	slow := strings.Repeat("5e", 32)

	pool := &fakePool{
		profiles: []*nostr.Event{profileEvent(alice, 1, `{"name":"alice"}`)},
		queryErr: context.DeadlineExceeded,
	}
	r := NewProfileResolver(pool, discardLogger())

	a := getAsync(r, alice)
	s := getAsync(r, slow)
	waitQueued(t, r, 2)
	r.tick()

	assert.Equal(t, "alice", await(t, a).p.Name)
	waitQueued(t, r, 1)

	pool.mu.Lock()
	pool.queryErr = nil
	pool.profiles = append(pool.profiles, profileEvent(slow, 1, `{"name":"slowpoke"}`))
	pool.mu.Unlock()

	r.tick()
	assert.Equal(t, "slowpoke", await(t, s).p.Name)
}

func TestProfilesCloseReleasesWaiters(t *testing.T) {
	r := NewProfileResolver(&fakePool{}, discardLogger())

	ch := getAsync(r, strings.Repeat("a1", 32))
	waitQueued(t, r, 1)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.True(t, errors.Is(await(t, ch).err, ErrClosed))

	_, err := r.Get(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestProfilesGetHonoursContext(t *testing.T) {
	r := NewProfileResolver(&fakePool{}, discardLogger())
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Get(ctx, strings.Repeat("a1", 32))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
