package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/boost-tracker/internal/payment"
	"github.com/suspectuso/boost-tracker/internal/storage"
)

const token = "secret-token"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, inv payment.Invoice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, inv.Identifier)
	return nil
}

func (p *fakePublisher) identifiers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func newStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "boosts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func helipadBody(index int64, action int, tlv string) string {
	payload := map[string]any{
		"index":            index,
		"time":             1700000000 + index,
		"value_msat":       21000,
		"value_msat_total": 25000,
		"action":           action,
		"tlv":              tlv,
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func postHelipad(t *testing.T, h http.Handler, auth, body string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/helipad", strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestHelipadAuth(t *testing.T) {
	srv := NewServer(newStore(t), nil, token, discardLogger())
	h := srv.Routes()
	body := helipadBody(1, 2, `{"podcast":"Pod"}`)

	assert.Equal(t, http.StatusUnauthorized, postHelipad(t, h, "", body))
	assert.Equal(t, http.StatusForbidden, postHelipad(t, h, "Bearer nope", body))
	assert.Equal(t, http.StatusNoContent, postHelipad(t, h, "Bearer "+token, body))
}

func TestHelipadEmptyTokenRejectsAll(t *testing.T) {
	h := NewServer(newStore(t), nil, "", discardLogger()).Routes()
	assert.Equal(t, http.StatusForbidden, postHelipad(t, h, "Bearer ", helipadBody(1, 2, `{}`)))
}

func TestHelipadStoresAndRelays(t *testing.T) {
	store := newStore(t)
	pub := &fakePublisher{}
	mgr := NewManager(store, pub, discardLogger())
	h := NewServer(store, mgr, token, discardLogger()).Routes()

	tlv := `{"podcast":"Pod","sender_name":"alice","action":"boost","message":"hi","episode_guid":"ep-1"}`
	require.Equal(t, http.StatusNoContent, postHelipad(t, h, "Bearer "+token, helipadBody(7, 2, tlv)))

	inv, err := store.GetInvoice("helipad-7")
	require.NoError(t, err)
	assert.Equal(t, float64(21), inv.Amount)
	assert.Equal(t, float64(1700000007), inv.CreationDate)
	require.NotNil(t, inv.Boostagram)
	assert.Equal(t, "alice", inv.Boostagram.SenderName)
	assert.Equal(t, int64(25), inv.Boostagram.ValueMsatTotal.Sats(), "falls back to the webhook total")

	require.Eventually(t, func() bool {
		pending, err := store.ListUnpublished(10)
		return err == nil && len(pending) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"helipad-7"}, pub.identifiers())

	// a replayed webhook is stored once and not relayed again
	require.Equal(t, http.StatusNoContent, postHelipad(t, h, "Bearer "+token, helipadBody(7, 2, tlv)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"helipad-7"}, pub.identifiers())
}

func TestHelipadIgnoresNonBoosts(t *testing.T) {
	store := newStore(t)
	h := NewServer(store, nil, token, discardLogger()).Routes()

	require.Equal(t, http.StatusNoContent, postHelipad(t, h, "Bearer "+token, helipadBody(3, 1, `{}`)))

	sent := `{"index":4,"action":2,"tlv":"{}","payment_info":{"pubkey":"x"}}`
	require.Equal(t, http.StatusNoContent, postHelipad(t, h, "Bearer "+token, sent))

	all, err := store.ListInvoices(storage.InvoiceQuery{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestHelipadBadPayload(t *testing.T) {
	h := NewServer(newStore(t), nil, token, discardLogger()).Routes()

	assert.Equal(t, http.StatusBadRequest, postHelipad(t, h, "Bearer "+token, "{"))
	assert.Equal(t, http.StatusBadRequest, postHelipad(t, h, "Bearer "+token, helipadBody(1, 2, "not json")))
}

func TestBoostsEndpoint(t *testing.T) {
	store := newStore(t)
	for i, podcast := range []string{"Alpha", "Beta", "Alpha Two"} {
		msat := payment.Msat(1000 * (i + 1))
		_, err := store.SaveInvoice(payment.Invoice{
			Identifier:   "b" + string(rune('1'+i)),
			CreationDate: float64(100 * (i + 1)),
			Boostagram:   &payment.Boostagram{Podcast: podcast, ValueMsatTotal: &msat},
		})
		require.NoError(t, err)
	}

	srv := httptest.NewServer(NewServer(store, nil, token, discardLogger()).Routes())
	defer srv.Close()

	get := func(query string) []payment.Invoice {
		resp, err := http.Get(srv.URL + "/api/boosts?" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

		var out []payment.Invoice
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	ids := func(invs []payment.Invoice) []string {
		var out []string
		for _, inv := range invs {
			out = append(out, inv.Identifier)
		}
		return out
	}

	assert.Equal(t, []string{"b1", "b2", "b3"}, ids(get("")))
	assert.Equal(t, []string{"b1", "b3"}, ids(get("podcast=alpha")))
	assert.Equal(t, []string{"b2", "b3"}, ids(get("created_at_gt=200")))
	assert.Equal(t, []string{"b3"}, ids(get("since=b2")))
	assert.Equal(t, []string{"b2"}, ids(get("page=2&items=1")))
	assert.Empty(t, get("page=9&items=1"))

	resp, err := http.Get(srv.URL + "/api/boosts?page=zero")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	h := NewServer(newStore(t), nil, token, discardLogger()).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestManagerSyncRetriesFailures(t *testing.T) {
	store := newStore(t)
	for _, id := range []string{"a", "b"} {
		_, err := store.SaveInvoice(payment.Invoice{Identifier: id, CreationDate: 1})
		require.NoError(t, err)
	}

	pub := &fakePublisher{err: errors.New("relays down")}
	mgr := NewManager(store, pub, discardLogger())

	require.NoError(t, mgr.sync(context.Background()))
	pending, err := store.ListUnpublished(10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()

	require.NoError(t, mgr.sync(context.Background()))
	pending, err = store.ListUnpublished(10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.ElementsMatch(t, []string{"a", "b"}, pub.identifiers())
}
