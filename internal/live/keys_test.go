package live

import (
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePubkey(t *testing.T) {
	pk := strings.Repeat("ab", 32)

	got, err := ParsePubkey("  " + pk + " ")
	require.NoError(t, err)
	assert.Equal(t, pk, got)

	npub, err := nip19.EncodePublicKey(pk)
	require.NoError(t, err)

	got, err = ParsePubkey(npub)
	require.NoError(t, err)
	assert.Equal(t, pk, got)

	for _, bad := range []string{"", "abc", strings.Repeat("zz", 32), "npub1notreally"} {
		_, err := ParsePubkey(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseActivity(t *testing.T) {
	pk := strings.Repeat("ab", 32)
	addr := "30311:" + pk + ":episode-42"

	got, err := ParseActivity(addr)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	naddr, err := nip19.EncodeEntity(pk, 30311, "episode-42", nil)
	require.NoError(t, err)

	got, err = ParseActivity(naddr)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = ParseActivity("30311:" + pk)
	assert.Error(t, err)

	_, err = ParseActivity("naddr1broken")
	assert.Error(t, err)
}
