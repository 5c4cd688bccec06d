package bolt11

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountMsat(t *testing.T) {
	tests := []struct {
		name    string
		invoice string
		want    int64
		ok      bool
	}{
		{name: "nano", invoice: "lnbc100n1pjqwerty", want: 10_000, ok: true},
		{name: "micro", invoice: "lnbc25u1pvjluez", want: 2_500_000, ok: true},
		{name: "milli", invoice: "lnbc2m1pvjluez", want: 200_000_000, ok: true},
		{name: "pico", invoice: "lnbc2500p1pvjluez", want: 250, ok: true},
		{name: "testnet", invoice: "lntb10u1pvjluez", want: 1_000_000, ok: true},
		{name: "upper case", invoice: "LNBC100N1PJQWERTY", want: 10_000, ok: true},
		{name: "garbage", invoice: "not an invoice", ok: false},
		{name: "empty", invoice: "", ok: false},
		{name: "no multiplier", invoice: "lnbc25", ok: false},
		{name: "milli overflow", invoice: "lnbc200000000000m1pxyz", ok: false},
		{name: "milli wraps to small", invoice: "lnbc92233720368548m1pxyz", ok: false},
		{name: "micro overflow", invoice: "lnbc92233720368548u1pxyz", ok: false},
		{name: "largest milli", invoice: "lnbc92233720368m1pxyz", want: 92233720368 * 100_000_000, ok: true},
		{name: "amount beyond int64", invoice: "lnbc99999999999999999999n1pxyz", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AmountMsat(tt.invoice)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAmountSatsRoundsDown(t *testing.T) {
	sats, ok := AmountSats("lnbc2500p1pvjluez")
	require.True(t, ok)
	assert.Equal(t, int64(0), sats)

	sats, ok = AmountSats("lnbc21u1pvjluez")
	require.True(t, ok)
	assert.Equal(t, int64(2100), sats)
}
