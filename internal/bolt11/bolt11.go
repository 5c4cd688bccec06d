package bolt11

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// amountRegex matches the human readable part of an invoice, e.g. lnbc100n1...
var amountRegex = regexp.MustCompile(`^ln\w+?(\d+)([a-z]?)`)

// millisatoshis per unit for each bolt11 multiplier
var multipliers = map[string]int64{
	"m": 100_000_000,
	"u": 100_000,
	"n": 100,
}

// AmountMsat extracts the amount in millisatoshis encoded in a payment request.
// It returns false when the invoice does not carry a recognizable amount.
func AmountMsat(invoice string) (int64, bool) {
	matches := amountRegex.FindStringSubmatch(strings.ToLower(strings.TrimSpace(invoice)))
	if matches == nil {
		return 0, false
	}

	amount, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, false
	}

	// pico is a tenth of a msat
	if matches[2] == "p" {
		return amount / 10, true
	}

	mult, ok := multipliers[matches[2]]
	if !ok {
		return 0, false
	}
	if amount > math.MaxInt64/mult {
		return 0, false
	}

	return amount * mult, true
}

// AmountSats is AmountMsat rounded down to whole satoshis.
func AmountSats(invoice string) (int64, bool) {
	msat, ok := AmountMsat(invoice)
	if !ok {
		return 0, false
	}
	return msat / 1000, true
}
