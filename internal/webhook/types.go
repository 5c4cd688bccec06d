package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/suspectuso/boost-tracker/internal/payment"
)

// helipadBoost is the action code Helipad uses for boosts
const helipadBoost = 2

// HelipadPayload is the body Helipad posts for every incoming payment
type HelipadPayload struct {
	Index          int64            `json:"index"`
	Time           int64            `json:"time"`
	ValueMsat      int64            `json:"value_msat"`
	ValueMsatTotal int64            `json:"value_msat_total"`
	Action         int              `json:"action"`
	Sender         string           `json:"sender"`
	App            string           `json:"app"`
	Message        string           `json:"message"`
	Podcast        string           `json:"podcast"`
	Episode        string           `json:"episode"`
	TLV            string           `json:"tlv"`
	RemotePodcast  *string          `json:"remote_podcast"`
	RemoteEpisode  *string          `json:"remote_episode"`
	ReplySent      bool             `json:"reply_sent"`
	PaymentInfo    *json.RawMessage `json:"payment_info"`
}

// IsIncomingBoost reports whether the payload is a received boost. Sent
// payments carry payment_info.
func (p HelipadPayload) IsIncomingBoost() bool {
	return p.Action == helipadBoost && p.PaymentInfo == nil
}

// Invoice converts the payload into the stored boost shape
func (p HelipadPayload) Invoice() (payment.Invoice, error) {
	var b payment.Boostagram
	if err := json.Unmarshal([]byte(p.TLV), &b); err != nil {
		return payment.Invoice{}, fmt.Errorf("decode tlv: %w", err)
	}

	if b.ValueMsatTotal.Sats() == 0 && p.ValueMsatTotal > 0 {
		total := payment.Msat(p.ValueMsatTotal)
		b.ValueMsatTotal = &total
	}

	sats := float64(p.ValueMsat) / 1000

	return payment.Invoice{
		Amount:       sats,
		Value:        sats,
		Boostagram:   &b,
		CreatedAt:    time.Unix(p.Time, 0).UTC().Format(time.RFC3339),
		CreationDate: float64(p.Time),
		Identifier:   fmt.Sprintf("helipad-%d", p.Index),
	}, nil
}
