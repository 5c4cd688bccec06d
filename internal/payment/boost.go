package payment

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Invoice is a stored boost record as served by the boosts API and embedded
// in kind 30078 nostr records.
type Invoice struct {
	Amount       float64     `json:"amount"`
	Boostagram   *Boostagram `json:"boostagram"`
	CreatedAt    string      `json:"created_at,omitempty"`
	CreationDate float64     `json:"creation_date"`
	Identifier   string      `json:"identifier"`
	Value        float64     `json:"value"`
}

// Boostagram is the TLV metadata attached to a value-for-value payment
type Boostagram struct {
	Action         FlexString `json:"action,omitempty"`
	Podcast        string     `json:"podcast,omitempty"`
	Episode        string     `json:"episode,omitempty"`
	AppName        string     `json:"app_name,omitempty"`
	SenderName     string     `json:"sender_name,omitempty"`
	Message        string     `json:"message,omitempty"`
	ValueMsatTotal *Msat      `json:"value_msat_total,omitempty"`
	FeedID         float64    `json:"feedID,omitempty"`
	ItemID         float64    `json:"itemID,omitempty"`
	GUID           string     `json:"guid,omitempty"`
	EpisodeGUID    string     `json:"episode_guid,omitempty"`
	BlockGUID      string     `json:"blockGuid,omitempty"`
	EventGUID      string     `json:"eventGuid,omitempty"`
	RemoteFeedGUID string     `json:"remote_feed_guid,omitempty"`
	RemoteItemGUID string     `json:"remote_item_guid,omitempty"`
}

// FlexString accepts both JSON strings and numbers. Some apps send the
// boostagram action as a number.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	if string(data) == "null" {
		return nil
	}
	*s = FlexString(strings.TrimSpace(string(data)))
	return nil
}

// Msat is a millisatoshi amount that tolerates numeric strings
type Msat float64

func (m *Msat) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*m = Msat(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*m = Msat(math.NaN())
		return nil
	}
	*m = Msat(f)
	return nil
}

func (m Msat) MarshalJSON() ([]byte, error) {
	f := float64(m)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// Sats converts to whole satoshis. Missing or non-finite amounts give 0,
// which makes the payment invalid.
func (m *Msat) Sats() int64 {
	if m == nil {
		return 0
	}
	f := float64(*m)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(math.Floor(f / 1000))
}

// Boost normalizes a stored invoice into a Payment. It returns false when the
// invoice carries no boostagram, i.e. it is not a boost at all.
func (inv Invoice) Boost() (Payment, bool) {
	b := inv.Boostagram
	if b == nil {
		return Payment{}, false
	}

	return Payment{
		Type:           TypeBoost,
		Action:         orDefault(string(b.Action), "unknown"),
		Identifier:     inv.Identifier,
		CreationDate:   int64(inv.CreationDate),
		SenderName:     orDefault(b.SenderName, anonymousName),
		AppName:        orDefault(b.AppName, unknownName),
		Podcast:        orDefault(b.Podcast, unknownName),
		EventGUID:      b.EventGUID,
		EpisodeGUID:    b.EpisodeGUID,
		Episode:        b.Episode,
		Sats:           b.ValueMsatTotal.Sats(),
		Message:        b.Message,
		RemoteFeedGUID: b.RemoteFeedGUID,
		RemoteItemGUID: b.RemoteItemGUID,
	}, true
}

// DecodeInvoice parses the JSON content of a boost record
func DecodeInvoice(content string) (Invoice, error) {
	var inv Invoice
	if err := json.Unmarshal([]byte(content), &inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}
