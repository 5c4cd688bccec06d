package live

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/suspectuso/boost-tracker/internal/payment"
)

const publishTimeout = 10 * time.Second

// Publisher signs stored boosts as kind 30078 records and sends them to relays
type Publisher struct {
	secretKey string
	publicKey string
	relays    []string
	log       *slog.Logger
}

// NewPublisher accepts the signing key as nsec or hex
func NewPublisher(secretKey string, relays []string, log *slog.Logger) (*Publisher, error) {
	sk, err := parseSecretKey(secretKey)
	if err != nil {
		return nil, err
	}

	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("derive pubkey: %w", err)
	}

	return &Publisher{
		secretKey: sk,
		publicKey: pk,
		relays:    relays,
		log:       log,
	}, nil
}

// PublicKey returns the hex key boost subscribers should follow
func (p *Publisher) PublicKey() string {
	return p.publicKey
}

// Publish sends inv to every relay. It fails only when no relay accepted it.
func (p *Publisher) Publish(ctx context.Context, inv payment.Invoice) error {
	ev, err := p.Event(inv)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	published := 0
	for _, url := range p.relays {
		relay, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			p.log.Warn("relay connect failed", "relay", url, "error", err)
			continue
		}

		if err := relay.Publish(ctx, ev); err != nil {
			p.log.Warn("relay publish failed", "relay", url, "error", err)
			relay.Close()
			continue
		}
		relay.Close()

		published++
		p.log.Debug("boost published", "relay", url, "identifier", inv.Identifier)
	}

	if published == 0 && len(p.relays) > 0 {
		return fmt.Errorf("publish %s: no relay accepted the event", inv.Identifier)
	}
	return nil
}

// Event builds and signs the record for inv
func (p *Publisher) Event(inv payment.Invoice) (nostr.Event, error) {
	content, err := json.Marshal(inv)
	if err != nil {
		return nostr.Event{}, fmt.Errorf("marshal invoice: %w", err)
	}

	ev := nostr.Event{
		PubKey:    p.publicKey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindApplicationSpecificData,
		Tags:      boostTags(content, inv.Boostagram),
		Content:   string(content),
	}

	if err := ev.Sign(p.secretKey); err != nil {
		return nostr.Event{}, fmt.Errorf("sign event: %w", err)
	}
	return ev, nil
}

// boostTags makes the record addressable by content hash and discoverable by
// every GUID it references
func boostTags(content []byte, b *payment.Boostagram) nostr.Tags {
	sum := sha256.Sum256(content)
	tags := nostr.Tags{{"d", hex.EncodeToString(sum[:])}}

	if b == nil {
		return tags
	}

	refs := []struct{ kind, value string }{
		{"podcast:guid", b.GUID},
		{"podcast:item:guid", b.EpisodeGUID},
		{"podcast:remote:guid", b.RemoteFeedGUID},
		{"podcast:remote:item:guid", b.RemoteItemGUID},
		{"thesplitkit:block:guid", b.BlockGUID},
		{"thesplitkit:event:guid", b.EventGUID},
	}
	for _, ref := range refs {
		if ref.value == "" {
			continue
		}
		tags = append(tags,
			nostr.Tag{"i", ref.kind + ":" + ref.value},
			nostr.Tag{"k", ref.kind},
		)
	}
	return tags
}

func parseSecretKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, "nsec") {
		if !isHexKey(key) {
			return "", fmt.Errorf("invalid secret key")
		}
		return key, nil
	}

	_, data, err := nip19.Decode(key)
	if err != nil {
		return "", fmt.Errorf("decode nsec: %w", err)
	}

	sk, ok := data.(string)
	if !ok {
		return "", fmt.Errorf("nsec did not decode to a key")
	}
	return sk, nil
}
