package live

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// ParsePubkey accepts a hex pubkey or an npub and returns hex
func ParsePubkey(pubkey string) (string, error) {
	pubkey = strings.TrimSpace(pubkey)
	if !strings.HasPrefix(pubkey, "npub") {
		if !isHexKey(pubkey) {
			return "", fmt.Errorf("invalid pubkey %q", pubkey)
		}
		return pubkey, nil
	}

	_, data, err := nip19.Decode(pubkey)
	if err != nil {
		return "", fmt.Errorf("decode npub: %w", err)
	}

	pk, ok := data.(string)
	if !ok {
		return "", fmt.Errorf("npub did not decode to a pubkey")
	}
	return pk, nil
}

func isHexKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ParseActivity accepts a kind:pubkey:identifier address or an naddr and
// returns the address form used in #a tag filters
func ParseActivity(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "naddr") {
		if strings.Count(addr, ":") < 2 {
			return "", fmt.Errorf("invalid activity address %q", addr)
		}
		return addr, nil
	}

	_, data, err := nip19.Decode(addr)
	if err != nil {
		return "", fmt.Errorf("decode naddr: %w", err)
	}

	var ptr nostr.EntityPointer
	switch v := data.(type) {
	case nostr.EntityPointer:
		ptr = v
	case *nostr.EntityPointer:
		ptr = *v
	default:
		return "", fmt.Errorf("naddr did not decode to an address")
	}

	return fmt.Sprintf("%d:%s:%s", ptr.Kind, ptr.PublicKey, ptr.Identifier), nil
}
