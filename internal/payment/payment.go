package payment

import (
	"context"
	"html"
)

// Type distinguishes the two payment sources
type Type string

const (
	TypeBoost Type = "boost"
	TypeZap   Type = "zap"
)

const (
	unknownName   = "Unknown"
	anonymousName = "Anonymous"
)

// RemoteItem holds the titles resolved for a remote feed/item reference.
// Both fields stay empty when the lookup failed or found nothing.
type RemoteItem struct {
	Feed string `json:"remote_feed,omitempty"`
	Item string `json:"remote_item,omitempty"`
}

// IsZero reports whether nothing was resolved
func (r RemoteItem) IsZero() bool {
	return r.Feed == "" && r.Item == ""
}

// Payment is the normalized boost or zap delivered to listeners
type Payment struct {
	Type         Type   `json:"type"`
	Action       string `json:"action"`
	Identifier   string `json:"identifier"`
	CreationDate int64  `json:"creation_date"`
	SenderName   string `json:"sender_name"`
	AppName      string `json:"app_name"`
	Podcast      string `json:"podcast"`
	EventGUID    string `json:"event_guid,omitempty"`
	EpisodeGUID  string `json:"episode_guid,omitempty"`
	Episode      string `json:"episode,omitempty"`
	Sats         int64  `json:"sats"`
	Message      string `json:"message,omitempty"`
	Picture      string `json:"picture,omitempty"`
	IsOld        bool   `json:"is_old"`

	// Cross references into the remote catalog, used by Enrich
	RemoteFeedGUID string `json:"-"`
	RemoteItemGUID string `json:"-"`

	Remote RemoteItem `json:"remote"`
}

// Sanitized returns a copy with user supplied text escaped for markup
func (p Payment) Sanitized() Payment {
	p.SenderName = html.EscapeString(p.SenderName)
	p.Message = html.EscapeString(p.Message)
	return p
}

// RemoteResolver looks up remote feed/item titles
type RemoteResolver interface {
	Resolve(ctx context.Context, podcastGUID, episodeGUID string) RemoteItem
}

// Enrich fills Remote when the payment references a remote item. The input is
// returned untouched when there is nothing to look up.
func Enrich(ctx context.Context, r RemoteResolver, p Payment) Payment {
	if r == nil || p.RemoteFeedGUID == "" || p.RemoteItemGUID == "" {
		return p
	}
	p.Remote = r.Resolve(ctx, p.RemoteFeedGUID, p.RemoteItemGUID)
	return p
}

func orDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
