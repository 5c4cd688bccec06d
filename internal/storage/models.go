package storage

const (
	DefaultItems = 25
	MaxItems     = 1000
)

// InvoiceQuery selects stored boosts. Zero values mean no restriction.
type InvoiceQuery struct {
	Page  int
	Items int

	// Since skips everything up to and including this identifier
	Since string

	CreatedAtGT int64
	CreatedAtLT int64

	Podcasts     []string
	EventGUIDs   []string
	EpisodeGUIDs []string
}

func (q InvoiceQuery) normalized() InvoiceQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Items < 1 {
		q.Items = DefaultItems
	}
	if q.Items > MaxItems {
		q.Items = MaxItems
	}
	return q
}
