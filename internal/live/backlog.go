package live

import "time"

// BacklogGap is the inactivity after which a subscription is considered
// caught up with stored records
const BacklogGap = 5 * time.Second

// backlog tracks whether records on one connection are still replayed
// history or genuinely live. It starts in backlog and flips to live once no
// record arrived for gap; it never flips back.
type backlog struct {
	gap  time.Duration
	last time.Time
	live bool
}

func newBacklog(connectedAt time.Time, gap time.Duration) *backlog {
	return &backlog{gap: gap, last: connectedAt}
}

// observe records an arrival and reports whether the record is old
func (b *backlog) observe(now time.Time) bool {
	if !b.live && now.Sub(b.last) >= b.gap {
		b.live = true
	}
	b.last = now
	return !b.live
}
