package tracker

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultDedupCapacity = 10_000

// seenSet remembers delivered identifiers, evicting the oldest once full.
// Keys are only added when absent and only checked with Contains, which does
// not touch recency, so the LRU behaves as a FIFO.
type seenSet struct {
	cache *lru.Cache[string, struct{}]
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	cache, _ := lru.New[string, struct{}](capacity)
	return &seenSet{cache: cache}
}

func (s *seenSet) Contains(id string) bool {
	return s.cache.Contains(id)
}

func (s *seenSet) Add(id string) {
	if s.cache.Contains(id) {
		return
	}
	s.cache.Add(id, struct{}{})
}

func (s *seenSet) Len() int {
	return s.cache.Len()
}
