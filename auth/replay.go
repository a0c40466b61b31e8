package auth

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/certificate-registry/interfaces"
)

type replayKey struct {
	caller interfaces.Identity
	digest common.Hash
}

// ReplayCache records accepted signed requests by signer and digest. Entries
// are dropped once they expire; expired entries are pruned on insert.
// The zero value is not usable, use NewReplayCache.
type ReplayCache struct {
	mu   sync.Mutex
	seen map[replayKey]time.Time
}

// NewReplayCache returns an empty cache.
func NewReplayCache() *ReplayCache {
	return &ReplayCache{seen: make(map[replayKey]time.Time)}
}

// Accept records the request and reports whether it had not been seen yet.
// A request remembered with an expiry after now is a replay.
func (c *ReplayCache) Accept(caller interfaces.Identity, digest []byte, expires, now time.Time) bool {
	key := replayKey{caller: caller, digest: common.BytesToHash(digest)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if until, ok := c.seen[key]; ok && now.Before(until) {
		return false
	}

	for k, until := range c.seen {
		if !now.Before(until) {
			delete(c.seen, k)
		}
	}
	c.seen[key] = expires
	return true
}

// Len returns the number of remembered requests.
func (c *ReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
