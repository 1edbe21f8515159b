package bridge

import (
	"sync"
	"time"
)

const dedupPruneThreshold = 2000

// dedupWindow remembers recently seen request ids. MQTT QoS1 is
// at-least-once, so the same command can arrive twice; anything inside the
// TTL window is treated as a retransmission.
type dedupWindow struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
	now  func() time.Time
}

func newDedupWindow(ttl time.Duration) *dedupWindow {
	return &dedupWindow{
		ttl:  ttl,
		max:  dedupPruneThreshold,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen reports whether id was already seen within the TTL. A fresh id is
// recorded; a duplicate keeps its original timestamp so the window cannot
// be extended indefinitely by retransmissions.
func (d *dedupWindow) Seen(id string) bool {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Prune opportunistically once the table grows past the threshold,
	// never on the normal path.
	if len(d.seen) > d.max {
		for rid, ts := range d.seen {
			if now.Sub(ts) > d.ttl {
				delete(d.seen, rid)
			}
		}
	}

	if ts, ok := d.seen[id]; ok && now.Sub(ts) <= d.ttl {
		return true
	}
	d.seen[id] = now
	return false
}
