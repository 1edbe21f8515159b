package bridge

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	d := newDedupWindow(120 * time.Second)
	d.now = func() time.Time { return now }

	assert.False(t, d.Seen("r1"), "first sighting is fresh")
	assert.True(t, d.Seen("r1"), "second sighting inside TTL is a duplicate")

	now = now.Add(119 * time.Second)
	assert.True(t, d.Seen("r1"), "still inside the window")

	now = now.Add(2 * time.Second)
	assert.False(t, d.Seen("r1"), "TTL expired, id is fresh again")
}

func TestDedupWindowNoRefreshOnDuplicate(t *testing.T) {
	now := time.Unix(1000, 0)
	d := newDedupWindow(120 * time.Second)
	d.now = func() time.Time { return now }

	d.Seen("r1")
	now = now.Add(100 * time.Second)
	assert.True(t, d.Seen("r1"))

	// The duplicate at t+100 must not have extended the window: the
	// original timestamp governs expiry.
	now = now.Add(21 * time.Second)
	assert.False(t, d.Seen("r1"))
}

func TestDedupWindowPrunes(t *testing.T) {
	now := time.Unix(1000, 0)
	d := newDedupWindow(120 * time.Second)
	d.now = func() time.Time { return now }
	d.max = 10

	for i := 0; i < 11; i++ {
		d.Seen(fmt.Sprintf("old_%d", i))
	}
	assert.Len(t, d.seen, 11)

	// Past the threshold and past the TTL: the next call sweeps the table.
	now = now.Add(121 * time.Second)
	assert.False(t, d.Seen("fresh"))
	assert.Len(t, d.seen, 1)
}
