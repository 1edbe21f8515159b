package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutRecorder struct {
	mu    sync.Mutex
	acks  []string
	dones []string
}

func (r *timeoutRecorder) onAck(_, requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, requestID)
}

func (r *timeoutRecorder) onDone(_, requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dones = append(r.dones, requestID)
}

func (r *timeoutRecorder) snapshot() (acks, dones []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.acks...), append([]string(nil), r.dones...)
}

func TestTrackerAckTimeout(t *testing.T) {
	rec := &timeoutRecorder{}
	tr := NewTracker(20*time.Millisecond, time.Minute, rec.onAck, rec.onDone)
	defer tr.Clear()

	tr.Start(ActionDispense, "r1")
	require.Eventually(t, func() bool {
		acks, _ := rec.snapshot()
		return len(acks) == 1
	}, time.Second, 5*time.Millisecond)

	acks, dones := rec.snapshot()
	assert.Equal(t, []string{"r1"}, acks)
	assert.Empty(t, dones, "ack timeout removes the op, done timer must not fire")
	assert.Equal(t, 0, tr.Len())
}

func TestTrackerDoneTimeoutAfterAck(t *testing.T) {
	rec := &timeoutRecorder{}
	tr := NewTracker(time.Minute, 20*time.Millisecond, rec.onAck, rec.onDone)
	defer tr.Clear()

	tr.Start(ActionReturn, "r1")
	action, ok := tr.MarkAcked("r1")
	require.True(t, ok)
	assert.Equal(t, ActionReturn, action)

	require.Eventually(t, func() bool {
		_, dones := rec.snapshot()
		return len(dones) == 1
	}, time.Second, 5*time.Millisecond)

	acks, dones := rec.snapshot()
	assert.Empty(t, acks)
	assert.Equal(t, []string{"r1"}, dones)
}

func TestTrackerFinishCancelsTimers(t *testing.T) {
	rec := &timeoutRecorder{}
	tr := NewTracker(20*time.Millisecond, 40*time.Millisecond, rec.onAck, rec.onDone)
	defer tr.Clear()

	tr.Start(ActionDispense, "r1")
	action, ok := tr.Finish("r1")
	require.True(t, ok)
	assert.Equal(t, ActionDispense, action)

	_, ok = tr.Finish("r1")
	assert.False(t, ok, "second finish is a no-op")

	time.Sleep(80 * time.Millisecond)
	acks, dones := rec.snapshot()
	assert.Empty(t, acks)
	assert.Empty(t, dones)
}

func TestTrackerStartReplacesExisting(t *testing.T) {
	rec := &timeoutRecorder{}
	tr := NewTracker(20*time.Millisecond, time.Minute, rec.onAck, rec.onDone)
	defer tr.Clear()

	tr.Start(ActionDispense, "r1")
	tr.Start(ActionReturn, "r1")
	assert.Equal(t, 1, tr.Len())

	require.Eventually(t, func() bool {
		acks, _ := rec.snapshot()
		return len(acks) == 1
	}, time.Second, 5*time.Millisecond)

	// Only the replacement's timer fires; the replaced op was cancelled.
	time.Sleep(40 * time.Millisecond)
	acks, _ := rec.snapshot()
	assert.Equal(t, []string{"r1"}, acks)
}

func TestTrackerStaleCallbackIgnoredAfterReplacement(t *testing.T) {
	rec := &timeoutRecorder{}
	tr := NewTracker(time.Minute, time.Minute, rec.onAck, rec.onDone)
	defer tr.Clear()

	tr.Start(ActionDispense, "r1")
	tr.mu.Lock()
	stale := tr.ops["r1"]
	tr.mu.Unlock()

	// Reuse the id. The old op's timer may already have fired and be
	// blocked on the mutex; its callback must not touch the replacement.
	tr.Start(ActionReturn, "r1")
	tr.ackExpired("r1", stale)
	tr.doneExpired("r1", stale)

	acks, dones := rec.snapshot()
	assert.Empty(t, acks, "stale ack callback must not fire")
	assert.Empty(t, dones, "stale done callback must not fire")
	assert.Equal(t, 1, tr.Len(), "replacement op must survive the stale callbacks")

	action, ok := tr.MarkAcked("r1")
	require.True(t, ok)
	assert.Equal(t, ActionReturn, action)
}

func TestTrackerUnknownIDs(t *testing.T) {
	tr := NewTracker(time.Minute, time.Minute, func(_, _ string) {}, func(_, _ string) {})
	defer tr.Clear()

	_, ok := tr.MarkAcked("ghost")
	assert.False(t, ok)
	_, ok = tr.Finish("ghost")
	assert.False(t, ok)
}
