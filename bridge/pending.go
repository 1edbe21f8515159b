package bridge

import (
	"sync"
	"time"
)

// pendingOp is one in-flight hardware operation. Both timers are created
// and destroyed under the tracker mutex; a fired timer re-checks the map
// before acting, so a cancel racing a fire is harmless.
type pendingOp struct {
	action    string
	acked     bool
	ackTimer  *time.Timer
	doneTimer *time.Timer
}

func (p *pendingOp) stopTimers() {
	if p.ackTimer != nil {
		p.ackTimer.Stop()
	}
	if p.doneTimer != nil {
		p.doneTimer.Stop()
	}
}

// Tracker owns every pending operation and its two deadlines: the ack
// deadline (controller must acknowledge) and the done deadline (operation
// must complete). All transitions happen in one critical section so a timer
// firing cannot race an incoming reply into a duplicate terminal event.
type Tracker struct {
	mu  sync.Mutex
	ops map[string]*pendingOp

	ackTimeout  time.Duration
	doneTimeout time.Duration

	// Timeout callbacks run outside the lock with the op already removed.
	onAckTimeout  func(action, requestID string)
	onDoneTimeout func(action, requestID string)
}

func NewTracker(ackTimeout, doneTimeout time.Duration,
	onAckTimeout, onDoneTimeout func(action, requestID string)) *Tracker {
	return &Tracker{
		ops:           make(map[string]*pendingOp),
		ackTimeout:    ackTimeout,
		doneTimeout:   doneTimeout,
		onAckTimeout:  onAckTimeout,
		onDoneTimeout: onDoneTimeout,
	}
}

// Start registers a fresh operation and arms both timers. A reused request
// id replaces the previous entry: its timers are cancelled first, so the old
// operation can never fire a late terminal event.
func (t *Tracker) Start(action, requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.ops[requestID]; ok {
		old.stopTimers()
		delete(t.ops, requestID)
	}

	op := &pendingOp{action: action}
	op.ackTimer = time.AfterFunc(t.ackTimeout, func() { t.ackExpired(requestID, op) })
	op.doneTimer = time.AfterFunc(t.doneTimeout, func() { t.doneExpired(requestID, op) })
	t.ops[requestID] = op
}

// MarkAcked flags the operation as acknowledged and disarms the ack timer.
// Returns the action, or false for an unknown id (late or duplicate ACK).
func (t *Tracker) MarkAcked(requestID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[requestID]
	if !ok {
		return "", false
	}
	op.acked = true
	op.ackTimer.Stop()
	return op.action, true
}

// Finish removes the operation and cancels both timers. Returns false if
// the id is unknown: already finished, timed out, or never started. That
// makes duplicate terminal replies no-ops.
func (t *Tracker) Finish(requestID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[requestID]
	if !ok {
		return "", false
	}
	delete(t.ops, requestID)
	op.stopTimers()
	return op.action, true
}

// Clear cancels every outstanding timer without emitting events. Shutdown
// only.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, op := range t.ops {
		op.stopTimers()
		delete(t.ops, id)
	}
}

// Len reports the number of in-flight operations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// The expiry handlers compare the map entry against the op the timer was
// armed for. A timer of a replaced op can fire before Start re-arms the id
// (Stop returns false, the callback blocks on the mutex); matching by id
// alone would let that stale callback kill the replacement.
func (t *Tracker) ackExpired(requestID string, op *pendingOp) {
	t.mu.Lock()
	cur, ok := t.ops[requestID]
	if !ok || cur != op || cur.acked {
		// Acked, finished, or replaced in the window between the timer
		// firing and this callback taking the lock.
		t.mu.Unlock()
		return
	}
	delete(t.ops, requestID)
	cur.doneTimer.Stop()
	action := cur.action
	t.mu.Unlock()

	t.onAckTimeout(action, requestID)
}

func (t *Tracker) doneExpired(requestID string, op *pendingOp) {
	t.mu.Lock()
	cur, ok := t.ops[requestID]
	if !ok || cur != op {
		t.mu.Unlock()
		return
	}
	delete(t.ops, requestID)
	cur.ackTimer.Stop()
	action := cur.action
	t.mu.Unlock()

	t.onDoneTimeout(action, requestID)
}
