// Package diag holds the ephemeral status of admin motor tests. Process
// local by design: a restart loses nothing durable, the operator just
// reruns the test.
package diag

import "sync"

// Status is the merged view of one motor test's stage events.
type Status struct {
	RequestID   string  `json:"request_id"`
	MotorID     *int    `json:"motor_id,omitempty"`
	Action      string  `json:"action,omitempty"`
	Stage       string  `json:"stage"`
	ErrorCode   *string `json:"error_code,omitempty"`
	ErrorReason *string `json:"error_reason,omitempty"`
}

type Store struct {
	mu sync.Mutex
	m  map[string]Status
}

func NewStore() *Store {
	return &Store{m: make(map[string]Status)}
}

// Apply merges a patch into the stored status. Zero-valued patch fields
// keep whatever an earlier stage recorded (the terminal serial reply does
// not repeat the motor id the accepted stage carried).
func (s *Store) Apply(requestID string, patch Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.m[requestID]
	if !ok {
		cur = Status{RequestID: requestID}
	}
	if patch.MotorID != nil {
		cur.MotorID = patch.MotorID
	}
	if patch.Action != "" {
		cur.Action = patch.Action
	}
	if patch.Stage != "" {
		cur.Stage = patch.Stage
	}
	if patch.ErrorCode != nil {
		cur.ErrorCode = patch.ErrorCode
	}
	if patch.ErrorReason != nil {
		cur.ErrorReason = patch.ErrorReason
	}
	s.m[requestID] = cur
}

func (s *Store) Get(requestID string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[requestID]
	return st, ok
}
