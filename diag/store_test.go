package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreMergeSemantics(t *testing.T) {
	s := NewStore()
	motor := 3

	s.Apply("t1", Status{MotorID: &motor, Action: "dispense", Stage: "accepted"})

	// The terminal event carries no motor id; the merged view keeps it.
	code := "BUSY"
	s.Apply("t1", Status{Stage: "failed", ErrorCode: &code})

	st, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "failed", st.Stage)
	require.NotNil(t, st.MotorID)
	assert.Equal(t, 3, *st.MotorID)
	assert.Equal(t, "dispense", st.Action)
	require.NotNil(t, st.ErrorCode)
	assert.Equal(t, "BUSY", *st.ErrorCode)
}

func TestStoreUnknownRequest(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("ghost")
	assert.False(t, ok)
}
