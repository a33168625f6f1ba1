package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NewNotFound("queue %d", 7), IsNotFound},
		{"forbidden", NewForbidden("queue %d is PAUSED", 7), IsForbidden},
		{"conflict", NewConflict("user %d already waiting", 3), IsConflict},
		{"invalid transition", NewInvalidTransition("COMPLETED -> WAITING"), IsInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			// Wrapping preserves the class
			wrapped := Wrap(tt.err, "handler context")
			assert.True(t, tt.check(wrapped))
		})
	}
}

func TestClassesAreDisjoint(t *testing.T) {
	err := NewForbidden("queue is CLOSED")
	assert.False(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
	assert.False(t, IsInvalidTransition(err))
}

func TestNilIsNoClass(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsForbidden(nil))
	assert.False(t, IsConflict(nil))
	assert.False(t, IsInvalidTransition(nil))
}
