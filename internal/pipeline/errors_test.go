package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/otcore/internal/model"
)

func TestSubmitError_IsMatchesOnlyItsSentinel(t *testing.T) {
	id := model.MustObjectID("gym-1", model.TypeAccount, "a-1")
	tests := []struct {
		err  *SubmitError
		want error
	}{
		{newNotFound(id, 3), ErrNotFound},
		{newInvalidBase(id, 10, 7), ErrInvalidBaseRevision},
		{newMalformed(id, 2, errors.New("bad")), ErrMalformedPatch},
		{newUnavailable(id, errors.New("down")), ErrStorageUnavailable},
		{newRetryExhausted(id, 8), ErrRetryExhausted},
	}
	all := []error{ErrNotFound, ErrInvalidBaseRevision, ErrMalformedPatch, ErrStorageUnavailable, ErrRetryExhausted}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", tt.err)
			for _, sentinel := range all {
				assert.Equal(t, sentinel == tt.want, errors.Is(wrapped, sentinel), "sentinel %v", sentinel)
			}
			assert.Equal(t, tt.err.Code, CodeOf(wrapped))
		})
	}
}

func TestSubmitError_Message(t *testing.T) {
	id := model.MustObjectID("gym-1", model.TypeBoulder, "b-1")

	err := newMalformed(id, 2, errors.New("index 5 out of range"))
	assert.Equal(t, "MALFORMED_PATCH: patch does not apply (object=gym-1/boulder/b-1, patch=2): index 5 out of range", err.Error())

	err = newInvalidBase(id, 10, 7)
	assert.Equal(t, "INVALID_BASE_REVISION: base revision 10 is ahead of current revision 7 (object=gym-1/boulder/b-1)", err.Error())
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("x")))
	assert.False(t, Retryable(errors.New("x")))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "received", StateReceived.String())
	assert.Equal(t, "rebasing", StateRebasing.String())
	assert.Equal(t, "committed", StateCommitted.String())
	assert.Equal(t, "rejected", StateRejected.String())
	assert.Equal(t, "State(9)", State(9).String())
	assert.True(t, StateCommitted.Terminal())
	assert.False(t, StateRebasing.Terminal())
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	g := UUIDv7Generator{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := g.Generate()
		assert.Len(t, id, 36)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
