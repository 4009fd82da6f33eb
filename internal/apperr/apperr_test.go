package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := ErrSlotFull.WithMessage("slot %d is full", 7)
	wrapped := fmt.Errorf("book slot: %w", err)

	assert.True(t, errors.Is(wrapped, ErrSlotFull))
	assert.False(t, errors.Is(wrapped, ErrSlotNotAvailable))
	assert.Equal(t, "slot_full: slot 7 is full", err.Error())
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", ErrSlotNotFound, KindNotFound},
		{"wrapped deadline", fmt.Errorf("x: %w", ErrBookingDeadlinePassed), KindDeadlinePassed},
		{"validation", Validation("rating must be between %d and %d", 1, 5), KindValidation},
		{"plain error", errors.New("boom"), KindInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestInternal_Unwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("load slot", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindInternal, KindOf(err))
}
