package billing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiscountStatus(t *testing.T) {
	st, err := ParseDiscountStatus(" applied ")
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, st)

	_, err = ParseDiscountStatus("VOID")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDiscountTransitions(t *testing.T) {
	all := []DiscountStatus{StatusPending, StatusApplied, StatusCancelled, StatusRefunded}
	legal := map[[2]DiscountStatus]bool{
		{StatusPending, StatusApplied}:   true,
		{StatusApplied, StatusCancelled}: true,
		{StatusApplied, StatusRefunded}:  true,
	}

	for _, from := range all {
		for _, to := range all {
			err := checkTransition(from, to)
			if legal[[2]DiscountStatus{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) || !errors.Is(err, ErrInconsistentState) {
				t.Fatalf("%s -> %s: expected invalid transition, got %v", from, to, err)
			}
		}
	}
}

func TestDiscountStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusApplied.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
}
