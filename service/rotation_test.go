package service

import (
	"testing"

	"chamapool/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipientForIndex(t *testing.T) {
	members := []*models.Member{
		{ID: 30, RotationPosition: 3},
		{ID: 10, RotationPosition: 1},
		{ID: 20, RotationPosition: 2},
	}

	recipient, err := RecipientForIndex(members, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), recipient.ID)

	recipient, err = RecipientForIndex(members, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(30), recipient.ID)

	_, err = RecipientForIndex(members, 3)
	assert.Error(t, err, "no member holds position 4")

	_, err = RecipientForIndex(nil, 0)
	assert.Error(t, err)
}

func TestNextRotationIndex(t *testing.T) {
	assert.Equal(t, 1, NextRotationIndex(0, 3))
	assert.Equal(t, 2, NextRotationIndex(1, 3))
	assert.Equal(t, 0, NextRotationIndex(2, 3), "wraps back to the first position")
	assert.Equal(t, 0, NextRotationIndex(5, 0))
}

func TestShuffledPositions(t *testing.T) {
	for _, n := range []int{2, 5, 20} {
		positions := ShuffledPositions(n)
		require.Len(t, positions, n)

		seen := make(map[int]bool, n)
		for _, p := range positions {
			assert.GreaterOrEqual(t, p, 1)
			assert.LessOrEqual(t, p, n)
			assert.False(t, seen[p], "position %d assigned twice", p)
			seen[p] = true
		}
	}
}

// A full rotation over every member must pay each exactly once
func TestRotation_FullCycleVisitsEveryMember(t *testing.T) {
	members := []*models.Member{
		{ID: 1, RotationPosition: 1},
		{ID: 2, RotationPosition: 2},
		{ID: 3, RotationPosition: 3},
		{ID: 4, RotationPosition: 4},
	}

	index := 0
	paid := make(map[int64]int)
	for i := 0; i < len(members); i++ {
		recipient, err := RecipientForIndex(members, index)
		require.NoError(t, err)
		paid[recipient.ID]++
		index = NextRotationIndex(index, len(members))
	}

	assert.Len(t, paid, 4)
	for id, count := range paid {
		assert.Equal(t, 1, count, "member %d paid %d times", id, count)
	}
	assert.Equal(t, 0, index, "the pointer returns to the start after a full rotation")
}
