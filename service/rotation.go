package service

import (
	"math/rand/v2"

	"chamapool/models"
)

// RecipientForIndex returns the member whose rotation position corresponds to
// the fund's current rotation index. Index 0 maps to position 1.
func RecipientForIndex(members []*models.Member, rotationIndex int) (*models.Member, error) {
	if len(members) == 0 {
		return nil, NewValidationError("members", "fund has no members")
	}

	position := rotationIndex + 1
	for _, member := range members {
		if member.RotationPosition == position {
			return member, nil
		}
	}

	return nil, NewValidationError("rotation_index", "no member holds the current rotation position")
}

// NextRotationIndex advances the rotation pointer, wrapping around the roster
func NextRotationIndex(rotationIndex, memberCount int) int {
	if memberCount <= 0 {
		return 0
	}
	return (rotationIndex + 1) % memberCount
}

// ShuffledPositions returns a uniform random permutation of 1..n
func ShuffledPositions(n int) []int {
	positions := rand.Perm(n)
	for i := range positions {
		positions[i]++
	}
	return positions
}
