package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettlementRecord_MatchesAccount(t *testing.T) {
	record := &SettlementRecord{AccountNumber: "CHM-42-7"}

	assert.True(t, record.MatchesAccount("CHM-42-7"))
	assert.False(t, record.MatchesAccount("CHM-42-8"))
	assert.False(t, record.MatchesAccount(""), "an empty reference never matches")
}

func TestSettlementRecord_MatchesPhoneSuffix(t *testing.T) {
	// Feeds mask the middle digits
	record := &SettlementRecord{Phone: "2547****5678"}

	assert.True(t, record.MatchesPhoneSuffix("254700345678", 6))
	assert.False(t, record.MatchesPhoneSuffix("254700340678", 6))
	assert.False(t, record.MatchesPhoneSuffix("5678", 6), "numbers shorter than the suffix never match")
}
