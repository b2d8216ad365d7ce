package models

import (
	"time"
)

// SettlementRecord represents one row of the payment processor's settlement
// feed. The feed is polled; it is the only authoritative evidence that a
// push payment actually moved funds.
type SettlementRecord struct {
	AccountNumber string
	Phone         string
	ReceiptRef    string
	Amount        int64
	SettledAt     time.Time
}

// MatchesAccount checks an exact account/correlation reference match
func (s *SettlementRecord) MatchesAccount(accountNumber string) bool {
	return accountNumber != "" && s.AccountNumber == accountNumber
}

// MatchesPhoneSuffix checks the fallback match on the trailing digits of the
// payer phone number. The feed masks the middle digits, so only a suffix
// comparison is reliable.
func (s *SettlementRecord) MatchesPhoneSuffix(phone string, suffixLen int) bool {
	if len(s.Phone) < suffixLen || len(phone) < suffixLen {
		return false
	}
	return s.Phone[len(s.Phone)-suffixLen:] == phone[len(phone)-suffixLen:]
}
