package payments

import (
	"time"
)

// CollectionAccount is the ledger account and sub-ledger provisioned with the
// payment processor to receive a fund's contributions
type CollectionAccount struct {
	AccountID     string `json:"account_id"`
	AccountName   string `json:"account_name"`
	SubLedgerID   string `json:"sub_ledger_id"`
	SubLedgerName string `json:"sub_ledger_name"`
}

// PushResult is the processor's synchronous response to a push-payment
// request. Success here means the request was accepted, not that funds
// moved; settlement is confirmed separately via the feed.
type PushResult struct {
	Success        bool   `json:"success"`
	CorrelationRef string `json:"correlation_ref"`
	AccountNumber  string `json:"account_number"`
	Message        string `json:"message"`
}

// SettlementEntry is one row of the processor's settlement feed
type SettlementEntry struct {
	AccountNumber string    `json:"account_number"`
	Phone         string    `json:"phone"`
	ReceiptRef    string    `json:"receipt_ref"`
	Amount        int64     `json:"amount"`
	SettledAt     time.Time `json:"settled_at"`
}

// PayoutResult is the processor's response to a payout request
type PayoutResult struct {
	Success        bool   `json:"success"`
	TransactionRef string `json:"transaction_ref"`
	Message        string `json:"message"`
}

// Account is a system account matched by phone number, used to decide a
// member's linked-account status
type Account struct {
	AccountID string `json:"account_id"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
}
