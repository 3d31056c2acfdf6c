package models

import "time"

const (
	LedgerPlatformRevenue = "PLATFORM_REVENUE"
	LedgerCoachEarning    = "COACH_EARNING"
	LedgerPayout          = "PAYOUT"
	LedgerPayoutReversal  = "PAYOUT_REVERSAL"
)

// LedgerEntry is an immutable signed posting. A nil UserID belongs to the platform.
type LedgerEntry struct {
	ID            int64     `json:"id" yaml:"id"`
	Type          string    `json:"type" yaml:"type"`
	Amount        int64     `json:"amount" yaml:"amount"`
	Currency      string    `json:"currency" yaml:"currency"`
	UserID        *int64    `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	TransactionID *string   `json:"transaction_id,omitempty" yaml:"transaction_id,omitempty"`
	PayoutID      *int64    `json:"payout_id,omitempty" yaml:"payout_id,omitempty"`
	Note          *string   `json:"note,omitempty" yaml:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}
