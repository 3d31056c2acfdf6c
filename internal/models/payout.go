package models

import "time"

const (
	PayoutPending    = "PENDING"
	PayoutProcessing = "PROCESSING"
	PayoutCompleted  = "COMPLETED"
	PayoutFailed     = "FAILED"
)

type Payout struct {
	ID               int64      `json:"id" yaml:"id"`
	CoachID          int64      `json:"coach_id" yaml:"coach_id"`
	Amount           int64      `json:"amount" yaml:"amount"`
	Currency         string     `json:"currency" yaml:"currency"`
	Status           string     `json:"status" yaml:"status"`
	StripeTransferID *string    `json:"stripe_transfer_id,omitempty" yaml:"stripe_transfer_id,omitempty"`
	StripePayoutID   *string    `json:"stripe_payout_id,omitempty" yaml:"stripe_payout_id,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty" yaml:"approved_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	FailureReason    *string    `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" yaml:"updated_at"`
}
