package models

import "time"

const (
	TransactionPending   = "PENDING"
	TransactionCompleted = "COMPLETED"
	TransactionFailed    = "FAILED"
	TransactionCancelled = "CANCELLED"
)

type Transaction struct {
	ID            string     `json:"id" yaml:"id"`
	UserID        int64      `json:"user_id" yaml:"user_id"`
	OfferID       int64      `json:"offer_id" yaml:"offer_id"`
	Amount        int64      `json:"amount" yaml:"amount"`
	Currency      string     `json:"currency" yaml:"currency"`
	Provider      string     `json:"provider" yaml:"provider"`
	Status        string     `json:"status" yaml:"status"`
	ProviderTxID  *string    `json:"provider_tx_id,omitempty" yaml:"provider_tx_id,omitempty"`
	PromoCodeID   *int64     `json:"promo_code_id,omitempty" yaml:"promo_code_id,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" yaml:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

func (t *Transaction) Terminal() bool {
	switch t.Status {
	case TransactionCompleted, TransactionFailed, TransactionCancelled:
		return true
	default:
		return false
	}
}

const (
	AccessActive  = "ACTIVE"
	AccessRevoked = "REVOKED"
)

type UserAccess struct {
	ID                int64      `json:"id" yaml:"id"`
	UserID            int64      `json:"user_id" yaml:"user_id"`
	OfferID           int64      `json:"offer_id" yaml:"offer_id"`
	SessionID         *int64     `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	TransactionID     *string    `json:"transaction_id,omitempty" yaml:"transaction_id,omitempty"`
	PromoRedemptionID *int64     `json:"promo_redemption_id,omitempty" yaml:"promo_redemption_id,omitempty"`
	Status            string     `json:"status" yaml:"status"`
	GrantedAt         time.Time  `json:"granted_at" yaml:"granted_at"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// ActiveAt reports whether the grant is usable at the given instant.
func (a *UserAccess) ActiveAt(now time.Time) bool {
	if a.Status != AccessActive {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

const SessionPaymentPaid = "PAID"

type SessionPayment struct {
	ID            int64     `json:"id" yaml:"id"`
	SessionID     int64     `json:"session_id" yaml:"session_id"`
	ParticipantID int64     `json:"participant_id" yaml:"participant_id"`
	TransactionID string    `json:"transaction_id" yaml:"transaction_id"`
	Amount        int64     `json:"amount" yaml:"amount"`
	PlatformCut   int64     `json:"platform_cut" yaml:"platform_cut"`
	CoachCut      int64     `json:"coach_cut" yaml:"coach_cut"`
	Currency      string    `json:"currency" yaml:"currency"`
	Status        string    `json:"status" yaml:"status"`
	PaidAt        time.Time `json:"paid_at" yaml:"paid_at"`
}

type WebhookAnomaly struct {
	ID        int64     `json:"id" yaml:"id"`
	Provider  string    `json:"provider" yaml:"provider"`
	Kind      string    `json:"kind" yaml:"kind"`
	Reference *string   `json:"reference,omitempty" yaml:"reference,omitempty"`
	Detail    string    `json:"detail" yaml:"detail"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
