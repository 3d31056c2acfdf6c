package models

import "time"

const (
	PromoFullFree = "FULL_FREE"
	PromoPercent  = "PERCENT"
	PromoFixed    = "FIXED"
)

type PromoCode struct {
	ID              int64      `json:"id" yaml:"id"`
	Code            string     `json:"code" yaml:"code"`
	Kind            string     `json:"kind" yaml:"kind"`
	PercentOff      *int       `json:"percent_off,omitempty" yaml:"percent_off,omitempty"`
	AmountOff       *int64     `json:"amount_off,omitempty" yaml:"amount_off,omitempty"`
	SessionID       *int64     `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	IsActive        bool       `json:"is_active" yaml:"is_active"`
	StartsAt        *time.Time `json:"starts_at,omitempty" yaml:"starts_at,omitempty"`
	EndsAt          *time.Time `json:"ends_at,omitempty" yaml:"ends_at,omitempty"`
	MaxRedemptions  *int       `json:"max_redemptions,omitempty" yaml:"max_redemptions,omitempty"`
	RedemptionCount int        `json:"redemption_count" yaml:"redemption_count"`
	CreatedAt       time.Time  `json:"created_at" yaml:"created_at"`
}

type PromoRedemption struct {
	ID            int64     `json:"id" yaml:"id"`
	PromoCodeID   int64     `json:"promo_code_id" yaml:"promo_code_id"`
	UserID        int64     `json:"user_id" yaml:"user_id"`
	OfferID       int64     `json:"offer_id" yaml:"offer_id"`
	TransactionID *string   `json:"transaction_id,omitempty" yaml:"transaction_id,omitempty"`
	RedeemedAt    time.Time `json:"redeemed_at" yaml:"redeemed_at"`
}
