package models

import "time"

const (
	RoleUser  = "user"
	RoleCoach = "coach"
	RoleAdmin = "admin"
)

type User struct {
	ID                 int64     `json:"id" yaml:"id"`
	Email              string    `json:"email" yaml:"email"`
	Role               string    `json:"role" yaml:"role"`
	SubscriptionActive bool      `json:"subscription_active" yaml:"subscription_active"`
	PayoutAccountID    *string   `json:"payout_account_id,omitempty" yaml:"payout_account_id,omitempty"`
	CreatedAt          time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" yaml:"updated_at"`
}

const (
	LiveSessionScheduled = "scheduled"
	LiveSessionLive      = "live"
	LiveSessionEnded     = "ended"
)

type LiveSession struct {
	ID        int64     `json:"id" yaml:"id"`
	CoachID   int64     `json:"coach_id" yaml:"coach_id"`
	Title     string    `json:"title" yaml:"title"`
	IsPublic  bool      `json:"is_public" yaml:"is_public"`
	Status    string    `json:"status" yaml:"status"`
	StartsAt  time.Time `json:"starts_at" yaml:"starts_at"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Offer is a purchasable entitlement. A nil SessionID means global access.
type Offer struct {
	ID         int64     `json:"id" yaml:"id"`
	Title      string    `json:"title" yaml:"title"`
	PriceCents int64     `json:"price_cents" yaml:"price_cents"`
	Currency   string    `json:"currency" yaml:"currency"`
	SessionID  *int64    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	IsActive   bool      `json:"is_active" yaml:"is_active"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

func (o *Offer) SessionScoped() bool {
	return o != nil && o.SessionID != nil
}
