package services

import (
	"errors"
	"fmt"
)

var (
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOfferNotFound          = errors.New("offer not found")
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionMissing         = errors.New("offer session missing")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrAccessNotFound         = errors.New("access not found")
	ErrProviderUnavailable    = errors.New("payment provider unavailable")
	ErrPromoRequiresPayment   = errors.New("promo code requires payment")
	ErrPayoutNotFound         = errors.New("payout not found")
	ErrPayoutNotPending       = errors.New("payout is not pending")
	ErrPayoutNotFailed        = errors.New("payout is not failed")
	ErrPayoutInFlight         = errors.New("payout already in flight")
	ErrPayoutAccountMissing   = errors.New("coach has no payout account")
	ErrAlreadyCompensated     = errors.New("payout already compensated")
)

type InsufficientFundsError struct {
	Available int64
	Requested int64
	Currency  string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %d %s, requested %d", e.Available, e.Currency, e.Requested)
}

// InconsistencyError aborts the enclosing transaction. It is never retried and
// never corrected automatically.
type InconsistencyError struct {
	Detail string
}

func (e *InconsistencyError) Error() string {
	return "data inconsistency: " + e.Detail
}

type PromoInvalidError struct {
	Reason string
}

func (e *PromoInvalidError) Error() string {
	return e.Reason
}

type ProviderFailureError struct {
	Step string
	Err  error
}

func (e *ProviderFailureError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Step, e.Err)
}

func (e *ProviderFailureError) Unwrap() error {
	return e.Err
}

func IsInconsistency(err error) bool {
	var inconsistency *InconsistencyError
	return errors.As(err, &inconsistency)
}
