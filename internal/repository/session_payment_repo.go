package repository

import (
	"context"
	"errors"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

type CreateSessionPaymentInput struct {
	SessionID     int64
	ParticipantID int64
	TransactionID string
	Amount        int64
	PlatformCut   int64
	CoachCut      int64
	Currency      string
}

type SessionPaymentRepository struct {
	db DBTX
}

func NewSessionPaymentRepository(db DBTX) *SessionPaymentRepository {
	return &SessionPaymentRepository{db: db}
}

const sessionPaymentColumns = `
	id, session_id, participant_id, transaction_id::text, amount, platform_cut, coach_cut,
	currency, status, paid_at`

func scanSessionPayment(row rowScanner) (*models.SessionPayment, error) {
	var payment models.SessionPayment
	err := row.Scan(
		&payment.ID,
		&payment.SessionID,
		&payment.ParticipantID,
		&payment.TransactionID,
		&payment.Amount,
		&payment.PlatformCut,
		&payment.CoachCut,
		&payment.Currency,
		&payment.Status,
		&payment.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Create inserts the payment keyed by transaction id. When a row already exists
// for the transaction it is returned with created=false.
func (r *SessionPaymentRepository) Create(ctx context.Context, input CreateSessionPaymentInput) (*models.SessionPayment, bool, error) {
	query := `
		INSERT INTO session_payments (session_id, participant_id, transaction_id, amount, platform_cut, coach_cut, currency, status)
		VALUES ($1, $2, $3::uuid, $4, $5, $6, $7, 'PAID')
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING ` + sessionPaymentColumns
	payment, err := scanSessionPayment(r.db.QueryRow(
		ctx,
		query,
		input.SessionID,
		input.ParticipantID,
		input.TransactionID,
		input.Amount,
		input.PlatformCut,
		input.CoachCut,
		input.Currency,
	))
	if err == nil {
		return payment, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	existing, err := r.GetByTransactionID(ctx, input.TransactionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *SessionPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.SessionPayment, error) {
	query := `SELECT ` + sessionPaymentColumns + ` FROM session_payments WHERE transaction_id = $1::uuid`
	return scanSessionPayment(r.db.QueryRow(ctx, query, transactionID))
}
