package repository

import (
	"context"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
)

type CreateTransactionInput struct {
	ID          string
	UserID      int64
	OfferID     int64
	Amount      int64
	Currency    string
	Provider    string
	PromoCodeID *int64
}

// PromoClaimIndex rejects a second open or paid checkout with the same code.
const PromoClaimIndex = "uq_transactions_promo_claim"

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id::text, user_id, offer_id, amount, currency, provider, status, provider_tx_id,
	promo_code_id, failure_reason, created_at, updated_at, completed_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var txn models.Transaction
	err := row.Scan(
		&txn.ID,
		&txn.UserID,
		&txn.OfferID,
		&txn.Amount,
		&txn.Currency,
		&txn.Provider,
		&txn.Status,
		&txn.ProviderTxID,
		&txn.PromoCodeID,
		&txn.FailureReason,
		&txn.CreatedAt,
		&txn.UpdatedAt,
		&txn.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *TransactionRepository) Create(ctx context.Context, input CreateTransactionInput) (*models.Transaction, error) {
	query := `
		INSERT INTO transactions (id, user_id, offer_id, amount, currency, provider, status, promo_code_id)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, 'PENDING', $7)
		RETURNING ` + transactionColumns
	return scanTransaction(r.db.QueryRow(
		ctx,
		query,
		input.ID,
		input.UserID,
		input.OfferID,
		input.Amount,
		input.Currency,
		input.Provider,
		input.PromoCodeID,
	))
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1::uuid`
	return scanTransaction(r.db.QueryRow(ctx, query, id))
}

func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1::uuid FOR UPDATE`
	return scanTransaction(r.db.QueryRow(ctx, query, id))
}

// Complete moves a PENDING transaction to COMPLETED. pgx.ErrNoRows means it was
// not PENDING anymore.
func (r *TransactionRepository) Complete(ctx context.Context, id string, providerTxID *string) (*models.Transaction, error) {
	query := `
		UPDATE transactions
		SET status = 'COMPLETED',
			provider_tx_id = COALESCE($2, provider_tx_id),
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1::uuid AND status = 'PENDING'
		RETURNING ` + transactionColumns
	return scanTransaction(r.db.QueryRow(ctx, query, id, providerTxID))
}

// Close moves a PENDING transaction to FAILED or CANCELLED.
func (r *TransactionRepository) Close(ctx context.Context, id string, status string, providerTxID *string, reason *string) (*models.Transaction, error) {
	query := `
		UPDATE transactions
		SET status = $2,
			provider_tx_id = COALESCE($3, provider_tx_id),
			failure_reason = $4,
			updated_at = NOW()
		WHERE id = $1::uuid AND status = 'PENDING'
		RETURNING ` + transactionColumns
	return scanTransaction(r.db.QueryRow(ctx, query, id, status, providerTxID, reason))
}

// BackfillProviderTxID only fills an empty provider reference; terminal rows are
// otherwise immutable.
func (r *TransactionRepository) BackfillProviderTxID(ctx context.Context, id string, providerTxID string) error {
	query := `
		UPDATE transactions
		SET provider_tx_id = $2, updated_at = NOW()
		WHERE id = $1::uuid AND provider_tx_id IS NULL
	`
	_, err := r.db.Exec(ctx, query, id, providerTxID)
	return err
}
