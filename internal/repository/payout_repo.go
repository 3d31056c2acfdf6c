package repository

import (
	"context"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
)

type PayoutRepository struct {
	db DBTX
}

func NewPayoutRepository(db DBTX) *PayoutRepository {
	return &PayoutRepository{db: db}
}

const payoutColumns = `
	id, coach_id, amount, currency, status, stripe_transfer_id, stripe_payout_id,
	approved_at, completed_at, failure_reason, created_at, updated_at`

func scanPayout(row rowScanner) (*models.Payout, error) {
	var payout models.Payout
	err := row.Scan(
		&payout.ID,
		&payout.CoachID,
		&payout.Amount,
		&payout.Currency,
		&payout.Status,
		&payout.StripeTransferID,
		&payout.StripePayoutID,
		&payout.ApprovedAt,
		&payout.CompletedAt,
		&payout.FailureReason,
		&payout.CreatedAt,
		&payout.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *PayoutRepository) Create(ctx context.Context, coachID int64, amount int64, currency string) (*models.Payout, error) {
	query := `
		INSERT INTO payouts (coach_id, amount, currency, status)
		VALUES ($1, $2, $3, 'PENDING')
		RETURNING ` + payoutColumns
	return scanPayout(r.db.QueryRow(ctx, query, coachID, amount, currency))
}

func (r *PayoutRepository) GetByID(ctx context.Context, id int64) (*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`
	return scanPayout(r.db.QueryRow(ctx, query, id))
}

func (r *PayoutRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1 FOR UPDATE`
	return scanPayout(r.db.QueryRow(ctx, query, id))
}

func (r *PayoutRepository) GetByProviderPayoutIDForUpdate(ctx context.Context, providerPayoutID string) (*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE stripe_payout_id = $1 FOR UPDATE`
	return scanPayout(r.db.QueryRow(ctx, query, providerPayoutID))
}

func (r *PayoutRepository) HasPending(ctx context.Context, coachID int64, currency string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM payouts
			WHERE coach_id = $1 AND currency = $2 AND status = 'PENDING'
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, coachID, currency).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PayoutRepository) MarkProcessing(ctx context.Context, id int64) (*models.Payout, error) {
	query := `
		UPDATE payouts
		SET status = 'PROCESSING', approved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + payoutColumns
	return scanPayout(r.db.QueryRow(ctx, query, id))
}

func (r *PayoutRepository) MarkCompleted(ctx context.Context, id int64) (*models.Payout, error) {
	query := `
		UPDATE payouts
		SET status = 'COMPLETED', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'
		RETURNING ` + payoutColumns
	return scanPayout(r.db.QueryRow(ctx, query, id))
}

// MarkFailed accepts PENDING or PROCESSING payouts.
func (r *PayoutRepository) MarkFailed(ctx context.Context, id int64, reason string) (*models.Payout, error) {
	query := `
		UPDATE payouts
		SET status = 'FAILED', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
		RETURNING ` + payoutColumns
	return scanPayout(r.db.QueryRow(ctx, query, id, reason))
}

func (r *PayoutRepository) SetTransferID(ctx context.Context, id int64, transferID string) error {
	query := `UPDATE payouts SET stripe_transfer_id = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, transferID)
	return err
}

func (r *PayoutRepository) SetProviderPayoutID(ctx context.Context, id int64, providerPayoutID string) error {
	query := `UPDATE payouts SET stripe_payout_id = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, providerPayoutID)
	return err
}

func (r *PayoutRepository) ListByCoach(ctx context.Context, coachID int64, limit int) ([]models.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE coach_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, coachID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payouts := make([]models.Payout, 0)
	for rows.Next() {
		payout, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *payout)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payouts, nil
}
