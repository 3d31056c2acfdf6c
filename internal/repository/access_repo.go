package repository

import (
	"context"
	"time"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
)

type CreateAccessInput struct {
	UserID            int64
	OfferID           int64
	SessionID         *int64
	TransactionID     *string
	PromoRedemptionID *int64
	ExpiresAt         *time.Time
}

type AccessRepository struct {
	db DBTX
}

func NewAccessRepository(db DBTX) *AccessRepository {
	return &AccessRepository{db: db}
}

const accessColumns = `
	id, user_id, offer_id, session_id, transaction_id::text, promo_redemption_id,
	status, granted_at, expires_at`

func scanAccess(row rowScanner) (*models.UserAccess, error) {
	var access models.UserAccess
	err := row.Scan(
		&access.ID,
		&access.UserID,
		&access.OfferID,
		&access.SessionID,
		&access.TransactionID,
		&access.PromoRedemptionID,
		&access.Status,
		&access.GrantedAt,
		&access.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &access, nil
}

func (r *AccessRepository) Create(ctx context.Context, input CreateAccessInput) (*models.UserAccess, error) {
	query := `
		INSERT INTO user_access (user_id, offer_id, session_id, transaction_id, promo_redemption_id, status, expires_at)
		VALUES ($1, $2, $3, $4::uuid, $5, 'ACTIVE', $6)
		RETURNING ` + accessColumns
	return scanAccess(r.db.QueryRow(
		ctx,
		query,
		input.UserID,
		input.OfferID,
		input.SessionID,
		input.TransactionID,
		input.PromoRedemptionID,
		input.ExpiresAt,
	))
}

func (r *AccessRepository) GetByID(ctx context.Context, id int64) (*models.UserAccess, error) {
	query := `SELECT ` + accessColumns + ` FROM user_access WHERE id = $1`
	return scanAccess(r.db.QueryRow(ctx, query, id))
}

func (r *AccessRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.UserAccess, error) {
	query := `SELECT ` + accessColumns + ` FROM user_access WHERE transaction_id = $1::uuid`
	return scanAccess(r.db.QueryRow(ctx, query, transactionID))
}

// ListForUserSession returns grants scoped to the session plus global grants.
func (r *AccessRepository) ListForUserSession(ctx context.Context, userID int64, sessionID int64) ([]models.UserAccess, error) {
	query := `
		SELECT ` + accessColumns + `
		FROM user_access
		WHERE user_id = $1 AND (session_id = $2 OR session_id IS NULL)
		ORDER BY granted_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accesses := make([]models.UserAccess, 0)
	for rows.Next() {
		access, err := scanAccess(rows)
		if err != nil {
			return nil, err
		}
		accesses = append(accesses, *access)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accesses, nil
}

func (r *AccessRepository) UpdateStatusIfCurrent(ctx context.Context, id int64, currentStatus string, nextStatus string) (*models.UserAccess, error) {
	query := `
		UPDATE user_access
		SET status = $3
		WHERE id = $1 AND status = $2
		RETURNING ` + accessColumns
	return scanAccess(r.db.QueryRow(ctx, query, id, currentStatus, nextStatus))
}
