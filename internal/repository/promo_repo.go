package repository

import (
	"context"
	"errors"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

type PromoRepository struct {
	db DBTX
}

func NewPromoRepository(db DBTX) *PromoRepository {
	return &PromoRepository{db: db}
}

const promoColumns = `
	id, code, kind, percent_off, amount_off, session_id, is_active, starts_at, ends_at,
	max_redemptions, redemption_count, created_at`

const redemptionColumns = `id, promo_code_id, user_id, offer_id, transaction_id::text, redeemed_at`

func scanPromo(row rowScanner) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := row.Scan(
		&promo.ID,
		&promo.Code,
		&promo.Kind,
		&promo.PercentOff,
		&promo.AmountOff,
		&promo.SessionID,
		&promo.IsActive,
		&promo.StartsAt,
		&promo.EndsAt,
		&promo.MaxRedemptions,
		&promo.RedemptionCount,
		&promo.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func scanRedemption(row rowScanner) (*models.PromoRedemption, error) {
	var redemption models.PromoRedemption
	err := row.Scan(
		&redemption.ID,
		&redemption.PromoCodeID,
		&redemption.UserID,
		&redemption.OfferID,
		&redemption.TransactionID,
		&redemption.RedeemedAt,
	)
	if err != nil {
		return nil, err
	}
	return &redemption, nil
}

type CreatePromoInput struct {
	Code           string
	Kind           string
	PercentOff     *int
	AmountOff      *int64
	SessionID      *int64
	MaxRedemptions *int
}

func (r *PromoRepository) Create(ctx context.Context, input CreatePromoInput) (*models.PromoCode, error) {
	query := `
		INSERT INTO promo_codes (code, kind, percent_off, amount_off, session_id, max_redemptions)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + promoColumns
	return scanPromo(r.db.QueryRow(
		ctx,
		query,
		input.Code,
		input.Kind,
		input.PercentOff,
		input.AmountOff,
		input.SessionID,
		input.MaxRedemptions,
	))
}

func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	query := `SELECT ` + promoColumns + ` FROM promo_codes WHERE code = $1`
	return scanPromo(r.db.QueryRow(ctx, query, code))
}

func (r *PromoRepository) GetByCodeForUpdate(ctx context.Context, code string) (*models.PromoCode, error) {
	query := `SELECT ` + promoColumns + ` FROM promo_codes WHERE code = $1 FOR UPDATE`
	return scanPromo(r.db.QueryRow(ctx, query, code))
}

// HasClaim reports whether the user redeemed the code or holds it on an open
// or paid checkout.
func (r *PromoRepository) HasClaim(ctx context.Context, promoCodeID int64, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM promo_redemptions WHERE promo_code_id = $1 AND user_id = $2)
			OR EXISTS (
				SELECT 1 FROM transactions
				WHERE promo_code_id = $1 AND user_id = $2 AND status IN ('PENDING', 'COMPLETED')
			)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, promoCodeID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Redeem records a one-shot redemption and bumps the usage counter. created is
// false when the user already redeemed this code; the counter is untouched then.
func (r *PromoRepository) Redeem(ctx context.Context, promoCodeID int64, userID int64, offerID int64, transactionID *string) (*models.PromoRedemption, bool, error) {
	query := `
		INSERT INTO promo_redemptions (promo_code_id, user_id, offer_id, transaction_id)
		VALUES ($1, $2, $3, $4::uuid)
		ON CONFLICT (promo_code_id, user_id) DO NOTHING
		RETURNING ` + redemptionColumns
	redemption, err := scanRedemption(r.db.QueryRow(ctx, query, promoCodeID, userID, offerID, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	_, err = r.db.Exec(ctx, `UPDATE promo_codes SET redemption_count = redemption_count + 1 WHERE id = $1`, promoCodeID)
	if err != nil {
		return nil, false, err
	}
	return redemption, true, nil
}
