package repository

import (
	"context"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
)

type CreateOfferInput struct {
	Title      string
	PriceCents int64
	Currency   string
	SessionID  *int64
}

type OfferRepository struct {
	db DBTX
}

func NewOfferRepository(db DBTX) *OfferRepository {
	return &OfferRepository{db: db}
}

const offerColumns = `id, title, price_cents, currency, session_id, is_active, created_at`

func scanOffer(row rowScanner) (*models.Offer, error) {
	var offer models.Offer
	err := row.Scan(
		&offer.ID,
		&offer.Title,
		&offer.PriceCents,
		&offer.Currency,
		&offer.SessionID,
		&offer.IsActive,
		&offer.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *OfferRepository) Create(ctx context.Context, input CreateOfferInput) (*models.Offer, error) {
	query := `
		INSERT INTO offers (title, price_cents, currency, session_id)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + offerColumns
	return scanOffer(r.db.QueryRow(ctx, query, input.Title, input.PriceCents, input.Currency, input.SessionID))
}

func (r *OfferRepository) GetByID(ctx context.Context, offerID int64) (*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	return scanOffer(r.db.QueryRow(ctx, query, offerID))
}
