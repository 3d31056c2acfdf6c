package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/afroboost/Tribeat-v4-sub000/internal/database"
	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	PromoReasonNotFound     = "code not found"
	PromoReasonInactive     = "code inactive"
	PromoReasonNotYetValid  = "code not yet valid"
	PromoReasonExpired      = "code expired"
	PromoReasonWrongSession = "code not valid for this session"
	PromoReasonAlreadyUsed  = "code already used"
	PromoReasonLimitReached = "code redemption limit reached"
)

type PromoValidation struct {
	Valid    bool              `json:"valid"`
	Reason   string            `json:"reason,omitempty"`
	Promo    *models.PromoCode `json:"promo,omitempty"`
	Discount int64             `json:"discount"`
	Final    int64             `json:"final"`
}

type promoStore interface {
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
	HasClaim(ctx context.Context, promoCodeID int64, userID int64) (bool, error)
}

type offerReader interface {
	GetByID(ctx context.Context, offerID int64) (*models.Offer, error)
}

// Discount never exceeds price and never goes negative.
func Discount(promo *models.PromoCode, price int64) int64 {
	if promo == nil || price <= 0 {
		return 0
	}
	switch promo.Kind {
	case models.PromoFullFree:
		return price
	case models.PromoPercent:
		if promo.PercentOff == nil || *promo.PercentOff < 0 || *promo.PercentOff > 100 {
			return 0
		}
		return decimal.NewFromInt(price).
			Mul(decimal.NewFromInt(int64(*promo.PercentOff))).
			Shift(-2).
			Round(0).
			IntPart()
	case models.PromoFixed:
		if promo.AmountOff == nil || *promo.AmountOff <= 0 {
			return 0
		}
		if *promo.AmountOff > price {
			return price
		}
		return *promo.AmountOff
	}
	return 0
}

func invalidPromo(reason string) *PromoValidation {
	return &PromoValidation{Valid: false, Reason: reason}
}

// validatePromo applies the checks in a fixed order and reports the first failure.
func validatePromo(ctx context.Context, store promoStore, code string, userID int64, offer *models.Offer, now time.Time) (*PromoValidation, error) {
	promo, err := store.GetByCode(ctx, strings.TrimSpace(code))
	if errors.Is(err, pgx.ErrNoRows) {
		return invalidPromo(PromoReasonNotFound), nil
	}
	if err != nil {
		return nil, err
	}

	if !promo.IsActive {
		return invalidPromo(PromoReasonInactive), nil
	}
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return invalidPromo(PromoReasonNotYetValid), nil
	}
	if promo.EndsAt != nil && !now.Before(*promo.EndsAt) {
		return invalidPromo(PromoReasonExpired), nil
	}
	if promo.SessionID != nil && (offer.SessionID == nil || *offer.SessionID != *promo.SessionID) {
		return invalidPromo(PromoReasonWrongSession), nil
	}

	used, err := store.HasClaim(ctx, promo.ID, userID)
	if err != nil {
		return nil, err
	}
	if used {
		return invalidPromo(PromoReasonAlreadyUsed), nil
	}
	if promo.MaxRedemptions != nil && promo.RedemptionCount >= *promo.MaxRedemptions {
		return invalidPromo(PromoReasonLimitReached), nil
	}

	discount := Discount(promo, offer.PriceCents)
	return &PromoValidation{
		Valid:    true,
		Promo:    promo,
		Discount: discount,
		Final:    offer.PriceCents - discount,
	}, nil
}

type PromoService struct {
	db        txPool
	promoRepo promoStore
	offerRepo offerReader
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewPromoService(
	db txPool,
	promoRepo promoStore,
	offerRepo offerReader,
	notifier Notifier,
	logger *zap.Logger,
) *PromoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromoService{
		db:        db,
		promoRepo: promoRepo,
		offerRepo: offerRepo,
		notifier:  notifierOrNoop(notifier),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *PromoService) Validate(ctx context.Context, code string, userID int64, offerID int64) (*PromoValidation, error) {
	if strings.TrimSpace(code) == "" || offerID <= 0 {
		return nil, ErrInvalidInput
	}
	offer, err := s.loadOffer(ctx, s.offerRepo, offerID)
	if err != nil {
		return nil, err
	}
	return validatePromo(ctx, s.promoRepo, code, userID, offer, s.now())
}

// Redeem applies a FULL_FREE code: one redemption row and one access grant,
// no transaction and no ledger rows.
func (s *PromoService) Redeem(ctx context.Context, code string, userID int64, offerID int64) (*models.UserAccess, error) {
	if strings.TrimSpace(code) == "" || offerID <= 0 {
		return nil, ErrInvalidInput
	}

	var access *models.UserAccess
	err := database.WithTx(ctx, s.db, database.Serializable, func(tx pgx.Tx) error {
		promoRepo := repository.NewPromoRepository(tx)

		offer, err := s.loadOffer(ctx, repository.NewOfferRepository(tx), offerID)
		if err != nil {
			return err
		}

		if _, err := promoRepo.GetByCodeForUpdate(ctx, strings.TrimSpace(code)); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		validation, err := validatePromo(ctx, promoRepo, code, userID, offer, s.now())
		if err != nil {
			return err
		}
		if !validation.Valid {
			return &PromoInvalidError{Reason: validation.Reason}
		}
		if validation.Promo.Kind != models.PromoFullFree {
			return ErrPromoRequiresPayment
		}

		redemption, created, err := promoRepo.Redeem(ctx, validation.Promo.ID, userID, offer.ID, nil)
		if err != nil {
			return err
		}
		if !created {
			return &PromoInvalidError{Reason: PromoReasonAlreadyUsed}
		}

		access, err = repository.NewAccessRepository(tx).Create(ctx, repository.CreateAccessInput{
			UserID:            userID,
			OfferID:           offer.ID,
			SessionID:         offer.SessionID,
			PromoRedemptionID: &redemption.ID,
		})
		return err
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, &PromoInvalidError{Reason: PromoReasonAlreadyUsed}
		}
		return nil, err
	}

	s.logger.Info("promo redeemed",
		zap.Int64("user_id", userID),
		zap.Int64("offer_id", offerID),
		zap.Int64("access_id", access.ID),
	)
	s.notifier.Notify(userID, NotifyAccessGranted, access)
	return access, nil
}

func (s *PromoService) loadOffer(ctx context.Context, offers offerReader, offerID int64) (*models.Offer, error) {
	offer, err := offers.GetByID(ctx, offerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	if !offer.IsActive {
		return nil, ErrOfferNotFound
	}
	return offer, nil
}
