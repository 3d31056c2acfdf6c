package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/afroboost/Tribeat-v4-sub000/internal/database"
	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/providers"
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type StartCheckoutInput struct {
	OfferID   int64
	Provider  string
	PromoCode string
}

type CheckoutResult struct {
	Reference    string             `json:"reference,omitempty"`
	URL          string             `json:"url,omitempty"`
	Instructions map[string]string  `json:"instructions,omitempty"`
	Amount       int64              `json:"amount"`
	Currency     string             `json:"currency"`
	Free         bool               `json:"free,omitempty"`
	Access       *models.UserAccess `json:"access,omitempty"`
}

type transactionStore interface {
	Create(ctx context.Context, input repository.CreateTransactionInput) (*models.Transaction, error)
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	BackfillProviderTxID(ctx context.Context, id string, providerTxID string) error
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type settler interface {
	Settle(ctx context.Context, input SettleInput) (*SettleResult, error)
}

type CheckoutService struct {
	registry   *providers.Registry
	txnRepo    transactionStore
	offerRepo  offerReader
	userRepo   userReader
	promos     *PromoService
	settlement settler
	logger     *zap.Logger
}

func NewCheckoutService(
	registry *providers.Registry,
	txnRepo transactionStore,
	offerRepo offerReader,
	userRepo userReader,
	promos *PromoService,
	settlement settler,
	logger *zap.Logger,
) *CheckoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutService{
		registry:   registry,
		txnRepo:    txnRepo,
		offerRepo:  offerRepo,
		userRepo:   userRepo,
		promos:     promos,
		settlement: settlement,
		logger:     logger,
	}
}

// StartCheckout opens a PENDING transaction and asks the provider for a
// redirect or payment instructions. A FULL_FREE promo grants access directly.
func (s *CheckoutService) StartCheckout(ctx context.Context, userID int64, input StartCheckoutInput) (*CheckoutResult, error) {
	if input.OfferID <= 0 {
		return nil, ErrInvalidInput
	}

	offer, err := s.offerRepo.GetByID(ctx, input.OfferID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	if !offer.IsActive {
		return nil, ErrOfferNotFound
	}

	amount := offer.PriceCents
	var promoCodeID *int64
	if code := strings.TrimSpace(input.PromoCode); code != "" && s.promos != nil {
		validation, err := s.promos.Validate(ctx, code, userID, offer.ID)
		if err != nil {
			return nil, err
		}
		if !validation.Valid {
			return nil, &PromoInvalidError{Reason: validation.Reason}
		}
		if validation.Promo.Kind == models.PromoFullFree {
			access, err := s.promos.Redeem(ctx, code, userID, offer.ID)
			if err != nil {
				return nil, err
			}
			return &CheckoutResult{Currency: offer.Currency, Free: true, Access: access}, nil
		}
		if validation.Final <= 0 {
			return nil, fmt.Errorf("%w: discount leaves nothing to pay", ErrInvalidInput)
		}
		amount = validation.Final
		promoCodeID = &validation.Promo.ID
	}

	adapter, ok := s.registry.Get(input.Provider)
	if !ok || !adapter.Enabled() {
		return nil, ErrProviderUnavailable
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}

	txn, err := s.txnRepo.Create(ctx, repository.CreateTransactionInput{
		ID:          uuid.NewString(),
		UserID:      userID,
		OfferID:     offer.ID,
		Amount:      amount,
		Currency:    offer.Currency,
		Provider:    adapter.Name(),
		PromoCodeID: promoCodeID,
	})
	if database.IsUniqueViolationOn(err, repository.PromoClaimIndex) {
		return nil, &PromoInvalidError{Reason: PromoReasonAlreadyUsed}
	}
	if err != nil {
		return nil, err
	}

	intent, err := adapter.CreatePayment(ctx, providers.PaymentRequest{
		TransactionID: txn.ID,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		CustomerEmail: user.Email,
		Description:   offer.Title,
	})
	if err != nil {
		s.logger.Warn("checkout provider call failed",
			zap.String("provider", adapter.Name()),
			zap.String("transaction_id", txn.ID),
			zap.Error(err),
		)
		if _, settleErr := s.settlement.Settle(ctx, SettleInput{
			Provider:      adapter.Name(),
			TransactionID: txn.ID,
			Outcome:       providers.StatusFailed,
			Reason:        "checkout provider error",
		}); settleErr != nil {
			s.logger.Error("close failed checkout", zap.String("transaction_id", txn.ID), zap.Error(settleErr))
		}
		return nil, &ProviderFailureError{Step: "checkout", Err: err}
	}

	if intent.ProviderTxID != "" {
		if err := s.txnRepo.BackfillProviderTxID(ctx, txn.ID, intent.ProviderTxID); err != nil {
			s.logger.Warn("store provider reference", zap.String("transaction_id", txn.ID), zap.Error(err))
		}
	}

	s.logger.Info("checkout started",
		zap.String("provider", adapter.Name()),
		zap.String("transaction_id", txn.ID),
		zap.Int64("amount", txn.Amount),
		zap.String("currency", txn.Currency),
	)
	return &CheckoutResult{
		Reference:    txn.ID,
		URL:          intent.RedirectURL,
		Instructions: intent.Instructions,
		Amount:       txn.Amount,
		Currency:     txn.Currency,
	}, nil
}

// GetTransaction returns a transaction to its owner or to an admin.
func (s *CheckoutService) GetTransaction(ctx context.Context, actorID int64, role string, id string) (*models.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTransactionNotFound
	}
	txn, err := s.txnRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin && txn.UserID != actorID {
		return nil, ErrForbidden
	}
	return txn, nil
}
