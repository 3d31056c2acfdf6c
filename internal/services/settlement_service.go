package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/afroboost/Tribeat-v4-sub000/internal/database"
	"github.com/afroboost/Tribeat-v4-sub000/internal/ledger"
	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/providers"
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	AnomalyUnknownTransaction = "unknown_transaction"
	AnomalyUnknownPayout      = "unknown_payout"
	AnomalySessionMissing     = "session_missing"
	AnomalyInconsistency      = "inconsistency"
	AnomalyUntrackedTransfer  = "untracked_transfer"
)

type anomalyRecorder interface {
	Create(ctx context.Context, provider, kind string, reference *string, detail string) (*models.WebhookAnomaly, error)
}

// txPool is what services need from *pgxpool.Pool.
type txPool interface {
	database.TxBeginner
	repository.DBTX
}

type SettleInput struct {
	Provider      string
	TransactionID string
	Outcome       string
	ProviderTxID  string
	Amount        *int64
	Currency      string
	Reason        string
}

type SettleResult struct {
	Status         string                 `json:"status"`
	Duplicate      bool                   `json:"duplicate"`
	Unknown        bool                   `json:"unknown"`
	Transaction    *models.Transaction    `json:"transaction,omitempty"`
	Access         *models.UserAccess     `json:"access,omitempty"`
	SessionPayment *models.SessionPayment `json:"session_payment,omitempty"`
}

type SettlementService struct {
	db        txPool
	ledger    *ledger.Service
	settings  settingsReader
	anomalies anomalyRecorder
	notifier  Notifier
	logger    *zap.Logger
}

func NewSettlementService(
	db txPool,
	ledgerService *ledger.Service,
	settings settingsReader,
	anomalies anomalyRecorder,
	notifier Notifier,
	logger *zap.Logger,
) *SettlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementService{
		db:        db,
		ledger:    ledgerService,
		settings:  settings,
		anomalies: anomalies,
		notifier:  notifierOrNoop(notifier),
		logger:    logger,
	}
}

// Settle drives a transaction to its terminal state exactly once. Unknown and
// already-terminal transactions succeed without writing anything.
func (s *SettlementService) Settle(ctx context.Context, input SettleInput) (*SettleResult, error) {
	switch input.Outcome {
	case providers.StatusSuccess, providers.StatusFailed, providers.StatusExpired:
	default:
		return nil, fmt.Errorf("%w: outcome %q", ErrInvalidInput, input.Outcome)
	}

	commission, err := LoadCommission(ctx, s.settings)
	if err != nil {
		return nil, fmt.Errorf("load commission: %w", err)
	}

	if _, err := uuid.Parse(input.TransactionID); err != nil {
		s.recordAnomaly(ctx, input.Provider, AnomalyUnknownTransaction, input.TransactionID, "transaction id is not a uuid")
		return &SettleResult{Unknown: true}, nil
	}

	var result *SettleResult
	err = database.WithTx(ctx, s.db, database.Serializable, func(tx pgx.Tx) error {
		result = &SettleResult{}
		return s.settleInTx(ctx, tx, input, commission, result)
	})
	if err != nil {
		var inconsistency *InconsistencyError
		switch {
		case errors.As(err, &inconsistency):
			s.logger.Error("settlement aborted on inconsistent data",
				zap.String("provider", input.Provider),
				zap.String("transaction_id", input.TransactionID),
				zap.String("provider_tx_id", input.ProviderTxID),
				zap.String("detail", inconsistency.Detail),
			)
			s.recordAnomaly(ctx, input.Provider, AnomalyInconsistency, input.TransactionID, inconsistency.Detail)
		case errors.Is(err, ErrSessionMissing):
			s.logger.Error("settlement aborted: offer session missing",
				zap.String("provider", input.Provider),
				zap.String("transaction_id", input.TransactionID),
			)
			s.recordAnomaly(ctx, input.Provider, AnomalySessionMissing, input.TransactionID, err.Error())
		}
		return nil, err
	}

	switch {
	case result.Unknown:
		s.logger.Warn("webhook for unknown transaction",
			zap.String("provider", input.Provider),
			zap.String("transaction_id", input.TransactionID),
		)
		s.recordAnomaly(ctx, input.Provider, AnomalyUnknownTransaction, input.TransactionID, "no transaction with this id")
	case result.Duplicate:
		s.logger.Info("duplicate settlement ignored",
			zap.String("provider", input.Provider),
			zap.String("transaction_id", input.TransactionID),
			zap.String("status", result.Status),
		)
	default:
		s.logger.Info("transaction settled",
			zap.String("provider", input.Provider),
			zap.String("transaction_id", input.TransactionID),
			zap.String("status", result.Status),
			zap.String("commission_percent", commission.Percent.String()),
			zap.Int64("commission_version", commission.Version),
		)
		if result.Status == models.TransactionCompleted && result.Access != nil {
			s.notifier.Notify(result.Transaction.UserID, NotifyAccessGranted, result.Access)
		}
	}
	return result, nil
}

func (s *SettlementService) settleInTx(ctx context.Context, tx pgx.Tx, input SettleInput, commission Commission, result *SettleResult) error {
	txnRepo := repository.NewTransactionRepository(tx)

	txn, err := txnRepo.GetByIDForUpdate(ctx, input.TransactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		result.Unknown = true
		return nil
	}
	if err != nil {
		return err
	}

	if txn.Terminal() {
		result.Duplicate = true
		result.Status = txn.Status
		result.Transaction = txn
		return nil
	}
	if input.Provider != "" && input.Provider != txn.Provider {
		return &InconsistencyError{Detail: fmt.Sprintf("transaction %s belongs to provider %s, event came from %s", txn.ID, txn.Provider, input.Provider)}
	}

	providerTxID := optionalString(input.ProviderTxID)

	if input.Outcome != providers.StatusSuccess {
		status := models.TransactionFailed
		if input.Outcome == providers.StatusExpired {
			status = models.TransactionCancelled
		}
		closed, err := txnRepo.Close(ctx, txn.ID, status, providerTxID, optionalString(input.Reason))
		if err != nil {
			return err
		}
		result.Status = closed.Status
		result.Transaction = closed
		return nil
	}

	if input.Amount != nil && *input.Amount != txn.Amount {
		return &InconsistencyError{Detail: fmt.Sprintf("transaction %s amount %d, event amount %d", txn.ID, txn.Amount, *input.Amount)}
	}
	if input.Currency != "" && input.Currency != txn.Currency {
		return &InconsistencyError{Detail: fmt.Sprintf("transaction %s currency %s, event currency %s", txn.ID, txn.Currency, input.Currency)}
	}

	completed, err := txnRepo.Complete(ctx, txn.ID, providerTxID)
	if err != nil {
		return err
	}
	result.Status = completed.Status
	result.Transaction = completed

	offer, err := repository.NewOfferRepository(tx).GetByID(ctx, completed.OfferID)
	if err != nil {
		return fmt.Errorf("load offer %d: %w", completed.OfferID, err)
	}

	access, err := s.grantAccess(ctx, tx, completed, offer)
	if err != nil {
		return err
	}
	result.Access = access

	if completed.PromoCodeID != nil {
		if _, _, err := repository.NewPromoRepository(tx).Redeem(ctx, *completed.PromoCodeID, completed.UserID, completed.OfferID, &completed.ID); err != nil {
			return fmt.Errorf("record promo redemption: %w", err)
		}
	}

	if !offer.SessionScoped() {
		return nil
	}

	session, err := repository.NewLiveSessionRepository(tx).GetByID(ctx, *offer.SessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: session %d for offer %d", ErrSessionMissing, *offer.SessionID, offer.ID)
	}
	if err != nil {
		return err
	}

	platformCut, coachCut := commission.Split(completed.Amount)
	payment, _, err := repository.NewSessionPaymentRepository(tx).Create(ctx, repository.CreateSessionPaymentInput{
		SessionID:     session.ID,
		ParticipantID: completed.UserID,
		TransactionID: completed.ID,
		Amount:        completed.Amount,
		PlatformCut:   platformCut,
		CoachCut:      coachCut,
		Currency:      completed.Currency,
	})
	if err != nil {
		return err
	}
	result.SessionPayment = payment

	coachID := session.CoachID
	entries := []models.LedgerEntry{
		{
			Type:          models.LedgerPlatformRevenue,
			Amount:        payment.PlatformCut,
			Currency:      payment.Currency,
			TransactionID: &completed.ID,
		},
		{
			Type:          models.LedgerCoachEarning,
			Amount:        payment.CoachCut,
			Currency:      payment.Currency,
			UserID:        &coachID,
			TransactionID: &completed.ID,
		},
	}
	for _, entry := range entries {
		posting, created, err := s.ledger.Post(ctx, tx, entry)
		if err != nil {
			return fmt.Errorf("post %s: %w", entry.Type, err)
		}
		if !created {
			continue
		}
		if err := s.ledger.Apply(ctx, posting); err != nil {
			return fmt.Errorf("apply %s: %w", entry.Type, err)
		}
	}
	return nil
}

func (s *SettlementService) grantAccess(ctx context.Context, tx pgx.Tx, txn *models.Transaction, offer *models.Offer) (*models.UserAccess, error) {
	accessRepo := repository.NewAccessRepository(tx)

	existing, err := accessRepo.GetByTransactionID(ctx, txn.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	return accessRepo.Create(ctx, repository.CreateAccessInput{
		UserID:        txn.UserID,
		OfferID:       offer.ID,
		SessionID:     offer.SessionID,
		TransactionID: &txn.ID,
	})
}

func (s *SettlementService) recordAnomaly(ctx context.Context, provider, kind, reference, detail string) {
	if s.anomalies == nil {
		return
	}
	if _, err := s.anomalies.Create(ctx, provider, kind, optionalString(reference), detail); err != nil {
		s.logger.Warn("record webhook anomaly", zap.String("kind", kind), zap.Error(err))
	}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
