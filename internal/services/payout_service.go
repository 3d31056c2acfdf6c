package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/afroboost/Tribeat-v4-sub000/internal/database"
	"github.com/afroboost/Tribeat-v4-sub000/internal/ledger"
	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/providers"
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

const maxFailureReason = 500

type PayoutService struct {
	db        txPool
	ledger    *ledger.Service
	transfers providers.TransferClient
	anomalies anomalyRecorder
	notifier  Notifier
	logger    *zap.Logger
}

func NewPayoutService(
	db txPool,
	ledgerService *ledger.Service,
	transfers providers.TransferClient,
	anomalies anomalyRecorder,
	notifier Notifier,
	logger *zap.Logger,
) *PayoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayoutService{
		db:        db,
		ledger:    ledgerService,
		transfers: transfers,
		anomalies: anomalies,
		notifier:  notifierOrNoop(notifier),
		logger:    logger,
	}
}

// RequestPayout reserves funds with a negative PAYOUT entry in the same
// transaction that creates the PENDING payout.
func (s *PayoutService) RequestPayout(ctx context.Context, coachID int64, amount int64, currency string) (*models.Payout, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if coachID <= 0 || amount <= 0 || !currencyCode.MatchString(currency) {
		return nil, ErrInvalidInput
	}

	var payout *models.Payout
	err := database.WithTx(ctx, s.db, database.Serializable, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", coachID); err != nil {
			return err
		}

		available, err := s.ledger.AvailableForPayout(ctx, tx, coachID, currency)
		if err != nil {
			return err
		}
		if amount > available {
			return &InsufficientFundsError{Available: available, Requested: amount, Currency: currency}
		}

		payoutRepo := repository.NewPayoutRepository(tx)
		pending, err := payoutRepo.HasPending(ctx, coachID, currency)
		if err != nil {
			return err
		}
		if pending {
			return ErrPayoutInFlight
		}

		payout, err = payoutRepo.Create(ctx, coachID, amount, currency)
		if err != nil {
			return err
		}

		posting, created, err := s.ledger.Post(ctx, tx, models.LedgerEntry{
			Type:     models.LedgerPayout,
			Amount:   -amount,
			Currency: currency,
			UserID:   &coachID,
			PayoutID: &payout.ID,
		})
		if err != nil {
			return err
		}
		if !created {
			return &InconsistencyError{Detail: fmt.Sprintf("payout %d already has a reservation entry", payout.ID)}
		}
		return s.ledger.Apply(ctx, posting)
	})
	if err != nil {
		if database.IsUniqueViolationOn(err, "uq_payouts_one_pending") {
			return nil, ErrPayoutInFlight
		}
		if IsInconsistency(err) {
			s.logger.Error("payout request aborted", zap.Int64("coach_id", coachID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("payout reserved",
		zap.Int64("payout_id", payout.ID),
		zap.Int64("coach_id", coachID),
		zap.Int64("amount", amount),
		zap.String("currency", currency),
	)
	s.notifier.Notify(coachID, NotifyPayoutStatus, payout)
	return payout, nil
}

// ApprovePayout moves a PENDING payout to PROCESSING before any provider call,
// then issues the transfer and the bank payout. Completion only arrives via
// the provider's payout webhook.
func (s *PayoutService) ApprovePayout(ctx context.Context, payoutID int64) (*models.Payout, error) {
	if payoutID <= 0 {
		return nil, ErrInvalidInput
	}

	var payout *models.Payout
	var destination string
	err := database.WithTx(ctx, s.db, database.Serializable, func(tx pgx.Tx) error {
		payoutRepo := repository.NewPayoutRepository(tx)

		current, err := payoutRepo.GetByIDForUpdate(ctx, payoutID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPayoutNotFound
		}
		if err != nil {
			return err
		}
		if current.Status != models.PayoutPending {
			return ErrPayoutNotPending
		}

		if err := s.verifyReservation(ctx, tx, current); err != nil {
			return err
		}

		coach, err := repository.NewUserRepository(tx).GetByID(ctx, current.CoachID)
		if err != nil {
			return err
		}
		if coach.PayoutAccountID == nil || *coach.PayoutAccountID == "" {
			return ErrPayoutAccountMissing
		}
		destination = *coach.PayoutAccountID

		payout, err = payoutRepo.MarkProcessing(ctx, payoutID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPayoutNotPending
		}
		return err
	})
	if err != nil {
		if IsInconsistency(err) {
			s.logger.Error("payout approval aborted", zap.Int64("payout_id", payoutID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("payout approved", zap.Int64("payout_id", payout.ID), zap.Int64("coach_id", payout.CoachID))
	s.notifier.Notify(payout.CoachID, NotifyPayoutStatus, payout)

	if s.transfers == nil {
		return nil, s.failPayout(ctx, payout, "transfer", errors.New("no transfer provider configured"))
	}

	request := providers.TransferRequest{
		PayoutID:           payout.ID,
		Amount:             payout.Amount,
		Currency:           payout.Currency,
		DestinationAccount: destination,
	}

	request.IdempotencyKey = fmt.Sprintf("payout-%d-transfer", payout.ID)
	transferID, err := s.transfers.CreateTransfer(ctx, request)
	if err != nil {
		return nil, s.failPayout(ctx, payout, "transfer", err)
	}
	payoutRepo := repository.NewPayoutRepository(s.db)
	if err := s.trackProviderRef(ctx, payout.ID, "transfer", transferID, func() error {
		return payoutRepo.SetTransferID(ctx, payout.ID, transferID)
	}); err != nil {
		return nil, err
	}

	request.IdempotencyKey = fmt.Sprintf("payout-%d-payout", payout.ID)
	providerPayoutID, err := s.transfers.CreatePayout(ctx, request)
	if err != nil {
		return nil, s.failPayout(ctx, payout, "payout", err)
	}
	if err := s.trackProviderRef(ctx, payout.ID, "payout", providerPayoutID, func() error {
		return payoutRepo.SetProviderPayoutID(ctx, payout.ID, providerPayoutID)
	}); err != nil {
		return nil, err
	}

	return payoutRepo.GetByID(ctx, payout.ID)
}

func (s *PayoutService) verifyReservation(ctx context.Context, db repository.DBTX, payout *models.Payout) error {
	entry, err := s.ledger.PayoutEntry(ctx, db, payout.ID)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		return &InconsistencyError{Detail: fmt.Sprintf("payout %d has no reservation entry", payout.ID)}
	}
	if err != nil {
		return err
	}
	if entry.Type != models.LedgerPayout ||
		entry.Amount != -payout.Amount ||
		entry.UserID == nil || *entry.UserID != payout.CoachID ||
		entry.Currency != payout.Currency {
		return &InconsistencyError{Detail: fmt.Sprintf("payout %d does not match ledger entry %d", payout.ID, entry.ID)}
	}
	return nil
}

// trackProviderRef stores a reference for money the provider already moved.
// When that fails the payout stays PROCESSING without it, so an anomaly is
// left for the operator to reconcile by hand.
func (s *PayoutService) trackProviderRef(ctx context.Context, payoutID int64, step string, ref string, store func() error) error {
	err := store()
	if err == nil {
		return nil
	}
	s.logger.Error("store provider reference",
		zap.Int64("payout_id", payoutID),
		zap.String("step", step),
		zap.String("reference", ref),
		zap.Error(err),
	)
	s.recordAnomaly(context.WithoutCancel(ctx), "payout", AnomalyUntrackedTransfer,
		fmt.Sprintf("payout:%d", payoutID),
		fmt.Sprintf("%s %s succeeded at the provider but was not stored: %v", step, ref, err),
	)
	return err
}

// failPayout records a provider failure. The reservation stays in place until
// someone posts a compensating entry.
func (s *PayoutService) failPayout(ctx context.Context, payout *models.Payout, step string, cause error) error {
	reason := truncateUTF8(fmt.Sprintf("%s_failed: %v", step, cause), maxFailureReason)

	failed, err := repository.NewPayoutRepository(s.db).MarkFailed(ctx, payout.ID, reason)
	if err != nil {
		s.logger.Error("mark payout failed",
			zap.Int64("payout_id", payout.ID),
			zap.String("reason", reason),
			zap.Error(err),
		)
	} else {
		s.notifier.Notify(failed.CoachID, NotifyPayoutStatus, failed)
	}

	s.logger.Error("payout provider call failed",
		zap.Int64("payout_id", payout.ID),
		zap.Int64("coach_id", payout.CoachID),
		zap.String("step", step),
		zap.Error(cause),
	)
	return &ProviderFailureError{Step: step, Err: cause}
}

type ConfirmPayoutInput struct {
	Provider         string
	PayoutID         int64
	ProviderPayoutID string
	Succeeded        bool
	Amount           *int64
	Currency         string
	Reason           string
}

func (in ConfirmPayoutInput) reference() string {
	if in.PayoutID > 0 {
		return fmt.Sprintf("payout:%d", in.PayoutID)
	}
	return "provider_payout:" + in.ProviderPayoutID
}

type ConfirmPayoutResult struct {
	Payout    *models.Payout
	Duplicate bool
	Unknown   bool
}

// ConfirmPayout applies the provider's own payout outcome. Only a PROCESSING
// payout can complete. A repeated outcome for a terminal payout is a duplicate;
// a contradicting one is an inconsistency and changes nothing.
func (s *PayoutService) ConfirmPayout(ctx context.Context, input ConfirmPayoutInput) (*ConfirmPayoutResult, error) {
	var result *ConfirmPayoutResult
	err := database.WithTx(ctx, s.db, database.Serializable, func(tx pgx.Tx) error {
		result = &ConfirmPayoutResult{}
		payoutRepo := repository.NewPayoutRepository(tx)

		var current *models.Payout
		var err error
		switch {
		case input.PayoutID > 0:
			current, err = payoutRepo.GetByIDForUpdate(ctx, input.PayoutID)
		case input.ProviderPayoutID != "":
			current, err = payoutRepo.GetByProviderPayoutIDForUpdate(ctx, input.ProviderPayoutID)
		default:
			return ErrInvalidInput
		}
		if errors.Is(err, pgx.ErrNoRows) {
			result.Unknown = true
			return nil
		}
		if err != nil {
			return err
		}

		if input.ProviderPayoutID != "" && current.StripePayoutID != nil && *current.StripePayoutID != input.ProviderPayoutID {
			return &InconsistencyError{Detail: fmt.Sprintf("payout %d has provider id %s, event carried %s", current.ID, *current.StripePayoutID, input.ProviderPayoutID)}
		}

		if input.Amount != nil && *input.Amount != current.Amount {
			return &InconsistencyError{Detail: fmt.Sprintf("payout %d amount %d, event amount %d", current.ID, current.Amount, *input.Amount)}
		}
		if input.Currency != "" && !strings.EqualFold(input.Currency, current.Currency) {
			return &InconsistencyError{Detail: fmt.Sprintf("payout %d currency %s, event currency %s", current.ID, current.Currency, input.Currency)}
		}

		switch current.Status {
		case models.PayoutCompleted:
			if !input.Succeeded {
				return &InconsistencyError{Detail: fmt.Sprintf("payout %d is completed, provider reports failure", current.ID)}
			}
			result.Duplicate = true
			result.Payout = current
			return nil
		case models.PayoutFailed:
			if input.Succeeded {
				return &InconsistencyError{Detail: fmt.Sprintf("payout %d is failed, provider reports it paid", current.ID)}
			}
			result.Duplicate = true
			result.Payout = current
			return nil
		case models.PayoutPending:
			return &InconsistencyError{Detail: fmt.Sprintf("payout %d confirmed before approval", current.ID)}
		}

		if !input.Succeeded {
			reason := input.Reason
			if reason == "" {
				reason = "provider reported payout failure"
			}
			result.Payout, err = payoutRepo.MarkFailed(ctx, current.ID, reason)
			return err
		}

		if current.StripePayoutID == nil && input.ProviderPayoutID != "" {
			if err := payoutRepo.SetProviderPayoutID(ctx, current.ID, input.ProviderPayoutID); err != nil {
				return err
			}
		}
		completed, err := payoutRepo.MarkCompleted(ctx, current.ID)
		if err != nil {
			return err
		}
		result.Payout = completed

		posting, err := s.ledger.ClearPayout(ctx, tx, completed.ID)
		if errors.Is(err, ledger.ErrEntryNotFound) {
			return &InconsistencyError{Detail: fmt.Sprintf("payout %d has no reservation entry", completed.ID)}
		}
		if err != nil {
			return err
		}
		return s.ledger.Apply(ctx, posting)
	})
	if err != nil {
		if IsInconsistency(err) {
			s.logger.Error("payout confirmation aborted", zap.Int64("payout_id", input.PayoutID), zap.Error(err))
			s.recordAnomaly(ctx, input.Provider, AnomalyInconsistency, input.reference(), err.Error())
		}
		return nil, err
	}

	switch {
	case result.Unknown:
		s.logger.Warn("payout webhook for unknown payout", zap.String("reference", input.reference()))
		s.recordAnomaly(ctx, input.Provider, AnomalyUnknownPayout, input.reference(), "no matching payout")
	case result.Duplicate:
		s.logger.Info("duplicate payout confirmation ignored", zap.Int64("payout_id", input.PayoutID), zap.String("status", result.Payout.Status))
	default:
		s.logger.Info("payout confirmed", zap.Int64("payout_id", result.Payout.ID), zap.String("status", result.Payout.Status))
		s.notifier.Notify(result.Payout.CoachID, NotifyPayoutStatus, result.Payout)
	}
	return result, nil
}

// CompensatePayout releases the reservation of a FAILED payout with a
// PAYOUT_REVERSAL entry. It is an explicit operator action.
func (s *PayoutService) CompensatePayout(ctx context.Context, payoutID int64, note string) (*models.LedgerEntry, error) {
	if payoutID <= 0 {
		return nil, ErrInvalidInput
	}

	var entry models.LedgerEntry
	err := database.WithTx(ctx, s.db, database.Serializable, func(tx pgx.Tx) error {
		current, err := repository.NewPayoutRepository(tx).GetByIDForUpdate(ctx, payoutID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPayoutNotFound
		}
		if err != nil {
			return err
		}
		if current.Status != models.PayoutFailed {
			return ErrPayoutNotFailed
		}

		posting, created, err := s.ledger.Reverse(ctx, tx, payoutID, optionalString(strings.TrimSpace(note)))
		if errors.Is(err, ledger.ErrEntryNotFound) {
			return &InconsistencyError{Detail: fmt.Sprintf("payout %d has no reservation entry", payoutID)}
		}
		if err != nil {
			return err
		}
		if !created {
			return ErrAlreadyCompensated
		}
		if err := s.ledger.Apply(ctx, posting); err != nil {
			return err
		}
		entry = posting.Entry()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payout compensated",
		zap.Int64("payout_id", payoutID),
		zap.Int64("ledger_entry_id", entry.ID),
		zap.Int64("amount", entry.Amount),
	)
	return &entry, nil
}

func (s *PayoutService) ListPayouts(ctx context.Context, coachID int64, limit int) ([]models.Payout, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return repository.NewPayoutRepository(s.db).ListByCoach(ctx, coachID, limit)
}

func (s *PayoutService) recordAnomaly(ctx context.Context, provider, kind string, reference string, detail string) {
	if s.anomalies == nil {
		return
	}
	if _, err := s.anomalies.Create(ctx, provider, kind, &reference, detail); err != nil {
		s.logger.Warn("record webhook anomaly", zap.String("kind", kind), zap.Error(err))
	}
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
