package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/afroboost/Tribeat-v4-sub000/internal/database"
	"github.com/afroboost/Tribeat-v4-sub000/internal/ledger"
	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/providers"
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

type fakeTransfers struct {
	mu          sync.Mutex
	transferErr error
	payoutErr   error
	keys        []string
}

func (f *fakeTransfers) CreateTransfer(_ context.Context, req providers.TransferRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, req.IdempotencyKey)
	if f.transferErr != nil {
		return "", f.transferErr
	}
	return fmt.Sprintf("tr_%d", req.PayoutID), nil
}

func (f *fakeTransfers) CreatePayout(_ context.Context, req providers.TransferRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, req.IdempotencyKey)
	if f.payoutErr != nil {
		return "", f.payoutErr
	}
	return fmt.Sprintf("po_%d_%d", req.PayoutID, time.Now().UnixNano()), nil
}

type paymentsEnv struct {
	pool       *pgxpool.Pool
	ledger     *ledger.Service
	settlement *SettlementService
	payouts    *PayoutService
	promos     *PromoService
	wallets    *WalletService
	transfers  *fakeTransfers
}

func newPaymentsEnv(t *testing.T) *paymentsEnv {
	t.Helper()
	pool := integrationTestPool(t)

	settings := repository.NewSettingsRepository(pool)
	if _, err := settings.Set(context.Background(), repository.SettingCommissionPercent, "20"); err != nil {
		t.Fatalf("set commission: %v", err)
	}

	ledgerService := ledger.NewService(nil)
	anomalies := repository.NewAnomalyRepository(pool)
	transfers := &fakeTransfers{}
	return &paymentsEnv{
		pool:       pool,
		ledger:     ledgerService,
		settlement: NewSettlementService(pool, ledgerService, settings, anomalies, nil, nil),
		payouts:    NewPayoutService(pool, ledgerService, transfers, anomalies, nil, nil),
		promos:     NewPromoService(pool, repository.NewPromoRepository(pool), repository.NewOfferRepository(pool), nil, nil),
		wallets:    NewWalletService(pool, ledgerService, nil),
		transfers:  transfers,
	}
}

func (e *paymentsEnv) createUser(t *testing.T, role string) *models.User {
	t.Helper()
	account := "acct_" + uuid.NewString()[:8]
	user := &models.User{
		Email:              fmt.Sprintf("payments-%s-%s@example.com", role, uuid.NewString()),
		Role:               role,
		SubscriptionActive: role == models.RoleCoach,
		PayoutAccountID:    &account,
	}
	if err := repository.NewUserRepository(e.pool).CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser(%s): %v", role, err)
	}
	return user
}

func (e *paymentsEnv) createSessionOffer(t *testing.T, coachID int64, price int64) *models.Offer {
	t.Helper()
	ctx := context.Background()
	session, err := repository.NewLiveSessionRepository(e.pool).Create(ctx, repository.CreateLiveSessionInput{
		CoachID:  coachID,
		Title:    "Evening flow",
		Status:   models.LiveSessionScheduled,
		StartsAt: time.Now().Add(48 * time.Hour).UTC(),
	})
	require.NoError(t, err)

	offer, err := repository.NewOfferRepository(e.pool).Create(ctx, repository.CreateOfferInput{
		Title:      "Evening flow ticket",
		PriceCents: price,
		Currency:   "EUR",
		SessionID:  &session.ID,
	})
	require.NoError(t, err)
	return offer
}

func (e *paymentsEnv) openTransaction(t *testing.T, userID int64, offer *models.Offer) *models.Transaction {
	t.Helper()
	txn, err := repository.NewTransactionRepository(e.pool).Create(context.Background(), repository.CreateTransactionInput{
		ID:       uuid.NewString(),
		UserID:   userID,
		OfferID:  offer.ID,
		Amount:   offer.PriceCents,
		Currency: offer.Currency,
		Provider: providers.StripeName,
	})
	require.NoError(t, err)
	return txn
}

// earn settles one purchase of price for the coach and returns the coach cut.
func (e *paymentsEnv) earn(t *testing.T, coachID int64, price int64) int64 {
	t.Helper()
	buyer := e.createUser(t, models.RoleUser)
	offer := e.createSessionOffer(t, coachID, price)
	txn := e.openTransaction(t, buyer.ID, offer)

	result, err := e.settlement.Settle(context.Background(), SettleInput{
		Provider:      providers.StripeName,
		TransactionID: txn.ID,
		Outcome:       providers.StatusSuccess,
		ProviderTxID:  "pi_" + txn.ID[:8],
	})
	require.NoError(t, err)
	require.NotNil(t, result.SessionPayment)
	return result.SessionPayment.CoachCut
}

func (e *paymentsEnv) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.pool.QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}

func TestSettleSessionPurchaseIsIdempotent(t *testing.T) {
	env := newPaymentsEnv(t)
	ctx := context.Background()

	coach := env.createUser(t, models.RoleCoach)
	buyer := env.createUser(t, models.RoleUser)
	offer := env.createSessionOffer(t, coach.ID, 5000)
	txn := env.openTransaction(t, buyer.ID, offer)
	amount := int64(5000)

	input := SettleInput{
		Provider:      providers.StripeName,
		TransactionID: txn.ID,
		Outcome:       providers.StatusSuccess,
		ProviderTxID:  "pi_scenario",
		Amount:        &amount,
		Currency:      "EUR",
	}

	first, err := env.settlement.Settle(ctx, input)
	require.NoError(t, err)
	require.Equal(t, models.TransactionCompleted, first.Status)
	require.False(t, first.Duplicate)
	require.NotNil(t, first.Access)
	require.Equal(t, models.AccessActive, first.Access.Status)
	require.EqualValues(t, 5000, first.SessionPayment.Amount)
	require.EqualValues(t, 1000, first.SessionPayment.PlatformCut)
	require.EqualValues(t, 4000, first.SessionPayment.CoachCut)

	entries, err := env.ledger.EntriesForTransaction(ctx, env.pool, txn.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	byType := map[string]models.LedgerEntry{}
	for _, entry := range entries {
		byType[entry.Type] = entry
	}
	require.EqualValues(t, 1000, byType[models.LedgerPlatformRevenue].Amount)
	require.Nil(t, byType[models.LedgerPlatformRevenue].UserID)
	require.EqualValues(t, 4000, byType[models.LedgerCoachEarning].Amount)
	require.Equal(t, coach.ID, *byType[models.LedgerCoachEarning].UserID)

	second, err := env.settlement.Settle(ctx, input)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, models.TransactionCompleted, second.Status)

	require.Equal(t, 1, env.count(t, `SELECT COUNT(*) FROM session_payments WHERE transaction_id = $1::uuid`, txn.ID))
	require.Equal(t, 2, env.count(t, `SELECT COUNT(*) FROM ledger_entries WHERE transaction_id = $1::uuid`, txn.ID))
	require.Equal(t, 1, env.count(t, `SELECT COUNT(*) FROM user_access WHERE transaction_id = $1::uuid`, txn.ID))

	wallet, err := env.wallets.CoachWallet(ctx, coach.ID)
	require.NoError(t, err)
	require.Len(t, wallet, 1)
	require.True(t, wallet[0].InSync)
	require.EqualValues(t, 4000, wallet[0].Mirror.Available)
	require.EqualValues(t, 4000, wallet[0].Mirror.TotalEarned)
}

func TestSettleUnknownTransactionIsNoop(t *testing.T) {
	env := newPaymentsEnv(t)

	result, err := env.settlement.Settle(context.Background(), SettleInput{
		Provider:      providers.StripeName,
		TransactionID: uuid.NewString(),
		Outcome:       providers.StatusSuccess,
	})
	require.NoError(t, err)
	require.True(t, result.Unknown)

	result, err = env.settlement.Settle(context.Background(), SettleInput{
		Provider:      providers.StripeName,
		TransactionID: "cs_not_ours",
		Outcome:       providers.StatusSuccess,
	})
	require.NoError(t, err)
	require.True(t, result.Unknown)
}

func TestSettleAmountMismatchAbortsEverything(t *testing.T) {
	env := newPaymentsEnv(t)
	ctx := context.Background()

	coach := env.createUser(t, models.RoleCoach)
	buyer := env.createUser(t, models.RoleUser)
	offer := env.createSessionOffer(t, coach.ID, 5000)
	txn := env.openTransaction(t, buyer.ID, offer)
	tampered := int64(500)

	_, err := env.settlement.Settle(ctx, SettleInput{
		Provider:      providers.StripeName,
		TransactionID: txn.ID,
		Outcome:       providers.StatusSuccess,
		Amount:        &tampered,
	})
	require.True(t, IsInconsistency(err))

	stored, err := repository.NewTransactionRepository(env.pool).GetByID(ctx, txn.ID)
	require.NoError(t, err)
	require.Equal(t, models.TransactionPending, stored.Status)
	require.EqualValues(t, 5000, stored.Amount)
	require.Equal(t, 0, env.count(t, `SELECT COUNT(*) FROM ledger_entries WHERE transaction_id = $1::uuid`, txn.ID))
	require.Equal(t, 0, env.count(t, `SELECT COUNT(*) FROM user_access WHERE transaction_id = $1::uuid`, txn.ID))
}

func TestSettleFailureAndExpiry(t *testing.T) {
	env := newPaymentsEnv(t)
	ctx := context.Background()

	coach := env.createUser(t, models.RoleCoach)
	buyer := env.createUser(t, models.RoleUser)
	offer := env.createSessionOffer(t, coach.ID, 5000)

	failed := env.openTransaction(t, buyer.ID, offer)
	result, err := env.settlement.Settle(ctx, SettleInput{Provider: providers.StripeName, TransactionID: failed.ID, Outcome: providers.StatusFailed, Reason: "card declined"})
	require.NoError(t, err)
	require.Equal(t, models.TransactionFailed, result.Status)

	// a late success for a failed transaction changes nothing
	result, err = env.settlement.Settle(ctx, SettleInput{Provider: providers.StripeName, TransactionID: failed.ID, Outcome: providers.StatusSuccess})
	require.NoError(t, err)
	require.True(t, result.Duplicate)
	require.Equal(t, models.TransactionFailed, result.Status)

	expired := env.openTransaction(t, buyer.ID, offer)
	result, err = env.settlement.Settle(ctx, SettleInput{Provider: providers.StripeName, TransactionID: expired.ID, Outcome: providers.StatusExpired})
	require.NoError(t, err)
	require.Equal(t, models.TransactionCancelled, result.Status)
	require.Equal(t, 0, env.count(t, `SELECT COUNT(*) FROM user_access WHERE transaction_id IN ($1::uuid, $2::uuid)`, failed.ID, expired.ID))
}

func TestRequestPayoutInsufficientFunds(t *testing.T) {
	env := newPaymentsEnv(t)
	ctx := context.Background()

	coach := env.createUser(t, models.RoleCoach)
	require.EqualValues(t, 4000, env.earn(t, coach.ID, 5000))

	_, err := env.payouts.RequestPayout(ctx, coach.ID, 5000, "EUR")
	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.EqualValues(t, 4000, insufficient.Available)
	require.EqualValues(t, 5000, insufficient.Requested)
	require.Equal(t, 0, env.count(t, `SELECT COUNT(*) FROM payouts WHERE coach_id = $1`, coach.ID))
}

func TestConcurrentPayoutRequestsCannotDoubleSpend(t *testing.T) {
	env := newPaymentsEnv(t)
	coach := env.createUser(t, models.RoleCoach)
	env.earn(t, coach.ID, 5000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.payouts.RequestPayout(context.Background(), coach.ID, 3000, "EUR")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	rejected := 0
	for _, err := range errs {
		var insufficient *InsufficientFundsError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &insufficient):
			rejected++
			require.EqualValues(t, 1000, insufficient.Available)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, rejected)
	require.Equal(t, 1, env.count(t, `SELECT COUNT(*) FROM payouts WHERE coach_id = $1`, coach.ID))
}

func TestPayoutLifecycleKeepsLedgerAndMirrorAligned(t *testing.T) {
	env := newPaymentsEnv(t)
	ctx := context.Background()

	coach := env.createUser(t, models.RoleCoach)
	earned := env.earn(t, coach.ID, 5000) + env.earn(t, coach.ID, 2500)
	require.EqualValues(t, 6000, earned)

	payout, err := env.payouts.RequestPayout(ctx, coach.ID, 1500, "eur")
	require.NoError(t, err)
	require.Equal(t, models.PayoutPending, payout.Status)

	_, err = env.payouts.RequestPayout(ctx, coach.ID, 100, "EUR")
	require.ErrorIs(t, err, ErrPayoutInFlight)

	wallet, err := env.wallets.CoachWallet(ctx, coach.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4500, wallet[0].Mirror.Available)
	require.EqualValues(t, 1500, wallet[0].Mirror.Pending)
	require.True(t, wallet[0].InSync)

	approved, err := env.payouts.ApprovePayout(ctx, payout.ID)
	require.NoError(t, err)
	require.Equal(t, models.PayoutProcessing, approved.Status)
	require.NotNil(t, approved.StripeTransferID)
	require.NotNil(t, approved.StripePayoutID)
	require.Contains(t, env.transfers.keys, fmt.Sprintf("payout-%d-transfer", payout.ID))
	require.Contains(t, env.transfers.keys, fmt.Sprintf("payout-%d-payout", payout.ID))

	_, err = env.payouts.ApprovePayout(ctx, payout.ID)
	require.ErrorIs(t, err, ErrPayoutNotPending)

	confirmed, err := env.payouts.ConfirmPayout(ctx, ConfirmPayoutInput{
		Provider:         providers.StripeName,
		PayoutID:         payout.ID,
		ProviderPayoutID: *approved.StripePayoutID,
		Succeeded:        true,
	})
	require.NoError(t, err)
	require.Equal(t, models.PayoutCompleted, confirmed.Payout.Status)

	again, err := env.payouts.ConfirmPayout(ctx, ConfirmPayoutInput{
		Provider:         providers.StripeName,
		ProviderPayoutID: *approved.StripePayoutID,
		Succeeded:        true,
	})
	require.NoError(t, err)
	require.True(t, again.Duplicate)
	require.Equal(t, payout.ID, again.Payout.ID)

	stray, err := env.payouts.ConfirmPayout(ctx, ConfirmPayoutInput{
		Provider:         providers.StripeName,
		ProviderPayoutID: fmt.Sprintf("po_unknown_%d", time.Now().UnixNano()),
		Succeeded:        true,
	})
	require.NoError(t, err)
	require.True(t, stray.Unknown)

	balance, err := env.ledger.Balance(ctx, env.pool, &coach.ID, "EUR")
	require.NoError(t, err)
	var earnings, debits int64
	require.NoError(t, env.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = 'COACH_EARNING'), 0)::bigint,
			COALESCE(SUM(-amount) FILTER (WHERE type = 'PAYOUT'), 0)::bigint
		FROM ledger_entries WHERE user_id = $1 AND currency = 'EUR'`, coach.ID).Scan(&earnings, &debits))
	require.Equal(t, earnings-debits, balance)
	require.EqualValues(t, 4500, balance)

	wallet, err = env.wallets.CoachWallet(ctx, coach.ID)
	require.NoError(t, err)
	require.True(t, wallet[0].InSync)
	require.EqualValues(t, 4500, wallet[0].Mirror.Available)
	require.EqualValues(t, 0, wallet[0].Mirror.Pending)
	require.EqualValues(t, 6000, wallet[0].Mirror.TotalEarned)
}

func TestFailedPayoutNeedsExplicitCompensation(t *testing.T) {
	env := newPaymentsEnv(t)
	ctx := context.Background()

	coach := env.createUser(t, models.RoleCoach)
	env.earn(t, coach.ID, 5000)

	payout, err := env.payouts.RequestPayout(ctx, coach.ID, 4000, "EUR")
	require.NoError(t, err)

	env.transfers.transferErr = errors.New("platform balance too low")
	defer func() { env.transfers.transferErr = nil }()

	_, err = env.payouts.ApprovePayout(ctx, payout.ID)
	var providerErr *ProviderFailureError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, "transfer", providerErr.Step)

	stored, err := repository.NewPayoutRepository(env.pool).GetByID(ctx, payout.ID)
	require.NoError(t, err)
	require.Equal(t, models.PayoutFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)

	available, err := env.ledger.AvailableForPayout(ctx, env.pool, coach.ID, "EUR")
	require.NoError(t, err)
	require.EqualValues(t, 0, available)

	entry, err := env.payouts.CompensatePayout(ctx, payout.ID, "transfer rejected, funds released")
	require.NoError(t, err)
	require.Equal(t, models.LedgerPayoutReversal, entry.Type)
	require.EqualValues(t, 4000, entry.Amount)

	_, err = env.payouts.CompensatePayout(ctx, payout.ID, "again")
	require.ErrorIs(t, err, ErrAlreadyCompensated)

	available, err = env.ledger.AvailableForPayout(ctx, env.pool, coach.ID, "EUR")
	require.NoError(t, err)
	require.EqualValues(t, 4000, available)

	wallet, err := env.wallets.CoachWallet(ctx, coach.ID)
	require.NoError(t, err)
	require.True(t, wallet[0].InSync)
	require.EqualValues(t, 0, wallet[0].Mirror.Pending)
}

func TestContradictingPayoutOutcomeIsInconsistent(t *testing.T) {
	env := newPaymentsEnv(t)
	ctx := context.Background()
	payoutRepo := repository.NewPayoutRepository(env.pool)

	coach := env.createUser(t, models.RoleCoach)
	env.earn(t, coach.ID, 5000)

	// approval gave up on a transfer the provider actually paid out
	failed, err := env.payouts.RequestPayout(ctx, coach.ID, 1000, "EUR")
	require.NoError(t, err)
	env.transfers.payoutErr = errors.New("read timeout")
	_, err = env.payouts.ApprovePayout(ctx, failed.ID)
	env.transfers.payoutErr = nil
	require.Error(t, err)

	_, err = env.payouts.ConfirmPayout(ctx, ConfirmPayoutInput{Provider: providers.StripeName, PayoutID: failed.ID, Succeeded: true})
	require.True(t, IsInconsistency(err), "err = %v", err)
	stored, err := payoutRepo.GetByID(ctx, failed.ID)
	require.NoError(t, err)
	require.Equal(t, models.PayoutFailed, stored.Status)
	require.Equal(t, 1, env.count(t, `SELECT COUNT(*) FROM webhook_anomalies WHERE reference = $1`, fmt.Sprintf("payout:%d", failed.ID)))

	again, err := env.payouts.ConfirmPayout(ctx, ConfirmPayoutInput{Provider: providers.StripeName, PayoutID: failed.ID, Succeeded: false})
	require.NoError(t, err)
	require.True(t, again.Duplicate)

	payout, err := env.payouts.RequestPayout(ctx, coach.ID, 1000, "EUR")
	require.NoError(t, err)
	_, err = env.payouts.ApprovePayout(ctx, payout.ID)
	require.NoError(t, err)

	wrongAmount := int64(999)
	_, err = env.payouts.ConfirmPayout(ctx, ConfirmPayoutInput{Provider: providers.StripeName, PayoutID: payout.ID, Succeeded: true, Amount: &wrongAmount, Currency: "EUR"})
	require.True(t, IsInconsistency(err), "err = %v", err)

	rightAmount := int64(1000)
	_, err = env.payouts.ConfirmPayout(ctx, ConfirmPayoutInput{Provider: providers.StripeName, PayoutID: payout.ID, Succeeded: true, Amount: &rightAmount, Currency: "USD"})
	require.True(t, IsInconsistency(err), "err = %v", err)

	stored, err = payoutRepo.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	require.Equal(t, models.PayoutProcessing, stored.Status)

	confirmed, err := env.payouts.ConfirmPayout(ctx, ConfirmPayoutInput{Provider: providers.StripeName, PayoutID: payout.ID, Succeeded: true, Amount: &rightAmount, Currency: "eur"})
	require.NoError(t, err)
	require.Equal(t, models.PayoutCompleted, confirmed.Payout.Status)

	_, err = env.payouts.ConfirmPayout(ctx, ConfirmPayoutInput{Provider: providers.StripeName, PayoutID: payout.ID, Succeeded: false, Reason: "account_closed"})
	require.True(t, IsInconsistency(err), "err = %v", err)

	stored, err = payoutRepo.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	require.Equal(t, models.PayoutCompleted, stored.Status)
	require.Equal(t, 4, env.count(t, `SELECT COUNT(*) FROM webhook_anomalies WHERE reference = $1`, fmt.Sprintf("payout:%d", payout.ID)))

	wallet, err := env.wallets.CoachWallet(ctx, coach.ID)
	require.NoError(t, err)
	require.True(t, wallet[0].InSync)
}

func TestFullFreePromoIsOneShot(t *testing.T) {
	env := newPaymentsEnv(t)
	ctx := context.Background()

	coach := env.createUser(t, models.RoleCoach)
	user := env.createUser(t, models.RoleUser)
	offer := env.createSessionOffer(t, coach.ID, 5000)

	code := "FREE-" + uuid.NewString()[:8]
	_, err := repository.NewPromoRepository(env.pool).Create(ctx, repository.CreatePromoInput{Code: code, Kind: models.PromoFullFree})
	require.NoError(t, err)

	access, err := env.promos.Redeem(ctx, code, user.ID, offer.ID)
	require.NoError(t, err)
	require.NotNil(t, access.PromoRedemptionID)
	require.Nil(t, access.TransactionID)

	_, err = env.promos.Redeem(ctx, code, user.ID, offer.ID)
	var invalid *PromoInvalidError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, PromoReasonAlreadyUsed, invalid.Reason)

	require.Equal(t, 1, env.count(t, `SELECT COUNT(*) FROM user_access WHERE user_id = $1`, user.ID))
	require.Equal(t, 0, env.count(t, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, user.ID))
}

func TestDiscountCodeHeldByOneCheckoutPerUser(t *testing.T) {
	env := newPaymentsEnv(t)
	ctx := context.Background()

	coach := env.createUser(t, models.RoleCoach)
	user := env.createUser(t, models.RoleUser)
	offer := env.createSessionOffer(t, coach.ID, 5000)

	code := "HALF-" + uuid.NewString()[:8]
	percent := 50
	_, err := repository.NewPromoRepository(env.pool).Create(ctx, repository.CreatePromoInput{Code: code, Kind: models.PromoPercent, PercentOff: &percent})
	require.NoError(t, err)

	checkout := NewCheckoutService(
		providers.NewRegistry(&fakeAdapter{name: providers.StripeName, enabled: true, intent: &providers.PaymentIntent{RedirectURL: "https://pay.example/cs"}}),
		repository.NewTransactionRepository(env.pool),
		repository.NewOfferRepository(env.pool),
		repository.NewUserRepository(env.pool),
		env.promos,
		env.settlement,
		nil,
	)
	input := StartCheckoutInput{OfferID: offer.ID, Provider: providers.StripeName, PromoCode: code}

	first, err := checkout.StartCheckout(ctx, user.ID, input)
	require.NoError(t, err)
	require.EqualValues(t, 2500, first.Amount)

	_, err = checkout.StartCheckout(ctx, user.ID, input)
	var invalid *PromoInvalidError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, PromoReasonAlreadyUsed, invalid.Reason)

	// the claim index also stops a writer that skipped validation
	var promoID int64
	require.NoError(t, env.pool.QueryRow(ctx, `SELECT id FROM promo_codes WHERE code = $1`, code).Scan(&promoID))
	_, err = repository.NewTransactionRepository(env.pool).Create(ctx, repository.CreateTransactionInput{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		OfferID:     offer.ID,
		Amount:      2500,
		Currency:    "EUR",
		Provider:    providers.StripeName,
		PromoCodeID: &promoID,
	})
	require.True(t, database.IsUniqueViolationOn(err, repository.PromoClaimIndex), "err = %v", err)

	// a cancelled checkout releases the code
	_, err = env.settlement.Settle(ctx, SettleInput{Provider: providers.StripeName, TransactionID: first.Reference, Outcome: providers.StatusExpired})
	require.NoError(t, err)

	second, err := checkout.StartCheckout(ctx, user.ID, input)
	require.NoError(t, err)
	amount := int64(2500)
	_, err = env.settlement.Settle(ctx, SettleInput{Provider: providers.StripeName, TransactionID: second.Reference, Outcome: providers.StatusSuccess, Amount: &amount, Currency: "EUR"})
	require.NoError(t, err)

	_, err = checkout.StartCheckout(ctx, user.ID, input)
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, PromoReasonAlreadyUsed, invalid.Reason)
	require.Equal(t, 2, env.count(t, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, user.ID))
	require.Equal(t, 1, env.count(t, `SELECT COUNT(*) FROM promo_redemptions WHERE user_id = $1`, user.ID))
}

func TestReconcileRepairsDriftedMirror(t *testing.T) {
	env := newPaymentsEnv(t)
	ctx := context.Background()

	coach := env.createUser(t, models.RoleCoach)
	env.earn(t, coach.ID, 5000)

	// simulate an out-of-band write to the mirror
	_, err := env.pool.Exec(ctx, `UPDATE coach_balances SET available_amount = 1 WHERE coach_id = $1`, coach.ID)
	require.NoError(t, err)

	drift, err := env.wallets.Reconcile(ctx, &coach.ID, "EUR")
	require.NoError(t, err)
	require.False(t, drift.InSync())
	require.EqualValues(t, 1, drift.Mirror.Available)
	require.EqualValues(t, 4000, drift.Ledger.Available)

	wallet, err := env.wallets.CoachWallet(ctx, coach.ID)
	require.NoError(t, err)
	require.True(t, wallet[0].InSync)
}

func TestWalletViewIsConsistentDuringSettlements(t *testing.T) {
	env := newPaymentsEnv(t)
	ctx := context.Background()

	coach := env.createUser(t, models.RoleCoach)
	env.earn(t, coach.ID, 1000)

	stop := make(chan struct{})
	var (
		mu      sync.Mutex
		views   []WalletView
		readErr error
	)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			wallet, err := env.wallets.CoachWallet(ctx, coach.ID)
			mu.Lock()
			if err != nil {
				readErr = err
				mu.Unlock()
				return
			}
			views = append(views, wallet...)
			mu.Unlock()
		}
	}()

	for i := 0; i < 8; i++ {
		env.earn(t, coach.ID, 1000)
	}
	close(stop)
	wg.Wait()

	require.NoError(t, readErr)
	require.NotEmpty(t, views)
	for _, view := range views {
		require.True(t, view.InSync, "mirror %+v ledger %+v", view.Mirror, view.Ledger)
		require.Equal(t, view.Ledger.Available, view.LedgerBalance)
		require.Equal(t, view.Ledger.TotalEarned, view.LedgerBalance)
	}
}
