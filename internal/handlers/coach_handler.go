package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
)

type walletReader interface {
	CoachWallet(ctx context.Context, coachID int64) ([]services.WalletView, error)
	Entries(ctx context.Context, ownerID *int64, currency string, limit int) ([]models.LedgerEntry, error)
}

type coachPayoutService interface {
	RequestPayout(ctx context.Context, coachID int64, amount int64, currency string) (*models.Payout, error)
	ListPayouts(ctx context.Context, coachID int64, limit int) ([]models.Payout, error)
}

// CoachHandler serves the coach's own money: balance, ledger and payouts.
type CoachHandler struct {
	wallets walletReader
	payouts coachPayoutService
}

func NewCoachHandler(wallets walletReader, payouts coachPayoutService) *CoachHandler {
	return &CoachHandler{wallets: wallets, payouts: payouts}
}

type requestPayoutRequest struct {
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

func (h *CoachHandler) Balance(c *fiber.Ctx) error {
	coachID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	wallets, err := h.wallets.CoachWallet(c.Context(), coachID)
	if err != nil {
		return mapCoachError(c, err)
	}

	return c.JSON(fiber.Map{"balances": wallets})
}

func (h *CoachHandler) Ledger(c *fiber.Ctx) error {
	coachID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	currency := strings.ToUpper(strings.TrimSpace(c.Query("currency")))
	entries, err := h.wallets.Entries(c.Context(), &coachID, currency, parseLimit(c))
	if err != nil {
		return mapCoachError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries})
}

func (h *CoachHandler) Payouts(c *fiber.Ctx) error {
	coachID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	payouts, err := h.payouts.ListPayouts(c.Context(), coachID, parseLimit(c))
	if err != nil {
		return mapCoachError(c, err)
	}

	return c.JSON(fiber.Map{"payouts": payouts})
}

func (h *CoachHandler) RequestPayout(c *fiber.Ctx) error {
	coachID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req requestPayoutRequest
	if ok, err := bindBody(c, &req); !ok {
		return err
	}

	payout, err := h.payouts.RequestPayout(c.Context(), coachID, req.Amount, strings.ToUpper(req.Currency))
	if err != nil {
		return mapCoachError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payout": payout})
}

func mapCoachError(c *fiber.Ctx, err error) error {
	var insufficient *services.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":     "insufficient_funds",
			"available": insufficient.Available,
			"requested": insufficient.Requested,
			"currency":  insufficient.Currency,
		})
	case errors.Is(err, services.ErrPayoutInFlight):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "A payout is already pending"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case services.IsInconsistency(err):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ledger inconsistency detected"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process request"})
	}
}
