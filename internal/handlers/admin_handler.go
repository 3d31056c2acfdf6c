package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
)

type adminPayoutService interface {
	ApprovePayout(ctx context.Context, payoutID int64) (*models.Payout, error)
	CompensatePayout(ctx context.Context, payoutID int64, note string) (*models.LedgerEntry, error)
}

type platformWalletReader interface {
	PlatformWallet(ctx context.Context) ([]services.WalletView, error)
}

type AdminHandler struct {
	payouts adminPayoutService
	wallets platformWalletReader
}

func NewAdminHandler(payouts adminPayoutService, wallets platformWalletReader) *AdminHandler {
	return &AdminHandler{payouts: payouts, wallets: wallets}
}

type approvePayoutRequest struct {
	PayoutID int64 `json:"payout_id" validate:"required,gt=0"`
}

type compensatePayoutRequest struct {
	Note string `json:"note" validate:"required,max=500"`
}

func (h *AdminHandler) ApprovePayout(c *fiber.Ctx) error {
	var req approvePayoutRequest
	if ok, err := bindBody(c, &req); !ok {
		return err
	}

	payout, err := h.payouts.ApprovePayout(c.Context(), req.PayoutID)
	if err != nil {
		return mapAdminError(c, err)
	}

	return c.JSON(fiber.Map{"payout": payout})
}

func (h *AdminHandler) CompensatePayout(c *fiber.Ctx) error {
	payoutID, ok := parseIDParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payout id"})
	}

	var req compensatePayoutRequest
	if ok, err := bindBody(c, &req); !ok {
		return err
	}

	entry, err := h.payouts.CompensatePayout(c.Context(), payoutID, strings.TrimSpace(req.Note))
	if err != nil {
		return mapAdminError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"entry": entry})
}

func (h *AdminHandler) PlatformWallet(c *fiber.Ctx) error {
	wallets, err := h.wallets.PlatformWallet(c.Context())
	if err != nil {
		return mapAdminError(c, err)
	}
	return c.JSON(fiber.Map{"wallets": wallets})
}

func mapAdminError(c *fiber.Ctx, err error) error {
	var providerErr *services.ProviderFailureError
	switch {
	case errors.As(err, &providerErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payout provider failed", "step": providerErr.Step})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrPayoutNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout not found"})
	case errors.Is(err, services.ErrPayoutNotPending),
		errors.Is(err, services.ErrPayoutNotFailed),
		errors.Is(err, services.ErrAlreadyCompensated):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrPayoutAccountMissing):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case services.IsInconsistency(err):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ledger inconsistency detected"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process request"})
	}
}
