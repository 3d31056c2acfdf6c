package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
)

type checkoutApplicationService interface {
	StartCheckout(ctx context.Context, userID int64, input services.StartCheckoutInput) (*services.CheckoutResult, error)
	GetTransaction(ctx context.Context, actorID int64, role string, id string) (*models.Transaction, error)
}

type CheckoutHandler struct {
	service checkoutApplicationService
}

func NewCheckoutHandler(service checkoutApplicationService) *CheckoutHandler {
	return &CheckoutHandler{service: service}
}

type startCheckoutRequest struct {
	OfferID   int64  `json:"offer_id" validate:"required,gt=0"`
	Provider  string `json:"provider" validate:"required,max=32"`
	PromoCode string `json:"promo_code" validate:"omitempty,max=64"`
}

func (h *CheckoutHandler) Start(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req startCheckoutRequest
	if ok, err := bindBody(c, &req); !ok {
		return err
	}

	result, err := h.service.StartCheckout(c.Context(), userID, services.StartCheckoutInput{
		OfferID:   req.OfferID,
		Provider:  strings.TrimSpace(req.Provider),
		PromoCode: strings.TrimSpace(req.PromoCode),
	})
	if err != nil {
		return mapCheckoutError(c, err)
	}

	return c.JSON(result)
}

func (h *CheckoutHandler) GetTransaction(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid transaction id"})
	}

	txn, err := h.service.GetTransaction(c.Context(), userID, actorRole(c), id)
	if err != nil {
		return mapCheckoutError(c, err)
	}

	return c.JSON(fiber.Map{"transaction": txn})
}

func mapCheckoutError(c *fiber.Ctx, err error) error {
	var promoErr *services.PromoInvalidError
	var providerErr *services.ProviderFailureError
	switch {
	case errors.As(err, &promoErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "promo_invalid", "reason": promoErr.Reason})
	case errors.As(err, &providerErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payment provider failed"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrOfferNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Offer not found"})
	case errors.Is(err, services.ErrTransactionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
	case errors.Is(err, services.ErrProviderUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Payment provider unavailable"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process checkout"})
	}
}
