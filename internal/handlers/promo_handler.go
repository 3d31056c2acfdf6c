package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
)

type promoApplicationService interface {
	Validate(ctx context.Context, code string, userID int64, offerID int64) (*services.PromoValidation, error)
	Redeem(ctx context.Context, code string, userID int64, offerID int64) (*models.UserAccess, error)
}

type PromoHandler struct {
	service promoApplicationService
}

func NewPromoHandler(service promoApplicationService) *PromoHandler {
	return &PromoHandler{service: service}
}

type promoRequest struct {
	Code    string `json:"code" validate:"required,max=64"`
	OfferID int64  `json:"offer_id" validate:"required,gt=0"`
}

func (h *PromoHandler) Validate(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req promoRequest
	if ok, err := bindBody(c, &req); !ok {
		return err
	}

	validation, err := h.service.Validate(c.Context(), strings.TrimSpace(req.Code), userID, req.OfferID)
	if err != nil {
		return mapPromoError(c, err)
	}
	if !validation.Valid {
		return c.JSON(fiber.Map{"valid": false, "reason": validation.Reason})
	}

	return c.JSON(fiber.Map{
		"valid":    true,
		"kind":     validation.Promo.Kind,
		"discount": validation.Discount,
		"final":    validation.Final,
	})
}

func (h *PromoHandler) Redeem(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req promoRequest
	if ok, err := bindBody(c, &req); !ok {
		return err
	}

	access, err := h.service.Redeem(c.Context(), strings.TrimSpace(req.Code), userID, req.OfferID)
	if err != nil {
		return mapPromoError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"access": access})
}

func mapPromoError(c *fiber.Ctx, err error) error {
	var promoErr *services.PromoInvalidError
	switch {
	case errors.As(err, &promoErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "promo_invalid", "reason": promoErr.Reason})
	case errors.Is(err, services.ErrPromoRequiresPayment):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrOfferNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Offer not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process promo code"})
	}
}
