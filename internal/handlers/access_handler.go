package handlers

import (
	"context"
	"errors"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
)

type entitlementResolver interface {
	Resolve(ctx context.Context, userID int64, role string, sessionID int64) (*services.Entitlement, error)
}

type accessAdminService interface {
	Revoke(ctx context.Context, accessID int64) (*models.UserAccess, error)
	Reactivate(ctx context.Context, accessID int64) (*models.UserAccess, error)
}

type AccessHandler struct {
	entitlements entitlementResolver
	accesses     accessAdminService
}

func NewAccessHandler(entitlements entitlementResolver, accesses accessAdminService) *AccessHandler {
	return &AccessHandler{entitlements: entitlements, accesses: accesses}
}

func (h *AccessHandler) SessionAccess(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	entitlement, err := h.entitlements.Resolve(c.Context(), userID, actorRole(c), sessionID)
	if err != nil {
		return mapAccessError(c, err)
	}

	return c.JSON(fiber.Map{
		"allowed":     entitlement.Allowed(),
		"entitlement": entitlement,
	})
}

func (h *AccessHandler) Revoke(c *fiber.Ctx) error {
	return h.transition(c, h.accesses.Revoke)
}

func (h *AccessHandler) Reactivate(c *fiber.Ctx) error {
	return h.transition(c, h.accesses.Reactivate)
}

func (h *AccessHandler) transition(c *fiber.Ctx, apply func(context.Context, int64) (*models.UserAccess, error)) error {
	accessID, ok := parseIDParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid access id"})
	}

	access, err := apply(c.Context(), accessID)
	if err != nil {
		return mapAccessError(c, err)
	}

	return c.JSON(fiber.Map{"access": access})
}

func mapAccessError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	case errors.Is(err, services.ErrAccessNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Access not found"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to resolve access"})
	}
}
