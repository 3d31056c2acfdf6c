package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/afroboost/Tribeat-v4-sub000/internal/providers"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type settlementService interface {
	Settle(ctx context.Context, input services.SettleInput) (*services.SettleResult, error)
}

type payoutConfirmer interface {
	ConfirmPayout(ctx context.Context, input services.ConfirmPayoutInput) (*services.ConfirmPayoutResult, error)
}

// WebhookHandler is the only entry point for provider callbacks. Every
// response other than 5xx tells the provider to stop retrying.
type WebhookHandler struct {
	registry   *providers.Registry
	settlement settlementService
	payouts    payoutConfirmer
	logger     *zap.Logger
}

func NewWebhookHandler(registry *providers.Registry, settlement settlementService, payouts payoutConfirmer, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{registry: registry, settlement: settlement, payouts: payouts, logger: logger}
}

func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	name := c.Params("provider")
	adapter, ok := h.registry.Get(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown provider"})
	}

	event, err := adapter.ParseWebhook(c.Body(), http.Header(c.GetReqHeaders()))
	switch {
	case err == nil:
	case errors.Is(err, providers.ErrIgnoredEvent):
		return c.JSON(fiber.Map{"received": true, "ignored": true})
	case errors.Is(err, providers.ErrInvalidSignature), errors.Is(err, providers.ErrProviderDisabled):
		h.logger.Warn("webhook rejected", zap.String("provider", adapter.Name()), zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid signature"})
	default:
		h.logger.Warn("webhook payload rejected", zap.String("provider", adapter.Name()), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Malformed event"})
	}

	if event.Kind == providers.KindPayout {
		return h.confirmPayout(c, adapter.Name(), event)
	}
	return h.settle(c, adapter.Name(), event)
}

func (h *WebhookHandler) settle(c *fiber.Ctx, provider string, event *providers.WebhookEvent) error {
	result, err := h.settlement.Settle(c.Context(), services.SettleInput{
		Provider:      provider,
		TransactionID: event.TransactionID,
		Outcome:       event.Status,
		ProviderTxID:  event.ProviderTxID,
		Amount:        event.Amount,
		Currency:      event.Currency,
		Reason:        event.Reason,
	})
	if err != nil {
		return h.mapWebhookError(c, provider, event, err)
	}

	return c.JSON(fiber.Map{
		"received":  true,
		"status":    result.Status,
		"duplicate": result.Duplicate,
		"unknown":   result.Unknown,
	})
}

func (h *WebhookHandler) confirmPayout(c *fiber.Ctx, provider string, event *providers.WebhookEvent) error {
	result, err := h.payouts.ConfirmPayout(c.Context(), services.ConfirmPayoutInput{
		Provider:         provider,
		PayoutID:         event.PayoutID,
		ProviderPayoutID: event.ProviderPayoutID,
		Succeeded:        event.Status == providers.StatusSuccess,
		Amount:           event.Amount,
		Currency:         event.Currency,
		Reason:           event.Reason,
	})
	if err != nil {
		return h.mapWebhookError(c, provider, event, err)
	}

	response := fiber.Map{
		"received":  true,
		"duplicate": result.Duplicate,
		"unknown":   result.Unknown,
	}
	if result.Payout != nil {
		response["status"] = result.Payout.Status
	}
	return c.JSON(response)
}

func (h *WebhookHandler) mapWebhookError(c *fiber.Ctx, provider string, event *providers.WebhookEvent, err error) error {
	switch {
	case services.IsInconsistency(err), errors.Is(err, services.ErrSessionMissing):
		// already logged and recorded; a retry cannot repair it
		return c.JSON(fiber.Map{"received": true, "anomaly": true})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Malformed event"})
	default:
		h.logger.Error("webhook processing failed",
			zap.String("provider", provider),
			zap.String("event_id", event.EventID),
			zap.String("transaction_id", event.TransactionID),
			zap.Int64("payout_id", event.PayoutID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process webhook"})
	}
}
