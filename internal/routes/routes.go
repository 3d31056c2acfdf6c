package routes

import (
	"context"

	"github.com/afroboost/Tribeat-v4-sub000/internal/config"
	"github.com/afroboost/Tribeat-v4-sub000/internal/handlers"
	"github.com/afroboost/Tribeat-v4-sub000/internal/ledger"
	"github.com/afroboost/Tribeat-v4-sub000/internal/middleware"
	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/providers"
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	notifyws "github.com/afroboost/Tribeat-v4-sub000/internal/websocket"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// RegisterRoutes wires repositories, services and handlers. The notification
// hub runs until ctx is cancelled.
func RegisterRoutes(ctx context.Context, app *fiber.App, cfg *config.Config, db *pgxpool.Pool, logger *zap.Logger) error {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewLiveSessionRepository(db)
	offerRepo := repository.NewOfferRepository(db)
	txnRepo := repository.NewTransactionRepository(db)
	accessRepo := repository.NewAccessRepository(db)
	promoRepo := repository.NewPromoRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	anomalyRepo := repository.NewAnomalyRepository(db)

	stripe := providers.NewStripeAdapter(providers.StripeConfig{
		Enabled:       cfg.Card.Enabled,
		APIBase:       cfg.Card.APIBase,
		SecretKey:     cfg.Card.SecretKey,
		WebhookSecret: cfg.Card.WebhookSecret,
		SuccessURL:    cfg.PublicBaseURL + "/checkout/success",
		CancelURL:     cfg.PublicBaseURL + "/checkout/cancel",
	})
	registry := providers.NewRegistry(
		stripe,
		providers.NewMobileMoneyAdapter(providers.MobileMoneyConfig{
			Enabled:       cfg.MobileMoney.Enabled,
			APIBase:       cfg.MobileMoney.APIBase,
			APIKey:        cfg.MobileMoney.SecretKey,
			WebhookSecret: cfg.MobileMoney.WebhookSecret,
			CallbackURL:   cfg.PublicBaseURL + "/webhooks/" + providers.MobileMoneyName,
		}),
		providers.NewBankAdapter(providers.BankConfig{
			Enabled:      cfg.Bank.Enabled,
			WebhookToken: cfg.Bank.WebhookToken,
			AccountName:  cfg.Bank.AccountName,
			IBAN:         cfg.Bank.IBAN,
			BIC:          cfg.Bank.BIC,
		}),
	)
	var transfers providers.TransferClient
	if stripe.Enabled() {
		transfers = stripe
	}

	hub := notifyws.NewHub(logger.Named("ws"))
	go hub.Run(ctx)

	ledgerService := ledger.NewService(logger.Named("ledger"))
	settlementService := services.NewSettlementService(db, ledgerService, settingsRepo, anomalyRepo, hub, logger.Named("settlement"))
	promoService := services.NewPromoService(db, promoRepo, offerRepo, hub, logger.Named("promo"))
	checkoutService := services.NewCheckoutService(registry, txnRepo, offerRepo, userRepo, promoService, settlementService, logger.Named("checkout"))
	payoutService := services.NewPayoutService(db, ledgerService, transfers, anomalyRepo, hub, logger.Named("payout"))
	walletService := services.NewWalletService(db, ledgerService, logger.Named("wallet"))
	entitlementService := services.NewEntitlementService(sessionRepo, userRepo, accessRepo)
	accessService := services.NewAccessService(accessRepo, logger.Named("access"))

	webhookHandler := handlers.NewWebhookHandler(registry, settlementService, payoutService, logger.Named("webhook"))
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)
	promoHandler := handlers.NewPromoHandler(promoService)
	accessHandler := handlers.NewAccessHandler(entitlementService, accessService)
	coachHandler := handlers.NewCoachHandler(walletService, payoutService)
	adminHandler := handlers.NewAdminHandler(payoutService, walletService)
	notificationHandler := handlers.NewNotificationHandler(hub, cfg.JWTSecret)

	if err := registerDocsRoutes(app, cfg); err != nil {
		return err
	}

	app.Post("/webhooks/:provider", webhookHandler.Receive)

	app.Use("/ws", notificationHandler.WebSocketAuth)
	app.Get("/ws", websocket.New(notificationHandler.HandleWebSocket))

	auth := middleware.AuthRequired(cfg.JWTSecret)

	app.Post("/checkout/start", auth, checkoutHandler.Start)
	app.Get("/transactions/:id", auth, checkoutHandler.GetTransaction)

	promos := app.Group("/promos", auth)
	promos.Post("/validate", promoHandler.Validate)
	promos.Post("/redeem", promoHandler.Redeem)

	app.Get("/sessions/:id/access", auth, accessHandler.SessionAccess)

	coach := app.Group("/coach", auth, middleware.RequireRole(models.RoleCoach))
	coach.Get("/balance", coachHandler.Balance)
	coach.Get("/ledger", coachHandler.Ledger)
	coach.Get("/payouts", coachHandler.Payouts)
	coach.Post("/payout/request", coachHandler.RequestPayout)

	admin := app.Group("/admin", auth, middleware.RequireRole(models.RoleAdmin))
	admin.Post("/payout/approve", adminHandler.ApprovePayout)
	admin.Post("/payout/:id/compensate", adminHandler.CompensatePayout)
	admin.Post("/access/:id/revoke", accessHandler.Revoke)
	admin.Post("/access/:id/reactivate", accessHandler.Reactivate)
	admin.Get("/platform/wallet", adminHandler.PlatformWallet)

	logger.Info("routes registered", zap.Strings("providers", registry.Names()))
	return nil
}
