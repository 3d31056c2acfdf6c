package providers

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const MobileMoneyName = "momo"

type MobileMoneyConfig struct {
	Enabled       bool
	APIBase       string
	APIKey        string
	WebhookSecret string
	CallbackURL   string
}

type MobileMoneyAdapter struct {
	cfg        MobileMoneyConfig
	httpClient *http.Client
}

func NewMobileMoneyAdapter(cfg MobileMoneyConfig) *MobileMoneyAdapter {
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &MobileMoneyAdapter{cfg: cfg, httpClient: newHTTPClient()}
}

func (a *MobileMoneyAdapter) Name() string { return MobileMoneyName }

func (a *MobileMoneyAdapter) Enabled() bool {
	return a.cfg.Enabled && a.cfg.APIKey != "" && a.cfg.APIBase != ""
}

func (a *MobileMoneyAdapter) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentIntent, error) {
	if !a.Enabled() {
		return nil, ErrProviderDisabled
	}

	var out struct {
		ID         string `json:"id"`
		PaymentURL string `json:"payment_url"`
		USSDCode   string `json:"ussd_code"`
	}
	err := do(ctx, a.httpClient, apiRequest{
		method: http.MethodPost,
		url:    a.cfg.APIBase + "/v1/payments",
		headers: map[string]string{
			"Authorization":   "Bearer " + a.cfg.APIKey,
			"Idempotency-Key": "payment-" + req.TransactionID,
		},
		json: map[string]any{
			"reference":    req.TransactionID,
			"amount":       req.Amount,
			"currency":     req.Currency,
			"payer_email":  req.CustomerEmail,
			"description":  req.Description,
			"callback_url": a.cfg.CallbackURL,
		},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("mobile money payment: %w", err)
	}
	if out.ID == "" {
		return nil, errors.New("mobile money payment: empty id")
	}

	intent := &PaymentIntent{RedirectURL: out.PaymentURL, ProviderTxID: out.ID}
	if out.PaymentURL == "" {
		intent.Instructions = map[string]string{
			"reference": req.TransactionID,
			"message":   "Approve the payment request on your phone",
		}
		if out.USSDCode != "" {
			intent.Instructions["ussd_code"] = out.USSDCode
		}
	}
	return intent, nil
}

type momoEvent struct {
	EventID     string `json:"event_id"`
	Reference   string `json:"reference"`
	ProviderRef string `json:"provider_ref"`
	Status      string `json:"status"`
	Amount      *int64 `json:"amount"`
	Currency    string `json:"currency"`
	Reason      string `json:"reason"`
}

func (a *MobileMoneyAdapter) ParseWebhook(body []byte, headers http.Header) (*WebhookEvent, error) {
	if a.cfg.WebhookSecret == "" {
		return nil, ErrInvalidSignature
	}
	signature, err := hex.DecodeString(strings.TrimSpace(headers.Get("X-Signature")))
	if err != nil || len(signature) == 0 {
		return nil, ErrInvalidSignature
	}
	if !hmac.Equal(signature, signPayload(a.cfg.WebhookSecret, body)) {
		return nil, ErrInvalidSignature
	}

	var evt momoEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.Reference == "" {
		return nil, fmt.Errorf("%w: missing reference", ErrMalformedEvent)
	}

	var status string
	switch strings.ToUpper(evt.Status) {
	case "SUCCESSFUL", "SUCCESS":
		status = StatusSuccess
	case "FAILED", "REJECTED":
		status = StatusFailed
	case "EXPIRED", "TIMEOUT":
		status = StatusExpired
	case "PENDING":
		return nil, ErrIgnoredEvent
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedEvent, evt.Status)
	}

	return &WebhookEvent{
		Provider:      MobileMoneyName,
		EventID:       evt.EventID,
		Kind:          KindPayment,
		Status:        status,
		TransactionID: evt.Reference,
		ProviderTxID:  evt.ProviderRef,
		Amount:        evt.Amount,
		Currency:      normalizeCurrency(evt.Currency),
		Reason:        evt.Reason,
	}, nil
}
