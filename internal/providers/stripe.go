package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	StripeName               = "stripe"
	stripeSignatureTolerance = 5 * time.Minute
)

type StripeConfig struct {
	Enabled       bool
	APIBase       string
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// StripeAdapter is the card rail. It also moves payouts to connected accounts.
type StripeAdapter struct {
	cfg        StripeConfig
	httpClient *http.Client
	now        func() time.Time
}

func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &StripeAdapter{cfg: cfg, httpClient: newHTTPClient(), now: time.Now}
}

func (a *StripeAdapter) Name() string { return StripeName }

func (a *StripeAdapter) Enabled() bool {
	return a.cfg.Enabled && a.cfg.SecretKey != ""
}

func (a *StripeAdapter) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentIntent, error) {
	if !a.Enabled() {
		return nil, ErrProviderDisabled
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.TransactionID)
	form.Set("metadata[transaction_id]", req.TransactionID)
	form.Set("success_url", a.cfg.SuccessURL)
	form.Set("cancel_url", a.cfg.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	err := do(ctx, a.httpClient, apiRequest{
		method:  http.MethodPost,
		url:     a.cfg.APIBase + "/v1/checkout/sessions",
		headers: a.headers("checkout-"+req.TransactionID, ""),
		form:    form,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	if out.URL == "" {
		return nil, errors.New("stripe checkout session: empty url")
	}
	return &PaymentIntent{RedirectURL: out.URL, ProviderTxID: out.ID}, nil
}

func (a *StripeAdapter) CreateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("destination", req.DestinationAccount)
	form.Set("metadata[payout_id]", strconv.FormatInt(req.PayoutID, 10))

	var out struct {
		ID string `json:"id"`
	}
	err := do(ctx, a.httpClient, apiRequest{
		method:  http.MethodPost,
		url:     a.cfg.APIBase + "/v1/transfers",
		headers: a.headers(req.IdempotencyKey, ""),
		form:    form,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("stripe transfer: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("stripe transfer: empty id")
	}
	return out.ID, nil
}

func (a *StripeAdapter) CreatePayout(ctx context.Context, req TransferRequest) (string, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("metadata[payout_id]", strconv.FormatInt(req.PayoutID, 10))

	var out struct {
		ID string `json:"id"`
	}
	err := do(ctx, a.httpClient, apiRequest{
		method:  http.MethodPost,
		url:     a.cfg.APIBase + "/v1/payouts",
		headers: a.headers(req.IdempotencyKey, req.DestinationAccount),
		form:    form,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("stripe payout: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("stripe payout: empty id")
	}
	return out.ID, nil
}

func (a *StripeAdapter) headers(idempotencyKey, account string) map[string]string {
	return map[string]string{
		"Authorization":   "Bearer " + a.cfg.SecretKey,
		"Idempotency-Key": idempotencyKey,
		"Stripe-Account":  account,
	}
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object stripeObject `json:"object"`
	} `json:"data"`
}

type stripeObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentIntent     string            `json:"payment_intent"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       *int64            `json:"amount_total"`
	Amount            *int64            `json:"amount"`
	Currency          string            `json:"currency"`
	FailureMessage    string            `json:"failure_message"`
	FailureCode       string            `json:"failure_code"`
	Metadata          map[string]string `json:"metadata"`
}

func (a *StripeAdapter) ParseWebhook(body []byte, headers http.Header) (*WebhookEvent, error) {
	if err := a.verify(body, headers.Get("Stripe-Signature")); err != nil {
		return nil, err
	}

	var evt stripeEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	obj := evt.Data.Object

	switch evt.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		if evt.Type == "checkout.session.completed" && obj.PaymentStatus != "paid" && obj.PaymentStatus != "no_payment_required" {
			// async methods confirm later with async_payment_succeeded
			return nil, ErrIgnoredEvent
		}
		return a.paymentEvent(evt, StatusSuccess, "")
	case "checkout.session.async_payment_failed":
		return a.paymentEvent(evt, StatusFailed, "async payment failed")
	case "checkout.session.expired":
		return a.paymentEvent(evt, StatusExpired, "checkout session expired")
	case "payout.paid", "payout.failed":
		// payouts created outside this service carry no metadata; they are
		// matched on the provider payout id instead
		var payoutID int64
		if raw := obj.Metadata["payout_id"]; raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, fmt.Errorf("%w: bad payout_id %q", ErrMalformedEvent, raw)
			}
			payoutID = parsed
		}
		if payoutID == 0 && obj.ID == "" {
			return nil, fmt.Errorf("%w: payout event without payout reference", ErrMalformedEvent)
		}
		status := StatusSuccess
		reason := ""
		if evt.Type == "payout.failed" {
			status = StatusFailed
			reason = strings.TrimSpace(obj.FailureCode + " " + obj.FailureMessage)
		}
		return &WebhookEvent{
			Provider:         StripeName,
			EventID:          evt.ID,
			Kind:             KindPayout,
			Status:           status,
			PayoutID:         payoutID,
			ProviderPayoutID: obj.ID,
			Amount:           obj.Amount,
			Currency:         normalizeCurrency(obj.Currency),
			Reason:           reason,
		}, nil
	}
	return nil, ErrIgnoredEvent
}

func (a *StripeAdapter) paymentEvent(evt stripeEvent, status, reason string) (*WebhookEvent, error) {
	obj := evt.Data.Object
	transactionID := obj.ClientReferenceID
	if transactionID == "" {
		transactionID = obj.Metadata["transaction_id"]
	}
	if transactionID == "" {
		return nil, fmt.Errorf("%w: missing client_reference_id", ErrMalformedEvent)
	}

	providerTxID := obj.PaymentIntent
	if providerTxID == "" {
		providerTxID = obj.ID
	}
	return &WebhookEvent{
		Provider:      StripeName,
		EventID:       evt.ID,
		Kind:          KindPayment,
		Status:        status,
		TransactionID: transactionID,
		ProviderTxID:  providerTxID,
		Amount:        obj.AmountTotal,
		Currency:      normalizeCurrency(obj.Currency),
		Reason:        reason,
	}, nil
}

// verify checks a "t=<unix>,v1=<hex>" header where v1 is HMAC-SHA256 over "<t>.<body>".
func (a *StripeAdapter) verify(body []byte, header string) error {
	if a.cfg.WebhookSecret == "" || header == "" {
		return ErrInvalidSignature
	}

	var timestamp string
	signatures := make([]string, 0, 1)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	age := a.now().Sub(time.Unix(unix, 0))
	if age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return ErrInvalidSignature
	}

	expected := signPayload(a.cfg.WebhookSecret, []byte(timestamp+"."+string(body)))
	for _, candidate := range signatures {
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func signPayload(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
