package providers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const BankName = "bank"

type BankConfig struct {
	Enabled      bool
	WebhookToken string
	AccountName  string
	IBAN         string
	BIC          string
}

// BankAdapter issues wire instructions; the bank's callback confirms receipt.
type BankAdapter struct {
	cfg BankConfig
}

func NewBankAdapter(cfg BankConfig) *BankAdapter {
	return &BankAdapter{cfg: cfg}
}

func (a *BankAdapter) Name() string { return BankName }

func (a *BankAdapter) Enabled() bool {
	return a.cfg.Enabled && a.cfg.IBAN != ""
}

func (a *BankAdapter) CreatePayment(_ context.Context, req PaymentRequest) (*PaymentIntent, error) {
	if !a.Enabled() {
		return nil, ErrProviderDisabled
	}
	return &PaymentIntent{
		Instructions: map[string]string{
			"account_name": a.cfg.AccountName,
			"iban":         a.cfg.IBAN,
			"bic":          a.cfg.BIC,
			"reference":    req.TransactionID,
			"amount":       strconv.FormatInt(req.Amount, 10),
			"currency":     req.Currency,
		},
	}, nil
}

type bankEvent struct {
	Reference string `json:"reference"`
	BankRef   string `json:"bank_ref"`
	Status    string `json:"status"`
	Amount    *int64 `json:"amount"`
	Currency  string `json:"currency"`
	Reason    string `json:"reason"`
}

func (a *BankAdapter) ParseWebhook(body []byte, headers http.Header) (*WebhookEvent, error) {
	token := headers.Get("X-Callback-Token")
	if a.cfg.WebhookToken == "" || token == "" {
		return nil, ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.WebhookToken)) != 1 {
		return nil, ErrInvalidSignature
	}

	var evt bankEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.Reference == "" {
		return nil, fmt.Errorf("%w: missing reference", ErrMalformedEvent)
	}

	var status string
	switch strings.ToLower(evt.Status) {
	case "credited":
		status = StatusSuccess
	case "rejected", "returned":
		status = StatusFailed
	case "expired":
		status = StatusExpired
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedEvent, evt.Status)
	}

	return &WebhookEvent{
		Provider:      BankName,
		EventID:       evt.BankRef,
		Kind:          KindPayment,
		Status:        status,
		TransactionID: evt.Reference,
		ProviderTxID:  evt.BankRef,
		Amount:        evt.Amount,
		Currency:      normalizeCurrency(evt.Currency),
		Reason:        evt.Reason,
	}, nil
}
