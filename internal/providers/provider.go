// Package providers holds one adapter per payment rail. Adapters verify and
// normalize inbound webhooks so that nothing provider-specific reaches
// settlement.
package providers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusExpired = "expired"

	KindPayment = "payment"
	KindPayout  = "payout"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	// ErrIgnoredEvent marks an authentic event that carries no state change.
	ErrIgnoredEvent     = errors.New("ignored webhook event")
	ErrProviderDisabled = errors.New("provider disabled")
)

type PaymentRequest struct {
	TransactionID string
	Amount        int64
	Currency      string
	CustomerEmail string
	Description   string
}

// PaymentIntent carries either a redirect URL or offline instructions.
type PaymentIntent struct {
	RedirectURL  string            `json:"url,omitempty"`
	Instructions map[string]string `json:"instructions,omitempty"`
	ProviderTxID string            `json:"provider_tx_id,omitempty"`
}

type WebhookEvent struct {
	Provider         string
	EventID          string
	Kind             string
	Status           string
	TransactionID    string
	ProviderTxID     string
	PayoutID         int64
	ProviderPayoutID string
	Amount           *int64
	Currency         string
	Reason           string
}

type Adapter interface {
	Name() string
	Enabled() bool
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentIntent, error)
	// ParseWebhook must reject the event unless its authenticity was verified.
	ParseWebhook(body []byte, headers http.Header) (*WebhookEvent, error)
}

type TransferRequest struct {
	PayoutID           int64
	Amount             int64
	Currency           string
	DestinationAccount string
	IdempotencyKey     string
}

// TransferClient moves coach funds out in two steps: an internal balance
// transfer to the connected account, then the bank payout from it.
type TransferClient interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (string, error)
	CreatePayout(ctx context.Context, req TransferRequest) (string, error)
}

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		registry.adapters[adapter.Name()] = adapter
	}
	return registry
}

func (r *Registry) Get(name string) (Adapter, bool) {
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	return adapter, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
