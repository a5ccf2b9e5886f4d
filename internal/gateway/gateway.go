// Package gateway defines the contract every payment provider is
// wrapped behind.  Provider-specific signature schemes and payload
// shapes stay inside the implementations; the payment service only
// sees normalized data.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kinohall/cinema-ticketing/internal/model"
)

// Normalized webhook statuses.  An empty status means the provider
// payload was ambiguous; the payment then stays PENDING.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// ErrAlreadyRefunded is returned by Refund when the provider reports
// the money was already returned, e.g. by an earlier request that
// timed out on our side.  Callers treat it as success.
var ErrAlreadyRefunded = errors.New("gateway: already refunded")

// PaymentIntent is what the client needs to complete a checkout.
type PaymentIntent struct {
	ProviderRef string // provider-side reference for this payment
	RedirectURL string // hosted checkout page, if the provider has one
	QRPayload   string // scannable payload, if the provider uses QR
}

// WebhookData is a provider callback reduced to the fields the
// reconciliation logic needs.  Correlation ids vary wildly between
// providers, so all of them are optional; the matcher tries them in a
// fixed order.
type WebhookData struct {
	EventType    string
	RequestID    string
	ProviderTxID string
	ProviderRef  string
	OrderID      uint64 // local order id, when the provider echoes it
	PaymentID    uint64 // local payment id, when the provider echoes it
	Status       string // StatusSuccess, StatusFailed or ""
	AmountCents  int64
	FeeCents     int64
}

// RefundResult reports a provider-side refund.
type RefundResult struct {
	ProviderRefundID string
}

// Gateway is one payment provider.
type Gateway interface {
	Code() string
	CreatePayment(ctx context.Context, order *model.Order, amountCents int64) (*PaymentIntent, error)
	// VerifyWebhook returns nil when the callback signature is valid.
	VerifyWebhook(header http.Header, body []byte) error
	// ParseWebhook extracts normalized data from a callback.  It is a
	// pure function and must not require prior verification.
	ParseWebhook(header http.Header, body []byte) (*WebhookData, error)
	Refund(ctx context.Context, payment *model.Payment, amountCents int64, reason string) (*RefundResult, error)
}

// Registry maps gateway codes to implementations.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gws ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gws))}
	for _, gw := range gws {
		r.gateways[gw.Code()] = gw
	}
	return r
}

// Get returns the gateway for a code, or nil when unknown.
func (r *Registry) Get(code string) Gateway {
	return r.gateways[code]
}

// maskedKeys are payload fields that must never be persisted in the
// clear.
var maskedKeys = map[string]bool{
	"card_number":    true,
	"card_cvv":       true,
	"cvv":            true,
	"account_number": true,
	"token":          true,
	"signature":      true,
	"phone":          true,
	"email":          true,
}

// MaskPayload redacts sensitive fields from a JSON payload before it
// is persisted on a Payment or WebhookEvent.  Non-JSON bodies are
// stored as-is.
func MaskPayload(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return string(body)
	}
	maskMap(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		return string(body)
	}
	return string(out)
}

func maskMap(doc map[string]any) {
	for k, v := range doc {
		if maskedKeys[k] {
			doc[k] = "***"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			maskMap(nested)
		}
	}
}

// NormalizeStatus folds the status vocabulary used by providers into
// the two states the core cares about.  Anything unrecognised maps to
// "" so the payment stays PENDING rather than being failed on a
// guess.
func NormalizeStatus(s string) string {
	switch s {
	case "SUCCESS", "SETTLED", "PAID", "COMPLETED", "success", "paid":
		return StatusSuccess
	case "FAILED", "DECLINED", "EXPIRED", "failed", "expired":
		return StatusFailed
	}
	return ""
}
