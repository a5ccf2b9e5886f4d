package model

import "time"

// Payment lifecycle states.
const (
	PaymentPending         = "PENDING"
	PaymentSuccess         = "SUCCESS"
	PaymentFailed          = "FAILED"
	PaymentExpired         = "EXPIRED"
	PaymentRefunded        = "REFUNDED"
	PaymentPartialRefunded = "PARTIAL_REFUNDED"
)

// Well-known payment error codes recorded when a payment fails
// without the gateway reporting a specific reason.
const (
	PayErrOrderExpired = "ORDER_EXPIRED"
	PayErrGateway      = "GATEWAY_ERROR"
)

// Payment is one attempt to collect the total of an order through a
// gateway.  At most one non-terminal payment exists per order at a
// time.  RawPayload stores the last gateway callback body with
// sensitive fields masked.
type Payment struct {
	ID           uint64    // payments.id
	OrderID      uint64    // payments.order_id
	Gateway      string    // gateway code (e.g. "mockpay")
	AmountCents  int64     // amount requested
	FeeCents     int64     // gateway fee, from webhook
	NetCents     int64     // amount - fee
	Status       string    // payment lifecycle state
	ProviderTxID string    // gateway transaction id
	ProviderRef  string    // gateway order reference
	RawPayload   string    // masked last webhook body
	ErrorCode    string    // set when FAILED
	ErrorMessage string    // set when FAILED
	CreatedAt    time.Time // payments.created_at
	UpdatedAt    time.Time // payments.updated_at
}

// Terminal reports whether the payment can no longer change state
// through webhooks.  Refunded states count: once money has gone back
// out, a redelivered success callback must not flip the payment
// forward again.
func (p *Payment) Terminal() bool {
	switch p.Status {
	case PaymentSuccess, PaymentFailed, PaymentExpired, PaymentRefunded, PaymentPartialRefunded:
		return true
	}
	return false
}
