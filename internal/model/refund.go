package model

import "time"

// Refund lifecycle states.
const (
	RefundPending = "PENDING"
	RefundSuccess = "SUCCESS"
	RefundFailed  = "FAILED"
)

// Refund is one attempt to return money against a successful payment.
// The idempotency key is derived from the refund target, the acting
// user and a one-minute time bucket, so an accidentally repeated
// refund request maps onto the same row instead of paying out twice.
type Refund struct {
	ID               uint64    // refunds.id
	PaymentID        uint64    // refunds.payment_id
	AmountCents      int64     // amount to return
	Status           string    // PENDING, SUCCESS or FAILED
	IdempotencyKey   string    // refunds.idempotency_key (unique)
	ProviderRefundID string    // gateway refund reference
	Reason           string    // free-form reason
	CreatedAt        time.Time // refunds.created_at
	UpdatedAt        time.Time // refunds.updated_at
}
