package service

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the core services.  Handlers translate
// them into HTTP statuses: conflicts become 409, stale/invalid state
// 422, not-found 404, validation 400, gateway failures 502.
var (
	ErrScreeningNotFound      = errors.New("screening not found")
	ErrScreeningStarted       = errors.New("screening already started")
	ErrSeatNotFound           = errors.New("seat not found")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrInvalidOrStaleHold     = errors.New("hold invalid, expired or not yours")
	ErrCrossScreeningOrder    = errors.New("holds span more than one screening")
	ErrInvalidOrderState      = errors.New("order is not in a state that allows this")
	ErrOrderNotFound          = errors.New("order not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrVoucherInvalid         = errors.New("voucher invalid, used or not yours")
	ErrUnknownGateway         = errors.New("unknown payment gateway")
	ErrPaymentInProgress      = errors.New("another payment is already pending for this order")
	ErrNotRefundable          = errors.New("payment is not refundable")
	ErrRefundExceedsBalance   = errors.New("refund exceeds remaining refundable amount")
	ErrGatewayFailure         = errors.New("payment gateway failure")
)

// SeatConflictError reports which of the requested seats are blocked
// by another hold or already sold, so the client can deselect exactly
// those.
type SeatConflictError struct {
	Seats []uint64
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seats unavailable: %v", e.Seats)
}
