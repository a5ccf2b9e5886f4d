package model

import (
	"encoding/json"
	"time"
)

// Order lifecycle states.
const (
	OrderPending   = "PENDING"
	OrderPaid      = "PAID"
	OrderCancelled = "CANCELLED"
	OrderExpired   = "EXPIRED"
	OrderRefunded  = "REFUNDED"
)

// orderTransitions encodes the order state machine:
// PENDING -> {PAID, CANCELLED, EXPIRED}; PAID -> REFUNDED; everything
// else is terminal.
var orderTransitions = map[string][]string{
	OrderPending: {OrderPaid, OrderCancelled, OrderExpired},
	OrderPaid:    {OrderRefunded},
}

// OrderCanTransition reports whether an order may move from one status
// to another.  Invalid transitions must not mutate anything.
func OrderCanTransition(from, to string) bool {
	for _, t := range orderTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// PriceBreakdown is the audit record of how an order total was
// computed.  It is persisted verbatim at creation time and never
// recomputed afterwards.
type PriceBreakdown struct {
	BaseCents     int64 `json:"base_cents"`     // sum of seat prices
	ComboCents    int64 `json:"combo_cents"`    // concession combos
	DiscountCents int64 `json:"discount_cents"` // promotional discount
	VoucherCents  int64 `json:"voucher_cents"`  // voucher discount
	TotalCents    int64 `json:"total_cents"`    // amount charged
}

// Order groups the seats of one purchase.  TotalCents and SeatIDs are
// immutable once set; the QR code is assigned exactly once right after
// creation.  The idempotency key is client supplied and unique, which
// enforces exactly-once creation across retries.
type Order struct {
	ID             uint64         // orders.id
	UserID         uint64         // orders.user_id
	ScreeningID    uint64         // orders.screening_id
	IdempotencyKey string         // orders.idempotency_key (unique)
	Status         string         // order lifecycle state
	SeatIDs        []uint64       // seats covered by this order
	Pricing        PriceBreakdown // persisted price audit
	VoucherID      *uint64        // voucher applied, if any
	QRCode         string         // check-in payload, assigned once
	ExpiresAt      time.Time      // hold expiry at creation time
	CreatedAt      time.Time      // orders.created_at
	UpdatedAt      time.Time      // orders.updated_at
}

// EncodeSeatIDs serialises the seat list for storage.
func EncodeSeatIDs(ids []uint64) (string, error) {
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeSeatIDs parses a serialised seat list.
func DecodeSeatIDs(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	var ids []uint64
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
