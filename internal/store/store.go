// Package store defines the persistence boundary of the ticketing
// core.  Services talk to these interfaces only; the MySQL
// implementation lives in internal/repository and an in-memory
// implementation backs the unit tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kinohall/cinema-ticketing/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when an insert violates a unique
// constraint, such as an order idempotency key.  Callers treat it as
// "someone else already did this" rather than as a failure.
var ErrDuplicate = errors.New("store: duplicate key")

// Reader bundles the read operations available both inside and
// outside a transaction.
type Reader interface {
	GetScreening(ctx context.Context, id uint64) (*model.Screening, error)
	SeatsByIDs(ctx context.Context, ids []uint64) ([]model.Seat, error)
	SeatsByHall(ctx context.Context, hallID uint64) ([]model.Seat, error)

	// OpenHoldsBySeats returns HOLD/CLAIMED holds for exactly the given
	// seats of a screening.  Terminal holds are never returned.
	OpenHoldsBySeats(ctx context.Context, screeningID uint64, seatIDs []uint64) ([]model.SeatHold, error)
	HoldsByIDs(ctx context.Context, ids []uint64) ([]model.SeatHold, error)
	HoldsByToken(ctx context.Context, screeningID uint64, token string) ([]model.SeatHold, error)
	HoldsByOrder(ctx context.Context, orderID uint64) ([]model.SeatHold, error)
	// ExpiredOpenHolds returns HOLD/CLAIMED holds with expires_at <= now.
	ExpiredOpenHolds(ctx context.Context, now time.Time) ([]model.SeatHold, error)

	// LatestStatusBySeats returns, per requested seat, the most recently
	// created status row.  Seats with no row yet are absent from the
	// result (treated as AVAILABLE by callers).
	LatestStatusBySeats(ctx context.Context, screeningID uint64, seatIDs []uint64) (map[uint64]model.SeatStatus, error)
	// LatestSeatStatuses returns the authoritative status row of every
	// seat of a screening that has at least one row.
	LatestSeatStatuses(ctx context.Context, screeningID uint64) (map[uint64]model.SeatStatus, error)

	GetOrder(ctx context.Context, id uint64) (*model.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*model.Order, error)
	OrdersByUser(ctx context.Context, userID uint64) ([]model.Order, error)

	TicketsByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error)
	// StalePendingTickets returns PENDING tickets created before the
	// cutoff whose order is still PENDING.
	StalePendingTickets(ctx context.Context, cutoff time.Time) ([]model.Ticket, error)

	GetPayment(ctx context.Context, id uint64) (*model.Payment, error)
	PaymentsByOrder(ctx context.Context, orderID uint64) ([]model.Payment, error)
	PaymentByProviderTxID(ctx context.Context, gateway, providerTxID string) (*model.Payment, error)
	PaymentByProviderRef(ctx context.Context, gateway, providerRef string) (*model.Payment, error)
	// LatestPendingPaymentByOrder returns the most recent PENDING
	// payment for an order, optionally narrowed to one gateway
	// (empty string matches any).
	LatestPendingPaymentByOrder(ctx context.Context, orderID uint64, gateway string) (*model.Payment, error)
	// PendingPaymentsOfExpiredOrders returns PENDING payments whose
	// order is PENDING and past its expiry.
	PendingPaymentsOfExpiredOrders(ctx context.Context, now time.Time) ([]model.Payment, error)

	WebhookEventByKey(ctx context.Context, key string) (*model.WebhookEvent, error)

	RefundByIdempotencyKey(ctx context.Context, key string) (*model.Refund, error)
	// SuccessfulRefundTotal sums SUCCESS refund amounts for a payment.
	SuccessfulRefundTotal(ctx context.Context, paymentID uint64) (int64, error)

	GetVoucher(ctx context.Context, id uint64) (*model.Voucher, error)
	VoucherByCode(ctx context.Context, code string) (*model.Voucher, error)
	CombosByCodes(ctx context.Context, codes []string) ([]model.Combo, error)
}

// Writer bundles the mutating operations.  They are only reachable
// through a transaction.  Create methods assign the generated id to
// the passed record.
type Writer interface {
	CreateHall(ctx context.Context, h *model.Hall) error
	CreateSeat(ctx context.Context, s *model.Seat) error
	CreateScreening(ctx context.Context, s *model.Screening) error
	CreateVoucher(ctx context.Context, v *model.Voucher) error
	CreateCombo(ctx context.Context, c *model.Combo) error

	CreateHold(ctx context.Context, h *model.SeatHold) error
	UpdateHold(ctx context.Context, h *model.SeatHold) error

	AppendSeatStatus(ctx context.Context, s *model.SeatStatus) error

	CreateOrder(ctx context.Context, o *model.Order) error
	UpdateOrder(ctx context.Context, o *model.Order) error

	CreateTicket(ctx context.Context, t *model.Ticket) error
	UpdateTicket(ctx context.Context, t *model.Ticket) error

	CreatePayment(ctx context.Context, p *model.Payment) error
	UpdatePayment(ctx context.Context, p *model.Payment) error

	CreateWebhookEvent(ctx context.Context, e *model.WebhookEvent) error
	UpdateWebhookEvent(ctx context.Context, e *model.WebhookEvent) error

	CreateRefund(ctx context.Context, r *model.Refund) error
	UpdateRefund(ctx context.Context, r *model.Refund) error

	UpdateVoucher(ctx context.Context, v *model.Voucher) error
}

// Tx is the view of the store inside one transaction.
type Tx interface {
	Reader
	Writer
}

// Store is the root handle.  WithTx runs fn inside a single
// transaction; any error (or panic) rolls every write back.  The
// seat-conflict-check-then-write and hold-claim-then-ticket-create
// sequences of the core each run inside exactly one WithTx call.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
