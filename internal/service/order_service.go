package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kinohall/cinema-ticketing/internal/logger"
	"github.com/kinohall/cinema-ticketing/internal/model"
	"github.com/kinohall/cinema-ticketing/internal/store"
)

// OrderService assembles orders from seat holds and drives the order
// state machine.  Order creation and the claim of its holds happen in
// one transaction; a failure anywhere rolls the whole order back.
type OrderService struct {
	store    store.Store
	catalog  Catalog
	vouchers VoucherService
	notifier Notifier
}

func NewOrderService(s store.Store, catalog Catalog, vouchers VoucherService, notifier Notifier) *OrderService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &OrderService{store: s, catalog: catalog, vouchers: vouchers, notifier: notifier}
}

// CreateOrderInput carries everything the client supplies for an
// order.  The idempotency key makes retries safe: the same key always
// maps onto the same order.
type CreateOrderInput struct {
	IdempotencyKey string
	HoldIDs        []uint64
	VoucherCode    string
	Combos         []model.ComboSelection
}

// OrderResult is an order together with its tickets.
type OrderResult struct {
	Order   *model.Order
	Tickets []model.Ticket
}

// errOrderRaced signals that the unique idempotency-key constraint
// fired inside the transaction: someone else created the order first.
var errOrderRaced = errors.New("order creation raced")

// CreateOrder turns a set of the caller's active holds into a PENDING
// order with one PENDING ticket per seat.  Retries with the same
// idempotency key return the already-created order; the unique
// constraint on the key is the ultimate guard when two retries race.
func (s *OrderService) CreateOrder(ctx context.Context, userID uint64, input CreateOrderInput) (*OrderResult, error) {
	if input.IdempotencyKey == "" {
		return nil, ErrIdempotencyKeyRequired
	}
	if existing, err := s.orderByKey(ctx, userID, input.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	holdIDs := dedupeIDs(input.HoldIDs)
	if len(holdIDs) == 0 {
		return nil, ErrInvalidOrStaleHold
	}

	var voucher *model.Voucher
	if input.VoucherCode != "" {
		var err error
		voucher, err = s.vouchers.Validate(ctx, input.VoucherCode, userID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	result := &OrderResult{}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		holds, err := tx.HoldsByIDs(ctx, holdIDs)
		if err != nil {
			return fmt.Errorf("load holds: %w", err)
		}
		if len(holds) != len(holdIDs) {
			return ErrInvalidOrStaleHold
		}
		screeningID := holds[0].ScreeningID
		for i := range holds {
			h := &holds[i]
			if h.UserID != userID || h.Status != model.HoldActive || h.Expired(now) {
				return ErrInvalidOrStaleHold
			}
			if h.ScreeningID != screeningID {
				return ErrCrossScreeningOrder
			}
		}

		screening, err := tx.GetScreening(ctx, screeningID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrScreeningNotFound
			}
			return fmt.Errorf("load screening: %w", err)
		}
		if screening.HasStarted(now) {
			return ErrScreeningStarted
		}

		seatIDs := make([]uint64, len(holds))
		for i := range holds {
			seatIDs[i] = holds[i].SeatID
		}
		seats, err := tx.SeatsByIDs(ctx, seatIDs)
		if err != nil {
			return fmt.Errorf("load seats: %w", err)
		}
		if len(seats) != len(seatIDs) {
			return ErrSeatNotFound
		}

		pricing, err := s.price(ctx, seats, screening, voucher, input.Combos)
		if err != nil {
			return err
		}

		order := &model.Order{
			UserID:         userID,
			ScreeningID:    screeningID,
			IdempotencyKey: input.IdempotencyKey,
			Status:         model.OrderPending,
			SeatIDs:        seatIDs,
			Pricing:        pricing,
			ExpiresAt:      holds[0].ExpiresAt,
		}
		if voucher != nil {
			vid := voucher.ID
			order.VoucherID = &vid
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return errOrderRaced
			}
			return fmt.Errorf("create order: %w", err)
		}

		// QR payload is assigned exactly once, now that the id exists.
		order.QRCode = fmt.Sprintf("KINO|%d|%s", order.ID, uuid.NewString())
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("assign qr code: %w", err)
		}

		// Claim the holds so they survive their TTL for as long as the
		// order is alive.
		for i := range holds {
			h := &holds[i]
			h.Status = model.HoldClaimed
			h.OrderID = &order.ID
			if err := tx.UpdateHold(ctx, h); err != nil {
				return fmt.Errorf("claim hold: %w", err)
			}
			uid := userID
			exp := h.ExpiresAt
			if err := tx.AppendSeatStatus(ctx, &model.SeatStatus{
				ScreeningID:   screeningID,
				SeatID:        h.SeatID,
				Status:        model.SeatHeld,
				HolderUserID:  &uid,
				HoldExpiresAt: &exp,
				OrderID:       &order.ID,
			}); err != nil {
				return fmt.Errorf("append seat status: %w", err)
			}
		}

		shares := model.ApportionCents(pricing.TotalCents, len(seatIDs))
		tickets := make([]model.Ticket, 0, len(seatIDs))
		for i, seatID := range seatIDs {
			t := model.Ticket{
				OrderID:     order.ID,
				ScreeningID: screeningID,
				SeatID:      seatID,
				UserID:      userID,
				Status:      model.TicketPending,
				PriceCents:  shares[i],
				Code:        uuid.NewString(),
			}
			if err := tx.CreateTicket(ctx, &t); err != nil {
				return fmt.Errorf("create ticket: %w", err)
			}
			tickets = append(tickets, t)
		}

		result.Order = order
		result.Tickets = tickets
		return nil
	})
	if errors.Is(err, errOrderRaced) {
		// Lost the race: the winner's order is the order.
		if existing, lerr := s.orderByKey(ctx, userID, input.IdempotencyKey); lerr == nil && existing != nil {
			return existing, nil
		}
		return nil, ErrInvalidOrStaleHold
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateOrderLegacy resolves a hold token plus seat list to the
// canonical hold set and delegates to CreateOrder, so both entry
// points share one assembly path.
func (s *OrderService) CreateOrderLegacy(ctx context.Context, userID uint64, screeningID uint64, holdToken string, seatIDs []uint64, input CreateOrderInput) (*OrderResult, error) {
	seatIDs = dedupeIDs(seatIDs)
	if holdToken == "" || len(seatIDs) == 0 {
		return nil, ErrInvalidOrStaleHold
	}
	holds, err := s.store.HoldsByToken(ctx, screeningID, holdToken)
	if err != nil {
		return nil, fmt.Errorf("load holds by token: %w", err)
	}
	bySeat := make(map[uint64]uint64, len(holds))
	for i := range holds {
		if holds[i].Status == model.HoldActive {
			bySeat[holds[i].SeatID] = holds[i].ID
		}
	}
	input.HoldIDs = make([]uint64, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		holdID, ok := bySeat[seatID]
		if !ok {
			return nil, ErrInvalidOrStaleHold
		}
		input.HoldIDs = append(input.HoldIDs, holdID)
	}
	return s.CreateOrder(ctx, userID, input)
}

// GetOrder returns one of the user's orders with its tickets.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uint64) (*OrderResult, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	tickets, err := s.store.TicketsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load tickets: %w", err)
	}
	return &OrderResult{Order: order, Tickets: tickets}, nil
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID uint64) ([]model.Order, error) {
	return s.store.OrdersByUser(ctx, userID)
}

// CancelOrder cancels one of the user's PENDING orders, releasing its
// holds and freeing its seats.  Cancelling an already cancelled order
// is a no-op.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID uint64) error {
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("load order: %w", err)
		}
		if order.UserID != userID {
			return ErrOrderNotFound
		}
		if order.Status == model.OrderCancelled {
			return nil
		}
		return transitionOrder(ctx, tx, order, model.OrderCancelled)
	})
}

// UpdateOrderStatus moves an order through its state machine.  Asking
// for the status the order already has is a no-op, which makes the
// PENDING->PAID step safe under repeated webhook delivery.  Invalid
// transitions fail without mutating anything.
//
// Side effects of reaching PAID that live outside the transaction
// (voucher redemption, notifications) run after commit and never roll
// the order back.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID uint64, newStatus string) error {
	var paidOrder *model.Order
	var paidTickets []model.Ticket
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("load order: %w", err)
		}
		if order.Status == newStatus {
			return nil
		}
		if err := transitionOrder(ctx, tx, order, newStatus); err != nil {
			return err
		}
		if newStatus == model.OrderPaid {
			tickets, err := tx.TicketsByOrder(ctx, orderID)
			if err != nil {
				return fmt.Errorf("load tickets: %w", err)
			}
			paidOrder = order
			paidTickets = tickets
		}
		return nil
	})
	if err != nil {
		return err
	}
	if paidOrder != nil {
		s.afterPaid(ctx, paidOrder, paidTickets)
	}
	return nil
}

// afterPaid runs the post-commit effects of a successful payment.
// Both are idempotent or harmless on repeat, so a crash between commit
// and here costs at most a retry.
func (s *OrderService) afterPaid(ctx context.Context, order *model.Order, tickets []model.Ticket) {
	if order.VoucherID != nil && s.vouchers != nil {
		if err := s.vouchers.MarkUsed(ctx, *order.VoucherID, order.ID); err != nil {
			logger.Warn("voucher redemption failed",
				zap.Uint64("order_id", order.ID),
				zap.Uint64("voucher_id", *order.VoucherID),
				zap.Error(err))
		}
	}
	if err := s.notifier.OrderPaid(ctx, order, tickets); err != nil {
		logger.Warn("order paid notification failed",
			zap.Uint64("order_id", order.ID), zap.Error(err))
	}
}

// SweepStaleTickets fails PENDING tickets older than maxAge whose
// order is still PENDING, and expires orders once every ticket is
// FAILED or CANCELED.  Returns the number of tickets failed.
func (s *OrderService) SweepStaleTickets(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	failed := 0
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		stale, err := tx.StalePendingTickets(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("load stale tickets: %w", err)
		}
		touched := make(map[uint64]bool)
		for i := range stale {
			t := stale[i]
			t.Status = model.TicketFailed
			if err := tx.UpdateTicket(ctx, &t); err != nil {
				return fmt.Errorf("fail ticket: %w", err)
			}
			failed++
			touched[t.OrderID] = true
		}
		for orderID := range touched {
			tickets, err := tx.TicketsByOrder(ctx, orderID)
			if err != nil {
				return fmt.Errorf("load tickets: %w", err)
			}
			dead := true
			for i := range tickets {
				if tickets[i].Status != model.TicketFailed && tickets[i].Status != model.TicketCanceled {
					dead = false
					break
				}
			}
			if !dead {
				continue
			}
			order, err := tx.GetOrder(ctx, orderID)
			if err != nil {
				return fmt.Errorf("load order: %w", err)
			}
			if order.Status != model.OrderPending {
				continue
			}
			if err := transitionOrder(ctx, tx, order, model.OrderExpired); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return failed, nil
}

// price computes the persisted breakdown: seat prices via the per-seat
// factor over the screening base, combo total from the catalog,
// voucher capped at the seat subtotal, grand total floored at zero.
func (s *OrderService) price(ctx context.Context, seats []model.Seat, screening *model.Screening, voucher *model.Voucher, combos []model.ComboSelection) (model.PriceBreakdown, error) {
	var p model.PriceBreakdown
	for i := range seats {
		p.BaseCents += seats[i].PriceCents(screening.BasePriceCents)
	}
	if len(combos) > 0 && s.catalog != nil {
		comboCents, err := s.catalog.ComboTotal(ctx, combos)
		if err != nil {
			return model.PriceBreakdown{}, err
		}
		p.ComboCents = comboCents
	}
	if voucher != nil {
		p.VoucherCents = voucher.ValueCents
		if p.VoucherCents > p.BaseCents {
			p.VoucherCents = p.BaseCents
		}
	}
	p.TotalCents = p.BaseCents + p.ComboCents - p.DiscountCents - p.VoucherCents
	if p.TotalCents < 0 {
		p.TotalCents = 0
	}
	return p, nil
}

// orderByKey looks up the user's order for an idempotency key.  A key
// that belongs to a different user is treated as absent.
func (s *OrderService) orderByKey(ctx context.Context, userID uint64, key string) (*OrderResult, error) {
	order, err := s.store.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load order by key: %w", err)
	}
	if order.UserID != userID {
		return nil, nil
	}
	tickets, err := s.store.TicketsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load tickets: %w", err)
	}
	return &OrderResult{Order: order, Tickets: tickets}, nil
}

// transitionOrder applies one state-machine step and its in-transaction
// effects.  PAID issues tickets and marks seats SOLD; CANCELLED and
// EXPIRED tear the order down and free its seats; REFUNDED flips
// issued tickets and frees the seats for resale.
func transitionOrder(ctx context.Context, tx store.Tx, order *model.Order, to string) error {
	if !model.OrderCanTransition(order.Status, to) {
		return ErrInvalidOrderState
	}
	switch to {
	case model.OrderPaid:
		tickets, err := tx.TicketsByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("load tickets: %w", err)
		}
		if len(tickets) == 0 {
			// Tickets are created with the order, so an order without any
			// means the rows were lost.  Recreate them issued rather than
			// paying an order that has nothing to hand out.
			shares := model.ApportionCents(order.Pricing.TotalCents, len(order.SeatIDs))
			for i, seatID := range order.SeatIDs {
				t := model.Ticket{
					OrderID:     order.ID,
					ScreeningID: order.ScreeningID,
					SeatID:      seatID,
					UserID:      order.UserID,
					Status:      model.TicketIssued,
					PriceCents:  shares[i],
					Code:        uuid.NewString(),
				}
				if err := tx.CreateTicket(ctx, &t); err != nil {
					return fmt.Errorf("create ticket: %w", err)
				}
			}
		}
		for i := range tickets {
			t := tickets[i]
			if t.Status != model.TicketPending {
				continue
			}
			t.Status = model.TicketIssued
			if err := tx.UpdateTicket(ctx, &t); err != nil {
				return fmt.Errorf("update ticket: %w", err)
			}
		}
		for _, seatID := range order.SeatIDs {
			oid := order.ID
			if err := tx.AppendSeatStatus(ctx, &model.SeatStatus{
				ScreeningID: order.ScreeningID,
				SeatID:      seatID,
				Status:      model.SeatSold,
				OrderID:     &oid,
			}); err != nil {
				return fmt.Errorf("append seat status: %w", err)
			}
		}
	case model.OrderCancelled, model.OrderExpired:
		ticketTo := model.TicketCanceled
		holdTo := model.HoldReleased
		if to == model.OrderExpired {
			ticketTo = model.TicketFailed
			holdTo = model.HoldExpired
		}
		if err := setTicketStatuses(ctx, tx, order.ID, model.TicketPending, ticketTo); err != nil {
			return err
		}
		holds, err := tx.HoldsByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("load order holds: %w", err)
		}
		for i := range holds {
			h := holds[i]
			if !h.Open() {
				continue
			}
			if err := releaseHold(ctx, tx, &h, holdTo); err != nil {
				return err
			}
		}
	case model.OrderRefunded:
		if err := setTicketStatuses(ctx, tx, order.ID, model.TicketIssued, model.TicketRefunded); err != nil {
			return err
		}
		for _, seatID := range order.SeatIDs {
			if err := tx.AppendSeatStatus(ctx, &model.SeatStatus{
				ScreeningID: order.ScreeningID,
				SeatID:      seatID,
				Status:      model.SeatAvailable,
			}); err != nil {
				return fmt.Errorf("append seat status: %w", err)
			}
		}
	}
	order.Status = to
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func setTicketStatuses(ctx context.Context, tx store.Tx, orderID uint64, from, to string) error {
	tickets, err := tx.TicketsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load tickets: %w", err)
	}
	for i := range tickets {
		t := tickets[i]
		if t.Status != from {
			continue
		}
		t.Status = to
		if err := tx.UpdateTicket(ctx, &t); err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
	}
	return nil
}
