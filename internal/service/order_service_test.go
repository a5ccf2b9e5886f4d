package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinohall/cinema-ticketing/internal/model"
	"github.com/kinohall/cinema-ticketing/internal/store"
)

func TestCreateOrderHappyPath(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.placeOrder(t, 1, e.seatIDs(2), "key-1")

	order := res.Order
	assert.Equal(t, model.OrderPending, order.Status)
	assert.Equal(t, e.seatIDs(2), order.SeatIDs)
	assert.Equal(t, int64(100000), order.Pricing.BaseCents)
	assert.Equal(t, int64(100000), order.Pricing.TotalCents)
	assert.Contains(t, order.QRCode, "KINO|")

	// One PENDING ticket per seat, shares summing to the total.
	require.Len(t, res.Tickets, 2)
	var sum int64
	for _, tk := range res.Tickets {
		assert.Equal(t, model.TicketPending, tk.Status)
		assert.NotEmpty(t, tk.Code)
		sum += tk.PriceCents
	}
	assert.Equal(t, order.Pricing.TotalCents, sum)

	// The holds are claimed and bound to the order.
	holds, err := e.store.HoldsByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, holds, 2)
	for _, h := range holds {
		assert.Equal(t, model.HoldClaimed, h.Status)
	}
}

func TestCreateOrderIdempotentRetry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hr := e.holdSeats(t, 1, e.seatIDs(2))
	input := CreateOrderInput{IdempotencyKey: "retry-key", HoldIDs: hr.HoldIDs}

	first, err := e.orders.CreateOrder(ctx, 1, input)
	require.NoError(t, err)

	// The retry must return the same order even though the holds are now
	// CLAIMED and would fail validation.
	second, err := e.orders.CreateOrder(ctx, 1, input)
	require.NoError(t, err)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, second.Tickets, 2)

	orders, err := e.orders.ListOrders(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, orders, 1, "retries must not create a second order")
}

func TestCreateOrderRequiresIdempotencyKey(t *testing.T) {
	e := newEnv(t)
	hr := e.holdSeats(t, 1, e.seatIDs(1))

	_, err := e.orders.CreateOrder(context.Background(), 1, CreateOrderInput{HoldIDs: hr.HoldIDs})
	assert.ErrorIs(t, err, ErrIdempotencyKeyRequired)
}

func TestCreateOrderRejectsForeignAndStaleHolds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hr := e.holdSeats(t, 1, e.seatIDs(1))

	// Someone else's holds.
	_, err := e.orders.CreateOrder(ctx, 2, CreateOrderInput{IdempotencyKey: "k-foreign", HoldIDs: hr.HoldIDs})
	assert.ErrorIs(t, err, ErrInvalidOrStaleHold)

	// Expired holds.
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		holds, err := tx.HoldsByIDs(ctx, hr.HoldIDs)
		if err != nil {
			return err
		}
		holds[0].ExpiresAt = time.Now().UTC().Add(-time.Second)
		return tx.UpdateHold(ctx, &holds[0])
	})
	require.NoError(t, err)
	_, err = e.orders.CreateOrder(ctx, 1, CreateOrderInput{IdempotencyKey: "k-stale", HoldIDs: hr.HoldIDs})
	assert.ErrorIs(t, err, ErrInvalidOrStaleHold)

	// Unknown hold ids.
	_, err = e.orders.CreateOrder(ctx, 1, CreateOrderInput{IdempotencyKey: "k-missing", HoldIDs: []uint64{98765}})
	assert.ErrorIs(t, err, ErrInvalidOrStaleHold)
}

func TestCreateOrderRejectsCrossScreeningHolds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var other model.Screening
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		other = model.Screening{
			HallID:         e.screening.HallID,
			MovieTitle:     "Late Show",
			StartsAt:       time.Now().UTC().Add(4 * time.Hour),
			BasePriceCents: 40000,
		}
		return tx.CreateScreening(ctx, &other)
	})
	require.NoError(t, err)

	h1 := e.holdSeats(t, 1, []uint64{e.seats[0].ID})
	h2, err := e.holds.CreateHolds(ctx, other.ID, []uint64{e.seats[1].ID}, 1)
	require.NoError(t, err)

	_, err = e.orders.CreateOrder(ctx, 1, CreateOrderInput{
		IdempotencyKey: "k-cross",
		HoldIDs:        append(h1.HoldIDs, h2.HoldIDs...),
	})
	assert.ErrorIs(t, err, ErrCrossScreeningOrder)
}

func TestCreateOrderPricingWithVoucherAndCombo(t *testing.T) {
	e := newEnv(t)
	hr := e.holdSeats(t, 1, []uint64{e.seats[0].ID, e.seats[3].ID}) // standard + VIP

	res, err := e.orders.CreateOrder(context.Background(), 1, CreateOrderInput{
		IdempotencyKey: "k-priced",
		HoldIDs:        hr.HoldIDs,
		VoucherCode:    "SAVE100",
		Combos:         []model.ComboSelection{{Code: "POPCORN", Quantity: 2}},
	})
	require.NoError(t, err)

	p := res.Order.Pricing
	assert.Equal(t, int64(125000), p.BaseCents, "50000 standard + 75000 VIP")
	assert.Equal(t, int64(50000), p.ComboCents)
	assert.Equal(t, int64(10000), p.VoucherCents)
	assert.Equal(t, int64(165000), p.TotalCents)
	require.NotNil(t, res.Order.VoucherID)
	assert.Equal(t, e.voucher.ID, *res.Order.VoucherID)
}

func TestCreateOrderRejectsBadVoucherAndCombo(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	hr := e.holdSeats(t, 1, []uint64{e.seats[0].ID})
	_, err := e.orders.CreateOrder(ctx, 1, CreateOrderInput{
		IdempotencyKey: "k-badv",
		HoldIDs:        hr.HoldIDs,
		VoucherCode:    "NOPE",
	})
	assert.ErrorIs(t, err, ErrVoucherInvalid)

	_, err = e.orders.CreateOrder(ctx, 1, CreateOrderInput{
		IdempotencyKey: "k-badc",
		HoldIDs:        hr.HoldIDs,
		Combos:         []model.ComboSelection{{Code: "NACHOS", Quantity: 1}},
	})
	assert.Error(t, err)
}

func TestCreateOrderLegacyTokenPath(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seatIDs := e.seatIDs(2)
	hr := e.holdSeats(t, 1, seatIDs)

	res, err := e.orders.CreateOrderLegacy(ctx, 1, e.screening.ID, hr.HoldToken, seatIDs,
		CreateOrderInput{IdempotencyKey: "k-legacy"})
	require.NoError(t, err)
	assert.Equal(t, seatIDs, res.Order.SeatIDs)

	// A seat outside the token's hold set is rejected.
	_, err = e.orders.CreateOrderLegacy(ctx, 1, e.screening.ID, hr.HoldToken, []uint64{e.seats[2].ID},
		CreateOrderInput{IdempotencyKey: "k-legacy-2"})
	assert.ErrorIs(t, err, ErrInvalidOrStaleHold)

	_, err = e.orders.CreateOrderLegacy(ctx, 1, e.screening.ID, "", seatIDs,
		CreateOrderInput{IdempotencyKey: "k-legacy-3"})
	assert.ErrorIs(t, err, ErrInvalidOrStaleHold)
}

func TestCancelOrderReleasesSeats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seatIDs := e.seatIDs(2)
	res := e.placeOrder(t, 1, seatIDs, "k-cancel")

	// The wrong user cannot cancel.
	err := e.orders.CancelOrder(ctx, 2, res.Order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	require.NoError(t, e.orders.CancelOrder(ctx, 1, res.Order.ID))

	got, err := e.orders.GetOrder(ctx, 1, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, got.Order.Status)
	for _, tk := range got.Tickets {
		assert.Equal(t, model.TicketCanceled, tk.Status)
	}
	for _, id := range seatIDs {
		assert.Equal(t, model.SeatAvailable, e.seatStatus(t, id))
	}

	// Re-cancel is a no-op; cancel after cancel of another user's view
	// stays impossible.
	require.NoError(t, e.orders.CancelOrder(ctx, 1, res.Order.ID))

	// The seats are immediately resellable.
	e.holdSeats(t, 2, seatIDs)
}

func TestUpdateOrderStatusPaid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seatIDs := e.seatIDs(2)
	res := e.placeOrder(t, 1, seatIDs, "k-pay")

	require.NoError(t, e.orders.UpdateOrderStatus(ctx, res.Order.ID, model.OrderPaid))

	got, err := e.orders.GetOrder(ctx, 1, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, got.Order.Status)
	for _, tk := range got.Tickets {
		assert.Equal(t, model.TicketIssued, tk.Status)
	}
	for _, id := range seatIDs {
		assert.Equal(t, model.SeatSold, e.seatStatus(t, id))
	}

	// Same-status repeat is a no-op, not an error.
	require.NoError(t, e.orders.UpdateOrderStatus(ctx, res.Order.ID, model.OrderPaid))

	// A paid order cannot be cancelled.
	err = e.orders.CancelOrder(ctx, 1, res.Order.ID)
	assert.ErrorIs(t, err, ErrInvalidOrderState)
}

func TestUpdateOrderStatusInvalidTransition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.placeOrder(t, 1, e.seatIDs(1), "k-bad-trans")
	require.NoError(t, e.orders.UpdateOrderStatus(ctx, res.Order.ID, model.OrderCancelled))

	err := e.orders.UpdateOrderStatus(ctx, res.Order.ID, model.OrderPaid)
	assert.ErrorIs(t, err, ErrInvalidOrderState)

	// The failed transition mutated nothing.
	got, err := e.orders.GetOrder(ctx, 1, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, got.Order.Status)
}

func TestPaidOrderMarksVoucherUsed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hr := e.holdSeats(t, 1, e.seatIDs(1))
	res, err := e.orders.CreateOrder(ctx, 1, CreateOrderInput{
		IdempotencyKey: "k-voucher-used",
		HoldIDs:        hr.HoldIDs,
		VoucherCode:    "SAVE100",
	})
	require.NoError(t, err)

	require.NoError(t, e.orders.UpdateOrderStatus(ctx, res.Order.ID, model.OrderPaid))

	vo, err := e.store.VoucherByCode(ctx, "SAVE100")
	require.NoError(t, err)
	assert.True(t, vo.Used)
	require.NotNil(t, vo.OrderID)
	assert.Equal(t, res.Order.ID, *vo.OrderID)

	// The voucher cannot be used again by anyone.
	hr2 := e.holdSeats(t, 2, []uint64{e.seats[1].ID})
	_, err = e.orders.CreateOrder(ctx, 2, CreateOrderInput{
		IdempotencyKey: "k-voucher-reuse",
		HoldIDs:        hr2.HoldIDs,
		VoucherCode:    "SAVE100",
	})
	assert.ErrorIs(t, err, ErrVoucherInvalid)
}

func TestSweepStaleTickets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seatIDs := e.seatIDs(2)
	res := e.placeOrder(t, 1, seatIDs, "k-stale-tickets")

	// maxAge zero makes every pending ticket stale immediately.
	failed, err := e.orders.SweepStaleTickets(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, failed)

	got, err := e.orders.GetOrder(ctx, 1, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderExpired, got.Order.Status)
	for _, tk := range got.Tickets {
		assert.Equal(t, model.TicketFailed, tk.Status)
	}
	for _, id := range seatIDs {
		assert.Equal(t, model.SeatAvailable, e.seatStatus(t, id))
	}

	// A second pass finds nothing.
	failed, err = e.orders.SweepStaleTickets(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, failed)
}

func TestSweepStaleTicketsExpiresMixedCanceledOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.placeOrder(t, 1, e.seatIDs(2), "k-stale-mixed")

	// One ticket was already canceled; the other goes stale.
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		tk := res.Tickets[0]
		tk.Status = model.TicketCanceled
		return tx.UpdateTicket(ctx, &tk)
	})
	require.NoError(t, err)

	failed, err := e.orders.SweepStaleTickets(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	o, err := e.store.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderExpired, o.Status)
}

func TestPaidTransitionRecreatesMissingTickets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// An order whose ticket rows are gone, however that happened.
	seatIDs := e.seatIDs(2)
	order := &model.Order{
		UserID:         1,
		ScreeningID:    e.screening.ID,
		IdempotencyKey: "k-no-tickets",
		Status:         model.OrderPending,
		SeatIDs:        seatIDs,
		Pricing:        model.PriceBreakdown{BaseCents: 100001, TotalCents: 100001},
		ExpiresAt:      time.Now().UTC().Add(10 * time.Minute),
	}
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateOrder(ctx, order)
	})
	require.NoError(t, err)

	require.NoError(t, e.orders.UpdateOrderStatus(ctx, order.ID, model.OrderPaid))

	tickets, err := e.store.TicketsByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	var sum int64
	for _, tk := range tickets {
		assert.Equal(t, model.TicketIssued, tk.Status)
		assert.NotEmpty(t, tk.Code)
		sum += tk.PriceCents
	}
	assert.Equal(t, int64(100001), sum)
}

func TestGetOrderEnforcesOwnership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.placeOrder(t, 1, e.seatIDs(1), "k-own")

	_, err := e.orders.GetOrder(ctx, 2, res.Order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = e.orders.GetOrder(ctx, 1, 99999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
