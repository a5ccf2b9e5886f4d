package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kinohall/cinema-ticketing/internal/gateway"
	"github.com/kinohall/cinema-ticketing/internal/lock"
	"github.com/kinohall/cinema-ticketing/internal/model"
	"github.com/kinohall/cinema-ticketing/internal/store"
)

const testMockPaySecret = "test-webhook-secret"

// env bundles a fully wired service stack over the in-memory store,
// seeded with one hall of four seats (the last one VIP), a screening
// two hours out, a voucher and a combo.
type env struct {
	store     *store.Memory
	holds     *HoldService
	orders    *OrderService
	payments  *PaymentService
	mockpay   *gateway.MockPay
	screening model.Screening
	seats     []model.Seat
	voucher   model.Voucher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()

	e := &env{store: m}
	err := m.WithTx(ctx, func(tx store.Tx) error {
		hall := model.Hall{Name: "Hall 1"}
		if err := tx.CreateHall(ctx, &hall); err != nil {
			return err
		}
		for i := 0; i < 4; i++ {
			seat := model.Seat{
				HallID:     hall.ID,
				RowLabel:   "A",
				SeatNumber: uint32(i + 1),
				SeatType:   model.SeatTypeStandard,
			}
			if i == 3 {
				seat.SeatType = model.SeatTypeVIP
				seat.PriceFactorPct = 150
			}
			if err := tx.CreateSeat(ctx, &seat); err != nil {
				return err
			}
			e.seats = append(e.seats, seat)
		}
		e.screening = model.Screening{
			HallID:         hall.ID,
			MovieTitle:     "Night Train",
			StartsAt:       time.Now().UTC().Add(2 * time.Hour),
			BasePriceCents: 50000,
		}
		if err := tx.CreateScreening(ctx, &e.screening); err != nil {
			return err
		}
		e.voucher = model.Voucher{Code: "SAVE100", ValueCents: 10000}
		if err := tx.CreateVoucher(ctx, &e.voucher); err != nil {
			return err
		}
		return tx.CreateCombo(ctx, &model.Combo{Code: "POPCORN", Name: "Popcorn + Cola", PriceCents: 25000})
	})
	require.NoError(t, err)

	e.mockpay = gateway.NewMockPay(testMockPaySecret)
	registry := gateway.NewRegistry(e.mockpay)
	e.holds = NewHoldService(m, lock.NopLocker{}, 10*time.Minute)
	e.orders = NewOrderService(m, NewStoreCatalog(m), NewStoreVouchers(m), nil)
	e.payments = NewPaymentService(m, registry, e.orders)
	return e
}

func (e *env) seatIDs(n int) []uint64 {
	ids := make([]uint64, 0, n)
	for i := 0; i < n && i < len(e.seats); i++ {
		ids = append(ids, e.seats[i].ID)
	}
	return ids
}

// holdSeats places holds for a user and fails the test on error.
func (e *env) holdSeats(t *testing.T, userID uint64, seatIDs []uint64) *HoldResult {
	t.Helper()
	res, err := e.holds.CreateHolds(context.Background(), e.screening.ID, seatIDs, userID)
	require.NoError(t, err)
	return res
}

// placeOrder builds a PENDING order from fresh holds.
func (e *env) placeOrder(t *testing.T, userID uint64, seatIDs []uint64, key string) *OrderResult {
	t.Helper()
	hr := e.holdSeats(t, userID, seatIDs)
	res, err := e.orders.CreateOrder(context.Background(), userID, CreateOrderInput{
		IdempotencyKey: key,
		HoldIDs:        hr.HoldIDs,
	})
	require.NoError(t, err)
	return res
}

// seatStatus returns the latest status string for one seat, or
// AVAILABLE when no row exists.
func (e *env) seatStatus(t *testing.T, seatID uint64) string {
	t.Helper()
	statuses, err := e.store.LatestStatusBySeats(context.Background(), e.screening.ID, []uint64{seatID})
	require.NoError(t, err)
	st, ok := statuses[seatID]
	if !ok {
		return model.SeatAvailable
	}
	return st.Status
}
