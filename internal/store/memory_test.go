package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinohall/cinema-ticketing/internal/model"
)

func TestMemoryTxRollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.CreateHall(ctx, &model.Hall{Name: "A"}))
		require.NoError(t, tx.CreateOrder(ctx, &model.Order{IdempotencyKey: "k1", Status: model.OrderPending}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = m.GetOrderByIdempotencyKey(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDuplicateKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.WithTx(ctx, func(tx Tx) error {
		return tx.CreateOrder(ctx, &model.Order{IdempotencyKey: "dup", Status: model.OrderPending})
	})
	require.NoError(t, err)

	err = m.WithTx(ctx, func(tx Tx) error {
		return tx.CreateOrder(ctx, &model.Order{IdempotencyKey: "dup", Status: model.OrderPending})
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	err = m.WithTx(ctx, func(tx Tx) error {
		return tx.CreateWebhookEvent(ctx, &model.WebhookEvent{IdempotencyKey: "evt"})
	})
	require.NoError(t, err)
	err = m.WithTx(ctx, func(tx Tx) error {
		return tx.CreateWebhookEvent(ctx, &model.WebhookEvent{IdempotencyKey: "evt"})
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryLatestStatusWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.WithTx(ctx, func(tx Tx) error {
		for _, st := range []string{model.SeatAvailable, model.SeatHeld, model.SeatSold} {
			if err := tx.AppendSeatStatus(ctx, &model.SeatStatus{ScreeningID: 1, SeatID: 10, Status: st}); err != nil {
				return err
			}
		}
		return tx.AppendSeatStatus(ctx, &model.SeatStatus{ScreeningID: 1, SeatID: 11, Status: model.SeatHeld})
	})
	require.NoError(t, err)

	statuses, err := m.LatestStatusBySeats(ctx, 1, []uint64{10, 11, 12})
	require.NoError(t, err)
	assert.Equal(t, model.SeatSold, statuses[10].Status)
	assert.Equal(t, model.SeatHeld, statuses[11].Status)
	_, ok := statuses[12]
	assert.False(t, ok, "seat without rows is absent, callers treat it as AVAILABLE")

	all, err := m.LatestSeatStatuses(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryLatestPendingPayment(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.WithTx(ctx, func(tx Tx) error {
		for _, p := range []model.Payment{
			{OrderID: 1, Gateway: "mockpay", Status: model.PaymentFailed},
			{OrderID: 1, Gateway: "mockpay", Status: model.PaymentPending},
			{OrderID: 1, Gateway: "hmacpay", Status: model.PaymentPending},
		} {
			p := p
			if err := tx.CreatePayment(ctx, &p); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	p, err := m.LatestPendingPaymentByOrder(ctx, 1, "mockpay")
	require.NoError(t, err)
	assert.Equal(t, "mockpay", p.Gateway)

	// Empty gateway matches any; the newest pending row wins.
	p, err = m.LatestPendingPaymentByOrder(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "hmacpay", p.Gateway)

	_, err = m.LatestPendingPaymentByOrder(ctx, 2, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryExpiredOpenHolds(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	err := m.WithTx(ctx, func(tx Tx) error {
		for _, h := range []model.SeatHold{
			{ScreeningID: 1, SeatID: 1, Status: model.HoldActive, ExpiresAt: now.Add(-time.Minute)},
			{ScreeningID: 1, SeatID: 2, Status: model.HoldActive, ExpiresAt: now.Add(time.Minute)},
			{ScreeningID: 1, SeatID: 3, Status: model.HoldReleased, ExpiresAt: now.Add(-time.Minute)},
			{ScreeningID: 1, SeatID: 4, Status: model.HoldClaimed, ExpiresAt: now.Add(-time.Minute)},
		} {
			h := h
			if err := tx.CreateHold(ctx, &h); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	expired, err := m.ExpiredOpenHolds(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, uint64(1), expired[0].SeatID)
	assert.Equal(t, uint64(4), expired[1].SeatID)
}
