package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderCanTransition(t *testing.T) {
	allowed := [][2]string{
		{OrderPending, OrderPaid},
		{OrderPending, OrderCancelled},
		{OrderPending, OrderExpired},
		{OrderPaid, OrderRefunded},
	}
	for _, tr := range allowed {
		assert.True(t, OrderCanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]string{
		{OrderPaid, OrderPending},
		{OrderPaid, OrderCancelled},
		{OrderPaid, OrderExpired},
		{OrderCancelled, OrderPaid},
		{OrderExpired, OrderPaid},
		{OrderRefunded, OrderPaid},
		{OrderRefunded, OrderPending},
		{OrderPending, OrderRefunded},
	}
	for _, tr := range denied {
		assert.False(t, OrderCanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestApportionCents(t *testing.T) {
	cases := []struct {
		total int64
		n     int
		want  []int64
	}{
		{100, 1, []int64{100}},
		{100, 3, []int64{34, 33, 33}},
		{99, 2, []int64{50, 49}},
		{0, 3, []int64{0, 0, 0}},
		{5, 10, []int64{5, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, c := range cases {
		got := ApportionCents(c.total, c.n)
		assert.Equal(t, c.want, got)

		var sum int64
		for _, s := range got {
			sum += s
		}
		assert.Equal(t, c.total, sum, "shares must sum to the total")
	}
	assert.Nil(t, ApportionCents(100, 0))
}

func TestSeatPriceCents(t *testing.T) {
	std := Seat{SeatType: SeatTypeStandard}
	assert.Equal(t, int64(50000), std.PriceCents(50000))

	vip := Seat{SeatType: SeatTypeVIP, PriceFactorPct: 150}
	assert.Equal(t, int64(75000), vip.PriceCents(50000))

	// Rounds half up on odd factors.
	odd := Seat{PriceFactorPct: 125}
	assert.Equal(t, int64(124), odd.PriceCents(99))
}

func TestSeatIDsRoundTrip(t *testing.T) {
	s, err := EncodeSeatIDs([]uint64{3, 1, 2})
	assert.NoError(t, err)
	ids, err := DecodeSeatIDs(s)
	assert.NoError(t, err)
	assert.Equal(t, []uint64{3, 1, 2}, ids)

	ids, err = DecodeSeatIDs("")
	assert.NoError(t, err)
	assert.Nil(t, ids)
}
