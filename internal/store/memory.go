package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kinohall/cinema-ticketing/internal/model"
)

// Memory is an in-memory Store used by the unit tests and the local
// development profile.  A single mutex serialises transactions, which
// gives the same serialisable-equivalent guarantees the MySQL store
// provides through database transactions.  WithTx snapshots the state
// up front and restores it when fn fails, so rollback semantics match
// the real store.
type Memory struct {
	memView
	mu sync.Mutex
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{}
	m.memView = memView{s: newMemState(), mu: &m.mu}
	return m
}

// WithTx implements Store.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.s.clone()
	if err := fn(&memView{s: m.s}); err != nil {
		*m.s = *snap
		return err
	}
	return nil
}

type memState struct {
	nextID     uint64
	halls      map[uint64]model.Hall
	seats      map[uint64]model.Seat
	screenings map[uint64]model.Screening
	holds      map[uint64]model.SeatHold
	statuses   []model.SeatStatus
	orders     map[uint64]model.Order
	tickets    map[uint64]model.Ticket
	payments   map[uint64]model.Payment
	events     map[uint64]model.WebhookEvent
	refunds    map[uint64]model.Refund
	vouchers   map[uint64]model.Voucher
	combos     map[uint64]model.Combo
}

func newMemState() *memState {
	return &memState{
		halls:      map[uint64]model.Hall{},
		seats:      map[uint64]model.Seat{},
		screenings: map[uint64]model.Screening{},
		holds:      map[uint64]model.SeatHold{},
		orders:     map[uint64]model.Order{},
		tickets:    map[uint64]model.Ticket{},
		payments:   map[uint64]model.Payment{},
		events:     map[uint64]model.WebhookEvent{},
		refunds:    map[uint64]model.Refund{},
		vouchers:   map[uint64]model.Voucher{},
		combos:     map[uint64]model.Combo{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:     s.nextID,
		halls:      make(map[uint64]model.Hall, len(s.halls)),
		seats:      make(map[uint64]model.Seat, len(s.seats)),
		screenings: make(map[uint64]model.Screening, len(s.screenings)),
		holds:      make(map[uint64]model.SeatHold, len(s.holds)),
		statuses:   append([]model.SeatStatus(nil), s.statuses...),
		orders:     make(map[uint64]model.Order, len(s.orders)),
		tickets:    make(map[uint64]model.Ticket, len(s.tickets)),
		payments:   make(map[uint64]model.Payment, len(s.payments)),
		events:     make(map[uint64]model.WebhookEvent, len(s.events)),
		refunds:    make(map[uint64]model.Refund, len(s.refunds)),
		vouchers:   make(map[uint64]model.Voucher, len(s.vouchers)),
		combos:     make(map[uint64]model.Combo, len(s.combos)),
	}
	for k, v := range s.halls {
		c.halls[k] = v
	}
	for k, v := range s.seats {
		c.seats[k] = v
	}
	for k, v := range s.screenings {
		c.screenings[k] = v
	}
	for k, v := range s.holds {
		c.holds[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.refunds {
		c.refunds[k] = v
	}
	for k, v := range s.vouchers {
		c.vouchers[k] = v
	}
	for k, v := range s.combos {
		c.combos[k] = v
	}
	return c
}

func (s *memState) id() uint64 {
	s.nextID++
	return s.nextID
}

// memView implements Reader and Writer over a memState.  When mu is
// non-nil every call locks it (top-level access); inside a transaction
// mu is nil because WithTx already holds the lock.
type memView struct {
	s  *memState
	mu *sync.Mutex
}

func (v *memView) lock() func() {
	if v.mu == nil {
		return func() {}
	}
	v.mu.Lock()
	return v.mu.Unlock
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// --- reads ---

func (v *memView) GetScreening(ctx context.Context, id uint64) (*model.Screening, error) {
	defer v.lock()()
	sc, ok := v.s.screenings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sc, nil
}

func (v *memView) SeatsByIDs(ctx context.Context, ids []uint64) ([]model.Seat, error) {
	defer v.lock()()
	out := make([]model.Seat, 0, len(ids))
	for _, id := range ids {
		if st, ok := v.s.seats[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (v *memView) SeatsByHall(ctx context.Context, hallID uint64) ([]model.Seat, error) {
	defer v.lock()()
	var out []model.Seat
	for _, st := range v.s.seats {
		if st.HallID == hallID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memView) OpenHoldsBySeats(ctx context.Context, screeningID uint64, seatIDs []uint64) ([]model.SeatHold, error) {
	defer v.lock()()
	want := make(map[uint64]bool, len(seatIDs))
	for _, id := range seatIDs {
		want[id] = true
	}
	var out []model.SeatHold
	for _, h := range v.s.holds {
		if h.ScreeningID == screeningID && want[h.SeatID] && h.Open() {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memView) HoldsByIDs(ctx context.Context, ids []uint64) ([]model.SeatHold, error) {
	defer v.lock()()
	out := make([]model.SeatHold, 0, len(ids))
	for _, id := range ids {
		if h, ok := v.s.holds[id]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (v *memView) HoldsByToken(ctx context.Context, screeningID uint64, token string) ([]model.SeatHold, error) {
	defer v.lock()()
	var out []model.SeatHold
	for _, h := range v.s.holds {
		if h.ScreeningID == screeningID && h.HoldToken == token {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memView) HoldsByOrder(ctx context.Context, orderID uint64) ([]model.SeatHold, error) {
	defer v.lock()()
	var out []model.SeatHold
	for _, h := range v.s.holds {
		if h.OrderID != nil && *h.OrderID == orderID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memView) ExpiredOpenHolds(ctx context.Context, now time.Time) ([]model.SeatHold, error) {
	defer v.lock()()
	var out []model.SeatHold
	for _, h := range v.s.holds {
		if h.Open() && h.Expired(now) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memView) LatestStatusBySeats(ctx context.Context, screeningID uint64, seatIDs []uint64) (map[uint64]model.SeatStatus, error) {
	defer v.lock()()
	want := make(map[uint64]bool, len(seatIDs))
	for _, id := range seatIDs {
		want[id] = true
	}
	out := make(map[uint64]model.SeatStatus)
	for _, st := range v.s.statuses {
		if st.ScreeningID == screeningID && want[st.SeatID] {
			out[st.SeatID] = st // rows are in id order; last wins
		}
	}
	return out, nil
}

func (v *memView) LatestSeatStatuses(ctx context.Context, screeningID uint64) (map[uint64]model.SeatStatus, error) {
	defer v.lock()()
	out := make(map[uint64]model.SeatStatus)
	for _, st := range v.s.statuses {
		if st.ScreeningID == screeningID {
			out[st.SeatID] = st
		}
	}
	return out, nil
}

func (v *memView) GetOrder(ctx context.Context, id uint64) (*model.Order, error) {
	defer v.lock()()
	o, ok := v.s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (v *memView) GetOrderByIdempotencyKey(ctx context.Context, key string) (*model.Order, error) {
	defer v.lock()()
	for _, o := range v.s.orders {
		if o.IdempotencyKey == key {
			o := o
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (v *memView) OrdersByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	defer v.lock()()
	var out []model.Order
	for _, o := range v.s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (v *memView) TicketsByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	defer v.lock()()
	var out []model.Ticket
	for _, t := range v.s.tickets {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memView) StalePendingTickets(ctx context.Context, cutoff time.Time) ([]model.Ticket, error) {
	defer v.lock()()
	var out []model.Ticket
	for _, t := range v.s.tickets {
		if t.Status != model.TicketPending || !t.CreatedAt.Before(cutoff) {
			continue
		}
		if o, ok := v.s.orders[t.OrderID]; ok && o.Status == model.OrderPending {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memView) GetPayment(ctx context.Context, id uint64) (*model.Payment, error) {
	defer v.lock()()
	p, ok := v.s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (v *memView) PaymentsByOrder(ctx context.Context, orderID uint64) ([]model.Payment, error) {
	defer v.lock()()
	var out []model.Payment
	for _, p := range v.s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memView) PaymentByProviderTxID(ctx context.Context, gateway, providerTxID string) (*model.Payment, error) {
	defer v.lock()()
	if providerTxID == "" {
		return nil, ErrNotFound
	}
	for _, p := range v.s.payments {
		if p.Gateway == gateway && p.ProviderTxID == providerTxID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (v *memView) PaymentByProviderRef(ctx context.Context, gateway, providerRef string) (*model.Payment, error) {
	defer v.lock()()
	if providerRef == "" {
		return nil, ErrNotFound
	}
	for _, p := range v.s.payments {
		if p.Gateway == gateway && p.ProviderRef == providerRef {
			p := p
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (v *memView) LatestPendingPaymentByOrder(ctx context.Context, orderID uint64, gateway string) (*model.Payment, error) {
	defer v.lock()()
	var best *model.Payment
	for _, p := range v.s.payments {
		if p.OrderID != orderID || p.Status != model.PaymentPending {
			continue
		}
		if gateway != "" && p.Gateway != gateway {
			continue
		}
		p := p
		if best == nil || p.ID > best.ID {
			best = &p
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (v *memView) PendingPaymentsOfExpiredOrders(ctx context.Context, now time.Time) ([]model.Payment, error) {
	defer v.lock()()
	var out []model.Payment
	for _, p := range v.s.payments {
		if p.Status != model.PaymentPending {
			continue
		}
		o, ok := v.s.orders[p.OrderID]
		if ok && o.Status == model.OrderPending && !o.ExpiresAt.After(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memView) WebhookEventByKey(ctx context.Context, key string) (*model.WebhookEvent, error) {
	defer v.lock()()
	for _, e := range v.s.events {
		if e.IdempotencyKey == key {
			e := e
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (v *memView) RefundByIdempotencyKey(ctx context.Context, key string) (*model.Refund, error) {
	defer v.lock()()
	for _, r := range v.s.refunds {
		if r.IdempotencyKey == key {
			r := r
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (v *memView) SuccessfulRefundTotal(ctx context.Context, paymentID uint64) (int64, error) {
	defer v.lock()()
	var total int64
	for _, r := range v.s.refunds {
		if r.PaymentID == paymentID && r.Status == model.RefundSuccess {
			total += r.AmountCents
		}
	}
	return total, nil
}

func (v *memView) GetVoucher(ctx context.Context, id uint64) (*model.Voucher, error) {
	defer v.lock()()
	vo, ok := v.s.vouchers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &vo, nil
}

func (v *memView) VoucherByCode(ctx context.Context, code string) (*model.Voucher, error) {
	defer v.lock()()
	for _, vo := range v.s.vouchers {
		if vo.Code == code {
			vo := vo
			return &vo, nil
		}
	}
	return nil, ErrNotFound
}

func (v *memView) CombosByCodes(ctx context.Context, codes []string) ([]model.Combo, error) {
	defer v.lock()()
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	var out []model.Combo
	for _, c := range v.s.combos {
		if want[c.Code] {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- writes ---

func (v *memView) CreateHall(ctx context.Context, h *model.Hall) error {
	defer v.lock()()
	h.ID = v.s.id()
	h.CreatedAt = stamp(h.CreatedAt)
	v.s.halls[h.ID] = *h
	return nil
}

func (v *memView) CreateSeat(ctx context.Context, s *model.Seat) error {
	defer v.lock()()
	s.ID = v.s.id()
	s.CreatedAt = stamp(s.CreatedAt)
	v.s.seats[s.ID] = *s
	return nil
}

func (v *memView) CreateScreening(ctx context.Context, s *model.Screening) error {
	defer v.lock()()
	s.ID = v.s.id()
	s.CreatedAt = stamp(s.CreatedAt)
	v.s.screenings[s.ID] = *s
	return nil
}

func (v *memView) CreateVoucher(ctx context.Context, vo *model.Voucher) error {
	defer v.lock()()
	for _, x := range v.s.vouchers {
		if x.Code == vo.Code {
			return ErrDuplicate
		}
	}
	vo.ID = v.s.id()
	vo.CreatedAt = stamp(vo.CreatedAt)
	v.s.vouchers[vo.ID] = *vo
	return nil
}

func (v *memView) CreateCombo(ctx context.Context, c *model.Combo) error {
	defer v.lock()()
	c.ID = v.s.id()
	c.CreatedAt = stamp(c.CreatedAt)
	v.s.combos[c.ID] = *c
	return nil
}

func (v *memView) CreateHold(ctx context.Context, h *model.SeatHold) error {
	defer v.lock()()
	h.ID = v.s.id()
	h.CreatedAt = stamp(h.CreatedAt)
	v.s.holds[h.ID] = *h
	return nil
}

func (v *memView) UpdateHold(ctx context.Context, h *model.SeatHold) error {
	defer v.lock()()
	if _, ok := v.s.holds[h.ID]; !ok {
		return ErrNotFound
	}
	v.s.holds[h.ID] = *h
	return nil
}

func (v *memView) AppendSeatStatus(ctx context.Context, s *model.SeatStatus) error {
	defer v.lock()()
	s.ID = v.s.id()
	s.CreatedAt = stamp(s.CreatedAt)
	v.s.statuses = append(v.s.statuses, *s)
	return nil
}

func (v *memView) CreateOrder(ctx context.Context, o *model.Order) error {
	defer v.lock()()
	for _, x := range v.s.orders {
		if x.IdempotencyKey == o.IdempotencyKey {
			return ErrDuplicate
		}
	}
	o.ID = v.s.id()
	o.CreatedAt = stamp(o.CreatedAt)
	o.UpdatedAt = o.CreatedAt
	v.s.orders[o.ID] = *o
	return nil
}

func (v *memView) UpdateOrder(ctx context.Context, o *model.Order) error {
	defer v.lock()()
	if _, ok := v.s.orders[o.ID]; !ok {
		return ErrNotFound
	}
	o.UpdatedAt = time.Now().UTC()
	v.s.orders[o.ID] = *o
	return nil
}

func (v *memView) CreateTicket(ctx context.Context, t *model.Ticket) error {
	defer v.lock()()
	t.ID = v.s.id()
	t.CreatedAt = stamp(t.CreatedAt)
	t.UpdatedAt = t.CreatedAt
	v.s.tickets[t.ID] = *t
	return nil
}

func (v *memView) UpdateTicket(ctx context.Context, t *model.Ticket) error {
	defer v.lock()()
	if _, ok := v.s.tickets[t.ID]; !ok {
		return ErrNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	v.s.tickets[t.ID] = *t
	return nil
}

func (v *memView) CreatePayment(ctx context.Context, p *model.Payment) error {
	defer v.lock()()
	p.ID = v.s.id()
	p.CreatedAt = stamp(p.CreatedAt)
	p.UpdatedAt = p.CreatedAt
	v.s.payments[p.ID] = *p
	return nil
}

func (v *memView) UpdatePayment(ctx context.Context, p *model.Payment) error {
	defer v.lock()()
	if _, ok := v.s.payments[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	v.s.payments[p.ID] = *p
	return nil
}

func (v *memView) CreateWebhookEvent(ctx context.Context, e *model.WebhookEvent) error {
	defer v.lock()()
	for _, x := range v.s.events {
		if x.IdempotencyKey == e.IdempotencyKey {
			return ErrDuplicate
		}
	}
	e.ID = v.s.id()
	e.CreatedAt = stamp(e.CreatedAt)
	e.UpdatedAt = e.CreatedAt
	v.s.events[e.ID] = *e
	return nil
}

func (v *memView) UpdateWebhookEvent(ctx context.Context, e *model.WebhookEvent) error {
	defer v.lock()()
	if _, ok := v.s.events[e.ID]; !ok {
		return ErrNotFound
	}
	e.UpdatedAt = time.Now().UTC()
	v.s.events[e.ID] = *e
	return nil
}

func (v *memView) CreateRefund(ctx context.Context, r *model.Refund) error {
	defer v.lock()()
	for _, x := range v.s.refunds {
		if x.IdempotencyKey == r.IdempotencyKey {
			return ErrDuplicate
		}
	}
	r.ID = v.s.id()
	r.CreatedAt = stamp(r.CreatedAt)
	r.UpdatedAt = r.CreatedAt
	v.s.refunds[r.ID] = *r
	return nil
}

func (v *memView) UpdateRefund(ctx context.Context, r *model.Refund) error {
	defer v.lock()()
	if _, ok := v.s.refunds[r.ID]; !ok {
		return ErrNotFound
	}
	r.UpdatedAt = time.Now().UTC()
	v.s.refunds[r.ID] = *r
	return nil
}

func (v *memView) UpdateVoucher(ctx context.Context, vo *model.Voucher) error {
	defer v.lock()()
	if _, ok := v.s.vouchers[vo.ID]; !ok {
		return ErrNotFound
	}
	v.s.vouchers[vo.ID] = *vo
	return nil
}
