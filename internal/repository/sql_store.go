// Package repository implements the store interfaces on MySQL.  All
// SQL lives here; services never see a *sql.DB.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kinohall/cinema-ticketing/internal/model"
	"github.com/kinohall/cinema-ticketing/internal/store"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// which lets every read query run both inside and outside a
// transaction without duplication.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLStore is the MySQL-backed store.Store.
type SQLStore struct {
	sqlReader
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{sqlReader: sqlReader{q: db}, db: db}
}

// WithTx runs fn inside one transaction.  Any error or panic rolls
// everything back.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(&sqlTx{sqlReader: sqlReader{q: tx}})
}

// sqlTx is the in-transaction view; it adds the Writer methods on top
// of the shared reader.
type sqlTx struct {
	sqlReader
}

type sqlReader struct {
	q querier
}

// isDup reports whether err is a MySQL duplicate-key violation (1062).
func isDup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []uint64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nullID(p *uint64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

// ---- screenings / seats / halls ----

func (r *sqlReader) GetScreening(ctx context.Context, id uint64) (*model.Screening, error) {
	var s model.Screening
	err := r.q.QueryRowContext(ctx,
		`SELECT id, hall_id, movie_title, starts_at, base_price_cents, created_at
		 FROM screenings WHERE id = ?`, id).
		Scan(&s.ID, &s.HallID, &s.MovieTitle, &s.StartsAt, &s.BasePriceCents, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sqlReader) SeatsByIDs(ctx context.Context, ids []uint64) ([]model.Seat, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(
		`SELECT id, hall_id, row_label, seat_number, seat_type, price_factor_pct, created_at
		 FROM seats WHERE id IN (%s) ORDER BY id`, placeholders(len(ids)))
	return r.seatRows(ctx, q, idArgs(ids)...)
}

func (r *sqlReader) SeatsByHall(ctx context.Context, hallID uint64) ([]model.Seat, error) {
	return r.seatRows(ctx,
		`SELECT id, hall_id, row_label, seat_number, seat_type, price_factor_pct, created_at
		 FROM seats WHERE hall_id = ? ORDER BY row_label, seat_number`, hallID)
}

func (r *sqlReader) seatRows(ctx context.Context, q string, args ...any) ([]model.Seat, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.HallID, &s.RowLabel, &s.SeatNumber, &s.SeatType, &s.PriceFactorPct, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ---- seat holds ----

const holdColumns = `id, screening_id, seat_id, user_id, status, hold_token, expires_at, order_id, created_at`

func scanHold(rows *sql.Rows) (model.SeatHold, error) {
	var h model.SeatHold
	var orderID sql.NullInt64
	err := rows.Scan(&h.ID, &h.ScreeningID, &h.SeatID, &h.UserID, &h.Status, &h.HoldToken, &h.ExpiresAt, &orderID, &h.CreatedAt)
	if orderID.Valid {
		oid := uint64(orderID.Int64)
		h.OrderID = &oid
	}
	return h, err
}

func (r *sqlReader) holdRows(ctx context.Context, q string, args ...any) ([]model.SeatHold, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SeatHold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *sqlReader) OpenHoldsBySeats(ctx context.Context, screeningID uint64, seatIDs []uint64) ([]model.SeatHold, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(
		`SELECT `+holdColumns+` FROM seat_holds
		 WHERE screening_id = ? AND seat_id IN (%s) AND status IN ('HOLD','CLAIMED')
		 ORDER BY id`, placeholders(len(seatIDs)))
	args := append([]any{screeningID}, idArgs(seatIDs)...)
	return r.holdRows(ctx, q, args...)
}

func (r *sqlReader) HoldsByIDs(ctx context.Context, ids []uint64) ([]model.SeatHold, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT `+holdColumns+` FROM seat_holds WHERE id IN (%s) ORDER BY id`,
		placeholders(len(ids)))
	return r.holdRows(ctx, q, idArgs(ids)...)
}

func (r *sqlReader) HoldsByToken(ctx context.Context, screeningID uint64, token string) ([]model.SeatHold, error) {
	return r.holdRows(ctx,
		`SELECT `+holdColumns+` FROM seat_holds
		 WHERE screening_id = ? AND hold_token = ? ORDER BY id`, screeningID, token)
}

func (r *sqlReader) HoldsByOrder(ctx context.Context, orderID uint64) ([]model.SeatHold, error) {
	return r.holdRows(ctx,
		`SELECT `+holdColumns+` FROM seat_holds WHERE order_id = ? ORDER BY id`, orderID)
}

func (r *sqlReader) ExpiredOpenHolds(ctx context.Context, now time.Time) ([]model.SeatHold, error) {
	return r.holdRows(ctx,
		`SELECT `+holdColumns+` FROM seat_holds
		 WHERE status IN ('HOLD','CLAIMED') AND expires_at <= ? ORDER BY id`, now.UTC())
}

// ---- seat status ----

const statusColumns = `id, screening_id, seat_id, status, holder_user_id, hold_expires_at, order_id, created_at`

func scanStatus(rows *sql.Rows) (model.SeatStatus, error) {
	var s model.SeatStatus
	var holder, orderID sql.NullInt64
	var holdExp sql.NullTime
	err := rows.Scan(&s.ID, &s.ScreeningID, &s.SeatID, &s.Status, &holder, &holdExp, &orderID, &s.CreatedAt)
	if holder.Valid {
		uid := uint64(holder.Int64)
		s.HolderUserID = &uid
	}
	if holdExp.Valid {
		t := holdExp.Time
		s.HoldExpiresAt = &t
	}
	if orderID.Valid {
		oid := uint64(orderID.Int64)
		s.OrderID = &oid
	}
	return s, err
}

func (r *sqlReader) latestStatuses(ctx context.Context, q string, args ...any) (map[uint64]model.SeatStatus, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64]model.SeatStatus)
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out[s.SeatID] = s
	}
	return out, rows.Err()
}

func (r *sqlReader) LatestStatusBySeats(ctx context.Context, screeningID uint64, seatIDs []uint64) (map[uint64]model.SeatStatus, error) {
	if len(seatIDs) == 0 {
		return map[uint64]model.SeatStatus{}, nil
	}
	q := fmt.Sprintf(
		`SELECT `+statusColumns+` FROM seat_status
		 WHERE id IN (
		   SELECT MAX(id) FROM seat_status
		   WHERE screening_id = ? AND seat_id IN (%s) GROUP BY seat_id
		 )`, placeholders(len(seatIDs)))
	args := append([]any{screeningID}, idArgs(seatIDs)...)
	return r.latestStatuses(ctx, q, args...)
}

func (r *sqlReader) LatestSeatStatuses(ctx context.Context, screeningID uint64) (map[uint64]model.SeatStatus, error) {
	return r.latestStatuses(ctx,
		`SELECT `+statusColumns+` FROM seat_status
		 WHERE id IN (
		   SELECT MAX(id) FROM seat_status WHERE screening_id = ? GROUP BY seat_id
		 )`, screeningID)
}

// ---- orders ----

const orderColumns = `id, user_id, screening_id, idempotency_key, status, seat_ids, pricing, voucher_id, qr_code, expires_at, created_at, updated_at`

func scanOrder(scan func(dest ...any) error) (*model.Order, error) {
	var o model.Order
	var seatIDs, pricing string
	var voucherID sql.NullInt64
	err := scan(&o.ID, &o.UserID, &o.ScreeningID, &o.IdempotencyKey, &o.Status,
		&seatIDs, &pricing, &voucherID, &o.QRCode, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if o.SeatIDs, err = model.DecodeSeatIDs(seatIDs); err != nil {
		return nil, fmt.Errorf("decode seat ids: %w", err)
	}
	if pricing != "" {
		if err := json.Unmarshal([]byte(pricing), &o.Pricing); err != nil {
			return nil, fmt.Errorf("decode pricing: %w", err)
		}
	}
	if voucherID.Valid {
		vid := uint64(voucherID.Int64)
		o.VoucherID = &vid
	}
	return &o, nil
}

func (r *sqlReader) orderRow(ctx context.Context, q string, args ...any) (*model.Order, error) {
	row := r.q.QueryRowContext(ctx, q, args...)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return o, err
}

func (r *sqlReader) GetOrder(ctx context.Context, id uint64) (*model.Order, error) {
	return r.orderRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

func (r *sqlReader) GetOrderByIdempotencyKey(ctx context.Context, key string) (*model.Order, error) {
	return r.orderRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = ?`, key)
}

func (r *sqlReader) OrdersByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ---- tickets ----

const ticketColumns = `id, order_id, screening_id, seat_id, user_id, status, price_cents, code, created_at, updated_at`

func (r *sqlReader) ticketRows(ctx context.Context, q string, args ...any) ([]model.Ticket, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.OrderID, &t.ScreeningID, &t.SeatID, &t.UserID, &t.Status, &t.PriceCents, &t.Code, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *sqlReader) TicketsByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	return r.ticketRows(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE order_id = ? ORDER BY id`, orderID)
}

func (r *sqlReader) StalePendingTickets(ctx context.Context, cutoff time.Time) ([]model.Ticket, error) {
	return r.ticketRows(ctx,
		`SELECT t.id, t.order_id, t.screening_id, t.seat_id, t.user_id, t.status, t.price_cents, t.code, t.created_at, t.updated_at
		 FROM tickets t JOIN orders o ON o.id = t.order_id
		 WHERE t.status = 'PENDING' AND o.status = 'PENDING' AND t.created_at < ?
		 ORDER BY t.id`, cutoff.UTC())
}

// ---- payments ----

const paymentColumns = `id, order_id, gateway, amount_cents, fee_cents, net_cents, status, provider_tx_id, provider_ref, COALESCE(raw_payload,''), error_code, COALESCE(error_message,''), created_at, updated_at`

func scanPayment(scan func(dest ...any) error) (*model.Payment, error) {
	var p model.Payment
	err := scan(&p.ID, &p.OrderID, &p.Gateway, &p.AmountCents, &p.FeeCents, &p.NetCents,
		&p.Status, &p.ProviderTxID, &p.ProviderRef, &p.RawPayload, &p.ErrorCode, &p.ErrorMessage,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *sqlReader) paymentRow(ctx context.Context, q string, args ...any) (*model.Payment, error) {
	row := r.q.QueryRowContext(ctx, q, args...)
	p, err := scanPayment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return p, err
}

func (r *sqlReader) paymentRows(ctx context.Context, q string, args ...any) ([]model.Payment, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *sqlReader) GetPayment(ctx context.Context, id uint64) (*model.Payment, error) {
	return r.paymentRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
}

func (r *sqlReader) PaymentsByOrder(ctx context.Context, orderID uint64) ([]model.Payment, error) {
	return r.paymentRows(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = ? ORDER BY id`, orderID)
}

func (r *sqlReader) PaymentByProviderTxID(ctx context.Context, gateway, providerTxID string) (*model.Payment, error) {
	if providerTxID == "" {
		return nil, store.ErrNotFound
	}
	return r.paymentRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway = ? AND provider_tx_id = ? LIMIT 1`,
		gateway, providerTxID)
}

func (r *sqlReader) PaymentByProviderRef(ctx context.Context, gateway, providerRef string) (*model.Payment, error) {
	if providerRef == "" {
		return nil, store.ErrNotFound
	}
	return r.paymentRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway = ? AND provider_ref = ? LIMIT 1`,
		gateway, providerRef)
}

func (r *sqlReader) LatestPendingPaymentByOrder(ctx context.Context, orderID uint64, gateway string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = ? AND status = 'PENDING'`
	args := []any{orderID}
	if gateway != "" {
		q += ` AND gateway = ?`
		args = append(args, gateway)
	}
	q += ` ORDER BY id DESC LIMIT 1`
	return r.paymentRow(ctx, q, args...)
}

func (r *sqlReader) PendingPaymentsOfExpiredOrders(ctx context.Context, now time.Time) ([]model.Payment, error) {
	return r.paymentRows(ctx,
		`SELECT p.id, p.order_id, p.gateway, p.amount_cents, p.fee_cents, p.net_cents, p.status, p.provider_tx_id, p.provider_ref, COALESCE(p.raw_payload,''), p.error_code, COALESCE(p.error_message,''), p.created_at, p.updated_at
		 FROM payments p JOIN orders o ON o.id = p.order_id
		 WHERE p.status = 'PENDING' AND o.status = 'PENDING' AND o.expires_at <= ?
		 ORDER BY p.id`, now.UTC())
}

// ---- webhook events / refunds ----

func (r *sqlReader) WebhookEventByKey(ctx context.Context, key string) (*model.WebhookEvent, error) {
	var e model.WebhookEvent
	var paymentID sql.NullInt64
	err := r.q.QueryRowContext(ctx,
		`SELECT id, gateway, event_type, idempotency_key, COALESCE(payload,''), verified, handled, payment_id, created_at, updated_at
		 FROM webhook_events WHERE idempotency_key = ?`, key).
		Scan(&e.ID, &e.Gateway, &e.EventType, &e.IdempotencyKey, &e.Payload, &e.Verified, &e.Handled, &paymentID, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if paymentID.Valid {
		pid := uint64(paymentID.Int64)
		e.PaymentID = &pid
	}
	return &e, nil
}

func (r *sqlReader) RefundByIdempotencyKey(ctx context.Context, key string) (*model.Refund, error) {
	var f model.Refund
	err := r.q.QueryRowContext(ctx,
		`SELECT id, payment_id, amount_cents, status, idempotency_key, provider_refund_id, COALESCE(reason,''), created_at, updated_at
		 FROM refunds WHERE idempotency_key = ?`, key).
		Scan(&f.ID, &f.PaymentID, &f.AmountCents, &f.Status, &f.IdempotencyKey, &f.ProviderRefundID, &f.Reason, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *sqlReader) SuccessfulRefundTotal(ctx context.Context, paymentID uint64) (int64, error) {
	var total int64
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM refunds WHERE payment_id = ? AND status = 'SUCCESS'`,
		paymentID).Scan(&total)
	return total, err
}

// ---- vouchers / combos ----

func (r *sqlReader) voucherRow(ctx context.Context, q string, args ...any) (*model.Voucher, error) {
	var v model.Voucher
	var userID, orderID sql.NullInt64
	err := r.q.QueryRowContext(ctx, q, args...).
		Scan(&v.ID, &v.Code, &v.ValueCents, &userID, &v.Used, &orderID, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := uint64(userID.Int64)
		v.UserID = &uid
	}
	if orderID.Valid {
		oid := uint64(orderID.Int64)
		v.OrderID = &oid
	}
	return &v, nil
}

func (r *sqlReader) GetVoucher(ctx context.Context, id uint64) (*model.Voucher, error) {
	return r.voucherRow(ctx,
		`SELECT id, code, value_cents, user_id, used, order_id, created_at FROM vouchers WHERE id = ?`, id)
}

func (r *sqlReader) VoucherByCode(ctx context.Context, code string) (*model.Voucher, error) {
	return r.voucherRow(ctx,
		`SELECT id, code, value_cents, user_id, used, order_id, created_at FROM vouchers WHERE code = ?`, code)
}

func (r *sqlReader) CombosByCodes(ctx context.Context, codes []string) ([]model.Combo, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	args := make([]any, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	q := fmt.Sprintf(
		`SELECT id, code, name, price_cents, created_at FROM combos WHERE code IN (%s)`,
		placeholders(len(codes)))
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Combo
	for rows.Next() {
		var c model.Combo
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.PriceCents, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- writers ----

func (t *sqlTx) insert(ctx context.Context, q string, args ...any) (uint64, error) {
	res, err := t.q.ExecContext(ctx, q, args...)
	if err != nil {
		if isDup(err) {
			return 0, store.ErrDuplicate
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (t *sqlTx) CreateHall(ctx context.Context, h *model.Hall) error {
	id, err := t.insert(ctx, `INSERT INTO halls (name) VALUES (?)`, h.Name)
	h.ID = id
	return err
}

func (t *sqlTx) CreateSeat(ctx context.Context, s *model.Seat) error {
	id, err := t.insert(ctx,
		`INSERT INTO seats (hall_id, row_label, seat_number, seat_type, price_factor_pct) VALUES (?,?,?,?,?)`,
		s.HallID, s.RowLabel, s.SeatNumber, s.SeatType, s.PriceFactorPct)
	s.ID = id
	return err
}

func (t *sqlTx) CreateScreening(ctx context.Context, s *model.Screening) error {
	id, err := t.insert(ctx,
		`INSERT INTO screenings (hall_id, movie_title, starts_at, base_price_cents) VALUES (?,?,?,?)`,
		s.HallID, s.MovieTitle, s.StartsAt.UTC(), s.BasePriceCents)
	s.ID = id
	return err
}

func (t *sqlTx) CreateVoucher(ctx context.Context, v *model.Voucher) error {
	id, err := t.insert(ctx,
		`INSERT INTO vouchers (code, value_cents, user_id, used, order_id) VALUES (?,?,?,?,?)`,
		v.Code, v.ValueCents, nullID(v.UserID), v.Used, nullID(v.OrderID))
	v.ID = id
	return err
}

func (t *sqlTx) CreateCombo(ctx context.Context, c *model.Combo) error {
	id, err := t.insert(ctx,
		`INSERT INTO combos (code, name, price_cents) VALUES (?,?,?)`,
		c.Code, c.Name, c.PriceCents)
	c.ID = id
	return err
}

func (t *sqlTx) CreateHold(ctx context.Context, h *model.SeatHold) error {
	id, err := t.insert(ctx,
		`INSERT INTO seat_holds (screening_id, seat_id, user_id, status, hold_token, expires_at, order_id) VALUES (?,?,?,?,?,?,?)`,
		h.ScreeningID, h.SeatID, h.UserID, h.Status, h.HoldToken, h.ExpiresAt.UTC(), nullID(h.OrderID))
	h.ID = id
	return err
}

func (t *sqlTx) UpdateHold(ctx context.Context, h *model.SeatHold) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE seat_holds SET status = ?, expires_at = ?, order_id = ? WHERE id = ?`,
		h.Status, h.ExpiresAt.UTC(), nullID(h.OrderID), h.ID)
	return err
}

func (t *sqlTx) AppendSeatStatus(ctx context.Context, s *model.SeatStatus) error {
	id, err := t.insert(ctx,
		`INSERT INTO seat_status (screening_id, seat_id, status, holder_user_id, hold_expires_at, order_id) VALUES (?,?,?,?,?,?)`,
		s.ScreeningID, s.SeatID, s.Status, nullID(s.HolderUserID), nullTime(s.HoldExpiresAt), nullID(s.OrderID))
	s.ID = id
	return err
}

func (t *sqlTx) CreateOrder(ctx context.Context, o *model.Order) error {
	seatIDs, err := model.EncodeSeatIDs(o.SeatIDs)
	if err != nil {
		return fmt.Errorf("encode seat ids: %w", err)
	}
	pricing, err := json.Marshal(o.Pricing)
	if err != nil {
		return fmt.Errorf("encode pricing: %w", err)
	}
	id, err := t.insert(ctx,
		`INSERT INTO orders (user_id, screening_id, idempotency_key, status, seat_ids, pricing, voucher_id, qr_code, expires_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		o.UserID, o.ScreeningID, o.IdempotencyKey, o.Status, seatIDs, string(pricing),
		nullID(o.VoucherID), o.QRCode, o.ExpiresAt.UTC())
	o.ID = id
	return err
}

func (t *sqlTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE orders SET status = ?, qr_code = ? WHERE id = ?`,
		o.Status, o.QRCode, o.ID)
	return err
}

func (t *sqlTx) CreateTicket(ctx context.Context, tk *model.Ticket) error {
	id, err := t.insert(ctx,
		`INSERT INTO tickets (order_id, screening_id, seat_id, user_id, status, price_cents, code) VALUES (?,?,?,?,?,?,?)`,
		tk.OrderID, tk.ScreeningID, tk.SeatID, tk.UserID, tk.Status, tk.PriceCents, tk.Code)
	tk.ID = id
	return err
}

func (t *sqlTx) UpdateTicket(ctx context.Context, tk *model.Ticket) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE tickets SET status = ? WHERE id = ?`, tk.Status, tk.ID)
	return err
}

func (t *sqlTx) CreatePayment(ctx context.Context, p *model.Payment) error {
	id, err := t.insert(ctx,
		`INSERT INTO payments (order_id, gateway, amount_cents, fee_cents, net_cents, status, provider_tx_id, provider_ref, raw_payload, error_code, error_message) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.OrderID, p.Gateway, p.AmountCents, p.FeeCents, p.NetCents, p.Status,
		p.ProviderTxID, p.ProviderRef, p.RawPayload, p.ErrorCode, p.ErrorMessage)
	p.ID = id
	return err
}

func (t *sqlTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE payments SET fee_cents = ?, net_cents = ?, status = ?, provider_tx_id = ?, provider_ref = ?, raw_payload = ?, error_code = ?, error_message = ? WHERE id = ?`,
		p.FeeCents, p.NetCents, p.Status, p.ProviderTxID, p.ProviderRef, p.RawPayload,
		p.ErrorCode, p.ErrorMessage, p.ID)
	return err
}

func (t *sqlTx) CreateWebhookEvent(ctx context.Context, e *model.WebhookEvent) error {
	id, err := t.insert(ctx,
		`INSERT INTO webhook_events (gateway, event_type, idempotency_key, payload, verified, handled, payment_id) VALUES (?,?,?,?,?,?,?)`,
		e.Gateway, e.EventType, e.IdempotencyKey, e.Payload, e.Verified, e.Handled, nullID(e.PaymentID))
	e.ID = id
	return err
}

func (t *sqlTx) UpdateWebhookEvent(ctx context.Context, e *model.WebhookEvent) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE webhook_events SET verified = ?, handled = ?, payment_id = ? WHERE id = ?`,
		e.Verified, e.Handled, nullID(e.PaymentID), e.ID)
	return err
}

func (t *sqlTx) CreateRefund(ctx context.Context, f *model.Refund) error {
	id, err := t.insert(ctx,
		`INSERT INTO refunds (payment_id, amount_cents, status, idempotency_key, provider_refund_id, reason) VALUES (?,?,?,?,?,?)`,
		f.PaymentID, f.AmountCents, f.Status, f.IdempotencyKey, f.ProviderRefundID, f.Reason)
	f.ID = id
	return err
}

func (t *sqlTx) UpdateRefund(ctx context.Context, f *model.Refund) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE refunds SET status = ?, provider_refund_id = ? WHERE id = ?`,
		f.Status, f.ProviderRefundID, f.ID)
	return err
}

func (t *sqlTx) UpdateVoucher(ctx context.Context, v *model.Voucher) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE vouchers SET used = ?, order_id = ? WHERE id = ?`,
		v.Used, nullID(v.OrderID), v.ID)
	return err
}
