package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinohall/cinema-ticketing/internal/model"
	"github.com/kinohall/cinema-ticketing/internal/store"
)

// settleBody builds a mockpay success callback for a payment.
func settleBody(p *model.Payment, txID, requestID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"payment.settled","request_id":%q,"tx_id":%q,"provider_ref":%q,"status":"PAID","amount_cents":%d,"fee_cents":100}`,
		requestID, txID, p.ProviderRef, p.AmountCents))
}

// initPayment opens a checkout for a fresh order and returns both.
func initPayment(t *testing.T, e *env, userID uint64, key string) (*OrderResult, *model.Payment) {
	t.Helper()
	order := e.placeOrder(t, userID, []uint64{e.seats[len(e.seats)-1].ID}, key)
	res, err := e.payments.InitPayment(context.Background(), userID, order.Order.ID, "mockpay")
	require.NoError(t, err)
	return order, res.Payment
}

func TestInitPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order := e.placeOrder(t, 1, e.seatIDs(1), "k-init")

	res, err := e.payments.InitPayment(ctx, 1, order.Order.ID, "mockpay")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, res.Payment.Status)
	assert.Equal(t, order.Order.Pricing.TotalCents, res.Payment.AmountCents)
	assert.NotEmpty(t, res.Payment.ProviderRef)
	assert.NotEmpty(t, res.Intent.QRPayload)

	// A second init while the first is pending is rejected.
	_, err = e.payments.InitPayment(ctx, 1, order.Order.ID, "mockpay")
	assert.ErrorIs(t, err, ErrPaymentInProgress)

	// Unknown gateway and foreign order are rejected.
	_, err = e.payments.InitPayment(ctx, 1, order.Order.ID, "stripe")
	assert.ErrorIs(t, err, ErrUnknownGateway)
	_, err = e.payments.InitPayment(ctx, 2, order.Order.ID, "mockpay")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestInitPaymentRejectsNonPendingOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order := e.placeOrder(t, 1, e.seatIDs(1), "k-init-cancelled")
	require.NoError(t, e.orders.CancelOrder(ctx, 1, order.Order.ID))

	_, err := e.payments.InitPayment(ctx, 1, order.Order.ID, "mockpay")
	assert.ErrorIs(t, err, ErrInvalidOrderState)
}

func TestWebhookSettlesPaymentAndOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, payment := initPayment(t, e, 1, "k-settle")

	body := settleBody(payment, "tx-settle-1", "req-1")
	receipt, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(body), body)
	require.NoError(t, err)
	assert.True(t, receipt.Verified)
	assert.True(t, receipt.Matched)
	assert.False(t, receipt.Duplicate)
	assert.Equal(t, payment.ID, receipt.PaymentID)

	got, err := e.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSuccess, got.Status)
	assert.Equal(t, "tx-settle-1", got.ProviderTxID)
	assert.Equal(t, int64(100), got.FeeCents)
	assert.Equal(t, got.AmountCents-100, got.NetCents)

	o, err := e.store.GetOrder(ctx, order.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, o.Status)
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, payment := initPayment(t, e, 1, "k-redeliver")
	body := settleBody(payment, "tx-re-1", "req-1")
	header := e.mockpay.SignWebhook(body)

	for i := 0; i < 5; i++ {
		receipt, err := e.payments.ReceiveWebhook(ctx, "mockpay", header, body)
		require.NoError(t, err)
		if i == 0 {
			assert.False(t, receipt.Duplicate)
		} else {
			assert.True(t, receipt.Duplicate)
			assert.True(t, receipt.Verified)
		}
	}

	o, err := e.store.GetOrder(ctx, order.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, o.Status)

	tickets, err := e.store.TicketsByOrder(ctx, order.Order.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, model.TicketIssued, tickets[0].Status)
}

func TestWebhookBadSignatureIsSuppressed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, payment := initPayment(t, e, 1, "k-forged")
	body := settleBody(payment, "tx-forged", "req-1")

	header := http.Header{}
	header.Set("X-Mockpay-Signature", "deadbeef")
	receipt, err := e.payments.ReceiveWebhook(ctx, "mockpay", header, body)
	require.NoError(t, err)
	assert.False(t, receipt.Verified)
	assert.False(t, receipt.Matched)

	// Payment and order are untouched.
	got, err := e.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, got.Status)
	o, err := e.store.GetOrder(ctx, order.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, o.Status)

	// The forged event is recorded, unverified, and permanently handled:
	// replaying it does nothing.
	receipt, err = e.payments.ReceiveWebhook(ctx, "mockpay", header, body)
	require.NoError(t, err)
	assert.True(t, receipt.Duplicate)
	assert.False(t, receipt.Verified)
}

func TestWebhookUnparseableBody(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	initPayment(t, e, 1, "k-broken")

	body := []byte("{this is not json")
	receipt, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(body), body)
	require.NoError(t, err)
	assert.True(t, receipt.Verified)
	assert.False(t, receipt.Matched)
}

func TestWebhookAmbiguousStatusKeepsPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, payment := initPayment(t, e, 1, "k-ambiguous")

	body := []byte(fmt.Sprintf(
		`{"event":"payment.updated","request_id":"req-1","tx_id":"tx-amb","provider_ref":%q,"status":"PROCESSING"}`,
		payment.ProviderRef))
	receipt, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(body), body)
	require.NoError(t, err)
	assert.True(t, receipt.Matched)

	got, err := e.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, got.Status)
	assert.Equal(t, "tx-amb", got.ProviderTxID, "correlation id is kept for the final callback")
}

func TestWebhookFailureFailsPaymentOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, payment := initPayment(t, e, 1, "k-declined")

	body := []byte(fmt.Sprintf(
		`{"event":"payment.declined","request_id":"req-1","tx_id":"tx-dec","provider_ref":%q,"status":"DECLINED"}`,
		payment.ProviderRef))
	_, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(body), body)
	require.NoError(t, err)

	got, err := e.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, got.Status)
	assert.Equal(t, model.PayErrGateway, got.ErrorCode)

	// The order stays PENDING; the user may retry with a new payment.
	o, err := e.store.GetOrder(ctx, order.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, o.Status)
	_, err = e.payments.InitPayment(ctx, 1, order.Order.ID, "mockpay")
	assert.NoError(t, err)
}

func TestWebhookLateCallbackOnTerminalPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, payment := initPayment(t, e, 1, "k-late")

	settle := settleBody(payment, "tx-late", "req-1")
	_, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(settle), settle)
	require.NoError(t, err)

	// A different event for the same transaction arrives after the
	// payment is terminal: recorded, but state stays put.
	late := []byte(fmt.Sprintf(
		`{"event":"payment.declined","request_id":"req-2","tx_id":"tx-late","provider_ref":%q,"status":"DECLINED"}`,
		payment.ProviderRef))
	receipt, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(late), late)
	require.NoError(t, err)
	assert.True(t, receipt.Matched)

	got, err := e.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSuccess, got.Status)
}

func TestWebhookMatchesByOrderID(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, payment := initPayment(t, e, 1, "k-by-order")

	// No tx id, no provider ref: only the echoed local order id links
	// the callback.
	body := []byte(fmt.Sprintf(
		`{"event":"payment.settled","request_id":"req-1","order_id":%d,"status":"PAID"}`,
		order.Order.ID))
	receipt, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(body), body)
	require.NoError(t, err)
	assert.True(t, receipt.Matched)
	assert.Equal(t, payment.ID, receipt.PaymentID)
}

func TestWebhookUnmatchedIsRecorded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	body := []byte(`{"event":"payment.settled","request_id":"req-1","tx_id":"tx-ghost","status":"PAID"}`)
	receipt, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(body), body)
	require.NoError(t, err)
	assert.True(t, receipt.Verified)
	assert.False(t, receipt.Matched)

	_, err = e.payments.ReceiveWebhook(ctx, "unknown-gw", http.Header{}, body)
	assert.ErrorIs(t, err, ErrUnknownGateway)
}

func TestRefundFullAmount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, payment := initPayment(t, e, 1, "k-refund-full")
	settle := settleBody(payment, "tx-rf-1", "req-1")
	_, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(settle), settle)
	require.NoError(t, err)

	refund, err := e.payments.RefundOrder(ctx, 9, order.Order.ID, 0, "customer request")
	require.NoError(t, err)
	assert.Equal(t, model.RefundSuccess, refund.Status)
	assert.Equal(t, payment.AmountCents, refund.AmountCents)
	assert.NotEmpty(t, refund.ProviderRefundID)

	got, err := e.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, got.Status)

	o, err := e.store.GetOrder(ctx, order.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderRefunded, o.Status)

	tickets, err := e.store.TicketsByOrder(ctx, order.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketRefunded, tickets[0].Status)

	// Fully refunded payments cannot be refunded again.
	_, err = e.payments.RefundOrder(ctx, 9, order.Order.ID, 0, "again")
	assert.ErrorIs(t, err, ErrNotRefundable)
}

func TestRefundPartialAndReplay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, payment := initPayment(t, e, 1, "k-refund-part")
	settle := settleBody(payment, "tx-rp-1", "req-1")
	_, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(settle), settle)
	require.NoError(t, err)

	refund, err := e.payments.RefundOrder(ctx, 9, order.Order.ID, 20000, "partial")
	require.NoError(t, err)
	assert.Equal(t, model.RefundSuccess, refund.Status)

	got, err := e.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPartialRefunded, got.Status)

	o, err := e.store.GetOrder(ctx, order.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, o.Status, "partial refunds keep the order PAID")

	// Same actor within the idempotency window replays the same refund
	// instead of paying out twice.
	replay, err := e.payments.RefundOrder(ctx, 9, order.Order.ID, 20000, "partial")
	require.NoError(t, err)
	assert.Equal(t, refund.ID, replay.ID)

	total, err := e.store.SuccessfulRefundTotal(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), total)
}

func TestWebhookCannotRegressPartiallyRefundedPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, payment := initPayment(t, e, 1, "k-refund-regress")
	settle := settleBody(payment, "tx-rr-1", "req-1")
	_, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(settle), settle)
	require.NoError(t, err)

	_, err = e.payments.RefundOrder(ctx, 9, order.Order.ID, 20000, "half back")
	require.NoError(t, err)

	// The gateway redelivers the success event under a fresh request id:
	// not a duplicate, still matched by transaction id.
	redelivery := settleBody(payment, "tx-rr-1", "req-2")
	receipt, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(redelivery), redelivery)
	require.NoError(t, err)
	assert.False(t, receipt.Duplicate)
	assert.True(t, receipt.Matched)

	// The refund's mark on the payment survives.
	got, err := e.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPartialRefunded, got.Status)

	o, err := e.store.GetOrder(ctx, order.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, o.Status)
}

func TestRefundRetryOfUnsettledFullRefund(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, payment := initPayment(t, e, 1, "k-refund-retry")
	settle := settleBody(payment, "tx-rt-1", "req-1")
	_, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(settle), settle)
	require.NoError(t, err)

	// An earlier attempt crashed after creating the refund row but
	// before settling with the gateway.
	key := refundKey(payment.ID, 9, time.Now().UTC())
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateRefund(ctx, &model.Refund{
			PaymentID:      payment.ID,
			AmountCents:    payment.AmountCents,
			Status:         model.RefundPending,
			IdempotencyKey: key,
			Reason:         "full refund",
		})
	})
	require.NoError(t, err)

	// The retry picks the pending row up and settles it as the full
	// refund it is.
	refund, err := e.payments.RefundOrder(ctx, 9, order.Order.ID, payment.AmountCents, "full refund")
	require.NoError(t, err)
	assert.Equal(t, model.RefundSuccess, refund.Status)
	assert.Equal(t, payment.AmountCents, refund.AmountCents)

	got, err := e.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, got.Status)

	o, err := e.store.GetOrder(ctx, order.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderRefunded, o.Status)
}

func TestRefundCannotExceedBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, payment := initPayment(t, e, 1, "k-refund-cap")
	settle := settleBody(payment, "tx-rc-1", "req-1")
	_, err := e.payments.ReceiveWebhook(ctx, "mockpay", e.mockpay.SignWebhook(settle), settle)
	require.NoError(t, err)

	_, err = e.payments.RefundOrder(ctx, 9, order.Order.ID, payment.AmountCents+1, "too much")
	assert.ErrorIs(t, err, ErrRefundExceedsBalance)

	// After a partial refund only the remainder may go out.
	_, err = e.payments.RefundOrder(ctx, 9, order.Order.ID, 30000, "first part")
	require.NoError(t, err)
	_, err = e.payments.RefundOrder(ctx, 10, order.Order.ID, payment.AmountCents, "rest plus one")
	assert.ErrorIs(t, err, ErrRefundExceedsBalance)
}

func TestRefundRequiresSuccessfulPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, _ := initPayment(t, e, 1, "k-refund-pending")

	_, err := e.payments.RefundOrder(ctx, 9, order.Order.ID, 0, "nothing to refund")
	assert.ErrorIs(t, err, ErrNotRefundable)
}

func TestSweepExpiredPayments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order, payment := initPayment(t, e, 1, "k-sweep-pay")

	// Push the order past its expiry while its payment is still pending.
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, order.Order.ID)
		if err != nil {
			return err
		}
		o.ExpiresAt = time.Now().UTC().Add(-time.Minute)
		return tx.UpdateOrder(ctx, o)
	})
	require.NoError(t, err)

	failed, err := e.payments.SweepExpiredPayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	got, err := e.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, got.Status)
	assert.Equal(t, model.PayErrOrderExpired, got.ErrorCode)

	o, err := e.store.GetOrder(ctx, order.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderExpired, o.Status)

	// Second pass has nothing left to do.
	failed, err = e.payments.SweepExpiredPayments(ctx)
	require.NoError(t, err)
	assert.Zero(t, failed)
}
