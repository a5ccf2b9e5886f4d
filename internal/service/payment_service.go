package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kinohall/cinema-ticketing/internal/gateway"
	"github.com/kinohall/cinema-ticketing/internal/logger"
	"github.com/kinohall/cinema-ticketing/internal/model"
	"github.com/kinohall/cinema-ticketing/internal/store"
)

// PaymentService reconciles local payment state with gateway
// callbacks.  The invariant it defends: a payment flips SUCCESS at
// most once, and the order follows the payment, never the other way
// around.
type PaymentService struct {
	store    store.Store
	registry *gateway.Registry
	orders   *OrderService
}

func NewPaymentService(s store.Store, registry *gateway.Registry, orders *OrderService) *PaymentService {
	return &PaymentService{store: s, registry: registry, orders: orders}
}

// InitPaymentResult carries the created payment plus what the client
// needs to complete checkout.
type InitPaymentResult struct {
	Payment *model.Payment
	Intent  *gateway.PaymentIntent
}

// InitPayment creates a PENDING payment for an order and opens a
// checkout with the gateway.  At most one non-terminal payment exists
// per order; a second init while one is pending is rejected.  The
// gateway call happens outside any transaction so a slow provider
// never holds row locks.
func (s *PaymentService) InitPayment(ctx context.Context, userID, orderID uint64, gatewayCode string) (*InitPaymentResult, error) {
	gw := s.registry.Get(gatewayCode)
	if gw == nil {
		return nil, ErrUnknownGateway
	}

	now := time.Now().UTC()
	var order *model.Order
	payment := &model.Payment{}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("load order: %w", err)
		}
		if o.UserID != userID {
			return ErrOrderNotFound
		}
		if o.Status != model.OrderPending || !o.ExpiresAt.After(now) {
			return ErrInvalidOrderState
		}
		if _, err := tx.LatestPendingPaymentByOrder(ctx, orderID, ""); err == nil {
			return ErrPaymentInProgress
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("check pending payment: %w", err)
		}
		order = o
		payment.OrderID = orderID
		payment.Gateway = gatewayCode
		payment.AmountCents = o.Pricing.TotalCents
		payment.Status = model.PaymentPending
		payment.ProviderRef = uuid.NewString()
		return tx.CreatePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	intent, err := gw.CreatePayment(ctx, order, payment.AmountCents)
	if err != nil {
		if ferr := s.failPayment(ctx, payment.ID, model.PayErrGateway, err.Error()); ferr != nil {
			logger.Error("mark payment failed", zap.Uint64("payment_id", payment.ID), zap.Error(ferr))
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	if intent.ProviderRef != "" && intent.ProviderRef != payment.ProviderRef {
		payment.ProviderRef = intent.ProviderRef
		if err := s.updatePayment(ctx, payment); err != nil {
			return nil, err
		}
	}
	return &InitPaymentResult{Payment: payment, Intent: intent}, nil
}

// WebhookReceipt summarises what a webhook delivery did.  The HTTP
// handler returns 200 regardless; the receipt only feeds the response
// body and logs.
type WebhookReceipt struct {
	Duplicate bool
	Verified  bool
	Matched   bool
	PaymentID uint64
}

// ReceiveWebhook processes one gateway callback.  The audit event is
// persisted before signature verification so even forged or broken
// deliveries leave a trace.  The event is marked handled only after
// every local effect is committed; a crash in between leaves it
// unhandled and the next delivery of the same event retries safely.
func (s *PaymentService) ReceiveWebhook(ctx context.Context, gatewayCode string, header http.Header, body []byte) (*WebhookReceipt, error) {
	gw := s.registry.Get(gatewayCode)
	if gw == nil {
		return nil, ErrUnknownGateway
	}

	data, parseErr := gw.ParseWebhook(header, body)
	key := webhookKey(gatewayCode, data, body)

	event, dup, err := s.recordEvent(ctx, gatewayCode, key, data, body)
	if err != nil {
		return nil, err
	}
	if dup {
		return &WebhookReceipt{Duplicate: true, Verified: event.Verified, Matched: event.PaymentID != nil}, nil
	}

	// Bad signature: suppress permanently, never touch payment state.
	if verr := gw.VerifyWebhook(header, body); verr != nil {
		logger.Warn("webhook signature rejected",
			zap.String("gateway", gatewayCode), zap.Error(verr))
		event.Handled = true
		if err := s.saveEvent(ctx, event); err != nil {
			return nil, err
		}
		return &WebhookReceipt{Verified: false}, nil
	}
	event.Verified = true

	if parseErr != nil {
		logger.Warn("webhook payload unparseable",
			zap.String("gateway", gatewayCode), zap.Error(parseErr))
		event.Handled = true
		if err := s.saveEvent(ctx, event); err != nil {
			return nil, err
		}
		return &WebhookReceipt{Verified: true}, nil
	}

	payment, orderPaid, err := s.applyWebhook(ctx, event, data)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		// Verified but unmatched: nothing to reconcile against.
		event.Handled = true
		if err := s.saveEvent(ctx, event); err != nil {
			return nil, err
		}
		return &WebhookReceipt{Verified: true}, nil
	}

	// Order follows payment, in its own transaction.  If this fails the
	// event stays unhandled and the gateway's redelivery retries it.
	if orderPaid {
		if err := s.orders.UpdateOrderStatus(ctx, payment.OrderID, model.OrderPaid); err != nil {
			if errors.Is(err, ErrInvalidOrderState) {
				logger.Error("payment succeeded for order in terminal state",
					zap.Uint64("order_id", payment.OrderID),
					zap.Uint64("payment_id", payment.ID))
			} else {
				return nil, err
			}
		}
	}

	event.Handled = true
	if err := s.saveEvent(ctx, event); err != nil {
		return nil, err
	}
	return &WebhookReceipt{Verified: true, Matched: true, PaymentID: payment.ID}, nil
}

// recordEvent persists the audit row for a delivery, or reports that
// the same event was already fully handled.  A delivery that raced or
// previously crashed mid-handling (row exists, handled=false) is
// picked up again.
func (s *PaymentService) recordEvent(ctx context.Context, gatewayCode, key string, data *gateway.WebhookData, body []byte) (*model.WebhookEvent, bool, error) {
	eventType := ""
	if data != nil {
		eventType = data.EventType
	}
	event := &model.WebhookEvent{
		Gateway:        gatewayCode,
		EventType:      eventType,
		IdempotencyKey: key,
		Payload:        gateway.MaskPayload(body),
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateWebhookEvent(ctx, event)
	})
	if err == nil {
		return event, false, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return nil, false, fmt.Errorf("record webhook event: %w", err)
	}
	existing, err := s.store.WebhookEventByKey(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("load webhook event: %w", err)
	}
	if existing.Handled {
		return existing, true, nil
	}
	return existing, false, nil
}

func (s *PaymentService) saveEvent(ctx context.Context, event *model.WebhookEvent) error {
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpdateWebhookEvent(ctx, event)
	})
}

// applyWebhook matches the callback to a payment and applies its
// outcome in one transaction.  Returns the matched payment (nil when
// unmatched) and whether the order should move to PAID.
func (s *PaymentService) applyWebhook(ctx context.Context, event *model.WebhookEvent, data *gateway.WebhookData) (*model.Payment, bool, error) {
	var payment *model.Payment
	orderPaid := false
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := matchPayment(ctx, tx, event.Gateway, data)
		if err != nil {
			return err
		}
		if p == nil {
			return nil
		}
		payment = p
		pid := p.ID
		event.PaymentID = &pid

		// Terminal payments never change again; a late or repeated
		// callback is recorded on the event only.
		if p.Terminal() {
			orderPaid = p.Status == model.PaymentSuccess
			return nil
		}

		p.RawPayload = event.Payload
		if data.ProviderTxID != "" {
			p.ProviderTxID = data.ProviderTxID
		}
		if data.FeeCents > 0 {
			p.FeeCents = data.FeeCents
			p.NetCents = p.AmountCents - p.FeeCents
		}
		switch data.Status {
		case gateway.StatusSuccess:
			p.Status = model.PaymentSuccess
			if p.NetCents == 0 && p.FeeCents == 0 {
				p.NetCents = p.AmountCents
			}
			orderPaid = true
		case gateway.StatusFailed:
			p.Status = model.PaymentFailed
			p.ErrorCode = model.PayErrGateway
			p.ErrorMessage = data.EventType
		default:
			// Ambiguous status: record the payload, stay PENDING.
		}
		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return nil, false, err
	}
	return payment, orderPaid, nil
}

// matchPayment resolves a callback to a local payment.  Strategies run
// in a fixed order and the first hit wins: provider transaction id,
// provider order reference, local order id (latest pending), explicit
// payment id.
func matchPayment(ctx context.Context, tx store.Tx, gatewayCode string, data *gateway.WebhookData) (*model.Payment, error) {
	if data.ProviderTxID != "" {
		p, err := tx.PaymentByProviderTxID(ctx, gatewayCode, data.ProviderTxID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("match by provider tx id: %w", err)
		}
	}
	if data.ProviderRef != "" {
		p, err := tx.PaymentByProviderRef(ctx, gatewayCode, data.ProviderRef)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("match by provider ref: %w", err)
		}
	}
	if data.OrderID != 0 {
		p, err := tx.LatestPendingPaymentByOrder(ctx, data.OrderID, gatewayCode)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("match by order id: %w", err)
		}
	}
	if data.PaymentID != 0 {
		p, err := tx.GetPayment(ctx, data.PaymentID)
		if err == nil && p.Gateway == gatewayCode {
			return p, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("match by payment id: %w", err)
		}
	}
	return nil, nil
}

// RefundOrder returns money against the successful payment of an
// order.  amountCents == 0 means "everything still refundable".  The
// idempotency key binds the refund to its target, the acting user and
// a one-minute bucket, so a double-submitted request maps onto the
// same refund row.
func (s *PaymentService) RefundOrder(ctx context.Context, actorID, orderID uint64, amountCents int64, reason string) (*model.Refund, error) {
	now := time.Now().UTC()
	var payment *model.Payment
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		payments, err := tx.PaymentsByOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load payments: %w", err)
		}
		for i := range payments {
			switch payments[i].Status {
			case model.PaymentSuccess, model.PaymentPartialRefunded:
				payment = &payments[i]
			}
		}
		if payment == nil {
			return ErrNotRefundable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.refundPayment(ctx, actorID, payment, amountCents, reason, now)
}

func (s *PaymentService) refundPayment(ctx context.Context, actorID uint64, payment *model.Payment, amountCents int64, reason string, now time.Time) (*model.Refund, error) {
	gw := s.registry.Get(payment.Gateway)
	if gw == nil {
		return nil, ErrUnknownGateway
	}
	key := refundKey(payment.ID, actorID, now)

	refund := &model.Refund{}
	var fullAfter bool
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if existing, err := tx.RefundByIdempotencyKey(ctx, key); err == nil {
			*refund = *existing
			if refund.Status != model.RefundPending {
				return nil
			}
			// A PENDING row under this key is a retry of a refund that
			// never settled; fall through so fullAfter is recomputed for
			// its recorded amount.
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load refund by key: %w", err)
		}
		prior, err := tx.SuccessfulRefundTotal(ctx, payment.ID)
		if err != nil {
			return fmt.Errorf("sum refunds: %w", err)
		}
		remaining := payment.AmountCents - prior
		if remaining <= 0 {
			return ErrNotRefundable
		}
		if refund.ID != 0 {
			fullAfter = prior+refund.AmountCents == payment.AmountCents
			return nil
		}
		amount := amountCents
		if amount == 0 {
			amount = remaining
		}
		if amount < 0 || amount > remaining {
			return ErrRefundExceedsBalance
		}
		refund.PaymentID = payment.ID
		refund.AmountCents = amount
		refund.Status = model.RefundPending
		refund.IdempotencyKey = key
		refund.Reason = reason
		fullAfter = prior+amount == payment.AmountCents
		if err := tx.CreateRefund(ctx, refund); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				existing, lerr := tx.RefundByIdempotencyKey(ctx, key)
				if lerr != nil {
					return fmt.Errorf("load refund after race: %w", lerr)
				}
				*refund = *existing
				if refund.Status == model.RefundPending {
					fullAfter = prior+refund.AmountCents == payment.AmountCents
				}
				return nil
			}
			return fmt.Errorf("create refund: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if refund.Status != model.RefundPending {
		// Idempotent replay of an already finished refund.
		return refund, nil
	}

	result, gerr := gw.Refund(ctx, payment, refund.AmountCents, reason)
	if gerr != nil && !errors.Is(gerr, gateway.ErrAlreadyRefunded) {
		refund.Status = model.RefundFailed
		if err := s.saveRefund(ctx, refund); err != nil {
			return nil, err
		}
		return refund, fmt.Errorf("%w: %v", ErrGatewayFailure, gerr)
	}

	refund.Status = model.RefundSuccess
	if result != nil {
		refund.ProviderRefundID = result.ProviderRefundID
	}
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.UpdateRefund(ctx, refund); err != nil {
			return fmt.Errorf("update refund: %w", err)
		}
		if fullAfter {
			payment.Status = model.PaymentRefunded
		} else {
			payment.Status = model.PaymentPartialRefunded
		}
		return tx.UpdatePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	if fullAfter {
		if err := s.orders.UpdateOrderStatus(ctx, payment.OrderID, model.OrderRefunded); err != nil && !errors.Is(err, ErrInvalidOrderState) {
			return nil, err
		}
	}
	return refund, nil
}

// SweepExpiredPayments fails PENDING payments whose PENDING order is
// past its expiry and expires those orders.  Returns the number of
// payments failed.
func (s *PaymentService) SweepExpiredPayments(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	failed := 0
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		payments, err := tx.PendingPaymentsOfExpiredOrders(ctx, now)
		if err != nil {
			return fmt.Errorf("load expired payments: %w", err)
		}
		expired := make(map[uint64]bool)
		for i := range payments {
			p := payments[i]
			p.Status = model.PaymentFailed
			p.ErrorCode = model.PayErrOrderExpired
			p.ErrorMessage = "order expired before payment completed"
			if err := tx.UpdatePayment(ctx, &p); err != nil {
				return fmt.Errorf("fail payment: %w", err)
			}
			failed++
			expired[p.OrderID] = true
		}
		for orderID := range expired {
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

func (s *PaymentService) failPayment(ctx context.Context, paymentID uint64, code, msg string) error {
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		p.Status = model.PaymentFailed
		p.ErrorCode = code
		p.ErrorMessage = msg
		return tx.UpdatePayment(ctx, p)
	})
}

func (s *PaymentService) updatePayment(ctx context.Context, p *model.Payment) error {
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpdatePayment(ctx, p)
	})
}

func (s *PaymentService) saveRefund(ctx context.Context, r *model.Refund) error {
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpdateRefund(ctx, r)
	})
}

// webhookKey derives the delivery idempotency key.  Parsed deliveries
// key on the correlation tuple so redeliveries with fresh request ids
// of the same transaction event still collapse; unparseable bodies
// fall back to hashing the raw body.
func webhookKey(gatewayCode string, data *gateway.WebhookData, body []byte) string {
	h := sha256.New()
	if data != nil {
		fmt.Fprintf(h, "%s|%s|%s|%s", gatewayCode, data.ProviderTxID, data.EventType, data.RequestID)
	} else {
		h.Write([]byte(gatewayCode + "|"))
		h.Write(body)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func refundKey(paymentID, actorID uint64, now time.Time) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("refund|%d|%d|%d", paymentID, actorID, now.Unix()/60)))
	return hex.EncodeToString(h[:])
}
