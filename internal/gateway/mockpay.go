package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/kinohall/cinema-ticketing/internal/model"
)

// MockPay is the development gateway.  It never talks to a network;
// payments are completed by posting a signed webhook to our own
// endpoint (the signature is a plain HMAC-SHA256 of the body).
type MockPay struct {
	secret string

	mu       sync.Mutex
	refunded map[string]bool // provider tx ids already refunded
}

func NewMockPay(secret string) *MockPay {
	return &MockPay{secret: secret, refunded: make(map[string]bool)}
}

func (g *MockPay) Code() string { return "mockpay" }

func (g *MockPay) CreatePayment(ctx context.Context, order *model.Order, amountCents int64) (*PaymentIntent, error) {
	ref := fmt.Sprintf("MPI-%d-%s", order.ID, uuid.NewString()[:8])
	return &PaymentIntent{
		ProviderRef: ref,
		QRPayload:   fmt.Sprintf("mockpay://pay?ref=%s&amount=%d", ref, amountCents),
	}, nil
}

func (g *MockPay) signature(body []byte) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *MockPay) VerifyWebhook(header http.Header, body []byte) error {
	got := header.Get("X-Mockpay-Signature")
	if !hmac.Equal([]byte(g.signature(body)), []byte(got)) {
		return errors.New("mockpay: signature mismatch")
	}
	return nil
}

// SignWebhook returns the header a valid MockPay callback carries.
func (g *MockPay) SignWebhook(body []byte) http.Header {
	h := http.Header{}
	h.Set("X-Mockpay-Signature", g.signature(body))
	return h
}

type mockPayWebhook struct {
	Event       string `json:"event"`
	RequestID   string `json:"request_id"`
	TxID        string `json:"tx_id"`
	ProviderRef string `json:"provider_ref"`
	OrderID     uint64 `json:"order_id"`
	PaymentID   uint64 `json:"payment_id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
	FeeCents    int64  `json:"fee_cents"`
}

func (g *MockPay) ParseWebhook(header http.Header, body []byte) (*WebhookData, error) {
	var w mockPayWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("mockpay: parse webhook: %w", err)
	}
	return &WebhookData{
		EventType:    w.Event,
		RequestID:    w.RequestID,
		ProviderTxID: w.TxID,
		ProviderRef:  w.ProviderRef,
		OrderID:      w.OrderID,
		PaymentID:    w.PaymentID,
		Status:       NormalizeStatus(w.Status),
		AmountCents:  w.AmountCents,
		FeeCents:     w.FeeCents,
	}, nil
}

func (g *MockPay) Refund(ctx context.Context, payment *model.Payment, amountCents int64, reason string) (*RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := fmt.Sprintf("%s:%d", payment.ProviderTxID, amountCents)
	if g.refunded[key] {
		return nil, ErrAlreadyRefunded
	}
	g.refunded[key] = true
	return &RefundResult{ProviderRefundID: "MPR-" + uuid.NewString()[:12]}, nil
}
