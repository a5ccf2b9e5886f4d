package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/kinohall/cinema-ticketing/internal/model"
)

// HMACPay is a checkout-redirect provider whose webhooks carry a
// Digest header (base64 SHA-256 of the body) and a Signature header
// (HMAC-SHA256 over the canonical component string).  The scheme
// mirrors the common Client-Id/Request-Id/Digest header family used
// by Indonesian checkout providers.
type HMACPay struct {
	clientID string
	secret   string
}

func NewHMACPay(clientID, secret string) *HMACPay {
	return &HMACPay{clientID: clientID, secret: secret}
}

func (g *HMACPay) Code() string { return "hmacpay" }

func (g *HMACPay) CreatePayment(ctx context.Context, order *model.Order, amountCents int64) (*PaymentIntent, error) {
	ref := fmt.Sprintf("HMP-%d-%s", order.ID, uuid.NewString()[:8])
	return &PaymentIntent{
		ProviderRef: ref,
		RedirectURL: "https://pay.hmacpay.example/checkout/" + ref,
	}, nil
}

// componentString builds the signed canonical string for a webhook.
// Every element is covered by the HMAC so none of the headers can be
// swapped independently.
func (g *HMACPay) componentString(requestID, digest string) string {
	return "Client-Id:" + g.clientID + "\n" +
		"Request-Id:" + requestID + "\n" +
		"Digest:" + digest
}

func (g *HMACPay) sign(requestID, digest string) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write([]byte(g.componentString(requestID, digest)))
	return "HMACSHA256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (g *HMACPay) VerifyWebhook(header http.Header, body []byte) error {
	if header.Get("Client-Id") != g.clientID {
		return errors.New("hmacpay: unknown client id")
	}
	sum := sha256.Sum256(body)
	digest := base64.StdEncoding.EncodeToString(sum[:])
	if header.Get("Digest") != digest {
		return errors.New("hmacpay: digest mismatch")
	}
	want := g.sign(header.Get("Request-Id"), digest)
	if !hmac.Equal([]byte(want), []byte(header.Get("Signature"))) {
		return errors.New("hmacpay: signature mismatch")
	}
	return nil
}

// SignWebhook produces the header set a genuine HMACPay callback
// would carry.  Used by tests and the sandbox tooling.
func (g *HMACPay) SignWebhook(requestID string, body []byte) http.Header {
	sum := sha256.Sum256(body)
	digest := base64.StdEncoding.EncodeToString(sum[:])
	h := http.Header{}
	h.Set("Client-Id", g.clientID)
	h.Set("Request-Id", requestID)
	h.Set("Digest", digest)
	h.Set("Signature", g.sign(requestID, digest))
	return h
}

type hmacPayWebhook struct {
	Event       string `json:"event"`
	Transaction struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount int64  `json:"amount"`
		Fee    int64  `json:"fee"`
	} `json:"transaction"`
	Order struct {
		InvoiceNumber string `json:"invoice_number"`
		OrderID       uint64 `json:"order_id"`
		PaymentID     uint64 `json:"payment_id"`
	} `json:"order"`
}

func (g *HMACPay) ParseWebhook(header http.Header, body []byte) (*WebhookData, error) {
	var w hmacPayWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("hmacpay: parse webhook: %w", err)
	}
	return &WebhookData{
		EventType:    w.Event,
		RequestID:    header.Get("Request-Id"),
		ProviderTxID: w.Transaction.ID,
		ProviderRef:  w.Order.InvoiceNumber,
		OrderID:      w.Order.OrderID,
		PaymentID:    w.Order.PaymentID,
		Status:       NormalizeStatus(w.Transaction.Status),
		AmountCents:  w.Transaction.Amount,
		FeeCents:     w.Transaction.Fee,
	}, nil
}

func (g *HMACPay) Refund(ctx context.Context, payment *model.Payment, amountCents int64, reason string) (*RefundResult, error) {
	return &RefundResult{ProviderRefundID: "HMR-" + uuid.NewString()[:12]}, nil
}
