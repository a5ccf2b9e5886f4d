package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentTerminal(t *testing.T) {
	terminal := []string{
		PaymentSuccess,
		PaymentFailed,
		PaymentExpired,
		PaymentRefunded,
		PaymentPartialRefunded,
	}
	for _, status := range terminal {
		p := Payment{Status: status}
		assert.True(t, p.Terminal(), status)
	}
	assert.False(t, (&Payment{Status: PaymentPending}).Terminal())
}
