package model

import "time"

// WebhookEvent is the audit row for one inbound gateway callback.  It
// is persisted before signature verification so a crash mid-handling
// still leaves a trace.  The idempotency key is derived from
// (gateway, provider tx id, event type, request id); replays of the
// same event after successful handling are no-ops.
//
// Verified records whether the gateway signature checked out; Handled
// records that processing finished (including the "bad signature,
// permanently suppressed" case).
type WebhookEvent struct {
	ID             uint64    // webhook_events.id
	Gateway        string    // gateway code
	EventType      string    // gateway event type
	IdempotencyKey string    // webhook_events.idempotency_key (unique)
	Payload        string    // masked raw body
	Verified       bool      // signature verification outcome
	Handled        bool      // processing finished
	PaymentID      *uint64   // payment the event resolved to, if any
	CreatedAt      time.Time // webhook_events.created_at
	UpdatedAt      time.Time // webhook_events.updated_at
}
