package model

import "time"

// Voucher is a single-use discount code.  A voucher may be bound to a
// specific user; unbound vouchers are redeemable by anyone.  Used is
// flipped exactly once, after payment success.
type Voucher struct {
	ID         uint64    // vouchers.id
	Code       string    // vouchers.code (unique)
	ValueCents int64     // discount value
	UserID     *uint64   // owner, when user-bound
	Used       bool      // redeemed flag
	OrderID    *uint64   // order that redeemed it
	CreatedAt  time.Time // vouchers.created_at
}

// Combo is a concession bundle (popcorn, drinks) that can be added to
// an order.  Combos are priced by the catalog, never by the client.
type Combo struct {
	ID         uint64    // combos.id
	Code       string    // combos.code (unique)
	Name       string    // combos.name
	PriceCents int64     // combos.price_cents
	CreatedAt  time.Time // combos.created_at
}

// ComboSelection is a client's request for a quantity of one combo.
type ComboSelection struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}
