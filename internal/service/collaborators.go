package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kinohall/cinema-ticketing/internal/model"
	"github.com/kinohall/cinema-ticketing/internal/store"
)

// Catalog prices concession combos.  Pure lookup, no side effects.
type Catalog interface {
	ComboTotal(ctx context.Context, selections []model.ComboSelection) (int64, error)
}

// VoucherService validates and redeems discount vouchers.  MarkUsed
// is idempotent: redeeming a voucher twice for the same order is a
// no-op.
type VoucherService interface {
	Validate(ctx context.Context, code string, userID uint64) (*model.Voucher, error)
	MarkUsed(ctx context.Context, voucherID, orderID uint64) error
}

// Notifier is told about successful payments, fire-and-forget.  A
// notifier failure must never affect payment or order state.
type Notifier interface {
	OrderPaid(ctx context.Context, order *model.Order, tickets []model.Ticket) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) OrderPaid(ctx context.Context, order *model.Order, tickets []model.Ticket) error {
	return nil
}

// StoreCatalog prices combos from the combos table.
type StoreCatalog struct {
	store store.Store
}

func NewStoreCatalog(s store.Store) *StoreCatalog { return &StoreCatalog{store: s} }

func (c *StoreCatalog) ComboTotal(ctx context.Context, selections []model.ComboSelection) (int64, error) {
	if len(selections) == 0 {
		return 0, nil
	}
	codes := make([]string, 0, len(selections))
	for _, sel := range selections {
		codes = append(codes, sel.Code)
	}
	combos, err := c.store.CombosByCodes(ctx, codes)
	if err != nil {
		return 0, fmt.Errorf("load combos: %w", err)
	}
	byCode := make(map[string]model.Combo, len(combos))
	for _, cb := range combos {
		byCode[cb.Code] = cb
	}
	var total int64
	for _, sel := range selections {
		cb, ok := byCode[sel.Code]
		if !ok {
			return 0, fmt.Errorf("unknown combo %q", sel.Code)
		}
		if sel.Quantity <= 0 {
			return 0, fmt.Errorf("invalid quantity for combo %q", sel.Code)
		}
		total += cb.PriceCents * int64(sel.Quantity)
	}
	return total, nil
}

// StoreVouchers redeems vouchers from the vouchers table.
type StoreVouchers struct {
	store store.Store
}

func NewStoreVouchers(s store.Store) *StoreVouchers { return &StoreVouchers{store: s} }

func (v *StoreVouchers) Validate(ctx context.Context, code string, userID uint64) (*model.Voucher, error) {
	vo, err := v.store.VoucherByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrVoucherInvalid
		}
		return nil, fmt.Errorf("load voucher: %w", err)
	}
	if vo.Used {
		return nil, ErrVoucherInvalid
	}
	if vo.UserID != nil && *vo.UserID != userID {
		return nil, ErrVoucherInvalid
	}
	return vo, nil
}

func (v *StoreVouchers) MarkUsed(ctx context.Context, voucherID, orderID uint64) error {
	return v.store.WithTx(ctx, func(tx store.Tx) error {
		vo, err := tx.GetVoucher(ctx, voucherID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrVoucherInvalid
			}
			return fmt.Errorf("load voucher: %w", err)
		}
		if vo.Used {
			// Replay for the same order is the idempotent no-op case.
			if vo.OrderID != nil && *vo.OrderID == orderID {
				return nil
			}
			return ErrVoucherInvalid
		}
		vo.Used = true
		vo.OrderID = &orderID
		return tx.UpdateVoucher(ctx, vo)
	})
}
