package queue

import (
	"context"
	"time"

	"github.com/kinohall/cinema-ticketing/internal/model"
)

// PaidNotifier publishes order-paid notifications to the broker.  It
// satisfies the order service's Notifier contract.
type PaidNotifier struct{}

func (PaidNotifier) OrderPaid(ctx context.Context, order *model.Order, tickets []model.Ticket) error {
	codes := make([]string, 0, len(tickets))
	for i := range tickets {
		codes = append(codes, tickets[i].Code)
	}
	return PublishOrderPaid(ctx, OrderPaidEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		ScreeningID: order.ScreeningID,
		SeatIDs:     order.SeatIDs,
		TicketCodes: codes,
		TotalCents:  order.Pricing.TotalCents,
		PaidAt:      time.Now().UTC().Format(time.RFC3339),
	})
}
