package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/kinohall/cinema-ticketing/internal/logger"
)

// StartOrderPaidConsumer connects to RabbitMQ, declares the durable
// order.paid queue and consumes it forever.  It is the notification
// sink of the system: each event is logged structurally; a real
// deployment would hang email or push delivery here.  The function
// runs a reconnect loop with backoff and never returns under normal
// operation, so callers start it on its own goroutine.
func StartOrderPaidConsumer() {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(brokerURL())
		if err != nil {
			logger.Warn("order-paid consumer dial failed",
				zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := consumeLoop(conn); err != nil {
			logger.Warn("order-paid consume loop ended, reconnecting", zap.Error(err))
			_ = conn.Close()
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("order-paid consumer set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(orderPaidQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(orderPaidQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.Body); err != nil {
			logger.Error("order-paid message rejected", zap.Error(err))
			// Do not requeue: a poison message would loop forever.
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(body []byte) error {
	var ev OrderPaidEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	logger.Info("order paid",
		zap.Uint64("order_id", ev.OrderID),
		zap.Uint64("user_id", ev.UserID),
		zap.Uint64("screening_id", ev.ScreeningID),
		zap.Uint64s("seat_ids", ev.SeatIDs),
		zap.Int64("total_cents", ev.TotalCents),
		zap.String("paid_at", ev.PaidAt))
	return nil
}
