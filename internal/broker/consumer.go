package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer wraps a prefetch-bounded subscription to a single queue.
// Deliveries arrive unacked; the caller must Ack or Reject(requeue) each
// one — rejecting without requeue routes it to the queue's dead-letter
// exchange if one is configured.
type Consumer struct {
	Deliveries <-chan amqp.Delivery
}

// NewConsumer sets channel-wide QoS to prefetch unacked messages and
// starts consuming queue. manual ack (autoAck=false) throughout, matching
// the at-least-once contract the ingest and dispatch services depend on.
func NewConsumer(ch *amqp.Channel, queue string, prefetch int) (*Consumer, error) {
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	return &Consumer{Deliveries: deliveries}, nil
}
