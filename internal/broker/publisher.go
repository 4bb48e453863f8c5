package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// confirmWait bounds how long Publish waits for a broker ack/nack/return
// before treating the publish as failed.
const confirmWait = 5 * time.Second

// Publisher wraps a channel in confirm mode: Publish blocks until the
// broker has acked the message, returned it as unroutable, or the wait
// times out, so callers can gate a database commit on actual delivery.
type Publisher struct {
	ch        *amqp.Channel
	exchange  string
	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

// NewPublisher puts ch into confirm mode and wires the notification
// channels. ch must not be shared with a consumer — publisher confirms
// and consumer delivery tags both ride the same channel's frame sequence.
func NewPublisher(ch *amqp.Channel, exchange string) (*Publisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &Publisher{
		ch:        ch,
		exchange:  exchange,
		confirmCh: ch.NotifyPublish(make(chan amqp.Confirmation, 16)),
		returnCh:  ch.NotifyReturn(make(chan amqp.Return, 16)),
	}, nil
}

// Publish sends body to the exchange with routingKey, mandatory so an
// unroutable message comes back as a Return instead of silently vanishing,
// and blocks for the broker's confirm.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	pub := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, true, false, pub); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	deadline := time.NewTimer(confirmWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ret := <-p.returnCh:
			return fmt.Errorf("message returned unroutable: code=%d text=%s rk=%s",
				ret.ReplyCode, ret.ReplyText, ret.RoutingKey)
		case conf := <-p.confirmCh:
			if !conf.Ack {
				return fmt.Errorf("broker nacked delivery tag %d", conf.DeliveryTag)
			}
			return nil
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for publish confirm on routing key %q", routingKey)
		}
	}
}
