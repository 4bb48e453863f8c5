package broker

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeclareTopology idempotently declares every exchange and queue this
// system needs, and binds them. Safe to call at the start of every
// service instance — RabbitMQ no-ops a declare against an identical
// existing entity.
func DeclareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.CommandExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(cfg.EventExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(cfg.DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(cfg.DeadLetterQueue, "#", cfg.DeadLetterExchange, false, nil); err != nil {
		return err
	}

	inboxArgs := amqp.Table{"x-dead-letter-exchange": cfg.DeadLetterExchange}
	if _, err := ch.QueueDeclare(cfg.InboxQueue, true, false, false, false, inboxArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(cfg.InboxQueue, RoutingKeyRequest, cfg.CommandExchange, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(cfg.InboxQueue, RoutingKeyCancel, cfg.CommandExchange, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(cfg.DueQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(cfg.DueQueue, RoutingKeyDue, cfg.EventExchange, false, nil); err != nil {
		return err
	}

	return nil
}
