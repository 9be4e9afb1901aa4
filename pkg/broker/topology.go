package broker

import amqp "github.com/rabbitmq/amqp091-go"

// TopologyConfig names the exchanges, queues and routing key the consumer
// declares on connect. All names come from configuration; the semantics
// (types, durability, TTL, dead-letter wiring) are fixed.
type TopologyConfig struct {
	MainExchange  string
	MainQueue     string
	RetryExchange string
	RetryQueue    string
	DLQExchange   string
	DLQQueue      string
	RoutingKey    string
	// RetryDelayMs is the retry queue's x-message-ttl: how long a message
	// waits in the retry queue before the broker dead-letters it back to
	// the main exchange. This is what implements delayed redelivery without
	// any in-process sleep.
	RetryDelayMs int
}

// DeclareTopology declares the three durable direct exchanges and their
// bound durable queues. Declarations are idempotent:
// passive redeclaration of an existing, compatible entity succeeds, because
// every argument here is fixed by configuration and never varies between
// calls — AMQP declare-if-absent semantics do the rest.
func DeclareTopology(ch Channel, cfg TopologyConfig) error {
	if err := ch.ExchangeDeclare(cfg.MainExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(cfg.RetryExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(cfg.DLQExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(cfg.MainQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(cfg.MainQueue, cfg.RoutingKey, cfg.MainExchange, false, nil); err != nil {
		return err
	}

	retryArgs := amqp.Table{
		"x-message-ttl":             int32(cfg.RetryDelayMs),
		"x-dead-letter-exchange":    cfg.MainExchange,
		"x-dead-letter-routing-key": cfg.RoutingKey,
	}
	if _, err := ch.QueueDeclare(cfg.RetryQueue, true, false, false, false, retryArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(cfg.RetryQueue, cfg.RoutingKey, cfg.RetryExchange, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(cfg.DLQQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(cfg.DLQQueue, cfg.RoutingKey, cfg.DLQExchange, false, nil); err != nil {
		return err
	}

	return nil
}
