// Package broker implements the broker consumer (C6): topology
// declaration, delivery consumption, and the ack/retry/dead-letter state
// machine that gives the pipeline at-least-once delivery with bounded
// retries.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/POUPE-AI/poupeai-notification-service/pkg/notifyerrors"
)

// Processor is the dispatcher capability the consumer drives; satisfied by
// *dispatcher.Dispatcher.
type Processor interface {
	Process(ctx context.Context, body []byte, correlationID string) (bool, error)
}

// Logger is the minimal structured-logging capability the consumer needs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// connectBackoff is the fixed interval between reconnect attempts.
const connectBackoff = 5 * time.Second

// Consumer declares the topology on connect and consumes from the main
// queue, converting dispatcher outcomes into ack/retry/dead-letter actions.
type Consumer struct {
	url        string
	topology   TopologyConfig
	maxRetries int
	prefetch   int
	processor  Processor
	log        Logger

	// dial is overridable in tests so the reconnect loop can be exercised
	// without a real broker.
	dial func(url string) (*amqp.Connection, error)
}

// Config bundles the settings needed to construct a Consumer.
type Config struct {
	URL        string
	Topology   TopologyConfig
	MaxRetries int
	Prefetch   int
}

// New constructs a Consumer. Prefetch defaults to 10 when unset.
func New(cfg Config, processor Processor, log Logger) *Consumer {
	if log == nil {
		log = noopLogger{}
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	return &Consumer{
		url:        cfg.URL,
		topology:   cfg.Topology,
		maxRetries: cfg.MaxRetries,
		prefetch:   prefetch,
		processor:  processor,
		log:        log,
		dial:       func(url string) (*amqp.Connection, error) { return amqp.Dial(url) },
	}
}

// Run connects, declares the topology, and consumes until ctx is cancelled
// or the connection is lost. A runtime connection loss returns an error and
// ends the loop; the caller, not Run, is responsible for calling Run again
// to restart the consumer.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := c.connectWithBackoff(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("broker: open channel: %w", err)
	}
	defer ch.Close()

	if err := DeclareTopology(ch, c.topology); err != nil {
		return fmt.Errorf("broker: declare topology: %w", err)
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("broker: set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(c.topology.MainQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("broker: consume: %w", err)
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case closeErr, ok := <-connClosed:
			if !ok {
				return fmt.Errorf("broker: connection closed")
			}
			return fmt.Errorf("broker: connection closed: %w", closeErr)
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("broker: delivery channel closed")
			}
			c.handleDelivery(ctx, ch, d)
		}
	}
}

func (c *Consumer) connectWithBackoff(ctx context.Context) (*amqp.Connection, error) {
	for {
		conn, err := c.dial(c.url)
		if err == nil {
			return conn, nil
		}
		c.log.Warn("broker: connect failed, retrying", "error", err, "backoff", connectBackoff.String())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
}

// handleDelivery implements the per-message ack/retry/dead-letter decision.
// The original delivery is acknowledged only once the decided outcome (a
// dead-letter or retry republish) has actually landed on the broker, or
// when no republish was needed at all. Anything that leaves the outcome
// unconfirmed — an error that is neither Terminal nor Transient, or a
// publish of the copy that itself fails — is left un-acked so the broker
// redelivers the original; this is safe because the idempotency record is
// never committed on a failure path.
func (c *Consumer) handleDelivery(ctx context.Context, ch Channel, d amqp.Delivery) {
	correlationID := d.CorrelationId
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	retryCount := retryCountFromHeaders(d.Headers)

	processed, err := c.processor.Process(ctx, d.Body, correlationID)
	if err == nil {
		c.log.Debug("delivery processed", "correlation_id", correlationID, "processed", processed)
		c.ack(ch, d)
		return
	}

	if term, ok := notifyerrors.IsTerminal(err); ok {
		c.log.Warn("terminal failure, dead-lettering", "correlation_id", correlationID, "kind", term.Kind, "detail", term.Detail)
		if pubErr := c.publishCopy(ctx, ch, d, c.topology.DLQExchange); pubErr != nil {
			c.log.Error("failed to publish dead-letter copy, leaving unacked for redelivery", "correlation_id", correlationID, "error", pubErr)
			return
		}
		c.ack(ch, d)
		return
	}

	if trans, ok := notifyerrors.IsTransient(err); ok {
		exchange := c.topology.RetryExchange
		if retryCount >= c.maxRetries {
			exchange = c.topology.DLQExchange
			c.log.Warn("transient failure, retries exhausted, dead-lettering", "correlation_id", correlationID, "retry_count", retryCount, "detail", trans.Detail)
		} else {
			c.log.Info("transient failure, republishing to retry exchange", "correlation_id", correlationID, "retry_count", retryCount, "detail", trans.Detail)
		}
		if pubErr := c.publishCopy(ctx, ch, d, exchange); pubErr != nil {
			c.log.Error("failed to publish republished copy, leaving unacked for redelivery", "correlation_id", correlationID, "error", pubErr)
			return
		}
		c.ack(ch, d)
		return
	}

	// Anything escaping dispatch that is neither Terminal nor Transient is
	// not acked — the broker will redeliver it, which is safe because the
	// idempotency record was never committed on a failure path.
	c.log.Error("unexpected error escaped dispatch, leaving unacked for redelivery", "correlation_id", correlationID, "error", err)
}

func (c *Consumer) ack(ch Channel, d amqp.Delivery) {
	if err := ch.Ack(d.DeliveryTag, false); err != nil {
		c.log.Error("ack failed", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

// publishCopy republishes a copy of the original delivery to the named
// exchange, preserving body, headers, content type, correlation id and
// delivery mode. Callers ack the original only after this returns.
func (c *Consumer) publishCopy(ctx context.Context, ch Channel, d amqp.Delivery, exchange string) error {
	msg := amqp.Publishing{
		ContentType:   d.ContentType,
		DeliveryMode:  d.DeliveryMode,
		CorrelationId: d.CorrelationId,
		Headers:       d.Headers,
		Body:          d.Body,
	}
	return ch.PublishWithContext(ctx, exchange, c.topology.RoutingKey, false, false, msg)
}

// retryCountFromHeaders derives retry_count from x-death[0].count; an
// absent x-death header means 0.
func retryCountFromHeaders(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	raw, ok := headers["x-death"]
	if !ok {
		return 0
	}
	deaths, ok := raw.([]interface{})
	if !ok || len(deaths) == 0 {
		return 0
	}
	first, ok := deaths[0].(amqp.Table)
	if !ok {
		return 0
	}
	switch v := first["count"].(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
