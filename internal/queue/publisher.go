package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// Publisher sends purchase events to RabbitMQ.  A connection is dialed per
// publish; purchase events are rare enough that a pooled channel is not
// worth the reconnect handling.
type Publisher struct {
	URL string
}

func NewPublisher(url string) *Publisher { return &Publisher{URL: url} }

// defaultDialTimeout applies when the caller's context has no deadline.
const defaultDialTimeout = 5 * time.Second

// dialTimeout is the time left on ctx, capped at defaultDialTimeout.  The
// connection handshake honours it, unlike the context itself.
func dialTimeout(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultDialTimeout
	}
	left := time.Until(deadline)
	switch {
	case left <= 0:
		return time.Millisecond
	case left > defaultDialTimeout:
		return defaultDialTimeout
	}
	return left
}

// PublishPurchaseCompleted declares the durable queue and publishes the
// event as a persistent JSON message on the default exchange.  Dialing
// gives up when ctx's deadline passes.  Errors are
// logged and returned so callers can decide to ignore them.
func (p *Publisher) PublishPurchaseCompleted(ctx context.Context, event PurchaseCompletedEvent) error {
	conn, err := amqp.DialConfig(p.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout(ctx)),
	})
	if err != nil {
		log.WithError(err).Warn("rabbitmq: dial failed")
		return errors.Wrap(err, "rabbitmq dial")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("rabbitmq: channel open failed")
		return errors.Wrap(err, "rabbitmq channel")
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		PurchaseQueueName, // name
		true,              // durable
		false,             // autoDelete
		false,             // exclusive
		false,             // noWait
		nil,               // args
	); err != nil {
		log.WithError(err).Warn("rabbitmq: queue declare failed")
		return errors.Wrap(err, "rabbitmq queue declare")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal purchase event")
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",                // default exchange
		PurchaseQueueName, // routing key = queue name
		false,             // mandatory
		false,             // immediate
		pub,
	); err != nil {
		log.WithError(err).Warn("rabbitmq: publish failed")
		return errors.Wrap(err, "rabbitmq publish")
	}
	return nil
}
