package queue

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Publisher sends audit events to RabbitMQ.  A disabled publisher accepts
// and discards every event, so callers never need to check.
type Publisher struct {
    url     string
    enabled bool
    log     *zap.Logger
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, enabled bool, log *zap.Logger) *Publisher {
    return &Publisher{url: url, enabled: enabled, log: log}
}

// Publish sends ev to the seating.audit queue as a persistent message.
// Errors are logged and returned so the caller can choose to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev AuditEvent) error {
    if p == nil || !p.enabled {
        return nil
    }
    conn, err := amqp.Dial(p.url)
    if err != nil {
        p.log.Warn("rabbitmq: dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.log.Warn("rabbitmq: channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        AuditQueueName, // name
        true,           // durable
        false,          // autoDelete
        false,          // exclusive
        false,          // noWait
        nil,            // args
    ); err != nil {
        p.log.Warn("rabbitmq: queue declare failed", zap.Error(err))
        return err
    }

    if ev.At == "" {
        ev = ev.Stamp()
    }
    body, err := json.Marshal(ev)
    if err != nil {
        p.log.Warn("rabbitmq: marshal event failed", zap.Error(err))
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx,
        "",             // default exchange
        AuditQueueName, // routing key = queue name
        false,          // mandatory
        false,          // immediate
        pub,
    ); err != nil {
        p.log.Warn("rabbitmq: publish failed", zap.Error(err), zap.String("type", ev.Type))
        return err
    }
    return nil
}
