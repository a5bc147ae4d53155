package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
)

// amqpChannel is the subset of *amqp.Channel used for publishing
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes events as persistent JSON messages on a durable queue
type RabbitMQ struct {
	conn      *amqp.Connection
	ch        amqpChannel
	queueName string
	cb        *gobreaker.CircuitBreaker
}

var _ Publisher = (*RabbitMQ)(nil)

func NewRabbitMQ(amqpURL, queueName string, cb *gobreaker.CircuitBreaker) (*RabbitMQ, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &RabbitMQ{conn: conn, ch: ch, queueName: queueName, cb: cb}, nil
}

func (r *RabbitMQ) PublishAssignmentChanged(ctx context.Context, evt AssignmentChanged) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= 0 {
		return ctx.Err()
	}

	_, err = r.cb.Execute(func() (interface{}, error) {
		return nil, r.ch.PublishWithContext(
			ctx,
			"",          // default exchange
			r.queueName, // routing key == queue name
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Type:         "assignment.changed",
				Timestamp:    evt.At,
				Body:         body,
			},
		)
	})
	if err != nil {
		return fmt.Errorf("failed to publish assignment event: %w", err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			return err
		}
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
