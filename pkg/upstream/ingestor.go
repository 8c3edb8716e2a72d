// Copyright 2025 Certen Protocol
//
// Package upstream adapts the durable upstream message queue onto the
// staging buffer. amqp091-go requires every method call on a channel to
// come from a single goroutine, so all ack/reject/multi-ack calls are
// funneled through one "channel owner" goroutine via a command channel -
// the Go equivalent of a threadsafe callback post.

package upstream

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/airanchor/gateway/pkg/staging"
)

const queueName = "sawtooth"

// enqueueTimeout is the bound on placing a delivery into the staging
// buffer before it is rejected-with-requeue, applying backpressure
// upstream.
const enqueueTimeout = 1200 * time.Millisecond

// prefetchCount bounds how many unacked deliveries the broker hands out
// at once, keeping the in-memory window small beyond the buffer itself.
const prefetchCount = 5

// ackCommand is a closure run on the channel-owner goroutine. It exists
// so ack/reject calls issued from the dispatcher (a different goroutine)
// never touch the amqp channel directly.
type ackCommand func(ch *amqp.Channel) error

// Ingestor consumes the upstream queue and feeds the staging buffer.
type Ingestor struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	buffer *staging.Buffer
	logger *log.Logger

	commands chan ackCommand
}

// Config configures an Ingestor.
type Config struct {
	URL    string
	Buffer *staging.Buffer
	Logger *log.Logger
}

// New dials the broker, declares the durable queue, and sets the
// configured prefetch.
func New(cfg Config) (*Ingestor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[Upstream] ", log.LstdFlags)
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial upstream broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Ingestor{
		conn:     conn,
		ch:       ch,
		buffer:   cfg.Buffer,
		logger:   logger,
		commands: make(chan ackCommand, prefetchCount*2),
	}, nil
}

// Run consumes deliveries and owns the channel for the lifetime of ctx.
// It blocks until ctx is cancelled or the delivery stream closes.
func (i *Ingestor) Run(ctx context.Context) error {
	deliveries, err := i.ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd, ok := <-i.commands:
			if !ok {
				continue
			}
			if err := cmd(i.ch); err != nil {
				i.logger.Printf("ack command failed: %v", err)
			}

		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("upstream delivery channel closed")
			}
			i.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery enqueues one delivery with the bounded timeout,
// rejecting-with-requeue if the buffer stays full.
func (i *Ingestor) handleDelivery(ctx context.Context, d amqp.Delivery) {
	entry := staging.Entry{Ack: d.DeliveryTag, Body: d.Body}
	err := i.buffer.Enqueue(ctx, entry, enqueueTimeout)
	if err == nil {
		return
	}

	i.logger.Printf("buffer enqueue timed out, rejecting with requeue (tag=%d): %v", d.DeliveryTag, err)
	if rejErr := d.Reject(true); rejErr != nil {
		i.logger.Printf("reject failed (tag=%d): %v", d.DeliveryTag, rejErr)
	}
}

// Ack multi-acks up to and including deliveryTag. The dispatcher calls
// this after a successful batch submission to acknowledge every message
// it drained in one round trip.
func (i *Ingestor) Ack(deliveryTag uint64) {
	i.post(func(ch *amqp.Channel) error {
		return ch.Ack(deliveryTag, true)
	})
}

// RejectRequeue rejects a single delivery and asks the broker to
// requeue it, used for BackPressure outcomes.
func (i *Ingestor) RejectRequeue(deliveryTag uint64) {
	i.post(func(ch *amqp.Channel) error {
		return ch.Reject(deliveryTag, true)
	})
}

// RejectDrop rejects a single delivery without requeue, used for
// malformed messages and non-BackPressure failures.
func (i *Ingestor) RejectDrop(deliveryTag uint64) {
	i.post(func(ch *amqp.Channel) error {
		return ch.Reject(deliveryTag, false)
	})
}

func (i *Ingestor) post(cmd ackCommand) {
	i.commands <- cmd
}

// Close tears down the channel and connection.
func (i *Ingestor) Close() error {
	var firstErr error
	if err := i.ch.Close(); err != nil {
		firstErr = err
	}
	if err := i.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
