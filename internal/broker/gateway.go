// Package broker provides the message-queue hand-off between pipeline
// stages. Gateway is a lazily reconnecting NATS JetStream client exposing
// two primitives: Enqueue publishes one payload to a named queue, Consume
// delivers queued payloads to a handler. Queues are backed by work-queue
// streams so a payload is delivered to one consumer and removed on ack.
//
// Delivery is at-least-once up to the ack, which is sent on receipt before
// the handler runs. A handler crash after the ack loses that message; the
// pipeline treats delivery as best-effort and relies on the next poll cycle
// to refresh anything lost.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Handler is invoked once per delivered message. The payload is only valid
// for the duration of the call.
type Handler func(payload []byte)

// Publisher is the enqueue side of the gateway.
type Publisher interface {
	Enqueue(ctx context.Context, queue string, payload []byte) error
}

// Consumer is the dequeue side of the gateway.
type Consumer interface {
	Consume(ctx context.Context, queue string, h Handler) error
}

// ErrClosed is returned for operations on a gateway after Close.
var ErrClosed = errors.New("broker gateway is closed")

// Gateway owns one NATS connection, established lazily before the first
// operation and re-established if the transport drops. It is safe for
// concurrent use. Each process owns its own Gateway; connections are never
// shared across processes.
type Gateway struct {
	url  string
	name string

	mu       sync.Mutex
	conn     *nats.Conn
	js       jetstream.JetStream
	declared map[string]bool // streams ensured on the current connection
	closed   bool
}

// NewGateway creates a gateway for the given NATS URL. name identifies the
// client to the broker (shown in monitoring). No connection is made until
// the first operation.
func NewGateway(url, name string) *Gateway {
	return &Gateway{url: url, name: name}
}

// connect establishes the connection if there is none or the previous one
// was closed. Idempotent; a no-op while the connection is healthy.
func (g *Gateway) connect() (jetstream.JetStream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}
	if g.conn != nil && !g.conn.IsClosed() {
		return g.js, nil
	}

	conn, err := nats.Connect(g.url,
		nats.Name(g.name),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to broker at %s: %w", g.url, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	g.conn = conn
	g.js = js
	g.declared = make(map[string]bool)
	return js, nil
}

// ensureQueue declares the stream backing a queue, at most once per
// connection. Declaration is create-if-absent; re-declaring an existing
// stream with the same config is a no-op on the server.
func (g *Gateway) ensureQueue(ctx context.Context, js jetstream.JetStream, queue string) error {
	g.mu.Lock()
	done := g.declared[queue]
	g.mu.Unlock()
	if done {
		return nil
	}

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      queue,
		Subjects:  []string{queue},
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("declare queue %q: %w", queue, err)
	}

	g.mu.Lock()
	g.declared[queue] = true
	g.mu.Unlock()
	return nil
}

// Enqueue publishes payload to the named queue, declaring it if absent.
// Publish failures are returned to the caller so the ingestion endpoint can
// report them instead of silently losing a region.
func (g *Gateway) Enqueue(ctx context.Context, queue string, payload []byte) error {
	js, err := g.connect()
	if err != nil {
		return err
	}
	if err := g.ensureQueue(ctx, js, queue); err != nil {
		return err
	}
	if _, err := js.Publish(ctx, queue, payload); err != nil {
		return fmt.Errorf("publish to %q: %w", queue, err)
	}
	return nil
}

// Consume delivers messages from the named queue to h until ctx is
// cancelled. Each message is acknowledged on receipt, before h runs. The
// call blocks for its entire lifetime; run it from a dedicated goroutine or
// as the final call of a stage's main.
func (g *Gateway) Consume(ctx context.Context, queue string, h Handler) error {
	js, err := g.connect()
	if err != nil {
		return err
	}
	if err := g.ensureQueue(ctx, js, queue); err != nil {
		return err
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, queue, jetstream.ConsumerConfig{
		Durable:   queue + "-worker",
		AckPolicy: jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer on %q: %w", queue, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		// Ack first: at-most-once after ack, matching the pipeline's
		// best-effort delivery contract.
		_ = msg.Ack()
		h(msg.Data())
	})
	if err != nil {
		return fmt.Errorf("consume from %q: %w", queue, err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return ctx.Err()
}

// Close tears down the connection. Subsequent operations fail with
// ErrClosed.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
		g.js = nil
	}
}
