package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Client publishes to and consumes from one durable direct exchange. Each
// queue is bound with its own name as routing key.
type Client struct {
	url          string
	exchangeName string
	queues       []string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewClient connects and declares the exchange and every queue.
func NewClient(url, exchangeName string, queues ...string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queues:       queues,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel

	if err := c.setup(); err != nil {
		c.closeLocked()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}
	return nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range c.queues {
		if _, err := c.channel.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		// routing key is the queue name
		if err := c.channel.QueueBind(q, q, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

func (c *Client) currentChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel, nil
}

// PublishIngestRequest asks a worker to ingest the backup at path.
func (c *Client) PublishIngestRequest(ctx context.Context, queue, path string) (string, error) {
	msg := NewIngestRequestMessage(path)
	body, err := msg.ToJSON()
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, queue, body); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Published ingest request",
		"request_id", msg.RequestID,
		"path", path,
		"queue", queue)
	return msg.RequestID, nil
}

// PublishTransactionSync announces a newly stored transaction.
func (c *Client) PublishTransactionSync(ctx context.Context, queue string, id int64, batchID string) error {
	body, err := NewTransactionSyncMessage(id, batchID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, queue, body); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Published transaction sync message",
		"id", id,
		"batch_id", batchID,
		"queue", queue)
	return nil
}

func (c *Client) publish(ctx context.Context, queue string, body []byte) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish to %s: %w", queue, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := c.currentChannel()
	if err != nil {
		c.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		queue,          // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	return nil
}

// ConsumeIngestRequests blocks until ctx is done, handing every valid
// request to handler.
func (c *Client) ConsumeIngestRequests(ctx context.Context, queue string, handler func(context.Context, *IngestRequestMessage) error) error {
	return c.consume(ctx, queue, func(body []byte) (bool, error) {
		msg, err := IngestRequestMessageFromJSON(body)
		if err != nil {
			return false, err
		}
		return true, handler(ctx, msg)
	})
}

// ConsumeTransactionSync blocks until ctx is done, handing every sync
// message to handler.
func (c *Client) ConsumeTransactionSync(ctx context.Context, queue string, handler func(context.Context, *TransactionSyncMessage) error) error {
	return c.consume(ctx, queue, func(body []byte) (bool, error) {
		msg, err := TransactionSyncMessageFromJSON(body)
		if err != nil {
			return false, err
		}
		return true, handler(ctx, msg)
	})
}

// consume runs the delivery loop and reconnects with exponential backoff
// when the broker connection drops. handle reports whether the body was
// well formed; malformed bodies are dropped, failed ones are requeued once.
func (c *Client) consume(ctx context.Context, queue string, handle func([]byte) (bool, error)) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, queue, handle, func() { attempt = 0 })
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "queue", queue, "reason", ctx.Err())
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "AMQP connection lost, reconnecting",
			"queue", queue,
			"attempt", attempt,
			"backoff", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, queue string, handle func([]byte) (bool, error), connected func()) error {
	ch, err := c.currentChannel()
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	connected()

	slog.InfoContext(ctx, "Started consuming messages", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}

			valid, err := handle(delivery.Body)
			settle(ctx, queue, delivery, valid, err)
		}
	}
}

// settle acks or rejects d. A failed delivery is requeued once; a failed
// redelivery is dropped and left to the inbox scan or the sync poller.
func settle(ctx context.Context, queue string, d amqp091.Delivery, valid bool, err error) {
	switch {
	case !valid:
		slog.ErrorContext(ctx, "Failed to unmarshal message", "queue", queue, "error", err)
		_ = d.Nack(false, false) // reject and don't requeue
	case err != nil:
		requeue := !d.Redelivered
		slog.ErrorContext(ctx, "Failed to handle message",
			"queue", queue,
			"redelivered", d.Redelivered,
			"requeue", requeue,
			"error", err)
		_ = d.Nack(false, requeue)
	default:
		_ = d.Ack(false)
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s, 2s, 4s... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel closed", "dial"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		if err != nil && !errors.Is(err, amqp091.ErrClosed) {
			return err
		}
	}
	return nil
}
