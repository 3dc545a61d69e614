package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Topology names the broker objects a RabbitMQQueue declares and uses.
type Topology struct {
	Exchange        string
	DelayedExchange string
	Queue           string
	DeadLetterQueue string
	// WaitQueue holds delayed jobs until their per-message TTL expires, then
	// dead-letters them to Queue. Used when the delayed exchange is unavailable.
	WaitQueue string
}

// DefaultTopology is the layout shared by the API server and the worker.
var DefaultTopology = Topology{
	Exchange:        "membership",
	DelayedExchange: "membership_delayed",
	Queue:           "membership_jobs",
	DeadLetterQueue: "membership_jobs_dlq",
	WaitQueue:       "membership_jobs_wait",
}

const (
	jobsRoutingKey = "jobs"
	dlqRoutingKey  = "dlq"
)

// publisher is the publishing half of *amqp.Channel.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQQueue implements JobQueue using RabbitMQ
type RabbitMQQueue struct {
	conn *amqp.Connection
	log  *zap.Logger
	topo Topology

	// mu guards channel and pub; amqp channels are not safe for concurrent publishes.
	mu      sync.Mutex
	channel *amqp.Channel
	pub     publisher
	delayed bool
}

// NewRabbitMQQueue connects to amqpURL and declares topo.
func NewRabbitMQQueue(amqpURL string, topo Topology, log *zap.Logger) (*RabbitMQQueue, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &RabbitMQQueue{conn: conn, log: log, topo: topo, channel: ch}
	if err := q.declare(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare topology: %w", err)
	}
	q.pub = q.channel
	return q, nil
}

// declare creates the exchanges and queues. Jobs rejected without requeue on the main
// queue are routed to the dead letter queue.
func (q *RabbitMQQueue) declare() error {
	q.declareDelayedExchange()

	t := q.topo
	steps := []struct {
		what string
		run  func() error
	}{
		{"exchange", func() error {
			return q.channel.ExchangeDeclare(t.Exchange, "direct", true, false, false, false, nil)
		}},
		{"dead letter queue", func() error {
			_, err := q.channel.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil)
			return err
		}},
		{"dead letter binding", func() error {
			return q.channel.QueueBind(t.DeadLetterQueue, dlqRoutingKey, t.Exchange, false, nil)
		}},
		{"job queue", func() error {
			_, err := q.channel.QueueDeclare(t.Queue, true, false, false, false, amqp.Table{
				"x-dead-letter-exchange":    t.Exchange,
				"x-dead-letter-routing-key": dlqRoutingKey,
			})
			return err
		}},
		{"job binding", func() error {
			return q.channel.QueueBind(t.Queue, jobsRoutingKey, t.Exchange, false, nil)
		}},
		{"wait queue", func() error {
			_, err := q.channel.QueueDeclare(t.WaitQueue, true, false, false, false, amqp.Table{
				"x-dead-letter-exchange":    t.Exchange,
				"x-dead-letter-routing-key": jobsRoutingKey,
			})
			return err
		}},
	}
	if q.delayed {
		steps = append(steps, struct {
			what string
			run  func() error
		}{"delayed job binding", func() error {
			return q.channel.QueueBind(t.Queue, jobsRoutingKey, t.DelayedExchange, false, nil)
		}})
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%s: %w", step.what, err)
		}
	}
	return nil
}

// declareDelayedExchange enables the delayed exchange when the broker has the
// rabbitmq_delayed_message_exchange plugin. Without it delayed jobs go through WaitQueue.
func (q *RabbitMQQueue) declareDelayedExchange() {
	err := q.channel.ExchangeDeclare(q.topo.DelayedExchange, "x-delayed-message",
		true, false, false, false, amqp.Table{"x-delayed-type": "direct"})
	if err == nil {
		q.delayed = true
		return
	}
	q.log.Warn("delayed_message_exchange_unavailable", zap.Error(err))
	// A failed declare closes the channel.
	if q.channel.IsClosed() {
		if ch, openErr := q.conn.Channel(); openErr == nil {
			q.channel = ch
		}
	}
}

// publishing builds the AMQP message and picks its exchange and routing key. Jobs due
// later go to the delayed exchange, or to WaitQueue through the default exchange with
// the remaining delay as their TTL.
func (q *RabbitMQQueue) publishing(job *Job) (exchange, key string, p amqp.Publishing, err error) {
	body, err := json.Marshal(job)
	if err != nil {
		return "", "", amqp.Publishing{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	p = amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    job.CreatedAt,
		Type:         string(job.Type),
	}
	if job.NotAfter != nil {
		if ttl := time.Until(*job.NotAfter); ttl > 0 {
			p.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
		}
	}

	var delay time.Duration
	if job.NotBefore != nil {
		delay = time.Until(*job.NotBefore)
	}
	switch {
	case delay <= 0:
		return q.topo.Exchange, jobsRoutingKey, p, nil
	case q.delayed:
		p.Headers = amqp.Table{"x-delay": delay.Milliseconds()}
		return q.topo.DelayedExchange, jobsRoutingKey, p, nil
	default:
		// Expired wait messages are dead-lettered onto the job queue; an expired
		// NotAfter is caught by accept once the job arrives there.
		p.Expiration = strconv.FormatInt(max(delay.Milliseconds(), 1), 10)
		return "", q.topo.WaitQueue, p, nil
	}
}

// Enqueue adds a job to the queue
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *Job) error {
	exchange, key, p, err := q.publishing(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.pub.PublishWithContext(ctx, exchange, key, false, false, p); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Consume returns a channel of messages from the queue using async delivery.
func (q *RabbitMQQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	if prefetchCount < 1 {
		prefetchCount = 1
	}
	// Consumers get their own channel so acks never contend with publishes.
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}
	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(q.topo.Queue, "", false, false, false, false, nil)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() { _ = consumeCh.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					errChan <- errors.New("delivery channel closed")
					return
				}

				job, ok := q.accept(ctx, delivery)
				if !ok {
					continue
				}
				msg := NewMessage(job, delivery)
				select {
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// accept decodes a delivery and settles the ones that must not reach a handler.
// Undecodable or expired jobs are dead-lettered. A job that arrives before its
// NotBefore is published again with its remaining delay and the delivery acked, so
// early jobs wait on the broker instead of cycling through the consumer.
func (q *RabbitMQQueue) accept(ctx context.Context, d amqp.Delivery) (*Job, bool) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		q.log.Error("failed_to_unmarshal_job",
			zap.String("message_id", d.MessageId),
			zap.Error(err),
		)
		_ = d.Nack(false, false)
		return nil, false
	}
	switch {
	case job.IsExpired():
		_ = d.Nack(false, false)
		return nil, false
	case !job.ShouldProcess():
		if err := q.Enqueue(ctx, &job); err != nil {
			q.log.Warn("failed_to_reschedule_job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			_ = d.Nack(false, true)
			return nil, false
		}
		_ = d.Ack(false)
		return nil, false
	}
	return &job, true
}

// PurgeOlderThan drops dead-lettered jobs published more than retention ago. The DLQ is
// FIFO, so the scan stops at the first message that is still young enough to keep.
func (q *RabbitMQQueue) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	purged := 0
	for {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		d, ok, err := q.channel.Get(q.topo.DeadLetterQueue, false)
		if err != nil {
			return purged, fmt.Errorf("failed to read DLQ: %w", err)
		}
		if !ok {
			return purged, nil
		}
		if !d.Timestamp.IsZero() && d.Timestamp.After(cutoff) {
			if err := d.Nack(false, true); err != nil {
				return purged, fmt.Errorf("failed to requeue DLQ message: %w", err)
			}
			return purged, nil
		}
		if err := d.Ack(false); err != nil {
			return purged, fmt.Errorf("failed to ack DLQ message: %w", err)
		}
		purged++
	}
}

// HealthCheck verifies the connection and publish channel are open.
func (q *RabbitMQQueue) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.conn == nil || q.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel == nil || q.channel.IsClosed() {
		return errors.New("rabbitmq channel closed")
	}
	return nil
}

// Close closes the queue connection
func (q *RabbitMQQueue) Close() error {
	var err error
	q.mu.Lock()
	if q.channel != nil {
		err = q.channel.Close()
	}
	q.mu.Unlock()
	if q.conn != nil {
		if closeErr := q.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// ConnectRabbitMQ retries NewRabbitMQQueue with exponential backoff to ride out broker
// startup delays. It gives up after maxAttempts or when ctx is done.
func ConnectRabbitMQ(ctx context.Context, amqpURL string, maxAttempts int, log *zap.Logger) (*RabbitMQQueue, error) {
	if log == nil {
		log = zap.NewNop()
	}
	const (
		initialDelay = 2 * time.Second
		maxDelay     = 30 * time.Second
	)
	var lastErr error
	delay := initialDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		q, err := NewRabbitMQQueue(amqpURL, DefaultTopology, log)
		if err == nil {
			return q, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		log.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxDelay)
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}
