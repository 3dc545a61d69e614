package queue

import (
	"context"
	"time"
)

// MessageInterface is a received job that must be acknowledged.
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// JobQueue is the interface for job queues
type JobQueue interface {
	// Enqueue publishes a job
	Enqueue(ctx context.Context, job *Job) error

	// Consume delivers messages until ctx is cancelled or the connection drops.
	// prefetchCount bounds the unacknowledged messages held by this consumer.
	// Both returned channels are closed when delivery stops.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	// Close closes the queue connection
	Close() error

	// HealthCheck verifies the queue connection is healthy
	HealthCheck(ctx context.Context) error
}

// DLQPurger removes dead-lettered messages older than retention and reports how many.
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
