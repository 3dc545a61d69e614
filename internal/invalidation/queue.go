package invalidation

import (
	"context"
	"fmt"

	"github.com/benvon/membership-api/internal/queue"
)

// Enqueuer is the publish side of a job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// QueuePublisher forwards events as invalidate_user_views jobs so that other
// processes (workers, other API replicas) can drop their views of the user.
type QueuePublisher struct {
	q Enqueuer
}

// NewQueuePublisher creates a publisher on q.
func NewQueuePublisher(q Enqueuer) *QueuePublisher {
	return &QueuePublisher{q: q}
}

// Notify implements Notifier.
func (p *QueuePublisher) Notify(ctx context.Context, ev Event) error {
	job := queue.NewJob(queue.JobTypeInvalidateUserViews, ev.Identity)
	job.Metadata["reason"] = string(ev.Reason)
	if err := p.q.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to publish invalidation for %s: %w", ev.Reason, err)
	}
	return nil
}

// EventFromJob rebuilds the event carried by an invalidate_user_views job.
func EventFromJob(job *queue.Job) (Event, error) {
	if job.Type != queue.JobTypeInvalidateUserViews {
		return Event{}, fmt.Errorf("job %s is %s, not %s", job.ID, job.Type, queue.JobTypeInvalidateUserViews)
	}
	if job.Identity == "" {
		return Event{}, fmt.Errorf("job %s has no identity", job.ID)
	}
	return Event{
		Identity: job.Identity,
		Reason:   Reason(job.MetadataString("reason")),
		At:       job.CreatedAt,
	}, nil
}
