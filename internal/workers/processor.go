// Package workers applies background jobs consumed from the job queue.
package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/invalidation"
	"github.com/benvon/membership-api/internal/logger"
	"github.com/benvon/membership-api/internal/models"
	"github.com/benvon/membership-api/internal/queue"
	"go.uber.org/zap"
)

const (
	baseRetryDelay = 5 * time.Second
	maxRetryDelay  = 5 * time.Minute
)

// UserWriter is the write surface of the user repository used by billing sync.
type UserWriter interface {
	Update(ctx context.Context, identity string, update models.UserUpdate) (*models.User, error)
	UpdateByBillingCustomerID(ctx context.Context, customerID string, update models.UserUpdate) (*models.User, error)
}

// Enqueuer re-publishes jobs that should be retried later.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// JobProcessor dispatches queued jobs by type.
type JobProcessor struct {
	users UserWriter
	// views is told about invalidations published by other processes. It must not
	// publish to the queue again.
	views    invalidation.Notifier
	jobQueue Enqueuer
	log      *zap.Logger
}

// NewJobProcessor creates a job processor. jobQueue may be nil, in which case failed
// jobs are requeued by the broker instead of being re-published with a delay.
func NewJobProcessor(users UserWriter, views invalidation.Notifier, jobQueue Enqueuer, log *zap.Logger) *JobProcessor {
	if views == nil {
		views = invalidation.Nop
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JobProcessor{users: users, views: views, jobQueue: jobQueue, log: log}
}

// permanentError marks failures that no retry can fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// IsPermanent reports whether err should skip retries and go straight to the DLQ.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Run processes messages until ctx is cancelled or msgs is closed.
func (p *JobProcessor) Run(ctx context.Context, msgs <-chan *queue.Message, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.log.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgs:
			if !ok {
				p.log.Info("message_channel_closed")
				return
			}
			if err := p.ProcessJob(ctx, msg); err != nil {
				p.log.Error("failed_to_process_job",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessJob runs one job and acknowledges it. Failures are retried with backoff
// and dead-lettered once the job runs out of retries.
func (p *JobProcessor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	var err error
	switch job.Type {
	case queue.JobTypeInvalidateUserViews:
		err = p.ProcessInvalidateUserViewsJob(ctx, job)
	case queue.JobTypeBillingSync:
		err = p.ProcessBillingSyncJob(ctx, job)
	default:
		err = permanent(fmt.Errorf("unknown job type: %s", job.Type))
	}
	if err != nil {
		return p.handleJobError(ctx, msg, job, err)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	return nil
}

// ProcessInvalidateUserViewsJob drops this process's views of the user in the job.
func (p *JobProcessor) ProcessInvalidateUserViewsJob(ctx context.Context, job *queue.Job) error {
	ev, err := invalidation.EventFromJob(job)
	if err != nil {
		return permanent(err)
	}
	if err := p.views.Notify(ctx, ev); err != nil {
		return fmt.Errorf("failed to invalidate views: %w", err)
	}
	p.log.Debug("user_views_invalidated",
		zap.String("identity", logger.SanitizeIdentity(ev.Identity)),
		zap.String("reason", string(ev.Reason)),
	)
	return nil
}

// ProcessBillingSyncJob applies a billing event to the user linked to the customer.
// A customer seen for the first time is linked to the job's identity.
func (p *JobProcessor) ProcessBillingSyncJob(ctx context.Context, job *queue.Job) error {
	sync, err := job.BillingSync()
	if err != nil {
		return permanent(err)
	}

	update := billingUpdate(sync)
	user, err := p.users.UpdateByBillingCustomerID(ctx, sync.CustomerID, update)
	if errors.Is(err, database.ErrNotFound) && job.Identity != "" {
		update.BillingCustomerID = &sync.CustomerID
		user, err = p.users.Update(ctx, job.Identity, update)
	}
	switch {
	case errors.Is(err, database.ErrNotFound):
		return permanent(fmt.Errorf("no user for billing customer: %w", err))
	case errors.Is(err, database.ErrConstraintViolation):
		return permanent(fmt.Errorf("billing update rejected: %w", err))
	case err != nil:
		return fmt.Errorf("failed to apply billing update: %w", err)
	}

	p.log.Info("billing_sync_applied",
		zap.String("identity", logger.SanitizeIdentity(user.Identity)),
		zap.String("event_type", sync.EventType),
		zap.String("membership", string(user.Membership)),
	)
	return nil
}

// billingUpdate maps a billing event to user attributes. Deleted subscriptions clear
// the stored subscription id.
func billingUpdate(sync queue.BillingSync) models.UserUpdate {
	var update models.UserUpdate
	if sync.Membership != "" {
		m := models.Membership(sync.Membership)
		update.Membership = &m
	}
	switch {
	case sync.SubscriptionID != "" && !strings.HasSuffix(sync.EventType, ".deleted"):
		id := sync.SubscriptionID
		update.BillingSubscriptionID = &id
	case strings.HasSuffix(sync.EventType, ".deleted"):
		empty := ""
		update.BillingSubscriptionID = &empty
	}
	return update
}

// retryDelay doubles from baseRetryDelay per attempt, capped at maxRetryDelay.
func retryDelay(retryCount int) time.Duration {
	d := baseRetryDelay
	for i := 0; i < retryCount && d < maxRetryDelay; i++ {
		d *= 2
	}
	return min(d, maxRetryDelay)
}

func (p *JobProcessor) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	if IsPermanent(err) || !job.CanRetry() {
		p.log.Warn("job_dead_lettered",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Int("retry_count", job.RetryCount),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			p.log.Error("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (dead-lettered): %w", err)
	}

	if p.jobQueue == nil {
		job.IncrementRetry()
		if nackErr := msg.Nack(true); nackErr != nil {
			p.log.Error("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (requeued): %w", err)
	}

	delay := retryDelay(job.RetryCount)
	notBefore := time.Now().Add(delay)
	retry := *job
	retry.NotBefore = &notBefore
	retry.IncrementRetry()

	if enqueueErr := p.jobQueue.Enqueue(ctx, &retry); enqueueErr != nil {
		if nackErr := msg.Nack(true); nackErr != nil {
			p.log.Error("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed, re-enqueue failed: %w", errors.Join(err, enqueueErr))
	}
	if ackErr := msg.Ack(); ackErr != nil {
		p.log.Error("failed_to_ack_retried_job", zap.Error(ackErr))
	}
	p.log.Info("job_scheduled_for_retry",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int("attempt", retry.RetryCount),
		zap.Duration("delay", delay),
	)
	return fmt.Errorf("job failed (will retry): %w", err)
}
