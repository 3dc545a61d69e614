package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeInvalidateUserViews tells every worker to drop cached views of one user.
	JobTypeInvalidateUserViews JobType = "invalidate_user_views"
	// JobTypeBillingSync applies a billing provider event to the matching user.
	JobTypeBillingSync JobType = "billing_sync"
)

const defaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	Identity   string         `json:"identity,omitempty"`
	NotBefore  *time.Time     `json:"not_before,omitempty"` // nil = immediate
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // nil = never expires
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job about the user with identity.
func NewJob(jobType JobType, identity string) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		Identity:   identity,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		MaxRetries: defaultMaxRetries,
	}
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	return !j.IsExpired()
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	return j.NotAfter != nil && time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}

// MetadataString returns the string stored under key, or "".
func (j *Job) MetadataString(key string) string {
	if j.Metadata == nil {
		return ""
	}
	switch v := j.Metadata[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// BillingSync is the payload of a billing_sync job.
type BillingSync struct {
	// EventType is the provider's event name, for example "subscription.updated".
	EventType      string
	CustomerID     string
	SubscriptionID string
	// Membership is the tier the subscription grants; empty leaves it unchanged.
	Membership string
}

// NewBillingSyncJob creates a billing_sync job. identity may be empty when the billing
// provider only knows the customer id.
func NewBillingSyncJob(identity string, p BillingSync) *Job {
	j := NewJob(JobTypeBillingSync, identity)
	j.Metadata["event_type"] = p.EventType
	j.Metadata["customer_id"] = p.CustomerID
	j.Metadata["subscription_id"] = p.SubscriptionID
	j.Metadata["membership"] = p.Membership
	return j
}

// BillingSync decodes the billing payload carried in the job metadata.
func (j *Job) BillingSync() (BillingSync, error) {
	if j.Type != JobTypeBillingSync {
		return BillingSync{}, fmt.Errorf("job %s is %s, not %s", j.ID, j.Type, JobTypeBillingSync)
	}
	p := BillingSync{
		EventType:      j.MetadataString("event_type"),
		CustomerID:     j.MetadataString("customer_id"),
		SubscriptionID: j.MetadataString("subscription_id"),
		Membership:     j.MetadataString("membership"),
	}
	if p.CustomerID == "" {
		return BillingSync{}, fmt.Errorf("job %s has no customer_id", j.ID)
	}
	return p, nil
}
