package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a decoded job together with the delivery that must be settled once the
// job has been handled.
type Message struct {
	Job      *Job
	delivery amqp.Delivery
}

// NewMessage pairs job with its delivery.
func NewMessage(job *Job, delivery amqp.Delivery) *Message {
	return &Message{Job: job, delivery: delivery}
}

// Ack settles the delivery as processed.
func (m *Message) Ack() error {
	return m.delivery.Ack(false)
}

// Nack rejects the delivery; without requeue it is dead-lettered.
func (m *Message) Nack(requeue bool) error {
	return m.delivery.Nack(false, requeue)
}

// GetJob returns the decoded job.
func (m *Message) GetJob() *Job {
	return m.Job
}
