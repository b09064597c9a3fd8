// Package nudge implements adherence reminders. A nudge is logged first
// and delivered asynchronously by the notifier, so the log is the source
// of truth for what was attempted.
package nudge

import "time"

// Status is the delivery state of a nudge.
type Status string

const (
	StatusQueued Status = "queued"
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Channel is the delivery medium.
type Channel string

const (
	ChannelSMS  Channel = "sms"
	ChannelPush Channel = "push"
)

// Nudge is one reminder sent to a patient.
type Nudge struct {
	ID        string     `json:"id"`
	PatientID string     `json:"patient_id"`
	DoseID    string     `json:"dose_id,omitempty"`
	Channel   Channel    `json:"channel"`
	Message   string     `json:"message"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}
