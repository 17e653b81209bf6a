package models

import "time"

const (
	SubmissionKindPhoto    = "photo"
	SubmissionKindMetadata = "metadata-update"
)

// QueueRecord is one durably stored submission awaiting delivery.
// Records are created by the gateway on a failed immediate send and
// deleted by the daemon on confirmed delivery; they are never mutated
// in place except for attempt bookkeeping.
type QueueRecord struct {
	ID        string            `json:"id"`
	TargetURL string            `json:"target_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      []byte            `json:"body,omitempty"`
	Kind      string            `json:"kind"`
	CreatedAt time.Time         `json:"created_at"`

	// Attempt bookkeeping, updated by the daemon between drains.
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	LastStatus    int        `json:"last_status,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}
