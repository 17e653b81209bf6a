package models

// SubmissionRequest describes one outbound delivery: where to send it,
// how, and the opaque serialized payload. The gateway either delivers it
// immediately or turns it into a QueueRecord.
type SubmissionRequest struct {
	TargetURL string
	Method    string
	Headers   map[string]string
	Body      []byte
	Kind      string
}

// SubmissionResult is the synchronous answer to a submission: either the
// server response, or a "queued" acknowledgement carrying the id the
// caller can correlate later notifier messages with.
type SubmissionResult struct {
	OK         bool
	StatusCode int
	Response   []byte

	Queued  bool
	QueueID string
}
