package domain

import (
	"context"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/notify"
)

// QueueStore is the durable local queue of submissions awaiting
// delivery. Per-record operations are individually atomic; Delete of an
// absent id is a no-op.
type QueueStore interface {
	Put(ctx context.Context, record *models.QueueRecord) error
	Get(ctx context.Context, id string) (*models.QueueRecord, error)
	List(ctx context.Context) ([]*models.QueueRecord, error)
	Delete(ctx context.Context, id string) error
	Len(ctx context.Context) (int, error)
	RecordAttempt(ctx context.Context, id string, status int, errMsg string) error
}

// SnapshotStore persists the per-job slot collection so a restart or an
// offline session shows the same state as before.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *models.JobSnapshot) error
	GetSnapshot(ctx context.Context, jobID string) (*models.JobSnapshot, error)
	DeleteSnapshot(ctx context.Context, jobID string) error
}

// Submitter attempts an immediate network delivery under a bounded
// timeout, falling back to the durable queue.
type Submitter interface {
	Submit(ctx context.Context, req *models.SubmissionRequest) (*models.SubmissionResult, error)
}

// Scorer maps a captured image to a sharpness score.
type Scorer interface {
	ScoreBytes(data []byte) (float64, error)
}

// Notifier is the one-way, fire-and-forget outbound message channel
// towards foreground pages.
type Notifier interface {
	Publish(msg notify.Message) error
}

// Alerter surfaces a persistently failing queue record to an operator.
type Alerter interface {
	DeliveryStuck(ctx context.Context, record *models.QueueRecord)
}
