package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
)

// SaveSnapshot upserts the serialized slot collection for a job. The
// write replaces the previous snapshot wholesale; partial snapshots are
// never stored.
func (db *DB) SaveSnapshot(ctx context.Context, snapshot *models.JobSnapshot) error {
	if snapshot == nil || snapshot.JobID == "" {
		return errors.New("snapshot requires a job id")
	}

	payload, err := json.Marshal(snapshot.Slots)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	savedAt := snapshot.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	query := `INSERT INTO job_snapshots (job_id, payload, saved_at) VALUES (?, ?, ?)
              ON CONFLICT(job_id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`
	if _, err := db.ExecContext(ctx, query, snapshot.JobID, string(payload), savedAt); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the stored snapshot for a job, or nil when the job
// has never been snapshotted.
func (db *DB) GetSnapshot(ctx context.Context, jobID string) (*models.JobSnapshot, error) {
	query := `SELECT payload, saved_at FROM job_snapshots WHERE job_id = ?`

	var payload string
	var savedAt time.Time
	err := db.QueryRowContext(ctx, query, jobID).Scan(&payload, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var slots []models.DocumentationSlot
	if err := json.Unmarshal([]byte(payload), &slots); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return &models.JobSnapshot{JobID: jobID, Slots: slots, SavedAt: savedAt}, nil
}

// DeleteSnapshot removes the stored snapshot for a job.
func (db *DB) DeleteSnapshot(ctx context.Context, jobID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM job_snapshots WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ListSnapshotJobIDs returns the ids of all snapshotted jobs, most
// recently saved first.
func (db *DB) ListSnapshotJobIDs(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT job_id FROM job_snapshots ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
