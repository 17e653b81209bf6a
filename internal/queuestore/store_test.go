package queuestore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	logger := zerolog.Nop()
	store, err := Open(Options{Path: path, SyncWrites: true}, &logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func newRecord(kind string) *models.QueueRecord {
	return &models.QueueRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TargetURL: "https://backend.example/api/photos",
		Method:    "POST",
		Headers:   map[string]string{"Content-Type": "application/json"},
		Body:      []byte(`{"job":"j1"}`),
		Kind:      kind,
		CreatedAt: time.Now(),
	}
}

func TestPutGetDelete(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "queue"))
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	record := newRecord(models.SubmissionKindPhoto)
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TargetURL != record.TargetURL || got.Kind != models.SubmissionKindPhoto {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := store.Delete(ctx, record.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, record.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "queue"))
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	record := newRecord(models.SubmissionKindMetadata)
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := store.Delete(ctx, record.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, record.ID); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}

	n, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
}

func TestListOrderedByCreation(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "queue"))
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	base := time.Now()
	var ids []string
	for i := 0; i < 5; i++ {
		record := newRecord(models.SubmissionKindPhoto)
		record.CreatedAt = base.Add(time.Duration(4-i) * time.Second)
		ids = append(ids, record.ID)
		if err := store.Put(ctx, record); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].CreatedAt.Before(records[i-1].CreatedAt) {
			t.Fatalf("records not in creation order at %d", i)
		}
	}
	// Oldest first: the last inserted record has the earliest timestamp.
	if records[0].ID != ids[4] {
		t.Fatalf("expected oldest record first, got %s", records[0].ID)
	}
}

func TestDurabilityAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "queue")
	ctx := context.Background()

	store := newTestStore(t, dir)
	var ids []string
	for i := 0; i < 3; i++ {
		record := newRecord(models.SubmissionKindPhoto)
		record.Body = []byte(fmt.Sprintf(`{"n":%d}`, i))
		ids = append(ids, record.ID)
		if err := store.Put(ctx, record); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Simulated process restart: the reopened store sees all records.
	reopened := newTestStore(t, dir)
	t.Cleanup(func() { reopened.Close() })

	records, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
	if len(records) != len(ids) {
		t.Fatalf("expected %d records after reopen, got %d", len(ids), len(records))
	}
	for _, id := range ids {
		if _, err := reopened.Get(ctx, id); err != nil {
			t.Fatalf("record %s lost across reopen: %v", id, err)
		}
	}
}

func TestRecordAttempt(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "queue"))
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	record := newRecord(models.SubmissionKindPhoto)
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := store.RecordAttempt(ctx, record.ID, 500, "internal error"); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if err := store.RecordAttempt(ctx, record.ID, 0, "connection refused"); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	got, err := store.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", got.Attempts)
	}
	if got.LastError != "connection refused" || got.LastStatus != 0 {
		t.Fatalf("unexpected attempt bookkeeping: %+v", got)
	}
	if got.LastAttemptAt == nil {
		t.Fatalf("expected last attempt time to be set")
	}
}

func TestClosedStore(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "queue"))
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ctx := context.Background()
	if err := store.Put(ctx, newRecord(models.SubmissionKindPhoto)); err != ErrStoreClosed {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	if _, err := store.List(ctx); err != ErrStoreClosed {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	// Double close is fine.
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
