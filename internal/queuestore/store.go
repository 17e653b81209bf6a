package queuestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
)

var (
	ErrStoreClosed = errors.New("queue store is closed")
	ErrNotFound    = errors.New("queue record not found")
)

const pendingPrefix = "pending:"

// Store is the durable queue of submissions awaiting delivery, backed by
// BadgerDB. Per-record put/get/delete are atomic; cross-record
// consistency is not required since each record is independent. Records
// survive process restarts.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// Options controls how the store is opened.
type Options struct {
	Path string
	// SyncWrites forces fsync on every write. On by default from config;
	// durability is preferred over latency for this queue.
	SyncWrites bool
	// InMemory is used by tests that do not need a disk path.
	InMemory bool
}

// Open creates or reopens the store at the configured path.
func Open(opts Options, logger *zerolog.Logger) (*Store, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts.SyncWrites = opts.SyncWrites
	badgerOpts.Logger = nil

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "queuestore").Logger()
	}
	l.Info().Str("path", opts.Path).Bool("sync_writes", opts.SyncWrites).Msg("queue store opened")

	return &Store{db: db, logger: l}, nil
}

// Put persists a record keyed by its id.
func (s *Store) Put(ctx context.Context, record *models.QueueRecord) error {
	if err := s.guard(); err != nil {
		return err
	}
	if record == nil || record.ID == "" {
		return errors.New("queue record requires an id")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode queue record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(record.ID), data)
	})
	if err != nil {
		return fmt.Errorf("put queue record %s: %w", record.ID, err)
	}
	return nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.QueueRecord, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var record models.QueueRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue record %s: %w", id, err)
	}
	return &record, nil
}

// List returns all pending records ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*models.QueueRecord, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var records []*models.QueueRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var record models.QueueRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list queue records: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// Delete removes a record. Deleting an id that is already gone is a
// no-op, which keeps overlapping drains safe.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
	if err != nil {
		return fmt.Errorf("delete queue record %s: %w", id, err)
	}
	return nil
}

// Len returns the number of pending records.
func (s *Store) Len(ctx context.Context) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count queue records: %w", err)
	}
	return count, nil
}

// RecordAttempt updates attempt bookkeeping on a record after a failed
// delivery. The record itself stays queued; there is no terminal state.
func (s *Store) RecordAttempt(ctx context.Context, id string, status int, errMsg string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	record.Attempts++
	record.LastStatus = status
	record.LastError = errMsg
	record.LastAttemptAt = &now
	return s.Put(ctx, record)
}

// Close shuts the underlying database down.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close queue store: %w", err)
	}
	return nil
}

func (s *Store) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func key(id string) []byte {
	return []byte(pendingPrefix + id)
}
