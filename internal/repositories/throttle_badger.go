package repositories

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/BradenHooton/staffgate/internal/models"
	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const throttleKeyPrefix = "throttle:"

// Backoff between optimistic retries on write conflicts
const (
	conflictBackoffMin = 100 * time.Microsecond
	conflictBackoffMax = 5 * time.Millisecond
)

// BadgerThrottleStore keeps login throttle records in an embedded Badger
// database. Every write carries the inactivity window as its TTL, so idle
// records expire without a sweep.
type BadgerThrottleStore struct {
	db  *badger.DB
	ttl time.Duration
	now func() time.Time
}

// NewBadgerThrottleStore creates a store over an open Badger database
func NewBadgerThrottleStore(db *badger.DB, ttl time.Duration) *BadgerThrottleStore {
	return &BadgerThrottleStore{db: db, ttl: ttl, now: time.Now}
}

func throttleKey(email string) []byte {
	return []byte(throttleKeyPrefix + email)
}

// FindOne returns the live record for email or models.ErrNotFound
func (s *BadgerThrottleStore) FindOne(ctx context.Context, email string) (*models.ThrottleRecord, error) {
	var rec *models.ThrottleRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = s.get(txn, email, s.now().Add(-s.ttl))
		return err
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	if rec == nil {
		return nil, models.ErrNotFound
	}
	return rec, nil
}

// Create stores record unless a live record already exists, which is returned instead
func (s *BadgerThrottleStore) Create(ctx context.Context, record *models.ThrottleRecord) (*models.ThrottleRecord, error) {
	var out *models.ThrottleRecord
	err := s.update(ctx, func(txn *badger.Txn) error {
		existing, err := s.get(txn, record.Email, record.UpdatedAt.Add(-s.ttl))
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}
		created := *record
		out = &created
		return s.put(txn, &created)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IncrementFailure reads, increments and writes the record in one transaction.
// Badger aborts the commit with ErrConflict when another transaction wrote the
// key in between; the whole read-modify-write is then retried.
func (s *BadgerThrottleStore) IncrementFailure(ctx context.Context, update models.FailureUpdate) (*models.ThrottleRecord, error) {
	var out *models.ThrottleRecord
	err := s.update(ctx, func(txn *badger.Txn) error {
		rec, err := s.get(txn, update.Email, update.At.Add(-update.InactiveTTL))
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &models.ThrottleRecord{Email: update.Email, CreatedAt: update.At}
		}

		at := update.At
		rec.IPAddress = update.IPAddress
		rec.FailedAttempts++
		rec.LastFailedAt = &at
		rec.UpdatedAt = at

		if rec.FailedAttempts >= update.LockAt {
			until := at.Add(update.LockFor)
			if rec.LockedUntil == nil || until.After(*rec.LockedUntil) {
				rec.LockedUntil = &until
			}
		}

		out = rec
		return s.put(txn, rec)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOne removes the record for email; a missing record is not an error
func (s *BadgerThrottleStore) DeleteOne(ctx context.Context, email string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(throttleKey(email))
	})
}

// DeleteInactive has nothing to delete since expired entries vanish on their
// own. It reclaims value log space instead and always reports zero records.
func (s *BadgerThrottleStore) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.db.IsClosed() {
		return 0, models.ErrStoreUnavailable
	}

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) ||
			errors.Is(err, badger.ErrGCInMemoryMode) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("value log gc: %w", err)
		}
	}
}

// get decodes the record for email, returning nil when it is absent or was
// last touched at or before staleBefore.
func (s *BadgerThrottleStore) get(txn *badger.Txn, email string, staleBefore time.Time) (*models.ThrottleRecord, error) {
	item, err := txn.Get(throttleKey(email))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get throttle record: %w", err)
	}

	var rec models.ThrottleRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode throttle record: %w", err)
	}

	if !rec.UpdatedAt.After(staleBefore) {
		return nil, nil
	}
	return &rec, nil
}

func (s *BadgerThrottleStore) put(txn *badger.Txn, rec *models.ThrottleRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode throttle record: %w", err)
	}
	return txn.SetEntry(badger.NewEntry(throttleKey(rec.Email), data).WithTTL(s.ttl))
}

// update runs fn in a read-write transaction. Commit conflicts are retried
// with jittered backoff until ctx is done, so no increment is dropped.
func (s *BadgerThrottleStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	backoff := conflictBackoffMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return s.mapError(err)
		}

		timer := time.NewTimer(backoff/2 + rand.N(backoff/2+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, conflictBackoffMax)
	}
}

func (s *BadgerThrottleStore) mapError(err error) error {
	if s.db.IsClosed() || errors.Is(err, badger.ErrBlockedWrites) {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return err
}
