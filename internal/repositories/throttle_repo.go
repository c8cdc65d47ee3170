package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/staffgate/internal/database"
	"github.com/BradenHooton/staffgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const throttleColumns = `email, ip, failed_attempts, locked_until, last_failed_at, created_at, updated_at`

// ThrottleRepository stores login throttle records in Postgres.
// Postgres has no per-row TTL: rows idle past the inactivity window are hidden
// from reads, restarted by writes, and physically removed by DeleteInactive.
type ThrottleRepository struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewThrottleRepository creates a ThrottleRepository with the given inactivity window
func NewThrottleRepository(db *database.DB, ttl time.Duration) *ThrottleRepository {
	return &ThrottleRepository{pool: db.Pool, ttl: ttl, now: time.Now}
}

func scanThrottleRow(row pgx.Row) (*models.ThrottleRecord, error) {
	var rec models.ThrottleRecord
	err := row.Scan(
		&rec.Email, &rec.IPAddress, &rec.FailedAttempts,
		&rec.LockedUntil, &rec.LastFailedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rec, nil
}

// FindOne returns the live record for email or models.ErrNotFound
func (r *ThrottleRepository) FindOne(ctx context.Context, email string) (*models.ThrottleRecord, error) {
	query := `SELECT ` + throttleColumns + ` FROM login_throttles WHERE email = $1 AND updated_at > $2`

	return scanThrottleRow(r.pool.QueryRow(ctx, query, email, r.now().Add(-r.ttl)))
}

// Create inserts record unless a live record exists, in which case the existing
// record is returned. An expired row is overwritten.
func (r *ThrottleRepository) Create(ctx context.Context, record *models.ThrottleRecord) (*models.ThrottleRecord, error) {
	query := `
		INSERT INTO login_throttles AS t (email, ip, failed_attempts, locked_until, last_failed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO UPDATE SET
			ip = EXCLUDED.ip,
			failed_attempts = EXCLUDED.failed_attempts,
			locked_until = EXCLUDED.locked_until,
			last_failed_at = EXCLUDED.last_failed_at,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
		WHERE t.updated_at <= $8
		RETURNING ` + throttleColumns

	cutoff := record.UpdatedAt.Add(-r.ttl)
	created, err := scanThrottleRow(r.pool.QueryRow(ctx, query,
		record.Email, record.IPAddress, record.FailedAttempts,
		record.LockedUntil, record.LastFailedAt,
		record.CreatedAt, record.UpdatedAt, cutoff,
	))
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	// Lost the race to a live row; return it
	query = `SELECT ` + throttleColumns + ` FROM login_throttles WHERE email = $1`
	return scanThrottleRow(r.pool.QueryRow(ctx, query, record.Email))
}

// IncrementFailure counts one failure in a single upsert. Concurrent calls for
// the same email serialize on the row lock taken by ON CONFLICT DO UPDATE, so no
// increment is lost. The lock expiry only ever moves later (GREATEST).
func (r *ThrottleRepository) IncrementFailure(ctx context.Context, update models.FailureUpdate) (*models.ThrottleRecord, error) {
	query := `
		INSERT INTO login_throttles AS t (email, ip, failed_attempts, locked_until, last_failed_at, created_at, updated_at)
		VALUES (
			$1, $2, 1,
			CASE WHEN 1 >= $4::int THEN $5::timestamptz ELSE NULL END,
			$3, $3, $3
		)
		ON CONFLICT (email) DO UPDATE SET
			ip = EXCLUDED.ip,
			failed_attempts = CASE WHEN t.updated_at <= $6 THEN 1 ELSE t.failed_attempts + 1 END,
			locked_until = CASE
				WHEN t.updated_at <= $6 THEN EXCLUDED.locked_until
				WHEN t.failed_attempts + 1 >= $4::int THEN GREATEST(COALESCE(t.locked_until, $5::timestamptz), $5::timestamptz)
				ELSE t.locked_until
			END,
			last_failed_at = EXCLUDED.last_failed_at,
			created_at = CASE WHEN t.updated_at <= $6 THEN EXCLUDED.created_at ELSE t.created_at END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + throttleColumns

	lockUntil := update.At.Add(update.LockFor)
	staleCutoff := update.At.Add(-update.InactiveTTL)

	return scanThrottleRow(r.pool.QueryRow(ctx, query,
		update.Email, update.IPAddress, update.At,
		update.LockAt, lockUntil, staleCutoff,
	))
}

// DeleteOne removes the record for email; a missing record is not an error
func (r *ThrottleRepository) DeleteOne(ctx context.Context, email string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM login_throttles WHERE email = $1`, email)
	return database.MapPostgresError(err)
}

// DeleteInactive removes rows whose last update is at or before cutoff. The
// condition is re-evaluated under the row lock, so a row refreshed by a
// concurrent IncrementFailure is left alone.
func (r *ThrottleRepository) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_throttles WHERE updated_at <= $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
