//go:build integration

package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/staffgate/internal/database"
	"github.com/BradenHooton/staffgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a disposable Postgres container and applies migrations
func setupPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("staffgate"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := database.New(pool, nil)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestThrottleRepository_Integration(t *testing.T) {
	db := setupPostgres(t)
	repo := NewThrottleRepository(db, time.Hour)
	ctx := context.Background()

	t.Run("find missing returns not found", func(t *testing.T) {
		_, err := repo.FindOne(ctx, "missing@test.com")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("create is insert if absent", func(t *testing.T) {
		now := time.Now()
		first, err := repo.Create(ctx, &models.ThrottleRecord{Email: "create@test.com", CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		assert.Zero(t, first.FailedAttempts)

		_, err = repo.IncrementFailure(ctx, failureAt("create@test.com", now))
		require.NoError(t, err)

		again, err := repo.Create(ctx, &models.ThrottleRecord{Email: "create@test.com", CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		assert.Equal(t, 1, again.FailedAttempts)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		const workers = 25
		now := time.Now()

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.IncrementFailure(ctx, failureAt("race@test.com", now))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		rec, err := repo.FindOne(ctx, "race@test.com")
		require.NoError(t, err)
		assert.Equal(t, workers, rec.FailedAttempts)
		require.NotNil(t, rec.LockedUntil)
	})

	t.Run("ninth failure locks for ten minutes", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		var rec *models.ThrottleRecord
		var err error
		for i := 0; i < 9; i++ {
			rec, err = repo.IncrementFailure(ctx, failureAt("lock@test.com", now))
			require.NoError(t, err)
			if i < 8 {
				assert.Nil(t, rec.LockedUntil)
			}
		}
		require.NotNil(t, rec.LockedUntil)
		assert.WithinDuration(t, now.Add(10*time.Minute), *rec.LockedUntil, time.Millisecond)
	})

	t.Run("stale row restarts at one", func(t *testing.T) {
		old := time.Now().Add(-2 * time.Hour)
		for i := 0; i < 4; i++ {
			_, err := repo.IncrementFailure(ctx, failureAt("stale@test.com", old))
			require.NoError(t, err)
		}

		_, err := repo.FindOne(ctx, "stale@test.com")
		assert.ErrorIs(t, err, models.ErrNotFound)

		rec, err := repo.IncrementFailure(ctx, failureAt("stale@test.com", time.Now()))
		require.NoError(t, err)
		assert.Equal(t, 1, rec.FailedAttempts)
		assert.Nil(t, rec.LockedUntil)
	})

	t.Run("sweep removes only inactive rows", func(t *testing.T) {
		now := time.Now()
		_, err := repo.IncrementFailure(ctx, failureAt("idle@test.com", now.Add(-3601*time.Second)))
		require.NoError(t, err)
		_, err = repo.IncrementFailure(ctx, failureAt("active@test.com", now))
		require.NoError(t, err)

		n, err := repo.DeleteInactive(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		var count int
		err = db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM login_throttles WHERE email = 'idle@test.com'`).Scan(&count)
		require.NoError(t, err)
		assert.Zero(t, count)

		_, err = repo.FindOne(ctx, "active@test.com")
		assert.NoError(t, err)
	})

	t.Run("delete one", func(t *testing.T) {
		_, err := repo.IncrementFailure(ctx, failureAt("reset@test.com", time.Now()))
		require.NoError(t, err)

		require.NoError(t, repo.DeleteOne(ctx, "reset@test.com"))
		require.NoError(t, repo.DeleteOne(ctx, "reset@test.com"))

		_, err = repo.FindOne(ctx, "reset@test.com")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestUserRepository_Integration(t *testing.T) {
	db := setupPostgres(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.User{
		Email:        "staff@test.com",
		PasswordHash: "$2a$04$abcdefghijklmnopqrstuu",
		Name:         "Staff Member",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.TokenKey)
	assert.Equal(t, models.UserStatusActive, created.Status)

	byEmail, err := repo.GetByEmail(ctx, "staff@test.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "staff@test.com", byID.Email)

	_, err = repo.Create(ctx, &models.User{Email: "staff@test.com", PasswordHash: "x", Name: "Dup"})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = repo.GetByEmail(ctx, "ghost@test.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
