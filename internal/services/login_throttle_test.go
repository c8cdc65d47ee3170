package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/staffgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThrottle(t *testing.T) (*LoginThrottle, *MemoryThrottleStore, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	policy := DefaultThrottlePolicy()
	store := NewMemoryThrottleStore(clock, policy.InactivityTTL)
	throttle := NewLoginThrottle(store, policy, NewTestLogger())
	throttle.SetClock(clock)
	return throttle, store, clock
}

func recordN(t *testing.T, throttle *LoginThrottle, email string, n int) *models.ThrottleRecord {
	t.Helper()
	var rec *models.ThrottleRecord
	for i := 0; i < n; i++ {
		var err error
		rec, err = throttle.RecordFailure(context.Background(), email, "203.0.113.10")
		require.NoError(t, err)
	}
	return rec
}

func TestLoginThrottle_FindOrCreate(t *testing.T) {
	throttle, store, clock := newTestThrottle(t)
	ctx := context.Background()

	rec, err := throttle.FindOrCreate(ctx, "  User@Test.COM ")
	require.NoError(t, err)
	assert.Equal(t, "user@test.com", rec.Email)
	assert.Zero(t, rec.FailedAttempts)
	assert.Nil(t, rec.LockedUntil)
	assert.Equal(t, clock.Now(), rec.CreatedAt)
	assert.Equal(t, 1, store.Len())

	again, err := throttle.FindOrCreate(ctx, "user@test.com")
	require.NoError(t, err)
	assert.Equal(t, rec.CreatedAt, again.CreatedAt)
	assert.Equal(t, 1, store.Len())
}

func TestLoginThrottle_InvalidEmail(t *testing.T) {
	throttle, store, _ := newTestThrottle(t)
	ctx := context.Background()

	for _, email := range []string{"", "   ", "\t\n"} {
		_, err := throttle.FindOrCreate(ctx, email)
		assert.ErrorIs(t, err, models.ErrInvalidEmail)

		_, err = throttle.RecordFailure(ctx, email, "")
		assert.ErrorIs(t, err, models.ErrInvalidEmail)

		assert.ErrorIs(t, throttle.ResetAttempts(ctx, email), models.ErrInvalidEmail)
	}
	assert.Zero(t, store.Len())
}

// N sequential failures leave exactly N on the record.
func TestLoginThrottle_SequentialFailuresCount(t *testing.T) {
	throttle, _, _ := newTestThrottle(t)

	for n := 1; n <= 12; n++ {
		rec := recordN(t, throttle, "count@test.com", 1)
		assert.Equal(t, n, rec.FailedAttempts)
	}
}

// M concurrent failures are all counted.
func TestLoginThrottle_ConcurrentFailuresCount(t *testing.T) {
	throttle, _, _ := newTestThrottle(t)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := throttle.RecordFailure(ctx, "race@test.com", "203.0.113.10")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := throttle.FindOrCreate(ctx, "race@test.com")
	require.NoError(t, err)
	assert.Equal(t, workers, rec.FailedAttempts)
	assert.True(t, throttle.IsLocked(rec))
}

// Locks exactly on the ninth failure, for ten minutes.
func TestLoginThrottle_LocksOnNinthFailure(t *testing.T) {
	throttle, _, clock := newTestThrottle(t)

	rec := recordN(t, throttle, "lock@test.com", 8)
	assert.False(t, throttle.IsLocked(rec))
	assert.Nil(t, rec.LockedUntil)
	assert.Zero(t, throttle.RemainingLockSeconds(rec))

	rec = recordN(t, throttle, "lock@test.com", 1)
	require.NotNil(t, rec.LockedUntil)
	assert.True(t, throttle.IsLocked(rec))
	assert.Equal(t, clock.Now().Add(10*time.Minute), *rec.LockedUntil)
	assert.Equal(t, 600, throttle.RemainingLockSeconds(rec))
}

func TestLoginThrottle_LockExpiresButCaptchaStays(t *testing.T) {
	throttle, _, clock := newTestThrottle(t)

	rec := recordN(t, throttle, "expire@test.com", 9)
	require.True(t, throttle.IsLocked(rec))

	clock.Advance(10*time.Minute - 500*time.Millisecond)
	assert.True(t, throttle.IsLocked(rec))
	assert.Equal(t, 1, throttle.RemainingLockSeconds(rec), "partial seconds round up")

	clock.Advance(500 * time.Millisecond)
	assert.False(t, throttle.IsLocked(rec), "lock ends exactly at locked_until")
	assert.Zero(t, throttle.RemainingLockSeconds(rec))
	assert.True(t, throttle.IsCaptchaRequired(rec))
	assert.Equal(t, models.ThrottleStateCaptchaGated, throttle.Assess(rec).State)
}

func TestLoginThrottle_FailureWhileLockedExtendsLock(t *testing.T) {
	throttle, _, clock := newTestThrottle(t)

	first := recordN(t, throttle, "extend@test.com", 9)
	clock.Advance(time.Minute)
	second := recordN(t, throttle, "extend@test.com", 1)

	assert.Equal(t, 10, second.FailedAttempts)
	assert.True(t, second.LockedUntil.After(*first.LockedUntil))
}

// Reset then read yields a fresh record.
func TestLoginThrottle_ResetAttempts(t *testing.T) {
	throttle, _, _ := newTestThrottle(t)
	ctx := context.Background()

	recordN(t, throttle, "reset@test.com", 5)
	require.NoError(t, throttle.ResetAttempts(ctx, "RESET@test.com"))

	rec, err := throttle.FindOrCreate(ctx, "reset@test.com")
	require.NoError(t, err)
	assert.Zero(t, rec.FailedAttempts)
	assert.Nil(t, rec.LockedUntil)

	assert.NoError(t, throttle.ResetAttempts(ctx, "never-seen@test.com"), "missing record is not an error")
}

func TestLoginThrottle_RateLimitDelay(t *testing.T) {
	throttle, _, _ := newTestThrottle(t)

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{3, 0},
		{5, 0},
		{9, 0},
		{20, 0},
	}

	for _, tt := range tests {
		rec := &models.ThrottleRecord{FailedAttempts: tt.failures}
		assert.Equal(t, tt.want, throttle.RateLimitDelay(rec), "failures=%d", tt.failures)
	}
}

func TestLoginThrottle_IsCaptchaRequired(t *testing.T) {
	throttle, _, _ := newTestThrottle(t)

	for failures := 0; failures <= 12; failures++ {
		rec := &models.ThrottleRecord{FailedAttempts: failures}
		assert.Equal(t, failures >= 3, throttle.IsCaptchaRequired(rec), "failures=%d", failures)
	}
}

func TestLoginThrottle_Assess(t *testing.T) {
	throttle, _, clock := newTestThrottle(t)
	future := clock.Now().Add(time.Minute)
	past := clock.Now().Add(-time.Minute)

	tests := []struct {
		name  string
		rec   *models.ThrottleRecord
		state models.ThrottleState
		delay time.Duration
		retry int
	}{
		{"clean", &models.ThrottleRecord{}, models.ThrottleStateClean, 0, 0},
		{"warming one", &models.ThrottleRecord{FailedAttempts: 1}, models.ThrottleStateWarming, 2 * time.Second, 0},
		{"warming two", &models.ThrottleRecord{FailedAttempts: 2}, models.ThrottleStateWarming, 4 * time.Second, 0},
		{"captcha gated", &models.ThrottleRecord{FailedAttempts: 5}, models.ThrottleStateCaptchaGated, 0, 0},
		{"locked", &models.ThrottleRecord{FailedAttempts: 9, LockedUntil: &future}, models.ThrottleStateLocked, 0, 60},
		{"lock expired", &models.ThrottleRecord{FailedAttempts: 9, LockedUntil: &past}, models.ThrottleStateCaptchaGated, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := throttle.Assess(tt.rec)
			assert.Equal(t, tt.state, d.State)
			assert.Equal(t, tt.delay, d.Delay)
			assert.Equal(t, tt.retry, d.RetryAfterSeconds)
			assert.Equal(t, tt.rec.FailedAttempts >= 3, d.CaptchaRequired)
		})
	}
}

func TestLoginThrottle_NilRecordPanics(t *testing.T) {
	throttle, _, _ := newTestThrottle(t)

	assert.Panics(t, func() { throttle.IsLocked(nil) })
	assert.Panics(t, func() { throttle.RemainingLockSeconds(nil) })
	assert.Panics(t, func() { throttle.RateLimitDelay(nil) })
	assert.Panics(t, func() { throttle.IsCaptchaRequired(nil) })
	assert.Panics(t, func() { throttle.Assess(nil) })
}

func TestLoginThrottle_StoreErrorsPropagate(t *testing.T) {
	throttle, store, _ := newTestThrottle(t)
	ctx := context.Background()
	store.Err = errors.New("connection refused")

	_, err := throttle.FindOrCreate(ctx, "user@test.com")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	_, err = throttle.RecordFailure(ctx, "user@test.com", "")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	err = throttle.ResetAttempts(ctx, "user@test.com")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.ErrorContains(t, err, "connection refused")

	_, err = throttle.PurgeInactive(ctx)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	_, _, err = throttle.Inspect(ctx, "user@test.com")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestLoginThrottle_InactiveRecordsExpire(t *testing.T) {
	throttle, store, clock := newTestThrottle(t)
	ctx := context.Background()

	recordN(t, throttle, "idle@test.com", 4)
	clock.Advance(59 * time.Minute)
	recordN(t, throttle, "busy@test.com", 1)

	clock.Advance(time.Minute)

	rec, err := throttle.FindOrCreate(ctx, "idle@test.com")
	require.NoError(t, err)
	assert.Zero(t, rec.FailedAttempts, "record idle for the full window starts over")

	require.NoError(t, throttle.ResetAttempts(ctx, "idle@test.com"))
	n, err := throttle.PurgeInactive(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(time.Hour)
	n, err = throttle.PurgeInactive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, store.Len())
}

func TestLoginThrottle_Inspect(t *testing.T) {
	throttle, store, _ := newTestThrottle(t)
	ctx := context.Background()

	rec, d, err := throttle.Inspect(ctx, "ghost@test.com")
	require.NoError(t, err)
	assert.Equal(t, "ghost@test.com", rec.Email)
	assert.Equal(t, models.ThrottleStateClean, d.State)
	assert.Zero(t, store.Len(), "inspect never creates records")

	recordN(t, throttle, "seen@test.com", 3)
	rec, d, err = throttle.Inspect(ctx, "seen@test.com")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.FailedAttempts)
	assert.Equal(t, models.ThrottleStateCaptchaGated, d.State)
}

// The end-to-end walk through every state for one account.
func TestLoginThrottle_Scenario(t *testing.T) {
	throttle, _, clock := newTestThrottle(t)
	ctx := context.Background()
	const email = "user@test.com"

	rec := recordN(t, throttle, email, 3)
	assert.True(t, throttle.IsCaptchaRequired(rec))
	assert.False(t, throttle.IsLocked(rec))
	assert.Zero(t, throttle.RateLimitDelay(rec))

	rec = recordN(t, throttle, email, 6)
	assert.Equal(t, 9, rec.FailedAttempts)
	assert.True(t, throttle.IsLocked(rec))
	require.NotNil(t, rec.LockedUntil)
	assert.WithinDuration(t, clock.Now().Add(600*time.Second), *rec.LockedUntil, time.Second)

	require.NoError(t, throttle.ResetAttempts(ctx, email))
	rec, err := throttle.FindOrCreate(ctx, email)
	require.NoError(t, err)
	assert.Zero(t, rec.FailedAttempts)
}

func TestLoginThrottle_StartedLock(t *testing.T) {
	throttle, _, clock := newTestThrottle(t)
	now := clock.Now()
	locked := now.Add(10 * time.Minute)
	expired := now.Add(-time.Minute)

	tests := []struct {
		name   string
		prior  models.ThrottleRecord
		record models.ThrottleRecord
		want   bool
	}{
		{"below threshold", models.ThrottleRecord{FailedAttempts: 7}, models.ThrottleRecord{FailedAttempts: 8}, false},
		{"ninth failure locks", models.ThrottleRecord{FailedAttempts: 8}, models.ThrottleRecord{FailedAttempts: 9, LockedUntil: &locked}, true},
		{"concurrent tenth failure", models.ThrottleRecord{FailedAttempts: 8}, models.ThrottleRecord{FailedAttempts: 10, LockedUntil: &locked}, false},
		{"relock after expiry", models.ThrottleRecord{FailedAttempts: 9, LockedUntil: &expired}, models.ThrottleRecord{FailedAttempts: 10, LockedUntil: &locked}, true},
		{"concurrent relock", models.ThrottleRecord{FailedAttempts: 9, LockedUntil: &expired}, models.ThrottleRecord{FailedAttempts: 11, LockedUntil: &locked}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, throttle.StartedLock(&tt.prior, &tt.record))
		})
	}
}
