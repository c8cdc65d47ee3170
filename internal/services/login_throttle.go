package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/staffgate/internal/metrics"
	"github.com/BradenHooton/staffgate/internal/models"
	pkglogger "github.com/BradenHooton/staffgate/pkg/logger"
)

// ThrottleStore defines the persistence operations the login throttle relies on.
// IncrementFailure must be atomic per email: concurrent calls never lose an increment.
type ThrottleStore interface {
	FindOne(ctx context.Context, email string) (*models.ThrottleRecord, error)
	Create(ctx context.Context, record *models.ThrottleRecord) (*models.ThrottleRecord, error)
	IncrementFailure(ctx context.Context, update models.FailureUpdate) (*models.ThrottleRecord, error)
	DeleteOne(ctx context.Context, email string) error
	DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error)
}

// Clock abstracts the current time source
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ThrottlePolicy holds the thresholds of the login throttle state machine
type ThrottlePolicy struct {
	CaptchaThreshold int             // failures at which a CAPTCHA becomes mandatory
	LockThreshold    int             // post-increment failures that lock the account
	LockDuration     time.Duration   // lock length from the locking failure
	InactivityTTL    time.Duration   // idle records are purged after this long
	Delays           []time.Duration // Delays[n-1] is the delay after n failures; 0 past the end
}

// DefaultThrottlePolicy returns the production policy: 2s/4s delays, CAPTCHA from
// 3 failures, a 10 minute lock from 9 failures, and a 1 hour inactivity window.
func DefaultThrottlePolicy() ThrottlePolicy {
	return ThrottlePolicy{
		CaptchaThreshold: 3,
		LockThreshold:    9,
		LockDuration:     10 * time.Minute,
		InactivityTTL:    time.Hour,
		Delays:           []time.Duration{2 * time.Second, 4 * time.Second},
	}
}

// ThrottleDecision summarizes what a login attempt must go through
type ThrottleDecision struct {
	State             models.ThrottleState `json:"state"`
	FailedAttempts    int                  `json:"failed_attempts"`
	Delay             time.Duration        `json:"-"`
	CaptchaRequired   bool                 `json:"captcha_required"`
	RetryAfterSeconds int                  `json:"retry_after_seconds"`
}

// LoginThrottle decides, per email, whether a login attempt may proceed and with
// what friction, and maintains the failure history in a ThrottleStore.
type LoginThrottle struct {
	store  ThrottleStore
	policy ThrottlePolicy
	clock  Clock
	logger *slog.Logger
}

// NewLoginThrottle creates a LoginThrottle using the system clock
func NewLoginThrottle(store ThrottleStore, policy ThrottlePolicy, logger *slog.Logger) *LoginThrottle {
	return &LoginThrottle{
		store:  store,
		policy: policy,
		clock:  SystemClock{},
		logger: logger,
	}
}

// SetClock replaces the time source (tests)
func (t *LoginThrottle) SetClock(clock Clock) {
	t.clock = clock
}

// Policy returns the active policy
func (t *LoginThrottle) Policy() ThrottlePolicy {
	return t.policy
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", models.ErrInvalidEmail
	}
	return email, nil
}

// FindOrCreate returns the record for email, creating an empty one when absent
func (t *LoginThrottle) FindOrCreate(ctx context.Context, email string) (*models.ThrottleRecord, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	record, err := t.store.FindOne(ctx, email)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, t.storeError("find throttle record", err)
	}

	now := t.clock.Now()
	record, err = t.store.Create(ctx, &models.ThrottleRecord{
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, t.storeError("create throttle record", err)
	}

	return record, nil
}

// Inspect reports the current record and decision for email without creating
// anything. An absent record is returned as an empty, clean one.
func (t *LoginThrottle) Inspect(ctx context.Context, email string) (*models.ThrottleRecord, ThrottleDecision, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, ThrottleDecision{}, err
	}

	record, err := t.store.FindOne(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		record = &models.ThrottleRecord{Email: email}
	} else if err != nil {
		return nil, ThrottleDecision{}, t.storeError("inspect throttle record", err)
	}

	return record, t.Assess(record), nil
}

// RecordFailure atomically counts one failed attempt for email and locks the
// account once the post-increment count reaches the lock threshold.
func (t *LoginThrottle) RecordFailure(ctx context.Context, email, ipAddress string) (*models.ThrottleRecord, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	record, err := t.store.IncrementFailure(ctx, models.FailureUpdate{
		Email:       email,
		IPAddress:   ipAddress,
		At:          t.clock.Now(),
		LockAt:      t.policy.LockThreshold,
		LockFor:     t.policy.LockDuration,
		InactiveTTL: t.policy.InactivityTTL,
	})
	if err != nil {
		return nil, t.storeError("record login failure", err)
	}

	metrics.ThrottleFailures.Inc()
	if t.IsLocked(record) {
		metrics.ThrottleLockouts.Inc()
	}

	t.logger.Debug("login failure recorded",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Int("failed_attempts", record.FailedAttempts))

	return record, nil
}

// ResetAttempts deletes the record for email. Missing records are not an error.
func (t *LoginThrottle) ResetAttempts(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	if err := t.store.DeleteOne(ctx, email); err != nil && !errors.Is(err, models.ErrNotFound) {
		return t.storeError("reset login attempts", err)
	}

	metrics.ThrottleResets.Inc()
	return nil
}

// PurgeInactive removes records idle for longer than the inactivity window.
// Stores with native expiry may report zero.
func (t *LoginThrottle) PurgeInactive(ctx context.Context) (int64, error) {
	cutoff := t.clock.Now().Add(-t.policy.InactivityTTL)
	n, err := t.store.DeleteInactive(ctx, cutoff)
	if err != nil {
		return 0, t.storeError("purge inactive throttle records", err)
	}
	return n, nil
}

// IsLocked reports whether record.LockedUntil lies strictly in the future
func (t *LoginThrottle) IsLocked(record *models.ThrottleRecord) bool {
	mustRecord(record)
	return lockRemaining(record, t.clock.Now()) > 0
}

// StartedLock reports whether the failure that produced record is the one that
// locked the account, given the unlocked record seen before the attempt. Only
// one failure per lock satisfies it, however many land concurrently.
func (t *LoginThrottle) StartedLock(prior, record *models.ThrottleRecord) bool {
	mustRecord(prior)
	mustRecord(record)
	if !t.IsLocked(record) {
		return false
	}
	if record.FailedAttempts == t.policy.LockThreshold {
		return true
	}
	// Relock after an expired lock: the first failure past the old count
	return prior.LockedUntil != nil && record.FailedAttempts == prior.FailedAttempts+1
}

// RemainingLockSeconds returns the lock time left, rounded up to whole seconds
// so a locked record never reports zero.
func (t *LoginThrottle) RemainingLockSeconds(record *models.ThrottleRecord) int {
	mustRecord(record)
	remaining := lockRemaining(record, t.clock.Now())
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}

// RateLimitDelay returns the server-side delay for the record's current failure count
func (t *LoginThrottle) RateLimitDelay(record *models.ThrottleRecord) time.Duration {
	mustRecord(record)
	n := record.FailedAttempts
	if n < 1 || n > len(t.policy.Delays) {
		return 0
	}
	return t.policy.Delays[n-1]
}

// IsCaptchaRequired reports whether the failure count has reached the CAPTCHA gate
func (t *LoginThrottle) IsCaptchaRequired(record *models.ThrottleRecord) bool {
	mustRecord(record)
	return record.FailedAttempts >= t.policy.CaptchaThreshold
}

// Assess classifies a record into its throttle state
func (t *LoginThrottle) Assess(record *models.ThrottleRecord) ThrottleDecision {
	mustRecord(record)
	d := ThrottleDecision{
		FailedAttempts:  record.FailedAttempts,
		Delay:           t.RateLimitDelay(record),
		CaptchaRequired: t.IsCaptchaRequired(record),
	}

	switch retry := t.RemainingLockSeconds(record); {
	case retry > 0:
		d.State = models.ThrottleStateLocked
		d.RetryAfterSeconds = retry
	case d.CaptchaRequired:
		d.State = models.ThrottleStateCaptchaGated
	case record.FailedAttempts > 0:
		d.State = models.ThrottleStateWarming
	default:
		d.State = models.ThrottleStateClean
	}

	return d
}

func (t *LoginThrottle) storeError(op string, err error) error {
	metrics.ThrottleStoreErrors.WithLabelValues(op).Inc()
	t.logger.Error("throttle store error", slog.String("op", op), slog.Any("error", err))
	if errors.Is(err, models.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}

func lockRemaining(record *models.ThrottleRecord, now time.Time) time.Duration {
	if record.LockedUntil == nil {
		return 0
	}
	return record.LockedUntil.Sub(now)
}

func mustRecord(record *models.ThrottleRecord) {
	if record == nil {
		panic("services: nil throttle record")
	}
}
