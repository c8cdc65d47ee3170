package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/staffgate/internal/models"
	pkglogger "github.com/BradenHooton/staffgate/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	CreateFunc     func(ctx context.Context, user *models.User) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return user, nil
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	GenerateAccessTokenFunc  func(user *models.User) (string, error)
	GenerateRefreshTokenFunc func(user *models.User) (string, error)
	ValidateTokenFunc        func(ctx context.Context, tokenString string) (*models.TokenClaims, error)
}

func (m *MockTokenIssuer) GenerateAccessToken(user *models.User) (string, error) {
	if m.GenerateAccessTokenFunc != nil {
		return m.GenerateAccessTokenFunc(user)
	}
	return "access-" + user.ID, nil
}

func (m *MockTokenIssuer) GenerateRefreshToken(user *models.User) (string, error) {
	if m.GenerateRefreshTokenFunc != nil {
		return m.GenerateRefreshTokenFunc(user)
	}
	return "refresh-" + user.ID, nil
}

func (m *MockTokenIssuer) ValidateToken(ctx context.Context, tokenString string) (*models.TokenClaims, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, tokenString)
	}
	return nil, models.ErrUnauthorized
}

// MockCaptchaVerifier implements CaptchaVerifier for testing
type MockCaptchaVerifier struct {
	VerifyFunc func(ctx context.Context, token, remoteIP string) error
	Calls      int
	mu         sync.Mutex
}

func (m *MockCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, token, remoteIP)
	}
	return nil
}

// RecordingDelayer records requested delays instead of sleeping
type RecordingDelayer struct {
	mu     sync.Mutex
	Delays []time.Duration
}

func (d *RecordingDelayer) Wait(ctx context.Context, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Delays = append(d.Delays, delay)
	return ctx.Err()
}

// MockLockoutNotifier records lockout notices
type MockLockoutNotifier struct {
	mu     sync.Mutex
	Emails []string
	Err    error
}

func (m *MockLockoutNotifier) NotifyLocked(ctx context.Context, email string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Emails = append(m.Emails, email)
	return m.Err
}

// FakeClock is a settable Clock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MemoryThrottleStore is a mutex-guarded in-memory ThrottleStore. It honours
// the same inactivity rules as the real stores.
type MemoryThrottleStore struct {
	mu      sync.Mutex
	clock   Clock
	ttl     time.Duration
	records map[string]models.ThrottleRecord

	// Err, when set, is returned by every operation
	Err error
}

func NewMemoryThrottleStore(clock Clock, ttl time.Duration) *MemoryThrottleStore {
	return &MemoryThrottleStore{
		clock:   clock,
		ttl:     ttl,
		records: make(map[string]models.ThrottleRecord),
	}
}

func (s *MemoryThrottleStore) live(email string, now time.Time) (models.ThrottleRecord, bool) {
	rec, ok := s.records[email]
	if !ok || !rec.UpdatedAt.After(now.Add(-s.ttl)) {
		return models.ThrottleRecord{}, false
	}
	return rec, true
}

func (s *MemoryThrottleStore) FindOne(ctx context.Context, email string) (*models.ThrottleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	rec, ok := s.live(email, s.clock.Now())
	if !ok {
		return nil, models.ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryThrottleStore) Create(ctx context.Context, record *models.ThrottleRecord) (*models.ThrottleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if rec, ok := s.live(record.Email, record.UpdatedAt); ok {
		return &rec, nil
	}
	s.records[record.Email] = *record
	out := *record
	return &out, nil
}

func (s *MemoryThrottleStore) IncrementFailure(ctx context.Context, update models.FailureUpdate) (*models.ThrottleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	rec, ok := s.live(update.Email, update.At)
	if !ok {
		rec = models.ThrottleRecord{Email: update.Email, CreatedAt: update.At}
	}

	at := update.At
	rec.FailedAttempts++
	rec.IPAddress = update.IPAddress
	rec.LastFailedAt = &at
	rec.UpdatedAt = at
	if rec.FailedAttempts >= update.LockAt {
		until := at.Add(update.LockFor)
		if rec.LockedUntil == nil || until.After(*rec.LockedUntil) {
			rec.LockedUntil = &until
		}
	}

	s.records[update.Email] = rec
	return &rec, nil
}

func (s *MemoryThrottleStore) DeleteOne(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.records, email)
	return nil
}

func (s *MemoryThrottleStore) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for email, rec := range s.records {
		if !rec.UpdatedAt.After(cutoff) {
			delete(s.records, email)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored records, live or not
func (s *MemoryThrottleStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// NewTestLogger returns a logger that discards output
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestAuditLogger returns an audit logger that discards output
func NewTestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(NewTestLogger())
}

// NewTestUser builds an active user
func NewTestUser(id, email, name string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Email:     email,
		Name:      name,
		TokenKey:  "token-key-" + id,
		Status:    models.UserStatusActive,
		Role:      "user",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestUserWithPassword creates a user with hashed password
func NewTestUserWithPassword(id, email, name, passwordHash string) *models.User {
	user := NewTestUser(id, email, name)
	user.PasswordHash = passwordHash
	return user
}

// NewTestUserWithStatus creates a user with specified status
func NewTestUserWithStatus(id, email, name, status string) *models.User {
	user := NewTestUser(id, email, name)
	user.Status = status
	return user
}

// NewTokenClaims builds claims issued now
func NewTokenClaims(userID, email, tokenType string) *models.TokenClaims {
	claims := &models.TokenClaims{
		Type:   tokenType,
		UserID: userID,
		Email:  email,
	}
	claims.IssuedAt = jwt.NewNumericDate(time.Now())
	return claims
}
