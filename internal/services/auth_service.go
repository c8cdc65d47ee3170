package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/staffgate/internal/auth"
	"github.com/BradenHooton/staffgate/internal/metrics"
	"github.com/BradenHooton/staffgate/internal/models"
	pkgauth "github.com/BradenHooton/staffgate/pkg/auth"
	pkglogger "github.com/BradenHooton/staffgate/pkg/logger"
)

// notifyTimeout bounds the lockout email so it cannot stall the response
const notifyTimeout = 5 * time.Second

// TokenIssuer issues and validates JWTs
type TokenIssuer interface {
	GenerateAccessToken(user *models.User) (string, error)
	GenerateRefreshToken(user *models.User) (string, error)
	ValidateToken(ctx context.Context, tokenString string) (*models.TokenClaims, error)
}

// AuthService verifies credentials behind the login throttle
type AuthService struct {
	repo        UserRepository
	throttle    *LoginThrottle
	captcha     CaptchaVerifier
	delayer     auth.Delayer
	notifier    LockoutNotifier
	tm          TokenIssuer
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo UserRepository,
	throttle *LoginThrottle,
	captcha CaptchaVerifier,
	delayer auth.Delayer,
	notifier LockoutNotifier,
	tm TokenIssuer,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		throttle:    throttle,
		captcha:     captcha,
		delayer:     delayer,
		notifier:    notifier,
		tm:          tm,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// LoginInput carries one login attempt
type LoginInput struct {
	Email        string
	Password     string
	CaptchaToken string
	IPAddress    string
	UserAgent    string
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

// Login runs one attempt through the throttle: reject while locked, demand a
// CAPTCHA once gated, hold back warming attempts, then check the password and
// report the outcome back to the throttle.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResponse, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("invalid_email").Inc()
		return nil, err
	}

	record, err := s.throttle.FindOrCreate(ctx, email)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("store_unavailable").Inc()
		return nil, err
	}

	decision := s.throttle.Assess(record)

	if decision.State == models.ThrottleStateLocked {
		metrics.LoginAttempts.WithLabelValues("locked").Inc()
		s.audit(in, pkglogger.EventLoginFailed, "", "account_locked")
		return nil, &models.LockedError{RetryAfterSeconds: decision.RetryAfterSeconds}
	}

	if decision.CaptchaRequired {
		if err := s.checkCaptcha(ctx, in); err != nil {
			return nil, err
		}
	}

	if err := s.delayer.Wait(ctx, decision.Delay); err != nil {
		return nil, err
	}

	user, err := s.verifyCredentials(ctx, email, in.Password)
	if err != nil {
		if !errors.Is(err, models.ErrUnauthorized) {
			metrics.LoginAttempts.WithLabelValues("error").Inc()
			return nil, err
		}
		return nil, s.handleFailure(ctx, email, record, in)
	}

	if err := s.throttle.ResetAttempts(ctx, email); err != nil {
		metrics.LoginAttempts.WithLabelValues("store_unavailable").Inc()
		return nil, err
	}

	resp, err := s.issueTokens(user)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.audit(in, pkglogger.EventLoginSuccess, user.ID, "")

	return resp, nil
}

func (s *AuthService) checkCaptcha(ctx context.Context, in LoginInput) error {
	token := strings.TrimSpace(in.CaptchaToken)
	if token == "" {
		metrics.LoginAttempts.WithLabelValues("captcha_required").Inc()
		return models.ErrCaptchaRequired
	}

	err := s.captcha.Verify(ctx, token, in.IPAddress)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrCaptchaUnavailable):
		metrics.LoginAttempts.WithLabelValues("captcha_unavailable").Inc()
		s.audit(in, pkglogger.EventCaptchaFailed, "", "captcha_unavailable")
	default:
		metrics.LoginAttempts.WithLabelValues("captcha_failed").Inc()
		s.audit(in, pkglogger.EventCaptchaFailed, "", "captcha_rejected")
	}
	return err
}

// verifyCredentials returns ErrUnauthorized for an unknown email, a wrong
// password, or an account that is not active. Unknown emails still pay for a
// bcrypt comparison.
func (s *AuthService) verifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkgauth.CompareDummyPassword(password)
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, models.ErrUnauthorized
	}

	if user.Status != models.UserStatusActive {
		s.logger.Info("login blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		return nil, models.ErrUnauthorized
	}

	return user, nil
}

// handleFailure records the failure and, when it locked the account, notifies the owner.
// prior is the record assessed before the attempt.
func (s *AuthService) handleFailure(ctx context.Context, email string, prior *models.ThrottleRecord, in LoginInput) error {
	record, err := s.throttle.RecordFailure(ctx, email, in.IPAddress)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("store_unavailable").Inc()
		return err
	}

	metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
	s.audit(in, pkglogger.EventLoginFailed, "", "invalid_credentials")

	if s.throttle.StartedLock(prior, record) {
		s.auditLogger.LogAccountAction(pkglogger.EventAccountLocked, "", email, map[string]string{
			"failed_attempts":     strconv.Itoa(record.FailedAttempts),
			"retry_after_seconds": strconv.Itoa(s.throttle.RemainingLockSeconds(record)),
		})
		s.notifyLocked(ctx, email, *record.LockedUntil)
	}

	return models.ErrUnauthorized
}

func (s *AuthService) notifyLocked(ctx context.Context, email string, until time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.notifier.NotifyLocked(ctx, email, until); err != nil {
		s.logger.Warn("lockout notification failed",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
	}
}

// RefreshToken generates a new token pair from a refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.ValidateToken(ctx, refreshTokenString)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if claims.Type != models.TokenTypeRefresh {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found for token refresh", slog.String("user_id", claims.UserID))
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.Status != models.UserStatusActive {
		s.logger.Info("token refresh blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		return nil, models.ErrUnauthorized
	}

	// Invalidate tokens issued before the last password change
	if user.PasswordChangedAt != nil && claims.IssuedAt != nil {
		if claims.IssuedAt.Time.Before(user.PasswordChangedAt.Truncate(time.Second)) {
			s.logger.Info("token refresh blocked: issued before password change",
				slog.String("user_id", user.ID))
			return nil, models.ErrUnauthorized
		}
	}

	resp, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))
	return resp, nil
}

func (s *AuthService) issueTokens(user *models.User) (*AuthResponse, error) {
	accessToken, err := s.tm.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(user),
	}, nil
}

func (s *AuthService) audit(in LoginInput, eventType, userID, reason string) {
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     eventType,
		UserID:        userID,
		Email:         in.Email,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		Success:       reason == "",
		FailureReason: reason,
	})
}

// userModelToResponse converts a user model to response DTO
func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}
