package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/staffgate/internal/models"
	"github.com/BradenHooton/staffgate/pkg/auth"
	pkglogger "github.com/BradenHooton/staffgate/pkg/logger"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// UserService handles user provisioning
type UserService struct {
	repo        UserRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UserService {
	return &UserService{
		repo:        repo,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// EnsureAdmin creates the bootstrap administrator unless an account with that
// email already exists. It reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password, name string) (bool, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return false, err
	}

	_, err = s.repo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Debug("admin account already present", slog.String("email", pkglogger.SanitizedEmail(email)))
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("look up admin account: %w", err)
	}

	if err := auth.ValidatePassword(password); err != nil {
		return false, fmt.Errorf("invalid admin password: %w", err)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	if name == "" {
		name = "Administrator"
	}

	now := time.Now()
	created, err := s.repo.Create(ctx, &models.User{
		Email:             email,
		PasswordHash:      hashedPassword,
		Name:              name,
		Role:              "admin",
		Status:            models.UserStatusActive,
		PasswordChangedAt: &now,
	})
	if errors.Is(err, models.ErrConflict) {
		// Another instance created it first
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create admin account: %w", err)
	}

	s.logger.Info("admin account created", slog.String("user_id", created.ID))
	s.auditLogger.LogAccountAction(pkglogger.EventAdminBootstrap, created.ID, created.Email, nil)
	return true, nil
}
