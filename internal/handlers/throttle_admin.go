package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/BradenHooton/staffgate/internal/auth"
	"github.com/BradenHooton/staffgate/internal/models"
	"github.com/BradenHooton/staffgate/internal/services"
	pkghttp "github.com/BradenHooton/staffgate/pkg/http"
	pkglogger "github.com/BradenHooton/staffgate/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// ThrottleAdminService is the slice of the login throttle exposed to administrators
type ThrottleAdminService interface {
	Inspect(ctx context.Context, email string) (*models.ThrottleRecord, services.ThrottleDecision, error)
	ResetAttempts(ctx context.Context, email string) error
}

// ThrottleAdminHandler serves /admin/login-throttles
type ThrottleAdminHandler struct {
	throttle    ThrottleAdminService
	auditLogger *pkglogger.AuditLogger
}

// NewThrottleAdminHandler creates a new ThrottleAdminHandler
func NewThrottleAdminHandler(throttle ThrottleAdminService, auditLogger *pkglogger.AuditLogger) *ThrottleAdminHandler {
	return &ThrottleAdminHandler{throttle: throttle, auditLogger: auditLogger}
}

// ThrottleStatusResponse describes the throttle state of one email
type ThrottleStatusResponse struct {
	Email             string               `json:"email"`
	State             models.ThrottleState `json:"state"`
	FailedAttempts    int                  `json:"failed_attempts"`
	CaptchaRequired   bool                 `json:"captcha_required"`
	RetryAfterSeconds int                  `json:"retry_after_seconds"`
	LockedUntil       *time.Time           `json:"locked_until,omitempty"`
	LastFailedAt      *time.Time           `json:"last_failed_at,omitempty"`
	LastIPAddress     string               `json:"last_ip,omitempty"`
}

// GetStatus handles GET /admin/login-throttles/{email}
func (h *ThrottleAdminHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	record, decision, err := h.throttle.Inspect(r.Context(), email)
	if err != nil {
		writeThrottleAdminError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ThrottleStatusResponse{
		Email:             record.Email,
		State:             decision.State,
		FailedAttempts:    decision.FailedAttempts,
		CaptchaRequired:   decision.CaptchaRequired,
		RetryAfterSeconds: decision.RetryAfterSeconds,
		LockedUntil:       record.LockedUntil,
		LastFailedAt:      record.LastFailedAt,
		LastIPAddress:     record.IPAddress,
	})
}

// Reset handles DELETE /admin/login-throttles/{email}: a manual unlock
func (h *ThrottleAdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	if err := h.throttle.ResetAttempts(r.Context(), email); err != nil {
		writeThrottleAdminError(w, err)
		return
	}

	actorID := ""
	if claims := auth.GetUserFromContext(r); claims != nil {
		actorID = claims.UserID
	}
	h.auditLogger.LogAccountAction(pkglogger.EventThrottleReset, actorID, email, nil)

	w.WriteHeader(http.StatusNoContent)
}

func emailParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err == nil {
		err = ValidateEmail(email)
	}
	if err != nil {
		pkghttp.WriteBadRequest(w, "A valid email address is required")
		return "", false
	}
	return email, true
}

func writeThrottleAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidEmail):
		pkghttp.WriteBadRequest(w, "A valid email address is required")
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Throttle store unavailable")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
