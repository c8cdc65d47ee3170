package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/BradenHooton/staffgate/internal/models"
	"github.com/BradenHooton/staffgate/internal/services"
	pkghttp "github.com/BradenHooton/staffgate/pkg/http"
	"github.com/goccy/go-json"
)

// maxBodyBytes caps auth request bodies
const maxBodyBytes = 16 << 10

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email        string `json:"email" validate:"required,max=254"`
	Password     string `json:"password" validate:"required,max=1024"`
	CaptchaToken string `json:"captcha_token" validate:"max=4096"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse "captcha_required or captcha_verification_failed"
// @Failure 429 {object} pkghttp.ErrorResponse "account_locked, with Retry-After"
// @Failure 503 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	authResp, err := h.service.Login(r.Context(), services.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		IPAddress:    pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:    r.Header.Get("User-Agent"),
	})
	if err != nil {
		writeLoginError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

// writeLoginError maps login failures onto responses. Unknown accounts, wrong
// passwords and inactive accounts all read "Authentication failed".
func writeLoginError(w http.ResponseWriter, err error) {
	var locked *models.LockedError

	switch {
	case errors.As(err, &locked):
		pkghttp.WriteAccountLocked(w, locked.RetryAfterSeconds)
	case errors.Is(err, models.ErrInvalidEmail):
		pkghttp.WriteBadRequest(w, "A valid email address is required")
	case errors.Is(err, models.ErrCaptchaRequired):
		pkghttp.WriteCaptchaRequired(w)
	case errors.Is(err, models.ErrCaptchaUnavailable):
		pkghttp.WriteCaptchaUnavailable(w)
	case errors.Is(err, models.ErrCaptchaVerificationFailed):
		pkghttp.WriteCaptchaFailed(w)
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		pkghttp.WriteServiceUnavailable(w, "Login is temporarily unavailable. Please try again shortly.")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// RefreshToken handles token refresh
// @Summary Refresh access token
// @Accept json
// @Param request body RefreshTokenRequest true "Refresh token request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	authResp, err := h.service.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired refresh token")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}
