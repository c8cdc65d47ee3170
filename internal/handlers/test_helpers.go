package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/staffgate/internal/auth"
	"github.com/BradenHooton/staffgate/internal/models"
	"github.com/BradenHooton/staffgate/internal/services"
	pkghttp "github.com/BradenHooton/staffgate/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAdminContext adds admin user claims to request context
func WithAdminContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   models.TokenTypeAccess,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithURLParam adds a chi URL parameter to the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc        func(ctx context.Context, in services.LoginInput) (*services.AuthResponse, error)
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, in)
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
	if m.RefreshTokenFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshTokenFunc(ctx, refreshToken)
}

// MockThrottleAdmin implements ThrottleAdminService for testing
type MockThrottleAdmin struct {
	InspectFunc func(ctx context.Context, email string) (*models.ThrottleRecord, services.ThrottleDecision, error)
	ResetFunc   func(ctx context.Context, email string) error
	ResetEmails []string
}

func (m *MockThrottleAdmin) Inspect(ctx context.Context, email string) (*models.ThrottleRecord, services.ThrottleDecision, error) {
	if m.InspectFunc == nil {
		return &models.ThrottleRecord{Email: email}, services.ThrottleDecision{State: models.ThrottleStateClean}, nil
	}
	return m.InspectFunc(ctx, email)
}

func (m *MockThrottleAdmin) ResetAttempts(ctx context.Context, email string) error {
	m.ResetEmails = append(m.ResetEmails, email)
	if m.ResetFunc == nil {
		return nil
	}
	return m.ResetFunc(ctx, email)
}

// NewLockedRecord builds a throttle record locked until the given time
func NewLockedRecord(email string, failures int, until time.Time) *models.ThrottleRecord {
	last := until.Add(-10 * time.Minute)
	return &models.ThrottleRecord{
		Email:          email,
		IPAddress:      "203.0.113.7",
		FailedAttempts: failures,
		LockedUntil:    &until,
		LastFailedAt:   &last,
		CreatedAt:      last,
		UpdatedAt:      last,
	}
}
