package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/staffgate/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) pkghttp.ErrorResponse {
	t.Helper()
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, 400, "test_error", "Test message")

	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decodeError(t, w)
	assert.Equal(t, "test_error", resp.Error)
	assert.Equal(t, "Test message", resp.Message)
	assert.Empty(t, resp.Details)
	assert.Zero(t, resp.RetryAfterSeconds)
}

func TestWriteErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteErrorWithDetails(w, 400, "test_error", "Test message", "Additional details")

	resp := decodeError(t, w)
	assert.Equal(t, "Additional details", resp.Details)
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantCode   string
	}{
		{"bad request", func(w http.ResponseWriter) { pkghttp.WriteBadRequest(w, "x") }, 400, pkghttp.CodeBadRequest},
		{"unauthorized", func(w http.ResponseWriter) { pkghttp.WriteUnauthorized(w, "x") }, 401, pkghttp.CodeUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { pkghttp.WriteForbidden(w, "x") }, 403, pkghttp.CodeForbidden},
		{"not found", func(w http.ResponseWriter) { pkghttp.WriteNotFound(w, "x") }, 404, pkghttp.CodeNotFound},
		{"too many requests", func(w http.ResponseWriter) { pkghttp.WriteTooManyRequests(w, "x") }, 429, pkghttp.CodeRateLimitExceeded},
		{"captcha required", pkghttp.WriteCaptchaRequired, 403, pkghttp.CodeCaptchaRequired},
		{"captcha failed", pkghttp.WriteCaptchaFailed, 403, pkghttp.CodeCaptchaVerificationFailed},
		{"captcha unavailable", pkghttp.WriteCaptchaUnavailable, 503, pkghttp.CodeCaptchaUnavailable},
		{"service unavailable", func(w http.ResponseWriter) { pkghttp.WriteServiceUnavailable(w, "x") }, 503, pkghttp.CodeServiceUnavailable},
		{"internal", func(w http.ResponseWriter) { pkghttp.WriteInternalError(w, "x") }, 500, pkghttp.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Error)
		})
	}
}

func TestWriteAccountLocked(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteAccountLocked(w, 542)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "542", w.Header().Get("Retry-After"))

	resp := decodeError(t, w)
	assert.Equal(t, pkghttp.CodeAccountLocked, resp.Error)
	assert.Equal(t, 542, resp.RetryAfterSeconds)
	assert.Contains(t, resp.Message, "542 seconds")
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
