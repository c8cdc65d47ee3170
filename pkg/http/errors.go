package http

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
)

// Machine-readable error codes
const (
	CodeBadRequest                = "bad_request"
	CodeUnauthorized              = "unauthorized"
	CodeForbidden                 = "forbidden"
	CodeNotFound                  = "not_found"
	CodeRateLimitExceeded         = "rate_limit_exceeded"
	CodeAccountLocked             = "account_locked"
	CodeCaptchaRequired           = "captcha_required"
	CodeCaptchaVerificationFailed = "captcha_verification_failed"
	CodeCaptchaUnavailable        = "captcha_unavailable"
	CodeServiceUnavailable        = "service_unavailable"
	CodeInternalError             = "internal_error"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Details           string `json:"details,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeErrorResponse(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	writeErrorResponse(w, statusCode, ErrorResponse{Error: errorCode, Message: message, Details: details})
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimitExceeded, message)
}

// WriteAccountLocked writes a 429 with a Retry-After header and the remaining lock seconds
func WriteAccountLocked(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	writeErrorResponse(w, http.StatusTooManyRequests, ErrorResponse{
		Error:             CodeAccountLocked,
		Message:           "Account temporarily locked. Try again in " + strconv.Itoa(retryAfterSeconds) + " seconds.",
		RetryAfterSeconds: retryAfterSeconds,
	})
}

func WriteCaptchaRequired(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, CodeCaptchaRequired, "CAPTCHA verification is required")
}

func WriteCaptchaFailed(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, CodeCaptchaVerificationFailed, "CAPTCHA verification failed")
}

func WriteCaptchaUnavailable(w http.ResponseWriter) {
	WriteError(w, http.StatusServiceUnavailable, CodeCaptchaUnavailable, "CAPTCHA verification is temporarily unavailable")
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
