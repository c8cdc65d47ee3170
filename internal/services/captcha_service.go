package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/staffgate/internal/config"
	"github.com/BradenHooton/staffgate/internal/metrics"
	"github.com/BradenHooton/staffgate/internal/models"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

const captchaBreakerName = "captcha-provider"

// CaptchaVerifier checks a CAPTCHA response token with the provider
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// siteverifyResponse is the reply shape shared by reCAPTCHA, hCaptcha and Turnstile
type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// errCaptchaRejected marks a definitive "no" from the provider. It must not
// count against the breaker, which tracks provider health only.
var errCaptchaRejected = errors.New("captcha rejected")

// HTTPCaptchaVerifier posts tokens to a siteverify endpoint behind a circuit breaker
type HTTPCaptchaVerifier struct {
	verifyURL string
	secret    string
	timeout   time.Duration
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*siteverifyResponse]
	logger    *slog.Logger
}

// NewHTTPCaptchaVerifier creates a verifier for the configured provider.
// The breaker opens after 5 consecutive provider failures and probes again after 30s.
func NewHTTPCaptchaVerifier(cfg *config.CaptchaConfig, logger *slog.Logger) *HTTPCaptchaVerifier {
	metrics.CircuitBreakerState.WithLabelValues(captchaBreakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*siteverifyResponse](gobreaker.Settings{
		Name:        captchaBreakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCaptchaRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	return &HTTPCaptchaVerifier{
		verifyURL: cfg.VerifyURL,
		secret:    cfg.Secret,
		timeout:   cfg.Timeout,
		client:    &http.Client{},
		breaker:   breaker,
		logger:    logger,
	}
}

// Verify returns nil when the provider accepts the token, ErrCaptchaVerificationFailed
// when it rejects it, and an error wrapping both ErrCaptchaVerificationFailed and
// ErrCaptchaUnavailable when the provider cannot be reached in time.
func (v *HTTPCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	if token == "" {
		return models.ErrCaptchaRequired
	}

	start := time.Now()
	_, err := v.breaker.Execute(func() (*siteverifyResponse, error) {
		return v.siteverify(ctx, token, remoteIP)
	})
	metrics.CaptchaDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.CaptchaVerifications.WithLabelValues("success").Inc()
		return nil
	case errors.Is(err, errCaptchaRejected):
		metrics.CaptchaVerifications.WithLabelValues("rejected").Inc()
		return models.ErrCaptchaVerificationFailed
	default:
		metrics.CaptchaVerifications.WithLabelValues("unavailable").Inc()
		v.logger.Error("captcha provider unavailable", slog.Any("error", err))
		return fmt.Errorf("%w: %w: %v", models.ErrCaptchaVerificationFailed, models.ErrCaptchaUnavailable, err)
	}
}

func (v *HTTPCaptchaVerifier) siteverify(ctx context.Context, token, remoteIP string) (*siteverifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("siteverify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode siteverify response: %w", err)
	}

	if !out.Success {
		v.logger.Debug("captcha token rejected", slog.Any("error_codes", out.ErrorCodes))
		return &out, errCaptchaRejected
	}
	return &out, nil
}

// DisabledCaptchaVerifier is installed when no provider is configured. Accounts
// that reach the CAPTCHA gate cannot log in until a provider is set up.
type DisabledCaptchaVerifier struct{}

func (DisabledCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	if token == "" {
		return models.ErrCaptchaRequired
	}
	return fmt.Errorf("%w: %w: no provider configured", models.ErrCaptchaVerificationFailed, models.ErrCaptchaUnavailable)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
