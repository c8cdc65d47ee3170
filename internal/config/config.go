package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Throttle store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverBadger   = "badger"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Throttle ThrottleConfig
	Captcha  CaptchaConfig
	Email    EmailConfig
	Badger   BadgerConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	ConnectTimeout time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret              string
	AccessTokenExpiry      time.Duration
	RefreshTokenExpiry     time.Duration
	LoginRequestsPerMinute int
}

// ThrottleConfig controls the per-email login throttle
type ThrottleConfig struct {
	StoreDriver      string
	CaptchaThreshold int
	LockThreshold    int
	LockDuration     time.Duration
	InactivityTTL    time.Duration
	FirstDelay       time.Duration
	SecondDelay      time.Duration
	DelayJitter      time.Duration
	SweepInterval    time.Duration
}

type CaptchaConfig struct {
	Enabled   bool
	VerifyURL string
	Secret    string
	Timeout   time.Duration
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
}

type BadgerConfig struct {
	Dir string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnvAsInt("DB_PORT", 5432),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", ""),
			Name:           getEnv("DB_NAME", "staffgate"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConns:       int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			ConnectTimeout: getEnvAsDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:              jwtSecret,
			AccessTokenExpiry:      getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:     getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			LoginRequestsPerMinute: getEnvAsInt("LOGIN_REQUESTS_PER_MINUTE", 20),
		},
		Throttle: ThrottleConfig{
			StoreDriver:      strings.ToLower(getEnv("THROTTLE_STORE", StoreDriverPostgres)),
			CaptchaThreshold: getEnvAsInt("THROTTLE_CAPTCHA_THRESHOLD", 3),
			LockThreshold:    getEnvAsInt("THROTTLE_LOCK_THRESHOLD", 9),
			LockDuration:     getEnvAsDuration("THROTTLE_LOCK_DURATION", 10*time.Minute),
			InactivityTTL:    getEnvAsDuration("THROTTLE_INACTIVITY_TTL", 1*time.Hour),
			FirstDelay:       getEnvAsDuration("THROTTLE_FIRST_DELAY", 2*time.Second),
			SecondDelay:      getEnvAsDuration("THROTTLE_SECOND_DELAY", 4*time.Second),
			DelayJitter:      getEnvAsDuration("THROTTLE_DELAY_JITTER", 0),
			SweepInterval:    getEnvAsDuration("THROTTLE_SWEEP_INTERVAL", 5*time.Minute),
		},
		Captcha: CaptchaConfig{
			Enabled:   getEnvAsBool("CAPTCHA_ENABLED", false),
			VerifyURL: getEnv("CAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),
			Secret:    getEnv("CAPTCHA_SECRET", ""),
			Timeout:   getEnvAsDuration("CAPTCHA_TIMEOUT", 3*time.Second),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@staffgate.local"),
		},
		Badger: BadgerConfig{
			Dir: getEnv("BADGER_DIR", "./data/throttle"),
		},
	}

	switch cfg.Throttle.StoreDriver {
	case StoreDriverPostgres:
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required")
		}
	case StoreDriverBadger:
	default:
		return nil, fmt.Errorf("THROTTLE_STORE must be %q or %q (got %q)",
			StoreDriverPostgres, StoreDriverBadger, cfg.Throttle.StoreDriver)
	}

	if cfg.Captcha.Enabled && cfg.Captcha.Secret == "" {
		return nil, fmt.Errorf("CAPTCHA_SECRET is required when CAPTCHA_ENABLED=true")
	}

	if cfg.Throttle.CaptchaThreshold < 1 || cfg.Throttle.LockThreshold < 1 {
		return nil, fmt.Errorf("throttle thresholds must be positive")
	}

	if err := cfg.validateDurations(); err != nil {
		return nil, err
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateDurations rejects timings that would stall or disable a component:
// a zero sweep interval panics the ticker, a zero TTL expires every record on write.
func (c *Config) validateDurations() error {
	positive := []struct {
		name string
		val  time.Duration
	}{
		{"THROTTLE_LOCK_DURATION", c.Throttle.LockDuration},
		{"THROTTLE_INACTIVITY_TTL", c.Throttle.InactivityTTL},
		{"THROTTLE_SWEEP_INTERVAL", c.Throttle.SweepInterval},
		{"CAPTCHA_TIMEOUT", c.Captcha.Timeout},
		{"ACCESS_TOKEN_EXPIRY", c.Auth.AccessTokenExpiry},
		{"REFRESH_TOKEN_EXPIRY", c.Auth.RefreshTokenExpiry},
		{"DB_CONNECT_TIMEOUT", c.Database.ConnectTimeout},
		{"SERVER_READ_TIMEOUT", c.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout},
	}
	for _, d := range positive {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive (got %s)", d.name, d.val)
		}
	}

	nonNegative := []struct {
		name string
		val  time.Duration
	}{
		{"THROTTLE_FIRST_DELAY", c.Throttle.FirstDelay},
		{"THROTTLE_SECOND_DELAY", c.Throttle.SecondDelay},
		{"THROTTLE_DELAY_JITTER", c.Throttle.DelayJitter},
	}
	for _, d := range nonNegative {
		if d.val < 0 {
			return fmt.Errorf("%s must not be negative (got %s)", d.name, d.val)
		}
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		// No origins unless explicitly configured
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
