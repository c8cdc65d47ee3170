package models

import "time"

// ThrottleRecord tracks failed login attempts for one normalized email address
type ThrottleRecord struct {
	Email          string     `json:"email" db:"email"`
	IPAddress      string     `json:"ip,omitempty" db:"ip"`
	FailedAttempts int        `json:"failed_attempts" db:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty" db:"locked_until"`
	LastFailedAt   *time.Time `json:"last_failed_at,omitempty" db:"last_failed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// FailureUpdate describes one atomic failure increment applied by a throttle store
type FailureUpdate struct {
	Email       string
	IPAddress   string
	At          time.Time
	LockAt      int           // post-increment count at which the record locks
	LockFor     time.Duration // lock length measured from At
	InactiveTTL time.Duration // records idle longer than this count as purged
}

// ThrottleState names the position of a record in the login throttle state machine
type ThrottleState string

const (
	ThrottleStateClean        ThrottleState = "clean"
	ThrottleStateWarming      ThrottleState = "warming"
	ThrottleStateCaptchaGated ThrottleState = "captcha_gated"
	ThrottleStateLocked       ThrottleState = "locked"
)
