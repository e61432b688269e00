package models

import "time"

// Security event types emitted by the login flow.
const (
	EventLoginSucceeded  = "login_succeeded"
	EventLoginFailed     = "login_failed"
	EventChallengeIssued = "challenge_issued"
	EventChallengeResent = "challenge_resent"
	EventCodeRejected    = "code_rejected"
	EventLoginCanceled   = "login_canceled"
)

// SecurityEvent records one auth-relevant occurrence for the audit trail.
// EventBucket and EventDate are derived partitioning columns.
type SecurityEvent struct {
	EventBucket int       `db:"event_bucket"`
	UserID      string    `db:"user_id"`
	EventDate   string    `db:"event_date"`
	EventTime   time.Time `db:"event_time"`
	EventType   string    `db:"event_type"`
	IPAddress   string    `db:"ip_address"`
	Details     string    `db:"details"`
}
