package domain

import "time"

// AuditKind names a security-relevant action.
type AuditKind string

const (
	AuditLoginSucceeded AuditKind = "login_succeeded"
	AuditLoginFailed    AuditKind = "login_failed"
	AuditLoginThrottled AuditKind = "login_throttled"
	AuditUserRegistered AuditKind = "user_registered"
	AuditUserUpdated    AuditKind = "user_updated"
	AuditUserDeleted    AuditKind = "user_deleted"
)

// AuditEvent records who did what to whom. ActorID is zero for
// unauthenticated actions such as a failed login.
type AuditEvent struct {
	ID         string            `json:"id"`
	Kind       AuditKind         `json:"kind"`
	ActorID    int64             `json:"actor_id,omitempty"`
	TargetID   int64             `json:"target_id,omitempty"`
	Username   string            `json:"username,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Details    map[string]string `json:"details,omitempty"`
}
