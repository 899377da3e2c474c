// Package audit records security-relevant account events.
package audit

import (
	"context"
	"time"

	id "troupon/pkg/domain"
)

// EventCategory classifies events for retention and routing.
type EventCategory string

const (
	// CategorySecurity covers events that matter for account takeover forensics.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventUserCreated         AuditEvent = "user_created"
	EventAuthFailed          AuditEvent = "auth_failed"
	EventRecoveryRequested   AuditEvent = "recovery_requested"
	EventRecoveryUnknown     AuditEvent = "recovery_unknown_account"
	EventRecoveryLinkInvalid AuditEvent = "recovery_link_invalid"
	EventSessionElevated     AuditEvent = "session_elevated"
	EventPasswordReset       AuditEvent = "password_reset"
	EventPasswordResetDenied AuditEvent = "password_reset_denied"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAuthFailed:          CategorySecurity,
	EventRecoveryUnknown:     CategorySecurity,
	EventRecoveryLinkInvalid: CategorySecurity,
	EventSessionElevated:     CategorySecurity,
	EventPasswordReset:       CategorySecurity,
	EventPasswordResetDenied: CategorySecurity,

	EventUserCreated:       CategoryOperations,
	EventRecoveryRequested: CategoryOperations,
}

// Category returns the category for e. Unknown events are operational.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// UserID is nil for events about unknown accounts.
	UserID    id.UserID
	Action    string
	Reason    string
	Email     string
	IP        string
	RequestID string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
