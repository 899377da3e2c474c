package models

import (
	"strings"
	"time"

	"troupon/internal/platform/mailer"
	id "troupon/pkg/domain"
	dErrors "troupon/pkg/domain-errors"
	"troupon/pkg/email"
)

// User-facing messages. These are rendered verbatim by the site.
const (
	MsgAccountNotFound     = "The email you entered does not belong to a registered user!"
	MsgAccountNotActivated = "Account not activated!"
	MsgNotAllowed          = "You are not allowed to perform this action!"
	MsgPasswordChanged     = "Your password was changed successfully!"
	MsgRecoveryLinkInvalid = "This password recovery link is invalid or has expired."
)

// SignInPath is where the user lands after a successful reset.
const SignInPath = "/signin"

// BeginRecoveryRequest is the forgot-password form submission.
type BeginRecoveryRequest struct {
	Email string `json:"email"`
	// ResetURLBase is the absolute origin links are built against, e.g. "https://troupon.com".
	ResetURLBase string `json:"-"`
}

func (r *BeginRecoveryRequest) Normalize() {
	r.Email = email.Normalize(r.Email)
	r.ResetURLBase = strings.TrimRight(strings.TrimSpace(r.ResetURLBase), "/")
}

// Validate checks email format. Field messages are keyed by form field name.
func (r *BeginRecoveryRequest) Validate() error {
	switch {
	case r.Email == "":
		return dErrors.Validation("invalid recovery request", map[string]string{"email": "This field is required."})
	case !email.IsValid(r.Email):
		return dErrors.Validation("invalid recovery request", map[string]string{"email": "Enter a valid email address."})
	}
	return nil
}

// RecoveryOutcome reports a successful forgot-password submission. The mail
// may still have failed; Delivery carries the transport's verdict.
type RecoveryOutcome struct {
	Email    string
	Delivery mailer.DeliveryStatus
}

// ResetFormResult is returned when a recovery link is accepted and the
// session has been elevated.
type ResetFormResult struct {
	Email     string
	ExpiresAt time.Time
}

// CompleteResetRequest is the reset-password form submission.
type CompleteResetRequest struct {
	Password string `json:"password"`
	// ConfirmPassword is optional; when present it must match Password.
	ConfirmPassword string `json:"confirm_password"`
}

// ResetResult is the terminal success state of the recovery flow.
type ResetResult struct {
	UserID     id.UserID
	Notice     string
	RedirectTo string
}

// ElevationGrant authorizes one browser session to set a new password for one user.
type ElevationGrant struct {
	SessionID id.SessionID `json:"session_id"`
	UserID    id.UserID    `json:"user_id"`
	GrantedAt time.Time    `json:"granted_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// IsExpired reports whether the grant has lapsed at now.
func (g *ElevationGrant) IsExpired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}
