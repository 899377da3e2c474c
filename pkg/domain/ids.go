// Package domain holds typed identifiers shared across troupon packages.
//
// IDs are distinct named types over uuid.UUID so a session ID can never be
// passed where a user ID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "troupon/pkg/domain-errors"
)

// UserID identifies an account.
type UserID uuid.UUID

// SessionID identifies a browser session (the troupon_session cookie value).
type SessionID uuid.UUID

// NewUserID returns a random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewSessionID returns a random browser session ID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// ParseUserID parses a user ID at a trust boundary. Nil UUIDs are rejected.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseSessionID parses a browser session ID. Nil UUIDs are rejected.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return u, nil
}

func (u UserID) String() string { return uuid.UUID(u).String() }

// IsNil reports whether the ID is the zero UUID.
func (u UserID) IsNil() bool { return uuid.UUID(u) == uuid.Nil }

func (s SessionID) String() string { return uuid.UUID(s).String() }

// IsNil reports whether the ID is the zero UUID.
func (s SessionID) IsNil() bool { return uuid.UUID(s) == uuid.Nil }

func (u UserID) MarshalText() ([]byte, error) { return uuid.UUID(u).MarshalText() }

func (u *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func (s SessionID) MarshalText() ([]byte, error) { return uuid.UUID(s).MarshalText() }

func (s *SessionID) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionID(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
