package models

import (
	"time"

	id "troupon/pkg/domain"
)

// User is a registered account. Recovery reads it and replaces PasswordHash.
type User struct {
	ID                id.UserID
	Email             string
	PasswordHash      string
	Active            bool
	PasswordChangedAt time.Time
	CreatedAt         time.Time
}

// RegisterRequest creates an account. Only used for seeding and tests.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Active   bool   `json:"active"`
}

// SignInRequest is the sign-in form.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResult is returned on successful authentication.
type SignInResult struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}
