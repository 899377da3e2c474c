package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	dErrors "troupon/pkg/domain-errors"
)

func TestBeginRecoveryRequest(t *testing.T) {
	t.Run("normalizes before validation", func(t *testing.T) {
		req := &BeginRecoveryRequest{Email: "  User@Example.COM ", ResetURLBase: "https://troupon.test/ "}
		req.Normalize()
		assert.Equal(t, "user@example.com", req.Email)
		assert.Equal(t, "https://troupon.test", req.ResetURLBase)
		assert.NoError(t, req.Validate())
	})

	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"missing", "", "This field is required."},
		{"malformed", "user-at-example.com", "Enter a valid email address."},
		{"no domain", "user@", "Enter a valid email address."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &BeginRecoveryRequest{Email: tt.email}
			req.Normalize()
			err := req.Validate()
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.want, dErrors.FieldsOf(err)["email"])
		})
	}
}

func TestElevationGrantIsExpired(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	g := &ElevationGrant{GrantedAt: now, ExpiresAt: now.Add(15 * time.Minute)}

	assert.False(t, g.IsExpired(now))
	assert.False(t, g.IsExpired(now.Add(14*time.Minute)))
	assert.True(t, g.IsExpired(now.Add(15*time.Minute)))
}
