package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dErrors "troupon/pkg/domain-errors"
)

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name     string
		password string
		wantErr  bool
		contains string
	}{
		{"accepts the recovery example", "NewP@ss123", false, ""},
		{"accepts three classes without symbol", "Abcdefg1", false, ""},
		{"empty", "", true, "required"},
		{"too short", "Ab1!", true, "at least 8 characters"},
		{"single class", "lowercasepassword", true, "at least 3 of"},
		{"over bcrypt limit", "Aa1!" + strings.Repeat("x", 70), true, "at most 72 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check("password", tt.password)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, dErrors.FieldsOf(err)["password"], tt.contains)
		})
	}
}

func TestCustomPolicy(t *testing.T) {
	policy := NewPolicy(MinLengthRule(4))
	assert.NoError(t, policy.Check("password", "abcd"))
	assert.Error(t, policy.Check("password", "abc"))
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("NewP@ss123")
	require.NoError(t, err)
	assert.NotEqual(t, "NewP@ss123", hash)

	assert.NoError(t, h.Compare(hash, "NewP@ss123"))
	assert.ErrorIs(t, h.Compare(hash, "wrong"), ErrMismatch)
	assert.Error(t, h.Compare("not-a-hash", "NewP@ss123"))
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).cost)
	assert.Equal(t, bcrypt.MinCost, NewBcryptHasher(bcrypt.MinCost).cost)
}
