package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeForbidden, "Account not activated!"))
		assert.True(t, HasCode(err, CodeForbidden))
		assert.False(t, HasCode(err, CodeNotFound))
		assert.Equal(t, CodeForbidden, CodeOf(err))
		assert.Equal(t, "Account not activated!", MessageOf(err))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Empty(t, MessageOf(err))
		assert.Nil(t, FieldsOf(err))
	})

	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeInternal, "failed to load account")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "failed to load account: connection refused", err.Error())
	})

	t.Run("validation copies fields", func(t *testing.T) {
		fields := map[string]string{"email": "Enter a valid email address."}
		err := Validation("invalid form", fields)
		fields["email"] = "changed"
		assert.Equal(t, "Enter a valid email address.", FieldsOf(err)["email"])
		assert.True(t, HasCode(err, CodeValidation))
	})
}
