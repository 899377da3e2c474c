// Package password holds the password policy and hashing used by account
// registration and password recovery.
package password

import (
	"fmt"
	"unicode"

	dErrors "troupon/pkg/domain-errors"
)

const (
	DefaultMinLength = 8
	// MaxBytes is bcrypt's input limit; longer passwords would be silently truncated.
	MaxBytes = 72
	// DefaultCharacterClasses counts upper, lower, digit and symbol.
	DefaultCharacterClasses = 3
)

// Violation is a single policy failure.
type Violation struct {
	Code    string
	Message string
}

func (v *Violation) Error() string {
	if v == nil {
		return ""
	}
	return v.Message
}

// Rule validates a password against one policy constraint.
type Rule interface {
	Validate(password string) *Violation
}

// RuleFunc adapts a function to a Rule.
type RuleFunc func(password string) *Violation

func (f RuleFunc) Validate(password string) *Violation {
	return f(password)
}

// Policy applies rules in order and reports the first violation.
type Policy struct {
	rules []Rule
}

func NewPolicy(rules ...Rule) *Policy {
	copied := make([]Rule, len(rules))
	copy(copied, rules)
	return &Policy{rules: copied}
}

// DefaultPolicy is the policy for account passwords.
func DefaultPolicy() *Policy {
	return NewPolicy(
		RequiredRule(),
		MinLengthRule(DefaultMinLength),
		MaxBytesRule(MaxBytes),
		CharacterClassesRule(DefaultCharacterClasses),
	)
}

// Check returns a CodeValidation error keyed by field when the password fails the policy.
func (p *Policy) Check(field, password string) error {
	for _, rule := range p.rules {
		if v := rule.Validate(password); v != nil {
			return dErrors.Validation("password does not meet the policy", map[string]string{field: v.Message})
		}
	}
	return nil
}

func RequiredRule() Rule {
	return RuleFunc(func(password string) *Violation {
		if password == "" {
			return &Violation{Code: "required", Message: "This field is required."}
		}
		return nil
	})
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) Rule {
	return RuleFunc(func(password string) *Violation {
		if len([]rune(password)) < min {
			return &Violation{
				Code:    "min_length",
				Message: fmt.Sprintf("Password must be at least %d characters long.", min),
			}
		}
		return nil
	})
}

func MaxBytesRule(max int) Rule {
	return RuleFunc(func(password string) *Violation {
		if len(password) > max {
			return &Violation{
				Code:    "max_length",
				Message: fmt.Sprintf("Password must be at most %d bytes long.", max),
			}
		}
		return nil
	})
}

// CharacterClassesRule requires characters from at least min of upper, lower, digit, symbol.
func CharacterClassesRule(min int) Rule {
	return RuleFunc(func(password string) *Violation {
		var hasUpper, hasLower, hasDigit, hasSymbol bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				hasUpper = true
			case unicode.IsLower(r):
				hasLower = true
			case unicode.IsDigit(r):
				hasDigit = true
			case unicode.IsSymbol(r) || unicode.IsPunct(r):
				hasSymbol = true
			}
		}

		classes := 0
		for _, has := range []bool{hasUpper, hasLower, hasDigit, hasSymbol} {
			if has {
				classes++
			}
		}
		if classes >= min {
			return nil
		}
		return &Violation{
			Code:    "character_classes",
			Message: fmt.Sprintf("Password must include at least %d of: uppercase, lowercase, digit, symbol.", min),
		}
	})
}
