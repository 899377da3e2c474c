package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"troupon/internal/account/models"
	"troupon/internal/account/store/user"
	id "troupon/pkg/domain"
	"troupon/pkg/platform/sentinel"
	"troupon/pkg/testutil"
)

const testSecret = "test-recovery-secret-0123456789abcdef"

type CodecSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	users *user.InMemoryUserStore
	codec *Codec
	alice *models.User
}

func TestCodecSuite(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}

func (s *CodecSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	s.users = user.New()
	s.alice = &models.User{ID: id.NewUserID(), Email: "user@example.com", PasswordHash: "$2a$04$alice", Active: true}
	s.Require().NoError(s.users.Save(s.ctx, s.alice))

	var err error
	s.codec, err = New(testSecret, s.users, WithClock(s.clock))
	s.Require().NoError(err)
}

func (s *CodecSuite) clock() time.Time { return s.now }

func (s *CodecSuite) issue(u *models.User) string {
	tok, err := s.codec.Issue(u)
	s.Require().NoError(err)
	return tok
}

func (s *CodecSuite) TestRoundTrip() {
	bob := &models.User{ID: id.NewUserID(), Email: "bob@example.com", PasswordHash: "$2a$04$bob", Active: false}
	s.Require().NoError(s.users.Save(s.ctx, bob))

	for _, u := range []*models.User{s.alice, bob} {
		tok := s.issue(u)
		s.NotContains(tok, "/")
		s.NotContains(tok, "+")

		resolved, err := s.codec.Resolve(s.ctx, tok)
		s.Require().NoError(err)
		s.Equal(u.ID, resolved.ID)
		s.Equal(u.Active, resolved.Active)
	}
}

func (s *CodecSuite) TestTokensAreUnique() {
	s.NotEqual(s.issue(s.alice), s.issue(s.alice))
}

func (s *CodecSuite) TestRejectsForeignInput() {
	valid := s.issue(s.alice)
	parts := strings.Split(valid, ".")
	s.Require().Len(parts, 3)

	flip := func(str string) string {
		b := []byte(str)
		if b[len(b)/2] == 'A' {
			b[len(b)/2] = 'B'
		} else {
			b[len(b)/2] = 'A'
		}
		return string(b)
	}

	cases := map[string]string{
		"empty":              "",
		"garbage":            "not-a-token",
		"tampered signature": parts[0] + "." + parts[1] + "." + flip(parts[2]),
		"tampered payload":   parts[0] + "." + flip(parts[1]) + "." + parts[2],
		"truncated":          parts[0] + "." + parts[1],
	}
	for name, tok := range cases {
		s.Run(name, func() {
			_, err := s.codec.Resolve(s.ctx, tok)
			s.ErrorIs(err, sentinel.ErrNotFound)
		})
	}
}

func (s *CodecSuite) TestRejectsForeignSecret() {
	other, err := New("another-secret-entirely-0123456789abcdef", s.users, WithClock(s.clock))
	s.Require().NoError(err)

	_, err = s.codec.Resolve(s.ctx, s.issueWith(other))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CodecSuite) issueWith(c *Codec) string {
	tok, err := c.Issue(s.alice)
	s.Require().NoError(err)
	return tok
}

func (s *CodecSuite) TestRejectsOtherAudienceAndAlgorithm() {
	sign := func(method jwt.SigningMethod, aud string) string {
		claims := Claims{
			PasswordFingerprint: s.codec.fingerprint(s.alice),
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   s.alice.ID.String(),
				Issuer:    Issuer,
				Audience:  jwt.ClaimStrings{aud},
				IssuedAt:  jwt.NewNumericDate(s.now),
				ExpiresAt: jwt.NewNumericDate(s.now.Add(time.Hour)),
			},
		}
		tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
		s.Require().NoError(err)
		return tok
	}

	s.Run("access token audience", func() {
		_, err := s.codec.Resolve(s.ctx, sign(jwt.SigningMethodHS256, "troupon-api"))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("HS512 with the same key", func() {
		_, err := s.codec.Resolve(s.ctx, sign(jwt.SigningMethodHS512, Audience))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("control: HS256 recovery audience resolves", func() {
		_, err := s.codec.Resolve(s.ctx, sign(jwt.SigningMethodHS256, Audience))
		s.NoError(err)
	})
}

func (s *CodecSuite) TestExpiry() {
	tok := s.issue(s.alice)

	s.now = s.now.Add(DefaultTTL - time.Minute)
	_, err := s.codec.Resolve(s.ctx, tok)
	s.Require().NoError(err)

	s.now = s.now.Add(2 * time.Minute)
	_, err = s.codec.Resolve(s.ctx, tok)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CodecSuite) TestCustomTTL() {
	short, err := New(testSecret, s.users, WithClock(s.clock), WithTTL(time.Hour))
	s.Require().NoError(err)
	tok := s.issueWith(short)

	s.now = s.now.Add(61 * time.Minute)
	_, err = short.Resolve(s.ctx, tok)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CodecSuite) TestSupersededByPasswordChange() {
	tok := s.issue(s.alice)

	s.Require().NoError(s.users.SetPassword(s.ctx, s.alice.ID, "$2a$04$changed", s.now))

	_, err := s.codec.Resolve(s.ctx, tok)
	s.ErrorIs(err, sentinel.ErrNotFound)

	fresh, err := s.users.FindByID(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	resolved, err := s.codec.Resolve(s.ctx, s.issue(fresh))
	s.Require().NoError(err)
	s.Equal(s.alice.ID, resolved.ID)
}

func (s *CodecSuite) TestDeletedUser() {
	tok := s.issue(s.alice)
	s.Require().NoError(s.users.Delete(s.ctx, s.alice.ID))

	_, err := s.codec.Resolve(s.ctx, tok)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

type lookupFunc func(ctx context.Context, userID id.UserID) (*models.User, error)

func (f lookupFunc) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return f(ctx, userID)
}

func (s *CodecSuite) TestStoreFailurePropagates() {
	outage := errors.New("connection refused")
	codec, err := New(testSecret, lookupFunc(func(context.Context, id.UserID) (*models.User, error) {
		return nil, outage
	}), WithClock(s.clock))
	s.Require().NoError(err)

	tok, err := codec.Issue(s.alice)
	s.Require().NoError(err)

	_, err = codec.Resolve(s.ctx, tok)
	s.ErrorIs(err, outage)
	s.NotErrorIs(err, sentinel.ErrNotFound)
}

func (s *CodecSuite) TestNewRejectsShortSecret() {
	_, err := New("short", s.users)
	s.Error(err)
}

func TestRecoveryLinkIsSingleUse(t *testing.T) {
	ctx := context.Background()
	users := user.New()
	carol := &models.User{ID: id.NewUserID(), Email: "carol@example.com", PasswordHash: "$2a$04$carol", Active: true}
	if err := users.Save(ctx, carol); err != nil {
		t.Fatal(err)
	}
	codec, err := New(testSecret, users)
	if err != nil {
		t.Fatal(err)
	}

	var first, second string
	testutil.Given(t, "two links issued for the same account", func(t *testing.T) {
		if first, err = codec.Issue(carol); err != nil {
			t.Fatal(err)
		}
		if second, err = codec.Issue(carol); err != nil {
			t.Fatal(err)
		}
	})

	testutil.When(t, "the password is changed through the first link", func(t *testing.T) {
		if _, err := codec.Resolve(ctx, first); err != nil {
			t.Fatalf("first link should resolve: %v", err)
		}
		if err := users.SetPassword(ctx, carol.ID, "$2a$04$carol-new", time.Now()); err != nil {
			t.Fatal(err)
		}
	})

	testutil.Then(t, "neither link resolves any more", func(t *testing.T) {
		for _, tok := range []string{first, second} {
			if _, err := codec.Resolve(ctx, tok); !errors.Is(err, sentinel.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		}
	})
}
