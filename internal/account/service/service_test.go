package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"troupon/internal/account/models"
	"troupon/internal/account/password"
	"troupon/internal/account/service/mocks"
	"troupon/internal/account/store/user"
	dErrors "troupon/pkg/domain-errors"
	"troupon/pkg/platform/audit"
	"troupon/pkg/platform/audit/publisher"
	"troupon/pkg/platform/audit/store/memory"
	"troupon/pkg/platform/sentinel"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *user.InMemoryUserStore
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = user.New()
	s.service = New(s.store,
		WithHasher(password.NewBcryptHasher(bcrypt.MinCost)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *ServiceSuite) TestRegister() {
	s.Run("normalizes email and hashes password", func() {
		u, err := s.service.Register(s.ctx, &models.RegisterRequest{Email: " User@Example.com ", Password: "NewP@ss123", Active: true})
		s.Require().NoError(err)
		s.Equal("user@example.com", u.Email)
		s.NotEqual("NewP@ss123", u.PasswordHash)

		stored, err := s.store.FindByEmail(s.ctx, "user@example.com")
		s.Require().NoError(err)
		s.Equal(u.ID, stored.ID)
	})

	s.Run("rejects invalid email", func() {
		_, err := s.service.Register(s.ctx, &models.RegisterRequest{Email: "not-an-email", Password: "NewP@ss123"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(dErrors.FieldsOf(err), "email")
	})

	s.Run("rejects weak password", func() {
		_, err := s.service.Register(s.ctx, &models.RegisterRequest{Email: "weak@example.com", Password: "short"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(dErrors.FieldsOf(err), "password")
	})

	s.Run("duplicate email conflicts", func() {
		_, err := s.service.Register(s.ctx, &models.RegisterRequest{Email: "USER@example.com", Password: "NewP@ss123"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestAuthenticate() {
	active, err := s.service.Register(s.ctx, &models.RegisterRequest{Email: "user@example.com", Password: "NewP@ss123", Active: true})
	s.Require().NoError(err)
	_, err = s.service.Register(s.ctx, &models.RegisterRequest{Email: "dormant@example.com", Password: "NewP@ss123"})
	s.Require().NoError(err)

	s.Run("correct credentials", func() {
		u, err := s.service.Authenticate(s.ctx, &models.SignInRequest{Email: "USER@example.com", Password: "NewP@ss123"})
		s.Require().NoError(err)
		s.Equal(active.ID, u.ID)
	})

	s.Run("wrong password", func() {
		_, err := s.service.Authenticate(s.ctx, &models.SignInRequest{Email: "user@example.com", Password: "OldP@ss123"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown email", func() {
		_, err := s.service.Authenticate(s.ctx, &models.SignInRequest{Email: "ghost@example.com", Password: "NewP@ss123"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("inactive account", func() {
		_, err := s.service.Authenticate(s.ctx, &models.SignInRequest{Email: "dormant@example.com", Password: "NewP@ss123"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestStoreFailures() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockUserStore(ctrl)
	svc := New(store, WithHasher(password.NewBcryptHasher(bcrypt.MinCost)))

	s.Run("lookup failure is internal", func() {
		store.EXPECT().FindByEmail(gomock.Any(), "user@example.com").Return(nil, errors.New("connection reset"))
		_, err := svc.Authenticate(s.ctx, &models.SignInRequest{Email: "user@example.com", Password: "NewP@ss123"})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("save failure is internal", func() {
		store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
		_, err := svc.Register(s.ctx, &models.RegisterRequest{Email: "new@example.com", Password: "NewP@ss123"})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("wrapped conflict is detected", func() {
		store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.Join(errors.New("email"), sentinel.ErrConflict))
		_, err := svc.Register(s.ctx, &models.RegisterRequest{Email: "new@example.com", Password: "NewP@ss123"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestAuditTrail() {
	trail := memory.NewInMemoryStore()
	svc := New(s.store,
		WithHasher(password.NewBcryptHasher(bcrypt.MinCost)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditor(publisher.NewPublisher(trail)),
	)

	u, err := svc.Register(s.ctx, &models.RegisterRequest{Email: "audited@example.com", Password: "NewP@ss123", Active: true})
	s.Require().NoError(err)
	_, err = svc.Authenticate(s.ctx, &models.SignInRequest{Email: "audited@example.com", Password: "Wr0ng!pass"})
	s.Require().Error(err)

	events, err := trail.ListByUser(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventUserCreated), events[0].Action)
	s.Equal(string(audit.EventAuthFailed), events[1].Action)
	s.Equal("wrong_password", events[1].Reason)
	s.Equal(audit.CategorySecurity, events[1].Category)
}
