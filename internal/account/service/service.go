package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"troupon/internal/account/models"
	"troupon/internal/account/password"
	id "troupon/pkg/domain"
	dErrors "troupon/pkg/domain-errors"
	"troupon/pkg/email"
	"troupon/pkg/platform/audit"
	"troupon/pkg/platform/sentinel"
	"troupon/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserStore

type UserStore interface {
	Save(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Auditor records security events. Emit failures are logged, never returned.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service registers and authenticates accounts.
type Service struct {
	users   UserStore
	hasher  password.Hasher
	policy  *password.Policy
	logger  *slog.Logger
	auditor Auditor

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithHasher(h password.Hasher) Option {
	return func(s *Service) {
		s.hasher = h
	}
}

func WithPolicy(p *password.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// New constructs a Service with bcrypt at the default cost and the default policy.
func New(users UserStore, opts ...Option) *Service {
	s := &Service{
		users:  users,
		hasher: password.NewBcryptHasher(0),
		policy: password.DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	addr := email.Normalize(req.Email)
	if !email.IsValid(addr) {
		return nil, dErrors.Validation("invalid registration", map[string]string{"email": "Enter a valid email address."})
	}
	if err := s.policy.Check("password", req.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	user := &models.User{
		ID:           id.NewUserID(),
		Email:        addr,
		PasswordHash: hash,
		Active:       req.Active,
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save user")
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"active", user.Active,
	)
	s.emit(ctx, audit.Event{UserID: user.ID, Action: string(audit.EventUserCreated), Email: user.Email})
	return user, nil
}

// Authenticate verifies credentials. Unknown email, wrong password and
// inactive accounts all fail with the same unauthorized error.
func (s *Service) Authenticate(ctx context.Context, req *models.SignInRequest) (*models.User, error) {
	invalid := dErrors.New(dErrors.CodeUnauthorized, "Invalid email or password.")

	user, err := s.users.FindByEmail(ctx, email.Normalize(req.Email))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Burn a comparable amount of time so response latency does not reveal registration.
			_ = s.hasher.Compare(s.timingHash(), req.Password)
			s.emit(ctx, audit.Event{Action: string(audit.EventAuthFailed), Email: email.Normalize(req.Email), Reason: "unknown_email"})
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			s.emit(ctx, audit.Event{UserID: user.ID, Action: string(audit.EventAuthFailed), Email: user.Email, Reason: "wrong_password"})
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}
	if !user.Active {
		s.emit(ctx, audit.Event{UserID: user.ID, Action: string(audit.EventAuthFailed), Email: user.Email, Reason: "inactive"})
		return nil, invalid
	}

	s.logger.InfoContext(ctx, "user signed in",
		"user_id", user.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return user, nil
}

// timingHash is compared against on unknown emails. Computed once with the configured hasher.
func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("troupon-unknown-account")
	})
	return s.dummyHash
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to record audit event",
			"action", event.Action,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
