package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"troupon/internal/account/password"
	recoveryMetrics "troupon/internal/recovery/metrics"
	"troupon/internal/recovery/models"
	"troupon/internal/recovery/token"
	id "troupon/pkg/domain"
	dErrors "troupon/pkg/domain-errors"
	"troupon/pkg/platform/audit"
	"troupon/pkg/platform/sentinel"
	"troupon/pkg/requestcontext"
)

const DefaultGrantTTL = 15 * time.Minute

// Service runs the forgot-password and reset-password exchanges.
type Service struct {
	codec     TokenCodec
	accounts  AccountStore
	elevation ElevationStore
	mail      Mailer
	composer  *Composer
	hasher    password.Hasher
	policy    *password.Policy
	grantTTL  time.Duration
	tokenTTL  time.Duration
	logger    *slog.Logger
	metrics   *recoveryMetrics.Metrics
	auditor   Auditor
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *recoveryMetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
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

// WithGrantTTL sets how long a recovery link visit keeps the session elevated.
func WithGrantTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.grantTTL = ttl
		}
	}
}

// WithTokenTTL is the token lifetime quoted in the email. It should match the codec's.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func WithSender(sender string) Option {
	return func(s *Service) {
		s.composer = NewComposer(sender)
	}
}

func New(codec TokenCodec, accounts AccountStore, elevation ElevationStore, mail Mailer, opts ...Option) *Service {
	s := &Service{
		codec:     codec,
		accounts:  accounts,
		elevation: elevation,
		mail:      mail,
		composer:  NewComposer(DefaultSender),
		hasher:    password.NewBcryptHasher(0),
		policy:    password.DefaultPolicy(),
		grantTTL:  DefaultGrantTTL,
		tokenTTL:  token.DefaultTTL,
		logger:    slog.Default(),
		tracer:    otel.Tracer("troupon/recovery"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BeginRecovery emails a recovery link to the account registered under req.Email.
// Exactly one send is attempted per call; a failed send is reported in the
// outcome, not as an error.
func (s *Service) BeginRecovery(ctx context.Context, req *models.BeginRecoveryRequest) (*models.RecoveryOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "recovery.BeginRecovery")
	defer span.End()

	req.Normalize()
	if err := req.Validate(); err != nil {
		s.finish(span, s.incBegin, recoveryMetrics.OutcomeInvalid, nil)
		return nil, err
	}

	user, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.emit(ctx, audit.Event{Action: string(audit.EventRecoveryUnknown), Email: req.Email})
			s.finish(span, s.incBegin, recoveryMetrics.OutcomeNotFound, nil)
			return nil, dErrors.New(dErrors.CodeNotFound, models.MsgAccountNotFound)
		}
		s.finish(span, s.incBegin, recoveryMetrics.OutcomeError, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}
	if !user.Active {
		s.logger.InfoContext(ctx, "recovery requested for inactive account",
			"user_id", user.ID.String(),
		)
		s.emit(ctx, audit.Event{UserID: user.ID, Action: string(audit.EventRecoveryUnknown), Email: user.Email, Reason: "inactive"})
		s.finish(span, s.incBegin, recoveryMetrics.OutcomeNotFound, nil)
		return nil, dErrors.New(dErrors.CodeNotFound, models.MsgAccountNotFound)
	}
	span.SetAttributes(attribute.String("user_id", user.ID.String()))

	tok, err := s.codec.Issue(user)
	if err != nil {
		s.finish(span, s.incBegin, recoveryMetrics.OutcomeError, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue recovery token")
	}

	msg, err := s.composer.Compose(user.Email, ResetURL(req.ResetURLBase, tok), requestcontext.UserAgent(ctx), s.tokenTTL)
	if err != nil {
		s.finish(span, s.incBegin, recoveryMetrics.OutcomeError, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compose recovery email")
	}

	status := s.mail.Send(ctx, msg)
	if s.metrics != nil {
		s.metrics.IncMailDelivery(status.Transport, status.Delivered)
	}
	span.SetAttributes(attribute.Bool("mail.delivered", status.Delivered))
	if status.Delivered {
		s.logger.InfoContext(ctx, "recovery email sent",
			"user_id", user.ID.String(),
			"transport", status.Transport,
			"message_id", status.ID,
		)
	} else {
		s.logger.WarnContext(ctx, "recovery email not delivered",
			"user_id", user.ID.String(),
			"transport", status.Transport,
			"reason", status.Message,
		)
	}

	s.emit(ctx, audit.Event{UserID: user.ID, Action: string(audit.EventRecoveryRequested), Email: user.Email, Reason: deliveryReason(status.Delivered)})
	s.finish(span, s.incBegin, recoveryMetrics.OutcomeEmailSent, nil)
	return &models.RecoveryOutcome{Email: user.Email, Delivery: status}, nil
}

// PresentResetForm accepts a recovery link and elevates sessionID for its account.
func (s *Service) PresentResetForm(ctx context.Context, sessionID id.SessionID, tok string) (*models.ResetFormResult, error) {
	ctx, span := s.tracer.Start(ctx, "recovery.PresentResetForm")
	defer span.End()

	if sessionID.IsNil() {
		s.finish(span, s.incPresent, recoveryMetrics.OutcomeError, nil)
		return nil, dErrors.New(dErrors.CodeBadRequest, "browser session is required")
	}

	user, err := s.codec.Resolve(ctx, tok)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.emit(ctx, audit.Event{Action: string(audit.EventRecoveryLinkInvalid)})
			s.finish(span, s.incPresent, recoveryMetrics.OutcomeNotFound, nil)
			return nil, dErrors.New(dErrors.CodeNotFound, models.MsgRecoveryLinkInvalid)
		}
		s.finish(span, s.incPresent, recoveryMetrics.OutcomeError, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve recovery token")
	}
	span.SetAttributes(attribute.String("user_id", user.ID.String()))

	if !user.Active {
		s.emit(ctx, audit.Event{UserID: user.ID, Action: string(audit.EventRecoveryLinkInvalid), Reason: "inactive"})
		s.finish(span, s.incPresent, recoveryMetrics.OutcomeForbidden, nil)
		return nil, dErrors.New(dErrors.CodeForbidden, models.MsgAccountNotActivated)
	}

	now := requestcontext.Now(ctx)
	grant := &models.ElevationGrant{
		SessionID: sessionID,
		UserID:    user.ID,
		GrantedAt: now,
		ExpiresAt: now.Add(s.grantTTL),
	}
	if err := s.elevation.Grant(ctx, grant); err != nil {
		s.finish(span, s.incPresent, recoveryMetrics.OutcomeError, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to elevate session")
	}

	s.logger.InfoContext(ctx, "session elevated for password reset",
		"user_id", user.ID.String(),
		"expires_at", grant.ExpiresAt,
	)
	s.emit(ctx, audit.Event{UserID: user.ID, Action: string(audit.EventSessionElevated), Email: user.Email})
	s.finish(span, s.incPresent, recoveryMetrics.OutcomeElevated, nil)
	return &models.ResetFormResult{Email: user.Email, ExpiresAt: grant.ExpiresAt}, nil
}

// CompleteReset sets a new password for the account sessionID was elevated for.
// The grant is consumed before the password is written, so concurrent
// submissions on one session see at most one success.
func (s *Service) CompleteReset(ctx context.Context, sessionID id.SessionID, req *models.CompleteResetRequest) (*models.ResetResult, error) {
	ctx, span := s.tracer.Start(ctx, "recovery.CompleteReset")
	defer span.End()

	if err := s.validateReset(req); err != nil {
		s.finish(span, s.incComplete, recoveryMetrics.OutcomeInvalid, nil)
		return nil, err
	}

	now := requestcontext.Now(ctx)

	grant, err := s.elevation.Check(ctx, sessionID, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			return nil, s.deny(ctx, span, id.UserID{}, grantReason(err))
		}
		s.finish(span, s.incComplete, recoveryMetrics.OutcomeError, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check elevation")
	}

	user, err := s.accounts.FindByID(ctx, grant.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// The account vanished after the link visit; the grant is useless.
			_, _ = s.elevation.Consume(ctx, sessionID, now)
			return nil, s.deny(ctx, span, grant.UserID, "account_gone")
		}
		s.finish(span, s.incComplete, recoveryMetrics.OutcomeError, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.finish(span, s.incComplete, recoveryMetrics.OutcomeError, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	consumed, err := s.elevation.Consume(ctx, sessionID, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			return nil, s.deny(ctx, span, user.ID, "grant_consumed")
		}
		s.finish(span, s.incComplete, recoveryMetrics.OutcomeError, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume elevation")
	}
	if consumed.UserID != user.ID {
		// Session was re-elevated for another account between check and consume.
		return nil, s.deny(ctx, span, user.ID, "grant_replaced")
	}

	if err := s.accounts.SetPassword(ctx, user.ID, hash, now); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.deny(ctx, span, user.ID, "account_gone")
		}
		s.finish(span, s.incComplete, recoveryMetrics.OutcomeError, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to set password")
	}

	s.logger.InfoContext(ctx, "password reset completed",
		"user_id", user.ID.String(),
	)
	s.emit(ctx, audit.Event{UserID: user.ID, Action: string(audit.EventPasswordReset), Email: user.Email})
	s.finish(span, s.incComplete, recoveryMetrics.OutcomeChanged, nil)
	return &models.ResetResult{
		UserID:     user.ID,
		Notice:     models.MsgPasswordChanged,
		RedirectTo: models.SignInPath,
	}, nil
}

// deny records a refused reset and returns the not-allowed error.
func (s *Service) deny(ctx context.Context, span trace.Span, userID id.UserID, reason string) error {
	s.emit(ctx, audit.Event{UserID: userID, Action: string(audit.EventPasswordResetDenied), Reason: reason})
	s.finish(span, s.incComplete, recoveryMetrics.OutcomeUnauthorized, nil)
	return dErrors.New(dErrors.CodeUnauthorized, models.MsgNotAllowed)
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

func grantReason(err error) string {
	if errors.Is(err, sentinel.ErrExpired) {
		return "grant_expired"
	}
	return "no_grant"
}

func deliveryReason(delivered bool) string {
	if delivered {
		return "delivered"
	}
	return "not_delivered"
}

func (s *Service) validateReset(req *models.CompleteResetRequest) error {
	if err := s.policy.Check("password", req.Password); err != nil {
		return err
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		return dErrors.Validation("passwords do not match", map[string]string{"confirm_password": "Passwords do not match."})
	}
	return nil
}

// ResetURL builds the absolute link embedded in the recovery email.
func ResetURL(base, tok string) string {
	return base + "/reset-password/" + url.PathEscape(tok)
}

// finish records the outcome on the span and the per-operation counter.
func (s *Service) finish(span trace.Span, inc func(string), outcome string, err error) {
	span.SetAttributes(attribute.String("recovery.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	inc(outcome)
}

func (s *Service) incBegin(outcome string) {
	if s.metrics != nil {
		s.metrics.IncBeginRecovery(outcome)
	}
}

func (s *Service) incPresent(outcome string) {
	if s.metrics != nil {
		s.metrics.IncPresentResetForm(outcome)
	}
}

func (s *Service) incComplete(outcome string) {
	if s.metrics != nil {
		s.metrics.IncCompleteReset(outcome)
	}
}
