package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"troupon/internal/platform/mailer"
	"troupon/internal/platform/middleware"
	"troupon/internal/recovery/models"
	id "troupon/pkg/domain"
	dErrors "troupon/pkg/domain-errors"
	"troupon/pkg/platform/httputil"
	"troupon/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the recovery operations used by the handler.
type Service interface {
	BeginRecovery(ctx context.Context, req *models.BeginRecoveryRequest) (*models.RecoveryOutcome, error)
	PresentResetForm(ctx context.Context, sessionID id.SessionID, token string) (*models.ResetFormResult, error)
	CompleteReset(ctx context.Context, sessionID id.SessionID, req *models.CompleteResetRequest) (*models.ResetResult, error)
}

// Handler serves the forgot-password and reset-password pages.
type Handler struct {
	service       Service
	logger        *slog.Logger
	baseURL       string
	allowedHosts  map[string]struct{}
	trustProxy    bool
	secureCookies bool
}

type Option func(*Handler)

// WithBaseURL fixes the origin used in emailed links. Without it the origin
// is taken from the request, and only for hosts accepted by WithAllowedHosts.
func WithBaseURL(baseURL string) Option {
	return func(h *Handler) {
		h.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithAllowedHosts lists the hostnames a request-derived origin may use.
// Ports are ignored. The default accepts loopback hosts only.
func WithAllowedHosts(hosts ...string) Option {
	return func(h *Handler) {
		allowed := make(map[string]struct{}, len(hosts))
		for _, host := range hosts {
			if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
				allowed[host] = struct{}{}
			}
		}
		if len(allowed) > 0 {
			h.allowedHosts = allowed
		}
	}
}

// WithTrustedProxy honours X-Forwarded-Proto from a fronting proxy.
func WithTrustedProxy(trust bool) Option {
	return func(h *Handler) {
		h.trustProxy = trust
	}
}

func WithSecureCookies(secure bool) Option {
	return func(h *Handler) {
		h.secureCookies = secure
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		logger:  logger,
		allowedHosts: map[string]struct{}{
			"localhost": {},
			"127.0.0.1": {},
			"::1":       {},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the recovery routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/forgot-password", h.handleForgotForm)
	r.Post("/forgot-password", h.handleForgot)
	r.Get("/reset-password/{token}", h.handleResetForm)
	r.Post("/reset-password", h.handleReset)
}

type formResponse struct {
	PageTitle string    `json:"page_title"`
	Fields    []string  `json:"fields"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

type mailStatusResponse struct {
	Email              string                `json:"email"`
	RecoveryMailStatus mailer.DeliveryStatus `json:"recovery_mail_status"`
}

func (h *Handler) handleForgotForm(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, formResponse{
		PageTitle: "Forgot Password",
		Fields:    []string{"email"},
	})
}

func (h *Handler) handleForgot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req models.BeginRecoveryRequest
	if err := decode(r, &req, func(f formValues) { req.Email = f.Get("email") }); err != nil {
		httputil.WriteError(w, err)
		return
	}
	base, err := h.origin(r)
	if err != nil {
		h.logger.WarnContext(ctx, "recovery requested through untrusted host",
			"host", r.Host,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	req.ResetURLBase = base

	outcome, err := h.service.BeginRecovery(ctx, &req)
	if err != nil {
		h.logFailure(ctx, "begin recovery failed", err, requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, mailStatusResponse{
		Email:              outcome.Email,
		RecoveryMailStatus: outcome.Delivery,
	})
}

func (h *Handler) handleResetForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	result, err := h.service.PresentResetForm(ctx, requestcontext.SessionID(ctx), chi.URLParam(r, "token"))
	if err != nil {
		h.logFailure(ctx, "recovery link rejected", err, requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, formResponse{
		PageTitle: "Reset Password",
		Fields:    []string{"password", "confirm_password"},
		Email:     result.Email,
		ExpiresAt: result.ExpiresAt,
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req models.CompleteResetRequest
	if err := decode(r, &req, func(f formValues) {
		req.Password = f.Get("password")
		req.ConfirmPassword = f.Get("confirm_password")
	}); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.CompleteReset(ctx, requestcontext.SessionID(ctx), &req)
	if err != nil {
		h.logFailure(ctx, "password reset failed", err, requestID)
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			// An authenticated-but-unelevated session is refused, not challenged.
			httputil.WriteErrorWithStatus(w, http.StatusForbidden, err)
			return
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.SetFlash(w, result.Notice, h.secureCookies)
	http.Redirect(w, r, result.RedirectTo, http.StatusSeeOther)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error, requestID string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"error", err,
			"request_id", requestID,
		)
		return
	}
	h.logger.InfoContext(ctx, msg,
		"code", string(dErrors.CodeOf(err)),
		"request_id", requestID,
	)
}

// origin returns the configured base URL, or scheme://host of the request
// when the host is allowed. Recovery links carry bearer tokens, so a forged
// Host must never reach the email.
func (h *Handler) origin(r *http.Request) (string, error) {
	if h.baseURL != "" {
		return h.baseURL, nil
	}
	if _, ok := h.allowedHosts[hostname(r.Host)]; !ok {
		return "", dErrors.New(dErrors.CodeBadRequest, "untrusted host")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if h.trustProxy {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
			scheme = proto
		}
	}
	return scheme + "://" + r.Host, nil
}

func hostname(hostport string) string {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	return strings.ToLower(strings.Trim(host, "[]"))
}

type formValues interface {
	Get(key string) string
}

// decode reads a JSON body into dst, or hands the parsed form to fromForm.
func decode(r *http.Request, dst any, fromForm func(formValues)) error {
	if httputil.IsJSON(r) {
		return httputil.DecodeJSON(r, dst)
	}
	if err := r.ParseForm(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid form body")
	}
	fromForm(r.PostForm)
	return nil
}
