package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"troupon/internal/account/models"
	"troupon/internal/platform/middleware"
	dErrors "troupon/pkg/domain-errors"
	"troupon/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the interface for account operations used by the handler.
type Service interface {
	Authenticate(ctx context.Context, req *models.SignInRequest) (*models.User, error)
}

// Handler serves the sign-in endpoints. Sign-in is the landing page after a
// password reset.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the account routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/signin", h.handleSignInForm)
	r.Post("/signin", h.handleSignIn)
}

type signInFormResponse struct {
	PageTitle string   `json:"page_title"`
	Fields    []string `json:"fields"`
	Notice    string   `json:"notice,omitempty"`
}

func (h *Handler) handleSignInForm(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, signInFormResponse{
		PageTitle: "Sign In",
		Fields:    []string{"email", "password"},
		Notice:    httputil.PopFlash(w, r),
	})
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, err := decodeSignIn(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	user, err := h.service.Authenticate(ctx, req)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "sign-in failed",
				"error", err,
				"request_id", requestID,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.SignInResult{UserID: user.ID.String(), Email: user.Email})
}

func decodeSignIn(r *http.Request) (*models.SignInRequest, error) {
	var req models.SignInRequest
	if httputil.IsJSON(r) {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return &req, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid form body")
	}
	req.Email = r.PostForm.Get("email")
	req.Password = r.PostForm.Get("password")
	return &req, nil
}
