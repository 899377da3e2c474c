package middleware

import (
	"log/slog"
	"net/http"

	"troupon/internal/platform/config"
	id "troupon/pkg/domain"
	"troupon/pkg/requestcontext"
)

// BrowserSession attaches a browser session ID to every request, minting the
// cookie on first visit. Elevation grants are keyed by this ID.
func BrowserSession(cfg config.SessionConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				sessionID, parseErr := id.ParseSessionID(c.Value)
				if parseErr == nil {
					next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionID(ctx, sessionID)))
					return
				}
				logger.DebugContext(ctx, "replacing malformed session cookie",
					"request_id", GetRequestID(ctx),
				)
			}

			sessionID := id.NewSessionID()
			http.SetCookie(w, &http.Cookie{
				Name:     cfg.CookieName,
				Value:    sessionID.String(),
				Path:     "/",
				MaxAge:   int(cfg.MaxAge.Seconds()),
				HttpOnly: true,
				Secure:   cfg.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionID(ctx, sessionID)))
		})
	}
}
