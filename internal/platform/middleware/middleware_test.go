package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"troupon/internal/platform/config"
	"troupon/internal/platform/metrics"
	id "troupon/pkg/domain"
	"troupon/pkg/requestcontext"
	"troupon/pkg/testutil"
)

type MiddlewareSuite struct {
	suite.Suite
	logs   *bytes.Buffer
	logger *slog.Logger
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.logs = &bytes.Buffer{}
	s.logger = slog.New(slog.NewJSONHandler(s.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (s *MiddlewareSuite) TestRequestID() {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	s.Run("mints an ID when absent", func() {
		rr := testutil.DoRequest(h, testutil.NewRequest(s.T(), http.MethodGet, "/"))
		s.NotEmpty(seen)
		s.Equal(seen, rr.Header().Get("X-Request-ID"))
	})

	s.Run("propagates an inbound ID", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/")
		req.Header.Set("X-Request-ID", "req-abc")
		rr := testutil.DoRequest(h, req)
		s.Equal("req-abc", seen)
		s.Equal("req-abc", rr.Header().Get("X-Request-ID"))
	})
}

func (s *MiddlewareSuite) TestRecovery() {
	m := metrics.New(prometheus.NewRegistry())
	h := RequestID(Recovery(s.logger, m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rr := testutil.DoRequest(h, testutil.NewRequest(s.T(), http.MethodGet, "/"))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
	s.Contains(s.logs.String(), "panic recovered")
	s.Equal(float64(1), promtest.ToFloat64(m.PanicsRecovered))
}

func (s *MiddlewareSuite) TestLoggerRecordsStatus() {
	h := Logger(s.logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	testutil.DoRequest(h, testutil.NewRequest(s.T(), http.MethodPost, "/forgot-password"))

	s.Contains(s.logs.String(), `"status":418`)
	s.Contains(s.logs.String(), `"path":"/forgot-password"`)
}

func (s *MiddlewareSuite) TestTimeoutSetsDeadline() {
	var hasDeadline bool
	h := Timeout(time.Second)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	testutil.DoRequest(h, testutil.NewRequest(s.T(), http.MethodGet, "/"))
	s.True(hasDeadline)
}

func (s *MiddlewareSuite) TestLatencyUsesRoutePattern() {
	m := metrics.New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(LatencyMiddleware(m))
	r.Get("/reset-password/{token}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	testutil.DoRequest(r, testutil.NewRequest(s.T(), http.MethodGet, "/reset-password/abc"))

	s.Equal(float64(1), promtest.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/reset-password/{token}", "404")))
}

func (s *MiddlewareSuite) TestBrowserSession() {
	cfg := config.SessionConfig{CookieName: "troupon_session", MaxAge: time.Hour}
	var seen id.SessionID
	h := BrowserSession(cfg, s.logger)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.SessionID(r.Context())
	}))

	s.Run("first visit mints a cookie", func() {
		rr := testutil.DoRequest(h, testutil.NewRequest(s.T(), http.MethodGet, "/"))
		cookie := testutil.ResponseCookie(rr, "troupon_session")
		s.Require().NotNil(cookie)
		s.True(cookie.HttpOnly)
		s.Equal(http.SameSiteLaxMode, cookie.SameSite)
		s.False(seen.IsNil())
		s.Equal(seen.String(), cookie.Value)
	})

	s.Run("existing cookie is reused", func() {
		existing := id.NewSessionID()
		req := testutil.NewRequest(s.T(), http.MethodGet, "/")
		req.AddCookie(&http.Cookie{Name: "troupon_session", Value: existing.String()})
		rr := testutil.DoRequest(h, req)
		s.Nil(testutil.ResponseCookie(rr, "troupon_session"))
		s.Equal(existing, seen)
	})

	s.Run("malformed cookie is replaced", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/")
		req.AddCookie(&http.Cookie{Name: "troupon_session", Value: "garbage"})
		rr := testutil.DoRequest(h, req)
		s.NotNil(testutil.ResponseCookie(rr, "troupon_session"))
		s.False(seen.IsNil())
	})
}

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:4000", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:4000", "198.51.100.4"},
		{"remote ipv4", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"remote ipv6", nil, "[::1]:1234", "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadataAndRequestTime(t *testing.T) {
	var ip, ua string
	var now time.Time
	h := ClientMetadata(RequestTime(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
		now = requestcontext.Now(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("User-Agent", "Mozilla/5.0")
	before := time.Now()
	testutil.DoRequest(h, req)

	assert.Equal(t, "192.0.2.1", ip)
	assert.Equal(t, "Mozilla/5.0", ua)
	require.False(t, now.IsZero())
	assert.False(t, now.Before(before))
}
