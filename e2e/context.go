// Package e2e runs the Gherkin features against an in-process server.
package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	accounthandler "troupon/internal/account/handler"
	accountmodels "troupon/internal/account/models"
	"troupon/internal/account/password"
	accountservice "troupon/internal/account/service"
	"troupon/internal/account/store/user"
	"troupon/internal/platform/config"
	"troupon/internal/platform/mailer"
	"troupon/internal/platform/metrics"
	"troupon/internal/recovery/elevation"
	recoveryhandler "troupon/internal/recovery/handler"
	recoverymetrics "troupon/internal/recovery/metrics"
	recoveryservice "troupon/internal/recovery/service"
	"troupon/internal/recovery/token"
	httptransport "troupon/internal/transport/http"
)

const recoverySecret = "e2e-recovery-secret-0123456789abcdef"

// outbox captures recovery emails instead of delivering them.
type outbox struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) mailer.DeliveryStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return mailer.DeliveryStatus{Delivered: true, Transport: "outbox"}
}

// TestContext holds one scenario's server, browser and last response.
type TestContext struct {
	server   *httptest.Server
	client   *http.Client
	mail     *outbox
	accounts *accountservice.Service

	resp *http.Response
	body map[string]any
}

// Start boots a fresh server with in-memory stores.
func (tc *TestContext) Start() error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	hasher := password.NewBcryptHasher(bcrypt.MinCost)

	users := user.New()
	tc.accounts = accountservice.New(users,
		accountservice.WithLogger(logger),
		accountservice.WithHasher(hasher),
	)
	codec, err := token.New(recoverySecret, users)
	if err != nil {
		return err
	}
	tc.mail = &outbox{}
	recovery := recoveryservice.New(codec, users, elevation.NewInMemory(), tc.mail,
		recoveryservice.WithLogger(logger),
		recoveryservice.WithHasher(hasher),
		recoveryservice.WithMetrics(recoverymetrics.New(reg)),
	)

	tc.server = httptest.NewServer(httptransport.NewRouter(httptransport.Deps{
		Logger:  logger,
		Metrics: metrics.New(reg),
		Session: config.SessionConfig{CookieName: "troupon_session", MaxAge: time.Hour},
		Handlers: []httptransport.Routes{
			accounthandler.New(tc.accounts, logger),
			recoveryhandler.New(recovery, logger),
		},
	}))
	return tc.SwitchBrowser()
}

// Close stops the server.
func (tc *TestContext) Close() {
	if tc.server != nil {
		tc.server.Close()
	}
}

// SwitchBrowser drops all cookies, as if the user moved to another device.
func (tc *TestContext) SwitchBrowser() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	tc.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return nil
}

func (tc *TestContext) SeedAccount(ctx context.Context, email, pass string, active bool) error {
	_, err := tc.accounts.Register(ctx, &accountmodels.RegisterRequest{Email: email, Password: pass, Active: active})
	return err
}

func (tc *TestContext) POSTForm(path string, form url.Values) error {
	resp, err := tc.client.PostForm(tc.server.URL+path, form)
	if err != nil {
		return err
	}
	return tc.record(resp)
}

// GET accepts either a path on the server or an absolute URL.
func (tc *TestContext) GET(target string) error {
	if strings.HasPrefix(target, "/") {
		target = tc.server.URL + target
	}
	resp, err := tc.client.Get(target)
	if err != nil {
		return err
	}
	return tc.record(resp)
}

func (tc *TestContext) record(resp *http.Response) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.resp = resp
	tc.body = map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &tc.body); err != nil {
			return fmt.Errorf("decode response %q: %w", raw, err)
		}
	}
	return nil
}

func (tc *TestContext) StatusCode() int {
	if tc.resp == nil {
		return 0
	}
	return tc.resp.StatusCode
}

func (tc *TestContext) Header(name string) string {
	if tc.resp == nil {
		return ""
	}
	return tc.resp.Header.Get(name)
}

func (tc *TestContext) ResponseField(field string) (string, error) {
	v, ok := tc.body[field]
	if !ok {
		return "", fmt.Errorf("response has no field %q: %v", field, tc.body)
	}
	return fmt.Sprint(v), nil
}

func (tc *TestContext) SentMail() int {
	tc.mail.mu.Lock()
	defer tc.mail.mu.Unlock()
	return len(tc.mail.sent)
}

// LastRecoveryLink extracts the reset link from the newest email.
func (tc *TestContext) LastRecoveryLink() (string, error) {
	tc.mail.mu.Lock()
	defer tc.mail.mu.Unlock()
	if len(tc.mail.sent) == 0 {
		return "", errors.New("no recovery email was sent")
	}
	text := tc.mail.sent[len(tc.mail.sent)-1].Text
	start := strings.Index(text, tc.server.URL+"/reset-password/")
	if start < 0 {
		return "", fmt.Errorf("no reset link in %q", text)
	}
	return strings.Fields(text[start:])[0], nil
}
