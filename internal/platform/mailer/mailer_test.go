package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"troupon/internal/platform/config"
	"troupon/pkg/platform/circuit"
)

var testMessage = Message{
	Sender:    "Troupon <troupon@andela.com>",
	Recipient: "user@example.com",
	Subject:   "Troupon: Password Recovery",
	HTML:      "<p>Hi User</p>",
	Text:      "Hi User",
}

func TestMailgunSend(t *testing.T) {
	t.Run("delivered", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v3/mg.troupon.test/messages", r.URL.Path)
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "api", user)
			assert.Equal(t, "key-123", pass)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "user@example.com", r.PostForm.Get("to"))
			assert.Equal(t, "Troupon: Password Recovery", r.PostForm.Get("subject"))
			assert.Equal(t, "<p>Hi User</p>", r.PostForm.Get("html"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"<20261016.1@mg.troupon.test>","message":"Queued. Thank you."}`)
		}))
		defer srv.Close()

		status := NewMailgun(srv.URL, "mg.troupon.test", "key-123").Send(context.Background(), testMessage)

		assert.True(t, status.Delivered)
		assert.Equal(t, "<20261016.1@mg.troupon.test>", status.ID)
		assert.Equal(t, "Queued. Thank you.", status.Message)
		assert.Equal(t, "mailgun", status.Transport)
	})

	t.Run("rejected by provider", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Invalid private key"}`)
		}))
		defer srv.Close()

		status := NewMailgun(srv.URL, "mg.troupon.test", "bad").Send(context.Background(), testMessage)

		assert.False(t, status.Delivered)
		assert.Equal(t, "Invalid private key", status.Message)
	})

	t.Run("non-json error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		status := NewMailgun(srv.URL, "mg.troupon.test", "key").Send(context.Background(), testMessage)

		assert.False(t, status.Delivered)
		assert.Equal(t, "mailgun returned 502", status.Message)
	})

	t.Run("transport failure is reported once", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls++ }))
		srv.Close()

		status := NewMailgun(srv.URL, "mg.troupon.test", "key",
			WithHTTPClient(&http.Client{Timeout: time.Second})).Send(context.Background(), testMessage)

		assert.False(t, status.Delivered)
		assert.NotEmpty(t, status.Message)
		assert.Zero(t, calls)
	})
}

func TestSMTPSend(t *testing.T) {
	t.Run("delivered", func(t *testing.T) {
		var gotAddr, gotFrom string
		var gotTo []string
		var gotBody []byte
		s := NewSMTP("smtp.troupon.test", 2525, "mailer", "secret")
		s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotBody = addr, from, to, msg
			assert.NotNil(t, a)
			return nil
		}

		status := s.Send(context.Background(), testMessage)

		assert.True(t, status.Delivered)
		assert.Equal(t, "smtp", status.Transport)
		assert.Equal(t, "smtp.troupon.test:2525", gotAddr)
		assert.Equal(t, "troupon@andela.com", gotFrom)
		assert.Equal(t, []string{"user@example.com"}, gotTo)
		assert.Contains(t, string(gotBody), "multipart/alternative")
		assert.Contains(t, string(gotBody), "Subject: Troupon: Password Recovery")
		assert.Contains(t, string(gotBody), status.ID)
	})

	t.Run("relay error", func(t *testing.T) {
		s := NewSMTP("smtp.troupon.test", 25, "", "")
		s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
			return errors.New("550 mailbox unavailable")
		}

		status := s.Send(context.Background(), testMessage)

		assert.False(t, status.Delivered)
		assert.Equal(t, "550 mailbox unavailable", status.Message)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		status := NewSMTP("smtp.troupon.test", 25, "", "").Send(ctx, testMessage)
		assert.False(t, status.Delivered)
	})
}

func TestBuildMIME(t *testing.T) {
	body, err := buildMIME(testMessage, "<id@troupon>", time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	s := string(body)
	assert.True(t, strings.HasPrefix(s, "From: Troupon <troupon@andela.com>\r\n"))
	assert.Contains(t, s, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, s, "Content-Type: text/html; charset=utf-8")
	assert.Contains(t, s, "Message-ID: <id@troupon>")
}

func TestLogTransport(t *testing.T) {
	var buf bytes.Buffer
	tr := NewLogTransport(slog.New(slog.NewJSONHandler(&buf, nil)))

	status := tr.Send(context.Background(), testMessage)

	assert.True(t, status.Delivered)
	assert.Equal(t, "log", status.Transport)
	assert.Contains(t, buf.String(), "user@example.com")
}

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tr, err := New(config.MailConfig{Transport: "log"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogTransport{}, tr)

	tr, err = New(config.MailConfig{Transport: "mailgun", MailgunBaseURL: "https://api.mailgun.net"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &Mailgun{}, tr)

	tr, err = New(config.MailConfig{Transport: "smtp", SMTPHost: "localhost"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SMTP{}, tr)

	tr, err = New(config.MailConfig{Transport: "smtp", SMTPHost: "localhost", Fallback: "log"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &Failover{}, tr)

	_, err = New(config.MailConfig{Transport: "pigeon"}, logger)
	require.Error(t, err)

	_, err = New(config.MailConfig{Transport: "log", Fallback: "pigeon"}, logger)
	require.Error(t, err)
}

type scriptedTransport struct {
	name      string
	delivered bool
	calls     int
}

func (s *scriptedTransport) Send(context.Context, Message) DeliveryStatus {
	s.calls++
	return DeliveryStatus{Delivered: s.delivered, Transport: s.name}
}

func TestFailover(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	primary := &scriptedTransport{name: "mailgun"}
	fallback := &scriptedTransport{name: "smtp", delivered: true}
	breaker := circuit.New("mail:mailgun",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	f := NewFailover(primary, fallback, breaker, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	// Failures below the threshold are reported as is, never retried.
	status := f.Send(ctx, testMessage)
	assert.False(t, status.Delivered)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, fallback.calls)

	f.Send(ctx, testMessage)
	require.True(t, breaker.IsOpen())

	status = f.Send(ctx, testMessage)
	assert.True(t, status.Delivered)
	assert.Equal(t, "smtp", status.Transport)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, fallback.calls)

	now = now.Add(time.Minute)
	primary.delivered = true
	status = f.Send(ctx, testMessage)
	assert.Equal(t, "mailgun", status.Transport)
	assert.False(t, breaker.IsOpen())
}
