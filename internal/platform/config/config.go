package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const devRecoverySecret = "dev-recovery-secret-change-in-production"

// Config is the full process configuration, read once at startup.
type Config struct {
	Environment string
	Server      Server
	Log         LogConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Recovery    RecoveryConfig
	Mail        MailConfig
	Session     SessionConfig
	Audit       AuditConfig
	// SeedUsers are created at startup when accounts live in memory (dev only).
	SeedUsers []SeedUser
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	// BaseURL is the public origin used in emailed links. Empty means derive
	// it from the incoming request, which is refused in production.
	BaseURL string
	// AllowedHosts limits which request hosts may be used when BaseURL is empty.
	AllowedHosts []string
	// TrustProxy honours X-Forwarded-Proto from a fronting proxy.
	TrustProxy      bool
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig selects the account store. An empty URL keeps accounts in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig selects the elevation grant store. An empty URL keeps grants in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RecoveryConfig struct {
	Secret   string
	TokenTTL time.Duration
	GrantTTL time.Duration
}

type MailConfig struct {
	// Transport is one of "log", "mailgun", "smtp".
	Transport string
	// Fallback optionally takes over while Transport keeps failing.
	Fallback         string
	FailureThreshold int
	FailoverCooldown time.Duration
	Sender           string
	MailgunDomain    string
	MailgunAPIKey    string
	MailgunBaseURL   string
	Timeout          time.Duration
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPass         string
}

type SessionConfig struct {
	CookieName   string
	CookieSecure bool
	MaxAge       time.Duration
}

// AuditConfig sizes the in-memory security event log.
type AuditConfig struct {
	// BufferSize is the async publish queue. Zero writes events synchronously.
	BufferSize int
	// MaxEvents bounds how many events are retained.
	MaxEvents int
}

type SeedUser struct {
	Email    string
	Password string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (*Config, error) {
	var errs []error
	r := reader{errs: &errs}

	cfg := &Config{
		Environment: r.str("TROUPON_ENV", "development"),
		Server: Server{
			Addr:            r.str("TROUPON_ADDR", ":8080"),
			BaseURL:         strings.TrimRight(r.str("TROUPON_BASE_URL", ""), "/"),
			AllowedHosts:    splitList(r.str("TROUPON_ALLOWED_HOSTS", "")),
			TrustProxy:      r.bool("TROUPON_TRUST_PROXY", false),
			ShutdownTimeout: r.duration("TROUPON_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  r.str("LOG_LEVEL", "info"),
			Format: r.str("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			URL:             r.str("DATABASE_URL", ""),
			MaxOpenConns:    r.int("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    r.int("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: r.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Recovery: RecoveryConfig{
			Secret:   r.str("RECOVERY_SECRET", devRecoverySecret),
			TokenTTL: r.duration("RECOVERY_TOKEN_TTL", 24*time.Hour),
			GrantTTL: r.duration("RECOVERY_GRANT_TTL", 15*time.Minute),
		},
		Mail: MailConfig{
			Transport:        r.str("MAIL_TRANSPORT", "log"),
			Fallback:         r.str("MAIL_FALLBACK_TRANSPORT", ""),
			FailureThreshold: r.int("MAIL_FAILURE_THRESHOLD", 5),
			FailoverCooldown: r.duration("MAIL_FAILOVER_COOLDOWN", 30*time.Second),
			Sender:           r.str("MAIL_SENDER", "Troupon <troupon@andela.com>"),
			MailgunDomain:    r.str("MAILGUN_DOMAIN", ""),
			MailgunAPIKey:    r.str("MAILGUN_API_KEY", ""),
			MailgunBaseURL:   r.str("MAILGUN_BASE_URL", "https://api.mailgun.net"),
			Timeout:          r.duration("MAIL_TIMEOUT", 10*time.Second),
			SMTPHost:         r.str("SMTP_HOST", ""),
			SMTPPort:         r.int("SMTP_PORT", 587),
			SMTPUser:         r.str("SMTP_USER", ""),
			SMTPPass:         r.str("SMTP_PASS", ""),
		},
		Session: SessionConfig{
			CookieName:   r.str("SESSION_COOKIE_NAME", "troupon_session"),
			CookieSecure: r.bool("SESSION_COOKIE_SECURE", false),
			MaxAge:       r.duration("SESSION_MAX_AGE", 14*24*time.Hour),
		},
		Audit: AuditConfig{
			BufferSize: r.int("AUDIT_BUFFER_SIZE", 1024),
			MaxEvents:  r.int("AUDIT_MAX_EVENTS", 10000),
		},
		SeedUsers: parseSeedUsers(r.str("SEED_USERS", ""), &errs),
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// IsProduction reports whether the process runs with production safeguards.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) validate() []error {
	var errs []error
	if c.IsProduction() && c.Recovery.Secret == devRecoverySecret {
		errs = append(errs, errors.New("RECOVERY_SECRET must be set in production"))
	}
	if c.IsProduction() && c.Server.BaseURL == "" {
		errs = append(errs, errors.New("TROUPON_BASE_URL must be set in production"))
	}
	if c.Server.BaseURL != "" {
		if u, err := url.Parse(c.Server.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("TROUPON_BASE_URL must be an absolute http(s) URL, got %q", c.Server.BaseURL))
		}
	}
	if len(c.Recovery.Secret) < 32 {
		errs = append(errs, errors.New("RECOVERY_SECRET must be at least 32 bytes"))
	}
	if c.Recovery.TokenTTL <= 0 || c.Recovery.GrantTTL <= 0 {
		errs = append(errs, errors.New("recovery TTLs must be positive"))
	}
	errs = append(errs, c.Mail.validateTransport("MAIL_TRANSPORT", c.Mail.Transport)...)
	if c.Mail.Fallback != "" {
		errs = append(errs, c.Mail.validateTransport("MAIL_FALLBACK_TRANSPORT", c.Mail.Fallback)...)
	}
	if c.Audit.BufferSize < 0 || c.Audit.MaxEvents < 0 {
		errs = append(errs, errors.New("AUDIT_BUFFER_SIZE and AUDIT_MAX_EVENTS must not be negative"))
	}
	if c.IsProduction() && len(c.SeedUsers) > 0 {
		errs = append(errs, errors.New("SEED_USERS is not allowed in production"))
	}
	return errs
}

func (m MailConfig) validateTransport(key, name string) []error {
	switch name {
	case "log":
	case "mailgun":
		if m.MailgunDomain == "" || m.MailgunAPIKey == "" {
			return []error{errors.New("MAILGUN_DOMAIN and MAILGUN_API_KEY are required for the mailgun transport")}
		}
	case "smtp":
		if m.SMTPHost == "" {
			return []error{errors.New("SMTP_HOST is required for the smtp transport")}
		}
	default:
		return []error{fmt.Errorf("unknown %s %q", key, name)}
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseSeedUsers reads "email:password,email2:password2". Duplicate emails keep the first entry.
func parseSeedUsers(raw string, errs *[]error) []SeedUser {
	var users []SeedUser
	seen := make(map[string]struct{})
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		email, password, ok := strings.Cut(entry, ":")
		email = strings.ToLower(strings.TrimSpace(email))
		if !ok || email == "" || password == "" {
			*errs = append(*errs, fmt.Errorf("SEED_USERS: malformed entry %q", email))
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		users = append(users, SeedUser{Email: email, Password: password})
	}
	return users
}

type reader struct {
	errs *[]error
}

func (r reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (r reader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r reader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r reader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
