// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var (
	configPath = "config.toml"
	configFile = altsrc.NewStringPtrSourcer(&configPath)
)

// MinSessionSecretLength is the shortest SESSION_SECRET accepted in production.
const MinSessionSecretLength = 32

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server     ServerConfig
	Log        LogConfig
	Database   DatabaseConfig
	Session    SessionConfig
	Login      LoginConfig
	Reset      ResetConfig
	Onboarding OnboardingConfig
	SMTP       SMTPConfig
	TLS        TLSConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int    // in MB
	Environment string // development, production
	CSRF        bool
	// TrustedProxies lists the IPs or CIDR ranges whose X-Forwarded-For is
	// honoured. Empty means the socket address is the client IP.
	TrustedProxies []string
}

// TrustedProxyRanges parses TrustedProxies. Bare IPs become single-host ranges.
func (s ServerConfig) TrustedProxyRanges() ([]*net.IPNet, error) {
	ranges := make([]*net.IPNet, 0, len(s.TrustedProxies))
	for _, entry := range s.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			ranges = append(ranges, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		ranges = append(ranges, ipNet)
	}
	return ranges, nil
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	URL string // postgres://... or an SQLite path/DSN
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	Secret     string // signing secret, at least 32 characters in production
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

type LoginConfig struct {
	MaxFailedAttempts int // consecutive failures before the account is frozen
	PerMinuteIP       int // login requests per minute per client IP
	BcryptCost        int
}

type ResetConfig struct {
	TokenTTL       time.Duration
	PerEmailHourly int
	PerIPHourly    int
	PerMinuteIP    int // forgot-password requests per minute per client IP
	Window         time.Duration
}

type OnboardingConfig struct {
	TokenTTL time.Duration
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// TLSConfig enables HTTPS with a certificate pair. Both empty serves plain
// HTTP, for deployments behind a TLS-terminating proxy.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Enabled reports whether the server terminates TLS itself.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// Defaults mirrored by the flag values below.
const (
	DefaultMaxFailedAttempts = 5
	DefaultResetTokenTTL     = 30 * time.Minute
	DefaultResetPerEmail     = 3
	DefaultResetPerIP        = 5
	DefaultResetPerMinute    = 5
	DefaultResetWindow       = time.Hour
	DefaultOnboardingTTL     = 7 * 24 * time.Hour
	DefaultBcryptCost        = 12
)

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
			Environment: strings.ToLower(cmd.String("env")),
			CSRF:        cmd.Bool("csrf"),

			TrustedProxies: cmd.StringSlice("trusted-proxies"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			URL: cmd.String("database-url"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			Secret:     cmd.String("session-secret"),
			BlockKey:   cmd.String("session-block-key"),
		},
		Login: LoginConfig{
			MaxFailedAttempts: int(cmd.Int("login-max-failed-attempts")),
			PerMinuteIP:       int(cmd.Int("login-rl-per-minute")),
			BcryptCost:        int(cmd.Int("bcrypt-cost")),
		},
		Reset: ResetConfig{
			TokenTTL:       cmd.Duration("reset-token-ttl"),
			PerEmailHourly: int(cmd.Int("reset-rl-per-email-hourly")),
			PerIPHourly:    int(cmd.Int("reset-rl-per-ip-hourly")),
			PerMinuteIP:    int(cmd.Int("reset-rl-per-minute")),
			Window:         DefaultResetWindow,
		},
		Onboarding: OnboardingConfig{
			TokenTTL: cmd.Duration("onboarding-token-ttl"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		TLS: TLSConfig{
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Server.BaseURL = strings.TrimSuffix(cfg.Server.BaseURL, "/")

	return cfg
}

// IsProduction reports whether the server runs with production safeguards.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// SecureCookies reports whether cookies must carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.Server.BaseURL, "https://")
}

// Validate checks the loaded configuration once at startup.
func (c *Config) Validate() error {
	var errs []error

	if c.IsProduction() && len(c.Session.Secret) < MinSessionSecretLength {
		errs = append(errs, fmt.Errorf("session secret must be at least %d characters in production", MinSessionSecretLength))
	}
	if c.Session.Secret != "" && len(c.Session.Secret) < MinSessionSecretLength {
		errs = append(errs, fmt.Errorf("session secret must be at least %d characters", MinSessionSecretLength))
	}
	if c.Login.MaxFailedAttempts < 1 {
		errs = append(errs, errors.New("login max failed attempts must be positive"))
	}
	if c.Reset.TokenTTL <= 0 {
		errs = append(errs, errors.New("reset token ttl must be positive"))
	}
	if c.Login.PerMinuteIP < 1 || c.Reset.PerMinuteIP < 1 {
		errs = append(errs, errors.New("per-minute rate limits must be positive"))
	}
	if _, err := c.Server.TrustedProxyRanges(); err != nil {
		errs = append(errs, err)
	}
	if c.Reset.PerEmailHourly < 1 || c.Reset.PerIPHourly < 1 {
		errs = append(errs, errors.New("reset rate limits must be positive"))
	}
	if c.Onboarding.TokenTTL <= 0 {
		errs = append(errs, errors.New("onboarding token ttl must be positive"))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls cert file and key file must be set together"))
	}
	if c.IsProduction() && c.SMTP.Host == "" {
		errs = append(errs, errors.New("smtp host is required in production"))
	}

	return errors.Join(errs...)
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	scheme := "http"
	if cfg.IsProduction() && !IsLocalhost(host) {
		scheme = "https"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.toml",
			Usage:       "Path to configuration file",
			Destination: &configPath,
			Sources:     cli.EnvVars("CONFIG"),
		},
		&cli.StringFlag{
			Name:    "env",
			Value:   EnvDevelopment,
			Usage:   "Runtime environment (development, production)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("APP_ENV"), toml.TOML("server.environment", configFile)),
		},
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL used in emailed links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.BoolFlag{
			Name:    "csrf",
			Value:   true,
			Usage:   "Require a CSRF token on unsafe requests",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CSRF"), toml.TOML("server.csrf", configFile)),
		},
		&cli.StringSliceFlag{
			Name:    "trusted-proxies",
			Usage:   "Proxy IPs or CIDR ranges allowed to set X-Forwarded-For (empty trusts no header)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TRUSTED_PROXIES"), toml.TOML("server.trusted_proxies", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "./data/app.db",
			Usage:   "Database URL (postgres://... or SQLite path)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_URL"), toml.TOML("database.url", configFile)),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_admin_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   86400, // 24 hours in seconds
			Usage:   "Session max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_MAX_AGE"), toml.TOML("session.max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-secret",
			Usage:   "Session signing secret (at least 32 characters, auto-generated if empty in development)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_SECRET"), toml.TOML("session.secret", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
		// Login policy
		&cli.IntFlag{
			Name:    "login-max-failed-attempts",
			Value:   DefaultMaxFailedAttempts,
			Usage:   "Consecutive failed logins before an account is frozen",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOGIN_MAX_FAILED_ATTEMPTS"), toml.TOML("login.max_failed_attempts", configFile)),
		},
		&cli.IntFlag{
			Name:    "login-rl-per-minute",
			Value:   10,
			Usage:   "Login requests per minute per client IP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOGIN_RL_PER_MINUTE"), toml.TOML("login.rl_per_minute", configFile)),
		},
		&cli.IntFlag{
			Name:    "bcrypt-cost",
			Value:   DefaultBcryptCost,
			Usage:   "bcrypt cost factor for password hashes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BCRYPT_COST"), toml.TOML("login.bcrypt_cost", configFile)),
		},
		// Password reset policy
		&cli.DurationFlag{
			Name:    "reset-token-ttl",
			Value:   DefaultResetTokenTTL,
			Usage:   "Lifetime of password reset tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RESET_TOKEN_TTL"), toml.TOML("reset.token_ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "reset-rl-per-email-hourly",
			Value:   DefaultResetPerEmail,
			Usage:   "Password reset requests per email per hour",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RESET_RL_PER_EMAIL_HOURLY"), toml.TOML("reset.rl_per_email_hourly", configFile)),
		},
		&cli.IntFlag{
			Name:    "reset-rl-per-ip-hourly",
			Value:   DefaultResetPerIP,
			Usage:   "Password reset requests per client IP per hour",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RESET_RL_PER_IP_HOURLY"), toml.TOML("reset.rl_per_ip_hourly", configFile)),
		},
		&cli.IntFlag{
			Name:    "reset-rl-per-minute",
			Value:   DefaultResetPerMinute,
			Usage:   "Forgot-password requests per minute per client IP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RESET_RL_PER_MINUTE"), toml.TOML("reset.rl_per_minute", configFile)),
		},
		&cli.DurationFlag{
			Name:    "onboarding-token-ttl",
			Value:   DefaultOnboardingTTL,
			Usage:   "Lifetime of onboarding tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ONBOARDING_TOKEN_TTL"), toml.TOML("onboarding.token_ttl", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (mail is logged instead of sent when empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Brokerage Admin",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		// TLS flags
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "TLS certificate file (PEM)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("tls.cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "TLS private key file (PEM)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("tls.key_file", configFile)),
		},
	}
}
