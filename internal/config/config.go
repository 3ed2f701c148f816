// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Session  SessionConfig
	CSRF     CSRFConfig
	OTP      OTPConfig
	Reset    ResetConfig
	SMTP     SMTPConfig
	Redis    RedisConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
	Production  bool
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

// CSRFConfig configures the double-submit cookie guard.
type CSRFConfig struct {
	CookieName string
	HeaderName string
	MaxAge     int // seconds
}

// OTPConfig configures email one-time passcodes.
type OTPConfig struct {
	Length       int
	Expiry       time.Duration
	MaxAttempts  int
	PurgeEvery   time.Duration
	SendInterval time.Duration
}

// ResetConfig configures password reset tokens.
type ResetConfig struct {
	Expiry time.Duration
}

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
	Timeout  time.Duration
}

// RedisConfig is optional; an empty Addr disables request rate limiting.
type RedisConfig struct { //nolint:govet // fieldalignment not critical
	Addr          string
	Password      string
	DB            int
	Prefix        string
	RateWindow    time.Duration
	RateMax       int
	RateFailClose bool
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
			Production:  cmd.Bool("production"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		CSRF: CSRFConfig{
			CookieName: cmd.String("csrf-cookie-name"),
			HeaderName: cmd.String("csrf-header-name"),
			MaxAge:     int(cmd.Int("csrf-max-age")),
		},
		OTP: OTPConfig{
			Length:       int(cmd.Int("otp-length")),
			Expiry:       cmd.Duration("otp-expiry"),
			MaxAttempts:  int(cmd.Int("otp-max-attempts")),
			PurgeEvery:   cmd.Duration("otp-purge-interval"),
			SendInterval: cmd.Duration("otp-send-interval"),
		},
		Reset: ResetConfig{
			Expiry: cmd.Duration("reset-expiry"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
			Timeout:  cmd.Duration("smtp-timeout"),
		},
		Redis: RedisConfig{
			Addr:          cmd.String("redis-addr"),
			Password:      cmd.String("redis-password"),
			DB:            int(cmd.Int("redis-db")),
			Prefix:        cmd.String("redis-prefix"),
			RateWindow:    cmd.Duration("rate-limit-window"),
			RateMax:       int(cmd.Int("rate-limit-max")),
			RateFailClose: cmd.Bool("rate-limit-fail-closed"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	applyDefaults(cfg)

	return cfg
}

// applyDefaults fills zero values that would otherwise disable a protection.
func applyDefaults(cfg *Config) {
	if cfg.Server.MaxBodySize <= 0 {
		cfg.Server.MaxBodySize = 1
	}
	if cfg.CSRF.CookieName == "" {
		cfg.CSRF.CookieName = "csrf_token"
	}
	if cfg.CSRF.HeaderName == "" {
		cfg.CSRF.HeaderName = "X-CSRF-Token"
	}
	if cfg.CSRF.MaxAge <= 0 {
		cfg.CSRF.MaxAge = 86400
	}
	if cfg.OTP.Length < 4 || cfg.OTP.Length > 10 {
		cfg.OTP.Length = 6
	}
	if cfg.OTP.Expiry <= 0 {
		cfg.OTP.Expiry = 10 * time.Minute
	}
	if cfg.OTP.MaxAttempts <= 0 {
		cfg.OTP.MaxAttempts = 5
	}
	if cfg.Reset.Expiry <= 0 {
		cfg.Reset.Expiry = time.Hour
	}
	if cfg.SMTP.Timeout <= 0 {
		cfg.SMTP.Timeout = 15 * time.Second
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "careerhub"
	}
}

// SecureCookies reports whether cookies must carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return c.Server.Production || strings.HasPrefix(c.Server.BaseURL, "https://")
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	scheme := "http"
	if cfg.Server.Production && !IsLocalhost(host) {
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
			Usage:   "Base URL for the application",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.BoolFlag{
			Name:    "production",
			Usage:   "Run in production mode (secure cookies)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PRODUCTION"), toml.TOML("server.production", configFile)),
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
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days in seconds
			Usage:   "Session max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_MAX_AGE"), toml.TOML("session.max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_HASH_KEY"), toml.TOML("session.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
		// CSRF flags
		&cli.StringFlag{
			Name:    "csrf-cookie-name",
			Value:   "csrf_token",
			Usage:   "CSRF cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CSRF_COOKIE_NAME"), toml.TOML("csrf.cookie_name", configFile)),
		},
		&cli.StringFlag{
			Name:    "csrf-header-name",
			Value:   "X-CSRF-Token",
			Usage:   "Request header carrying the CSRF token",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CSRF_HEADER_NAME"), toml.TOML("csrf.header_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "csrf-max-age",
			Value:   86400,
			Usage:   "CSRF cookie max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CSRF_MAX_AGE"), toml.TOML("csrf.max_age", configFile)),
		},
		// OTP flags
		&cli.IntFlag{
			Name:    "otp-length",
			Value:   6,
			Usage:   "Number of digits in email verification codes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_LENGTH"), toml.TOML("otp.length", configFile)),
		},
		&cli.DurationFlag{
			Name:    "otp-expiry",
			Value:   10 * time.Minute,
			Usage:   "Lifetime of an email verification code",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_EXPIRY"), toml.TOML("otp.expiry", configFile)),
		},
		&cli.IntFlag{
			Name:    "otp-max-attempts",
			Value:   5,
			Usage:   "Failed verifications allowed per code",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_MAX_ATTEMPTS"), toml.TOML("otp.max_attempts", configFile)),
		},
		&cli.DurationFlag{
			Name:    "otp-purge-interval",
			Value:   time.Hour,
			Usage:   "How often expired codes and reset tokens are purged (0 disables)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_PURGE_INTERVAL"), toml.TOML("otp.purge_interval", configFile)),
		},
		&cli.DurationFlag{
			Name:    "otp-send-interval",
			Value:   time.Minute,
			Usage:   "Minimum time between two codes for the same address (0 disables)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OTP_SEND_INTERVAL"), toml.TOML("otp.send_interval", configFile)),
		},
		&cli.DurationFlag{
			Name:    "reset-expiry",
			Value:   time.Hour,
			Usage:   "Lifetime of a password reset token",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RESET_EXPIRY"), toml.TOML("reset.expiry", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
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
			Value:   "Careerhub",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.DurationFlag{
			Name:    "smtp-timeout",
			Value:   15 * time.Second,
			Usage:   "SMTP dial and send timeout",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TIMEOUT"), toml.TOML("smtp.timeout", configFile)),
		},
		// Redis flags
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for rate limiting (empty disables)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_ADDR"), toml.TOML("redis.addr", configFile)),
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_PASSWORD"), toml.TOML("redis.password", configFile)),
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_DB"), toml.TOML("redis.db", configFile)),
		},
		&cli.StringFlag{
			Name:    "redis-prefix",
			Value:   "careerhub",
			Usage:   "Key prefix for Redis entries",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_PREFIX"), toml.TOML("redis.prefix", configFile)),
		},
		&cli.DurationFlag{
			Name:    "rate-limit-window",
			Value:   15 * time.Minute,
			Usage:   "Window for OTP and reset request limits",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATE_LIMIT_WINDOW"), toml.TOML("redis.rate_window", configFile)),
		},
		&cli.IntFlag{
			Name:    "rate-limit-max",
			Value:   10,
			Usage:   "Requests allowed per window and key",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATE_LIMIT_MAX"), toml.TOML("redis.rate_max", configFile)),
		},
		&cli.BoolFlag{
			Name:    "rate-limit-fail-closed",
			Usage:   "Reject requests when Redis is unreachable",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATE_LIMIT_FAIL_CLOSED"), toml.TOML("redis.fail_closed", configFile)),
		},
	}
}
