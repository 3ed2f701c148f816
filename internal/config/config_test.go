// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v3"
)

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host     string
		expected bool
	}{
		{"", true},
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"app.localhost", true},
		{"example.com", false},
		{"192.168.1.1", false},
		{"localhost.com", false}, // not a real localhost
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocalhost(tt.host))
		})
	}
}

func TestBuildBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *Config
		expected string
	}{
		{
			name:     "localhost HTTP default port",
			cfg:      &Config{Server: ServerConfig{Host: "localhost", Port: 80}},
			expected: "http://localhost",
		},
		{
			name:     "localhost HTTP custom port",
			cfg:      &Config{Server: ServerConfig{Host: "localhost", Port: 8080}},
			expected: "http://localhost:8080",
		},
		{
			name:     "production remote host",
			cfg:      &Config{Server: ServerConfig{Host: "example.com", Port: 443, Production: true}},
			expected: "https://example.com",
		},
		{
			name:     "production localhost stays on HTTP",
			cfg:      &Config{Server: ServerConfig{Host: "localhost", Port: 8080, Production: true}},
			expected: "http://localhost:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildBaseURL(tt.cfg))
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Run("fills zero values", func(t *testing.T) {
		cfg := &Config{}

		applyDefaults(cfg)

		assert.Equal(t, "csrf_token", cfg.CSRF.CookieName)
		assert.Equal(t, "X-CSRF-Token", cfg.CSRF.HeaderName)
		assert.Equal(t, 86400, cfg.CSRF.MaxAge)
		assert.Equal(t, 6, cfg.OTP.Length)
		assert.Equal(t, 10*time.Minute, cfg.OTP.Expiry)
		assert.Equal(t, 5, cfg.OTP.MaxAttempts)
		assert.Equal(t, time.Hour, cfg.Reset.Expiry)
		assert.Equal(t, 1, cfg.Server.MaxBodySize)
	})

	t.Run("rejects out of range code length", func(t *testing.T) {
		cfg := &Config{OTP: OTPConfig{Length: 40}}

		applyDefaults(cfg)

		assert.Equal(t, 6, cfg.OTP.Length)
	})

	t.Run("does not override existing values", func(t *testing.T) {
		cfg := &Config{
			CSRF: CSRFConfig{CookieName: "xsrf", HeaderName: "X-XSRF", MaxAge: 60},
			OTP:  OTPConfig{Length: 8, Expiry: time.Minute, MaxAttempts: 3},
		}

		applyDefaults(cfg)

		assert.Equal(t, "xsrf", cfg.CSRF.CookieName)
		assert.Equal(t, "X-XSRF", cfg.CSRF.HeaderName)
		assert.Equal(t, 60, cfg.CSRF.MaxAge)
		assert.Equal(t, 8, cfg.OTP.Length)
		assert.Equal(t, time.Minute, cfg.OTP.Expiry)
		assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	})
}

func TestSecureCookies(t *testing.T) {
	assert.False(t, (&Config{Server: ServerConfig{BaseURL: "http://localhost:8080"}}).SecureCookies())
	assert.True(t, (&Config{Server: ServerConfig{BaseURL: "https://careerhub.example"}}).SecureCookies())
	assert.True(t, (&Config{Server: ServerConfig{BaseURL: "http://internal", Production: true}}).SecureCookies())
}

func TestRedisConfig_Enabled(t *testing.T) {
	assert.False(t, RedisConfig{}.Enabled())
	assert.False(t, RedisConfig{Addr: "   "}.Enabled())
	assert.True(t, RedisConfig{Addr: "localhost:6379"}.Enabled())
}

func TestFlags(t *testing.T) {
	flags := Flags()

	assert.NotEmpty(t, flags)

	flagNames := make(map[string]bool)
	for _, f := range flags {
		for _, name := range f.Names() {
			flagNames[name] = true
		}
	}

	for _, name := range []string{
		"host", "port", "base-url", "log-level", "database-dsn",
		"session-cookie-name", "csrf-cookie-name", "csrf-header-name",
		"otp-length", "otp-expiry", "otp-max-attempts", "reset-expiry",
		"smtp-host", "redis-addr",
	} {
		assert.True(t, flagNames[name], "should have %s flag", name)
	}
}

func TestNewFromCLI(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.NotNil(t, cfg)
			assert.Equal(t, "localhost", cfg.Server.Host)
			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "info", cfg.Log.Level)
			assert.Equal(t, "_session", cfg.Session.CookieName)
			assert.Equal(t, "csrf_token", cfg.CSRF.CookieName)
			assert.Equal(t, "X-CSRF-Token", cfg.CSRF.HeaderName)
			assert.Equal(t, 86400, cfg.CSRF.MaxAge)
			assert.Equal(t, 10*time.Minute, cfg.OTP.Expiry)
			assert.Equal(t, time.Hour, cfg.Reset.Expiry)
			assert.False(t, cfg.Redis.Enabled())

			// BaseURL should be auto-generated
			assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)

			return nil
		},
	}

	err := app.Run(context.Background(), []string{"test"})
	assert.NoError(t, err)
}

func TestNewFromCLI_WithCustomValues(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.Equal(t, "0.0.0.0", cfg.Server.Host)
			assert.Equal(t, 9000, cfg.Server.Port)
			assert.Equal(t, "https://example.com", cfg.Server.BaseURL)
			assert.Equal(t, "debug", cfg.Log.Level)
			assert.Equal(t, 8, cfg.OTP.Length)
			assert.Equal(t, 5*time.Minute, cfg.OTP.Expiry)
			assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
			assert.True(t, cfg.SecureCookies())

			return nil
		},
	}

	args := []string{
		"test",
		"--host", "0.0.0.0",
		"--port", "9000",
		"--base-url", "https://example.com",
		"--log-level", "debug",
		"--otp-length", "8",
		"--otp-expiry", "5m",
		"--redis-addr", "localhost:6379",
	}
	err := app.Run(context.Background(), args)
	assert.NoError(t, err)
}
