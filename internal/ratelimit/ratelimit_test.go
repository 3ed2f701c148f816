// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package ratelimit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/apperr"
	"codeberg.org/oliverandrich/careerhub/internal/config"
	"codeberg.org/oliverandrich/careerhub/internal/ratelimit"
	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return m, client
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisLimiter_AllowThenDeny(t *testing.T) {
	m, client := newRedis(t)
	limiter := ratelimit.NewRedisLimiter(client, "test", time.Minute, 2)
	ctx := context.Background()

	for i := range 2 {
		d, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
	}

	d, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(3), d.Count)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)

	assert.True(t, m.Exists("test:ratelimit:k"))

	m.FastForward(time.Minute + time.Second)
	d, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	_, client := newRedis(t)
	limiter := ratelimit.NewRedisLimiter(client, "", time.Minute, 1)
	ctx := context.Background()

	d, err := limiter.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimiter_Errors(t *testing.T) {
	_, err := ratelimit.NewRedisLimiter(nil, "", time.Minute, 1).Allow(context.Background(), "k")
	assert.Error(t, err)

	bad := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 20 * time.Millisecond})
	t.Cleanup(func() { _ = bad.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = ratelimit.NewRedisLimiter(bad, "", time.Minute, 1).Allow(ctx, "k")
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	d, err := ratelimit.Noop{}.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestNewClient(t *testing.T) {
	m := miniredis.RunT(t)

	client, err := ratelimit.NewClient(context.Background(), config.RedisConfig{Addr: m.Addr()})
	require.NoError(t, err)
	_ = client.Close()

	_, err = ratelimit.NewClient(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func newEcho(l ratelimit.Limiter, rule ratelimit.Rule) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(discardLogger())
	e.POST("/send", func(c echo.Context) error {
		body, _ := io.ReadAll(c.Request().Body)
		return c.String(http.StatusOK, string(body))
	}, ratelimit.Middleware(l, rule, discardLogger()))
	return e
}

func post(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	_, client := newRedis(t)
	limiter := ratelimit.NewRedisLimiter(client, "test", time.Minute, 1)
	e := newEcho(limiter, ratelimit.Rule{Name: "send-otp", Key: ratelimit.KeyByIPAndJSONField("email")})

	rec := post(e, `{"email":"Ada@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"email":"Ada@example.com"}`, rec.Body.String(), "body is restored for the handler")

	rec = post(e, `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())

	rec = post(e, `{"email":"other@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestMiddleware_LimiterFailure(t *testing.T) {
	open := newEcho(failingLimiter{}, ratelimit.Rule{Name: "x"})
	assert.Equal(t, http.StatusOK, post(open, `{}`).Code)

	closed := newEcho(failingLimiter{}, ratelimit.Rule{Name: "x", FailClosed: true})
	assert.Equal(t, http.StatusTooManyRequests, post(closed, `{}`).Code)
}

func TestKeyByIPAndJSONField(t *testing.T) {
	e := echo.New()
	keyFunc := ratelimit.KeyByIPAndJSONField("email")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":" Ada@Example.com "}`))
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "ada@example.com|192.0.2.1", keyFunc(e.NewContext(req, httptest.NewRecorder())))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", keyFunc(e.NewContext(req, httptest.NewRecorder())))
}
