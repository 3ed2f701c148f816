// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otp_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/config"
	"codeberg.org/oliverandrich/careerhub/internal/models"
	"codeberg.org/oliverandrich/careerhub/internal/repository"
	"codeberg.org/oliverandrich/careerhub/internal/services/email"
	"codeberg.org/oliverandrich/careerhub/internal/services/otp"
	"codeberg.org/oliverandrich/careerhub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "a@b.com"

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

type fixture struct {
	svc   *otp.Service
	repo  *repository.Repository
	mail  *testutil.FakeSender
	clock *testutil.Clock
}

func newFixture(t *testing.T, cfg config.OTPConfig) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	mail := &testutil.FakeSender{}
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := otp.NewService(repo, email.NewService(mail, "http://localhost:8080"), cfg, otp.WithClock(clock.Now))
	return &fixture{svc: svc, repo: repo, mail: mail, clock: clock}
}

func defaultConfig() config.OTPConfig {
	return config.OTPConfig{Length: 6, Expiry: 10 * time.Minute, MaxAttempts: 5}
}

func mailedCode(t *testing.T, f *fixture) string {
	t.Helper()
	m := codePattern.FindStringSubmatch(f.mail.Last(t).Body)
	require.Len(t, m, 2, "no code in mail body")
	return m[1]
}

func TestGenerate(t *testing.T) {
	f := newFixture(t, defaultConfig())

	for range 20 {
		code, err := f.svc.Generate()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}

func TestGenerate_ConfiguredLength(t *testing.T) {
	cfg := defaultConfig()
	cfg.Length = 8
	f := newFixture(t, cfg)

	code, err := f.svc.Generate()

	require.NoError(t, err)
	assert.Len(t, code, 8)
}

func TestSave_SetsExpiry(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	require.NoError(t, f.svc.Save(ctx, addr, "123456"))

	rec, err := f.repo.GetVerificationCode(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Attempts)
	assert.True(t, f.clock.Now().Add(10*time.Minute).Equal(rec.ExpiresAt))
}

func TestSaveReplacesPreviousCode(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	require.NoError(t, f.svc.Save(ctx, addr, "111111"))
	require.NoError(t, f.svc.Save(ctx, addr, "222222"))

	assert.ErrorIs(t, f.svc.Verify(ctx, addr, "111111"), otp.ErrInvalidCode)
	assert.NoError(t, f.svc.Verify(ctx, addr, "222222"))
}

func TestVerify_SingleUse(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, addr, "123456"))

	require.NoError(t, f.svc.Verify(ctx, addr, "123456"))

	assert.ErrorIs(t, f.svc.Verify(ctx, addr, "123456"), otp.ErrInvalidCode)
}

func TestVerify_TrimsWhitespace(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, addr, "123456"))

	assert.NoError(t, f.svc.Verify(ctx, addr, " 123456\n"))
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, addr, "123456"))

	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.svc.Verify(ctx, addr, "123456"), "code is valid at exactly expiresAt")

	require.NoError(t, f.svc.Save(ctx, addr, "654321"))
	f.clock.Advance(10*time.Minute + time.Second)
	assert.ErrorIs(t, f.svc.Verify(ctx, addr, "654321"), otp.ErrInvalidCode)

	_, err := f.repo.GetVerificationCode(ctx, addr)
	assert.ErrorIs(t, err, repository.ErrNotFound, "expired code is deleted")
}

func TestVerify_UnknownEmail(t *testing.T) {
	f := newFixture(t, defaultConfig())

	assert.ErrorIs(t, f.svc.Verify(context.Background(), "nobody@b.com", "123456"), otp.ErrInvalidCode)
}

func TestVerify_EmptyCode(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, addr, "123456"))

	assert.ErrorIs(t, f.svc.Verify(ctx, addr, "   "), otp.ErrInvalidCode)

	rec, err := f.repo.GetVerificationCode(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Attempts)
}

func TestVerify_AttemptCap(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, addr, "123456"))

	for range 5 {
		assert.ErrorIs(t, f.svc.Verify(ctx, addr, "000000"), otp.ErrInvalidCode)
	}

	assert.ErrorIs(t, f.svc.Verify(ctx, addr, "123456"), otp.ErrTooManyAttempts)

	// A fresh code resets the counter.
	require.NoError(t, f.svc.Save(ctx, addr, "777777"))
	assert.NoError(t, f.svc.Verify(ctx, addr, "777777"))
}

// reissuingStore stores a fresh code right after the service read the
// pending one, like a concurrent resend would.
type reissuingStore struct {
	*repository.Repository
	fresh *models.VerificationCode
	once  sync.Once
}

func (s *reissuingStore) GetVerificationCode(ctx context.Context, identifier string) (*models.VerificationCode, error) {
	rec, err := s.Repository.GetVerificationCode(ctx, identifier)
	s.once.Do(func() {
		if upsertErr := s.Repository.UpsertVerificationCode(ctx, s.fresh); upsertErr != nil {
			panic(upsertErr)
		}
	})
	return rec, err
}

func TestVerify_ExpiredCleanupKeepsReissuedCode(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, addr, "111111"))
	f.clock.Advance(11 * time.Minute)

	store := &reissuingStore{Repository: f.repo, fresh: &models.VerificationCode{
		Identifier: addr,
		Code:       "222222",
		CreatedAt:  f.clock.Now(),
		ExpiresAt:  f.clock.Now().Add(10 * time.Minute),
	}}
	svc := otp.NewService(store, email.NewService(f.mail, "http://localhost:8080"), defaultConfig(), otp.WithClock(f.clock.Now))

	assert.ErrorIs(t, svc.Verify(ctx, addr, "111111"), otp.ErrInvalidCode)

	rec, err := f.repo.GetVerificationCode(ctx, addr)
	require.NoError(t, err, "the reissued code survives the expiry cleanup")
	assert.Equal(t, "222222", rec.Code)
	assert.NoError(t, f.svc.Verify(ctx, addr, "222222"))
}

// barrierStore holds every reader until all of them have loaded the
// pending code, so they all observe the same attempt counter.
type barrierStore struct {
	*repository.Repository
	arrived sync.WaitGroup
}

func (s *barrierStore) GetVerificationCode(ctx context.Context, identifier string) (*models.VerificationCode, error) {
	rec, err := s.Repository.GetVerificationCode(ctx, identifier)
	s.arrived.Done()
	s.arrived.Wait()
	return rec, err
}

func TestVerify_ConcurrentGuessesRespectAttemptCap(t *testing.T) {
	const workers = 20
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, addr, "123456"))

	store := &barrierStore{Repository: f.repo}
	store.arrived.Add(workers)
	svc := otp.NewService(store, email.NewService(f.mail, "http://localhost:8080"), defaultConfig(), otp.WithClock(f.clock.Now))

	var (
		mu      sync.Mutex
		invalid int
		tooMany int
		wg      sync.WaitGroup
	)
	for range workers {
		wg.Go(func() {
			err := svc.Verify(ctx, addr, "000000")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, otp.ErrInvalidCode):
				invalid++
			case errors.Is(err, otp.ErrTooManyAttempts):
				tooMany++
			default:
				t.Errorf("unexpected result: %v", err)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 5, invalid, "only the capped number of guesses is evaluated")
	assert.Equal(t, workers-5, tooMany)

	rec, err := f.repo.GetVerificationCode(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Attempts)
	assert.ErrorIs(t, f.svc.Verify(ctx, addr, "123456"), otp.ErrTooManyAttempts)
}

func TestVerify_ConcurrentCorrectCodeSucceedsOnce(t *testing.T) {
	const workers = 10
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, addr, "123456"))

	store := &barrierStore{Repository: f.repo}
	store.arrived.Add(workers)
	svc := otp.NewService(store, email.NewService(f.mail, "http://localhost:8080"), defaultConfig(), otp.WithClock(f.clock.Now))

	var (
		mu        sync.Mutex
		successes int
		wg        sync.WaitGroup
	)
	for range workers {
		wg.Go(func() {
			if svc.Verify(ctx, addr, "123456") == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestIssue_SendsThenSaves(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, addr, "Ada"))

	assert.Equal(t, 1, f.mail.Count())
	assert.Equal(t, addr, f.mail.Last(t).To)
	assert.NoError(t, f.svc.Verify(ctx, addr, mailedCode(t, f)))
}

func TestIssue_SendFailureStoresNothing(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.mail.Err = errors.New("smtp: 554 rejected")
	ctx := context.Background()

	err := f.svc.Issue(ctx, addr, "Ada")

	require.ErrorIs(t, err, otp.ErrTransport)
	_, getErr := f.repo.GetVerificationCode(ctx, addr)
	assert.ErrorIs(t, getErr, repository.ErrNotFound)
}

func TestIssue_SendFailureKeepsPreviousCode(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, addr, "111111"))

	f.mail.Err = errors.New("timeout")
	require.ErrorIs(t, f.svc.Resend(ctx, addr, "Ada"), otp.ErrTransport)

	assert.NoError(t, f.svc.Verify(ctx, addr, "111111"))
}

func TestIssue_CanceledBeforeSave(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.svc.Issue(ctx, addr, "Ada")

	require.ErrorIs(t, err, context.Canceled)
	_, getErr := f.repo.GetVerificationCode(context.Background(), addr)
	assert.ErrorIs(t, getErr, repository.ErrNotFound)
}

func TestIssue_SendInterval(t *testing.T) {
	cfg := defaultConfig()
	cfg.SendInterval = time.Minute
	f := newFixture(t, cfg)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, addr, "Ada"))
	assert.ErrorIs(t, f.svc.Resend(ctx, addr, "Ada"), otp.ErrSendTooSoon)
	assert.Equal(t, 1, f.mail.Count())

	f.clock.Advance(time.Minute)
	assert.NoError(t, f.svc.Resend(ctx, addr, "Ada"))
	assert.Equal(t, 2, f.mail.Count())
}

func TestResend_ConcurrentLeavesExactlyOneValidCode(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			assert.NoError(t, f.svc.Resend(ctx, addr, "Ada"))
		})
	}
	wg.Wait()

	rec, err := f.repo.GetVerificationCode(ctx, addr)
	require.NoError(t, err)

	valid := 0
	for _, m := range f.mail.Sent {
		code := codePattern.FindStringSubmatch(m.Body)[1]
		if code == rec.Code {
			valid++
		}
	}
	assert.GreaterOrEqual(t, valid, 1, "the stored code was mailed")
	assert.NoError(t, f.svc.Verify(ctx, addr, rec.Code))
}

func TestPurgeExpired(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Save(ctx, "old@b.com", "111111"))
	f.clock.Advance(11 * time.Minute)
	require.NoError(t, f.svc.Save(ctx, "new@b.com", "222222"))

	n, err := f.svc.PurgeExpired(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, f.svc.Verify(ctx, "new@b.com", "222222"))
}
