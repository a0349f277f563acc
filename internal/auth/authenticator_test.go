package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundscapes/server/internal/apperr"
)

const adminPhone = "+436703596614"

var codeInBody = regexp.MustCompile(`code: (\d{6})`)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	err   error
	phone string
}

func (s *fakeSender) Send(ctx context.Context, phone, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phone = phone
	s.sent = append(s.sent, body)
	return s.err
}

func (s *fakeSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "no message sent")
	m := codeInBody.FindStringSubmatch(s.sent[len(s.sent)-1])
	require.Len(t, m, 2, "message should carry a 6-digit code")
	return m[1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *MemoryChallengeStore, *fakeSender) {
	t.Helper()
	store := NewMemoryChallengeStore()
	sender := &fakeSender{}
	a := NewAuthenticator(store, sender, AuthenticatorConfig{
		AllowedPhone: adminPhone,
		Salt:         "salt",
		TTL:          10 * time.Minute,
	}, discardLogger())
	return a, store, sender
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestStartChallenge_disallowedPhone(t *testing.T) {
	a, store, sender := newTestAuthenticator(t)

	_, err := a.StartChallenge(context.Background(), "+15550000000")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Equal(t, 0, store.Len(), "no challenge should be stored")
	assert.Empty(t, sender.sent)
}

func TestStartChallenge_missingPhone(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	_, err := a.StartChallenge(context.Background(), "   ")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStartChallenge_sendsCodeToPhone(t *testing.T) {
	a, store, sender := newTestAuthenticator(t)

	started, err := a.StartChallenge(context.Background(), " +43 670 3596614")
	require.NoError(t, err)
	assert.Empty(t, started.DevCode, "code must not be exposed by default")
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, adminPhone, sender.phone)
	assert.Contains(t, sender.sent[0], "(valid 10 min)")
	sender.lastCode(t)
}

func TestStartChallenge_exposeCode(t *testing.T) {
	a, _, sender := newTestAuthenticator(t)
	a.cfg.ExposeCode = true

	started, err := a.StartChallenge(context.Background(), adminPhone)
	require.NoError(t, err)
	assert.Equal(t, sender.lastCode(t), started.DevCode)
}

func TestStartChallenge_deliveryFailureKeepsChallenge(t *testing.T) {
	a, store, sender := newTestAuthenticator(t)
	sender.err = errors.New("twilio down")

	_, err := a.StartChallenge(context.Background(), adminPhone)
	require.ErrorIs(t, err, apperr.ErrDelivery)
	assert.Equal(t, 1, store.Len(), "stored challenge is not rolled back")

	require.NoError(t, a.VerifyChallenge(context.Background(), adminPhone, sender.lastCode(t)))
}

func TestVerifyChallenge_noChallenge(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	err := a.VerifyChallenge(context.Background(), adminPhone, "123456")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestVerifyChallenge_mismatchDoesNotConsume(t *testing.T) {
	a, store, sender := newTestAuthenticator(t)
	ctx := context.Background()

	_, err := a.StartChallenge(ctx, adminPhone)
	require.NoError(t, err)
	code := sender.lastCode(t)

	err = a.VerifyChallenge(ctx, adminPhone, wrongCode(code))
	require.ErrorIs(t, err, apperr.ErrMismatch)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, a.VerifyChallenge(ctx, adminPhone, code))
	assert.Equal(t, 0, store.Len(), "success consumes the challenge")

	err = a.VerifyChallenge(ctx, adminPhone, code)
	require.ErrorIs(t, err, apperr.ErrUnauthorized, "a consumed code cannot be reused")
}

func TestVerifyChallenge_expired(t *testing.T) {
	a, store, sender := newTestAuthenticator(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a.now = func() time.Time { return start }

	_, err := a.StartChallenge(ctx, adminPhone)
	require.NoError(t, err)
	code := sender.lastCode(t)

	a.now = func() time.Time { return start.Add(10*time.Minute + time.Second) }
	err = a.VerifyChallenge(ctx, adminPhone, code)
	require.ErrorIs(t, err, apperr.ErrExpired)
	assert.Equal(t, 0, store.Len(), "expiry detection removes the challenge")

	err = a.VerifyChallenge(ctx, adminPhone, code)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestVerifyChallenge_validUntilExpiry(t *testing.T) {
	a, _, sender := newTestAuthenticator(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a.now = func() time.Time { return start }

	_, err := a.StartChallenge(ctx, adminPhone)
	require.NoError(t, err)

	a.now = func() time.Time { return start.Add(10 * time.Minute) }
	require.NoError(t, a.VerifyChallenge(ctx, adminPhone, sender.lastCode(t)))
}

func TestStartChallenge_restartReplacesCode(t *testing.T) {
	a, store, sender := newTestAuthenticator(t)
	ctx := context.Background()

	_, err := a.StartChallenge(ctx, adminPhone)
	require.NoError(t, err)
	first := sender.lastCode(t)
	second := first
	for second == first {
		_, err = a.StartChallenge(ctx, adminPhone)
		require.NoError(t, err)
		second = sender.lastCode(t)
	}
	assert.Equal(t, 1, store.Len())

	err = a.VerifyChallenge(ctx, adminPhone, first)
	require.ErrorIs(t, err, apperr.ErrMismatch, "the earlier code is no longer valid")
	require.NoError(t, a.VerifyChallenge(ctx, adminPhone, second))
}

func TestVerifyChallenge_concurrentConsumeOnce(t *testing.T) {
	a, _, sender := newTestAuthenticator(t)
	ctx := context.Background()

	_, err := a.StartChallenge(ctx, adminPhone)
	require.NoError(t, err)
	code := sender.lastCode(t)

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- a.VerifyChallenge(ctx, adminPhone, code)
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	}
	assert.Equal(t, 1, successes)
}
