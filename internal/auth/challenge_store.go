package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/soundscapes/server/internal/model"
)

// ErrNoChallenge is returned by Resolve when no challenge is pending for a phone.
var ErrNoChallenge = errors.New("no pending challenge")

// ResolveFunc inspects a pending challenge. Returning remove=true deletes it.
type ResolveFunc func(ch model.Challenge) (remove bool, err error)

// ChallengeStore holds at most one pending challenge per phone identity.
type ChallengeStore interface {
	// Put creates the challenge for ch.PhoneNumber, replacing any pending one.
	Put(ctx context.Context, ch model.Challenge) error
	// Resolve loads the pending challenge for phone and applies fn to it.
	// Concurrent Resolve calls for the same phone are serialized, so a
	// challenge can be consumed at most once.
	Resolve(ctx context.Context, phone string, fn ResolveFunc) error
	// Sweep removes challenges that expired before now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// MemoryChallengeStore is an in-process ChallengeStore.
type MemoryChallengeStore struct {
	mu sync.Mutex
	m  map[string]model.Challenge
}

// NewMemoryChallengeStore returns an empty in-memory store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{m: make(map[string]model.Challenge)}
}

// Put stores ch, overwriting any pending challenge for the same phone.
func (s *MemoryChallengeStore) Put(ctx context.Context, ch model.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[ch.PhoneNumber] = ch
	return nil
}

// Resolve runs fn under the store lock.
func (s *MemoryChallengeStore) Resolve(ctx context.Context, phone string, fn ResolveFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.m[phone]
	if !ok {
		return ErrNoChallenge
	}
	remove, err := fn(ch)
	if remove {
		delete(s.m, phone)
	}
	return err
}

// Sweep drops expired entries.
func (s *MemoryChallengeStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for phone, ch := range s.m {
		if ch.Expired(now) {
			delete(s.m, phone)
			n++
		}
	}
	return n, nil
}

// Len returns the number of pending challenges.
func (s *MemoryChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// RunSweeper calls store.Sweep every interval until ctx is cancelled.
func RunSweeper(ctx context.Context, store ChallengeStore, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.Sweep(ctx, now)
			if err != nil {
				logger.Warn("challenge sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired challenges removed", "count", n)
			}
		}
	}
}
