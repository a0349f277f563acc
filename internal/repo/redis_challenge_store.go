package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soundscapes/server/internal/auth"
	"github.com/soundscapes/server/internal/model"
)

const (
	challengeKeyPrefix = "soundscapes:otp:"
	// challengeKeyGrace keeps a key around past its expiry so a late
	// verification is reported as expired rather than missing.
	challengeKeyGrace = time.Minute
	maxWatchRetries   = 4
)

// RedisChallengeStore is a Redis-backed auth.ChallengeStore.
type RedisChallengeStore struct {
	redis *redis.Client
	now   func() time.Time
}

var _ auth.ChallengeStore = (*RedisChallengeStore)(nil)

type redisChallenge struct {
	CodeHash  []byte    `json:"code_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRedisChallengeStore wraps an existing client.
func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{redis: client, now: time.Now}
}

func (s *RedisChallengeStore) key(phone string) string {
	return challengeKeyPrefix + phone
}

// Put stores ch with a TTL slightly past its expiry.
func (s *RedisChallengeStore) Put(ctx context.Context, ch model.Challenge) error {
	data, err := json.Marshal(redisChallenge{CodeHash: ch.CodeHash, ExpiresAt: ch.ExpiresAt, CreatedAt: ch.CreatedAt})
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	ttl := ch.ExpiresAt.Sub(s.now()) + challengeKeyGrace
	if ttl <= 0 {
		ttl = challengeKeyGrace
	}
	if err := s.redis.Set(ctx, s.key(ch.PhoneNumber), data, ttl).Err(); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

// Resolve applies fn inside an optimistic WATCH transaction on the phone's key.
func (s *RedisChallengeStore) Resolve(ctx context.Context, phone string, fn auth.ResolveFunc) error {
	key := s.key(phone)

	for i := 0; i < maxWatchRetries; i++ {
		var fnErr error
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			var rc redisChallenge
			if err := json.Unmarshal(data, &rc); err != nil {
				return fmt.Errorf("decode challenge: %w", err)
			}

			var remove bool
			remove, fnErr = fn(model.Challenge{
				PhoneNumber: phone,
				CodeHash:    rc.CodeHash,
				ExpiresAt:   rc.ExpiresAt,
				CreatedAt:   rc.CreatedAt,
			})
			if !remove {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return auth.ErrNoChallenge
		case err != nil:
			return fmt.Errorf("resolve challenge: %w", err)
		}
		return fnErr
	}
	return fmt.Errorf("resolve challenge: too much contention on %s", key)
}

// Sweep is a no-op: Redis expires keys on its own.
func (s *RedisChallengeStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
