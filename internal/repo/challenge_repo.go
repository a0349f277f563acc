package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soundscapes/server/internal/auth"
	"github.com/soundscapes/server/internal/model"
)

// ChallengeRepo is a PostgreSQL-backed auth.ChallengeStore.
type ChallengeRepo struct {
	db *sql.DB
}

var _ auth.ChallengeStore = (*ChallengeRepo)(nil)

// NewChallengeRepo creates a new ChallengeRepo instance
func NewChallengeRepo(db *sql.DB) *ChallengeRepo {
	return &ChallengeRepo{db: db}
}

// Put inserts the challenge or replaces the pending one for the same phone.
func (r *ChallengeRepo) Put(ctx context.Context, ch model.Challenge) error {
	createdAt := ch.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO otp_challenges (phone_number, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone_number) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at
	`, ch.PhoneNumber, ch.CodeHash, ch.ExpiresAt, createdAt)
	if err != nil {
		return fmt.Errorf("upsert challenge: %w", err)
	}
	return nil
}

// Resolve locks the row for phone for the duration of fn.
func (r *ChallengeRepo) Resolve(ctx context.Context, phone string, fn auth.ResolveFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var ch model.Challenge
	err = tx.QueryRowContext(ctx, `
		SELECT phone_number, code_hash, expires_at, created_at
		FROM otp_challenges
		WHERE phone_number = $1
		FOR UPDATE
	`, phone).Scan(&ch.PhoneNumber, &ch.CodeHash, &ch.ExpiresAt, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNoChallenge
	}
	if err != nil {
		return fmt.Errorf("query challenge: %w", err)
	}

	remove, fnErr := fn(ch)
	if remove {
		if _, err := tx.ExecContext(ctx, `DELETE FROM otp_challenges WHERE phone_number = $1`, phone); err != nil {
			return fmt.Errorf("delete challenge: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return fnErr
}

// Sweep deletes challenges that expired before now.
func (r *ChallengeRepo) Sweep(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep challenges: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
