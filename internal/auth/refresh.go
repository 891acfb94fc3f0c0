package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const refreshTokenBytes = 48

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// RefreshTokenRepository persists refresh tokens keyed by the sha256 of the
// opaque value. Deletes are idempotent.
type RefreshTokenRepository interface {
	SaveRefreshToken(ctx context.Context, tokenHash string, token RefreshToken) (RefreshToken, error)
	FindRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, tokenHash string) error
	DeleteRefreshTokensByUser(ctx context.Context, userID int64) error
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type RefreshTokens struct {
	repo RefreshTokenRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewRefreshTokens(repo RefreshTokenRepository, ttl time.Duration) *RefreshTokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RefreshTokens{repo: repo, ttl: ttl, now: time.Now}
}

func (r *RefreshTokens) WithClock(now func() time.Time) *RefreshTokens {
	r.now = now
	return r
}

func (r *RefreshTokens) CreateFor(ctx context.Context, user User) (RefreshToken, error) {
	raw, err := randomToken(refreshTokenBytes)
	if err != nil {
		return RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := r.now().UTC()
	saved, err := r.repo.SaveRefreshToken(ctx, hashToken(raw), RefreshToken{
		UserID:    user.ID,
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return RefreshToken{}, err
	}

	saved.Token = raw
	return saved, nil
}

// Redeem returns the stored record for token. An expired record is deleted
// before ErrTokenExpired is returned, so a second attempt sees ErrInvalidToken.
func (r *RefreshTokens) Redeem(ctx context.Context, token string) (RefreshToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return RefreshToken{}, ErrInvalidToken
	}

	tokenHash := hashToken(token)
	record, err := r.repo.FindRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return RefreshToken{}, ErrInvalidToken
		}
		return RefreshToken{}, err
	}

	if record.Expired(r.now()) {
		if err := r.repo.DeleteRefreshToken(ctx, tokenHash); err != nil {
			return RefreshToken{}, err
		}
		return RefreshToken{}, ErrTokenExpired
	}

	record.Token = token
	return record, nil
}

func (r *RefreshTokens) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return r.repo.DeleteRefreshToken(ctx, hashToken(token))
}

func (r *RefreshTokens) RevokeAllFor(ctx context.Context, userID int64) error {
	return r.repo.DeleteRefreshTokensByUser(ctx, userID)
}

func (r *RefreshTokens) PurgeExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	return r.repo.DeleteExpiredRefreshTokens(ctx, r.now().UTC(), batchSize)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
