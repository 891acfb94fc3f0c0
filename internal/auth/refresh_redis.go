package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisRefreshPrefix     = "auth:refresh:"
	redisRefreshUserPrefix = "auth:refresh:user:"
	redisRefreshSeq        = "auth:refresh:seq"

	// expiredRetention keeps a lapsed record around long enough for Redeem
	// to report it as expired rather than unknown.
	expiredRetention = 24 * time.Hour
)

type RedisRefreshTokens struct {
	client redis.UniversalClient
}

func NewRedisRefreshTokens(client redis.UniversalClient) *RedisRefreshTokens {
	return &RedisRefreshTokens{client: client}
}

type redisRefreshRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *RedisRefreshTokens) SaveRefreshToken(ctx context.Context, tokenHash string, token RefreshToken) (RefreshToken, error) {
	id, err := r.client.Incr(ctx, redisRefreshSeq).Result()
	if err != nil {
		return RefreshToken{}, fmt.Errorf("allocate refresh token id: %w", err)
	}
	token.ID = id
	token.Token = ""

	payload, err := json.Marshal(redisRefreshRecord{
		ID:        token.ID,
		UserID:    token.UserID,
		ExpiresAt: token.ExpiresAt.UTC(),
		CreatedAt: token.CreatedAt.UTC(),
	})
	if err != nil {
		return RefreshToken{}, fmt.Errorf("encode refresh token: %w", err)
	}

	ttl := redisRefreshTTL(token)

	userKey := redisRefreshUserKey(token.UserID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisRefreshPrefix+tokenHash, payload, ttl)
		pipe.SAdd(ctx, userKey, tokenHash)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return RefreshToken{}, fmt.Errorf("store refresh token in redis: %w", err)
	}

	return token, nil
}

func (r *RedisRefreshTokens) FindRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error) {
	raw, err := r.client.Get(ctx, redisRefreshPrefix+tokenHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RefreshToken{}, ErrRefreshTokenNotFound
		}
		return RefreshToken{}, fmt.Errorf("read refresh token from redis: %w", err)
	}

	var record redisRefreshRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return RefreshToken{}, fmt.Errorf("decode refresh token: %w", err)
	}

	return RefreshToken{
		ID:        record.ID,
		UserID:    record.UserID,
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
	}, nil
}

func (r *RedisRefreshTokens) DeleteRefreshToken(ctx context.Context, tokenHash string) error {
	token, err := r.FindRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return nil
		}
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisRefreshPrefix+tokenHash)
		pipe.SRem(ctx, redisRefreshUserKey(token.UserID), tokenHash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete refresh token from redis: %w", err)
	}
	return nil
}

func (r *RedisRefreshTokens) DeleteRefreshTokensByUser(ctx context.Context, userID int64) error {
	userKey := redisRefreshUserKey(userID)
	hashes, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("list user refresh tokens: %w", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, hash := range hashes {
		keys = append(keys, redisRefreshPrefix+hash)
	}
	keys = append(keys, userKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete user refresh tokens: %w", err)
	}
	return nil
}

// DeleteExpiredRefreshTokens is a no-op: Redis expires records on its own.
func (r *RedisRefreshTokens) DeleteExpiredRefreshTokens(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func (r *RedisRefreshTokens) Close() error {
	return r.client.Close()
}

// redisRefreshTTL derives the key lifetime from the token's own timestamps so
// it follows the clock that issued the token.
func redisRefreshTTL(token RefreshToken) time.Duration {
	lifetime := time.Until(token.ExpiresAt)
	if !token.CreatedAt.IsZero() {
		lifetime = token.ExpiresAt.Sub(token.CreatedAt)
	}
	if lifetime < 0 {
		lifetime = 0
	}
	return lifetime + expiredRetention
}

func redisRefreshUserKey(userID int64) string {
	return redisRefreshUserPrefix + strconv.FormatInt(userID, 10)
}
