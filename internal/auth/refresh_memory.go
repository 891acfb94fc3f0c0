package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryRefreshTokens keeps refresh tokens in process memory. Tokens do not
// survive a restart.
type MemoryRefreshTokens struct {
	mu     sync.Mutex
	nextID int64
	tokens map[string]RefreshToken
}

func NewMemoryRefreshTokens() *MemoryRefreshTokens {
	return &MemoryRefreshTokens{tokens: make(map[string]RefreshToken)}
}

func (m *MemoryRefreshTokens) SaveRefreshToken(_ context.Context, tokenHash string, token RefreshToken) (RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	token.ID = m.nextID
	token.Token = ""
	m.tokens[tokenHash] = token
	return token, nil
}

func (m *MemoryRefreshTokens) FindRefreshToken(_ context.Context, tokenHash string) (RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenHash]
	if !ok {
		return RefreshToken{}, ErrRefreshTokenNotFound
	}
	return token, nil
}

func (m *MemoryRefreshTokens) DeleteRefreshToken(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tokens, tokenHash)
	return nil
}

func (m *MemoryRefreshTokens) DeleteRefreshTokensByUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for hash, token := range m.tokens {
		if token.UserID == userID {
			delete(m.tokens, hash)
		}
	}
	return nil
}

func (m *MemoryRefreshTokens) DeleteExpiredRefreshTokens(_ context.Context, now time.Time, batchSize int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for hash, token := range m.tokens {
		if batchSize > 0 && deleted >= int64(batchSize) {
			break
		}
		if token.Expired(now) {
			delete(m.tokens, hash)
			deleted++
		}
	}
	return deleted, nil
}
