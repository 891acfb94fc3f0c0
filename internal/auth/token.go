package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretBytes is the shortest HS256 key accepted from configuration.
const MinSecretBytes = 32

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrWeakSecret   = errors.New("jwt secret must be at least 32 bytes")
)

type Claims struct {
	Role   Role  `json:"role"`
	UserID int64 `json:"id"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret    []byte
	ttl       time.Duration
	ephemeral bool
	now       func() time.Time
}

// NewTokenService signs with secret. A secret shorter than MinSecretBytes is
// replaced by a random per-process key when allowEphemeral is set, which
// invalidates every issued token on restart; otherwise it is rejected.
func NewTokenService(secret string, ttl time.Duration, allowEphemeral bool) (*TokenService, error) {
	s := &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}

	if len(s.secret) < MinSecretBytes {
		if !allowEphemeral {
			return nil, ErrWeakSecret
		}
		key := make([]byte, 64)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		s.secret = key
		s.ephemeral = true
	}

	return s, nil
}

func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) Ephemeral() bool {
	return s.ephemeral
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

func (s *TokenService) Issue(subject string, role Role, userID int64) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		Role:   role,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry of token. Expired tokens yield
// ErrTokenExpired, everything else ErrInvalidToken.
func (s *TokenService) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}

	return claims, nil
}

// IsValid reports whether token parses and names user as its subject.
func (s *TokenService) IsValid(token string, user User) bool {
	claims, err := s.Parse(token)
	if err != nil {
		return false
	}
	return claims.Subject == user.Username
}
