package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"samples-backend/internal/apperr"
)

const (
	MsgUsernameExists     = "Username already exists"
	MsgEmailExists        = "Email already exists"
	MsgInvalidCredentials = "Invalid username or password"
	MsgAccountLocked      = "Account is locked due to multiple failed login attempts"
	MsgAccountDisabled    = "Account is disabled"
	MsgInvalidToken       = "Invalid token"
	MsgTokenExpired       = "Token has expired"
)

type UserRepository interface {
	FindUserByID(ctx context.Context, id int64) (User, error)
	FindUserByUsername(ctx context.Context, username string) (User, error)
	FindUserByUsernameOrEmail(ctx context.Context, value string) (User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, u User) (User, error)
	RecordLoginFailure(ctx context.Context, userID int64) (User, error)
	RecordLoginSuccess(ctx context.Context, userID int64, at time.Time) error
	EnsureUser(ctx context.Context, u User) (bool, error)
}

type Service struct {
	users   UserRepository
	tokens  *TokenService
	refresh *RefreshTokens
	hasher  PasswordHasher
	now     func() time.Time
}

func NewService(users UserRepository, tokens *TokenService, refresh *RefreshTokens, hasher PasswordHasher) *Service {
	return &Service{
		users:   users,
		tokens:  tokens,
		refresh: refresh,
		hasher:  hasher,
		now:     time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
}

// Register rejects a taken username before checking the email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)

	taken, err := s.users.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return AuthResult{}, err
	}
	if taken {
		return AuthResult{}, apperr.BadRequest(MsgUsernameExists)
	}

	taken, err = s.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return AuthResult{}, err
	}
	if taken {
		return AuthResult{}, apperr.BadRequest(MsgEmailExists)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.CreateUser(ctx, User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     in.FullName,
		Role:         RoleUser,
		Enabled:      true,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			return AuthResult{}, apperr.BadRequest(MsgUsernameExists)
		case errors.Is(err, ErrDuplicateEmail):
			return AuthResult{}, apperr.BadRequest(MsgEmailExists)
		}
		return AuthResult{}, err
	}

	return s.issue(ctx, user)
}

// Login verifies credentials before account state, so a locked or disabled
// account is only revealed to a caller who knows the password.
func (s *Service) Login(ctx context.Context, usernameOrEmail, password string) (AuthResult, error) {
	usernameOrEmail = strings.TrimSpace(usernameOrEmail)
	if usernameOrEmail == "" || password == "" {
		return AuthResult{}, apperr.Unauthorized(MsgInvalidCredentials)
	}

	user, err := s.users.FindUserByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, apperr.Unauthorized(MsgInvalidCredentials)
		}
		return AuthResult{}, err
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		if _, err := s.users.RecordLoginFailure(ctx, user.ID); err != nil && !errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, err
		}
		return AuthResult{}, apperr.Unauthorized(MsgInvalidCredentials)
	}

	if user.AccountLocked {
		return AuthResult{}, apperr.Unauthorized(MsgAccountLocked)
	}
	if !user.Enabled {
		return AuthResult{}, apperr.Unauthorized(MsgAccountDisabled)
	}

	now := s.now()
	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return AuthResult{}, err
	}
	user.RecordLogin(now)

	return s.issue(ctx, user)
}

// Refresh issues a new access token for a live refresh token. The refresh
// token itself is returned unchanged.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	record, err := s.refresh.Redeem(ctx, refreshToken)
	if err != nil {
		return AuthResult{}, tokenError(err)
	}

	user, err := s.users.FindUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, apperr.Unauthorized(MsgInvalidToken)
		}
		return AuthResult{}, err
	}

	access, err := s.tokens.Issue(user.Username, user.Role, user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	return s.result(user, access, record.Token), nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.refresh.Revoke(ctx, refreshToken)
}

// BootstrapAdmin creates an admin account when all three values are set and
// the username is free. It reports whether an account was created.
func (s *Service) BootstrapAdmin(ctx context.Context, username, email, password string) (bool, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" && email == "" && password == "" {
		return false, nil
	}
	if username == "" || email == "" || password == "" {
		return false, fmt.Errorf("ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, err
	}

	return s.users.EnsureUser(ctx, User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
		Enabled:      true,
	})
}

func (s *Service) issue(ctx context.Context, user User) (AuthResult, error) {
	access, err := s.tokens.Issue(user.Username, user.Role, user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	refresh, err := s.refresh.CreateFor(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}

	return s.result(user, access, refresh.Token), nil
}

func (s *Service) result(user User, access, refresh string) AuthResult {
	return AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.TTL().Seconds()),
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Role:         user.Role,
	}
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return apperr.Unauthorized(MsgTokenExpired)
	case errors.Is(err, ErrInvalidToken):
		return apperr.Unauthorized(MsgInvalidToken)
	default:
		return err
	}
}
