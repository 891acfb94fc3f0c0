package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"samples-backend/internal/db"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")
)

const userColumns = `id, username, email, password_hash, full_name, profile_image_url, profile_image_public_id,
	role, enabled, account_locked, failed_login_attempts, last_login, created_at, updated_at`

// Repository stores users and, for the postgres driver, refresh tokens.
type Repository struct {
	db db.DB
}

func NewRepository(database db.DB) *Repository {
	return &Repository{db: database}
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role string
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.ProfileImageURL, &u.ProfileImagePublicID,
		&role, &u.Enabled, &u.AccountLocked, &u.FailedLoginAttempts, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	u.Role = Role(role)
	if !u.Role.Valid() {
		return User{}, fmt.Errorf("user %d has unknown role %q", u.ID, role)
	}
	return u, nil
}

func (r *Repository) findUser(ctx context.Context, what, where string, arg any) (User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return User{}, fmt.Errorf("query user by %s: %w", what, err)
	}
	return u, err
}

func (r *Repository) FindUserByID(ctx context.Context, id int64) (User, error) {
	return r.findUser(ctx, "id", `id = $1`, id)
}

func (r *Repository) FindUserByUsername(ctx context.Context, username string) (User, error) {
	return r.findUser(ctx, "username", `username = $1`, username)
}

// FindUserByUsernameOrEmail matches the username exactly or the email
// case-insensitively.
func (r *Repository) FindUserByUsernameOrEmail(ctx context.Context, value string) (User, error) {
	return r.findUser(ctx, "username or email", `username = $1 OR LOWER(email) = LOWER($1) ORDER BY (username = $1) DESC LIMIT 1`, value)
}

func (r *Repository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, full_name, role, enabled, account_locked, failed_login_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+userColumns,
		u.Username, u.Email, u.PasswordHash, u.FullName, string(u.Role), u.Enabled, u.AccountLocked, u.FailedLoginAttempts, now,
	)

	created, err := scanUser(row)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, "users_username_key"):
			return User{}, ErrDuplicateUsername
		case db.IsUniqueViolation(err, "users_email_key"):
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

// RecordLoginFailure increments the failure counter under a row lock and
// returns the updated user.
func (r *Repository) RecordLoginFailure(ctx context.Context, userID int64) (User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return User{}, fmt.Errorf("begin login failure tx: %w", err)
	}
	defer tx.Rollback(ctx)

	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
		return User{}, fmt.Errorf("lock user row: %w", err)
	}

	u.IncrementFailedLoginAttempts()
	u.UpdatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = $2, account_locked = $3, updated_at = $4
		WHERE id = $1
	`, u.ID, u.FailedLoginAttempts, u.AccountLocked, u.UpdatedAt); err != nil {
		return User{}, fmt.Errorf("update failed login attempts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, fmt.Errorf("commit login failure tx: %w", err)
	}

	return u, nil
}

func (r *Repository) RecordLoginSuccess(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, account_locked = FALSE, last_login = $2, updated_at = $2
		WHERE id = $1
	`, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	return nil
}

func (r *Repository) UpdateProfile(ctx context.Context, u User) (User, error) {
	updated, err := scanUser(r.db.QueryRow(ctx, `
		UPDATE users
		SET full_name = $2, profile_image_url = $3, profile_image_public_id = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.FullName, u.ProfileImageURL, u.ProfileImagePublicID, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
		return User{}, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

func (r *Repository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes the user. Samples and refresh tokens cascade.
func (r *Repository) DeleteUser(ctx context.Context, userID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// EnsureUser inserts u unless the username is taken and reports whether a row
// was created.
func (r *Repository) EnsureUser(ctx context.Context, u User) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO users (username, email, password_hash, full_name, role, enabled, account_locked, failed_login_attempts)
		VALUES ($1, $2, $3, $4, $5, TRUE, FALSE, 0)
		ON CONFLICT DO NOTHING
	`, u.Username, u.Email, u.PasswordHash, u.FullName, string(u.Role))
	if err != nil {
		return false, fmt.Errorf("ensure user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) SaveRefreshToken(ctx context.Context, tokenHash string, token RefreshToken) (RefreshToken, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, tokenHash, token.UserID, token.ExpiresAt.UTC(), token.CreatedAt.UTC()).Scan(&token.ID)
	if err != nil {
		return RefreshToken{}, fmt.Errorf("insert refresh token: %w", err)
	}
	token.Token = ""
	return token, nil
}

func (r *Repository) FindRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error) {
	var token RefreshToken
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, expires_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&token.ID, &token.UserID, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshToken{}, ErrRefreshTokenNotFound
		}
		return RefreshToken{}, fmt.Errorf("query refresh token: %w", err)
	}
	return token, nil
}

func (r *Repository) DeleteRefreshToken(ctx context.Context, tokenHash string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *Repository) DeleteRefreshTokensByUser(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete user refresh tokens: %w", err)
	}
	return nil
}

func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		WITH stale AS (
			SELECT id
			FROM refresh_tokens
			WHERE expires_at <= $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, now.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
