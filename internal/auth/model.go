package auth

import "time"

type Role string

const (
	RoleUser      Role = "ROLE_USER"
	RoleAdmin     Role = "ROLE_ADMIN"
	RoleModerator Role = "ROLE_MODERATOR"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleModerator:
		return true
	default:
		return false
	}
}

// MaxFailedLoginAttempts locks an account once reached.
const MaxFailedLoginAttempts = 5

type User struct {
	ID                   int64
	Username             string
	Email                string
	PasswordHash         string
	FullName             string
	ProfileImageURL      string
	ProfileImagePublicID string
	Role                 Role
	Enabled              bool
	AccountLocked        bool
	FailedLoginAttempts  int
	LastLogin            *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IncrementFailedLoginAttempts records a failed password check. The lock it
// sets is only cleared by ResetFailedLoginAttempts.
func (u *User) IncrementFailedLoginAttempts() {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= MaxFailedLoginAttempts {
		u.AccountLocked = true
	}
}

func (u *User) ResetFailedLoginAttempts() {
	u.FailedLoginAttempts = 0
	u.AccountLocked = false
}

func (u *User) RecordLogin(at time.Time) {
	u.ResetFailedLoginAttempts()
	at = at.UTC()
	u.LastLogin = &at
}

type RefreshToken struct {
	ID        int64
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// AuthResult is returned by register, login and refresh.
type AuthResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
}
