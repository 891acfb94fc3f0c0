package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"samples-backend/internal/apperr"
	"samples-backend/internal/auth"
	"samples-backend/internal/media"
)

const (
	MsgUserNotFound  = "User not found"
	MsgWrongPassword = "Current password is incorrect"
	MsgNoImageStore  = "Image uploads are not configured"
)

type Profile struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	FullName        string    `json:"fullName"`
	ProfileImageURL string    `json:"profileImageUrl"`
	Role            auth.Role `json:"role"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func profileOf(u auth.User) Profile {
	return Profile{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		FullName:        u.FullName,
		ProfileImageURL: u.ProfileImageURL,
		Role:            u.Role,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

type Store interface {
	FindUserByID(ctx context.Context, id int64) (auth.User, error)
	FindUserByUsername(ctx context.Context, username string) (auth.User, error)
	UpdateProfile(ctx context.Context, u auth.User) (auth.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	DeleteUser(ctx context.Context, userID int64) error
}

type SessionRevoker interface {
	RevokeAllFor(ctx context.Context, userID int64) error
}

type Logger interface {
	Warn(message string, fields map[string]any)
}

type Service struct {
	users    Store
	sessions SessionRevoker
	hasher   auth.PasswordHasher
	images   media.Store
	folder   string
	logger   Logger
}

func NewService(users Store, sessions SessionRevoker, hasher auth.PasswordHasher, images media.Store, logger Logger) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		images:   images,
		folder:   media.ProfilesFolder,
		logger:   logger,
	}
}

// WithFolder overrides the image folder avatars go to.
func (s *Service) WithFolder(folder string) *Service {
	s.folder = folder
	return s
}

func (s *Service) Me(ctx context.Context, caller auth.Identity) (Profile, error) {
	u, err := s.current(ctx, caller)
	if err != nil {
		return Profile{}, err
	}
	return profileOf(u), nil
}

func (s *Service) ByUsername(ctx context.Context, username string) (Profile, error) {
	u, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return Profile{}, apperr.NotFound(MsgUserNotFound)
		}
		return Profile{}, err
	}
	return profileOf(u), nil
}

// UpdateProfile sets a non-blank full name and replaces the avatar when image
// is given. The previous avatar is deleted best effort.
func (s *Service) UpdateProfile(ctx context.Context, caller auth.Identity, fullName string, image *media.Image) (Profile, error) {
	current, err := s.current(ctx, caller)
	if err != nil {
		return Profile{}, err
	}

	next := current
	if name := strings.TrimSpace(fullName); name != "" {
		next.FullName = name
	}
	if image != nil {
		uploaded, err := s.images.Upload(ctx, *image, s.folder)
		if err != nil {
			if errors.Is(err, media.ErrNotConfigured) {
				return Profile{}, apperr.BadRequest(MsgNoImageStore)
			}
			return Profile{}, apperr.Unexpected(fmt.Errorf("upload profile image: %w", err))
		}
		next.ProfileImageURL, next.ProfileImagePublicID = uploaded.URL, uploaded.PublicID
	}

	updated, err := s.users.UpdateProfile(ctx, next)
	if err != nil {
		if next.ProfileImagePublicID != current.ProfileImagePublicID {
			s.discardImage(ctx, next.ProfileImagePublicID)
		}
		return Profile{}, s.notFound(err)
	}

	if next.ProfileImagePublicID != current.ProfileImagePublicID {
		s.discardImage(ctx, current.ProfileImagePublicID)
	}
	return profileOf(updated), nil
}

func (s *Service) ChangePassword(ctx context.Context, caller auth.Identity, currentPassword, newPassword string) error {
	u, err := s.current(ctx, caller)
	if err != nil {
		return err
	}

	if !s.hasher.Compare(u.PasswordHash, currentPassword) {
		return apperr.Unauthorized(MsgWrongPassword)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.notFound(s.users.UpdatePassword(ctx, u.ID, hash))
}

// DeleteAccount revokes every refresh token before removing the user so no
// session outlives the account on stores without cascading deletes.
func (s *Service) DeleteAccount(ctx context.Context, caller auth.Identity) error {
	u, err := s.current(ctx, caller)
	if err != nil {
		return err
	}

	if err := s.sessions.RevokeAllFor(ctx, u.ID); err != nil {
		return err
	}
	if err := s.users.DeleteUser(ctx, u.ID); err != nil {
		return s.notFound(err)
	}

	s.discardImage(ctx, u.ProfileImagePublicID)
	return nil
}

func (s *Service) current(ctx context.Context, caller auth.Identity) (auth.User, error) {
	u, err := s.users.FindUserByID(ctx, caller.ID)
	if err != nil {
		return auth.User{}, s.notFound(err)
	}
	return u, nil
}

func (s *Service) notFound(err error) error {
	if errors.Is(err, auth.ErrUserNotFound) {
		return apperr.NotFound(MsgUserNotFound)
	}
	return err
}

func (s *Service) discardImage(ctx context.Context, publicID string) {
	if publicID == "" {
		return
	}
	if err := s.images.Delete(ctx, publicID); err != nil && s.logger != nil {
		s.logger.Warn("image_delete_failed", map[string]any{
			"public_id": publicID,
			"error":     err.Error(),
		})
	}
}
