package sample

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"samples-backend/internal/apperr"
	"samples-backend/internal/auth"
	"samples-backend/internal/media"
)

const (
	MsgNotFound     = "Sample not found"
	MsgUserNotFound = "User not found"
	MsgNoPermission = "You don't have permission to access this resource"
	MsgNoImageStore = "Image uploads are not configured"
)

type Repository interface {
	Create(ctx context.Context, s Sample) (Sample, error)
	FindByID(ctx context.Context, id int64) (Sample, error)
	List(ctx context.Context, page, size int) ([]Sample, int64, error)
	ListByUser(ctx context.Context, userID int64, page, size int) ([]Sample, int64, error)
	ListAllByUser(ctx context.Context, userID int64) ([]Sample, error)
	Update(ctx context.Context, s Sample) (Sample, error)
	Delete(ctx context.Context, id int64) error
}

type UserFinder interface {
	FindUserByID(ctx context.Context, id int64) (auth.User, error)
}

type Logger interface {
	Warn(message string, fields map[string]any)
}

type Service struct {
	repo   Repository
	users  UserFinder
	images media.Store
	folder string
	logger Logger
}

func NewService(repo Repository, users UserFinder, images media.Store, logger Logger) *Service {
	return &Service{repo: repo, users: users, images: images, folder: media.SamplesFolder, logger: logger}
}

// WithFolder overrides the image folder sample uploads go to.
func (s *Service) WithFolder(folder string) *Service {
	s.folder = folder
	return s
}

type CreateInput struct {
	Name        string
	Description string
	Image       *media.Image
}

// UpdateInput changes only what is set: a blank Name and a nil Description
// or Image leave the stored value alone.
type UpdateInput struct {
	Name        string
	Description *string
	Image       *media.Image
}

func (s *Service) Create(ctx context.Context, owner auth.Identity, in CreateInput) (Sample, error) {
	record := Sample{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		UserID:      owner.ID,
	}

	if in.Image != nil {
		uploaded, err := s.upload(ctx, *in.Image)
		if err != nil {
			return Sample{}, err
		}
		record.ImageURL, record.ImagePublicID = uploaded.URL, uploaded.PublicID
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		s.discardImage(ctx, record.ImagePublicID)
		return Sample{}, err
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Sample, error) {
	found, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Sample{}, apperr.NotFound(MsgNotFound)
		}
		return Sample{}, err
	}
	return found, nil
}

func (s *Service) List(ctx context.Context, page, size int) (Page[Sample], error) {
	samples, total, err := s.repo.List(ctx, page, size)
	if err != nil {
		return Page[Sample]{}, err
	}
	return NewPage(samples, page, size, total), nil
}

func (s *Service) Mine(ctx context.Context, owner auth.Identity) ([]Sample, error) {
	return s.repo.ListAllByUser(ctx, owner.ID)
}

func (s *Service) ByUser(ctx context.Context, userID int64, page, size int) (Page[Sample], error) {
	if _, err := s.users.FindUserByID(ctx, userID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return Page[Sample]{}, apperr.NotFound(MsgUserNotFound)
		}
		return Page[Sample]{}, err
	}

	samples, total, err := s.repo.ListByUser(ctx, userID, page, size)
	if err != nil {
		return Page[Sample]{}, err
	}
	return NewPage(samples, page, size, total), nil
}

// Update uploads a replacement image before touching the record, so a failed
// upload leaves the sample unchanged. The previous image is removed afterwards.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id int64, in UpdateInput) (Sample, error) {
	current, err := s.owned(ctx, caller, id)
	if err != nil {
		return Sample{}, err
	}

	next := current
	if name := strings.TrimSpace(in.Name); name != "" {
		next.Name = name
	}
	if in.Description != nil {
		next.Description = strings.TrimSpace(*in.Description)
	}
	if in.Image != nil {
		uploaded, err := s.upload(ctx, *in.Image)
		if err != nil {
			return Sample{}, err
		}
		next.ImageURL, next.ImagePublicID = uploaded.URL, uploaded.PublicID
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		if next.ImagePublicID != current.ImagePublicID {
			s.discardImage(ctx, next.ImagePublicID)
		}
		if errors.Is(err, ErrNotFound) {
			return Sample{}, apperr.NotFound(MsgNotFound)
		}
		return Sample{}, err
	}

	if next.ImagePublicID != current.ImagePublicID {
		s.discardImage(ctx, current.ImagePublicID)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, caller auth.Identity, id int64) error {
	current, err := s.owned(ctx, caller, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound(MsgNotFound)
		}
		return err
	}

	s.discardImage(ctx, current.ImagePublicID)
	return nil
}

func (s *Service) owned(ctx context.Context, caller auth.Identity, id int64) (Sample, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Sample{}, err
	}
	if current.UserID != caller.ID {
		return Sample{}, apperr.Unauthorized(MsgNoPermission)
	}
	return current, nil
}

func (s *Service) upload(ctx context.Context, img media.Image) (media.Uploaded, error) {
	uploaded, err := s.images.Upload(ctx, img, s.folder)
	if err != nil {
		if errors.Is(err, media.ErrNotConfigured) {
			return media.Uploaded{}, apperr.BadRequest(MsgNoImageStore)
		}
		return media.Uploaded{}, apperr.Unexpected(fmt.Errorf("upload sample image: %w", err))
	}
	return uploaded, nil
}

// discardImage deletes a hosted image without failing the caller.
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
