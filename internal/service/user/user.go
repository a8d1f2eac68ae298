package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/paloma-health/paloma-server/internal/apperrors"
	"github.com/paloma-health/paloma-server/internal/models"
	"github.com/paloma-health/paloma-server/internal/repository"
	"github.com/paloma-health/paloma-server/internal/service/auth"
)

// UserService covers in-session profile management
type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage) (*UserService, error) {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
	}, nil
}

func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

func (s *UserService) UpdateEmail(ctx context.Context, userID uuid.UUID, email string) (models.User, error) {
	user, err := s.storage.User().UpdateEmail(ctx, userID, email)
	if err != nil {
		return user, err
	}

	return user, nil
}

func (s *UserService) UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (models.User, error) {
	user, err := s.storage.User().UpdateUsername(ctx, userID, username)
	if err != nil {
		return user, err
	}

	return user, nil
}

// UpdatePassword replaces the password after verifying the old one
func (s *UserService) UpdatePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error {
	user, err := s.storage.User().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.HashedPassword, oldPassword); err != nil {
		return apperrors.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password. Err: %w", err)
	}

	return s.storage.User().UpdatePassword(ctx, userID, hash)
}
