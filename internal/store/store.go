package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"authsvc/internal/models"
)

var (
	// ErrDuplicateEmail is returned when an insert collides with an existing
	// email. The unique index enforces this even under concurrent registers.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrUserNotFound is returned by lookups that match no row.
	ErrUserNotFound = errors.New("user not found")
)

// UserStore is the persistence capability the flows consume.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	ByEmail(ctx context.Context, email string) (*models.User, error)
	ByVerificationToken(ctx context.Context, token string) (*models.User, error)
	// MarkVerified sets is_verified and clears the token fields in one update.
	MarkVerified(ctx context.Context, email string) error
	Delete(ctx context.Context, email string) error
}

type gormStore struct {
	db *gorm.DB
}

// New wraps a gorm connection in the UserStore interface.
func New(db *gorm.DB) UserStore {
	return &gormStore{db: db}
}

func (s *gormStore) Create(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *gormStore) ByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *gormStore) ByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("verification_token = ?", token).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *gormStore) MarkVerified(ctx context.Context, email string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).
		Updates(map[string]interface{}{
			"is_verified":        true,
			"verification_token": nil,
			"token_expires_at":   nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *gormStore) Delete(ctx context.Context, email string) error {
	return s.db.WithContext(ctx).Where("email = ?", email).Delete(&models.User{}).Error
}
