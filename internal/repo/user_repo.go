package repo

import (
	"context"
	"errors"

	"github.com/bookstore/services/storefront/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists is returned when the username or email is taken
	ErrUserAlreadyExists = errors.New("username or email already exists")
)

// UserRepository handles account storage
type UserRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(database *db.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:  database,
		log: logger,
	}
}

// CreateUser inserts a user unless the username or email is already taken.
func (r *UserRepository) CreateUser(ctx context.Context, user *db.User) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&db.User{}).
			Where("username = ? OR email = ?", user.Username, user.Email).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrUserAlreadyExists
		}
		return tx.Create(user).Error
	})
	if err != nil {
		if errors.Is(err, ErrUserAlreadyExists) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserAlreadyExists
		}
		r.log.Error("Failed to create user", zap.String("username", user.Username), zap.Error(err))
		return err
	}

	r.log.Info("User registered", zap.Uint("id", user.ID), zap.String("role", user.Role))
	return nil
}

// GetUser retrieves a user by id
func (r *UserRepository) GetUser(ctx context.Context, id uint) (*db.User, error) {
	var user db.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		r.log.Error("Failed to get user", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return &user, nil
}

// FindByLogin looks a user up by username or email.
func (r *UserRepository) FindByLogin(ctx context.Context, login string) (*db.User, error) {
	var user db.User
	err := r.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, login).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		r.log.Error("Failed to find user", zap.Error(err))
		return nil, err
	}
	return &user, nil
}

// ListUsers returns every user ordered by id
func (r *UserRepository) ListUsers(ctx context.Context) ([]*db.User, error) {
	var users []*db.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		r.log.Error("Failed to list users", zap.Error(err))
		return nil, err
	}
	return users, nil
}

// ProfileUpdate holds the profile fields to change; empty fields are kept.
type ProfileUpdate struct {
	Username      string
	Email         string
	ProfilePicURL string
}

// UpdateProfile applies update to the user and returns the stored result.
func (r *UserRepository) UpdateProfile(ctx context.Context, id uint, update ProfileUpdate) (*db.User, error) {
	var user db.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if update.Username != "" || update.Email != "" {
			var taken int64
			if err := tx.Model(&db.User{}).
				Where("id <> ?", id).
				Where("username = ? OR email = ?", update.Username, update.Email).
				Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				return ErrUserAlreadyExists
			}
		}

		if update.Username != "" {
			user.Username = update.Username
		}
		if update.Email != "" {
			user.Email = update.Email
		}
		if update.ProfilePicURL != "" {
			user.ProfilePicURL = update.ProfilePicURL
		}
		return tx.Save(&user).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return nil, err
		case errors.Is(err, ErrUserAlreadyExists), errors.Is(err, gorm.ErrDuplicatedKey):
			return nil, ErrUserAlreadyExists
		}
		r.log.Error("Failed to update profile", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	r.log.Info("Profile updated", zap.Uint("id", id))
	return &user, nil
}

// DeleteUser removes a user and, through the foreign key, their orders.
func (r *UserRepository) DeleteUser(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&db.User{}, id)
	if result.Error != nil {
		r.log.Error("Failed to delete user", zap.Uint("id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
