package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/signalix/accounts/internal/model"
)

var (
	// ErrNotFound is returned when no live user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrUserExists is returned when a live user already holds the email.
	ErrUserExists = errors.New("a user with this email already exists")
)

// pgUniqueViolation is the SQLSTATE postgres reports for a unique index conflict.
const pgUniqueViolation = "23505"

// UserRepo defines the interface for user repository operations.
// Soft-deleted users are invisible to every method.
type UserRepo interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	SetLastLoggedInAt(ctx context.Context, id uuid.UUID, watermark string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type userRepo struct {
	db *gorm.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *gorm.DB) UserRepo {
	return &userRepo{db: db}
}

// FindByEmail retrieves a user by email, case-insensitively.
func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("email = ?", model.NormalizeEmail(email)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	return &user, nil
}

// FindByID retrieves a user by ID
func (r *userRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// Create inserts user. The password must already be set through
// model.User.SetPassword.
func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update applies fields to the live user with the given id.
func (r *userRepo) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	updates := make(map[string]any, len(fields))
	for k, v := range fields {
		updates[k] = v
	}
	if email, ok := updates["email"].(string); ok {
		updates["email"] = model.NormalizeEmail(email)
	}
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLastLoggedInAt stores the session watermark. Tokens carrying an older
// watermark stop verifying once this returns.
func (r *userRepo) SetLastLoggedInAt(ctx context.Context, id uuid.UUID, watermark string) error {
	return r.Update(ctx, id, map[string]any{"last_logged_in_at": watermark})
}

// SoftDelete marks the user deleted. The row is kept.
func (r *userRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation recognises duplicate-key errors from both the lib/pq
// connection used in production and gorm's translated sqlite errors.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}
