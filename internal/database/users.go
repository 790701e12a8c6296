package database

import (
	"context"
	"errors"
	"fmt"

	"user-directory/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

// GormUserStore keeps users in the "users" table. user_id carries a unique
// index, which is the only guard against two concurrent creates picking the
// same id.
type GormUserStore struct {
	db *gorm.DB
}

func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *GormUserStore) FindByUserID(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", userID, err)
	}
	return &user, nil
}

// MaxUserID returns the highest assigned user id; ok is false on an empty table.
func (s *GormUserStore) MaxUserID(ctx context.Context) (int64, bool, error) {
	var last models.User
	err := s.db.WithContext(ctx).Order("user_id desc").Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("max user id: %w", err)
	}
	return last.UserID, true, nil
}

func (s *GormUserStore) Create(ctx context.Context, user *models.User) error {
	if !user.Role.Valid() {
		return fmt.Errorf("create user %d: %w %q", user.UserID, ErrInvalidRole, user.Role)
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %d: %w", user.UserID, ErrDuplicateUserID)
		}
		return fmt.Errorf("create user %d: %w", user.UserID, err)
	}
	return nil
}

func (s *GormUserStore) UpdatePassword(ctx context.Context, userID int64, hash string) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("user_id = ?", userID).
		Update("password", hash)
	if res.Error != nil {
		return fmt.Errorf("update password for %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormUserStore) CountByRole(ctx context.Context, role models.UserRole) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ?", role).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count %s users: %w", role, err)
	}
	return count, nil
}

func (s *GormUserStore) Ping(ctx context.Context) error {
	return ping(ctx, s.db)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
