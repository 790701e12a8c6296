package database

import (
	"context"
	"fmt"

	"user-directory/internal/models"

	"gorm.io/gorm"
)

type GormAuditStore struct {
	db *gorm.DB
}

func NewGormAuditStore(db *gorm.DB) *GormAuditStore {
	return &GormAuditStore{db: db}
}

func (s *GormAuditStore) Record(ctx context.Context, entry *models.AuditLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("record audit %s: %w", entry.Action, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *GormAuditStore) Recent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	if err := s.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return logs, nil
}
