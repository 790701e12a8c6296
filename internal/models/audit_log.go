package models

import "time"

const (
	AuditUserCreated      = "user_created"
	AuditAdminBootstrap   = "admin_bootstrap"
	AuditPasswordUpgraded = "password_upgraded"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	UserID  int64  `gorm:"index" json:"userId"`
	Action  string `gorm:"size:50;not null" json:"action"`
	Details string `gorm:"type:text" json:"details"`
}
