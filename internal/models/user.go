package models

import (
	"fmt"
	"strings"
	"time"
)

type UserRole string

const (
	RoleAdmin   UserRole = "administrator"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
)

// labels the legacy frontend submits
var roleAliases = map[string]UserRole{
	"مدير": RoleAdmin,
	"معلم": RoleTeacher,
	"طالب": RoleStudent,
}

// ParseRole accepts the canonical role names and the legacy Arabic labels.
func ParseRole(s string) (UserRole, error) {
	s = strings.TrimSpace(s)
	switch r := UserRole(strings.ToLower(s)); r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return r, nil
	}
	if r, ok := roleAliases[s]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the stored role values.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// User is one directory account. ID is the storage key and never leaves the
// service; UserID is the public identity.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"userId"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Password  string    `gorm:"not null" json:"-"`
	Role      UserRole  `gorm:"type:varchar(20);not null;index" json:"role"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
