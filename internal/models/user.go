package models

import (
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
	UserRoleGuest UserRole = "guest"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusDisabled  AccountStatus = "disabled"
)

// DefaultStorageQuotaBytes is the quota assigned to new accounts (10GB).
const DefaultStorageQuotaBytes int64 = 10 * 1024 * 1024 * 1024

type User struct {
	BaseModel
	Email             string        `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash      string        `json:"-" gorm:"type:text;not null"`
	Name              string        `json:"name" gorm:"type:varchar(100);not null;default:''"`
	Locale            string        `json:"locale" gorm:"type:varchar(5);not null;default:'en'"`
	Role              UserRole      `json:"role" gorm:"type:varchar(20);not null;default:'user';index"`
	AvatarURL         *string       `json:"avatarURL,omitempty" gorm:"type:text"`
	AccountStatus     AccountStatus `json:"accountStatus" gorm:"type:varchar(20);not null;default:'active';index"`
	SuspendedAt       *time.Time    `json:"suspendedAt,omitempty"`
	SuspendedBy       *uuid.UUID    `json:"suspendedBy,omitempty" gorm:"type:uuid"`
	SuspendedReason   *string       `json:"suspendedReason,omitempty" gorm:"type:text"`
	StorageQuotaBytes int64         `json:"storageQuotaBytes" gorm:"not null;default:10737418240"`
	UsedStorageBytes  int64         `json:"usedStorageBytes" gorm:"not null;default:0"`
	LastLoginAt       *time.Time    `json:"lastLoginAt,omitempty"`

	Folders []Folder `json:"-" gorm:"foreignKey:OwnerID"`
	Files   []File   `json:"-" gorm:"foreignKey:OwnerID"`
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u.AccountStatus == AccountStatusActive
}
