package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LoginStatus string

const (
	LoginStatusSuccess LoginStatus = "success"
	LoginStatusFailed  LoginStatus = "failed"
)

// LoginHistory is an append-only record of authentication attempts.
type LoginHistory struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID   `json:"userID" gorm:"type:uuid;not null;index"`
	Status    LoginStatus `json:"status" gorm:"type:varchar(10);not null"`
	IP        string      `json:"ip" gorm:"type:varchar(45);not null;default:''"`
	UserAgent string      `json:"userAgent" gorm:"type:text;not null;default:''"`
	Device    string      `json:"device" gorm:"type:varchar(50);not null;default:'Unknown Device'"`
	Location  *string     `json:"location,omitempty" gorm:"type:varchar(100)"`
	CreatedAt time.Time   `json:"createdAt" gorm:"not null;index"`
}

func (l *LoginHistory) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (LoginHistory) TableName() string {
	return "login_history"
}
