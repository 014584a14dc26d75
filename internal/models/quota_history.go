package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuotaHistory is an append-only record of storage quota changes.
type QuotaHistory struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID `json:"userID" gorm:"type:uuid;not null;index"`
	PreviousQuota int64     `json:"previousQuota" gorm:"not null"`
	NewQuota      int64     `json:"newQuota" gorm:"not null"`
	ChangedBy     uuid.UUID `json:"changedBy" gorm:"type:uuid;not null"`
	Reason        string    `json:"reason" gorm:"type:text;not null;default:''"`
	CreatedAt     time.Time `json:"createdAt" gorm:"not null;index"`
}

func (q *QuotaHistory) BeforeCreate(_ *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (QuotaHistory) TableName() string {
	return "quota_history"
}
