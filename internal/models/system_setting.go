package models

import "github.com/google/uuid"

// SystemSetting is one key of the flat configuration store. Keys are
// grouped into categories by prefix ("files.trash_retention_days" lives
// in category "files").
type SystemSetting struct {
	BaseModel
	Key         string     `json:"key" gorm:"type:varchar(100);uniqueIndex;not null"`
	Value       string     `json:"value" gorm:"type:text;not null"`
	Category    string     `json:"category" gorm:"type:varchar(50);not null;index"`
	Description *string    `json:"description,omitempty" gorm:"type:text"`
	IsPublic    bool       `json:"isPublic" gorm:"not null;default:false"`
	UpdatedBy   *uuid.UUID `json:"updatedBy,omitempty" gorm:"type:uuid"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}

// SettingCategory derives the pseudo-category from a key prefix.
func SettingCategory(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return key[:i]
		}
	}
	return "general"
}
