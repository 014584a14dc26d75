package models

import "github.com/google/uuid"

type UserSettings struct {
	BaseModel
	UserID              uuid.UUID `json:"userID" gorm:"type:uuid;uniqueIndex;not null"`
	Theme               string    `json:"theme" gorm:"type:varchar(20);not null;default:'system'"`
	Locale              string    `json:"locale" gorm:"type:varchar(5);not null;default:'en'"`
	EmailNotifications  bool      `json:"emailNotifications" gorm:"not null;default:true"`
	UploadNotifications bool      `json:"uploadNotifications" gorm:"not null;default:true"`
	PublicProfile       bool      `json:"publicProfile" gorm:"not null;default:false"`
	ShowStorageUsage    bool      `json:"showStorageUsage" gorm:"not null;default:true"`
	DefaultFolderView   string    `json:"defaultFolderView" gorm:"type:varchar(10);not null;default:'grid'"`
	TrashRetentionDays  int       `json:"trashRetentionDays" gorm:"not null;default:30"`

	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (UserSettings) TableName() string {
	return "user_settings"
}
