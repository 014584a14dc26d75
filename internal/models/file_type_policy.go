package models

import "github.com/google/uuid"

// FileTypePolicy is the admin-managed per-MIME-type upload policy. A row
// here takes precedence over the built-in allow-list: IsAllowed gates the
// type and MaxFileSize, when set, caps the size below the global limit.
type FileTypePolicy struct {
	BaseModel
	MimeType         string     `json:"mimeType" gorm:"type:varchar(255);uniqueIndex;not null"`
	Extension        *string    `json:"extension,omitempty" gorm:"type:varchar(20)"`
	Category         string     `json:"category" gorm:"type:varchar(30);not null;index"`
	IsAllowed        bool       `json:"isAllowed" gorm:"not null;default:true;index"`
	MaxFileSize      *int64     `json:"maxFileSize,omitempty"`
	RequiresApproval bool       `json:"requiresApproval" gorm:"not null;default:false"`
	ScanOnUpload     bool       `json:"scanOnUpload" gorm:"not null;default:true"`
	GeneratePreview  bool       `json:"generatePreview" gorm:"not null;default:false"`
	DisplayName      *string    `json:"displayName,omitempty" gorm:"type:varchar(100)"`
	Icon             *string    `json:"icon,omitempty" gorm:"type:varchar(50)"`
	Color            *string    `json:"color,omitempty" gorm:"type:varchar(20)"`
	CreatedBy        *uuid.UUID `json:"createdBy,omitempty" gorm:"type:uuid"`
	UpdatedBy        *uuid.UUID `json:"updatedBy,omitempty" gorm:"type:uuid"`
}

func (FileTypePolicy) TableName() string {
	return "file_type_policies"
}
