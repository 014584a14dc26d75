package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// File is a stored object's metadata row. The bytes live on local disk
// under StorageKey. Deletion is a soft delete: the row keeps its
// DeletedAt timestamp and the bytes stay until the trash purger runs.
type File struct {
	BaseModel
	Name       string                 `json:"name" gorm:"type:varchar(255);not null"`
	MimeType   string                 `json:"mimeType" gorm:"type:varchar(255);not null"`
	Size       int64                  `json:"size" gorm:"not null;default:0"`
	OwnerID    uuid.UUID              `json:"ownerID" gorm:"type:uuid;not null;index"`
	FolderID   *uuid.UUID             `json:"folderID,omitempty" gorm:"type:uuid;index"`
	StorageKey string                 `json:"storageKey" gorm:"type:text;not null"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	DeletedAt  gorm.DeletedAt         `json:"deletedAt,omitempty" gorm:"index"`

	// Deleting a folder detaches its remaining (trashed) files instead
	// of tripping the foreign key.
	Folder *Folder `json:"folder,omitempty" gorm:"foreignKey:FolderID;constraint:OnDelete:SET NULL"`
	Owner  User    `json:"-" gorm:"foreignKey:OwnerID;references:ID"`
}
