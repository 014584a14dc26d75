package models

import "github.com/google/uuid"

type Folder struct {
	BaseModel
	Name     string     `json:"name" gorm:"type:varchar(255);not null"`
	OwnerID  uuid.UUID  `json:"ownerID" gorm:"type:uuid;not null;index"`
	ParentID *uuid.UUID `json:"parentID,omitempty" gorm:"type:uuid;index"`

	Parent   *Folder  `json:"parent,omitempty" gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE"`
	Children []Folder `json:"children,omitempty" gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE"`
	Owner    User     `json:"-" gorm:"foreignKey:OwnerID;references:ID"`
	Files    []File   `json:"-" gorm:"foreignKey:FolderID;constraint:OnDelete:SET NULL"`

	FileCount  int64 `json:"fileCount" gorm:"-"`
	ChildCount int64 `json:"childCount" gorm:"-"`
}
