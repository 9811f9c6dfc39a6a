package models

import (
	"time"
)

type TagCategory string

const (
	CategorySystem   TagCategory = "system"
	CategoryBusiness TagCategory = "business"
	CategoryUser     TagCategory = "user"
)

type SystemTagType string

const (
	SystemFileType         SystemTagType = "file_type"
	SystemSource           SystemTagType = "source"
	SystemAnnotationStatus SystemTagType = "annotation_status"
)

// Tag represents a hierarchical label; the tree is stored as parent ids
type Tag struct {
	ID          string      `gorm:"primaryKey;type:text"`
	Name        string      `gorm:"type:text;not null;index"`
	Color       string      `gorm:"type:text"`
	Description string      `gorm:"type:text"`
	Category    TagCategory `gorm:"type:text;not null;default:user;index"`

	// Global tags (system and business) have no owner
	OwnerID  *string `gorm:"type:text;index"`
	ParentID *string `gorm:"type:text;index"`

	IsSystemManaged bool          `gorm:"default:false"`
	SystemTagType   SystemTagType `gorm:"type:text"`
	BusinessCode    string        `gorm:"type:text;index"`
	Level           int           `gorm:"default:0"`
	FullPath        string        `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Global reports whether the tag is shared by every owner.
func (t *Tag) Global() bool {
	return t.OwnerID == nil
}

// SampleTag associates a tag with a sample
type SampleTag struct {
	SampleID string `gorm:"primaryKey;type:text"`
	TagID    string `gorm:"primaryKey;type:text;index"`

	CreatedAt time.Time
}
