package models

import (
	"time"
)

type SampleStatus string

const (
	SampleActive   SampleStatus = "active"
	SampleDeleted  SampleStatus = "deleted"
	SampleArchived SampleStatus = "archived"
)

type AnnotationStatus string

const (
	AnnotationNone     AnnotationStatus = "none"
	AnnotationLinked   AnnotationStatus = "linked"
	AnnotationConflict AnnotationStatus = "conflict"
	AnnotationError    AnnotationStatus = "error"
)

func (s AnnotationStatus) Valid() bool {
	switch s {
	case AnnotationNone, AnnotationLinked, AnnotationConflict, AnnotationError:
		return true
	}
	return false
}

type SampleSource string

const (
	SourceWebhook SampleSource = "webhook"
	SourceSync    SampleSource = "sync"
	SourceImport  SampleSource = "import"
	SourceManual  SampleSource = "manual"
)

// Sample represents one object-store file in the catalog
type Sample struct {
	ID                string `gorm:"primaryKey;type:text"`
	StorageInstanceID string `gorm:"type:text;not null;uniqueIndex:idx_sample_path"`
	Bucket            string `gorm:"type:text;not null;uniqueIndex:idx_sample_path"`
	ObjectKey         string `gorm:"type:text;not null;uniqueIndex:idx_sample_path"`
	OwnerID           string `gorm:"type:text;not null;index"`

	// File metadata
	FileName    string `gorm:"type:text;not null"`
	FileSize    int64  `gorm:"not null;default:0"`
	ContentType string `gorm:"type:text"`
	ETag        string `gorm:"type:text"`
	FileHash    string `gorm:"type:text;index"`
	FileStem    string `gorm:"type:text;index"`

	// Annotation link state; the annotation itself is found through Annotation.SampleID
	AnnotationKey    string           `gorm:"type:text;index"`
	AnnotationHash   string           `gorm:"type:text"`
	AnnotationStatus AnnotationStatus `gorm:"type:text;not null;default:none;index"`

	Status SampleStatus `gorm:"type:text;not null;default:active;index"`
	Source SampleSource `gorm:"type:text;not null;default:manual"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
	DeletedAt *time.Time

	// Relationships
	Annotation *Annotation `gorm:"foreignKey:SampleID;constraint:OnDelete:CASCADE"`
}

// FullPath is the string tagging rule patterns are matched against.
func (s *Sample) FullPath() string {
	return s.Bucket + "/" + s.ObjectKey
}

// ClassCounts returns the per-class object counts of the linked annotation,
// or nil when the sample has none loaded.
func (s *Sample) ClassCounts() ClassCounts {
	if s.Annotation == nil {
		return nil
	}
	return s.Annotation.ClassCounts.Data()
}
