package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// newID assigns a UUID to id when the caller did not provide one.
func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (i *StorageInstance) BeforeCreate(tx *gorm.DB) error {
	newID(&i.ID)
	return nil
}

func (s *Sample) BeforeCreate(tx *gorm.DB) error {
	newID(&s.ID)
	return nil
}

func (a *Annotation) BeforeCreate(tx *gorm.DB) error {
	newID(&a.ID)
	return nil
}

func (h *SampleHistory) BeforeCreate(tx *gorm.DB) error {
	newID(&h.ID)
	return nil
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	newID(&t.ID)
	return nil
}

func (r *TaggingRule) BeforeCreate(tx *gorm.DB) error {
	newID(&r.ID)
	return nil
}

func (d *Dataset) BeforeCreate(tx *gorm.DB) error {
	newID(&d.ID)
	return nil
}
