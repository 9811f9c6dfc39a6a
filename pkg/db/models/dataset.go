package models

import (
	"time"
)

// Dataset is a named selection of samples
type Dataset struct {
	ID          string `gorm:"primaryKey;type:text"`
	Name        string `gorm:"type:text;not null;index"`
	Description string `gorm:"type:text"`
	OwnerID     string `gorm:"type:text;not null;index"`

	// SampleCount mirrors the number of dataset_samples rows
	SampleCount int `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type DatasetSample struct {
	DatasetID string `gorm:"primaryKey;type:text"`
	SampleID  string `gorm:"primaryKey;type:text;index"`

	CreatedAt time.Time
}
