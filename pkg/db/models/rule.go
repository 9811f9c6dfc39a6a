package models

import (
	"time"

	"gorm.io/datatypes"
)

type RuleType string

const (
	// RuleFixed applies a fixed set of tags to every matching sample.
	RuleFixed RuleType = "fixed"
	// RuleMapping maps annotation class names to tags.
	RuleMapping RuleType = "mapping"
)

// TaggingRule matches Pattern against "{bucket}/{object_key}"
type TaggingRule struct {
	ID          string   `gorm:"primaryKey;type:text"`
	Name        string   `gorm:"type:text;not null"`
	Description string   `gorm:"type:text"`
	OwnerID     string   `gorm:"type:text;not null;index"`
	RuleType    RuleType `gorm:"type:text;not null;default:fixed"`
	Pattern     string   `gorm:"type:text;not null"`

	TagIDs          datatypes.JSONType[[]string]          `gorm:"type:json"`
	ClassTagMapping datatypes.JSONType[map[string]string] `gorm:"type:json"`

	IsActive    bool `gorm:"not null"`
	AutoExecute bool `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
