package models

import (
	"time"
)

// StorageInstance represents a MinIO endpoint whose buckets feed the catalog.
// Credentials are kept in the server configuration and never persisted.
type StorageInstance struct {
	ID       string `gorm:"primaryKey;type:text"`
	Name     string `gorm:"type:text;not null;uniqueIndex"`
	Endpoint string `gorm:"type:text;not null"`
	Secure   bool   `gorm:"default:false"`
	OwnerID  string `gorm:"type:text;not null;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
