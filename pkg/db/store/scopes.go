package store

import (
	"github.com/mwantia/manifest/pkg/db/models"
	"gorm.io/gorm"
)

// WithAnnotation preloads the linked annotation of every sample.
func WithAnnotation(db *gorm.DB) *gorm.DB {
	return db.Preload("Annotation")
}

// OrderByCreated gives sample queries a stable order.
func OrderByCreated(db *gorm.DB) *gorm.DB {
	return db.Order("samples.created_at ASC").Order("samples.id ASC")
}

func OwnedBy(ownerID string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("samples.owner_id = ?", ownerID)
	}
}

func WithAnnotationStatus(status string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("samples.annotation_status = ?", status)
	}
}

func Paginate(skip, limit int) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if skip > 0 {
			db = db.Offset(skip)
		}
		if limit > 0 {
			db = db.Limit(limit)
		}
		return db
	}
}

// NotInDataset drops current members of datasetID. An empty id keeps
// every sample.
func NotInDataset(datasetID string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if datasetID == "" {
			return db
		}
		return db.Where("samples.id NOT IN (SELECT sample_id FROM dataset_samples WHERE dataset_id = ?)", datasetID)
	}
}

func Active(db *gorm.DB) *gorm.DB {
	return db.Where("samples.status = ?", models.SampleActive)
}

// InBucket limits samples to one bucket of a storage instance, optionally
// under a key prefix.
func InBucket(instanceID, bucket, prefix string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("samples.storage_instance_id = ? AND samples.bucket = ?", instanceID, bucket)
		if prefix != "" {
			db = db.Where("instr(samples.object_key, ?) = 1", prefix)
		}
		return db
	}
}

func WithIDs(ids []string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("samples.id IN ?", ids)
	}
}
