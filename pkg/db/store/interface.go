package store

import (
	"context"

	"github.com/mwantia/manifest/pkg/db/models"
	"gorm.io/gorm"
)

// Scope narrows a sample query; filter.Query and the helpers in this package produce them.
type Scope = func(*gorm.DB) *gorm.DB

// MetadataStore defines the interface for catalog operations
type MetadataStore interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	Health(ctx context.Context) error

	// Transaction runs fn against a store bound to a single database transaction.
	Transaction(ctx context.Context, fn func(tx MetadataStore) error) error

	// Storage instance operations
	CreateStorageInstance(ctx context.Context, instance *models.StorageInstance) error
	GetStorageInstance(ctx context.Context, id string) (*models.StorageInstance, error)
	GetStorageInstanceByName(ctx context.Context, name string) (*models.StorageInstance, error)
	ListStorageInstances(ctx context.Context) ([]models.StorageInstance, error)
	UpdateStorageInstance(ctx context.Context, instance *models.StorageInstance) error

	// Sample operations
	CreateSample(ctx context.Context, sample *models.Sample) error
	GetSample(ctx context.Context, id string) (*models.Sample, error)
	GetSampleByPath(ctx context.Context, instanceID, bucket, objectKey string) (*models.Sample, error)
	FindActiveSampleByHash(ctx context.Context, ownerID, fileHash string) (*models.Sample, error)
	FindActiveSampleByStem(ctx context.Context, instanceID, bucket, fileStem string) (*models.Sample, error)
	FindSampleByAnnotationKey(ctx context.Context, instanceID, bucket, annotationKey string) (*models.Sample, error)
	UpdateSample(ctx context.Context, sample *models.Sample) error
	FindSamples(ctx context.Context, scopes ...Scope) ([]*models.Sample, error)
	CountSamples(ctx context.Context, scopes ...Scope) (int64, error)

	// Annotation operations
	CreateAnnotation(ctx context.Context, annotation *models.Annotation) error
	GetAnnotationBySample(ctx context.Context, sampleID string) (*models.Annotation, error)
	DeleteAnnotationBySample(ctx context.Context, sampleID string) error
	ListAnnotationsBySamples(ctx context.Context, sampleIDs []string) ([]models.Annotation, error)

	// History operations
	CreateHistory(ctx context.Context, history *models.SampleHistory) error
	ListHistory(ctx context.Context, sampleID string) ([]models.SampleHistory, error)

	// Tag operations
	CreateTag(ctx context.Context, tag *models.Tag) error
	GetTag(ctx context.Context, id string) (*models.Tag, error)
	FindTag(ctx context.Context, category models.TagCategory, ownerID, parentID *string, name string) (*models.Tag, error)
	ListTags(ctx context.Context, category models.TagCategory) ([]models.Tag, error)
	SearchTags(ctx context.Context, category models.TagCategory, query string, limit int) ([]models.Tag, error)
	FindTagByBusinessCode(ctx context.Context, code string) (*models.Tag, error)
	UpdateTag(ctx context.Context, tag *models.Tag) error
	DeleteTag(ctx context.Context, id string) error
	DeleteTagsByCategory(ctx context.Context, category models.TagCategory) error
	CountTaggedSamples(ctx context.Context, ownerID string, tagIDs []string) (map[string]int, error)

	// Sample tag operations
	HasSampleTag(ctx context.Context, sampleID, tagID string) (bool, error)
	CreateSampleTag(ctx context.Context, sampleTag *models.SampleTag) error
	DeleteSampleTag(ctx context.Context, sampleID, tagID string) error
	ListSampleTags(ctx context.Context, sampleID string) ([]models.SampleTag, error)

	// Tagging rule operations
	CreateRule(ctx context.Context, rule *models.TaggingRule) error
	GetRule(ctx context.Context, id string) (*models.TaggingRule, error)
	ListRules(ctx context.Context, ownerID string) ([]models.TaggingRule, error)
	ListAutoExecuteRules(ctx context.Context, ownerID string) ([]models.TaggingRule, error)
	UpdateRule(ctx context.Context, rule *models.TaggingRule) error
	DeleteRule(ctx context.Context, id string) error

	// Dataset operations
	CreateDataset(ctx context.Context, dataset *models.Dataset) error
	GetDataset(ctx context.Context, id string) (*models.Dataset, error)
	UpdateDataset(ctx context.Context, dataset *models.Dataset) error
	DeleteDataset(ctx context.Context, id string) error
	AddDatasetSamples(ctx context.Context, datasetID string, sampleIDs []string) (int, error)
	RemoveDatasetSamples(ctx context.Context, datasetID string, sampleIDs []string) (int, error)
	ListDatasetSampleIDs(ctx context.Context, datasetID string) ([]string, error)
	CountDatasetSamples(ctx context.Context, datasetID string) (int64, error)
}
