package store

import (
	"context"

	"github.com/mwantia/manifest/pkg/db/models"
)

// Storage instance operations

func (s *SQLiteStore) CreateStorageInstance(ctx context.Context, instance *models.StorageInstance) error {
	return s.db.WithContext(ctx).Create(instance).Error
}

func (s *SQLiteStore) GetStorageInstance(ctx context.Context, id string) (*models.StorageInstance, error) {
	return first[models.StorageInstance](s.db.WithContext(ctx).Where("id = ?", id), "storage instance %s", id)
}

func (s *SQLiteStore) GetStorageInstanceByName(ctx context.Context, name string) (*models.StorageInstance, error) {
	return first[models.StorageInstance](s.db.WithContext(ctx).Where("name = ?", name), "storage instance '%s'", name)
}

func (s *SQLiteStore) ListStorageInstances(ctx context.Context) ([]models.StorageInstance, error) {
	var instances []models.StorageInstance
	err := s.db.WithContext(ctx).Order("name").Find(&instances).Error
	return instances, err
}

func (s *SQLiteStore) UpdateStorageInstance(ctx context.Context, instance *models.StorageInstance) error {
	return s.db.WithContext(ctx).Save(instance).Error
}

// Sample operations

func (s *SQLiteStore) CreateSample(ctx context.Context, sample *models.Sample) error {
	return s.db.WithContext(ctx).Omit("Annotation").Create(sample).Error
}

func (s *SQLiteStore) GetSample(ctx context.Context, id string) (*models.Sample, error) {
	return first[models.Sample](s.db.WithContext(ctx).Preload("Annotation").Where("id = ?", id), "sample %s", id)
}

func (s *SQLiteStore) GetSampleByPath(ctx context.Context, instanceID, bucket, objectKey string) (*models.Sample, error) {
	return first[models.Sample](s.db.WithContext(ctx).
		Where("storage_instance_id = ? AND bucket = ? AND object_key = ?", instanceID, bucket, objectKey),
		"sample %s/%s", bucket, objectKey)
}

func (s *SQLiteStore) FindActiveSampleByHash(ctx context.Context, ownerID, fileHash string) (*models.Sample, error) {
	return first[models.Sample](s.db.WithContext(ctx).
		Where("owner_id = ? AND file_hash = ? AND status = ?", ownerID, fileHash, models.SampleActive).
		Order("created_at ASC"),
		"sample with hash %s", fileHash)
}

func (s *SQLiteStore) FindActiveSampleByStem(ctx context.Context, instanceID, bucket, fileStem string) (*models.Sample, error) {
	return first[models.Sample](s.db.WithContext(ctx).
		Where("storage_instance_id = ? AND bucket = ? AND file_stem = ? AND status = ?", instanceID, bucket, fileStem, models.SampleActive).
		Order("created_at ASC").Order("id ASC"),
		"sample with stem %s", fileStem)
}

func (s *SQLiteStore) FindSampleByAnnotationKey(ctx context.Context, instanceID, bucket, annotationKey string) (*models.Sample, error) {
	return first[models.Sample](s.db.WithContext(ctx).
		Where("storage_instance_id = ? AND bucket = ? AND annotation_key = ?", instanceID, bucket, annotationKey),
		"sample with annotation %s", annotationKey)
}

func (s *SQLiteStore) UpdateSample(ctx context.Context, sample *models.Sample) error {
	return s.db.WithContext(ctx).Omit("Annotation").Save(sample).Error
}

func (s *SQLiteStore) FindSamples(ctx context.Context, scopes ...Scope) ([]*models.Sample, error) {
	var samples []*models.Sample
	err := s.db.WithContext(ctx).Model(&models.Sample{}).Scopes(scopes...).Find(&samples).Error
	return samples, err
}

func (s *SQLiteStore) CountSamples(ctx context.Context, scopes ...Scope) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Sample{}).Scopes(scopes...).Count(&count).Error
	return count, err
}

// Annotation operations

func (s *SQLiteStore) CreateAnnotation(ctx context.Context, annotation *models.Annotation) error {
	return s.db.WithContext(ctx).Create(annotation).Error
}

func (s *SQLiteStore) GetAnnotationBySample(ctx context.Context, sampleID string) (*models.Annotation, error) {
	return first[models.Annotation](s.db.WithContext(ctx).Where("sample_id = ?", sampleID), "annotation of sample %s", sampleID)
}

func (s *SQLiteStore) DeleteAnnotationBySample(ctx context.Context, sampleID string) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("sample_id = ?", sampleID).Delete(&models.AnnotationClass{}).Error; err != nil {
		return err
	}
	return db.Where("sample_id = ?", sampleID).Delete(&models.Annotation{}).Error
}

func (s *SQLiteStore) ListAnnotationsBySamples(ctx context.Context, sampleIDs []string) ([]models.Annotation, error) {
	var annotations []models.Annotation
	if len(sampleIDs) == 0 {
		return annotations, nil
	}

	// Chunk to stay below the SQLite variable limit
	for start := 0; start < len(sampleIDs); start += 500 {
		end := min(start+500, len(sampleIDs))

		var chunk []models.Annotation
		if err := s.db.WithContext(ctx).Where("sample_id IN ?", sampleIDs[start:end]).Find(&chunk).Error; err != nil {
			return nil, err
		}
		annotations = append(annotations, chunk...)
	}
	return annotations, nil
}

// History operations

func (s *SQLiteStore) CreateHistory(ctx context.Context, history *models.SampleHistory) error {
	return s.db.WithContext(ctx).Create(history).Error
}

func (s *SQLiteStore) ListHistory(ctx context.Context, sampleID string) ([]models.SampleHistory, error) {
	var history []models.SampleHistory
	err := s.db.WithContext(ctx).Where("sample_id = ?", sampleID).Order("created_at ASC").Find(&history).Error
	return history, err
}

var _ MetadataStore = (*SQLiteStore)(nil)
