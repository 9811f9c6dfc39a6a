package store

import (
	"context"

	"github.com/mwantia/manifest/pkg/db/models"
	"gorm.io/gorm/clause"
)

// Dataset operations

func (s *SQLiteStore) CreateDataset(ctx context.Context, dataset *models.Dataset) error {
	return s.db.WithContext(ctx).Create(dataset).Error
}

func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	return first[models.Dataset](s.db.WithContext(ctx).Where("id = ?", id), "dataset %s", id)
}

func (s *SQLiteStore) UpdateDataset(ctx context.Context, dataset *models.Dataset) error {
	return s.db.WithContext(ctx).Save(dataset).Error
}

func (s *SQLiteStore) DeleteDataset(ctx context.Context, id string) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("dataset_id = ?", id).Delete(&models.DatasetSample{}).Error; err != nil {
		return err
	}
	return db.Delete(&models.Dataset{}, "id = ?", id).Error
}

// AddDatasetSamples inserts the missing associations and returns how many were new.
func (s *SQLiteStore) AddDatasetSamples(ctx context.Context, datasetID string, sampleIDs []string) (int, error) {
	if len(sampleIDs) == 0 {
		return 0, nil
	}

	rows := make([]models.DatasetSample, 0, len(sampleIDs))
	for _, id := range sampleIDs {
		rows = append(rows, models.DatasetSample{DatasetID: datasetID, SampleID: id})
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 200)
	return int(result.RowsAffected), result.Error
}

func (s *SQLiteStore) RemoveDatasetSamples(ctx context.Context, datasetID string, sampleIDs []string) (int, error) {
	if len(sampleIDs) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Where("dataset_id = ? AND sample_id IN ?", datasetID, sampleIDs).
		Delete(&models.DatasetSample{})
	return int(result.RowsAffected), result.Error
}

func (s *SQLiteStore) ListDatasetSampleIDs(ctx context.Context, datasetID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.DatasetSample{}).
		Where("dataset_id = ?", datasetID).
		Order("created_at ASC").
		Pluck("sample_id", &ids).Error
	return ids, err
}

func (s *SQLiteStore) CountDatasetSamples(ctx context.Context, datasetID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.DatasetSample{}).Where("dataset_id = ?", datasetID).Count(&count).Error
	return count, err
}
