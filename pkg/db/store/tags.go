package store

import (
	"context"

	"github.com/mwantia/manifest/pkg/db/models"
	"gorm.io/gorm"
)

// Tag operations

func (s *SQLiteStore) CreateTag(ctx context.Context, tag *models.Tag) error {
	return s.db.WithContext(ctx).Create(tag).Error
}

func (s *SQLiteStore) GetTag(ctx context.Context, id string) (*models.Tag, error) {
	return first[models.Tag](s.db.WithContext(ctx).Where("id = ?", id), "tag %s", id)
}

func (s *SQLiteStore) FindTag(ctx context.Context, category models.TagCategory, ownerID, parentID *string, name string) (*models.Tag, error) {
	query := s.db.WithContext(ctx).Where("category = ? AND name = ?", category, name)
	query = nullable(query, "owner_id", ownerID)
	query = nullable(query, "parent_id", parentID)
	return first[models.Tag](query, "tag '%s'", name)
}

func nullable(query *gorm.DB, column string, value *string) *gorm.DB {
	if value == nil {
		return query.Where(column + " IS NULL")
	}
	return query.Where(column+" = ?", *value)
}

func (s *SQLiteStore) ListTags(ctx context.Context, category models.TagCategory) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.db.WithContext(ctx).
		Where("category = ?", category).
		Order("level ASC").Order("name ASC").
		Find(&tags).Error
	return tags, err
}

func (s *SQLiteStore) SearchTags(ctx context.Context, category models.TagCategory, query string, limit int) ([]models.Tag, error) {
	var tags []models.Tag
	pattern := "%" + query + "%"

	q := s.db.WithContext(ctx).
		Where("category = ?", category).
		Where(s.db.Session(&gorm.Session{NewDB: true}).Where("name LIKE ?", pattern).Or("full_path LIKE ?", pattern).Or("business_code LIKE ?", pattern)).
		Order("level ASC").Order("name ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	err := q.Find(&tags).Error
	return tags, err
}

func (s *SQLiteStore) FindTagByBusinessCode(ctx context.Context, code string) (*models.Tag, error) {
	return first[models.Tag](s.db.WithContext(ctx).
		Where("category = ? AND business_code = ?", models.CategoryBusiness, code),
		"business tag %s", code)
}

func (s *SQLiteStore) UpdateTag(ctx context.Context, tag *models.Tag) error {
	return s.db.WithContext(ctx).Save(tag).Error
}

func (s *SQLiteStore) DeleteTag(ctx context.Context, id string) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("tag_id = ?", id).Delete(&models.SampleTag{}).Error; err != nil {
		return err
	}
	return db.Delete(&models.Tag{}, "id = ?", id).Error
}

func (s *SQLiteStore) DeleteTagsByCategory(ctx context.Context, category models.TagCategory) error {
	db := s.db.WithContext(ctx)
	sub := db.Model(&models.Tag{}).Select("id").Where("category = ?", category)
	if err := db.Where("tag_id IN (?)", sub).Delete(&models.SampleTag{}).Error; err != nil {
		return err
	}
	return db.Where("category = ?", category).Delete(&models.Tag{}).Error
}

func (s *SQLiteStore) CountTaggedSamples(ctx context.Context, ownerID string, tagIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(tagIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		TagID string
		Count int
	}
	err := s.db.WithContext(ctx).
		Model(&models.SampleTag{}).
		Select("sample_tags.tag_id AS tag_id, COUNT(sample_tags.sample_id) AS count").
		Joins("JOIN samples ON samples.id = sample_tags.sample_id").
		Where("samples.owner_id = ? AND samples.status = ?", ownerID, models.SampleActive).
		Where("sample_tags.tag_id IN ?", tagIDs).
		Group("sample_tags.tag_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.TagID] = row.Count
	}
	return counts, nil
}

// Sample tag operations

func (s *SQLiteStore) HasSampleTag(ctx context.Context, sampleID, tagID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.SampleTag{}).
		Where("sample_id = ? AND tag_id = ?", sampleID, tagID).
		Count(&count).Error
	return count > 0, err
}

func (s *SQLiteStore) CreateSampleTag(ctx context.Context, sampleTag *models.SampleTag) error {
	return s.db.WithContext(ctx).Create(sampleTag).Error
}

func (s *SQLiteStore) DeleteSampleTag(ctx context.Context, sampleID, tagID string) error {
	return s.db.WithContext(ctx).
		Where("sample_id = ? AND tag_id = ?", sampleID, tagID).
		Delete(&models.SampleTag{}).Error
}

func (s *SQLiteStore) ListSampleTags(ctx context.Context, sampleID string) ([]models.SampleTag, error) {
	var tags []models.SampleTag
	err := s.db.WithContext(ctx).Where("sample_id = ?", sampleID).Order("created_at ASC").Find(&tags).Error
	return tags, err
}
