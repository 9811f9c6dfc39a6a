package store

import (
	"context"

	"github.com/mwantia/manifest/pkg/db/models"
)

// Tagging rule operations

func (s *SQLiteStore) CreateRule(ctx context.Context, rule *models.TaggingRule) error {
	return s.db.WithContext(ctx).Create(rule).Error
}

func (s *SQLiteStore) GetRule(ctx context.Context, id string) (*models.TaggingRule, error) {
	return first[models.TaggingRule](s.db.WithContext(ctx).Where("id = ?", id), "tagging rule %s", id)
}

func (s *SQLiteStore) ListRules(ctx context.Context, ownerID string) ([]models.TaggingRule, error) {
	var rules []models.TaggingRule
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&rules).Error
	return rules, err
}

func (s *SQLiteStore) ListAutoExecuteRules(ctx context.Context, ownerID string) ([]models.TaggingRule, error) {
	var rules []models.TaggingRule
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND is_active = ? AND auto_execute = ?", ownerID, true, true).
		Order("created_at ASC").
		Find(&rules).Error
	return rules, err
}

func (s *SQLiteStore) UpdateRule(ctx context.Context, rule *models.TaggingRule) error {
	return s.db.WithContext(ctx).Save(rule).Error
}

func (s *SQLiteStore) DeleteRule(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.TaggingRule{}, "id = ?", id).Error
}
