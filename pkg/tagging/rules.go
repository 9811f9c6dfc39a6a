package tagging

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/errdefs"
	"gorm.io/datatypes"
)

type RuleInput struct {
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	RuleType        models.RuleType   `json:"rule_type,omitempty"`
	Pattern         string            `json:"pattern"`
	TagIDs          []string          `json:"tag_ids,omitempty"`
	ClassTagMapping map[string]string `json:"class_tag_mapping,omitempty"`
	IsActive        *bool             `json:"is_active,omitempty"`
	AutoExecute     bool              `json:"auto_execute,omitempty"`
}

// RuleUpdate carries the fields to change; nil leaves a field untouched.
type RuleUpdate struct {
	Name            *string            `json:"name,omitempty"`
	Description     *string            `json:"description,omitempty"`
	RuleType        *models.RuleType   `json:"rule_type,omitempty"`
	Pattern         *string            `json:"pattern,omitempty"`
	TagIDs          *[]string          `json:"tag_ids,omitempty"`
	ClassTagMapping *map[string]string `json:"class_tag_mapping,omitempty"`
	IsActive        *bool              `json:"is_active,omitempty"`
	AutoExecute     *bool              `json:"auto_execute,omitempty"`
}

// CreateRule validates in and stores it as a rule of ownerID. A rule
// defaults to the fixed variant and to active.
func (e *Engine) CreateRule(ctx context.Context, ownerID string, in RuleInput) (*models.TaggingRule, error) {
	if in.RuleType == "" {
		in.RuleType = models.RuleFixed
	}

	rule := &models.TaggingRule{
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		OwnerID:         ownerID,
		RuleType:        in.RuleType,
		Pattern:         in.Pattern,
		TagIDs:          datatypes.NewJSONType(in.TagIDs),
		ClassTagMapping: datatypes.NewJSONType(in.ClassTagMapping),
		IsActive:        in.IsActive == nil || *in.IsActive,
		AutoExecute:     in.AutoExecute,
	}

	if err := e.validateRule(ctx, e.store, rule); err != nil {
		return nil, err
	}
	if err := e.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	e.log.Debug("Created %s rule '%s' for owner %s", rule.RuleType, rule.Name, ownerID)
	return rule, nil
}

func (e *Engine) UpdateRule(ctx context.Context, ownerID, id string, update RuleUpdate) (*models.TaggingRule, error) {
	rule, err := e.GetRule(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		rule.Name = strings.TrimSpace(*update.Name)
	}
	if update.Description != nil {
		rule.Description = *update.Description
	}
	if update.RuleType != nil {
		rule.RuleType = *update.RuleType
	}
	if update.Pattern != nil {
		rule.Pattern = *update.Pattern
	}
	if update.TagIDs != nil {
		rule.TagIDs = datatypes.NewJSONType(*update.TagIDs)
	}
	if update.ClassTagMapping != nil {
		rule.ClassTagMapping = datatypes.NewJSONType(*update.ClassTagMapping)
	}
	if update.IsActive != nil {
		rule.IsActive = *update.IsActive
	}
	if update.AutoExecute != nil {
		rule.AutoExecute = *update.AutoExecute
	}

	if err := e.validateRule(ctx, e.store, rule); err != nil {
		return nil, err
	}
	if err := e.store.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return rule, nil
}

// GetRule loads a rule of ownerID; rules of other owners are not found.
func (e *Engine) GetRule(ctx context.Context, ownerID, id string) (*models.TaggingRule, error) {
	rule, err := e.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.OwnerID != ownerID {
		return nil, errdefs.NotFound("tagging rule %s", id)
	}
	return rule, nil
}

func (e *Engine) ListRules(ctx context.Context, ownerID string) ([]models.TaggingRule, error) {
	return e.store.ListRules(ctx, ownerID)
}

func (e *Engine) DeleteRule(ctx context.Context, ownerID, id string) error {
	if _, err := e.GetRule(ctx, ownerID, id); err != nil {
		return err
	}
	return e.store.DeleteRule(ctx, id)
}

func (e *Engine) validateRule(ctx context.Context, st store.MetadataStore, rule *models.TaggingRule) error {
	if rule.Name == "" {
		return errdefs.Validation("rule name is required")
	}
	if _, err := e.Compile(rule.Pattern); err != nil {
		return err
	}

	var tagIDs []string
	switch rule.RuleType {
	case models.RuleFixed:
		tagIDs = dedupe(rule.TagIDs.Data())
		if len(tagIDs) == 0 {
			return errdefs.Validation("fixed rule '%s' needs at least one tag", rule.Name)
		}
		rule.TagIDs = datatypes.NewJSONType(tagIDs)
	case models.RuleMapping:
		mapping := rule.ClassTagMapping.Data()
		if len(mapping) == 0 {
			return errdefs.Validation("mapping rule '%s' needs a class tag mapping", rule.Name)
		}
		for class, id := range mapping {
			if strings.TrimSpace(class) == "" {
				return errdefs.Validation("mapping rule '%s' maps an empty class name", rule.Name)
			}
			tagIDs = append(tagIDs, id)
		}
	default:
		return errdefs.Validation("unknown rule type '%s'", rule.RuleType)
	}

	for _, id := range tagIDs {
		tag, err := st.GetTag(ctx, id)
		if err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.Validation("rule '%s' references unknown tag %s", rule.Name, id)
			}
			return err
		}
		if !tag.Global() && *tag.OwnerID != rule.OwnerID {
			return errdefs.Validation("rule '%s' references unknown tag %s", rule.Name, id)
		}
	}
	return nil
}
