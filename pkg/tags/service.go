// Package tags manages the three tag categories: seeded system tags, the
// global business taxonomy and per-owner user tags.
package tags

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/log"
)

type Service struct {
	store store.MetadataStore
	log   log.LoggerService
}

func NewService(st store.MetadataStore, logger log.LoggerService) *Service {
	return &Service{
		store: st,
		log:   logger.Named("tags"),
	}
}

type TagInput struct {
	Name        string             `json:"name"`
	Color       string             `json:"color,omitempty"`
	Description string             `json:"description,omitempty"`
	Category    models.TagCategory `json:"category,omitempty"`
	ParentID    *string            `json:"parent_id,omitempty"`
}

// TagUpdate carries the fields to change; nil leaves a field untouched.
type TagUpdate struct {
	Name        *string             `json:"name,omitempty"`
	Color       *string             `json:"color,omitempty"`
	Description *string             `json:"description,omitempty"`
	Category    *models.TagCategory `json:"category,omitempty"`
	ParentID    *string             `json:"parent_id,omitempty"`
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errdefs.Validation("tag name is required")
	}
	if len(name) > 255 {
		return errdefs.Validation("tag name exceeds 255 characters")
	}
	if strings.Contains(name, "/") {
		return errdefs.Validation("tag name '%s' must not contain '/'", name)
	}
	return nil
}

func validateColor(color string) error {
	if len(color) > 7 {
		return errdefs.Validation("tag color '%s' exceeds 7 characters", color)
	}
	return nil
}

// parentFor loads a parent the owner may attach to: a global tag or one of
// its own. Other owners' tags are reported as missing.
func parentFor(ctx context.Context, st store.MetadataStore, ownerID, parentID string) (*models.Tag, error) {
	parent, err := st.GetTag(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.Global() && *parent.OwnerID != ownerID {
		return nil, errdefs.NotFound("tag %s", parentID)
	}
	return parent, nil
}

// CreateUserTag creates a tag owned by ownerID. Only the user category can
// be created this way.
func (s *Service) CreateUserTag(ctx context.Context, ownerID string, in TagInput) (*models.Tag, error) {
	if in.Category != "" && in.Category != models.CategoryUser {
		return nil, errdefs.Forbidden("only '%s' tags can be created, got '%s'", models.CategoryUser, in.Category)
	}
	if err := validateName(in.Name); err != nil {
		return nil, err
	}
	if err := validateColor(in.Color); err != nil {
		return nil, err
	}

	owner := ownerID
	tag := &models.Tag{
		Name:        strings.TrimSpace(in.Name),
		Color:       in.Color,
		Description: in.Description,
		Category:    models.CategoryUser,
		OwnerID:     &owner,
		FullPath:    strings.TrimSpace(in.Name),
	}

	if in.ParentID != nil && *in.ParentID != "" {
		parent, err := parentFor(ctx, s.store, ownerID, *in.ParentID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve parent: %w", err)
		}
		tag.ParentID = &parent.ID
		tag.Level = parent.Level + 1
		tag.FullPath = parent.FullPath + "/" + tag.Name
	}

	if err := s.store.CreateTag(ctx, tag); err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}

	s.log.Debug("Created tag '%s' for owner %s", tag.FullPath, ownerID)
	return tag, nil
}

// mutable loads a tag and checks that ownerID may change it.
func mutable(ctx context.Context, st store.MetadataStore, ownerID, id string) (*models.Tag, error) {
	tag, err := st.GetTag(ctx, id)
	if err != nil {
		return nil, err
	}
	if tag.Global() {
		return nil, errdefs.Forbidden("%s tag '%s' is read-only", tag.Category, tag.Name)
	}
	if *tag.OwnerID != ownerID {
		return nil, errdefs.Forbidden("tag %s belongs to another owner", id)
	}
	if tag.IsSystemManaged {
		return nil, errdefs.Forbidden("tag '%s' is system managed", tag.Name)
	}
	return tag, nil
}

// UpdateUserTag applies update to one of ownerID's tags. Moving a tag below
// itself or one of its descendants is rejected.
func (s *Service) UpdateUserTag(ctx context.Context, ownerID, id string, update TagUpdate) (*models.Tag, error) {
	var result *models.Tag

	err := s.store.Transaction(ctx, func(tx store.MetadataStore) error {
		tag, err := mutable(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}

		if update.Category != nil && *update.Category != models.CategoryUser {
			return errdefs.Forbidden("tag category cannot change to '%s'", *update.Category)
		}
		if update.Name != nil {
			if err := validateName(*update.Name); err != nil {
				return err
			}
			tag.Name = strings.TrimSpace(*update.Name)
		}
		if update.Color != nil {
			if err := validateColor(*update.Color); err != nil {
				return err
			}
			tag.Color = *update.Color
		}
		if update.Description != nil {
			tag.Description = *update.Description
		}

		owned, err := s.ownedTree(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		if update.ParentID != nil {
			if *update.ParentID == "" {
				tag.ParentID = nil
			} else {
				if *update.ParentID == tag.ID {
					return errdefs.Validation("tag '%s' cannot be its own parent", tag.Name)
				}
				for _, descendant := range owned.Descendants(tag.ID) {
					if descendant == *update.ParentID {
						return errdefs.Validation("tag '%s' cannot move below its own descendant", tag.Name)
					}
				}
				parent, err := parentFor(ctx, tx, ownerID, *update.ParentID)
				if err != nil {
					return fmt.Errorf("failed to resolve parent: %w", err)
				}
				tag.ParentID = &parent.ID
			}
		}

		if err := s.relocate(ctx, tx, tag); err != nil {
			return err
		}
		if err := tx.UpdateTag(ctx, tag); err != nil {
			return fmt.Errorf("failed to update tag: %w", err)
		}

		// Descendants carry the old path prefix until rewritten.
		for _, descendantID := range owned.Descendants(tag.ID) {
			descendant, err := tx.GetTag(ctx, descendantID)
			if err != nil {
				return err
			}
			if err := s.relocate(ctx, tx, descendant); err != nil {
				return err
			}
			if err := tx.UpdateTag(ctx, descendant); err != nil {
				return fmt.Errorf("failed to update descendant tag: %w", err)
			}
		}

		result = tag
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// relocate recomputes Level and FullPath from the stored parent.
func (s *Service) relocate(ctx context.Context, st store.MetadataStore, tag *models.Tag) error {
	if tag.ParentID == nil {
		tag.Level = 0
		tag.FullPath = tag.Name
		return nil
	}

	parent, err := st.GetTag(ctx, *tag.ParentID)
	if err != nil {
		return fmt.Errorf("failed to load parent of '%s': %w", tag.Name, err)
	}
	tag.Level = parent.Level + 1
	tag.FullPath = parent.FullPath + "/" + tag.Name
	return nil
}

// DeleteUserTag removes one of ownerID's tags together with its subtree.
func (s *Service) DeleteUserTag(ctx context.Context, ownerID, id string) error {
	return s.store.Transaction(ctx, func(tx store.MetadataStore) error {
		if _, err := mutable(ctx, tx, ownerID, id); err != nil {
			return err
		}

		owned, err := s.ownedTree(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		doomed := append(owned.Descendants(id), id)
		for i := len(doomed) - 1; i >= 0; i-- {
			if err := tx.DeleteTag(ctx, doomed[i]); err != nil {
				return fmt.Errorf("failed to delete tag %s: %w", doomed[i], err)
			}
		}

		s.log.Debug("Deleted %d tag(s) for owner %s", len(doomed), ownerID)
		return nil
	})
}

func (s *Service) ownedTree(ctx context.Context, st store.MetadataStore, ownerID string) (*Tree, error) {
	tags, err := s.ownedTags(ctx, st, ownerID)
	if err != nil {
		return nil, err
	}
	return BuildTree(tags, nil), nil
}

func (s *Service) ownedTags(ctx context.Context, st store.MetadataStore, ownerID string) ([]models.Tag, error) {
	all, err := st.ListTags(ctx, models.CategoryUser)
	if err != nil {
		return nil, fmt.Errorf("failed to list user tags: %w", err)
	}

	owned := all[:0]
	for _, tag := range all {
		if tag.OwnerID != nil && *tag.OwnerID == ownerID {
			owned = append(owned, tag)
		}
	}
	return owned, nil
}

// GetOrCreateByPath resolves "a/b/c" to a user tag of ownerID, creating the
// missing levels.
func (s *Service) GetOrCreateByPath(ctx context.Context, ownerID, path string) (*models.Tag, error) {
	var segments []string
	for _, segment := range strings.Split(path, "/") {
		if segment = strings.TrimSpace(segment); segment != "" {
			segments = append(segments, segment)
		}
	}
	if len(segments) == 0 {
		return nil, errdefs.Validation("tag path '%s' is empty", path)
	}

	var leaf *models.Tag
	err := s.store.Transaction(ctx, func(tx store.MetadataStore) error {
		owner := ownerID
		var parent *models.Tag

		for _, name := range segments {
			if err := validateName(name); err != nil {
				return err
			}

			var parentID *string
			if parent != nil {
				parentID = &parent.ID
			}

			tag, err := tx.FindTag(ctx, models.CategoryUser, &owner, parentID, name)
			if errdefs.IsNotFound(err) {
				tag = &models.Tag{
					Name:     name,
					Category: models.CategoryUser,
					OwnerID:  &owner,
					ParentID: parentID,
					FullPath: name,
				}
				if parent != nil {
					tag.Level = parent.Level + 1
					tag.FullPath = parent.FullPath + "/" + name
				}
				err = tx.CreateTag(ctx, tag)
			}
			if err != nil {
				return fmt.Errorf("failed to resolve tag '%s': %w", name, err)
			}
			parent = tag
		}

		leaf = parent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leaf, nil
}

// UserTree returns ownerID's tags with their active sample counts.
func (s *Service) UserTree(ctx context.Context, ownerID string) (*Tree, error) {
	tags, err := s.ownedTags(ctx, s.store, ownerID)
	if err != nil {
		return nil, err
	}
	return s.countedTree(ctx, ownerID, tags)
}

// BusinessTree returns the business taxonomy with ownerID's sample counts.
func (s *Service) BusinessTree(ctx context.Context, ownerID string) (*Tree, error) {
	tags, err := s.store.ListTags(ctx, models.CategoryBusiness)
	if err != nil {
		return nil, fmt.Errorf("failed to list business tags: %w", err)
	}
	return s.countedTree(ctx, ownerID, tags)
}

func (s *Service) countedTree(ctx context.Context, ownerID string, tags []models.Tag) (*Tree, error) {
	ids := make([]string, 0, len(tags))
	for _, tag := range tags {
		ids = append(ids, tag.ID)
	}

	counts, err := s.store.CountTaggedSamples(ctx, ownerID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to count tagged samples: %w", err)
	}
	return BuildTree(tags, counts), nil
}

// Search matches business tags by name, path or business code.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.Tag, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return s.store.SearchTags(ctx, models.CategoryBusiness, query, limit)
}

func (s *Service) ByBusinessCode(ctx context.Context, code string) (*models.Tag, error) {
	return s.store.FindTagByBusinessCode(ctx, code)
}
