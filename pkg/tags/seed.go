package tags

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/errdefs"
)

// SystemDefinition maps one sample attribute value onto a system tag.
type SystemDefinition struct {
	Name  string
	Type  models.SystemTagType
	Value string
}

var SystemDefinitions = []SystemDefinition{
	{Name: "Image/JPEG", Type: models.SystemFileType, Value: "image/jpeg"},
	{Name: "Image/PNG", Type: models.SystemFileType, Value: "image/png"},
	{Name: "Image/GIF", Type: models.SystemFileType, Value: "image/gif"},
	{Name: "Image/WebP", Type: models.SystemFileType, Value: "image/webp"},
	{Name: "Image/BMP", Type: models.SystemFileType, Value: "image/bmp"},
	{Name: "Image/TIFF", Type: models.SystemFileType, Value: "image/tiff"},

	{Name: "Source/Manual", Type: models.SystemSource, Value: string(models.SourceManual)},
	{Name: "Source/Sync", Type: models.SystemSource, Value: string(models.SourceSync)},
	{Name: "Source/Webhook", Type: models.SystemSource, Value: string(models.SourceWebhook)},
	{Name: "Source/Import", Type: models.SystemSource, Value: string(models.SourceImport)},

	{Name: "Annotation/Linked", Type: models.SystemAnnotationStatus, Value: string(models.AnnotationLinked)},
	{Name: "Annotation/None", Type: models.SystemAnnotationStatus, Value: string(models.AnnotationNone)},
	{Name: "Annotation/Conflict", Type: models.SystemAnnotationStatus, Value: string(models.AnnotationConflict)},
	{Name: "Annotation/Error", Type: models.SystemAnnotationStatus, Value: string(models.AnnotationError)},
}

// SystemTagName returns the system tag name for an attribute value.
func SystemTagName(kind models.SystemTagType, value string) (string, bool) {
	for _, def := range SystemDefinitions {
		if def.Type == kind && def.Value == value {
			return def.Name, true
		}
	}
	return "", false
}

// SystemTagNames lists every system tag name of one kind.
func SystemTagNames(kind models.SystemTagType) []string {
	var names []string
	for _, def := range SystemDefinitions {
		if def.Type == kind {
			names = append(names, def.Name)
		}
	}
	return names
}

type SeedStats struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// SeedSystemTags creates the missing system tags. With force every existing
// system tag, and its sample associations, is dropped first.
func (s *Service) SeedSystemTags(ctx context.Context, force bool) (SeedStats, error) {
	var stats SeedStats

	err := s.store.Transaction(ctx, func(tx store.MetadataStore) error {
		if force {
			if err := tx.DeleteTagsByCategory(ctx, models.CategorySystem); err != nil {
				return fmt.Errorf("failed to drop system tags: %w", err)
			}
		}

		for _, def := range SystemDefinitions {
			_, err := tx.FindTag(ctx, models.CategorySystem, nil, nil, def.Name)
			if err == nil {
				stats.Skipped++
				continue
			}
			if !errdefs.IsNotFound(err) {
				return err
			}

			tag := &models.Tag{
				Name:            def.Name,
				Category:        models.CategorySystem,
				IsSystemManaged: true,
				SystemTagType:   def.Type,
				FullPath:        def.Name,
			}
			if err := tx.CreateTag(ctx, tag); err != nil {
				return fmt.Errorf("failed to create system tag '%s': %w", def.Name, err)
			}
			stats.Created++
		}
		return nil
	})
	if err != nil {
		return SeedStats{}, err
	}

	s.log.Info("Seeded system tags: %d created, %d skipped", stats.Created, stats.Skipped)
	return stats, nil
}

// BusinessEntry is one row of the business taxonomy: four hierarchy levels
// and the annotation label code of the leaf.
type BusinessEntry struct {
	Levels [4]string
	Code   string
}

// Accepted header names per column, original taxonomy headers first.
var businessColumns = [5][]string{
	{"专业", "domain"},
	{"部件名称/场景分类", "category"},
	{"部位名称/场景名称", "part"},
	{"状态描述/场景描述", "state"},
	{"标注标签", "code"},
}

// ParseBusinessCSV reads the taxonomy. Rows missing any level are skipped.
func ParseBusinessCSV(r io.Reader) ([]BusinessEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read business tags header: %w", err)
	}

	index := [5]int{-1, -1, -1, -1, -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		for col, aliases := range businessColumns {
			for _, alias := range aliases {
				if name == alias {
					index[col] = i
				}
			}
		}
	}
	for col := 0; col < 4; col++ {
		if index[col] < 0 {
			return nil, errdefs.Validation("business tags csv is missing column '%s'", businessColumns[col][1])
		}
	}

	field := func(record []string, col int) string {
		if index[col] < 0 || index[col] >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[index[col]])
	}

	var entries []BusinessEntry
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read business tags: %w", err)
		}

		var entry BusinessEntry
		complete := true
		for col := 0; col < 4; col++ {
			entry.Levels[col] = field(record, col)
			if entry.Levels[col] == "" {
				complete = false
			}
		}
		if !complete {
			continue
		}
		entry.Code = field(record, 4)
		entries = append(entries, entry)
	}
	return entries, nil
}

// SeedBusinessTagsFile seeds the taxonomy stored at path.
func (s *Service) SeedBusinessTagsFile(ctx context.Context, path string, force bool) (SeedStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return SeedStats{}, fmt.Errorf("failed to open business tags csv: %w", err)
	}
	defer file.Close()

	entries, err := ParseBusinessCSV(file)
	if err != nil {
		return SeedStats{}, err
	}
	return s.SeedBusinessTags(ctx, entries, force)
}

// SeedBusinessTags creates the four level hierarchy described by entries.
// Existing nodes are matched by parent and name, so seeding twice is a no-op.
func (s *Service) SeedBusinessTags(ctx context.Context, entries []BusinessEntry, force bool) (SeedStats, error) {
	var stats SeedStats

	err := s.store.Transaction(ctx, func(tx store.MetadataStore) error {
		if force {
			if err := tx.DeleteTagsByCategory(ctx, models.CategoryBusiness); err != nil {
				return fmt.Errorf("failed to drop business tags: %w", err)
			}
		}

		for _, entry := range entries {
			var parent *models.Tag
			for level, name := range entry.Levels {
				code := ""
				if level == len(entry.Levels)-1 {
					code = entry.Code
				}

				tag, created, err := s.ensureBusinessTag(ctx, tx, parent, level, name, code)
				if err != nil {
					return err
				}
				if created {
					stats.Created++
				} else if level == len(entry.Levels)-1 {
					stats.Skipped++
				}
				parent = tag
			}
		}
		return nil
	})
	if err != nil {
		return SeedStats{}, err
	}

	s.log.Info("Seeded business tags: %d created, %d skipped", stats.Created, stats.Skipped)
	return stats, nil
}

func (s *Service) ensureBusinessTag(ctx context.Context, tx store.MetadataStore, parent *models.Tag, level int, name, code string) (*models.Tag, bool, error) {
	var parentID *string
	fullPath := name
	if parent != nil {
		parentID = &parent.ID
		fullPath = parent.FullPath + "/" + name
	}

	existing, err := tx.FindTag(ctx, models.CategoryBusiness, nil, parentID, name)
	if err == nil {
		if code != "" && existing.BusinessCode != code {
			existing.BusinessCode = code
			if err := tx.UpdateTag(ctx, existing); err != nil {
				return nil, false, fmt.Errorf("failed to update business tag '%s': %w", fullPath, err)
			}
		}
		return existing, false, nil
	}
	if !errdefs.IsNotFound(err) {
		return nil, false, err
	}

	tag := &models.Tag{
		Name:            name,
		Category:        models.CategoryBusiness,
		ParentID:        parentID,
		IsSystemManaged: true,
		Level:           level,
		FullPath:        fullPath,
		BusinessCode:    code,
	}
	if err := tx.CreateTag(ctx, tag); err != nil {
		return nil, false, fmt.Errorf("failed to create business tag '%s': %w", fullPath, err)
	}
	return tag, true, nil
}
