package tagging

import (
	"context"
	"fmt"
	"sort"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
)

type Preview struct {
	TotalMatched int              `json:"total_matched"`
	Samples      []*models.Sample `json:"samples"`
}

// MappingPreview adds the class names seen across all matches, used to
// draft a class tag mapping.
type MappingPreview struct {
	Preview
	UniqueClasses     []string       `json:"unique_classes"`
	ClassSampleCounts map[string]int `json:"class_sample_counts"`
}

// PreviewPattern lists ownerID's active samples whose path matches pattern.
func (e *Engine) PreviewPattern(ctx context.Context, ownerID, pattern string, skip, limit int) (*Preview, error) {
	matches, err := e.match(ctx, ownerID, pattern, store.OwnedBy(ownerID), store.Active, store.OrderByCreated)
	if err != nil {
		return nil, err
	}
	return &Preview{TotalMatched: len(matches), Samples: page(matches, skip, limit)}, nil
}

// PreviewMappingPattern is PreviewPattern over linked samples only.
func (e *Engine) PreviewMappingPattern(ctx context.Context, ownerID, pattern string, skip, limit int) (*MappingPreview, error) {
	matches, err := e.match(ctx, ownerID, pattern,
		store.OwnedBy(ownerID), store.Active, store.OrderByCreated,
		store.WithAnnotationStatus(string(models.AnnotationLinked)), store.WithAnnotation)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, sample := range matches {
		for class := range sample.ClassCounts() {
			counts[class]++
		}
	}

	classes := make([]string, 0, len(counts))
	for class := range counts {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	return &MappingPreview{
		Preview:           Preview{TotalMatched: len(matches), Samples: page(matches, skip, limit)},
		UniqueClasses:     classes,
		ClassSampleCounts: counts,
	}, nil
}

// PreviewRule lists the first limit samples a stored rule would consider.
func (e *Engine) PreviewRule(ctx context.Context, ownerID, ruleID string, limit int) (*Preview, error) {
	rule, err := e.GetRule(ctx, ownerID, ruleID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	if rule.RuleType == models.RuleMapping {
		preview, err := e.PreviewMappingPattern(ctx, ownerID, rule.Pattern, 0, limit)
		if err != nil {
			return nil, err
		}
		return &preview.Preview, nil
	}
	return e.PreviewPattern(ctx, ownerID, rule.Pattern, 0, limit)
}

func (e *Engine) match(ctx context.Context, ownerID, pattern string, scopes ...store.Scope) ([]*models.Sample, error) {
	re, err := e.Compile(pattern)
	if err != nil {
		return nil, err
	}

	samples, err := e.store.FindSamples(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples of %s: %w", ownerID, err)
	}

	var matches []*models.Sample
	for _, sample := range samples {
		if Matches(re, sample) {
			matches = append(matches, sample)
		}
	}
	return matches, nil
}

func page[T any](items []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return items[skip:end]
}
