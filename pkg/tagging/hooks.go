package tagging

import (
	"context"
	"fmt"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/tags"
)

// AutoStats summarises the rules and system tags applied to one sample.
type AutoStats struct {
	RulesMatched int `json:"rules_matched"`
	TagsApplied  int `json:"tags_applied"`
	Skipped      int `json:"skipped"`
}

// ApplySystemTags tags sample with the system tags matching its content
// type, source and annotation status. Missing system tags are ignored.
func (e *Engine) ApplySystemTags(ctx context.Context, st store.MetadataStore, sample *models.Sample) (AutoStats, error) {
	var stats AutoStats

	values := []struct {
		kind  models.SystemTagType
		value string
	}{
		{models.SystemFileType, sample.ContentType},
		{models.SystemSource, string(sample.Source)},
		{models.SystemAnnotationStatus, string(sample.AnnotationStatus)},
	}

	for _, v := range values {
		tag, err := systemTag(ctx, st, v.kind, v.value)
		if err != nil {
			return stats, err
		}
		if tag == nil {
			continue
		}

		applied, err := apply(ctx, st, sample.ID, tag.ID, false, "")
		if err != nil {
			return stats, err
		}
		if applied {
			stats.TagsApplied++
		} else {
			stats.Skipped++
		}
	}

	tagsAppliedTotal.WithLabelValues(systemLabel).Add(float64(stats.TagsApplied))
	return stats, nil
}

func systemTag(ctx context.Context, st store.MetadataStore, kind models.SystemTagType, value string) (*models.Tag, error) {
	if value == "" {
		return nil, nil
	}
	name, ok := tags.SystemTagName(kind, value)
	if !ok {
		return nil, nil
	}

	tag, err := st.FindTag(ctx, models.CategorySystem, nil, nil, name)
	if errdefs.IsNotFound(err) {
		return nil, nil
	}
	return tag, err
}

// SyncAnnotationStatusTag keeps exactly the annotation status system tag
// matching the sample's current status.
func (e *Engine) SyncAnnotationStatusTag(ctx context.Context, st store.MetadataStore, sample *models.Sample) error {
	current, _ := tags.SystemTagName(models.SystemAnnotationStatus, string(sample.AnnotationStatus))

	for _, name := range tags.SystemTagNames(models.SystemAnnotationStatus) {
		tag, err := st.FindTag(ctx, models.CategorySystem, nil, nil, name)
		if errdefs.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}

		if name == current {
			applied, err := apply(ctx, st, sample.ID, tag.ID, false, "")
			if err != nil {
				return err
			}
			if applied {
				tagsAppliedTotal.WithLabelValues(systemLabel).Inc()
			}
			continue
		}
		if err := st.DeleteSampleTag(ctx, sample.ID, tag.ID); err != nil {
			return fmt.Errorf("failed to drop stale status tag: %w", err)
		}
	}
	return nil
}

// ApplyAutoRules evaluates the owner's active auto-execute rules against
// this one sample.
func (e *Engine) ApplyAutoRules(ctx context.Context, st store.MetadataStore, sample *models.Sample) (AutoStats, error) {
	var stats AutoStats

	rules, err := st.ListAutoExecuteRules(ctx, sample.OwnerID)
	if err != nil {
		return stats, fmt.Errorf("failed to list auto rules: %w", err)
	}

	for i := range rules {
		rule := &rules[i]
		re, err := e.Compile(rule.Pattern)
		if err != nil {
			e.log.Warn("Skipping auto rule '%s': %v", rule.Name, err)
			continue
		}
		if !Matches(re, sample) {
			continue
		}
		stats.RulesMatched++

		result, err := newApplier(st, false, rule).applyRule(ctx, sample)
		if err != nil {
			return stats, err
		}
		stats.TagsApplied += result.Tagged
		stats.Skipped += result.Skipped
		tagsAppliedTotal.WithLabelValues(string(rule.RuleType)).Add(float64(result.Tagged))
	}
	return stats, nil
}

// SampleCreated applies system tags and auto rules to a new sample.
func (e *Engine) SampleCreated(ctx context.Context, st store.MetadataStore, sample *models.Sample) error {
	system, err := e.ApplySystemTags(ctx, st, sample)
	if err != nil {
		return fmt.Errorf("failed to apply system tags: %w", err)
	}
	auto, err := e.ApplyAutoRules(ctx, st, sample)
	if err != nil {
		return fmt.Errorf("failed to apply auto rules: %w", err)
	}

	e.log.Debug("Tagged new sample %s: %d system, %d from %d rule(s)",
		sample.ID, system.TagsApplied, auto.TagsApplied, auto.RulesMatched)
	return nil
}

// AnnotationChanged re-syncs the status tag and, once linked, lets mapping
// rules see the annotation.
func (e *Engine) AnnotationChanged(ctx context.Context, st store.MetadataStore, sample *models.Sample) error {
	if err := e.SyncAnnotationStatusTag(ctx, st, sample); err != nil {
		return fmt.Errorf("failed to sync annotation status tag: %w", err)
	}
	if sample.AnnotationStatus != models.AnnotationLinked {
		return nil
	}

	if _, err := e.ApplyAutoRules(ctx, st, sample); err != nil {
		return fmt.Errorf("failed to apply auto rules: %w", err)
	}
	return nil
}
