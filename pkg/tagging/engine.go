// Package tagging applies pattern based tagging rules and system tags to
// catalog samples.
package tagging

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tagsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manifest_tagging_tags_applied_total",
		Help: "Sample tags created by tagging rules and system tagging.",
	}, []string{"rule_type"})
	patternCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "manifest_tagging_pattern_cache_hits_total",
		Help: "Compiled rule patterns served from the cache.",
	})
	patternCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "manifest_tagging_pattern_cache_misses_total",
		Help: "Rule patterns compiled because they were not cached.",
	})
)

// metric label for tags applied outside of a rule
const systemLabel = "system"

type Options struct {
	PatternCacheSize int
	PatternCacheTTL  time.Duration
}

type Engine struct {
	store    store.MetadataStore
	log      log.LoggerService
	patterns *expirable.LRU[string, *regexp.Regexp]
}

func NewEngine(st store.MetadataStore, logger log.LoggerService, opts Options) *Engine {
	if opts.PatternCacheSize <= 0 {
		opts.PatternCacheSize = 256
	}
	if opts.PatternCacheTTL <= 0 {
		opts.PatternCacheTTL = 10 * time.Minute
	}

	return &Engine{
		store:    st,
		log:      logger.Named("tagging"),
		patterns: expirable.NewLRU[string, *regexp.Regexp](opts.PatternCacheSize, nil, opts.PatternCacheTTL),
	}
}

// Compile returns the compiled pattern. Invalid patterns are validation errors.
func (e *Engine) Compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := e.patterns.Get(pattern); ok {
		patternCacheHitsTotal.Inc()
		return re, nil
	}
	patternCacheMissesTotal.Inc()

	if pattern == "" {
		return nil, errdefs.Validation("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errdefs.Validation("invalid pattern '%s': %v", pattern, err)
	}

	e.patterns.Add(pattern, re)
	return re, nil
}

// Matches searches the pattern anywhere in "{bucket}/{object_key}".
func Matches(re *regexp.Regexp, sample *models.Sample) bool {
	return re.MatchString(sample.FullPath())
}

// ExecuteStats summarises one rule run. Skipped counts tags the sample
// already carried; NoAnnotation counts matches a mapping rule could not use.
type ExecuteStats struct {
	Matched      int  `json:"matched"`
	Tagged       int  `json:"tagged"`
	Skipped      int  `json:"skipped"`
	NoAnnotation int  `json:"no_annotation"`
	DryRun       bool `json:"dry_run"`
}

func (s *ExecuteStats) add(other ExecuteStats) {
	s.Matched += other.Matched
	s.Tagged += other.Tagged
	s.Skipped += other.Skipped
	s.NoAnnotation += other.NoAnnotation
}

// ExecuteRule runs a stored rule against every active sample of its owner.
// A dry run reports what would change without writing.
func (e *Engine) ExecuteRule(ctx context.Context, ownerID, ruleID string, dryRun bool) (ExecuteStats, error) {
	rule, err := e.GetRule(ctx, ownerID, ruleID)
	if err != nil {
		return ExecuteStats{}, err
	}
	return e.Execute(ctx, rule, dryRun)
}

func (e *Engine) Execute(ctx context.Context, rule *models.TaggingRule, dryRun bool) (ExecuteStats, error) {
	re, err := e.Compile(rule.Pattern)
	if err != nil {
		return ExecuteStats{}, err
	}

	run := func(st store.MetadataStore) (ExecuteStats, error) {
		scopes := []store.Scope{store.OwnedBy(rule.OwnerID), store.Active, store.OrderByCreated}
		if rule.RuleType == models.RuleMapping {
			scopes = append(scopes, store.WithAnnotationStatus(string(models.AnnotationLinked)), store.WithAnnotation)
		}

		samples, err := st.FindSamples(ctx, scopes...)
		if err != nil {
			return ExecuteStats{}, fmt.Errorf("failed to load samples: %w", err)
		}

		a := newApplier(st, dryRun, rule)
		stats := ExecuteStats{DryRun: dryRun}
		for _, sample := range samples {
			if !Matches(re, sample) {
				continue
			}
			result, err := a.applyRule(ctx, sample)
			if err != nil {
				return ExecuteStats{}, err
			}
			stats.add(result)
		}
		return stats, nil
	}

	var stats ExecuteStats
	if dryRun {
		stats, err = run(e.store)
	} else {
		err = e.store.Transaction(ctx, func(tx store.MetadataStore) error {
			var err error
			stats, err = run(tx)
			return err
		})
	}
	if err != nil {
		return ExecuteStats{}, fmt.Errorf("failed to execute rule '%s': %w", rule.Name, err)
	}

	if !dryRun {
		tagsAppliedTotal.WithLabelValues(string(rule.RuleType)).Add(float64(stats.Tagged))
	}
	e.log.Info("Executed rule '%s' (dry run %t): matched %d, tagged %d, skipped %d, no annotation %d",
		rule.Name, dryRun, stats.Matched, stats.Tagged, stats.Skipped, stats.NoAnnotation)
	return stats, nil
}

// applier applies one rule's tags to individual samples. Tag existence is
// looked up once per run.
type applier struct {
	st     store.MetadataStore
	dryRun bool
	rule   *models.TaggingRule
	known  map[string]bool
}

func newApplier(st store.MetadataStore, dryRun bool, rule *models.TaggingRule) *applier {
	return &applier{st: st, dryRun: dryRun, rule: rule, known: make(map[string]bool)}
}

func (a *applier) applyRule(ctx context.Context, sample *models.Sample) (ExecuteStats, error) {
	stats := ExecuteStats{Matched: 1}

	var tagIDs []string
	switch a.rule.RuleType {
	case models.RuleMapping:
		counts := sample.ClassCounts()
		if sample.AnnotationStatus != models.AnnotationLinked || len(counts) == 0 {
			stats.NoAnnotation = 1
			return stats, nil
		}
		mapping := a.rule.ClassTagMapping.Data()
		for _, class := range counts.Names() {
			if id, ok := mapping[class]; ok && id != "" {
				tagIDs = append(tagIDs, id)
			}
		}
	default:
		tagIDs = a.rule.TagIDs.Data()
	}

	for _, tagID := range dedupe(tagIDs) {
		exists, err := a.tagExists(ctx, tagID)
		if err != nil {
			return ExecuteStats{}, err
		}
		if !exists {
			continue
		}

		applied, err := apply(ctx, a.st, sample.ID, tagID, a.dryRun, a.rule.ID)
		if err != nil {
			return ExecuteStats{}, err
		}
		if applied {
			stats.Tagged++
		} else {
			stats.Skipped++
		}
	}
	return stats, nil
}

// dedupe drops repeated ids, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (a *applier) tagExists(ctx context.Context, tagID string) (bool, error) {
	if known, ok := a.known[tagID]; ok {
		return known, nil
	}

	_, err := a.st.GetTag(ctx, tagID)
	switch {
	case err == nil:
		a.known[tagID] = true
	case errdefs.IsNotFound(err):
		a.known[tagID] = false
	default:
		return false, err
	}
	return a.known[tagID], nil
}

// apply adds the (sample, tag) pair unless it exists. It reports whether the
// pair is new; a dry run only checks.
func apply(ctx context.Context, st store.MetadataStore, sampleID, tagID string, dryRun bool, ruleID string) (bool, error) {
	exists, err := st.HasSampleTag(ctx, sampleID, tagID)
	if err != nil {
		return false, fmt.Errorf("failed to check sample tag: %w", err)
	}
	if exists {
		return false, nil
	}
	if dryRun {
		return true, nil
	}

	if err := st.CreateSampleTag(ctx, &models.SampleTag{SampleID: sampleID, TagID: tagID}); err != nil {
		return false, fmt.Errorf("failed to tag sample %s: %w", sampleID, err)
	}

	details := map[string]any{"tag_id": tagID}
	if ruleID != "" {
		details["rule_id"] = ruleID
	}
	if err := st.CreateHistory(ctx, &models.SampleHistory{
		SampleID: sampleID,
		Action:   models.HistoryTagged,
		Details:  details,
	}); err != nil {
		return false, fmt.Errorf("failed to record tagging: %w", err)
	}
	return true, nil
}
