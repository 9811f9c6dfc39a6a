// Package dataset builds curated sample collections from filter queries and
// sampling policies.
package dataset

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/filter"
	"github.com/mwantia/manifest/pkg/log"
	"github.com/mwantia/manifest/pkg/sampling"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/datatypes"
)

var (
	samplesAddedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manifest_dataset_samples_added_total",
		Help: "Samples added to datasets, by sampling mode.",
	}, []string{"mode"})

	samplesRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "manifest_dataset_samples_removed_total",
		Help: "Samples removed from datasets.",
	})
)

const (
	defaultPreviewLimit = 20
	maxPreviewLimit     = 500
)

type Service struct {
	store store.MetadataStore
	log   log.LoggerService
}

func NewService(st store.MetadataStore, logger log.LoggerService) *Service {
	return &Service{
		store: st,
		log:   logger.Named("dataset"),
	}
}

type Preview struct {
	Total   int64            `json:"total"`
	Samples []*models.Sample `json:"samples"`
}

// Preview counts the samples matching params and returns one page of them.
func (s *Service) Preview(ctx context.Context, params filter.Params, skip, limit int) (*Preview, error) {
	query, err := filter.Build(params)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultPreviewLimit
	}
	limit = min(limit, maxPreviewLimit)

	total, err := s.store.CountSamples(ctx, query.Scope())
	if err != nil {
		return nil, fmt.Errorf("failed to count samples: %w", err)
	}
	samples, err := s.store.FindSamples(ctx, query.Scope(), store.WithAnnotation, store.OrderByCreated, store.Paginate(skip, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}

	return &Preview{Total: total, Samples: samples}, nil
}

type ClassStat struct {
	Class   string `json:"class"`
	Objects int    `json:"objects"`
	Samples int    `json:"samples"`
}

type ClassStats struct {
	Classes      []ClassStat `json:"classes"`
	TotalSamples int         `json:"total_samples"`
	TotalObjects int         `json:"total_objects"`
}

// ClassStats tallies the annotated objects of every sample matching params,
// most frequent class first.
func (s *Service) ClassStats(ctx context.Context, params filter.Params) (*ClassStats, error) {
	query, err := filter.Build(params)
	if err != nil {
		return nil, err
	}
	samples, err := s.store.FindSamples(ctx, query.Scope(), store.WithAnnotation)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}

	byClass := make(map[string]*ClassStat)
	stats := &ClassStats{TotalSamples: len(samples)}

	for _, sample := range samples {
		for class, n := range sample.ClassCounts() {
			stat, ok := byClass[class]
			if !ok {
				stat = &ClassStat{Class: class}
				byClass[class] = stat
			}
			stat.Objects += n
			stat.Samples++
			stats.TotalObjects += n
		}
	}

	stats.Classes = make([]ClassStat, 0, len(byClass))
	for _, stat := range byClass {
		stats.Classes = append(stats.Classes, *stat)
	}
	sort.Slice(stats.Classes, func(i, j int) bool {
		a, b := stats.Classes[i], stats.Classes[j]
		if a.Objects != b.Objects {
			return a.Objects > b.Objects
		}
		return a.Class < b.Class
	})
	return stats, nil
}

// AddResult reports one sampling run against a dataset.
type AddResult struct {
	Dataset     *models.Dataset                 `json:"dataset"`
	Candidates  int                             `json:"candidates"`
	Selected    int                             `json:"selected"`
	Added       int                             `json:"added"`
	Mode        sampling.Mode                   `json:"mode"`
	Achievement map[string]sampling.Achievement `json:"achievement,omitempty"`
}

// Build creates a dataset for ownerID from the samples matching params,
// narrowed by cfg.
func (s *Service) Build(ctx context.Context, ownerID, name, description string, params filter.Params, cfg sampling.Config) (*AddResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errdefs.Validation("dataset name is required")
	}

	sel, err := s.selectSamples(ctx, ownerID, params, cfg, "")
	if err != nil {
		return nil, err
	}

	dataset := &models.Dataset{
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
	}

	var added int
	err = s.store.Transaction(ctx, func(tx store.MetadataStore) error {
		if err := tx.CreateDataset(ctx, dataset); err != nil {
			return fmt.Errorf("failed to create dataset: %w", err)
		}
		n, err := s.add(ctx, tx, dataset, ids(sel.samples.Selected))
		added = n
		return err
	})
	if err != nil {
		return nil, err
	}

	samplesAddedTotal.WithLabelValues(string(cfg.Mode)).Add(float64(added))
	s.log.Info("Built dataset '%s' with %d of %d candidate(s) (%s)", dataset.Name, added, sel.candidates, cfg.Mode)

	return sel.result(dataset, added), nil
}

// AddFiltered grows an existing dataset with samples matching params that
// are not members yet.
func (s *Service) AddFiltered(ctx context.Context, ownerID, datasetID string, params filter.Params, cfg sampling.Config) (*AddResult, error) {
	dataset, err := s.Get(ctx, ownerID, datasetID)
	if err != nil {
		return nil, err
	}
	sel, err := s.selectSamples(ctx, ownerID, params, cfg, dataset.ID)
	if err != nil {
		return nil, err
	}

	var added int
	err = s.store.Transaction(ctx, func(tx store.MetadataStore) error {
		n, err := s.add(ctx, tx, dataset, ids(sel.samples.Selected))
		added = n
		return err
	})
	if err != nil {
		return nil, err
	}

	samplesAddedTotal.WithLabelValues(string(cfg.Mode)).Add(float64(added))
	s.log.Info("Added %d sample(s) to dataset '%s' (%s)", added, dataset.Name, cfg.Mode)

	return sel.result(dataset, added), nil
}

type selection struct {
	candidates int
	samples    *sampling.Result[*models.Sample]
}

func (sel *selection) result(dataset *models.Dataset, added int) *AddResult {
	return &AddResult{
		Dataset:     dataset,
		Candidates:  sel.candidates,
		Selected:    sel.samples.TotalSelected,
		Added:       added,
		Mode:        sel.samples.Mode,
		Achievement: sel.samples.Achievement,
	}
}

func (s *Service) selectSamples(ctx context.Context, ownerID string, params filter.Params, cfg sampling.Config, excludeDataset string) (*selection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Datasets only ever see their owner's catalog
	params.OwnerID = ownerID
	query, err := filter.Build(params)
	if err != nil {
		return nil, err
	}

	candidates, err := s.store.FindSamples(ctx, query.Scope(), store.NotInDataset(excludeDataset), store.WithAnnotation, store.OrderByCreated)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	result, err := sampling.Apply(candidates, cfg)
	if err != nil {
		return nil, err
	}
	return &selection{candidates: len(candidates), samples: result}, nil
}

// AddSamples adds explicitly chosen samples. Every id must name an active
// sample of the dataset owner.
func (s *Service) AddSamples(ctx context.Context, ownerID, datasetID string, sampleIDs []string) (int, error) {
	dataset, err := s.Get(ctx, ownerID, datasetID)
	if err != nil {
		return 0, err
	}

	var added int
	err = s.store.Transaction(ctx, func(tx store.MetadataStore) error {
		found, err := tx.FindSamples(ctx, store.WithIDs(sampleIDs), store.OwnedBy(ownerID), store.Active)
		if err != nil {
			return err
		}
		if missing := difference(sampleIDs, ids(found)); len(missing) > 0 {
			return errdefs.NotFound("samples %s", strings.Join(missing, ", "))
		}

		n, err := s.add(ctx, tx, dataset, ids(found))
		added = n
		return err
	})
	if err != nil {
		return 0, err
	}

	samplesAddedTotal.WithLabelValues("manual").Add(float64(added))
	return added, nil
}

// RemoveSamples drops members; ids that are not members are skipped.
func (s *Service) RemoveSamples(ctx context.Context, ownerID, datasetID string, sampleIDs []string) (int, error) {
	dataset, err := s.Get(ctx, ownerID, datasetID)
	if err != nil {
		return 0, err
	}

	var removed int
	err = s.store.Transaction(ctx, func(tx store.MetadataStore) error {
		members, err := tx.ListDatasetSampleIDs(ctx, dataset.ID)
		if err != nil {
			return err
		}
		targets := intersection(sampleIDs, members)

		n, err := tx.RemoveDatasetSamples(ctx, dataset.ID, targets)
		if err != nil {
			return fmt.Errorf("failed to remove samples: %w", err)
		}
		removed = n
		for _, id := range targets {
			if err := record(ctx, tx, id, models.HistoryRemovedFromDataset, dataset); err != nil {
				return err
			}
		}
		return recount(ctx, tx, dataset)
	})
	if err != nil {
		return 0, err
	}

	samplesRemovedTotal.Add(float64(removed))
	return removed, nil
}

// Get returns the dataset if ownerID owns it. Foreign datasets are
// reported as missing.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*models.Dataset, error) {
	dataset, err := s.store.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	if dataset.OwnerID != ownerID {
		return nil, errdefs.NotFound("dataset %s", id)
	}
	return dataset, nil
}

func (s *Service) SampleIDs(ctx context.Context, ownerID, id string) ([]string, error) {
	dataset, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.store.ListDatasetSampleIDs(ctx, dataset.ID)
}

// Delete removes the dataset and its memberships. Samples are untouched.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	dataset, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDataset(ctx, dataset.ID); err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}

	s.log.Info("Deleted dataset '%s'", dataset.Name)
	return nil
}

func (s *Service) add(ctx context.Context, tx store.MetadataStore, dataset *models.Dataset, sampleIDs []string) (int, error) {
	members, err := tx.ListDatasetSampleIDs(ctx, dataset.ID)
	if err != nil {
		return 0, err
	}
	fresh := difference(sampleIDs, members)

	added, err := tx.AddDatasetSamples(ctx, dataset.ID, fresh)
	if err != nil {
		return 0, fmt.Errorf("failed to add samples: %w", err)
	}
	for _, id := range fresh {
		if err := record(ctx, tx, id, models.HistoryAddedToDataset, dataset); err != nil {
			return 0, err
		}
	}
	return added, recount(ctx, tx, dataset)
}

// recount stores the membership size on the dataset row.
func recount(ctx context.Context, tx store.MetadataStore, dataset *models.Dataset) error {
	count, err := tx.CountDatasetSamples(ctx, dataset.ID)
	if err != nil {
		return fmt.Errorf("failed to count dataset samples: %w", err)
	}
	dataset.SampleCount = int(count)
	return tx.UpdateDataset(ctx, dataset)
}

func record(ctx context.Context, tx store.MetadataStore, sampleID string, action models.HistoryAction, dataset *models.Dataset) error {
	return tx.CreateHistory(ctx, &models.SampleHistory{
		SampleID: sampleID,
		Action:   action,
		Details: datatypes.JSONMap{
			"dataset_id":   dataset.ID,
			"dataset_name": dataset.Name,
		},
	})
}

func ids(samples []*models.Sample) []string {
	out := make([]string, 0, len(samples))
	for _, sample := range samples {
		out = append(out, sample.ID)
	}
	return out
}

// difference returns the distinct ids of a that are not in b, in order.
func difference(a, b []string) []string {
	skip := make(map[string]bool, len(b))
	for _, id := range b {
		skip[id] = true
	}
	var out []string
	for _, id := range a {
		if skip[id] {
			continue
		}
		skip[id] = true
		out = append(out, id)
	}
	return out
}

func intersection(a, b []string) []string {
	keep := make(map[string]bool, len(b))
	for _, id := range b {
		keep[id] = true
	}
	var out []string
	for _, id := range a {
		if keep[id] {
			keep[id] = false
			out = append(out, id)
		}
	}
	return out
}
