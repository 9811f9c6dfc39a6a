package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/mwantia/manifest/pkg/annotation"
	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/storage"
	"gorm.io/datatypes"
)

func (r *Reconciler) imageCreated(ctx context.Context, instance *models.StorageInstance, ev storage.Event, source models.SampleSource) (Result, error) {
	hash := storage.NormalizeETag(ev.ETag)

	var result Result
	var sample *models.Sample

	err := r.store.Transaction(ctx, func(tx store.MetadataStore) error {
		existing, err := tx.GetSampleByPath(ctx, instance.ID, ev.Bucket, ev.Key)
		if err != nil && !errdefs.IsNotFound(err) {
			return err
		}

		if hash != "" {
			twin, err := tx.FindActiveSampleByHash(ctx, instance.OwnerID, hash)
			switch {
			case err == nil && (existing == nil || twin.ID != existing.ID):
				result = Result{Outcome: OutcomeDuplicate, SampleID: twin.ID}
				return nil
			case err != nil && !errdefs.IsNotFound(err):
				return err
			}
		}

		switch {
		case existing == nil:
			sample, err = r.createSample(ctx, tx, instance, ev, hash, source)
			if err != nil {
				return err
			}
			result = Result{Outcome: OutcomeCreated, SampleID: sample.ID}

		case existing.Status == models.SampleDeleted:
			refresh(existing, ev, hash)
			existing.Status = models.SampleActive
			existing.DeletedAt = nil
			if err := tx.UpdateSample(ctx, existing); err != nil {
				return fmt.Errorf("failed to restore sample: %w", err)
			}
			if err := r.history(ctx, tx, existing.ID, models.HistoryRestored, datatypes.JSONMap{
				"source": string(source),
			}); err != nil {
				return err
			}
			sample = existing
			result = Result{Outcome: OutcomeResurrected, SampleID: existing.ID}

		case hash != "" && existing.FileHash != hash:
			previous := existing.FileHash
			refresh(existing, ev, hash)
			if err := tx.UpdateSample(ctx, existing); err != nil {
				return fmt.Errorf("failed to update sample: %w", err)
			}
			if err := r.history(ctx, tx, existing.ID, models.HistoryUpdated, datatypes.JSONMap{
				"old_hash": previous,
				"new_hash": hash,
			}); err != nil {
				return err
			}
			result = Result{Outcome: OutcomeUpdated, SampleID: existing.ID}

		default:
			result = Result{Outcome: OutcomeNoop, SampleID: existing.ID}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if result.Outcome == OutcomeCreated {
		r.sampleCreated(ctx, sample)
	}

	// New and restored samples look for an annotation that arrived first.
	if sample != nil && sample.AnnotationStatus == models.AnnotationNone {
		if _, err := r.matchAnnotation(ctx, sample); err != nil {
			return result, fmt.Errorf("failed to match annotation: %w", err)
		}
	}
	return result, nil
}

func (r *Reconciler) createSample(ctx context.Context, tx store.MetadataStore, instance *models.StorageInstance, ev storage.Event, hash string, source models.SampleSource) (*models.Sample, error) {
	sample := &models.Sample{
		StorageInstanceID: instance.ID,
		OwnerID:           instance.OwnerID,
		Bucket:            ev.Bucket,
		ObjectKey:         ev.Key,
		FileName:          annotation.FileName(ev.Key),
		AnnotationStatus:  models.AnnotationNone,
		Status:            models.SampleActive,
		Source:            source,
	}
	refresh(sample, ev, hash)

	if err := tx.CreateSample(ctx, sample); err != nil {
		return nil, fmt.Errorf("failed to create sample: %w", err)
	}
	if err := r.history(ctx, tx, sample.ID, models.HistoryCreated, datatypes.JSONMap{
		"source": string(source),
		"event":  string(ev.Type),
	}); err != nil {
		return nil, err
	}
	return sample, nil
}

// refresh copies the object metadata carried by ev onto sample.
func refresh(sample *models.Sample, ev storage.Event, hash string) {
	sample.FileStem = annotation.FileStem(ev.Key)
	sample.FileHash = hash
	sample.ETag = hash
	if ev.Size > 0 {
		sample.FileSize = ev.Size
	}
	if ev.ContentType != "" {
		sample.ContentType = ev.ContentType
	}
}

// imageRemoved soft deletes the sample. Its annotation stays attached.
func (r *Reconciler) imageRemoved(ctx context.Context, instance *models.StorageInstance, ev storage.Event) (Result, error) {
	var result Result

	err := r.store.Transaction(ctx, func(tx store.MetadataStore) error {
		sample, err := tx.GetSampleByPath(ctx, instance.ID, ev.Bucket, ev.Key)
		if errdefs.IsNotFound(err) {
			result = Result{Outcome: OutcomeIgnored}
			return nil
		}
		if err != nil {
			return err
		}
		if sample.Status == models.SampleDeleted {
			result = Result{Outcome: OutcomeNoop, SampleID: sample.ID}
			return nil
		}

		now := time.Now().UTC()
		sample.Status = models.SampleDeleted
		sample.DeletedAt = &now
		if err := tx.UpdateSample(ctx, sample); err != nil {
			return fmt.Errorf("failed to delete sample: %w", err)
		}
		if err := r.history(ctx, tx, sample.ID, models.HistoryDeleted, datatypes.JSONMap{
			"event": string(ev.Type),
		}); err != nil {
			return err
		}

		result = Result{Outcome: OutcomeDeleted, SampleID: sample.ID}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}
