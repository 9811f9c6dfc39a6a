package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/mwantia/manifest/pkg/annotation"
	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/storage"
	"gorm.io/datatypes"
)

func (r *Reconciler) annotationCreated(ctx context.Context, instance *models.StorageInstance, ev storage.Event) (Result, error) {
	hash := storage.NormalizeETag(ev.ETag)
	stem := annotation.FileStem(ev.Key)

	var result Result
	var conflicted *models.Sample

	err := r.store.Transaction(ctx, func(tx store.MetadataStore) error {
		sample, err := tx.FindActiveSampleByStem(ctx, instance.ID, ev.Bucket, stem)
		if errdefs.IsNotFound(err) {
			result = Result{Outcome: OutcomeIgnored}
			return nil
		}
		if err != nil {
			return err
		}
		result = Result{Outcome: OutcomeNoop, SampleID: sample.ID}

		if sample.AnnotationStatus != models.AnnotationLinked || sample.AnnotationHash == hash {
			return nil
		}

		// A second file claims the sample; the linked annotation stays.
		details := datatypes.JSONMap{
			"old_annotation": sample.AnnotationKey,
			"new_annotation": ev.Key,
			"old_hash":       sample.AnnotationHash,
			"new_hash":       hash,
		}
		sample.AnnotationStatus = models.AnnotationConflict
		if err := tx.UpdateSample(ctx, sample); err != nil {
			return fmt.Errorf("failed to flag conflict: %w", err)
		}
		if err := r.history(ctx, tx, sample.ID, models.HistoryAnnotationConflict, details); err != nil {
			return err
		}

		conflicted = sample
		result.Outcome = OutcomeConflict
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if conflicted != nil {
		r.annotationChanged(ctx, conflicted)
		return result, nil
	}
	if result.Outcome != OutcomeNoop {
		return result, nil
	}

	sample, err := r.store.GetSample(ctx, result.SampleID)
	if err != nil {
		return result, err
	}
	if sample.AnnotationStatus != models.AnnotationNone {
		// conflict and error only leave through Reprocess
		return result, nil
	}

	outcome, err := r.link(ctx, sample, ev.Key, hash)
	if err != nil {
		return result, err
	}
	result.Outcome = outcome
	return result, nil
}

// matchAnnotation looks for an annotation file with the sample's stem and
// links the first one in key order.
func (r *Reconciler) matchAnnotation(ctx context.Context, sample *models.Sample) (Outcome, error) {
	if sample.FileStem == "" {
		return OutcomeNoop, nil
	}

	objects, err := r.objectStore(sample.StorageInstanceID)
	if err != nil {
		return "", err
	}
	infos, err := objects.List(ctx, sample.Bucket, "")
	if err != nil {
		return "", fmt.Errorf("failed to list bucket '%s': %w", sample.Bucket, err)
	}

	var candidates []storage.ObjectInfo
	for _, info := range infos {
		if annotation.IsAnnotationKey(info.Key) && annotation.FileStem(info.Key) == sample.FileStem {
			candidates = append(candidates, info)
		}
	}
	if len(candidates) == 0 {
		return OutcomeNoop, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Key < candidates[j].Key
	})

	return r.link(ctx, sample, candidates[0].Key, storage.NormalizeETag(candidates[0].ETag))
}

// link fetches and parses key and attaches the result to sample, provided
// the sample is still active and unlinked when the write happens. A parse
// failure moves the sample to the error state.
func (r *Reconciler) link(ctx context.Context, sample *models.Sample, key, hash string) (Outcome, error) {
	objects, err := r.objectStore(sample.StorageInstanceID)
	if err != nil {
		return "", err
	}
	data, err := objects.Get(ctx, sample.Bucket, key)
	if err != nil {
		return "", fmt.Errorf("failed to fetch annotation '%s': %w", key, err)
	}

	var parsed *models.Annotation
	parsedResult, parseErr := r.parser.Parse(data)
	if parseErr == nil {
		parsed, parseErr = parsedResult.Annotation(sample.ID)
	}

	var outcome Outcome
	var changed *models.Sample

	err = r.store.Transaction(ctx, func(tx store.MetadataStore) error {
		current, err := tx.GetSample(ctx, sample.ID)
		if err != nil {
			return err
		}
		if current.Status != models.SampleActive || current.AnnotationStatus != models.AnnotationNone {
			outcome = OutcomeNoop
			return nil
		}

		current.AnnotationKey = key
		current.AnnotationHash = hash

		if parseErr != nil {
			current.AnnotationStatus = models.AnnotationError
			if err := tx.UpdateSample(ctx, current); err != nil {
				return fmt.Errorf("failed to flag parse error: %w", err)
			}
			if err := r.history(ctx, tx, current.ID, models.HistoryAnnotationError, datatypes.JSONMap{
				"annotation_key": key,
				"error":          parseErr.Error(),
			}); err != nil {
				return err
			}
			outcome = OutcomeError
			changed = current
			return nil
		}

		if err := tx.CreateAnnotation(ctx, parsed); err != nil {
			return fmt.Errorf("failed to store annotation: %w", err)
		}
		current.AnnotationStatus = models.AnnotationLinked
		if err := tx.UpdateSample(ctx, current); err != nil {
			return fmt.Errorf("failed to link annotation: %w", err)
		}
		if err := r.history(ctx, tx, current.ID, models.HistoryAnnotationLinked, datatypes.JSONMap{
			"annotation_key": key,
			"object_count":   parsed.ObjectCount,
		}); err != nil {
			return err
		}

		current.Annotation = parsed
		outcome = OutcomeLinked
		changed = current
		return nil
	})
	if err != nil {
		return "", err
	}

	if parseErr != nil && outcome == OutcomeError {
		r.log.Warn("Failed to parse annotation %s/%s: %v", sample.Bucket, key, parseErr)
	}
	if changed != nil {
		*sample = *changed
		r.annotationChanged(ctx, changed)
	}
	return outcome, nil
}

// annotationRemoved detaches the annotation whose file was removed. The
// sample itself is untouched.
func (r *Reconciler) annotationRemoved(ctx context.Context, instance *models.StorageInstance, ev storage.Event) (Result, error) {
	var result Result
	var changed *models.Sample

	err := r.store.Transaction(ctx, func(tx store.MetadataStore) error {
		sample, err := tx.FindSampleByAnnotationKey(ctx, instance.ID, ev.Bucket, ev.Key)
		if errdefs.IsNotFound(err) {
			result = Result{Outcome: OutcomeIgnored}
			return nil
		}
		if err != nil {
			return err
		}

		if err := r.unlink(ctx, tx, sample, datatypes.JSONMap{
			"event":      string(ev.Type),
			"annotation": ev.Key,
		}); err != nil {
			return err
		}

		changed = sample
		result = Result{Outcome: OutcomeUnlinked, SampleID: sample.ID}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if changed != nil {
		r.annotationChanged(ctx, changed)
	}
	return result, nil
}

// unlink drops the annotation row and resets the link fields.
func (r *Reconciler) unlink(ctx context.Context, tx store.MetadataStore, sample *models.Sample, details datatypes.JSONMap) error {
	if err := tx.DeleteAnnotationBySample(ctx, sample.ID); err != nil {
		return fmt.Errorf("failed to delete annotation: %w", err)
	}

	sample.AnnotationKey = ""
	sample.AnnotationHash = ""
	sample.AnnotationStatus = models.AnnotationNone
	sample.Annotation = nil
	if err := tx.UpdateSample(ctx, sample); err != nil {
		return fmt.Errorf("failed to reset annotation link: %w", err)
	}
	return r.history(ctx, tx, sample.ID, models.HistoryAnnotationRemoved, details)
}
