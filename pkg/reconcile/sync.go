package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mwantia/manifest/pkg/annotation"
	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/storage"
	"gorm.io/datatypes"
)

// Reprocess drops whatever annotation a sample has and links it again,
// either to annotationKey or, when empty, to the first file matching its
// stem. It is the only way out of the conflict and error states.
func (r *Reconciler) Reprocess(ctx context.Context, sampleID, annotationKey string) (Result, error) {
	sample, err := r.store.GetSample(ctx, sampleID)
	if err != nil {
		return Result{}, err
	}
	if sample.Status != models.SampleActive {
		return Result{}, errdefs.Validation("sample %s is %s", sampleID, sample.Status)
	}
	if annotationKey != "" && !annotation.IsAnnotationKey(annotationKey) {
		return Result{}, errdefs.Validation("'%s' is not an annotation file", annotationKey)
	}

	objects, err := r.objectStore(sample.StorageInstanceID)
	if err != nil {
		return Result{}, err
	}

	hash := ""
	if annotationKey != "" {
		info, err := objects.Stat(ctx, sample.Bucket, annotationKey)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return Result{}, errdefs.NotFound("annotation %s/%s", sample.Bucket, annotationKey)
		}
		if err != nil {
			return Result{}, err
		}
		hash = storage.NormalizeETag(info.ETag)
	}

	reset := sample.AnnotationStatus != models.AnnotationNone || sample.AnnotationKey != ""
	if reset {
		err := r.store.Transaction(ctx, func(tx store.MetadataStore) error {
			return r.unlink(ctx, tx, sample, datatypes.JSONMap{
				"reason":     "reprocess",
				"annotation": sample.AnnotationKey,
				"status":     string(sample.AnnotationStatus),
			})
		})
		if err != nil {
			return Result{}, err
		}
	}

	var outcome Outcome
	if annotationKey != "" {
		outcome, err = r.link(ctx, sample, annotationKey, hash)
	} else {
		outcome, err = r.matchAnnotation(ctx, sample)
	}
	if err != nil {
		return Result{SampleID: sample.ID}, err
	}

	// link only notifies when it wrote something
	if reset && outcome == OutcomeNoop {
		outcome = OutcomeUnlinked
		r.annotationChanged(ctx, sample)
	}

	r.log.Info("Reprocessed sample %s: %s", sample.ID, outcome)
	return Result{Outcome: outcome, SampleID: sample.ID}, nil
}

// Sync rescans a bucket and feeds the difference to the catalog as events:
// images first so annotations find their samples, then removals for
// catalogued objects that no longer exist.
func (r *Reconciler) Sync(ctx context.Context, instanceID, bucket, prefix string) ([]Result, error) {
	objects, err := r.objectStore(instanceID)
	if err != nil {
		return nil, err
	}
	infos, err := objects.List(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket '%s': %w", bucket, err)
	}

	present := make(map[string]struct{}, len(infos))
	var images, annotations []storage.Event
	for _, info := range infos {
		present[info.Key] = struct{}{}

		ev := storage.Event{
			Type:        storage.EventCreated,
			Bucket:      bucket,
			Key:         info.Key,
			ETag:        info.ETag,
			ContentType: info.ContentType,
			Size:        info.Size,
		}
		switch {
		case annotation.IsImageKey(info.Key):
			images = append(images, ev)
		case annotation.IsAnnotationKey(info.Key):
			annotations = append(annotations, ev)
		}
	}

	samples, err := r.store.FindSamples(ctx, store.InBucket(instanceID, bucket, prefix), store.Active, store.OrderByCreated)
	if err != nil {
		return nil, err
	}

	var removed []storage.Event
	for _, sample := range samples {
		if sample.AnnotationKey != "" {
			gone, err := r.vanished(ctx, objects, bucket, prefix, sample.AnnotationKey, present)
			if err != nil {
				r.log.Warn("Failed to check annotation %s/%s: %v", bucket, sample.AnnotationKey, err)
			} else if gone {
				removed = append(removed, storage.Event{Type: storage.EventRemoved, Bucket: bucket, Key: sample.AnnotationKey})
			}
		}
		if _, ok := present[sample.ObjectKey]; !ok {
			removed = append(removed, storage.Event{Type: storage.EventRemoved, Bucket: bucket, Key: sample.ObjectKey})
		}
	}

	events := append(append(images, annotations...), removed...)
	results, err := r.batch(ctx, instanceID, events, models.SourceSync)

	changed := 0
	for _, result := range results {
		if result.Changed() {
			changed++
		}
	}
	r.log.Info("Synced %s/%s: %d objects, %d changes", bucket, prefix, len(infos), changed)

	return results, err
}

// vanished reports whether key no longer exists. Keys outside the listed
// prefix were not part of the listing and are checked individually.
func (r *Reconciler) vanished(ctx context.Context, objects storage.ObjectStore, bucket, prefix, key string, present map[string]struct{}) (bool, error) {
	if strings.HasPrefix(key, prefix) {
		_, ok := present[key]
		return !ok, nil
	}

	_, err := objects.Stat(ctx, bucket, key)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, storage.ErrObjectNotFound):
		return true, nil
	default:
		return false, err
	}
}

// Watch consumes notifications for bucket/prefix until ctx is cancelled.
// When the stream ends on its own, it subscribes again after retry.
func (r *Reconciler) Watch(ctx context.Context, instanceID string, listener storage.Listener, bucket, prefix string, retry time.Duration) error {
	for {
		events, errs := listener.Listen(ctx, bucket, prefix)
		if err := r.Consume(ctx, instanceID, events, errs); err != nil {
			return err
		}

		r.log.Warn("Listener for %s/%s stopped, subscribing again in %s", bucket, prefix, retry)
		listenerRestartsTotal.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

// Consume applies events from a listener until ctx is cancelled or the
// event channel closes. Failures are logged and do not stop the loop.
func (r *Reconciler) Consume(ctx context.Context, instanceID string, events <-chan storage.Event, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.log.Warn("Listener for instance %s reported: %v", instanceID, err)

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			// Errors are already logged by handle
			_, _ = r.HandleEvent(ctx, instanceID, ev)
		}
	}
}
