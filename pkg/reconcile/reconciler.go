// Package reconcile keeps each sample linked to at most one annotation while
// image and annotation files arrive independently from the object store.
//
// Every handler is safe under re-delivery: a replayed event either finds the
// state it would produce and does nothing, or is ignored.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mwantia/manifest/pkg/annotation"
	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/log"
	"github.com/mwantia/manifest/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/datatypes"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "manifest_reconcile_events_total",
	Help: "Object store events handled by the reconciler.",
}, []string{"event", "outcome"})

var listenerRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "manifest_reconcile_listener_restarts_total",
	Help: "Notification streams that ended and were subscribed again.",
})

type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeResurrected Outcome = "resurrected"
	OutcomeUpdated     Outcome = "updated"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeLinked      Outcome = "linked"
	OutcomeConflict    Outcome = "conflict"
	OutcomeError       Outcome = "error"
	OutcomeDeleted     Outcome = "deleted"
	OutcomeUnlinked    Outcome = "unlinked"
	OutcomeIgnored     Outcome = "ignored"
	OutcomeNoop        Outcome = "noop"
)

// Result reports what one event did. SampleID is empty when no sample was
// involved.
type Result struct {
	Event    storage.Event `json:"event"`
	Outcome  Outcome       `json:"outcome"`
	SampleID string        `json:"sample_id,omitempty"`
}

// Changed reports whether the event mutated the catalog.
func (r Result) Changed() bool {
	switch r.Outcome {
	case OutcomeNoop, OutcomeIgnored, OutcomeDuplicate, "":
		return false
	}
	return true
}

// Hooks observe committed sample transitions. Each call gets its own
// transaction; failures are logged and never undo the transition.
type Hooks interface {
	SampleCreated(ctx context.Context, st store.MetadataStore, sample *models.Sample) error
	AnnotationChanged(ctx context.Context, st store.MetadataStore, sample *models.Sample) error
}

type Reconciler struct {
	mutex sync.RWMutex

	store   store.MetadataStore
	parser  annotation.Parser
	hooks   Hooks
	log     log.LoggerService
	objects map[string]storage.ObjectStore
}

type Option func(*Reconciler)

func WithHooks(hooks Hooks) Option {
	return func(r *Reconciler) {
		r.hooks = hooks
	}
}

// WithParser replaces the VOC parser.
func WithParser(parser annotation.Parser) Option {
	return func(r *Reconciler) {
		r.parser = parser
	}
}

func New(st store.MetadataStore, logger log.LoggerService, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:   st,
		parser:  annotation.VOC,
		log:     logger.Named("reconcile"),
		objects: make(map[string]storage.ObjectStore),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds the object store backing a storage instance.
func (r *Reconciler) Register(instanceID string, objects storage.ObjectStore) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.objects[instanceID] = objects
}

func (r *Reconciler) objectStore(instanceID string) (storage.ObjectStore, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	objects, ok := r.objects[instanceID]
	if !ok {
		return nil, errdefs.NotFound("object store for instance %s", instanceID)
	}
	return objects, nil
}

// HandleEvent applies one notification. Keys that are neither images nor
// annotations are ignored.
func (r *Reconciler) HandleEvent(ctx context.Context, instanceID string, ev storage.Event) (Result, error) {
	return r.handle(ctx, instanceID, ev, models.SourceWebhook)
}

// HandleBatch applies every event in order. A failing event does not stop
// the rest; the failures are joined into the returned error.
func (r *Reconciler) HandleBatch(ctx context.Context, instanceID string, events []storage.Event) ([]Result, error) {
	return r.batch(ctx, instanceID, events, models.SourceWebhook)
}

func (r *Reconciler) batch(ctx context.Context, instanceID string, events []storage.Event, source models.SampleSource) ([]Result, error) {
	results := make([]Result, 0, len(events))
	var errs []error

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		result, err := r.handle(ctx, instanceID, ev, source)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s/%s: %w", ev.Type, ev.Bucket, ev.Key, err))
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

func (r *Reconciler) handle(ctx context.Context, instanceID string, ev storage.Event, source models.SampleSource) (Result, error) {
	if ev.Bucket == "" || ev.Key == "" {
		return Result{Event: ev, Outcome: OutcomeIgnored}, nil
	}

	instance, err := r.store.GetStorageInstance(ctx, instanceID)
	if err != nil {
		return Result{Event: ev}, err
	}

	var kind string
	var result Result
	switch {
	case ev.Type == storage.EventCreated && annotation.IsImageKey(ev.Key):
		kind = "image_created"
		result, err = r.imageCreated(ctx, instance, ev, source)
	case ev.Type == storage.EventCreated && annotation.IsAnnotationKey(ev.Key):
		kind = "annotation_created"
		result, err = r.annotationCreated(ctx, instance, ev)
	case ev.Type == storage.EventRemoved && annotation.IsImageKey(ev.Key):
		kind = "image_removed"
		result, err = r.imageRemoved(ctx, instance, ev)
	case ev.Type == storage.EventRemoved && annotation.IsAnnotationKey(ev.Key):
		kind = "annotation_removed"
		result, err = r.annotationRemoved(ctx, instance, ev)
	default:
		kind = "other"
		result = Result{Outcome: OutcomeIgnored}
	}
	result.Event = ev

	outcome := string(result.Outcome)
	if err != nil {
		outcome = "failed"
	}
	eventsTotal.WithLabelValues(kind, outcome).Inc()

	if err != nil {
		r.log.Warn("Failed to handle %s for %s/%s: %v", kind, ev.Bucket, ev.Key, err)
		return result, err
	}
	if result.Changed() {
		r.log.Debug("Handled %s for %s/%s: %s", kind, ev.Bucket, ev.Key, result.Outcome)
	}
	return result, nil
}

func (r *Reconciler) history(ctx context.Context, st store.MetadataStore, sampleID string, action models.HistoryAction, details datatypes.JSONMap) error {
	if err := st.CreateHistory(ctx, &models.SampleHistory{
		SampleID: sampleID,
		Action:   action,
		Details:  details,
	}); err != nil {
		return fmt.Errorf("failed to record %s history: %w", action, err)
	}
	return nil
}

// notify runs a hook after its transition committed.
func (r *Reconciler) notify(ctx context.Context, sample *models.Sample, fn func(Hooks, context.Context, store.MetadataStore, *models.Sample) error) {
	if r.hooks == nil {
		return
	}

	err := r.store.Transaction(ctx, func(tx store.MetadataStore) error {
		return fn(r.hooks, ctx, tx, sample)
	})
	if err != nil {
		r.log.Warn("Hook failed for sample %s: %v", sample.ID, err)
	}
}

func (r *Reconciler) sampleCreated(ctx context.Context, sample *models.Sample) {
	r.notify(ctx, sample, Hooks.SampleCreated)
}

func (r *Reconciler) annotationChanged(ctx context.Context, sample *models.Sample) {
	r.notify(ctx, sample, Hooks.AnnotationChanged)
}
