package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/db/store/storetest"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/log"
	"github.com/mwantia/manifest/pkg/storage"
	"github.com/mwantia/manifest/pkg/tagging"
	"github.com/mwantia/manifest/pkg/tags"
)

type fixture struct {
	r       *Reconciler
	st      *store.SQLiteStore
	objects *storage.MemoryStore
	inst    *models.StorageInstance
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	st := storetest.New(t)
	inst := storetest.Instance(t, st, "primary", "alice")
	objects := storage.NewMemoryStore()

	r := New(st, log.NewDiscardLogger(), opts...)
	r.Register(inst.ID, objects)

	return &fixture{r: r, st: st, objects: objects, inst: inst}
}

func (f *fixture) handle(t *testing.T, ev storage.Event, want Outcome) Result {
	t.Helper()

	result, err := f.r.HandleEvent(context.Background(), f.inst.ID, ev)
	if err != nil {
		t.Fatalf("HandleEvent(%s %s) error = %v", ev.Type, ev.Key, err)
	}
	if result.Outcome != want {
		t.Fatalf("HandleEvent(%s %s) = %s, want %s", ev.Type, ev.Key, result.Outcome, want)
	}
	return result
}

func (f *fixture) sample(t *testing.T, id string) *models.Sample {
	t.Helper()

	sample, err := f.st.GetSample(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSample(%s) error = %v", id, err)
	}
	return sample
}

func (f *fixture) history(t *testing.T, id string) map[models.HistoryAction]int {
	t.Helper()

	entries, err := f.st.ListHistory(context.Background(), id)
	if err != nil {
		t.Fatalf("ListHistory(%s) error = %v", id, err)
	}
	actions := make(map[models.HistoryAction]int)
	for _, entry := range entries {
		actions[entry.Action]++
	}
	return actions
}

func (f *fixture) image(key string) storage.Event {
	return f.objects.Put("data", key, "image/jpeg", []byte("pixels of "+key))
}

func (f *fixture) label(key string, classes ...string) storage.Event {
	return f.objects.Put("data", key, "application/xml", voc(classes...))
}

func voc(classes ...string) []byte {
	var sb strings.Builder
	sb.WriteString("<annotation><size><width>640</width><height>480</height></size>")
	for i, class := range classes {
		fmt.Fprintf(&sb, "<object><name>%s</name><bndbox><xmin>%d</xmin><ymin>0</ymin><xmax>%d</xmax><ymax>10</ymax></bndbox></object>",
			class, i, i+10)
	}
	sb.WriteString("</annotation>")
	return []byte(sb.String())
}

func TestImageThenAnnotation(t *testing.T) {
	f := newFixture(t)

	created := f.handle(t, f.image("train/img_001.jpg"), OutcomeCreated)
	sample := f.sample(t, created.SampleID)
	if sample.AnnotationStatus != models.AnnotationNone || sample.Source != models.SourceWebhook {
		t.Fatalf("new sample = %s/%s", sample.AnnotationStatus, sample.Source)
	}
	if sample.FileStem != "img_001" || sample.ContentType != "image/jpeg" {
		t.Errorf("sample metadata = %q %q", sample.FileStem, sample.ContentType)
	}

	linked := f.handle(t, f.label("labels/img_001.xml", "person", "person", "car"), OutcomeLinked)
	if linked.SampleID != created.SampleID {
		t.Fatalf("linked sample %s, want %s", linked.SampleID, created.SampleID)
	}

	sample = f.sample(t, created.SampleID)
	if sample.AnnotationStatus != models.AnnotationLinked || sample.AnnotationKey != "labels/img_001.xml" {
		t.Fatalf("sample = %s %q", sample.AnnotationStatus, sample.AnnotationKey)
	}
	if sample.Annotation == nil || sample.Annotation.ObjectCount != 3 {
		t.Fatalf("annotation = %+v", sample.Annotation)
	}
	if counts := sample.ClassCounts(); counts["person"] != 2 || counts["car"] != 1 {
		t.Errorf("class counts = %v", counts)
	}

	history := f.history(t, sample.ID)
	if history[models.HistoryCreated] != 1 || history[models.HistoryAnnotationLinked] != 1 {
		t.Errorf("history = %v", history)
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	image := f.image("img.jpg")
	created := f.handle(t, image, OutcomeCreated)
	label := f.label("img.xml", "dog")
	f.handle(t, label, OutcomeLinked)
	before := f.history(t, created.SampleID)

	for i := 0; i < 3; i++ {
		f.handle(t, image, OutcomeNoop)
		f.handle(t, label, OutcomeNoop)
	}

	after := f.history(t, created.SampleID)
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Errorf("history changed on replay: %v -> %v", before, after)
	}

	annotations, err := f.st.ListAnnotationsBySamples(ctx, []string{created.SampleID})
	if err != nil {
		t.Fatal(err)
	}
	if len(annotations) != 1 {
		t.Errorf("annotations = %d, want 1", len(annotations))
	}

	count, err := f.st.CountSamples(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("samples = %d, want 1", count)
	}
}

func TestAnnotationBeforeImage(t *testing.T) {
	f := newFixture(t)

	f.handle(t, f.label("img_002.xml", "cat", "cat"), OutcomeIgnored)
	created := f.handle(t, f.image("img_002.jpg"), OutcomeCreated)

	sample := f.sample(t, created.SampleID)
	if sample.AnnotationStatus != models.AnnotationLinked || sample.AnnotationKey != "img_002.xml" {
		t.Fatalf("sample = %s %q, want linked to the waiting annotation", sample.AnnotationStatus, sample.AnnotationKey)
	}
	if sample.Annotation.ObjectCount != 2 {
		t.Errorf("ObjectCount = %d, want 2", sample.Annotation.ObjectCount)
	}
}

func TestMatchPicksFirstKey(t *testing.T) {
	f := newFixture(t)

	f.label("b/img.xml", "late")
	f.label("a/img.xml", "early")
	f.label("a/other.xml", "unrelated")

	created := f.handle(t, f.image("img.jpg"), OutcomeCreated)
	sample := f.sample(t, created.SampleID)
	if sample.AnnotationKey != "a/img.xml" {
		t.Errorf("AnnotationKey = %q, want a/img.xml", sample.AnnotationKey)
	}
}

func TestConflictKeepsOriginal(t *testing.T) {
	f := newFixture(t)

	created := f.handle(t, f.image("img.jpg"), OutcomeCreated)
	f.handle(t, f.label("img.xml", "dog"), OutcomeLinked)
	original := f.sample(t, created.SampleID)

	changed := f.label("img.xml", "dog", "cat")
	f.handle(t, changed, OutcomeConflict)
	f.handle(t, changed, OutcomeNoop)
	f.handle(t, f.label("other/img.xml", "bird"), OutcomeNoop)

	sample := f.sample(t, created.SampleID)
	if sample.AnnotationStatus != models.AnnotationConflict {
		t.Fatalf("status = %s, want conflict", sample.AnnotationStatus)
	}
	if sample.AnnotationHash != original.AnnotationHash {
		t.Errorf("annotation hash changed to %q", sample.AnnotationHash)
	}
	if sample.Annotation == nil || sample.Annotation.ObjectCount != 1 {
		t.Errorf("original annotation was replaced: %+v", sample.Annotation)
	}
	if got := f.history(t, sample.ID)[models.HistoryAnnotationConflict]; got != 1 {
		t.Errorf("conflict history entries = %d, want 1", got)
	}
}

func TestParseErrorMarksSample(t *testing.T) {
	f := newFixture(t)

	created := f.handle(t, f.image("img.jpg"), OutcomeCreated)
	f.handle(t, f.objects.Put("data", "img.xml", "application/xml", []byte("<annotation><object>")), OutcomeError)

	sample := f.sample(t, created.SampleID)
	if sample.AnnotationStatus != models.AnnotationError || sample.Annotation != nil {
		t.Fatalf("sample = %s %+v, want error without annotation", sample.AnnotationStatus, sample.Annotation)
	}
	if f.history(t, sample.ID)[models.HistoryAnnotationError] != 1 {
		t.Error("missing annotation_error history")
	}

	// Errors only clear through Reprocess
	f.handle(t, f.label("img.xml", "dog"), OutcomeNoop)
}

func TestAnnotationRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.handle(t, f.image("img.jpg"), OutcomeCreated)
	f.handle(t, f.label("img.xml", "dog"), OutcomeLinked)

	removed := f.objects.Remove("data", "img.xml")
	f.handle(t, removed, OutcomeUnlinked)
	f.handle(t, removed, OutcomeIgnored)
	f.handle(t, f.objects.Remove("data", "never.xml"), OutcomeIgnored)

	sample := f.sample(t, created.SampleID)
	if sample.AnnotationStatus != models.AnnotationNone || sample.AnnotationKey != "" || sample.AnnotationHash != "" {
		t.Errorf("sample = %s %q %q", sample.AnnotationStatus, sample.AnnotationKey, sample.AnnotationHash)
	}
	if _, err := f.st.GetAnnotationBySample(ctx, sample.ID); !errdefs.IsNotFound(err) {
		t.Errorf("GetAnnotationBySample() error = %v, want not found", err)
	}
	if f.history(t, sample.ID)[models.HistoryAnnotationRemoved] != 1 {
		t.Error("missing annotation_removed history")
	}

	// A new file links again
	f.handle(t, f.label("img.xml", "cat"), OutcomeLinked)
}

func TestImageRemovedAndResurrected(t *testing.T) {
	f := newFixture(t)

	image := f.image("img.jpg")
	created := f.handle(t, image, OutcomeCreated)
	f.handle(t, f.label("img.xml", "dog"), OutcomeLinked)

	removed := f.objects.Remove("data", "img.jpg")
	f.handle(t, removed, OutcomeDeleted)
	f.handle(t, removed, OutcomeNoop)

	sample := f.sample(t, created.SampleID)
	if sample.Status != models.SampleDeleted || sample.DeletedAt == nil {
		t.Fatalf("sample = %s %v", sample.Status, sample.DeletedAt)
	}
	if sample.AnnotationStatus != models.AnnotationLinked {
		t.Errorf("annotation status = %s, want it kept", sample.AnnotationStatus)
	}

	restored := f.handle(t, f.image("img.jpg"), OutcomeResurrected)
	if restored.SampleID != created.SampleID {
		t.Fatalf("resurrected %s, want %s", restored.SampleID, created.SampleID)
	}
	sample = f.sample(t, created.SampleID)
	if sample.Status != models.SampleActive || sample.DeletedAt != nil {
		t.Errorf("sample = %s %v", sample.Status, sample.DeletedAt)
	}
	if f.history(t, sample.ID)[models.HistoryRestored] != 1 {
		t.Error("missing restored history")
	}
}

func TestImageContentChanged(t *testing.T) {
	f := newFixture(t)

	created := f.handle(t, f.image("img.jpg"), OutcomeCreated)
	f.handle(t, f.objects.Put("data", "img.jpg", "image/jpeg", []byte("retouched")), OutcomeUpdated)

	history := f.history(t, created.SampleID)
	if history[models.HistoryUpdated] != 1 {
		t.Errorf("history = %v", history)
	}
}

func TestDuplicateContentIsScopedByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.handle(t, f.objects.Put("data", "a.jpg", "image/jpeg", []byte("same")), OutcomeCreated)
	dup := f.handle(t, f.objects.Put("data", "copy/a.jpg", "image/jpeg", []byte("same")), OutcomeDuplicate)
	if dup.SampleID != first.SampleID {
		t.Errorf("duplicate points at %s, want %s", dup.SampleID, first.SampleID)
	}

	other := storetest.Instance(t, f.st, "secondary", "bob")
	f.r.Register(other.ID, f.objects)
	result, err := f.r.HandleEvent(ctx, other.ID, f.objects.Put("data", "b.jpg", "image/jpeg", []byte("same")))
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("other owner outcome = %s, want created", result.Outcome)
	}

	count, err := f.st.CountSamples(ctx, store.OwnedBy("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("alice has %d samples, want 1", count)
	}
}

func TestIgnoredEvents(t *testing.T) {
	f := newFixture(t)

	f.handle(t, f.objects.Put("data", "notes.txt", "text/plain", []byte("x")), OutcomeIgnored)
	f.handle(t, storage.Event{Type: storage.EventCreated, Bucket: "data"}, OutcomeIgnored)
	f.handle(t, f.objects.Remove("data", "ghost.jpg"), OutcomeIgnored)

	if _, err := f.r.HandleEvent(context.Background(), "missing", f.image("x.jpg")); !errdefs.IsNotFound(err) {
		t.Errorf("unknown instance error = %v, want not found", err)
	}
}

func TestBatchJoinsErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	broken := errors.New("connection reset")
	events := []storage.Event{
		f.image("a.jpg"),
		f.label("a.xml", "dog"),
		f.image("b.jpg"),
	}
	f.objects.FailGet["a.xml"] = broken

	results, err := f.r.HandleBatch(ctx, f.inst.ID, events)
	if !errors.Is(err, broken) {
		t.Fatalf("HandleBatch() error = %v, want %v", err, broken)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Outcome != OutcomeCreated || results[2].Outcome != OutcomeCreated {
		t.Errorf("outcomes = %s, %s", results[0].Outcome, results[2].Outcome)
	}

	// The sample survives the failed fetch and links once storage recovers
	delete(f.objects.FailGet, "a.xml")
	f.handle(t, events[1], OutcomeLinked)
}

func TestReprocess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.handle(t, f.image("img.jpg"), OutcomeCreated)
	f.handle(t, f.label("img.xml", "dog"), OutcomeLinked)
	f.handle(t, f.label("img.xml", "dog", "dog", "cat"), OutcomeConflict)

	result, err := f.r.Reprocess(ctx, created.SampleID, "")
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if result.Outcome != OutcomeLinked {
		t.Fatalf("Reprocess() = %s, want linked", result.Outcome)
	}
	sample := f.sample(t, created.SampleID)
	if sample.AnnotationStatus != models.AnnotationLinked || sample.Annotation.ObjectCount != 3 {
		t.Errorf("sample = %s with %+v", sample.AnnotationStatus, sample.Annotation)
	}

	f.label("alt/img.xml", "bird")
	if _, err := f.r.Reprocess(ctx, created.SampleID, "alt/img.xml"); err != nil {
		t.Fatalf("Reprocess(alt) error = %v", err)
	}
	sample = f.sample(t, created.SampleID)
	if sample.AnnotationKey != "alt/img.xml" || sample.Annotation.ObjectCount != 1 {
		t.Errorf("sample linked to %q with %d objects", sample.AnnotationKey, sample.Annotation.ObjectCount)
	}

	annotations, err := f.st.ListAnnotationsBySamples(ctx, []string{sample.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(annotations) != 1 {
		t.Errorf("annotations = %d, want 1", len(annotations))
	}

	if _, err := f.r.Reprocess(ctx, sample.ID, "missing.xml"); !errdefs.IsNotFound(err) {
		t.Errorf("Reprocess(missing) error = %v, want not found", err)
	}
	if _, err := f.r.Reprocess(ctx, sample.ID, "img.jpg"); !errdefs.IsValidation(err) {
		t.Errorf("Reprocess(image key) error = %v, want validation", err)
	}

	f.handle(t, f.objects.Remove("data", "img.jpg"), OutcomeDeleted)
	if _, err := f.r.Reprocess(ctx, sample.ID, ""); !errdefs.IsValidation(err) {
		t.Errorf("Reprocess(deleted) error = %v, want validation", err)
	}
}

func TestReprocessWithoutCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.handle(t, f.image("img.jpg"), OutcomeCreated)
	f.handle(t, f.objects.Put("data", "img.xml", "application/xml", []byte("garbage")), OutcomeError)
	f.objects.Remove("data", "img.xml")

	result, err := f.r.Reprocess(ctx, created.SampleID, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeUnlinked {
		t.Errorf("Reprocess() = %s, want unlinked", result.Outcome)
	}
	if sample := f.sample(t, created.SampleID); sample.AnnotationStatus != models.AnnotationNone {
		t.Errorf("status = %s, want none", sample.AnnotationStatus)
	}
}

func TestSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.image("a.jpg")
	f.label("a.xml", "dog", "cat")
	f.image("b.jpg")
	f.label("orphan.xml", "bird")
	f.objects.Put("data", "readme.txt", "text/plain", []byte("hi"))

	if _, err := f.r.Sync(ctx, f.inst.ID, "data", ""); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	samples, err := f.st.FindSamples(ctx, store.Active, store.OrderByCreated)
	if err != nil {
		t.Fatal(err)
	}
	byKey := make(map[string]*models.Sample)
	for _, s := range samples {
		byKey[s.ObjectKey] = s
	}
	if len(byKey) != 2 {
		t.Fatalf("samples = %v, want a.jpg and b.jpg", byKey)
	}
	if a := byKey["a.jpg"]; a.AnnotationStatus != models.AnnotationLinked || a.Source != models.SourceSync {
		t.Errorf("a.jpg = %s/%s", a.AnnotationStatus, a.Source)
	}
	if b := byKey["b.jpg"]; b.AnnotationStatus != models.AnnotationNone {
		t.Errorf("b.jpg = %s", b.AnnotationStatus)
	}

	// Objects vanish without notifications
	f.objects.Remove("data", "a.xml")
	f.objects.Remove("data", "b.jpg")

	if _, err := f.r.Sync(ctx, f.inst.ID, "data", ""); err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if a := f.sample(t, byKey["a.jpg"].ID); a.AnnotationStatus != models.AnnotationNone {
		t.Errorf("a.jpg = %s, want none", a.AnnotationStatus)
	}
	if b := f.sample(t, byKey["b.jpg"].ID); b.Status != models.SampleDeleted {
		t.Errorf("b.jpg = %s, want deleted", b.Status)
	}

	results, err := f.r.Sync(ctx, f.inst.ID, "data", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, result := range results {
		if result.Changed() {
			t.Errorf("third Sync() changed %s: %s", result.Event.Key, result.Outcome)
		}
	}
}

func TestSyncPrefixKeepsSiblingAnnotations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.handle(t, f.image("JPEGImages/img_001.jpg"), OutcomeCreated)
	f.handle(t, f.label("Annotations/img_001.xml", "person"), OutcomeLinked)

	for i := 0; i < 2; i++ {
		if _, err := f.r.Sync(ctx, f.inst.ID, "data", "JPEGImages/"); err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		sample := f.sample(t, created.SampleID)
		if sample.AnnotationStatus != models.AnnotationLinked || sample.AnnotationKey != "Annotations/img_001.xml" {
			t.Fatalf("sync %d: sample = %s %q, want linked", i, sample.AnnotationStatus, sample.AnnotationKey)
		}
	}

	// A sibling annotation that really vanished is still noticed
	f.objects.Remove("data", "Annotations/img_001.xml")
	if _, err := f.r.Sync(ctx, f.inst.ID, "data", "JPEGImages/"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if sample := f.sample(t, created.SampleID); sample.AnnotationStatus != models.AnnotationNone {
		t.Errorf("sample = %s, want none", sample.AnnotationStatus)
	}
}

func TestHooksTagSamples(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)
	logger := log.NewDiscardLogger()

	if _, err := tags.NewService(st, logger).SeedSystemTags(ctx, false); err != nil {
		t.Fatal(err)
	}
	engine := tagging.NewEngine(st, logger, tagging.Options{})

	inst := storetest.Instance(t, st, "primary", "alice")
	objects := storage.NewMemoryStore()
	r := New(st, logger, WithHooks(engine))
	r.Register(inst.ID, objects)

	names := func(sampleID string) map[string]bool {
		t.Helper()
		sampleTags, err := st.ListSampleTags(ctx, sampleID)
		if err != nil {
			t.Fatal(err)
		}
		out := make(map[string]bool)
		for _, st2 := range sampleTags {
			tag, err := st.GetTag(ctx, st2.TagID)
			if err != nil {
				t.Fatal(err)
			}
			out[tag.FullPath] = true
		}
		return out
	}

	created, err := r.HandleEvent(ctx, inst.ID, objects.Put("data", "img.jpg", "image/jpeg", []byte("px")))
	if err != nil {
		t.Fatal(err)
	}
	got := names(created.SampleID)
	for _, want := range []string{"Image/JPEG", "Source/Webhook", "Annotation/None"} {
		if !got[want] {
			t.Errorf("missing tag %s in %v", want, got)
		}
	}

	if _, err := r.HandleEvent(ctx, inst.ID, objects.Put("data", "img.xml", "application/xml", voc("dog"))); err != nil {
		t.Fatal(err)
	}
	got = names(created.SampleID)
	if !got["Annotation/Linked"] || got["Annotation/None"] {
		t.Errorf("status tags after link = %v", got)
	}
}

func TestConsume(t *testing.T) {
	f := newFixture(t)

	events := make(chan storage.Event, 2)
	errs := make(chan error, 1)
	events <- f.image("img.jpg")
	events <- f.label("img.xml", "dog")
	errs <- errors.New("listener hiccup")
	close(events)

	if err := f.r.Consume(context.Background(), f.inst.ID, events, errs); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	samples, err := f.st.FindSamples(context.Background(), store.WithAnnotation)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 || samples[0].AnnotationStatus != models.AnnotationLinked {
		t.Errorf("samples after Consume = %+v", samples)
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.r.Consume(ctx, f.inst.ID, make(chan storage.Event), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Consume() error = %v, want canceled", err)
	}
}

// closingListener ends its first stream after one event and keeps the
// second one open.
type closingListener struct {
	first      storage.Event
	calls      int
	subscribed chan int
}

func (l *closingListener) Listen(ctx context.Context, bucket, prefix string) (<-chan storage.Event, <-chan error) {
	l.calls++
	events := make(chan storage.Event, 1)
	if l.calls == 1 {
		events <- l.first
		close(events)
	}
	l.subscribed <- l.calls
	return events, nil
}

func TestWatchSubscribesAgain(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := &closingListener{first: f.image("img.jpg"), subscribed: make(chan int, 2)}

	done := make(chan error, 1)
	go func() {
		done <- f.r.Watch(ctx, f.inst.ID, listener, "data", "", time.Millisecond)
	}()

	for want := 1; want <= 2; want++ {
		select {
		case got := <-listener.subscribed:
			if got != want {
				t.Fatalf("subscription %d, want %d", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("subscription %d never happened", want)
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Watch() error = %v, want canceled", err)
	}
	if n, _ := f.st.CountSamples(context.Background(), store.Active); n != 1 {
		t.Errorf("samples after Watch = %d, want 1", n)
	}
}
