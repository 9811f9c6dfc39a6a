package dataset

import (
	"context"
	"testing"
	"time"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/db/store/storetest"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/filter"
	"github.com/mwantia/manifest/pkg/log"
	"github.com/mwantia/manifest/pkg/sampling"
)

type catalog struct {
	svc     *Service
	st      *store.SQLiteStore
	samples []*models.Sample
	foreign *models.Sample
}

// newCatalog creates four samples for alice, three of them annotated, and
// one sample for bob.
func newCatalog(t *testing.T) *catalog {
	t.Helper()

	st := storetest.New(t)
	alice := storetest.Instance(t, st, "alice-minio", "alice")
	bob := storetest.Instance(t, st, "bob-minio", "bob")

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	counts := []map[string]int{
		{"person": 2},
		{"car": 3},
		{"person": 1, "car": 1},
		nil,
	}

	c := &catalog{svc: NewService(st, log.NewDiscardLogger()), st: st}
	for i, cc := range counts {
		sample := storetest.Sample(t, st, alice, "data", "img_"+string(rune('a'+i))+".jpg",
			storetest.CreatedAt(base.Add(time.Duration(i)*time.Minute)))
		if cc != nil {
			storetest.Link(t, st, sample, cc)
		}
		c.samples = append(c.samples, sample)
	}
	c.foreign = storetest.Sample(t, st, bob, "data", "img_bob.jpg")
	return c
}

func (c *catalog) history(t *testing.T, sampleID string, action models.HistoryAction) int {
	t.Helper()

	entries, err := c.st.ListHistory(context.Background(), sampleID)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, entry := range entries {
		if entry.Action == action {
			n++
		}
	}
	return n
}

func intPtr(n int) *int { return &n }

func int64Ptr(n int64) *int64 { return &n }

func TestBuildAll(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	result, err := c.svc.Build(ctx, "alice", " everything ", "", filter.Params{}, sampling.Config{Mode: sampling.ModeAll})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.Dataset.Name != "everything" {
		t.Errorf("Name = %q", result.Dataset.Name)
	}
	if result.Candidates != 4 || result.Added != 4 || result.Dataset.SampleCount != 4 {
		t.Errorf("result = %+v", result)
	}

	ids, err := c.svc.SampleIDs(ctx, "alice", result.Dataset.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		if id == c.foreign.ID {
			t.Error("dataset contains another owner's sample")
		}
	}
	if c.history(t, c.samples[0].ID, models.HistoryAddedToDataset) != 1 {
		t.Error("missing added_to_dataset history")
	}
}

func TestBuildClassTargets(t *testing.T) {
	c := newCatalog(t)

	result, err := c.svc.Build(context.Background(), "alice", "balanced", "", filter.Params{
		AnnotationStatus: models.AnnotationLinked,
	}, sampling.Config{
		Mode:         sampling.ModeClassTargets,
		ClassTargets: map[string]int{"person": 3, "car": 1},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if result.Candidates != 3 || result.Selected != 2 || result.Added != 2 {
		t.Errorf("candidates/selected/added = %d/%d/%d, want 3/2/2", result.Candidates, result.Selected, result.Added)
	}
	want := map[string]sampling.Achievement{
		"person": {Target: 3, Actual: 3, Status: sampling.Achieved},
		"car":    {Target: 1, Actual: 1, Status: sampling.Achieved},
	}
	for class, w := range want {
		if got := result.Achievement[class]; got != w {
			t.Errorf("Achievement[%s] = %+v, want %+v", class, got, w)
		}
	}

	ids, err := c.svc.SampleIDs(context.Background(), "alice", result.Dataset.ID)
	if err != nil {
		t.Fatal(err)
	}
	members := map[string]bool{}
	for _, id := range ids {
		members[id] = true
	}
	if !members[c.samples[0].ID] || !members[c.samples[2].ID] || members[c.samples[1].ID] {
		t.Errorf("members = %v", ids)
	}
}

func TestBuildValidation(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		title string
		cfg   sampling.Config
	}{
		{name: "empty name", title: "  ", cfg: sampling.Config{Mode: sampling.ModeAll}},
		{name: "missing mode", title: "ds", cfg: sampling.Config{}},
		{name: "random without count", title: "ds", cfg: sampling.Config{Mode: sampling.ModeRandom}},
		{name: "negative count", title: "ds", cfg: sampling.Config{Mode: sampling.ModeRandom, Count: intPtr(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.svc.Build(ctx, "alice", tt.title, "", filter.Params{}, tt.cfg); !errdefs.IsValidation(err) {
				t.Errorf("Build() error = %v, want validation", err)
			}
		})
	}

	bad := filter.Params{ObjectCountMin: intPtr(5), ObjectCountMax: intPtr(1)}
	if _, err := c.svc.Build(ctx, "alice", "ds", "", bad, sampling.Config{Mode: sampling.ModeAll}); !errdefs.IsValidation(err) {
		t.Errorf("Build(bad filter) error = %v, want validation", err)
	}
}

func TestAddFilteredSkipsMembers(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	built, err := c.svc.Build(ctx, "alice", "seeded", "", filter.Params{}, sampling.Config{
		Mode:  sampling.ModeRandom,
		Count: intPtr(1),
		Seed:  int64Ptr(7),
	})
	if err != nil {
		t.Fatal(err)
	}
	if built.Added != 1 {
		t.Fatalf("Build() added %d, want 1", built.Added)
	}

	result, err := c.svc.AddFiltered(ctx, "alice", built.Dataset.ID, filter.Params{}, sampling.Config{Mode: sampling.ModeAll})
	if err != nil {
		t.Fatalf("AddFiltered() error = %v", err)
	}
	if result.Candidates != 3 || result.Added != 3 || result.Dataset.SampleCount != 4 {
		t.Errorf("result = %+v", result)
	}

	again, err := c.svc.AddFiltered(ctx, "alice", built.Dataset.ID, filter.Params{}, sampling.Config{Mode: sampling.ModeAll})
	if err != nil {
		t.Fatal(err)
	}
	if again.Candidates != 0 || again.Added != 0 {
		t.Errorf("second AddFiltered() = %+v", again)
	}

	if _, err := c.svc.AddFiltered(ctx, "bob", built.Dataset.ID, filter.Params{}, sampling.Config{Mode: sampling.ModeAll}); !errdefs.IsNotFound(err) {
		t.Errorf("AddFiltered(foreign) error = %v, want not found", err)
	}
}

func TestAddAndRemoveSamples(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	built, err := c.svc.Build(ctx, "alice", "manual", "", filter.Params{Bucket: "nothing-here"}, sampling.Config{Mode: sampling.ModeAll})
	if err != nil {
		t.Fatal(err)
	}
	id := built.Dataset.ID

	if _, err := c.svc.AddSamples(ctx, "alice", id, []string{c.samples[0].ID, "missing"}); !errdefs.IsNotFound(err) {
		t.Errorf("AddSamples(missing) error = %v, want not found", err)
	}
	if _, err := c.svc.AddSamples(ctx, "alice", id, []string{c.foreign.ID}); !errdefs.IsNotFound(err) {
		t.Errorf("AddSamples(foreign) error = %v, want not found", err)
	}

	added, err := c.svc.AddSamples(ctx, "alice", id, []string{c.samples[0].ID, c.samples[1].ID, c.samples[0].ID})
	if err != nil {
		t.Fatalf("AddSamples() error = %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	if added, _ := c.svc.AddSamples(ctx, "alice", id, []string{c.samples[1].ID}); added != 0 {
		t.Errorf("re-adding a member added %d", added)
	}

	removed, err := c.svc.RemoveSamples(ctx, "alice", id, []string{c.samples[1].ID, c.samples[3].ID})
	if err != nil {
		t.Fatalf("RemoveSamples() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	dataset, err := c.svc.Get(ctx, "alice", id)
	if err != nil {
		t.Fatal(err)
	}
	if dataset.SampleCount != 1 {
		t.Errorf("SampleCount = %d, want 1", dataset.SampleCount)
	}
	if c.history(t, c.samples[1].ID, models.HistoryRemovedFromDataset) != 1 {
		t.Error("missing removed_from_dataset history")
	}
	if c.history(t, c.samples[3].ID, models.HistoryRemovedFromDataset) != 0 {
		t.Error("non-member got removed_from_dataset history")
	}
}

func TestGetAndDelete(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	built, err := c.svc.Build(ctx, "alice", "temp", "", filter.Params{}, sampling.Config{Mode: sampling.ModeAll})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.svc.Get(ctx, "bob", built.Dataset.ID); !errdefs.IsNotFound(err) {
		t.Errorf("Get(foreign) error = %v, want not found", err)
	}
	if err := c.svc.Delete(ctx, "bob", built.Dataset.ID); !errdefs.IsNotFound(err) {
		t.Errorf("Delete(foreign) error = %v, want not found", err)
	}

	if err := c.svc.Delete(ctx, "alice", built.Dataset.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := c.svc.Get(ctx, "alice", built.Dataset.ID); !errdefs.IsNotFound(err) {
		t.Errorf("Get(deleted) error = %v, want not found", err)
	}
	if _, err := c.st.GetSample(ctx, c.samples[0].ID); err != nil {
		t.Errorf("sample gone after dataset delete: %v", err)
	}
}

func TestPreview(t *testing.T) {
	c := newCatalog(t)

	preview, err := c.svc.Preview(context.Background(), filter.Params{OwnerID: "alice"}, 0, 3)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if preview.Total != 4 || len(preview.Samples) != 3 {
		t.Errorf("Preview() = %d total, %d samples", preview.Total, len(preview.Samples))
	}
	if preview.Samples[0].ID != c.samples[0].ID {
		t.Errorf("first sample = %s, want oldest", preview.Samples[0].ObjectKey)
	}

	page, err := c.svc.Preview(context.Background(), filter.Params{OwnerID: "alice"}, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Samples) != 1 || page.Samples[0].ID != c.samples[3].ID {
		t.Errorf("second page = %d samples", len(page.Samples))
	}
}

func TestClassStats(t *testing.T) {
	c := newCatalog(t)

	stats, err := c.svc.ClassStats(context.Background(), filter.Params{OwnerID: "alice"})
	if err != nil {
		t.Fatalf("ClassStats() error = %v", err)
	}
	if stats.TotalSamples != 4 || stats.TotalObjects != 7 {
		t.Errorf("totals = %d samples, %d objects", stats.TotalSamples, stats.TotalObjects)
	}

	want := []ClassStat{
		{Class: "car", Objects: 4, Samples: 2},
		{Class: "person", Objects: 3, Samples: 2},
	}
	if len(stats.Classes) != len(want) {
		t.Fatalf("Classes = %+v", stats.Classes)
	}
	for i := range want {
		if stats.Classes[i] != want[i] {
			t.Errorf("Classes[%d] = %+v, want %+v", i, stats.Classes[i], want[i])
		}
	}
}
