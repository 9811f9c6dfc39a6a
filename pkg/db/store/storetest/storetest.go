// Package storetest provides migrated SQLite stores and fixtures for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwantia/manifest/pkg/annotation"
	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
)

// New opens a migrated store in a temporary directory.
func New(t testing.TB) *store.SQLiteStore {
	t.Helper()

	st, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "catalog.db"),
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	ctx := context.Background()
	if err := st.Connect(ctx); err != nil {
		t.Fatalf("failed to connect store: %v", err)
	}
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// Instance creates a storage instance owned by owner.
func Instance(t testing.TB, st store.MetadataStore, name, owner string) *models.StorageInstance {
	t.Helper()

	inst := &models.StorageInstance{
		Name:     name,
		Endpoint: "127.0.0.1:9000",
		OwnerID:  owner,
	}
	if err := st.CreateStorageInstance(context.Background(), inst); err != nil {
		t.Fatalf("failed to create instance: %v", err)
	}
	return inst
}

// Sample creates an active sample for bucket/key in inst.
func Sample(t testing.TB, st store.MetadataStore, inst *models.StorageInstance, bucket, key string, opts ...func(*models.Sample)) *models.Sample {
	t.Helper()

	sample := &models.Sample{
		StorageInstanceID: inst.ID,
		OwnerID:           inst.OwnerID,
		Bucket:            bucket,
		ObjectKey:         key,
		FileName:          annotation.FileName(key),
		FileStem:          annotation.FileStem(key),
		FileHash:          bucket + "/" + key,
		Status:            models.SampleActive,
		Source:            models.SourceManual,
		AnnotationStatus:  models.AnnotationNone,
	}
	for _, opt := range opts {
		opt(sample)
	}

	if err := st.CreateSample(context.Background(), sample); err != nil {
		t.Fatalf("failed to create sample: %v", err)
	}
	return sample
}

// CreatedAt sets the sample creation time.
func CreatedAt(at time.Time) func(*models.Sample) {
	return func(s *models.Sample) {
		s.CreatedAt = at.UTC()
	}
}

// Link attaches an annotation with the given objects and marks the sample linked.
func Link(t testing.TB, st store.MetadataStore, sample *models.Sample, counts map[string]int) *models.Annotation {
	t.Helper()

	var objects []models.BoundingBox
	for _, class := range models.ClassCounts(counts).Names() {
		for i := 0; i < counts[class]; i++ {
			objects = append(objects, models.BoundingBox{Class: class, XMin: i, YMin: i, XMax: i + 10, YMax: i + 10})
		}
	}

	a, err := models.NewAnnotation(sample.ID, models.FormatVOC, 640, 480, objects)
	if err != nil {
		t.Fatalf("failed to build annotation: %v", err)
	}

	ctx := context.Background()
	if err := st.CreateAnnotation(ctx, a); err != nil {
		t.Fatalf("failed to create annotation: %v", err)
	}

	sample.AnnotationStatus = models.AnnotationLinked
	sample.AnnotationKey = sample.FileStem + ".xml"
	sample.AnnotationHash = "hash-" + sample.ID
	if err := st.UpdateSample(ctx, sample); err != nil {
		t.Fatalf("failed to update sample: %v", err)
	}
	sample.Annotation = a
	return a
}

// Tag creates a user tag for owner.
func Tag(t testing.TB, st store.MetadataStore, owner, name string) *models.Tag {
	t.Helper()

	tag := &models.Tag{
		Name:     name,
		Category: models.CategoryUser,
		OwnerID:  &owner,
		FullPath: name,
	}
	if err := st.CreateTag(context.Background(), tag); err != nil {
		t.Fatalf("failed to create tag: %v", err)
	}
	return tag
}

// Attach tags sample with every given tag.
func Attach(t testing.TB, st store.MetadataStore, sample *models.Sample, tags ...*models.Tag) {
	t.Helper()

	for _, tag := range tags {
		if err := st.CreateSampleTag(context.Background(), &models.SampleTag{SampleID: sample.ID, TagID: tag.ID}); err != nil {
			t.Fatalf("failed to tag sample: %v", err)
		}
	}
}
