package migrations_test

import (
	"context"
	"testing"

	"github.com/mwantia/manifest/pkg/db/migrations"
	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store/storetest"
)

func TestMigrateIsIdempotent(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	m := migrations.NewMigrator(st.DB())
	if err := m.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() failed: %v", err)
	}

	statuses, err := m.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) == 0 {
		t.Fatal("Status() returned no migrations")
	}
	for i, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %d (%s) not applied", s.Version, s.Description)
		}
		if s.Version != i+1 {
			t.Errorf("migration %d listed at position %d", s.Version, i)
		}
	}
}

func TestRollbackDropsLastMigration(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	m := migrations.NewMigrator(st.DB())

	statuses, _ := m.Status(ctx)
	last := statuses[len(statuses)-1]

	if err := m.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if st.DB().Migrator().HasTable(&models.Dataset{}) {
		t.Error("datasets table survived rollback")
	}
	if !st.DB().Migrator().HasTable(&models.TaggingRule{}) {
		t.Error("rollback dropped more than the last migration")
	}

	statuses, _ = m.Status(ctx)
	if statuses[len(statuses)-1].Applied {
		t.Errorf("migration %d still marked applied", last.Version)
	}

	if err := m.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() after rollback failed: %v", err)
	}
	if !st.DB().Migrator().HasTable(&models.DatasetSample{}) {
		t.Error("dataset_samples table missing after re-migrate")
	}
}
