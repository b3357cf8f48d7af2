package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/internal/testutil"
)

func newSettingsRepo(t *testing.T) services.SettingsRepository {
	t.Helper()
	repo, err := services.NewSQLiteSettingsRepository(context.Background(), testutil.NewStore(t))
	if err != nil {
		t.Fatalf("NewSQLiteSettingsRepository: %v", err)
	}
	return repo
}

func TestSQLiteSettingsRepository_SetUpserts(t *testing.T) {
	repo := newSettingsRepo(t)
	ctx := context.Background()

	first, err := repo.Set(ctx, "dashboard.refresh", "30s")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if first.UpdatedAt.IsZero() {
		t.Error("Set returned zero UpdatedAt")
	}
	if _, err := repo.Set(ctx, "dashboard.refresh", "1m"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	got, err := repo.Get(ctx, "dashboard.refresh")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Value != "1m" {
		t.Errorf("Value = %q, want %q", got.Value, "1m")
	}
}

func TestSQLiteSettingsRepository_SetRejectsEmptyKey(t *testing.T) {
	repo := newSettingsRepo(t)
	if _, err := repo.Set(context.Background(), " ", "x"); err == nil {
		t.Error("Set with blank key succeeded")
	}
}

func TestSQLiteSettingsRepository_NotFound(t *testing.T) {
	repo := newSettingsRepo(t)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("Get missing: err = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("Delete missing: err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteSettingsRepository_ListPrefix(t *testing.T) {
	repo := newSettingsRepo(t)
	ctx := context.Background()
	for _, k := range []string{"system.last_resync", "dashboard.refresh", "system.version", "system_x"} {
		if _, err := repo.Set(ctx, k, "v"); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}

	all, err := repo.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 4 || all[0].Key != "dashboard.refresh" {
		t.Errorf("List all = %+v, want 4 sorted by key", all)
	}

	sys, err := repo.List(ctx, "system.")
	if err != nil {
		t.Fatalf("List prefix: %v", err)
	}
	if len(sys) != 2 {
		t.Errorf("List(system.) returned %d settings, want 2", len(sys))
	}

	empty, err := repo.List(ctx, "nothing.")
	if err != nil {
		t.Fatalf("List empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("List with no match = %#v, want empty non-nil slice", empty)
	}
}

func TestSettingsJSONHelpers(t *testing.T) {
	repo := newSettingsRepo(t)
	ctx := context.Background()

	type run struct {
		Changed int    `json:"changed"`
		Error   string `json:"error,omitempty"`
	}
	if err := services.SetJSON(ctx, repo, "system.last_resync", run{Changed: 4}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var got run
	if err := services.GetJSON(ctx, repo, "system.last_resync", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.Changed != 4 {
		t.Errorf("Changed = %d, want 4", got.Changed)
	}

	if _, err := repo.Set(ctx, "broken", "{"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := services.GetJSON(ctx, repo, "broken", &got); err == nil {
		t.Error("GetJSON on invalid JSON succeeded")
	}
}
