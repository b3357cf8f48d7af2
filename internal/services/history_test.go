package services_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/internal/testutil"
)

func newHistoryRepo(t *testing.T) *services.SQLiteHistoryRepository {
	t.Helper()
	repo, err := services.NewSQLiteHistoryRepository(context.Background(), testutil.NewStore(t))
	if err != nil {
		t.Fatalf("NewSQLiteHistoryRepository: %v", err)
	}
	return repo
}

func TestSQLiteHistoryRepository_AppendAndList(t *testing.T) {
	repo := newHistoryRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	entries := []services.HistoryEntry{
		{Actor: "admin", Action: "device.created", ResourceType: "device", ResourceID: "PC-1", CreatedAt: base},
		{Actor: "ops", Action: "device.task_toggled", ResourceType: "device", ResourceID: "PC-1",
			Metadata: json.RawMessage(`{"task":"OS update"}`), CreatedAt: base.Add(time.Minute)},
		{Actor: "admin", Action: "employee.created", ResourceType: "employee", ResourceID: "e-1", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Append(ctx, &entries[i]); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if entries[0].ID == "" {
		t.Error("Append did not generate an ID")
	}
	if entries[1].Digest != services.DigestJSON(entries[1].Metadata) || entries[1].Digest == "" {
		t.Errorf("Digest = %q, want sha256 of metadata", entries[1].Digest)
	}
	if entries[0].Digest != "" {
		t.Errorf("Digest without metadata = %q, want empty", entries[0].Digest)
	}

	all, err := repo.List(ctx, services.HistoryFilter{}, services.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if all.Total != 3 || all.Items[0].Action != "employee.created" {
		t.Errorf("List newest first = %+v", all.Items)
	}

	device, err := repo.List(ctx, services.HistoryFilter{ResourceType: "device", ResourceID: "PC-1"}, services.ListOptions{})
	if err != nil {
		t.Fatalf("List device: %v", err)
	}
	if device.Total != 2 {
		t.Errorf("device history = %d, want 2", device.Total)
	}
	if string(device.Items[0].Metadata) != `{"task":"OS update"}` {
		t.Errorf("Metadata = %s", device.Items[0].Metadata)
	}

	byActor, err := repo.List(ctx, services.HistoryFilter{Actor: "admin"}, services.ListOptions{})
	if err != nil {
		t.Fatalf("List actor: %v", err)
	}
	if byActor.Total != 2 {
		t.Errorf("admin history = %d, want 2", byActor.Total)
	}
}
