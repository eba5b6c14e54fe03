package history_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/mohammednabarawy/video-gen/internal/history"
	"github.com/mohammednabarawy/video-gen/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record, err := store.NewRecord(ctx, "uuid-1", "a red fox", "blurry", `{"resolution":"720p"}`)
	if err != nil {
		t.Fatalf("NewRecord failed: %v", err)
	}
	if record.ID == 0 {
		t.Fatal("expected record ID to be assigned")
	}
	if record.Status != history.StatusPending {
		t.Fatalf("expected pending status, got %s", record.Status)
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Prompt != "a red fox" {
		t.Fatalf("unexpected fetched record: %#v", fetched)
	}
	if fetched.NegativePrompt != "blurry" {
		t.Fatalf("unexpected negative prompt: %q", fetched.NegativePrompt)
	}

	byUUID, err := store.GetByUUID(ctx, "uuid-1")
	if err != nil {
		t.Fatalf("GetByUUID failed: %v", err)
	}
	if byUUID == nil || byUUID.ID != record.ID {
		t.Fatalf("expected to find inserted record, got %#v", byUUID)
	}
}

func TestNewRecordRequiresUUIDAndPrompt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.NewRecord(ctx, "", "a prompt", "", ""); err == nil {
		t.Fatal("expected error when uuid missing")
	}
	if _, err := store.NewRecord(ctx, "uuid-2", "  ", "", ""); err == nil {
		t.Fatal("expected error when prompt missing")
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewRecord(t, store, "uuid-3", "city at night")

	record.Status = history.StatusGenerating
	record.PromptID = "prompt-abc"
	record.Attempts = 2
	record.MarkStarted()
	record.SetProgress("Sampling", "step 10 of 20", 50)
	if err := store.Update(ctx, record); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	updated, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != history.StatusGenerating {
		t.Fatalf("expected generating, got %s", updated.Status)
	}
	if updated.PromptID != "prompt-abc" || updated.Attempts != 2 {
		t.Fatalf("unexpected fields: %#v", updated)
	}
	if updated.StartedAt == nil {
		t.Fatal("expected started timestamp to persist")
	}
	if updated.ProgressStage != "Sampling" || updated.ProgressPercent != 50 {
		t.Fatalf("unexpected progress: %#v", updated)
	}

	updated.SetFailed("out of memory", "resource")
	if err := store.Update(ctx, updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	failed, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if failed.Status != history.StatusFailed || failed.Classification != "resource" {
		t.Fatalf("unexpected failed record: %#v", failed)
	}
	if failed.FinishedAt == nil {
		t.Fatal("expected finished timestamp to persist")
	}
}

func TestListNewestFirstAndStatusFilter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		record := testsupport.NewRecord(t, store, fmt.Sprintf("uuid-list-%d", i), fmt.Sprintf("prompt %d", i))
		if i == 1 {
			record.SetCompleted("/tmp/out.mp4")
			if err := store.Update(ctx, record); err != nil {
				t.Fatalf("Update failed: %v", err)
			}
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].ID < all[1].ID || all[1].ID < all[2].ID {
		t.Fatalf("expected newest first ordering, got ids %d %d %d", all[0].ID, all[1].ID, all[2].ID)
	}

	completed, err := store.List(ctx, history.StatusCompleted)
	if err != nil {
		t.Fatalf("List by status failed: %v", err)
	}
	if len(completed) != 1 || completed[0].OutputFile != "/tmp/out.mp4" {
		t.Fatalf("unexpected completed records: %#v", completed)
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent records, got %d", len(recent))
	}
}

func TestFailAbandoned(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	statuses := []history.Status{
		history.StatusBuilding,
		history.StatusSubmitted,
		history.StatusGenerating,
		history.StatusCompleted,
	}
	var ids []int64
	for i, status := range statuses {
		record := testsupport.NewRecord(t, store, fmt.Sprintf("uuid-abandon-%d", i), "prompt")
		record.Status = status
		if err := store.Update(ctx, record); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		ids = append(ids, record.ID)
	}

	count, err := store.FailAbandoned(ctx)
	if err != nil {
		t.Fatalf("FailAbandoned failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 records failed, got %d", count)
	}

	for i, status := range statuses {
		record, err := store.GetByID(ctx, ids[i])
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if history.IsProcessingStatus(status) {
			if record.Status != history.StatusFailed {
				t.Fatalf("expected %s record to fail, got %s", status, record.Status)
			}
			if record.ErrorMessage != history.InterruptedMessage {
				t.Fatalf("unexpected error message: %q", record.ErrorMessage)
			}
		} else if record.Status != status {
			t.Fatalf("expected %s record untouched, got %s", status, record.Status)
		}
	}
}

func TestHealthAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewRecord(t, store, "uuid-h1", "prompt")

	generating := testsupport.NewRecord(t, store, "uuid-h2", "prompt")
	generating.Status = history.StatusGenerating
	if err := store.Update(ctx, generating); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	done := testsupport.NewRecord(t, store, "uuid-h3", "prompt")
	done.SetCompleted("/tmp/a.mp4")
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Pending != 1 || health.Processing != 1 || health.Completed != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}

	dbHealth, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !dbHealth.DatabaseExists || !dbHealth.DatabaseReadable || !dbHealth.TableExists {
		t.Fatalf("unexpected database health: %+v", dbHealth)
	}
	if len(dbHealth.MissingColumns) != 0 {
		t.Fatalf("unexpected missing columns: %v", dbHealth.MissingColumns)
	}
	if !dbHealth.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
	if dbHealth.TotalRecords != 3 {
		t.Fatalf("expected 3 records, got %d", dbHealth.TotalRecords)
	}
}

func TestRemoveAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewRecord(t, store, "uuid-r1", "prompt")
	second := testsupport.NewRecord(t, store, "uuid-r2", "prompt")
	second.SetFailed("boom", "server")
	if err := store.Update(ctx, second); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	removed, err := store.Remove(ctx, first.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !removed {
		t.Fatal("expected record to be removed")
	}
	removed, err = store.Remove(ctx, first.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed {
		t.Fatal("expected second removal to report no rows")
	}

	cleared, err := store.ClearFailed(ctx)
	if err != nil {
		t.Fatalf("ClearFailed failed: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 failed record cleared, got %d", cleared)
	}

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty history, got %d records", len(remaining))
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := history.ParseStatus(" Generating "); !ok || status != history.StatusGenerating {
		t.Fatalf("unexpected parse result: %s %v", status, ok)
	}
	if _, ok := history.ParseStatus("exploded"); ok {
		t.Fatal("expected unknown status to fail")
	}
	if _, ok := history.ParseStatus(""); ok {
		t.Fatal("expected empty status to fail")
	}
}
