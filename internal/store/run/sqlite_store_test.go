package run

import (
	"context"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for _, table := range []string{"runs", "run_events"} {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		if err := store.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	r := &Run{
		ID:         "run-001",
		PlanID:     "plan-789",
		ParamsJSON: `{"hostname":"web-1"}`,
		Status:     StatusPlanning,
		StartedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusPlanning {
		t.Errorf("Status = %q, want %q", got.Status, StatusPlanning)
	}

	errMsg := "probe failed"
	if err := store.UpdateRunStatus(ctx, r.ID, StatusFailed, 2, &errMsg); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}

	got, err = store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun after update: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("Status after update = %q, want %q", got.Status, StatusFailed)
	}
	if got.Epoch != 2 {
		t.Errorf("Epoch = %d, want 2", got.Epoch)
	}
	if got.Error == nil || *got.Error != errMsg {
		t.Errorf("Error = %v, want %q", got.Error, errMsg)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set for a terminal status")
	}
}

func TestRunCRUD_GetMissingReturnsError(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	if _, err := store.GetRun(context.Background(), "does-not-exist"); err == nil {
		t.Error("expected an error for a missing run")
	}
}

func TestListRunsOrdersByStartedAtDescending(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		r := &Run{
			ID:         id,
			PlanID:     "plan-789",
			ParamsJSON: "{}",
			Status:     StatusDone,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			CreatedAt:  base,
			UpdatedAt:  base,
		}
		if err := store.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun(%s): %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-c" {
		t.Errorf("first run = %s, want run-c (most recently started)", runs[0].ID)
	}
}

func TestRunEventAppendAndList(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	run := &Run{ID: "run-001", PlanID: "plan-789", ParamsJSON: "{}", Status: StatusApplying, StartedAt: now, CreatedAt: now, UpdatedAt: now}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	for seq, kind := range []string{"resources_start", "resources_node", "resources_complete"} {
		e := &RunEvent{RunID: run.ID, Sequence: int64(seq), Kind: kind, Payload: `{}`, Timestamp: now}
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent(%d): %v", seq, err)
		}
	}

	events, err := store.ListEvents(ctx, run.ID, -1, 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Kind != "resources_start" {
		t.Errorf("first event kind = %s, want resources_start", events[0].Kind)
	}

	events, err = store.ListEvents(ctx, run.ID, 1, 10)
	if err != nil {
		t.Fatalf("ListEvents after sequence 1: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "resources_complete" {
		t.Fatalf("expected only resources_complete after sequence 1, got %+v", events)
	}
}

func TestDeleteRunCascadesEvents(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	run := &Run{ID: "run-001", PlanID: "plan-789", ParamsJSON: "{}", Status: StatusDone, StartedAt: now, CreatedAt: now, UpdatedAt: now}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := store.AppendEvent(ctx, &RunEvent{RunID: run.ID, Sequence: 0, Kind: "resources_start", Payload: "{}", Timestamp: now}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}

	events, err := store.ListEvents(ctx, run.ID, -1, 10)
	if err != nil {
		t.Fatalf("ListEvents after delete: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected events to cascade-delete with their run, got %d", len(events))
	}
}
