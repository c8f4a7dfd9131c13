package alert_test

import (
	"context"
	"testing"
	"time"

	"github.com/fieldops-ai/fieldops/internal/alert"
	"github.com/fieldops-ai/fieldops/internal/fieldops"
	"github.com/fieldops-ai/fieldops/internal/store"
)

const (
	defaultThreshold = 5
	staleness        = 72 * time.Hour
	retention        = 7 * 24 * time.Hour
)

var scanTime = time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, st store.Store) *alert.Engine {
	t.Helper()
	e, err := alert.New(st, defaultThreshold, staleness, retention)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestScanLowStockSeverity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()

	items := []*fieldops.InventoryItem{
		{Name: "empty", Quantity: 0},
		{Name: "at threshold", Quantity: 5},
		{Name: "healthy", Quantity: 6},
		{Name: "override ok", Quantity: 2, Threshold: 1},
	}
	for _, it := range items {
		if err := s.UpsertItem(ctx, it); err != nil {
			t.Fatalf("UpsertItem: %v", err)
		}
	}

	got, err := newEngine(t, s).Scan(ctx, scanTime)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d alerts, want 2 (zero and at-threshold)", len(got))
	}

	bySubject := map[string]fieldops.Alert{}
	for _, a := range got {
		if a.Kind != fieldops.AlertLowStock {
			t.Errorf("Kind = %q, want low_stock", a.Kind)
		}
		bySubject[a.SubjectID] = a
	}
	if a := bySubject[items[0].ID]; a.Severity != fieldops.SeverityCritical {
		t.Errorf("zero-quantity severity = %q, want critical", a.Severity)
	}
	if a := bySubject[items[1].ID]; a.Severity != fieldops.SeverityWarning {
		t.Errorf("at-threshold severity = %q, want warning", a.Severity)
	}
}

func TestScanIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()
	if err := s.UpsertItem(ctx, &fieldops.InventoryItem{Name: "screws", Quantity: 0}); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	e := newEngine(t, s)

	first, err := e.Scan(ctx, scanTime)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	later := scanTime.Add(time.Hour)
	second, err := e.Scan(ctx, later)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("scans returned %d/%d alerts, want 1/1", len(first), len(second))
	}
	if second[0].ID != first[0].ID {
		t.Errorf("re-scan created a new alert: %q != %q", second[0].ID, first[0].ID)
	}
	if !second[0].FirstObserved.Equal(scanTime) {
		t.Errorf("FirstObserved = %v, must stay stable across scans", second[0].FirstObserved)
	}
	if !second[0].LastObserved.Equal(later) {
		t.Errorf("LastObserved = %v, want bumped to %v", second[0].LastObserved, later)
	}

	all, _ := s.ListAlerts(ctx)
	if len(all) != 1 {
		t.Fatalf("store holds %d alerts, want 1 (no duplicates)", len(all))
	}
}

func TestScanClearAndRetrigger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()
	item := &fieldops.InventoryItem{Name: "bolts", Quantity: 0}
	if err := s.UpsertItem(ctx, item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	e := newEngine(t, s)

	if _, err := e.Scan(ctx, scanTime); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// Restock: condition no longer holds.
	item.Quantity = 50
	if err := s.UpsertItem(ctx, item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	clearedAt := scanTime.Add(time.Hour)
	got, err := e.Scan(ctx, clearedAt)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("alerts after restock = %d, want the cleared alert retained in scan output", len(got))
	}
	if got[0].ClearedAt == nil || !got[0].ClearedAt.Equal(clearedAt) {
		t.Fatalf("ClearedAt = %v, want %v", got[0].ClearedAt, clearedAt)
	}
	if got[0].Active() {
		t.Error("restocked item's alert still reports active")
	}
	clearedID := got[0].ID

	// Stock runs out again: same identity, fresh occurrence.
	item.Quantity = 0
	if err := s.UpsertItem(ctx, item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	retriggerAt := scanTime.Add(2 * time.Hour)
	got, err = e.Scan(ctx, retriggerAt)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("alerts after re-trigger = %d, want 1", len(got))
	}
	if got[0].ID != clearedID {
		t.Errorf("re-trigger created a new identity: %q != %q", got[0].ID, clearedID)
	}
	if !got[0].FirstObserved.Equal(retriggerAt) {
		t.Errorf("FirstObserved = %v, want reset to %v", got[0].FirstObserved, retriggerAt)
	}
	if got[0].ClearedAt != nil {
		t.Errorf("ClearedAt = %v, want nil after re-trigger", got[0].ClearedAt)
	}
}

func TestScanPurgesAfterRetention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()
	item := &fieldops.InventoryItem{Name: "washers", Quantity: 0}
	if err := s.UpsertItem(ctx, item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	e := newEngine(t, s)

	if _, err := e.Scan(ctx, scanTime); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	item.Quantity = 10
	if err := s.UpsertItem(ctx, item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if _, err := e.Scan(ctx, scanTime.Add(time.Hour)); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// Within retention: still in scan output, flagged as cleared.
	got, err := e.Scan(ctx, scanTime.Add(retention))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 1 || got[0].ClearedAt == nil {
		t.Fatalf("scan inside retention = %+v, want the cleared alert with its timestamp", got)
	}
	if _, err := s.GetAlert(ctx, fieldops.AlertLowStock, item.ID); err != nil {
		t.Fatalf("cleared alert purged before retention elapsed: %v", err)
	}

	// Past retention: purged and gone from scan output.
	got, err = e.Scan(ctx, scanTime.Add(retention+2*time.Hour))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("scan past retention = %+v, want empty", got)
	}
	if _, err := s.GetAlert(ctx, fieldops.AlertLowStock, item.ID); err == nil {
		t.Fatal("cleared alert survived past the retention window")
	}
}

func TestScanOverdueFollowUp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()

	overdue := &fieldops.FollowUp{Description: "call back", DueAt: scanTime.Add(-time.Hour), Status: fieldops.FollowUpPending}
	done := &fieldops.FollowUp{Description: "already handled", DueAt: scanTime.Add(-time.Hour), Status: fieldops.FollowUpDone}
	upcoming := &fieldops.FollowUp{Description: "next week", DueAt: scanTime.Add(7 * 24 * time.Hour), Status: fieldops.FollowUpPending}
	for _, fu := range []*fieldops.FollowUp{overdue, done, upcoming} {
		if err := s.CreateFollowUp(ctx, fu); err != nil {
			t.Fatalf("CreateFollowUp: %v", err)
		}
	}

	got, err := newEngine(t, s).Scan(ctx, scanTime)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d alerts, want 1", len(got))
	}
	if got[0].Kind != fieldops.AlertOverdueFollowUp || got[0].SubjectID != overdue.ID {
		t.Errorf("alert = %+v, want overdue_followup for the pending past-due follow-up", got[0])
	}
}

func TestScanStaleJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()

	old := scanTime.Add(-staleness - time.Hour)
	stale := &fieldops.Job{Customer: "stale", Status: fieldops.JobInProgress, CreatedAt: old, UpdatedAt: old}
	fresh := &fieldops.Job{Customer: "fresh", Status: fieldops.JobOpen, CreatedAt: scanTime, UpdatedAt: scanTime}
	finished := &fieldops.Job{Customer: "finished", Status: fieldops.JobCompleted, CreatedAt: old, UpdatedAt: old}
	for _, j := range []*fieldops.Job{stale, fresh, finished} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	got, err := newEngine(t, s).Scan(ctx, scanTime)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d alerts, want 1", len(got))
	}
	if got[0].Kind != fieldops.AlertStaleJob || got[0].SubjectID != stale.ID {
		t.Errorf("alert = %+v, want stale_job for the untouched in-progress job", got[0])
	}
}

func TestScanClearsAlertForDeletedSubject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemStore()

	old := scanTime.Add(-staleness - time.Hour)
	job := &fieldops.Job{Customer: "doomed", Status: fieldops.JobOpen, CreatedAt: old, UpdatedAt: old}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	e := newEngine(t, s)

	if _, err := e.Scan(ctx, scanTime); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := s.DeleteJob(ctx, job.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}

	got, err := e.Scan(ctx, scanTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("alerts = %d, want the cleared alert retained", len(got))
	}
	if got[0].ClearedAt == nil {
		t.Error("alert for deleted subject left dangling instead of cleared")
	}
}
