package dashboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/fieldops-ai/fieldops/internal/alert"
	"github.com/fieldops-ai/fieldops/internal/dashboard"
	"github.com/fieldops-ai/fieldops/internal/fieldops"
	"github.com/fieldops-ai/fieldops/internal/store"
)

const (
	laborRate         = 75.0
	lowStockThreshold = 5
	lookahead         = 7 * 24 * time.Hour
)

var dashNow = time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)

func newAggregator(t *testing.T, s *store.MemStore) *dashboard.Aggregator {
	t.Helper()
	eng, err := alert.New(s, lowStockThreshold, 72*time.Hour, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("alert.New: %v", err)
	}
	a, err := dashboard.New(dashboard.Config{
		Store:             s,
		Alerts:            eng,
		LaborRatePerHour:  laborRate,
		LowStockThreshold: lowStockThreshold,
		FollowUpLookahead: lookahead,
		Clock:             func() time.Time { return dashNow },
	})
	if err != nil {
		t.Fatalf("dashboard.New: %v", err)
	}
	return a
}

// seedDashboard populates a store with one of everything the summary reads.
func seedDashboard(t *testing.T, s *store.MemStore) (item *fieldops.InventoryItem) {
	t.Helper()
	ctx := context.Background()

	item = &fieldops.InventoryItem{Name: "Oil Filter", Quantity: 2, UnitCost: 10}
	if err := s.UpsertItem(ctx, item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	plenty := &fieldops.InventoryItem{Name: "Copper Pipe", Quantity: 40, UnitCost: 3}
	if err := s.UpsertItem(ctx, plenty); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}

	// Completed this morning: 2h labor + 3 filters = 150 + 30.
	done := &fieldops.Job{
		Customer:   "Henderson",
		Status:     fieldops.JobCompleted,
		LaborHours: 2,
		Parts:      []fieldops.PartUsage{{ItemID: item.ID, Quantity: 3}},
		CreatedAt:  dashNow.Add(-5 * time.Hour),
		UpdatedAt:  dashNow.Add(-4 * time.Hour),
	}
	if err := s.CreateJob(ctx, done); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Completed three days ago: 4h labor = 300. Counts for week and month.
	older := &fieldops.Job{
		Customer:   "Miller",
		Status:     fieldops.JobCompleted,
		LaborHours: 4,
		CreatedAt:  dashNow.AddDate(0, 0, -3),
		UpdatedAt:  dashNow.AddDate(0, 0, -3),
	}
	if err := s.CreateJob(ctx, older); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Open job created today, no revenue contribution.
	open := &fieldops.Job{
		Customer:  "Garcia",
		Status:    fieldops.JobOpen,
		CreatedAt: dashNow.Add(-time.Hour),
		UpdatedAt: dashNow.Add(-time.Hour),
	}
	if err := s.CreateJob(ctx, open); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	soon := &fieldops.FollowUp{Description: "quote the repipe", DueAt: dashNow.AddDate(0, 0, 2), Status: fieldops.FollowUpPending}
	if err := s.CreateFollowUp(ctx, soon); err != nil {
		t.Fatalf("CreateFollowUp: %v", err)
	}
	far := &fieldops.FollowUp{Description: "annual service", DueAt: dashNow.AddDate(0, 2, 0), Status: fieldops.FollowUpPending}
	if err := s.CreateFollowUp(ctx, far); err != nil {
		t.Fatalf("CreateFollowUp: %v", err)
	}
	closed := &fieldops.FollowUp{Description: "already handled", DueAt: dashNow.AddDate(0, 0, 1), Status: fieldops.FollowUpDone}
	if err := s.CreateFollowUp(ctx, closed); err != nil {
		t.Fatalf("CreateFollowUp: %v", err)
	}

	if err := s.CreateIntake(ctx, &fieldops.VoiceIntake{Transcript: "used 3 oil filters", Disposition: fieldops.DispositionApplied}); err != nil {
		t.Fatalf("CreateIntake: %v", err)
	}
	return item
}

func TestSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := store.NewMemStore()
	item := seedDashboard(t, s)
	a := newAggregator(t, s)

	sum, err := a.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if sum.JobsToday != 2 {
		t.Errorf("JobsToday = %d, want 2", sum.JobsToday)
	}
	if sum.OpenJobs != 1 {
		t.Errorf("OpenJobs = %d, want 1", sum.OpenJobs)
	}
	if sum.RevenueToday != 180 {
		t.Errorf("RevenueToday = %v, want 180", sum.RevenueToday)
	}
	if sum.RevenueWeek != 480 {
		t.Errorf("RevenueWeek = %v, want 480", sum.RevenueWeek)
	}
	if sum.RevenueMonth != 480 {
		t.Errorf("RevenueMonth = %v, want 480", sum.RevenueMonth)
	}

	if len(sum.LowStockItems) != 1 || sum.LowStockItems[0].ID != item.ID {
		t.Errorf("LowStockItems = %+v, want only the oil filter", sum.LowStockItems)
	}
	if len(sum.UpcomingFollowUps) != 1 || sum.UpcomingFollowUps[0].Description != "quote the repipe" {
		t.Errorf("UpcomingFollowUps = %+v, want only the one inside the lookahead", sum.UpcomingFollowUps)
	}
	if len(sum.RecentJobs) != 3 {
		t.Errorf("RecentJobs = %d entries, want 3", len(sum.RecentJobs))
	}
	if len(sum.RecentIntakes) != 1 {
		t.Errorf("RecentIntakes = %d entries, want 1", len(sum.RecentIntakes))
	}
}

func TestJobsCarryDerivedCost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := store.NewMemStore()
	seedDashboard(t, s)
	a := newAggregator(t, s)

	jobs, err := a.Jobs(ctx)
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}

	byCustomer := map[string]float64{}
	for _, j := range jobs {
		byCustomer[j.Customer] = j.Cost
	}
	if byCustomer["Henderson"] != 180 {
		t.Errorf("Henderson cost = %v, want 180 (2h labor + 3 filters)", byCustomer["Henderson"])
	}
	if byCustomer["Garcia"] != 0 {
		t.Errorf("Garcia cost = %v, want 0", byCustomer["Garcia"])
	}
}

func TestInventoryFlagsLowStock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := store.NewMemStore()
	seedDashboard(t, s)
	a := newAggregator(t, s)

	items, err := a.Inventory(ctx)
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	// Alphabetical: Copper Pipe before Oil Filter.
	if items[0].Name != "Copper Pipe" || items[0].LowStock {
		t.Errorf("items[0] = %+v, want well-stocked Copper Pipe", items[0])
	}
	if items[1].Name != "Oil Filter" || !items[1].LowStock {
		t.Errorf("items[1] = %+v, want low-stock Oil Filter", items[1])
	}
}

func TestFollowUpsPendingOnlyByDueDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := store.NewMemStore()
	seedDashboard(t, s)
	a := newAggregator(t, s)

	fus, err := a.FollowUps(ctx)
	if err != nil {
		t.Fatalf("FollowUps: %v", err)
	}
	if len(fus) != 2 {
		t.Fatalf("got %d follow-ups, want 2 pending", len(fus))
	}
	if fus[0].Description != "quote the repipe" || fus[1].Description != "annual service" {
		t.Errorf("order = [%s, %s], want due-date ascending", fus[0].Description, fus[1].Description)
	}
}

func TestAlertsRunScanOnRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := store.NewMemStore()
	seedDashboard(t, s)
	a := newAggregator(t, s)

	alerts, err := a.Alerts(ctx)
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	var lowStock int
	for _, al := range alerts {
		if al.Kind == fieldops.AlertLowStock {
			lowStock++
		}
	}
	if lowStock != 1 {
		t.Errorf("got %d low_stock alerts, want 1 from the request-time scan", lowStock)
	}
}
