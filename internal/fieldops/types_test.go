package fieldops_test

import (
	"testing"

	"github.com/fieldops-ai/fieldops/internal/fieldops"
)

func TestJobStatusCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to fieldops.JobStatus
		want     bool
	}{
		{fieldops.JobOpen, fieldops.JobInProgress, true},
		{fieldops.JobOpen, fieldops.JobCompleted, true},
		{fieldops.JobInProgress, fieldops.JobCompleted, true},
		{fieldops.JobInProgress, fieldops.JobOpen, false},
		{fieldops.JobCompleted, fieldops.JobInProgress, false},
		{fieldops.JobCompleted, fieldops.JobCancelled, false},
		{fieldops.JobOpen, fieldops.JobCancelled, true},
		{fieldops.JobInProgress, fieldops.JobCancelled, true},
		{fieldops.JobCancelled, fieldops.JobOpen, false},
		{fieldops.JobCancelled, fieldops.JobCompleted, false},
		{fieldops.JobOpen, fieldops.JobOpen, true},
		{fieldops.JobOpen, fieldops.JobStatus("archived"), false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%q → %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestJobCost(t *testing.T) {
	t.Parallel()

	j := fieldops.Job{
		LaborHours: 2.5,
		Parts: []fieldops.PartUsage{
			{ItemID: "item-1", Quantity: 2},
			{ItemID: "item-2", Quantity: 1},
			{ItemID: "item-unknown", Quantity: 4},
		},
	}
	costs := map[string]float64{"item-1": 12.50, "item-2": 3.00}

	got := j.Cost(75.00, costs)
	want := 75.00*2.5 + 2*12.50 + 3.00
	if got != want {
		t.Fatalf("Cost = %.2f, want %.2f", got, want)
	}
}

func TestEffectiveThreshold(t *testing.T) {
	t.Parallel()

	t.Run("override wins", func(t *testing.T) {
		t.Parallel()
		i := fieldops.InventoryItem{Threshold: 12}
		if got := i.EffectiveThreshold(5); got != 12 {
			t.Fatalf("EffectiveThreshold = %d, want 12", got)
		}
	})

	t.Run("falls back to default", func(t *testing.T) {
		t.Parallel()
		i := fieldops.InventoryItem{}
		if got := i.EffectiveThreshold(5); got != 5 {
			t.Fatalf("EffectiveThreshold = %d, want 5", got)
		}
	})
}

func TestDispositionFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                       string
		applied, flagged, rejected int
		want                       fieldops.Disposition
	}{
		{"all applied", 3, 0, 0, fieldops.DispositionApplied},
		{"none at all", 0, 0, 0, fieldops.DispositionRejected},
		{"all rejected", 0, 0, 2, fieldops.DispositionRejected},
		{"mixed applied and rejected", 1, 0, 1, fieldops.DispositionPartiallyApplied},
		{"mixed applied and flagged", 2, 1, 0, fieldops.DispositionPartiallyApplied},
		{"only flagged", 0, 2, 0, fieldops.DispositionPartiallyApplied},
		{"flagged and rejected", 0, 1, 1, fieldops.DispositionPartiallyApplied},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := fieldops.DispositionFor(tc.applied, tc.flagged, tc.rejected)
			if got != tc.want {
				t.Fatalf("DispositionFor(%d,%d,%d) = %q, want %q",
					tc.applied, tc.flagged, tc.rejected, got, tc.want)
			}
		})
	}
}
