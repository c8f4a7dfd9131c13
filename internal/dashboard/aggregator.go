// Package dashboard builds the read-only projections served to the UI:
// an aggregate summary plus the jobs, inventory, follow-up, and alert
// lists. Nothing here mutates domain state except the alert list, which
// runs a scan so callers always see alerts derived from current state.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fieldops-ai/fieldops/internal/fieldops"
	"github.com/fieldops-ai/fieldops/internal/observe"
	"github.com/fieldops-ai/fieldops/internal/store"
)

// recentJobLimit caps the recent-jobs list on the summary.
const recentJobLimit = 10

// recentIntakeLimit caps the recent-intakes list on the summary.
const recentIntakeLimit = 10

// AlertScanner runs one alert scan against current state.
type AlertScanner interface {
	Scan(ctx context.Context, now time.Time) ([]fieldops.Alert, error)
}

// Summary is the aggregate dashboard view.
type Summary struct {
	JobsToday int `json:"jobs_today"`
	OpenJobs  int `json:"open_jobs"`

	// Revenue totals are projections over completed jobs, valued at the
	// configured labor rate plus parts cost. Completion time is taken from
	// the job's last update.
	RevenueToday float64 `json:"revenue_today"`
	RevenueWeek  float64 `json:"revenue_week"`
	RevenueMonth float64 `json:"revenue_month"`

	LowStockItems     []InventoryView        `json:"low_stock_items"`
	UpcomingFollowUps []fieldops.FollowUp    `json:"upcoming_followups"`
	RecentJobs        []JobView              `json:"recent_jobs"`
	RecentIntakes     []fieldops.VoiceIntake `json:"recent_intakes"`
}

// JobView is a Job annotated with its derived cost.
type JobView struct {
	fieldops.Job
	Cost float64 `json:"cost"`
}

// InventoryView is an InventoryItem annotated with its low-stock state.
type InventoryView struct {
	fieldops.InventoryItem
	LowStock bool `json:"low_stock"`
}

// Config carries the Aggregator dependencies and domain parameters.
type Config struct {
	Store  store.Store
	Alerts AlertScanner

	// LaborRatePerHour values labor in the cost projection.
	LaborRatePerHour float64

	// LowStockThreshold is the default low-stock cutoff; items may
	// override it.
	LowStockThreshold int

	// FollowUpLookahead bounds the summary's upcoming follow-up window.
	FollowUpLookahead time.Duration

	// Metrics is optional; nil falls back to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Clock is optional and exists for tests.
	Clock func() time.Time
}

// Aggregator serves dashboard projections. Safe for concurrent use.
type Aggregator struct {
	store     store.Store
	alerts    AlertScanner
	laborRate float64
	threshold int
	lookahead time.Duration
	metrics   *observe.Metrics
	now       func() time.Time
}

// New validates cfg and creates an Aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Store == nil {
		return nil, errors.New("dashboard: store must not be nil")
	}
	if cfg.Alerts == nil {
		return nil, errors.New("dashboard: alert scanner must not be nil")
	}
	if cfg.FollowUpLookahead <= 0 {
		return nil, fmt.Errorf("dashboard: follow-up lookahead must be positive, got %v", cfg.FollowUpLookahead)
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		store:     cfg.Store,
		alerts:    cfg.Alerts,
		laborRate: cfg.LaborRatePerHour,
		threshold: cfg.LowStockThreshold,
		lookahead: cfg.FollowUpLookahead,
		metrics:   m,
		now:       now,
	}, nil
}

// Summary assembles the aggregate view. The four source lists are fetched
// concurrently; any fetch failure fails the whole summary.
func (a *Aggregator) Summary(ctx context.Context) (*Summary, error) {
	var (
		jobs      []fieldops.Job
		items     []fieldops.InventoryItem
		followups []fieldops.FollowUp
		intakes   []fieldops.VoiceIntake
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		jobs, err = a.store.ListJobs(gctx)
		return err
	})
	g.Go(func() (err error) {
		items, err = a.store.ListItems(gctx)
		return err
	})
	g.Go(func() (err error) {
		followups, err = a.store.ListFollowUps(gctx)
		return err
	})
	g.Go(func() (err error) {
		intakes, err = a.store.ListIntakes(gctx, recentIntakeLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: summary: %w", err)
	}

	now := a.now()
	unitCosts := unitCostIndex(items)

	s := &Summary{RecentIntakes: intakes}

	today := startOfDay(now)
	weekAgo := today.AddDate(0, 0, -7)
	monthAgo := today.AddDate(0, 0, -30)

	for _, j := range jobs {
		if !j.CreatedAt.Before(today) {
			s.JobsToday++
		}
		if j.Status == fieldops.JobOpen || j.Status == fieldops.JobInProgress {
			s.OpenJobs++
		}
		if j.Status == fieldops.JobCompleted {
			cost := j.Cost(a.laborRate, unitCosts)
			if !j.UpdatedAt.Before(monthAgo) {
				s.RevenueMonth += cost
			}
			if !j.UpdatedAt.Before(weekAgo) {
				s.RevenueWeek += cost
			}
			if !j.UpdatedAt.Before(today) {
				s.RevenueToday += cost
			}
		}
	}

	for i, j := range jobs {
		if i == recentJobLimit {
			break
		}
		s.RecentJobs = append(s.RecentJobs, JobView{Job: j, Cost: j.Cost(a.laborRate, unitCosts)})
	}

	for _, it := range items {
		if it.Quantity <= it.EffectiveThreshold(a.threshold) {
			s.LowStockItems = append(s.LowStockItems, InventoryView{InventoryItem: it, LowStock: true})
		}
	}

	horizon := now.Add(a.lookahead)
	for _, fu := range followups {
		if fu.Status == fieldops.FollowUpPending && !fu.DueAt.After(horizon) {
			s.UpcomingFollowUps = append(s.UpcomingFollowUps, fu)
		}
	}

	return s, nil
}

// Jobs returns all jobs, most recently updated first, with derived costs.
func (a *Aggregator) Jobs(ctx context.Context) ([]JobView, error) {
	jobs, err := a.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: jobs: %w", err)
	}
	items, err := a.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: jobs: %w", err)
	}
	unitCosts := unitCostIndex(items)

	views := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, JobView{Job: j, Cost: j.Cost(a.laborRate, unitCosts)})
	}
	return views, nil
}

// Inventory returns all items, alphabetical, with their low-stock state.
func (a *Aggregator) Inventory(ctx context.Context) ([]InventoryView, error) {
	items, err := a.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: inventory: %w", err)
	}
	views := make([]InventoryView, 0, len(items))
	for _, it := range items {
		views = append(views, InventoryView{
			InventoryItem: it,
			LowStock:      it.Quantity <= it.EffectiveThreshold(a.threshold),
		})
	}
	return views, nil
}

// FollowUps returns pending follow-ups ordered by due date.
func (a *Aggregator) FollowUps(ctx context.Context) ([]fieldops.FollowUp, error) {
	all, err := a.store.ListFollowUps(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: followups: %w", err)
	}
	pending := make([]fieldops.FollowUp, 0, len(all))
	for _, fu := range all {
		if fu.Status == fieldops.FollowUpPending {
			pending = append(pending, fu)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].DueAt.Before(pending[j].DueAt) })
	return pending, nil
}

// Alerts runs a scan and returns every retained alert, so the list always
// reflects current domain state rather than the last background scan.
// Cleared alerts stay listed with their cleared timestamp until the
// retention window purges them.
func (a *Aggregator) Alerts(ctx context.Context) ([]fieldops.Alert, error) {
	start := time.Now()
	alerts, err := a.alerts.Scan(ctx, a.now())
	a.metrics.AlertScanDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("dashboard: alerts: %w", err)
	}
	return alerts, nil
}

func unitCostIndex(items []fieldops.InventoryItem) map[string]float64 {
	idx := make(map[string]float64, len(items))
	for _, it := range items {
		idx[it.ID] = it.UnitCost
	}
	return idx
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
