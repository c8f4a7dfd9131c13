// Package alert derives operational alerts from persisted domain state.
//
// The engine is read/derive-only with respect to jobs, inventory, and
// follow-ups: a scan reads them, upserts Alert records keyed by
// (kind, subject_id), and never mutates the subjects themselves. Scanning is
// idempotent — the alert set is a pure function of persisted state and the
// scan time.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldops-ai/fieldops/internal/fieldops"
	"github.com/fieldops-ai/fieldops/internal/store"
)

// condition is one triggering predicate observed during a scan.
type condition struct {
	kind      fieldops.AlertKind
	subjectID string
	severity  fieldops.Severity
}

// Engine evaluates alert rules against a Store. Safe for concurrent use;
// concurrent scans converge because alert identity is enforced by the store's
// upsert.
type Engine struct {
	store            store.Store
	defaultThreshold int
	staleness        time.Duration
	retention        time.Duration
}

// New creates an Engine.
//
// defaultThreshold is the low-stock threshold for items without a per-item
// override. staleness is how long an open or in-progress job may go without
// an update before it alerts. retention is how long cleared alerts are kept
// for audit visibility before being purged.
func New(st store.Store, defaultThreshold int, staleness, retention time.Duration) (*Engine, error) {
	if st == nil {
		return nil, errors.New("alert: store must not be nil")
	}
	if staleness <= 0 {
		return nil, fmt.Errorf("alert: staleness window %v must be positive", staleness)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("alert: retention window %v must be positive", retention)
	}
	return &Engine{
		store:            st,
		defaultThreshold: defaultThreshold,
		staleness:        staleness,
		retention:        retention,
	}, nil
}

// Scan evaluates all alert rules as of now and returns every retained
// alert, cleared ones included. A cleared alert stays in the output with a
// non-nil ClearedAt until the retention window elapses and the purge drops
// it; callers distinguish active from cleared via [fieldops.Alert.Active].
//
// For each triggering condition the matching alert is created or
// re-observed; first_observed stays stable while the condition persists and
// resets only when a cleared alert re-triggers. Alerts whose condition no
// longer holds are cleared on this scan, including alerts whose subject was
// deleted.
func (e *Engine) Scan(ctx context.Context, now time.Time) ([]fieldops.Alert, error) {
	conditions, err := e.observe(ctx, now)
	if err != nil {
		return nil, err
	}

	active := make(map[string]struct{}, len(conditions))
	for _, c := range conditions {
		if _, err := e.record(ctx, c, now); err != nil {
			return nil, err
		}
		active[string(c.kind)+"\x00"+c.subjectID] = struct{}{}
	}

	existing, err := e.store.ListAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("alert: list alerts: %w", err)
	}
	for _, a := range existing {
		if !a.Active() {
			continue
		}
		if _, ok := active[string(a.Kind)+"\x00"+a.SubjectID]; ok {
			continue
		}
		cleared := now
		a.ClearedAt = &cleared
		if err := e.store.UpsertAlert(ctx, &a); err != nil {
			return nil, fmt.Errorf("alert: clear (%s, %s): %w", a.Kind, a.SubjectID, err)
		}
	}

	if _, err := e.store.PurgeAlerts(ctx, now.Add(-e.retention)); err != nil {
		return nil, fmt.Errorf("alert: purge: %w", err)
	}

	alerts, err := e.store.ListAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("alert: list alerts: %w", err)
	}
	return alerts, nil
}

// observe evaluates the three alert rules and returns every condition that
// holds as of now.
func (e *Engine) observe(ctx context.Context, now time.Time) ([]condition, error) {
	items, err := e.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("alert: list items: %w", err)
	}
	followups, err := e.store.ListFollowUps(ctx)
	if err != nil {
		return nil, fmt.Errorf("alert: list follow-ups: %w", err)
	}
	jobs, err := e.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("alert: list jobs: %w", err)
	}

	var conditions []condition
	for _, it := range items {
		if it.Quantity > it.EffectiveThreshold(e.defaultThreshold) {
			continue
		}
		severity := fieldops.SeverityWarning
		if it.Quantity == 0 {
			severity = fieldops.SeverityCritical
		}
		conditions = append(conditions, condition{fieldops.AlertLowStock, it.ID, severity})
	}
	for _, fu := range followups {
		if fu.Status == fieldops.FollowUpPending && fu.DueAt.Before(now) {
			conditions = append(conditions, condition{fieldops.AlertOverdueFollowUp, fu.ID, fieldops.SeverityWarning})
		}
	}
	for _, j := range jobs {
		if j.Status != fieldops.JobOpen && j.Status != fieldops.JobInProgress {
			continue
		}
		if now.Sub(j.UpdatedAt) > e.staleness {
			conditions = append(conditions, condition{fieldops.AlertStaleJob, j.ID, fieldops.SeverityWarning})
		}
	}
	return conditions, nil
}

// record creates or re-observes the alert for one condition.
func (e *Engine) record(ctx context.Context, c condition, now time.Time) (*fieldops.Alert, error) {
	a, err := e.store.GetAlert(ctx, c.kind, c.subjectID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		a = &fieldops.Alert{
			Kind:          c.kind,
			SubjectID:     c.subjectID,
			Severity:      c.severity,
			FirstObserved: now,
			LastObserved:  now,
		}
	case err != nil:
		return nil, fmt.Errorf("alert: get (%s, %s): %w", c.kind, c.subjectID, err)
	case a.Active():
		a.Severity = c.severity
		a.LastObserved = now
	default:
		// Cleared alert re-triggered: same identity, fresh occurrence.
		a.Severity = c.severity
		a.FirstObserved = now
		a.LastObserved = now
		a.ClearedAt = nil
	}

	if err := e.store.UpsertAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("alert: upsert (%s, %s): %w", c.kind, c.subjectID, err)
	}
	return a, nil
}
