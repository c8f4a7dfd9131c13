package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fieldops-ai/fieldops/internal/fieldops"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// alertKey is the upsert identity for alerts.
type alertKey struct {
	kind      fieldops.AlertKind
	subjectID string
}

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for tests and single-node development.
type MemStore struct {
	mu        sync.RWMutex
	jobs      map[string]fieldops.Job
	items     map[string]fieldops.InventoryItem
	followups map[string]fieldops.FollowUp
	alerts    map[alertKey]fieldops.Alert
	intakes   []fieldops.VoiceIntake

	// now is replaceable for deterministic timestamps in tests.
	now func() time.Time
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		jobs:      make(map[string]fieldops.Job),
		items:     make(map[string]fieldops.InventoryItem),
		followups: make(map[string]fieldops.FollowUp),
		alerts:    make(map[alertKey]fieldops.Alert),
		now:       time.Now,
	}
}

// SetClock replaces the store's time source. For tests.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CreateJob implements [Store.CreateJob].
func (s *MemStore) CreateJob(ctx context.Context, job *fieldops.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("store: generate id: %w", err)
		}
		job.ID = id
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("store: job %q: %w", job.ID, ErrDuplicateID)
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}
	if job.Status == "" {
		job.Status = fieldops.JobOpen
	}
	s.jobs[job.ID] = *job
	return nil
}

// GetJob implements [Store.GetJob].
func (s *MemStore) GetJob(ctx context.Context, id string) (*fieldops.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("store: job %q: %w", id, ErrNotFound)
	}
	return &j, nil
}

// UpdateJob implements [Store.UpdateJob].
func (s *MemStore) UpdateJob(ctx context.Context, job *fieldops.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("store: job %q: %w", job.ID, ErrNotFound)
	}
	job.CreatedAt = existing.CreatedAt
	job.UpdatedAt = s.now()
	s.jobs[job.ID] = *job
	return nil
}

// ListJobs implements [Store.ListJobs].
func (s *MemStore) ListJobs(ctx context.Context) ([]fieldops.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]fieldops.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	slices.SortFunc(jobs, func(a, b fieldops.Job) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return jobs, nil
}

// DeleteJob implements [Store.DeleteJob]. Follow-ups referencing the job are
// detached, never deleted.
func (s *MemStore) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, id)
	for fid, fu := range s.followups {
		if fu.JobID == id {
			fu.JobID = ""
			s.followups[fid] = fu
		}
	}
	return nil
}

// UpsertItem implements [Store.UpsertItem].
func (s *MemStore) UpsertItem(ctx context.Context, item *fieldops.InventoryItem) error {
	if item.Quantity < 0 {
		return fmt.Errorf("store: item %q quantity %d: %w", item.Name, item.Quantity, ErrInsufficientStock)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("store: generate id: %w", err)
		}
		item.ID = id
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = s.now()
	}
	s.items[item.ID] = *item
	return nil
}

// GetItem implements [Store.GetItem].
func (s *MemStore) GetItem(ctx context.Context, id string) (*fieldops.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("store: item %q: %w", id, ErrNotFound)
	}
	return &it, nil
}

// ListItems implements [Store.ListItems].
func (s *MemStore) ListItems(ctx context.Context) ([]fieldops.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]fieldops.InventoryItem, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, it)
	}
	slices.SortFunc(items, func(a, b fieldops.InventoryItem) int {
		return strings.Compare(a.Name, b.Name)
	})
	return items, nil
}

// AdjustQuantity implements [Store.AdjustQuantity]. Both predicates are
// checked under the write lock, so the check and the write are one atomic
// step.
func (s *MemStore) AdjustQuantity(ctx context.Context, id string, delta int, asOf time.Time) (*fieldops.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("store: item %q: %w", id, ErrNotFound)
	}
	if !it.UpdatedAt.Equal(asOf) {
		return nil, fmt.Errorf("store: item %q changed since read: %w", id, ErrConflict)
	}
	if it.Quantity+delta < 0 {
		return nil, fmt.Errorf("store: item %q has %d, adjustment %d: %w", id, it.Quantity, delta, ErrInsufficientStock)
	}
	it.Quantity += delta
	it.UpdatedAt = s.now()
	s.items[id] = it
	return &it, nil
}

// CreateFollowUp implements [Store.CreateFollowUp].
func (s *MemStore) CreateFollowUp(ctx context.Context, fu *fieldops.FollowUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fu.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("store: generate id: %w", err)
		}
		fu.ID = id
	}
	if _, exists := s.followups[fu.ID]; exists {
		return fmt.Errorf("store: follow-up %q: %w", fu.ID, ErrDuplicateID)
	}
	if fu.Status == "" {
		fu.Status = fieldops.FollowUpPending
	}
	if fu.CreatedAt.IsZero() {
		fu.CreatedAt = s.now()
	}
	s.followups[fu.ID] = *fu
	return nil
}

// GetFollowUp implements [Store.GetFollowUp].
func (s *MemStore) GetFollowUp(ctx context.Context, id string) (*fieldops.FollowUp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fu, ok := s.followups[id]
	if !ok {
		return nil, fmt.Errorf("store: follow-up %q: %w", id, ErrNotFound)
	}
	return &fu, nil
}

// UpdateFollowUp implements [Store.UpdateFollowUp].
func (s *MemStore) UpdateFollowUp(ctx context.Context, fu *fieldops.FollowUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.followups[fu.ID]
	if !ok {
		return fmt.Errorf("store: follow-up %q: %w", fu.ID, ErrNotFound)
	}
	fu.CreatedAt = existing.CreatedAt
	s.followups[fu.ID] = *fu
	return nil
}

// ListFollowUps implements [Store.ListFollowUps].
func (s *MemStore) ListFollowUps(ctx context.Context) ([]fieldops.FollowUp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fus := make([]fieldops.FollowUp, 0, len(s.followups))
	for _, fu := range s.followups {
		fus = append(fus, fu)
	}
	slices.SortFunc(fus, func(a, b fieldops.FollowUp) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return fus, nil
}

// GetAlert implements [Store.GetAlert].
func (s *MemStore) GetAlert(ctx context.Context, kind fieldops.AlertKind, subjectID string) (*fieldops.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[alertKey{kind, subjectID}]
	if !ok {
		return nil, fmt.Errorf("store: alert (%s, %s): %w", kind, subjectID, ErrNotFound)
	}
	return &a, nil
}

// UpsertAlert implements [Store.UpsertAlert].
func (s *MemStore) UpsertAlert(ctx context.Context, alert *fieldops.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertKey{alert.Kind, alert.SubjectID}
	if existing, ok := s.alerts[key]; ok {
		alert.ID = existing.ID
	} else if alert.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("store: generate id: %w", err)
		}
		alert.ID = id
	}
	s.alerts[key] = *alert
	return nil
}

// ListAlerts implements [Store.ListAlerts].
func (s *MemStore) ListAlerts(ctx context.Context) ([]fieldops.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := make([]fieldops.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		alerts = append(alerts, a)
	}
	slices.SortFunc(alerts, func(a, b fieldops.Alert) int {
		if c := b.LastObserved.Compare(a.LastObserved); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return alerts, nil
}

// PurgeAlerts implements [Store.PurgeAlerts].
func (s *MemStore) PurgeAlerts(ctx context.Context, clearedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, a := range s.alerts {
		if a.ClearedAt != nil && a.ClearedAt.Before(clearedBefore) {
			delete(s.alerts, key)
			purged++
		}
	}
	return purged, nil
}

// CreateIntake implements [Store.CreateIntake].
func (s *MemStore) CreateIntake(ctx context.Context, intake *fieldops.VoiceIntake) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if intake.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("store: generate id: %w", err)
		}
		intake.ID = id
	}
	if intake.CreatedAt.IsZero() {
		intake.CreatedAt = s.now()
	}
	s.intakes = append(s.intakes, *intake)
	return nil
}

// ListIntakes implements [Store.ListIntakes].
func (s *MemStore) ListIntakes(ctx context.Context, limit int) ([]fieldops.VoiceIntake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intakes := slices.Clone(s.intakes)
	slices.SortFunc(intakes, func(a, b fieldops.VoiceIntake) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(intakes) > limit {
		intakes = intakes[:limit]
	}
	return intakes, nil
}

// generateID produces a random 16-byte hex string using crypto/rand.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
