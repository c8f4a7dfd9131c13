// Package store persists the FieldOps domain model.
//
// Two implementations are provided: MemStore for tests and single-node
// development, and PostgresStore for production. Both enforce the same
// mutation rules: inventory quantities never go negative, quantity changes
// go through the conditional AdjustQuantity operation, and alert identity is
// (kind, subject_id).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fieldops-ai/fieldops/internal/fieldops"
)

// ErrNotFound is returned when a record with the given ID does not exist.
var ErrNotFound = errors.New("store: record not found")

// ErrDuplicateID is returned when creating a record whose ID already exists.
var ErrDuplicateID = errors.New("store: duplicate id")

// ErrInsufficientStock is returned by AdjustQuantity when the delta would
// drive the quantity negative. The adjustment is not applied, not clamped.
var ErrInsufficientStock = errors.New("store: insufficient stock")

// ErrConflict is returned by AdjustQuantity when the item changed since the
// caller read it. The caller re-reads and retries a bounded number of times.
var ErrConflict = errors.New("store: concurrent update conflict")

// Store provides persistence for jobs, inventory, follow-ups, alerts, and
// the voice-intake audit trail. Implementations must be safe for concurrent
// use.
type Store interface {
	// CreateJob inserts a new job, assigning an ID when empty. Returns
	// [ErrDuplicateID] if the ID is taken.
	CreateJob(ctx context.Context, job *fieldops.Job) error

	// GetJob retrieves a job by ID. Returns [ErrNotFound] when absent.
	GetJob(ctx context.Context, id string) (*fieldops.Job, error)

	// UpdateJob replaces an existing job and bumps its updated timestamp.
	// Returns [ErrNotFound] when absent. Status transition rules are the
	// caller's responsibility.
	UpdateJob(ctx context.Context, job *fieldops.Job) error

	// ListJobs returns all jobs, most recently updated first.
	ListJobs(ctx context.Context) ([]fieldops.Job, error)

	// DeleteJob removes a job. Follow-ups referencing it keep their
	// description and lose the reference. Deleting a non-existent job is not
	// an error.
	DeleteJob(ctx context.Context, id string) error

	// UpsertItem creates or replaces an inventory item, assigning an ID when
	// empty. Used for seed import and manual stock corrections.
	UpsertItem(ctx context.Context, item *fieldops.InventoryItem) error

	// GetItem retrieves an inventory item by ID. Returns [ErrNotFound] when
	// absent.
	GetItem(ctx context.Context, id string) (*fieldops.InventoryItem, error)

	// ListItems returns all inventory items ordered by name.
	ListItems(ctx context.Context) ([]fieldops.InventoryItem, error)

	// AdjustQuantity applies a signed delta to an item's quantity.
	//
	// The update is conditional on two predicates checked atomically: the
	// item's updated timestamp still equals asOf (otherwise [ErrConflict]),
	// and the resulting quantity is non-negative (otherwise
	// [ErrInsufficientStock]). On success the updated item is returned.
	AdjustQuantity(ctx context.Context, id string, delta int, asOf time.Time) (*fieldops.InventoryItem, error)

	// CreateFollowUp inserts a new follow-up, assigning an ID when empty.
	CreateFollowUp(ctx context.Context, fu *fieldops.FollowUp) error

	// GetFollowUp retrieves a follow-up by ID. Returns [ErrNotFound] when
	// absent.
	GetFollowUp(ctx context.Context, id string) (*fieldops.FollowUp, error)

	// UpdateFollowUp replaces an existing follow-up. Returns [ErrNotFound]
	// when absent.
	UpdateFollowUp(ctx context.Context, fu *fieldops.FollowUp) error

	// ListFollowUps returns all follow-ups ordered by due date.
	ListFollowUps(ctx context.Context) ([]fieldops.FollowUp, error)

	// GetAlert retrieves the alert identified by (kind, subjectID). Returns
	// [ErrNotFound] when absent.
	GetAlert(ctx context.Context, kind fieldops.AlertKind, subjectID string) (*fieldops.Alert, error)

	// UpsertAlert creates or updates the alert identified by
	// (alert.Kind, alert.SubjectID), writing severity, observation timestamps
	// and cleared state. Concurrent upserts for the same identity must never
	// produce duplicates. The stored ID is written back to alert.ID.
	UpsertAlert(ctx context.Context, alert *fieldops.Alert) error

	// ListAlerts returns all alerts, most recently observed first.
	ListAlerts(ctx context.Context) ([]fieldops.Alert, error)

	// PurgeAlerts deletes cleared alerts whose cleared timestamp is before
	// the cutoff and returns how many were removed. Active alerts are never
	// purged.
	PurgeAlerts(ctx context.Context, clearedBefore time.Time) (int, error)

	// CreateIntake appends a voice-intake audit record. Intakes are immutable
	// once written.
	CreateIntake(ctx context.Context, intake *fieldops.VoiceIntake) error

	// ListIntakes returns the most recent intakes, newest first. limit <= 0
	// means no limit.
	ListIntakes(ctx context.Context, limit int) ([]fieldops.VoiceIntake, error)
}
