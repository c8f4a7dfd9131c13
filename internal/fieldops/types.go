// Package fieldops defines the persistent domain model for the FieldOps
// backend: jobs, inventory items, follow-up reminders, derived alerts, and
// the voice-intake audit trail.
//
// These types are storage-engine-agnostic. Mutation rules (quantity
// invariants, status transitions, batch dispositions) live with the types so
// that every store implementation and the reconciler enforce the same
// semantics.
package fieldops

import "time"

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobOpen       JobStatus = "open"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

// IsValid reports whether s is a recognised job status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobOpen, JobInProgress, JobCompleted, JobCancelled:
		return true
	}
	return false
}

// jobStatusRank orders the forward-only lifecycle. Cancellation sits outside
// the ordering and is reachable from any non-terminal state.
var jobStatusRank = map[JobStatus]int{
	JobOpen:       0,
	JobInProgress: 1,
	JobCompleted:  2,
}

// CanTransition reports whether a job may move from s to next. Transitions
// are monotonic forward (open → in_progress → completed); the only backward
// escape is explicit cancellation from a non-terminal state. A no-op
// transition to the same status is allowed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	if next == JobCancelled {
		return s == JobOpen || s == JobInProgress
	}
	if s == JobCancelled {
		return false
	}
	return jobStatusRank[next] > jobStatusRank[s]
}

// PartUsage is one line item of inventory consumed by a job.
type PartUsage struct {
	ItemID   string `yaml:"item_id" json:"item_id"`
	Quantity int    `yaml:"quantity" json:"quantity"`
}

// Job is a unit of field-service work.
type Job struct {
	ID          string      `json:"id"`
	Customer    string      `json:"customer"`
	Description string      `json:"description"`
	Status      JobStatus   `json:"status"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	LaborHours  float64     `json:"labor_hours"`
	Parts       []PartUsage `json:"parts"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Cost computes the job's total cost from labor hours and parts usage.
// Cost is always a projection — it is never stored, so it can never drift
// from the hours and parts that define it. unitCosts maps inventory item ID
// to unit cost; unknown items contribute zero.
func (j Job) Cost(laborRate float64, unitCosts map[string]float64) float64 {
	total := laborRate * j.LaborHours
	for _, p := range j.Parts {
		total += unitCosts[p.ItemID] * float64(p.Quantity)
	}
	return total
}

// InventoryItem is a stocked material. Quantity is the single source of
// truth and is mutated only through the store's conditional adjustment
// operation — never by direct assignment.
type InventoryItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	UnitCost float64 `json:"unit_cost"`

	// Threshold is the per-item low-stock override. Zero means "use the
	// configured default".
	Threshold int `json:"threshold,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveThreshold resolves the low-stock threshold for this item, falling
// back to defaultThreshold when no per-item override is set.
func (i InventoryItem) EffectiveThreshold(defaultThreshold int) int {
	if i.Threshold > 0 {
		return i.Threshold
	}
	return defaultThreshold
}

// FollowUpStatus is the lifecycle state of a FollowUp.
type FollowUpStatus string

const (
	FollowUpPending   FollowUpStatus = "pending"
	FollowUpDone      FollowUpStatus = "done"
	FollowUpDismissed FollowUpStatus = "dismissed"
)

// IsValid reports whether s is a recognised follow-up status.
func (s FollowUpStatus) IsValid() bool {
	switch s {
	case FollowUpPending, FollowUpDone, FollowUpDismissed:
		return true
	}
	return false
}

// FollowUp is a reminder to contact a customer, optionally tied to a job.
// When the referenced job is deleted the follow-up keeps its description
// and loses the reference; it is never cascade-deleted.
type FollowUp struct {
	ID          string         `json:"id"`
	JobID       string         `json:"job_id,omitempty"`
	Description string         `json:"description"`
	DueAt       time.Time      `json:"due_at"`
	Status      FollowUpStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AlertKind classifies a derived alert.
type AlertKind string

const (
	AlertLowStock        AlertKind = "low_stock"
	AlertOverdueFollowUp AlertKind = "overdue_followup"
	AlertStaleJob        AlertKind = "stale_job"
)

// Severity grades an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is derived from domain state by the alert engine; users never create
// alerts directly. Identity is (Kind, SubjectID): re-observation updates
// LastObserved on the existing record instead of creating a duplicate.
type Alert struct {
	ID            string     `json:"id"`
	Kind          AlertKind  `json:"kind"`
	SubjectID     string     `json:"subject_id"`
	Severity      Severity   `json:"severity"`
	FirstObserved time.Time  `json:"first_observed"`
	LastObserved  time.Time  `json:"last_observed"`
	ClearedAt     *time.Time `json:"cleared_at,omitempty"`
}

// Active reports whether the alert's triggering condition still held as of
// the last scan.
func (a Alert) Active() bool { return a.ClearedAt == nil }

// Disposition is the outcome of one voice-intake batch.
type Disposition string

const (
	DispositionApplied          Disposition = "applied"
	DispositionPartiallyApplied Disposition = "partially_applied"
	DispositionRejected         Disposition = "rejected"
)

// DispositionFor derives the batch disposition from per-candidate outcome
// counts: applied iff nothing was flagged or rejected, rejected iff nothing
// applied and nothing was flagged, partially_applied otherwise. An empty
// batch (no candidates at all) is rejected — nothing was persisted.
func DispositionFor(applied, flagged, rejected int) Disposition {
	switch {
	case applied == 0 && flagged == 0:
		return DispositionRejected
	case flagged == 0 && rejected == 0:
		return DispositionApplied
	default:
		return DispositionPartiallyApplied
	}
}

// VoiceIntake is the immutable audit record of one voice submission: the
// raw transcript, the extraction confidence, and the IDs of every record the
// reconciler touched. Only Disposition finalisation may occur after the
// record is written.
type VoiceIntake struct {
	ID          string      `json:"id"`
	Transcript  string      `json:"transcript"`
	Confidence  float64     `json:"confidence"`
	TouchedIDs  []string    `json:"touched_ids"`
	Disposition Disposition `json:"disposition"`
	CreatedAt   time.Time   `json:"created_at"`
}
