package extract

import (
	"fmt"
	"time"
)

// Kind discriminates the candidate record variants. The set is closed:
// downstream consumers switch over it exhaustively.
type Kind string

const (
	// KindJobUpdate is a partial update to an existing job.
	KindJobUpdate Kind = "job_update"
	// KindInventoryAdjustment is a signed quantity delta on an inventory item.
	KindInventoryAdjustment Kind = "inventory_adjustment"
	// KindFollowUpCreate schedules a new follow-up.
	KindFollowUpCreate Kind = "followup_create"
)

// JobUpdate carries the fields the model recognised for a job.
// Pointer fields distinguish "not mentioned" from a real value; absent fields
// are left untouched by the merge.
type JobUpdate struct {
	// JobID is set when the transcript named the job directly.
	JobID string `json:"job_id,omitempty"`

	// CustomerHint is a free-text customer or job name to resolve against
	// existing jobs when JobID is empty.
	CustomerHint string `json:"customer_hint,omitempty"`

	// Create marks the record as a new job log. When the reference resolves
	// to nothing and Create is set, the reconciler creates the job instead
	// of rejecting the candidate.
	Create bool `json:"create,omitempty"`

	JobType     *string  `json:"job_type,omitempty"`
	Description *string  `json:"description,omitempty"`
	Status      *string  `json:"status,omitempty"`
	LaborHours  *float64 `json:"labor_hours,omitempty"`
}

// InventoryAdjustment is a signed quantity change. Usage is negative
// ("used 3 oil filters" yields Delta -3), restock positive.
type InventoryAdjustment struct {
	// ItemID is set when the transcript named the item directly.
	ItemID string `json:"item_id,omitempty"`

	// ItemHint is a free-text item name to resolve when ItemID is empty.
	ItemHint string `json:"item_hint,omitempty"`

	Delta int    `json:"delta"`
	Unit  string `json:"unit,omitempty"`
}

// FollowUpCreate schedules a reminder. DueDate holds the raw expression from
// the transcript ("2026-09-15", "6 months", "Friday"); DueBy is the resolved
// timestamp computed during extraction.
type FollowUpCreate struct {
	JobID       string `json:"job_id,omitempty"`
	JobHint     string `json:"job_hint,omitempty"`
	Description string `json:"description"`
	DueDate     string `json:"due_date,omitempty"`

	DueBy time.Time `json:"-"`
}

// CandidateRecord is one extracted record proposal. Exactly one payload
// pointer matching Kind is set.
//
// Candidates never touch persisted state themselves: reference hints are
// resolved and applied by the reconciler.
type CandidateRecord struct {
	Kind Kind `json:"kind"`

	// Confidence is the model's overall confidence in this candidate, [0, 1].
	Confidence float64 `json:"confidence"`

	// FieldConfidence holds per-field scores keyed by JSON field name.
	// Optional; missing fields inherit Confidence.
	FieldConfidence map[string]float64 `json:"field_confidence,omitempty"`

	JobUpdate           *JobUpdate           `json:"job_update,omitempty"`
	InventoryAdjustment *InventoryAdjustment `json:"inventory_adjustment,omitempty"`
	FollowUpCreate      *FollowUpCreate      `json:"followup_create,omitempty"`
}

// Validate checks that the payload matches Kind and confidence is in range.
func (c CandidateRecord) Validate() error {
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("extract: confidence %v out of range [0, 1]", c.Confidence)
	}
	switch c.Kind {
	case KindJobUpdate:
		if c.JobUpdate == nil {
			return fmt.Errorf("extract: kind %q without job_update payload", c.Kind)
		}
	case KindInventoryAdjustment:
		if c.InventoryAdjustment == nil {
			return fmt.Errorf("extract: kind %q without inventory_adjustment payload", c.Kind)
		}
		if c.InventoryAdjustment.Delta == 0 {
			return fmt.Errorf("extract: inventory adjustment with zero delta")
		}
	case KindFollowUpCreate:
		if c.FollowUpCreate == nil {
			return fmt.Errorf("extract: kind %q without followup_create payload", c.Kind)
		}
		if c.FollowUpCreate.Description == "" {
			return fmt.Errorf("extract: follow-up without description")
		}
	default:
		return fmt.Errorf("extract: unknown candidate kind %q", c.Kind)
	}
	return nil
}

// FieldScore returns the confidence for one field, falling back to the
// overall candidate confidence when no per-field score was reported.
func (c CandidateRecord) FieldScore(field string) float64 {
	if s, ok := c.FieldConfidence[field]; ok {
		return s
	}
	return c.Confidence
}

// Result is the outcome of one extraction pass over a transcript.
//
// Zero candidates with the full transcript in UnmatchedText is a valid
// result: the recording contained speech but no actionable field records.
type Result struct {
	Candidates    []CandidateRecord
	UnmatchedText string
}
