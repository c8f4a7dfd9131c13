// Package reconcile merges extracted candidate records into the persistent
// domain model.
//
// A batch from one voice intake is processed best-effort and
// non-transactionally: each candidate is resolved, validated, and applied
// independently, and a failure in one never rolls back another. A pump
// replacement record is not discarded because an unrelated inventory item
// name was unresolvable.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldops-ai/fieldops/internal/extract"
	"github.com/fieldops-ai/fieldops/internal/fieldops"
	"github.com/fieldops-ai/fieldops/internal/store"
)

// ErrUnresolvedReference is the rejection reason for a candidate whose
// reference hint matched no existing entity.
var ErrUnresolvedReference = errors.New("reconcile: unresolved reference")

// ErrInvalidStatusTransition is the rejection reason for a job update whose
// status change violates the forward-only lifecycle.
var ErrInvalidStatusTransition = errors.New("reconcile: invalid status transition")

// ErrConcurrentUpdateConflict is the rejection reason for an inventory
// adjustment that kept losing the optimistic-concurrency race after the
// bounded retry budget.
var ErrConcurrentUpdateConflict = errors.New("reconcile: concurrent update conflict")

// maxAdjustAttempts bounds the read-adjust retry loop per inventory item.
const maxAdjustAttempts = 3

// Outcome is the fate of one candidate record.
type Outcome struct {
	// Candidate is the record as extracted.
	Candidate extract.CandidateRecord

	// RecordID is the ID of the entity touched or created. Empty for
	// flagged and rejected candidates.
	RecordID string

	// Err is the rejection reason. Nil for applied and flagged candidates.
	Err error
}

// Result partitions one batch into applied, flagged, and rejected
// candidates.
type Result struct {
	Applied  []Outcome
	Flagged  []Outcome
	Rejected []Outcome
}

// Disposition derives the batch disposition from the partition sizes.
func (r Result) Disposition() fieldops.Disposition {
	return fieldops.DispositionFor(len(r.Applied), len(r.Flagged), len(r.Rejected))
}

// TouchedIDs returns the IDs of every record the batch created or mutated.
func (r Result) TouchedIDs() []string {
	ids := make([]string, 0, len(r.Applied))
	for _, o := range r.Applied {
		if o.RecordID != "" {
			ids = append(ids, o.RecordID)
		}
	}
	return ids
}

// Option is a functional option for Reconciler.
type Option func(*Reconciler)

// WithMatchThreshold overrides the minimum fuzzy-match similarity.
// Defaults to 0.85.
func WithMatchThreshold(t float64) Option {
	return func(r *Reconciler) {
		r.matchThreshold = t
	}
}

// WithClock replaces the time source. For tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// Reconciler applies candidate batches against a Store. Safe for concurrent
// use.
type Reconciler struct {
	store               store.Store
	confidenceThreshold float64
	matchThreshold      float64
	now                 func() time.Time
}

// New creates a Reconciler. Candidates with confidence below
// confidenceThreshold are flagged for manual review instead of applied.
func New(st store.Store, confidenceThreshold float64, opts ...Option) (*Reconciler, error) {
	if st == nil {
		return nil, errors.New("reconcile: store must not be nil")
	}
	if confidenceThreshold < 0 || confidenceThreshold > 1 {
		return nil, fmt.Errorf("reconcile: confidence threshold %v out of range [0, 1]", confidenceThreshold)
	}
	r := &Reconciler{
		store:               st,
		confidenceThreshold: confidenceThreshold,
		matchThreshold:      defaultMatchThreshold,
		now:                 time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Reconcile applies one candidate batch. Per-candidate failures land in
// Result.Rejected with their reason; the returned error is non-nil only when
// the reference snapshot itself cannot be read.
func (r *Reconciler) Reconcile(ctx context.Context, candidates []extract.CandidateRecord) (Result, error) {
	jobs, err := r.store.ListJobs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: list jobs: %w", err)
	}
	items, err := r.store.ListItems(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: list items: %w", err)
	}

	var res Result
	for _, c := range candidates {
		if c.Confidence < r.confidenceThreshold {
			res.Flagged = append(res.Flagged, Outcome{Candidate: c})
			continue
		}

		var (
			recordID string
			applyErr error
		)
		switch c.Kind {
		case extract.KindJobUpdate:
			recordID, applyErr = r.applyJobUpdate(ctx, jobs, c.JobUpdate)
		case extract.KindInventoryAdjustment:
			recordID, applyErr = r.applyInventoryAdjustment(ctx, items, c.InventoryAdjustment)
		case extract.KindFollowUpCreate:
			recordID, applyErr = r.applyFollowUpCreate(ctx, jobs, c.FollowUpCreate)
		default:
			applyErr = fmt.Errorf("reconcile: unknown candidate kind %q", c.Kind)
		}

		if applyErr != nil {
			res.Rejected = append(res.Rejected, Outcome{Candidate: c, Err: applyErr})
			continue
		}
		res.Applied = append(res.Applied, Outcome{Candidate: c, RecordID: recordID})
	}
	return res, nil
}

// applyJobUpdate merges the present fields of upd into the resolved job.
// Absent fields are untouched; explicit null is not distinguished from
// absent. When the reference resolves to nothing and the candidate carries
// the create intent, a new job is logged instead.
func (r *Reconciler) applyJobUpdate(ctx context.Context, jobs []fieldops.Job, upd *extract.JobUpdate) (string, error) {
	target, ok := r.resolveJob(jobs, upd.JobID, upd.CustomerHint)
	if !ok {
		if upd.Create {
			return r.createJob(ctx, upd)
		}
		return "", fmt.Errorf("%w: job %q", ErrUnresolvedReference, refLabel(upd.JobID, upd.CustomerHint))
	}

	job, err := r.store.GetJob(ctx, target.ID)
	if err != nil {
		return "", fmt.Errorf("reconcile: reload job %q: %w", target.ID, err)
	}

	if upd.Status != nil {
		next := fieldops.JobStatus(*upd.Status)
		if !job.Status.CanTransition(next) {
			return "", fmt.Errorf("%w: %s → %s", ErrInvalidStatusTransition, job.Status, next)
		}
		job.Status = next
	}
	if upd.Description != nil {
		job.Description = *upd.Description
	}
	if upd.LaborHours != nil {
		job.LaborHours = *upd.LaborHours
	}
	if upd.JobType != nil && job.Description == "" {
		job.Description = *upd.JobType
	}

	if err := r.store.UpdateJob(ctx, job); err != nil {
		return "", fmt.Errorf("reconcile: update job %q: %w", job.ID, err)
	}
	return job.ID, nil
}

// createJob logs a new job for a customer with no prior job on file. A
// voice note reports work already performed, so the status defaults to
// completed when the candidate names none.
func (r *Reconciler) createJob(ctx context.Context, upd *extract.JobUpdate) (string, error) {
	status := fieldops.JobCompleted
	if upd.Status != nil {
		next := fieldops.JobStatus(*upd.Status)
		if !next.IsValid() {
			return "", fmt.Errorf("reconcile: unknown job status %q", next)
		}
		status = next
	}

	job := &fieldops.Job{
		Customer: upd.CustomerHint,
		Status:   status,
	}
	if job.Customer == "" {
		job.Customer = "Unknown"
	}
	if upd.Description != nil {
		job.Description = *upd.Description
	} else if upd.JobType != nil {
		job.Description = *upd.JobType
	}
	if upd.LaborHours != nil {
		job.LaborHours = *upd.LaborHours
	}

	if err := r.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("reconcile: create job: %w", err)
	}
	return job.ID, nil
}

// applyInventoryAdjustment applies a signed delta with a bounded
// optimistic-concurrency retry loop. The non-negative invariant is checked
// atomically by the store; violations reject the candidate without partial
// application.
func (r *Reconciler) applyInventoryAdjustment(ctx context.Context, items []fieldops.InventoryItem, adj *extract.InventoryAdjustment) (string, error) {
	target, ok := r.resolveItem(items, adj.ItemID, adj.ItemHint)
	if !ok {
		return "", fmt.Errorf("%w: inventory item %q", ErrUnresolvedReference, refLabel(adj.ItemID, adj.ItemHint))
	}

	asOf := target.UpdatedAt
	for attempt := 1; attempt <= maxAdjustAttempts; attempt++ {
		updated, err := r.store.AdjustQuantity(ctx, target.ID, adj.Delta, asOf)
		if err == nil {
			return updated.ID, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return "", err
		}
		fresh, err := r.store.GetItem(ctx, target.ID)
		if err != nil {
			return "", fmt.Errorf("reconcile: reload item %q: %w", target.ID, err)
		}
		asOf = fresh.UpdatedAt
	}
	return "", fmt.Errorf("%w: item %q after %d attempts", ErrConcurrentUpdateConflict, target.ID, maxAdjustAttempts)
}

// applyFollowUpCreate always creates. The job reference is best-effort: an
// unresolvable hint produces a follow-up without a reference rather than a
// rejection, keeping the reminder text.
func (r *Reconciler) applyFollowUpCreate(ctx context.Context, jobs []fieldops.Job, fc *extract.FollowUpCreate) (string, error) {
	jobID := ""
	if target, ok := r.resolveJob(jobs, fc.JobID, fc.JobHint); ok {
		jobID = target.ID
	}

	dueBy := fc.DueBy
	if dueBy.IsZero() {
		dueBy = extract.ParseDueDate(fc.DueDate, r.now())
	}

	fu := &fieldops.FollowUp{
		JobID:       jobID,
		Description: fc.Description,
		DueAt:       dueBy,
		Status:      fieldops.FollowUpPending,
	}
	if err := r.store.CreateFollowUp(ctx, fu); err != nil {
		return "", fmt.Errorf("reconcile: create follow-up: %w", err)
	}
	return fu.ID, nil
}

// refLabel names a reference for error messages, preferring the ID.
func refLabel(id, hint string) string {
	if id != "" {
		return id
	}
	return hint
}
