package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fieldops-ai/fieldops/internal/fieldops"
)

// Schema is the SQL DDL for all FieldOps tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id           TEXT PRIMARY KEY,
    customer     TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'open',
    scheduled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    labor_hours  DOUBLE PRECISION NOT NULL DEFAULT 0,
    parts        JSONB NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_updated ON jobs(updated_at);

CREATE TABLE IF NOT EXISTS inventory_items (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    quantity   INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    unit_cost  DOUBLE PRECISION NOT NULL DEFAULT 0,
    threshold  INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_inventory_items_name ON inventory_items(name);

CREATE TABLE IF NOT EXISTS followups (
    id          TEXT PRIMARY KEY,
    job_id      TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL,
    due_at      TIMESTAMPTZ NOT NULL,
    status      TEXT NOT NULL DEFAULT 'pending',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_followups_due ON followups(status, due_at);

CREATE TABLE IF NOT EXISTS alerts (
    id             TEXT PRIMARY KEY,
    kind           TEXT NOT NULL,
    subject_id     TEXT NOT NULL,
    severity       TEXT NOT NULL,
    first_observed TIMESTAMPTZ NOT NULL,
    last_observed  TIMESTAMPTZ NOT NULL,
    cleared_at     TIMESTAMPTZ,
    UNIQUE (kind, subject_id)
);

CREATE TABLE IF NOT EXISTS voice_intakes (
    id          TEXT PRIMARY KEY,
    transcript  TEXT NOT NULL,
    confidence  DOUBLE PRECISION NOT NULL,
    touched_ids JSONB NOT NULL DEFAULT '[]',
    disposition TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_voice_intakes_created ON voice_intakes(created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Parts usage and
// touched-ID lists are serialised as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// FieldOps tables and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const jobColumns = `id, customer, description, status, scheduled_at, labor_hours, parts, created_at, updated_at`

// CreateJob implements [Store.CreateJob].
func (s *PostgresStore) CreateJob(ctx context.Context, job *fieldops.Job) error {
	if job.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("store: generate id: %w", err)
		}
		job.ID = id
	}
	if job.Status == "" {
		job.Status = fieldops.JobOpen
	}
	partsJSON, err := json.Marshal(emptyParts(job.Parts))
	if err != nil {
		return fmt.Errorf("store: marshal parts: %w", err)
	}

	const query = `
		INSERT INTO jobs (id, customer, description, status, scheduled_at, labor_hours, parts)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		job.ID, job.Customer, job.Description, string(job.Status),
		job.ScheduledAt, job.LaborHours, partsJSON,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("store: job %q: %w", job.ID, ErrDuplicateID)
		}
		return fmt.Errorf("store: create job: %w", err)
	}
	return nil
}

// GetJob implements [Store.GetJob].
func (s *PostgresStore) GetJob(ctx context.Context, id string) (*fieldops.Job, error) {
	const query = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store: job %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get job %q: %w", id, err)
	}
	return job, nil
}

// UpdateJob implements [Store.UpdateJob].
func (s *PostgresStore) UpdateJob(ctx context.Context, job *fieldops.Job) error {
	partsJSON, err := json.Marshal(emptyParts(job.Parts))
	if err != nil {
		return fmt.Errorf("store: marshal parts: %w", err)
	}

	const query = `
		UPDATE jobs SET
			customer = $2, description = $3, status = $4, scheduled_at = $5,
			labor_hours = $6, parts = $7, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		job.ID, job.Customer, job.Description, string(job.Status),
		job.ScheduledAt, job.LaborHours, partsJSON,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("store: job %q: %w", job.ID, ErrNotFound)
		}
		return fmt.Errorf("store: update job: %w", err)
	}
	return nil
}

// ListJobs implements [Store.ListJobs].
func (s *PostgresStore) ListJobs(ctx context.Context) ([]fieldops.Job, error) {
	const query = `SELECT ` + jobColumns + ` FROM jobs ORDER BY updated_at DESC, id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []fieldops.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list jobs scan: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob implements [Store.DeleteJob]. Referencing follow-ups are
// detached first so they keep their description.
func (s *PostgresStore) DeleteJob(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `UPDATE followups SET job_id = '' WHERE job_id = $1`, id); err != nil {
		return fmt.Errorf("store: detach follow-ups for job %q: %w", id, err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete job %q: %w", id, err)
	}
	return nil
}

const itemColumns = `id, name, quantity, unit_cost, threshold, updated_at`

// UpsertItem implements [Store.UpsertItem].
func (s *PostgresStore) UpsertItem(ctx context.Context, item *fieldops.InventoryItem) error {
	if item.Quantity < 0 {
		return fmt.Errorf("store: item %q quantity %d: %w", item.Name, item.Quantity, ErrInsufficientStock)
	}
	if item.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("store: generate id: %w", err)
		}
		item.ID = id
	}

	const query = `
		INSERT INTO inventory_items (id, name, quantity, unit_cost, threshold)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			quantity = EXCLUDED.quantity,
			unit_cost = EXCLUDED.unit_cost,
			threshold = EXCLUDED.threshold,
			updated_at = now()
		RETURNING updated_at`

	err := s.db.QueryRow(ctx, query,
		item.ID, item.Name, item.Quantity, item.UnitCost, item.Threshold,
	).Scan(&item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert item: %w", err)
	}
	return nil
}

// GetItem implements [Store.GetItem].
func (s *PostgresStore) GetItem(ctx context.Context, id string) (*fieldops.InventoryItem, error) {
	const query = `SELECT ` + itemColumns + ` FROM inventory_items WHERE id = $1`

	var it fieldops.InventoryItem
	err := s.db.QueryRow(ctx, query, id).Scan(
		&it.ID, &it.Name, &it.Quantity, &it.UnitCost, &it.Threshold, &it.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store: item %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get item %q: %w", id, err)
	}
	return &it, nil
}

// ListItems implements [Store.ListItems].
func (s *PostgresStore) ListItems(ctx context.Context) ([]fieldops.InventoryItem, error) {
	const query = `SELECT ` + itemColumns + ` FROM inventory_items ORDER BY name, id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list items: %w", err)
	}
	defer rows.Close()

	var items []fieldops.InventoryItem
	for rows.Next() {
		var it fieldops.InventoryItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Quantity, &it.UnitCost, &it.Threshold, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: list items scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list items: %w", err)
	}
	return items, nil
}

// AdjustQuantity implements [Store.AdjustQuantity]. Both predicates live in
// the UPDATE's WHERE clause, so the check and the write are one atomic
// statement; a missed row is disambiguated with a follow-up read.
func (s *PostgresStore) AdjustQuantity(ctx context.Context, id string, delta int, asOf time.Time) (*fieldops.InventoryItem, error) {
	const query = `
		UPDATE inventory_items
		SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1 AND updated_at = $3 AND quantity + $2 >= 0
		RETURNING ` + itemColumns

	var it fieldops.InventoryItem
	err := s.db.QueryRow(ctx, query, id, delta, asOf).Scan(
		&it.ID, &it.Name, &it.Quantity, &it.UnitCost, &it.Threshold, &it.UpdatedAt,
	)
	if err == nil {
		return &it, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: adjust item %q: %w", id, err)
	}

	current, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.UpdatedAt.Equal(asOf) {
		return nil, fmt.Errorf("store: item %q changed since read: %w", id, ErrConflict)
	}
	return nil, fmt.Errorf("store: item %q has %d, adjustment %d: %w", id, current.Quantity, delta, ErrInsufficientStock)
}

const followUpColumns = `id, job_id, description, due_at, status, created_at`

// CreateFollowUp implements [Store.CreateFollowUp].
func (s *PostgresStore) CreateFollowUp(ctx context.Context, fu *fieldops.FollowUp) error {
	if fu.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("store: generate id: %w", err)
		}
		fu.ID = id
	}
	if fu.Status == "" {
		fu.Status = fieldops.FollowUpPending
	}

	const query = `
		INSERT INTO followups (id, job_id, description, due_at, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		fu.ID, fu.JobID, fu.Description, fu.DueAt, string(fu.Status),
	).Scan(&fu.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("store: follow-up %q: %w", fu.ID, ErrDuplicateID)
		}
		return fmt.Errorf("store: create follow-up: %w", err)
	}
	return nil
}

// GetFollowUp implements [Store.GetFollowUp].
func (s *PostgresStore) GetFollowUp(ctx context.Context, id string) (*fieldops.FollowUp, error) {
	const query = `SELECT ` + followUpColumns + ` FROM followups WHERE id = $1`

	var fu fieldops.FollowUp
	err := s.db.QueryRow(ctx, query, id).Scan(
		&fu.ID, &fu.JobID, &fu.Description, &fu.DueAt, &fu.Status, &fu.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store: follow-up %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get follow-up %q: %w", id, err)
	}
	return &fu, nil
}

// UpdateFollowUp implements [Store.UpdateFollowUp].
func (s *PostgresStore) UpdateFollowUp(ctx context.Context, fu *fieldops.FollowUp) error {
	const query = `
		UPDATE followups SET
			job_id = $2, description = $3, due_at = $4, status = $5
		WHERE id = $1
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		fu.ID, fu.JobID, fu.Description, fu.DueAt, string(fu.Status),
	).Scan(&fu.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("store: follow-up %q: %w", fu.ID, ErrNotFound)
		}
		return fmt.Errorf("store: update follow-up: %w", err)
	}
	return nil
}

// ListFollowUps implements [Store.ListFollowUps].
func (s *PostgresStore) ListFollowUps(ctx context.Context) ([]fieldops.FollowUp, error) {
	const query = `SELECT ` + followUpColumns + ` FROM followups ORDER BY due_at, id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list follow-ups: %w", err)
	}
	defer rows.Close()

	var fus []fieldops.FollowUp
	for rows.Next() {
		var fu fieldops.FollowUp
		if err := rows.Scan(&fu.ID, &fu.JobID, &fu.Description, &fu.DueAt, &fu.Status, &fu.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list follow-ups scan: %w", err)
		}
		fus = append(fus, fu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list follow-ups: %w", err)
	}
	return fus, nil
}

const alertColumns = `id, kind, subject_id, severity, first_observed, last_observed, cleared_at`

// GetAlert implements [Store.GetAlert].
func (s *PostgresStore) GetAlert(ctx context.Context, kind fieldops.AlertKind, subjectID string) (*fieldops.Alert, error) {
	const query = `SELECT ` + alertColumns + ` FROM alerts WHERE kind = $1 AND subject_id = $2`

	var a fieldops.Alert
	err := s.db.QueryRow(ctx, query, string(kind), subjectID).Scan(
		&a.ID, &a.Kind, &a.SubjectID, &a.Severity, &a.FirstObserved, &a.LastObserved, &a.ClearedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store: alert (%s, %s): %w", kind, subjectID, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get alert (%s, %s): %w", kind, subjectID, err)
	}
	return &a, nil
}

// UpsertAlert implements [Store.UpsertAlert]. The unique (kind, subject_id)
// constraint makes concurrent scans converge on a single row.
func (s *PostgresStore) UpsertAlert(ctx context.Context, alert *fieldops.Alert) error {
	if alert.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("store: generate id: %w", err)
		}
		alert.ID = id
	}

	const query = `
		INSERT INTO alerts (id, kind, subject_id, severity, first_observed, last_observed, cleared_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (kind, subject_id) DO UPDATE SET
			severity = EXCLUDED.severity,
			first_observed = EXCLUDED.first_observed,
			last_observed = EXCLUDED.last_observed,
			cleared_at = EXCLUDED.cleared_at
		RETURNING id`

	err := s.db.QueryRow(ctx, query,
		alert.ID, string(alert.Kind), alert.SubjectID, string(alert.Severity),
		alert.FirstObserved, alert.LastObserved, alert.ClearedAt,
	).Scan(&alert.ID)
	if err != nil {
		return fmt.Errorf("store: upsert alert: %w", err)
	}
	return nil
}

// ListAlerts implements [Store.ListAlerts].
func (s *PostgresStore) ListAlerts(ctx context.Context) ([]fieldops.Alert, error) {
	const query = `SELECT ` + alertColumns + ` FROM alerts ORDER BY last_observed DESC, id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []fieldops.Alert
	for rows.Next() {
		var a fieldops.Alert
		if err := rows.Scan(&a.ID, &a.Kind, &a.SubjectID, &a.Severity, &a.FirstObserved, &a.LastObserved, &a.ClearedAt); err != nil {
			return nil, fmt.Errorf("store: list alerts scan: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	return alerts, nil
}

// PurgeAlerts implements [Store.PurgeAlerts].
func (s *PostgresStore) PurgeAlerts(ctx context.Context, clearedBefore time.Time) (int, error) {
	const query = `DELETE FROM alerts WHERE cleared_at IS NOT NULL AND cleared_at < $1`

	tag, err := s.db.Exec(ctx, query, clearedBefore)
	if err != nil {
		return 0, fmt.Errorf("store: purge alerts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CreateIntake implements [Store.CreateIntake].
func (s *PostgresStore) CreateIntake(ctx context.Context, intake *fieldops.VoiceIntake) error {
	if intake.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("store: generate id: %w", err)
		}
		intake.ID = id
	}
	touchedJSON, err := json.Marshal(emptyStrings(intake.TouchedIDs))
	if err != nil {
		return fmt.Errorf("store: marshal touched ids: %w", err)
	}

	const query = `
		INSERT INTO voice_intakes (id, transcript, confidence, touched_ids, disposition)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`

	err = s.db.QueryRow(ctx, query,
		intake.ID, intake.Transcript, intake.Confidence, touchedJSON, string(intake.Disposition),
	).Scan(&intake.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("store: intake %q: %w", intake.ID, ErrDuplicateID)
		}
		return fmt.Errorf("store: create intake: %w", err)
	}
	return nil
}

// ListIntakes implements [Store.ListIntakes].
func (s *PostgresStore) ListIntakes(ctx context.Context, limit int) ([]fieldops.VoiceIntake, error) {
	query := `SELECT id, transcript, confidence, touched_ids, disposition, created_at
		FROM voice_intakes ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list intakes: %w", err)
	}
	defer rows.Close()

	var intakes []fieldops.VoiceIntake
	for rows.Next() {
		var in fieldops.VoiceIntake
		var touchedJSON []byte
		if err := rows.Scan(&in.ID, &in.Transcript, &in.Confidence, &touchedJSON, &in.Disposition, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list intakes scan: %w", err)
		}
		if err := json.Unmarshal(touchedJSON, &in.TouchedIDs); err != nil {
			return nil, fmt.Errorf("store: unmarshal touched ids: %w", err)
		}
		intakes = append(intakes, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list intakes: %w", err)
	}
	return intakes, nil
}

// scanJob reads one jobs row in jobColumns order.
func scanJob(row pgx.Row) (*fieldops.Job, error) {
	var job fieldops.Job
	var partsJSON []byte
	err := row.Scan(
		&job.ID, &job.Customer, &job.Description, &job.Status, &job.ScheduledAt,
		&job.LaborHours, &partsJSON, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(partsJSON, &job.Parts); err != nil {
		return nil, fmt.Errorf("unmarshal parts: %w", err)
	}
	return &job, nil
}

// emptyParts returns p if non-nil, otherwise an empty non-nil slice. This
// ensures JSON marshalling produces "[]" instead of "null".
func emptyParts(p []fieldops.PartUsage) []fieldops.PartUsage {
	if p == nil {
		return []fieldops.PartUsage{}
	}
	return p
}

// emptyStrings returns s if non-nil, otherwise an empty non-nil slice.
func emptyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
