package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opencode-ai/uiwalk/internal/models"
)

// Run repository errors.
var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunFinished = errors.New("run already finished")
)

// RunRepository handles run persistence.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// RunQuery filters List.
type RunQuery struct {
	Recipe string
	Status models.RunStatus
	Limit  int
}

// Create inserts a new run. ID and StartedAt are filled when empty.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if err := run.Validate(); err != nil {
		return err
	}

	varsJSON, err := marshalOptional(run.Vars)
	if err != nil {
		return fmt.Errorf("failed to marshal vars: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, recipe, runtime, status, vars_json, steps_total, steps_completed,
			failed_step, reason, payload_json, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Recipe,
		run.Runtime,
		string(run.Status),
		varsJSON,
		run.StepsTotal,
		run.StepsCompleted,
		run.FailedStep,
		run.Reason,
		rawOptional(run.Payload),
		formatTime(run.StartedAt),
		timeOptional(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Finish records the terminal state of a running run.
func (r *RunRepository) Finish(ctx context.Context, run *models.Run) error {
	if !run.Status.Terminal() {
		return fmt.Errorf("finish run %s: status %q is not terminal", run.ID, run.Status)
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	if err := run.Validate(); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, steps_completed = ?, failed_step = ?, reason = ?, payload_json = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`,
		string(run.Status),
		run.StepsCompleted,
		run.FailedStep,
		run.Reason,
		rawOptional(run.Payload),
		timeOptional(run.FinishedAt),
		run.ID,
		string(models.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		if _, err := r.Get(ctx, run.ID); err != nil {
			return err
		}
		return ErrRunFinished
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, recipe, runtime, status, vars_json, steps_total, steps_completed,
			failed_step, reason, payload_json, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	run, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// List returns runs, newest first.
func (r *RunRepository) List(ctx context.Context, q RunQuery) ([]*models.Run, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, recipe, runtime, status, vars_json, steps_total, steps_completed,
		failed_step, reason, payload_json, started_at, finished_at
		FROM runs WHERE 1=1`
	args := []any{}
	if q.Recipe != "" {
		query += ` AND recipe = ?`
		args = append(args, q.Recipe)
	}
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(q.Status))
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.Run, 0)
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

func (r *RunRepository) scan(row scanner) (*models.Run, error) {
	var run models.Run
	var status, startedAt string
	var varsJSON, payloadJSON, finishedAt sql.NullString

	if err := row.Scan(
		&run.ID,
		&run.Recipe,
		&run.Runtime,
		&status,
		&varsJSON,
		&run.StepsTotal,
		&run.StepsCompleted,
		&run.FailedStep,
		&run.Reason,
		&payloadJSON,
		&startedAt,
		&finishedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = models.RunStatus(status)
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
	if payloadJSON.Valid {
		run.Payload = json.RawMessage(payloadJSON.String)
	}
	if varsJSON.Valid {
		if err := json.Unmarshal([]byte(varsJSON.String), &run.Vars); err != nil {
			r.db.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to parse run vars")
		}
	}
	return &run, nil
}

func marshalOptional(v map[string]string) (*string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func rawOptional(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

func timeOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
