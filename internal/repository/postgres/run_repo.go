package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/forgefleet/fleetops/internal/domain/healthrun"
	"github.com/forgefleet/fleetops/internal/domain/paging"
)

var _ healthrun.Repo = (*RunRepoImpl)(nil)

type RunRepoImpl struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepoImpl { return &RunRepoImpl{db: db} }

const runColumns = `id, run_id, trigger_kind, trigger_source, status,
total_workers, completed_workers, passed_workers, failed_workers,
overall_score, analysis, recommendation, started_at, completed_at, timeout_at`

const (
	qRunInsert = `
INSERT INTO health_check_runs
  (run_id, trigger_kind, trigger_source, status, total_workers, started_at, timeout_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id;
`

	qRunByRunID = `
SELECT ` + runColumns + `
FROM health_check_runs
WHERE run_id = $1;
`
)

func scanRun(row pgx.Row, r *healthrun.Run) error {
	if err := row.Scan(
		&r.ID,
		&r.RunID,
		&r.TriggerKind,
		&r.TriggerSource,
		&r.Status,
		&r.TotalWorkers,
		&r.CompletedWorkers,
		&r.PassedWorkers,
		&r.FailedWorkers,
		&r.OverallScore,
		&r.Analysis,
		&r.Recommendation,
		&r.StartedAt,
		&r.CompletedAt,
		&r.TimeoutAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan run: %w", err)
	}
	return nil
}

func (r *RunRepoImpl) Create(ctx context.Context, run *healthrun.Run) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qRunInsert,
		run.RunID, run.TriggerKind, run.TriggerSource, run.Status,
		run.TotalWorkers, run.StartedAt, run.TimeoutAt,
	).Scan(&run.ID); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepoImpl) GetByRunID(ctx context.Context, runID string) (*healthrun.Run, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var run healthrun.Run
	eq := r.db.execQueryer(ctx)
	if err := scanRun(eq.QueryRow(ctx, qRunByRunID, runID), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// List pages runs newest first. The total is computed over the same
// predicate as the page, so filtered listings report filtered totals.
func (r *RunRepoImpl) List(ctx context.Context, f healthrun.Filter, p paging.Page) ([]*healthrun.Run, int, error) {
	p = p.Clamp(healthrun.DefaultListLimit)

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	where, args := runFilterClause(f)

	var total int
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM health_check_runs`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	q := `SELECT ` + runColumns + ` FROM health_check_runs` + where +
		fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.Pool.Query(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := make([]*healthrun.Run, 0, p.Limit)
	for rows.Next() {
		var run healthrun.Run
		if err := scanRun(rows, &run); err != nil {
			return nil, 0, err
		}
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows: %w", err)
	}
	return out, total, nil
}

func runFilterClause(f healthrun.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.TriggerKind != nil {
		args = append(args, *f.TriggerKind)
		conds = append(conds, fmt.Sprintf("trigger_kind = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Update patches only the non-nil fields, keeping write access limited
// to the mutable run attributes.
func (r *RunRepoImpl) Update(ctx context.Context, runID string, u healthrun.Update) error {
	sets, args := runUpdateClause(u)
	if len(sets) == 0 {
		return nil
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	args = append(args, runID)
	q := fmt.Sprintf(`UPDATE health_check_runs SET %s WHERE run_id = $%d;`,
		strings.Join(sets, ", "), len(args))

	eq := r.db.execQueryer(ctx)
	cmd, err := eq.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func runUpdateClause(u healthrun.Update) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Status != nil {
		set("status", *u.Status)
	}
	if u.CompletedWorkers != nil {
		set("completed_workers", *u.CompletedWorkers)
	}
	if u.PassedWorkers != nil {
		set("passed_workers", *u.PassedWorkers)
	}
	if u.FailedWorkers != nil {
		set("failed_workers", *u.FailedWorkers)
	}
	if u.OverallScore != nil {
		set("overall_score", *u.OverallScore)
	}
	if u.Analysis != nil {
		set("analysis", *u.Analysis)
	}
	if u.Recommendation != nil {
		set("recommendation", *u.Recommendation)
	}
	if u.CompletedAt != nil {
		set("completed_at", *u.CompletedAt)
	}
	return sets, args
}
