package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/forgefleet/fleetops/internal/domain/paging"
	"github.com/forgefleet/fleetops/internal/domain/workerresult"
)

var _ workerresult.Repo = (*ResultRepoImpl)(nil)

type ResultRepoImpl struct {
	db *DB
}

func NewResultRepo(db *DB) *ResultRepoImpl { return &ResultRepoImpl{db: db} }

const resultColumns = `id, check_id, run_id, worker_name, worker_type, endpoint,
status, classification, score, created_at, completed_at`

const (
	qResultInsert = `
INSERT INTO worker_health_checks
  (check_id, run_id, worker_name, worker_type, endpoint, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id;
`

	qResultByCheckID = `
SELECT ` + resultColumns + `
FROM worker_health_checks
WHERE check_id = $1;
`

	qResultsByRun = `
SELECT ` + resultColumns + `
FROM worker_health_checks
WHERE run_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`

	qResultsByRunCount = `SELECT COUNT(*) FROM worker_health_checks WHERE run_id = $1;`

	qResultComplete = `
UPDATE worker_health_checks
SET status = $1, classification = $2, score = $3, completed_at = $4
WHERE check_id = $5 AND status = 'pending';
`

	qResultsByRunAll = `
SELECT ` + resultColumns + `
FROM worker_health_checks
WHERE run_id = $1
ORDER BY id;
`
)

func scanResult(row pgx.Row, res *workerresult.Result) error {
	if err := row.Scan(
		&res.ID,
		&res.CheckID,
		&res.RunID,
		&res.WorkerName,
		&res.WorkerType,
		&res.Endpoint,
		&res.Status,
		&res.Classification,
		&res.Score,
		&res.CreatedAt,
		&res.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan result: %w", err)
	}
	return nil
}

func (r *ResultRepoImpl) Create(ctx context.Context, res *workerresult.Result) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qResultInsert,
		res.CheckID, res.RunID, res.WorkerName, res.WorkerType,
		res.Endpoint, res.Status, res.CreatedAt,
	).Scan(&res.ID); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (r *ResultRepoImpl) GetByCheckID(ctx context.Context, checkID string) (*workerresult.Result, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var res workerresult.Result
	eq := r.db.execQueryer(ctx)
	if err := scanResult(eq.QueryRow(ctx, qResultByCheckID, checkID), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *ResultRepoImpl) ListByRun(ctx context.Context, runID string, p paging.Page) ([]*workerresult.Result, int, error) {
	p = p.Clamp(workerresult.DefaultListLimit)

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.db.Pool.QueryRow(ctx, qResultsByRunCount, runID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, qResultsByRun, runID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]*workerresult.Result, 0, p.Limit)
	for rows.Next() {
		var res workerresult.Result
		if err := scanResult(rows, &res); err != nil {
			return nil, 0, err
		}
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows: %w", err)
	}
	return out, total, nil
}

func (r *ResultRepoImpl) ListAllByRun(ctx context.Context, runID string) ([]*workerresult.Result, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	rows, err := eq.Query(ctx, qResultsByRunAll, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []*workerresult.Result
	for rows.Next() {
		var res workerresult.Result
		if err := scanResult(rows, &res); err != nil {
			return nil, err
		}
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// CompleteIfPending guards the terminal transition in the statement
// itself. A completion racing a finalize that already timed the row
// out matches zero rows instead of overwriting the terminal state.
func (r *ResultRepoImpl) CompleteIfPending(ctx context.Context, checkID string, c workerresult.Completion) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	cmd, err := eq.Exec(ctx, qResultComplete,
		c.Status, c.Classification, c.Score, c.CompletedAt, checkID)
	if err != nil {
		return fmt.Errorf("complete result: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
