package postgres

import (
	"context"
	"fmt"

	"github.com/forgefleet/fleetops/internal/domain/order"
)

var _ order.OperationLogRepo = (*OpLogRepoImpl)(nil)

type OpLogRepoImpl struct {
	db *DB
}

func NewOpLogRepo(db *DB) *OpLogRepoImpl { return &OpLogRepoImpl{db: db} }

const (
	qOpLogInsert = `
INSERT INTO operation_logs (order_id, action, detail, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id;
`

	qOpLogsByOrder = `
SELECT id, order_id, action, detail, created_at
FROM operation_logs
WHERE order_id = $1
ORDER BY id ASC;
`
)

func (r *OpLogRepoImpl) Append(ctx context.Context, e *order.OperationLog) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qOpLogInsert,
		e.OrderID, e.Action, e.Detail, e.CreatedAt,
	).Scan(&e.ID); err != nil {
		return fmt.Errorf("insert operation log: %w", err)
	}
	return nil
}

func (r *OpLogRepoImpl) ListByOrder(ctx context.Context, orderID string) ([]*order.OperationLog, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qOpLogsByOrder, orderID)
	if err != nil {
		return nil, fmt.Errorf("query operation logs: %w", err)
	}
	defer rows.Close()

	var out []*order.OperationLog
	for rows.Next() {
		var e order.OperationLog
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan operation log: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
