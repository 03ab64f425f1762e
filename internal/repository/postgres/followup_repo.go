package postgres

import (
	"context"
	"fmt"

	"github.com/forgefleet/fleetops/internal/domain/order"
)

var _ order.FollowupRepo = (*FollowupRepoImpl)(nil)

type FollowupRepoImpl struct {
	db *DB
}

func NewFollowupRepo(db *DB) *FollowupRepoImpl { return &FollowupRepoImpl{db: db} }

const (
	qFollowupInsert = `
INSERT INTO followups (order_id, type, impact, file_path, message, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id;
`

	// Lowest impact first, so the most severe items sort last.
	qFollowupsByOrder = `
SELECT id, order_id, type, impact, file_path, message, created_at
FROM followups
WHERE order_id = $1
ORDER BY impact ASC, id ASC;
`
)

func (r *FollowupRepoImpl) Create(ctx context.Context, f *order.Followup) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qFollowupInsert,
		f.OrderID, f.Type, f.Impact, f.FilePath, f.Message, f.CreatedAt,
	).Scan(&f.ID); err != nil {
		return fmt.Errorf("insert followup: %w", err)
	}
	return nil
}

func (r *FollowupRepoImpl) ListByOrder(ctx context.Context, orderID string) ([]*order.Followup, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qFollowupsByOrder, orderID)
	if err != nil {
		return nil, fmt.Errorf("query followups: %w", err)
	}
	defer rows.Close()

	var out []*order.Followup
	for rows.Next() {
		var f order.Followup
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Type, &f.Impact, &f.FilePath, &f.Message, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan followup: %w", err)
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
