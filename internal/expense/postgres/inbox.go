package postgres

import (
	"context"

	"github.com/frahmantamala/expense-approval/internal/expense"

	"github.com/jmoiron/sqlx"
)

const pendingForApproverQuery = `
SELECT ea.id AS approval_id,
       ea.expense_id,
       ea.step_order,
       ea.is_high_priority,
       ea.created_at AS activated_at,
       e.employee_id,
       e.description,
       e.category,
       e.converted_amount,
       e.converted_currency_code,
       e.submitted_at
  FROM expense_approvals ea
  JOIN expenses e ON e.id = ea.expense_id
 WHERE ea.approver_id = ?
   AND ea.status = 'PENDING'
   AND e.status = 'PENDING'
 ORDER BY ea.created_at ASC, ea.id ASC
 LIMIT ? OFFSET ?`

// InboxRepository serves the approver inbox with a hand-written join.
type InboxRepository struct {
	db *sqlx.DB
}

func NewInboxRepository(db *sqlx.DB) expense.InboxRepository {
	return &InboxRepository{db: db}
}

func (r *InboxRepository) PendingForApprover(ctx context.Context, approverID int64, limit, offset int) ([]expense.InboxItem, error) {
	items := []expense.InboxItem{}
	query := r.db.Rebind(pendingForApproverQuery)
	if err := r.db.SelectContext(ctx, &items, query, approverID, limit, offset); err != nil {
		return nil, err
	}
	return items, nil
}
