package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/expense-approval/internal"
	expenseDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/expense"
	"github.com/frahmantamala/expense-approval/internal/expense"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExpenseRepository stores expenses and their approvals with GORM.
type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) expense.RepositoryAPI {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(ctx context.Context, exp *expenseDatamodel.Expense) error {
	return r.db.WithContext(ctx).Create(exp).Error
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*expenseDatamodel.Expense, error) {
	return getExpense(r.db.WithContext(ctx), id)
}

func (r *ExpenseRepository) ListApprovals(ctx context.Context, expenseID int64) ([]*expenseDatamodel.ExpenseApproval, error) {
	return listApprovals(r.db.WithContext(ctx), expenseID)
}

func (r *ExpenseRepository) ListByEmployee(ctx context.Context, employeeID int64, limit, offset int) ([]*expenseDatamodel.Expense, error) {
	var expenses []*expenseDatamodel.Expense
	err := r.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&expenses).Error
	return expenses, err
}

func (r *ExpenseRepository) InTx(ctx context.Context, fn func(tx expense.TxRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txRepository{db: tx})
	})
}

type txRepository struct {
	db *gorm.DB
}

// LockWorkflow takes SELECT ... FOR UPDATE on postgres. SQLite serializes
// writers on its own and has no row locks.
func (t *txRepository) LockWorkflow(ctx context.Context, expenseID int64) (*expenseDatamodel.Expense, []*expenseDatamodel.ExpenseApproval, error) {
	q := t.db.WithContext(ctx)
	if t.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	exp, err := getExpense(q, expenseID)
	if err != nil {
		return nil, nil, err
	}
	approvals, err := listApprovals(t.db.WithContext(ctx), expenseID)
	if err != nil {
		return nil, nil, err
	}
	return exp, approvals, nil
}

func (t *txRepository) SaveExpense(ctx context.Context, exp *expenseDatamodel.Expense) error {
	return t.db.WithContext(ctx).Save(exp).Error
}

func (t *txRepository) SaveApproval(ctx context.Context, a *expenseDatamodel.ExpenseApproval) error {
	if a.ID == 0 {
		return t.db.WithContext(ctx).Create(a).Error
	}
	return t.db.WithContext(ctx).Save(a).Error
}

func getExpense(db *gorm.DB, id int64) (*expenseDatamodel.Expense, error) {
	var exp expenseDatamodel.Expense
	if err := db.Where("id = ?", id).First(&exp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrExpenseNotFound
		}
		return nil, err
	}
	return &exp, nil
}

func listApprovals(db *gorm.DB, expenseID int64) ([]*expenseDatamodel.ExpenseApproval, error) {
	var approvals []*expenseDatamodel.ExpenseApproval
	err := db.Where("expense_id = ?", expenseID).
		Order("step_order ASC").
		Order("id ASC").
		Find(&approvals).Error
	return approvals, err
}
