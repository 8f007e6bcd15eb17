package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approval"
	expenseDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/expense"
	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/core/metrics"
	"github.com/frahmantamala/expense-approval/internal/lock"
	"github.com/frahmantamala/expense-approval/internal/user"

	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultLockWait = 5 * time.Second
)

type RepositoryAPI interface {
	Create(ctx context.Context, expense *expenseDatamodel.Expense) error
	GetByID(ctx context.Context, id int64) (*expenseDatamodel.Expense, error)
	ListApprovals(ctx context.Context, expenseID int64) ([]*expenseDatamodel.ExpenseApproval, error)
	ListByEmployee(ctx context.Context, employeeID int64, limit, offset int) ([]*expenseDatamodel.Expense, error)
	// InTx runs fn in one database transaction. A non-nil error rolls back.
	InTx(ctx context.Context, fn func(tx TxRepository) error) error
}

// TxRepository is the transaction-scoped view of RepositoryAPI.
type TxRepository interface {
	// LockWorkflow loads an expense and its approvals, holding a row lock on
	// the expense where the database supports one.
	LockWorkflow(ctx context.Context, expenseID int64) (*expenseDatamodel.Expense, []*expenseDatamodel.ExpenseApproval, error)
	SaveExpense(ctx context.Context, expense *expenseDatamodel.Expense) error
	// SaveApproval inserts when ID is zero and updates otherwise.
	SaveApproval(ctx context.Context, a *expenseDatamodel.ExpenseApproval) error
}

type InboxRepository interface {
	PendingForApprover(ctx context.Context, approverID int64, limit, offset int) ([]InboxItem, error)
}

type Directory interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	GetCompany(ctx context.Context, id int64) (*user.Company, error)
}

type Dependencies struct {
	Repo      RepositoryAPI
	Inbox     InboxRepository
	Directory Directory
	Flows     FlowSource
	Locker    lock.Locker
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	LockWait  time.Duration
}

// Service runs the expense lifecycle. Mutations on one expense are
// serialized by the locker and committed in a single transaction.
type Service struct {
	repo      RepositoryAPI
	inbox     InboxRepository
	directory Directory
	machine   *Machine
	locker    lock.Locker
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	lockWait  time.Duration
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		repo:      deps.Repo,
		inbox:     deps.Inbox,
		directory: deps.Directory,
		machine:   NewMachine(deps.Flows),
		locker:    deps.Locker,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		lockWait:  deps.LockWait,
	}
	if s.locker == nil {
		s.locker = lock.NewKeyedMutex()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetrics(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.lockWait <= 0 {
		s.lockWait = defaultLockWait
	}
	return s
}

// CreateDraft stores a DRAFT expense for the acting employee.
func (s *Service) CreateDraft(ctx context.Context, actorID int64, dto CreateExpenseDTO) (*Workflow, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Warn("expense validation failed", "error", err, "actor_id", actorID)
		return nil, err
	}

	employee, err := s.activeMember(ctx, actorID)
	if err != nil {
		return nil, err
	}
	company, err := s.directory.GetCompany(ctx, *employee.CompanyID)
	if err != nil {
		return nil, err
	}

	converted, err := convertedAmount(dto, company)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	e := &Expense{
		EmployeeID:              employee.ID,
		CompanyID:               company.ID,
		Description:             dto.Description,
		Category:                dto.Category,
		Amount:                  dto.Amount,
		CurrencyCode:            dto.CurrencyCode,
		CurrencySymbol:          dto.CurrencySymbol,
		ConvertedAmount:         converted,
		ConvertedCurrencyCode:   company.CurrencyCode,
		ConvertedCurrencySymbol: company.CurrencySymbol,
		ExpenseDate:             dto.ExpenseDate,
		ReceiptURL:              dto.ReceiptURL,
		Status:                  StatusDraft,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if dto.ConvertedCurrencySymbol != "" {
		e.ConvertedCurrencySymbol = dto.ConvertedCurrencySymbol
	}

	row := ToDataModel(e)
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error("failed to create expense", "error", err, "employee_id", employee.ID)
		return nil, fmt.Errorf("create expense: %w", err)
	}

	s.logger.Info("expense draft created",
		"expense_id", row.ID,
		"employee_id", employee.ID,
		"amount", row.ConvertedAmount.String(),
		"currency", row.ConvertedCurrencyCode)

	return &Workflow{Expense: FromDataModel(row)}, nil
}

// convertedAmount returns the amount in company currency. Conversion
// itself happens upstream; only the company currency is accepted here.
func convertedAmount(dto CreateExpenseDTO, company *user.Company) (converted decimal.Decimal, err error) {
	if dto.ConvertedCurrencyCode != "" && dto.ConvertedCurrencyCode != company.CurrencyCode {
		return converted, internal.NewValidationFieldError("converted_currency_code",
			fmt.Sprintf("converted_currency_code must be the company currency %s", company.CurrencyCode),
			internal.ErrCodeInvalidCurrency)
	}
	if dto.ConvertedAmount != nil {
		return *dto.ConvertedAmount, nil
	}
	if dto.CurrencyCode == company.CurrencyCode {
		return dto.Amount, nil
	}
	return converted, internal.NewValidationFieldError("converted_amount",
		"converted_amount is required when the expense currency differs from the company currency",
		internal.ErrCodeInvalidAmount)
}

// Submit sends a DRAFT expense into its approval flow. Only the owner may
// submit.
func (s *Service) Submit(ctx context.Context, actorID, expenseID int64) (wf *Workflow, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("submit", start, err) }()

	employee, err := s.activeMember(ctx, actorID)
	if err != nil {
		return nil, err
	}
	submitter := submitterOf(employee)

	var tr *Transition
	err = s.withExpenseLock(ctx, expenseID, func() error {
		return s.repo.InTx(ctx, func(tx TxRepository) error {
			current, err := lockWorkflow(ctx, tx, expenseID)
			if err != nil {
				return err
			}
			if current.Expense.EmployeeID != actorID {
				return internal.ErrUnauthorizedAccess.WithMessagef("expense %d belongs to another employee", expenseID)
			}

			next, t, err := s.machine.Submit(ctx, current, submitter)
			if err != nil {
				return err
			}
			if err := persist(ctx, tx, t); err != nil {
				return err
			}
			wf, tr = next, t
			return nil
		})
	})
	if err != nil {
		s.logFailure("submit expense failed", err, "expense_id", expenseID, "actor_id", actorID)
		return nil, err
	}

	s.logger.Info("expense submitted",
		"expense_id", expenseID,
		"flow_id", *wf.Expense.FlowID,
		"approver_id", tr.Activated.ApproverID)

	s.publish(ctx, events.NewExpenseSubmittedEvent(expenseID, wf.Expense.EmployeeID, *wf.Expense.FlowID, wf.Expense.RuleID))
	s.publish(ctx, events.NewStepActivatedEvent(expenseID, tr.Activated.ID, tr.Activated.ApproverID, tr.Activated.StepOrder))
	return wf, nil
}

// RecordDecision records the acting approver's outcome on one of the
// expense's pending approvals.
func (s *Service) RecordDecision(ctx context.Context, actorID, expenseID, approvalID int64, dto DecisionDTO) (wf *Workflow, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("decide", start, err) }()

	if err := dto.Validate(); err != nil {
		return nil, err
	}

	// the owner never changes, so it is safe to resolve outside the lock
	row, err := s.repo.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	employee, err := s.directory.GetByID(ctx, row.EmployeeID)
	if err != nil {
		return nil, err
	}
	submitter := submitterOf(employee)

	var tr *Transition
	err = s.withExpenseLock(ctx, expenseID, func() error {
		return s.repo.InTx(ctx, func(tx TxRepository) error {
			current, err := lockWorkflow(ctx, tx, expenseID)
			if err != nil {
				return err
			}
			if a := current.FindApproval(approvalID); a != nil && a.ApproverID != actorID {
				return internal.ErrNotAssignedToActor.WithMessagef(
					"approval %d is assigned to user %d", approvalID, a.ApproverID)
			}

			next, t, err := s.machine.RecordDecision(ctx, current, submitter, approvalID, dto.Outcome, dto.Comments)
			if err != nil {
				return err
			}
			if err := persist(ctx, tx, t); err != nil {
				return err
			}
			wf, tr = next, t
			return nil
		})
	})
	if err != nil {
		s.logFailure("record decision failed", err,
			"expense_id", expenseID, "approval_id", approvalID, "actor_id", actorID)
		return nil, err
	}

	s.logger.Info("approval decision recorded",
		"expense_id", expenseID,
		"approval_id", approvalID,
		"outcome", dto.Outcome,
		"verdict", tr.Verdict)

	s.publish(ctx, events.NewDecisionRecordedEvent(expenseID, approvalID, actorID, string(dto.Outcome), string(tr.Verdict)))
	if tr.Activated != nil {
		s.publish(ctx, events.NewStepActivatedEvent(expenseID, tr.Activated.ID, tr.Activated.ApproverID, tr.Activated.StepOrder))
	}
	if tr.Verdict.IsTerminal() {
		e := wf.Expense
		s.publish(ctx, events.NewExpenseDecidedEvent(e.ID, e.EmployeeID, string(e.Status),
			e.ConvertedAmount.String(), e.ConvertedCurrencyCode))
	}
	return wf, nil
}

// GetExpense returns the expense with its approvals. The owner, any
// approver on it and company admins may read it.
func (s *Service) GetExpense(ctx context.Context, actorID, expenseID int64) (*Workflow, error) {
	row, err := s.repo.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	approvals, err := s.repo.ListApprovals(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	wf := WorkflowFromDataModel(row, approvals)

	if err := s.authorizeRead(ctx, actorID, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// ListApprovals returns the expense's approvals in activation order.
func (s *Service) ListApprovals(ctx context.Context, actorID, expenseID int64) ([]*Approval, error) {
	wf, err := s.GetExpense(ctx, actorID, expenseID)
	if err != nil {
		return nil, err
	}
	return wf.activationOrder(), nil
}

func (s *Service) ListMine(ctx context.Context, actorID int64, limit, offset int) ([]*Expense, error) {
	limit, offset = page(limit, offset)
	rows, err := s.repo.ListByEmployee(ctx, actorID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list expenses", "error", err, "employee_id", actorID)
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	out := make([]*Expense, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

// PendingForApprover lists approvals waiting on the actor, oldest first.
func (s *Service) PendingForApprover(ctx context.Context, actorID int64, limit, offset int) ([]InboxItem, error) {
	limit, offset = page(limit, offset)
	items, err := s.inbox.PendingForApprover(ctx, actorID, limit, offset)
	if err != nil {
		s.logger.Error("failed to load approval inbox", "error", err, "approver_id", actorID)
		return nil, fmt.Errorf("approval inbox: %w", err)
	}
	return items, nil
}

func (s *Service) authorizeRead(ctx context.Context, actorID int64, wf *Workflow) error {
	if wf.Expense.EmployeeID == actorID {
		return nil
	}
	for _, a := range wf.Approvals {
		if a.ApproverID == actorID {
			return nil
		}
	}
	actor, err := s.directory.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return internal.ErrUnauthorizedAccess
		}
		return err
	}
	if actor.IsAdminOf(wf.Expense.CompanyID) {
		return nil
	}
	s.logger.Warn("unauthorized access to expense", "expense_id", wf.Expense.ID, "actor_id", actorID)
	return internal.ErrUnauthorizedAccess
}

func (s *Service) activeMember(ctx context.Context, userID int64) (*user.User, error) {
	u, err := s.directory.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.CompanyID == nil || !u.IsActive {
		return nil, internal.ErrUnauthorizedAccess.WithMessagef("user %d is not an active company member", userID)
	}
	return u, nil
}

func submitterOf(u *user.User) approval.Submitter {
	s := approval.Submitter{
		UserID:       u.ID,
		DepartmentID: u.DepartmentID,
		ManagerID:    u.ManagerID,
	}
	if u.CompanyID != nil {
		s.CompanyID = *u.CompanyID
	}
	return s
}

func (s *Service) withExpenseLock(ctx context.Context, expenseID int64, fn func() error) error {
	lockCtx, cancel := internal.WithTimeout(ctx, s.lockWait)
	defer cancel()

	waitStart := time.Now()
	unlock, err := s.locker.Lock(lockCtx, fmt.Sprintf("expense:%d", expenseID))
	s.metrics.LockWait.Observe(time.Since(waitStart).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return internal.ErrExpenseBusy.WithCause(err)
	}
	defer unlock()

	return fn()
}

func lockWorkflow(ctx context.Context, tx TxRepository, expenseID int64) (*Workflow, error) {
	row, approvals, err := tx.LockWorkflow(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	return WorkflowFromDataModel(row, approvals), nil
}

// persist writes a transition. Created approvals get their IDs back.
func persist(ctx context.Context, tx TxRepository, tr *Transition) error {
	if err := tx.SaveExpense(ctx, ToDataModel(tr.Expense)); err != nil {
		return fmt.Errorf("save expense %d: %w", tr.Expense.ID, err)
	}
	if tr.Decided != nil {
		if err := tx.SaveApproval(ctx, ApprovalToDataModel(tr.Decided)); err != nil {
			return fmt.Errorf("save approval %d: %w", tr.Decided.ID, err)
		}
	}
	for _, a := range tr.Created {
		row := ApprovalToDataModel(a)
		if err := tx.SaveApproval(ctx, row); err != nil {
			return fmt.Errorf("open approval for step %d: %w", a.StepOrder, err)
		}
		a.ID = row.ID
	}
	return nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Error("failed to publish event", "error", err, "event_type", e.EventType())
	}
}

// logFailure logs client errors at warn and everything else at error.
func (s *Service) logFailure(msg string, err error, args ...interface{}) {
	args = append(args, "error", err)
	if appErr, ok := internal.IsAppError(err); ok && appErr.StatusCode < 500 {
		s.logger.Warn(msg, args...)
		return
	}
	s.logger.Error(msg, args...)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
