package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeExpenseSubmitted = "expense.submitted"
	EventTypeStepActivated    = "approval.step_activated"
	EventTypeDecisionRecorded = "approval.decision_recorded"
	EventTypeExpenseApproved  = "expense.approved"
	EventTypeExpenseRejected  = "expense.rejected"
)

func newBase(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type ExpenseSubmittedEvent struct {
	BaseEvent
	ExpenseID  int64  `json:"expense_id"`
	EmployeeID int64  `json:"employee_id"`
	FlowID     int64  `json:"flow_id"`
	RuleID     *int64 `json:"rule_id,omitempty"`
}

func NewExpenseSubmittedEvent(expenseID, employeeID, flowID int64, ruleID *int64) *ExpenseSubmittedEvent {
	return &ExpenseSubmittedEvent{
		BaseEvent: newBase(EventTypeExpenseSubmitted, map[string]interface{}{
			"expense_id":  expenseID,
			"employee_id": employeeID,
			"flow_id":     flowID,
			"rule_id":     ruleID,
		}),
		ExpenseID:  expenseID,
		EmployeeID: employeeID,
		FlowID:     flowID,
		RuleID:     ruleID,
	}
}

// StepActivatedEvent is the hook for notifying the approver who now owns
// the expense.
type StepActivatedEvent struct {
	BaseEvent
	ExpenseID  int64 `json:"expense_id"`
	ApprovalID int64 `json:"approval_id"`
	ApproverID int64 `json:"approver_id"`
	StepOrder  int   `json:"step_order"`
}

func NewStepActivatedEvent(expenseID, approvalID, approverID int64, stepOrder int) *StepActivatedEvent {
	return &StepActivatedEvent{
		BaseEvent: newBase(EventTypeStepActivated, map[string]interface{}{
			"expense_id":  expenseID,
			"approval_id": approvalID,
			"approver_id": approverID,
			"step_order":  stepOrder,
		}),
		ExpenseID:  expenseID,
		ApprovalID: approvalID,
		ApproverID: approverID,
		StepOrder:  stepOrder,
	}
}

type DecisionRecordedEvent struct {
	BaseEvent
	ExpenseID  int64  `json:"expense_id"`
	ApprovalID int64  `json:"approval_id"`
	ApproverID int64  `json:"approver_id"`
	Outcome    string `json:"outcome"`
	Verdict    string `json:"verdict"`
}

func NewDecisionRecordedEvent(expenseID, approvalID, approverID int64, outcome, verdict string) *DecisionRecordedEvent {
	return &DecisionRecordedEvent{
		BaseEvent: newBase(EventTypeDecisionRecorded, map[string]interface{}{
			"expense_id":  expenseID,
			"approval_id": approvalID,
			"approver_id": approverID,
			"outcome":     outcome,
			"verdict":     verdict,
		}),
		ExpenseID:  expenseID,
		ApprovalID: approvalID,
		ApproverID: approverID,
		Outcome:    outcome,
		Verdict:    verdict,
	}
}

// ExpenseDecidedEvent is published once per expense when it reaches
// APPROVED or REJECTED.
type ExpenseDecidedEvent struct {
	BaseEvent
	ExpenseID  int64  `json:"expense_id"`
	EmployeeID int64  `json:"employee_id"`
	Status     string `json:"status"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}

func NewExpenseDecidedEvent(expenseID, employeeID int64, status, amount, currency string) *ExpenseDecidedEvent {
	eventType := EventTypeExpenseRejected
	if status == "APPROVED" {
		eventType = EventTypeExpenseApproved
	}
	return &ExpenseDecidedEvent{
		BaseEvent: newBase(eventType, map[string]interface{}{
			"expense_id":  expenseID,
			"employee_id": employeeID,
			"status":      status,
			"amount":      amount,
			"currency":    currency,
		}),
		ExpenseID:  expenseID,
		EmployeeID: employeeID,
		Status:     status,
		Amount:     amount,
		Currency:   currency,
	}
}
