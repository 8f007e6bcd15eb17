package expense_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approval"
	"github.com/frahmantamala/expense-approval/internal/expense"

	"github.com/shopspring/decimal"
)

const (
	employeeID int64 = 100
	managerID  int64 = 200
	financeID  int64 = 300
	directorID int64 = 400
)

var errValidation = internal.NewValidationError("validation failed", internal.ErrCodeValidationFailed)

func int64p(v int64) *int64 { return &v }

func amount(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func managerStep(order int) approval.Step {
	return approval.Step{ID: int64(1000 + order), Order: order, Approver: approval.ManagerOfSubmitter{}}
}

func fixedStep(order int, userID int64) approval.Step {
	return approval.Step{ID: int64(1000 + order), Order: order, Approver: approval.FixedApprover{UserID: userID}}
}

func draftWorkflow(converted string) *expense.Workflow {
	return &expense.Workflow{Expense: &expense.Expense{
		ID:                    1,
		EmployeeID:            employeeID,
		CompanyID:             1,
		Description:           "client dinner",
		Category:              "meals",
		Amount:                decimal.RequireFromString(converted),
		CurrencyCode:          "INR",
		ConvertedAmount:       decimal.RequireFromString(converted),
		ConvertedCurrencyCode: "INR",
		ExpenseDate:           time.Now().AddDate(0, 0, -1),
		Status:                expense.StatusDraft,
	}}
}

// assignIDs stands in for persistence handing out approval IDs.
func assignIDs(wf *expense.Workflow) {
	next := int64(1)
	for _, a := range wf.Approvals {
		if a.ID >= next {
			next = a.ID + 1
		}
	}
	for _, a := range wf.Approvals {
		if a.ID == 0 {
			a.ID = next
			next++
		}
	}
}

func onlyPending(wf *expense.Workflow) *expense.Approval {
	pending := wf.PendingApprovals()
	ExpectWithOffset(1, pending).To(HaveLen(1))
	return pending[0]
}

var _ = Describe("Machine", func() {
	var (
		ctx       context.Context
		flows     *fakeFlows
		machine   *expense.Machine
		submitter approval.Submitter
	)

	BeforeEach(func() {
		ctx = context.Background()
		flows = newFakeFlows()
		machine = expense.NewMachine(flows)
		submitter = approval.Submitter{UserID: employeeID, CompanyID: 1, ManagerID: int64p(managerID)}
	})

	submit := func(wf *expense.Workflow) *expense.Workflow {
		next, _, err := machine.Submit(ctx, wf, submitter)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		assignIDs(next)
		return next
	}

	decide := func(wf *expense.Workflow, approverID int64, outcome approval.Outcome) (*expense.Workflow, *expense.Transition) {
		a := onlyPending(wf)
		ExpectWithOffset(1, a.ApproverID).To(Equal(approverID))
		next, tr, err := machine.RecordDecision(ctx, wf, submitter, a.ID, outcome, "")
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		assignIDs(next)
		return next, tr
	}

	Describe("a three step flow under a 60% rule", func() {
		BeforeEach(func() {
			rule := flows.addRule(&approval.Rule{ID: 9, CompanyID: 1, Spec: approval.PercentageRule{MinimumPercentage: 60}, IsActive: true})
			flows.addFlow(&approval.Flow{
				ID: 1, CompanyID: 1, Name: "standard",
				MinAmount: amount("0"), MaxAmount: amount("10000"),
				Rule:  rule,
				Steps: []approval.Step{managerStep(1), fixedStep(2, financeID), fixedStep(3, directorID)},
			})
		})

		It("should open the manager step on submit and pin flow and rule", func() {
			wf := draftWorkflow("5000")
			next, tr, err := machine.Submit(ctx, wf, submitter)
			Expect(err).NotTo(HaveOccurred())

			Expect(next.Expense.Status).To(Equal(expense.StatusPending))
			Expect(*next.Expense.FlowID).To(Equal(int64(1)))
			Expect(*next.Expense.RuleID).To(Equal(int64(9)))
			Expect(next.Expense.SubmittedAt).NotTo(BeNil())
			Expect(tr.Verdict).To(Equal(approval.VerdictPending))
			Expect(tr.Activated.ApproverID).To(Equal(managerID))
			Expect(tr.Activated.StepOrder).To(Equal(1))
			Expect(*tr.Activated.FlowStepID).To(Equal(int64(1001)))

			Expect(wf.Expense.Status).To(Equal(expense.StatusDraft))
			Expect(wf.Approvals).To(BeEmpty())
		})

		It("should approve once two of three steps approve", func() {
			wf := submit(draftWorkflow("5000"))

			wf, tr := decide(wf, managerID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictPending))
			Expect(tr.Activated.ApproverID).To(Equal(financeID))
			Expect(wf.Expense.Status).To(Equal(expense.StatusPending))

			wf, tr = decide(wf, financeID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictApproved))
			Expect(tr.Activated).To(BeNil())
			Expect(wf.Expense.Status).To(Equal(expense.StatusApproved))
			Expect(wf.Expense.DecidedAt).NotTo(BeNil())
			Expect(wf.Approvals).To(HaveLen(2))
		})

		It("should reject once the threshold cannot be reached", func() {
			wf := submit(draftWorkflow("5000"))

			wf, tr := decide(wf, managerID, approval.OutcomeRejected)
			Expect(tr.Verdict).To(Equal(approval.VerdictPending))

			wf, tr = decide(wf, financeID, approval.OutcomeRejected)
			Expect(tr.Verdict).To(Equal(approval.VerdictRejected))
			Expect(wf.Expense.Status).To(Equal(expense.StatusRejected))
		})

		It("should keep at most one pending approval at a time", func() {
			wf := submit(draftWorkflow("5000"))
			Expect(wf.PendingApprovals()).To(HaveLen(1))
			wf, _ = decide(wf, managerID, approval.OutcomeRejected)
			Expect(wf.PendingApprovals()).To(HaveLen(1))
		})

		It("should refuse a second decision on the same approval", func() {
			wf := submit(draftWorkflow("5000"))
			first := onlyPending(wf)
			wf, _ = decide(wf, managerID, approval.OutcomeApproved)

			_, _, err := machine.RecordDecision(ctx, wf, submitter, first.ID, approval.OutcomeRejected, "")
			Expect(err).To(MatchError(internal.ErrInvalidState))
		})

		It("should refuse an approval from another expense", func() {
			wf := submit(draftWorkflow("5000"))
			_, _, err := machine.RecordDecision(ctx, wf, submitter, 999, approval.OutcomeApproved, "")
			Expect(err).To(MatchError(internal.ErrUnknownApproval))
		})

		It("should refuse decisions once the expense is decided", func() {
			wf := submit(draftWorkflow("5000"))
			wf, _ = decide(wf, managerID, approval.OutcomeApproved)
			wf, _ = decide(wf, financeID, approval.OutcomeApproved)

			_, _, err := machine.RecordDecision(ctx, wf, submitter, wf.Approvals[0].ID, approval.OutcomeApproved, "")
			Expect(err).To(MatchError(internal.ErrInvalidState))
		})

		It("should refuse to submit twice", func() {
			wf := submit(draftWorkflow("5000"))
			_, _, err := machine.Submit(ctx, wf, submitter)
			Expect(err).To(MatchError(internal.ErrInvalidState))
		})

		It("should fail without mutation when no flow matches", func() {
			wf := draftWorkflow("25000")
			next, tr, err := machine.Submit(ctx, wf, submitter)
			Expect(err).To(MatchError(internal.ErrNoMatchingFlow))
			Expect(next).To(BeNil())
			Expect(tr).To(BeNil())
			Expect(wf.Expense.Status).To(Equal(expense.StatusDraft))
			Expect(wf.Expense.FlowID).To(BeNil())
		})

		It("should fail submit when the submitter has no manager", func() {
			submitter.ManagerID = nil
			_, _, err := machine.Submit(ctx, draftWorkflow("5000"), submitter)
			Expect(err).To(MatchError(internal.ErrNoManagerAssigned))
		})

		It("should reject invalid outcomes", func() {
			wf := submit(draftWorkflow("5000"))
			_, _, err := machine.RecordDecision(ctx, wf, submitter, onlyPending(wf).ID, approval.Outcome("MAYBE"), "")
			Expect(err).To(MatchError(errValidation))
		})
	})

	Describe("a SPECIFIC rule", func() {
		BeforeEach(func() {
			rule := flows.addRule(&approval.Rule{ID: 5, CompanyID: 1, Spec: approval.SpecificRule{ApproverID: financeID}, IsActive: true})
			flows.addFlow(&approval.Flow{
				ID: 2, CompanyID: 1, Name: "cfo",
				Rule:  rule,
				Steps: []approval.Step{fixedStep(1, financeID), managerStep(2)},
			})
		})

		It("should approve as soon as the named approver approves", func() {
			wf := submit(draftWorkflow("100"))
			wf, tr := decide(wf, financeID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictApproved))
			Expect(wf.Expense.Status).To(Equal(expense.StatusApproved))
			Expect(wf.Approvals).To(HaveLen(1))
		})

		It("should keep evaluating the pinned rule after it is deactivated", func() {
			wf := submit(draftWorkflow("100"))
			flows.rules[5].IsActive = false

			wf, tr := decide(wf, financeID, approval.OutcomeRejected)
			Expect(tr.Verdict).To(Equal(approval.VerdictRejected))
			Expect(wf.Expense.Status).To(Equal(expense.StatusRejected))
		})
	})

	Describe("a manager then CFO flow under a SPECIFIC(CFO) rule", func() {
		BeforeEach(func() {
			rule := flows.addRule(&approval.Rule{ID: 7, CompanyID: 1, Name: "CFO decides", Spec: approval.SpecificRule{ApproverID: financeID}, IsActive: true})
			flows.addFlow(&approval.Flow{
				ID: 5, CompanyID: 1, Name: "acme",
				MinAmount: amount("0"), MaxAmount: amount("10000"),
				Rule:  rule,
				Steps: []approval.Step{managerStep(1), fixedStep(2, financeID)},
			})
		})

		It("should stay pending after the manager and reject on the CFO", func() {
			wf := submit(draftWorkflow("1200"))
			Expect(onlyPending(wf).ApproverID).To(Equal(managerID))

			wf, tr := decide(wf, managerID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictPending))
			Expect(wf.Expense.Status).To(Equal(expense.StatusPending))
			Expect(tr.Activated).NotTo(BeNil())
			Expect(tr.Activated.StepOrder).To(Equal(2))
			cfoApproval := onlyPending(wf)
			Expect(cfoApproval.ApproverID).To(Equal(financeID))

			wf, tr = decide(wf, financeID, approval.OutcomeRejected)
			Expect(tr.Verdict).To(Equal(approval.VerdictRejected))
			Expect(tr.Activated).To(BeNil())
			Expect(wf.Expense.Status).To(Equal(expense.StatusRejected))
			Expect(wf.Expense.DecidedAt).NotTo(BeNil())
			Expect(wf.PendingApprovals()).To(BeEmpty())

			_, _, err := machine.RecordDecision(ctx, wf, submitter, cfoApproval.ID, approval.OutcomeApproved, "")
			Expect(err).To(MatchError(internal.ErrInvalidState))
		})

		It("should approve on the CFO at the second step", func() {
			wf := submit(draftWorkflow("1200"))
			wf, _ = decide(wf, managerID, approval.OutcomeApproved)
			wf, tr := decide(wf, financeID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictApproved))
			Expect(wf.Expense.Status).To(Equal(expense.StatusApproved))
		})

		It("should keep going after a manager rejection until the CFO decides", func() {
			wf := submit(draftWorkflow("1200"))
			wf, tr := decide(wf, managerID, approval.OutcomeRejected)
			Expect(tr.Verdict).To(Equal(approval.VerdictPending))
			Expect(onlyPending(wf).ApproverID).To(Equal(financeID))

			wf, tr = decide(wf, financeID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictApproved))
			Expect(wf.Expense.Status).To(Equal(expense.StatusApproved))
		})
	})

	Describe("a HYBRID rule", func() {
		BeforeEach(func() {
			rule := flows.addRule(&approval.Rule{ID: 6, CompanyID: 1, Spec: approval.HybridRule{MinimumPercentage: 100, ApproverID: directorID}, IsActive: true})
			flows.addFlow(&approval.Flow{
				ID: 3, CompanyID: 1, Name: "hybrid",
				Rule:  rule,
				Steps: []approval.Step{managerStep(1), fixedStep(2, directorID), fixedStep(3, financeID)},
			})
		})

		It("should approve on the specific approver before the percentage is met", func() {
			wf := submit(draftWorkflow("100"))
			wf, tr := decide(wf, managerID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictPending))

			wf, tr = decide(wf, directorID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictApproved))
			Expect(wf.Expense.Status).To(Equal(expense.StatusApproved))
		})

		It("should reject once every step is decided and the percentage failed", func() {
			// the named approver holds no step, so only the percentage can decide
			flows.rules[6].Spec = approval.HybridRule{MinimumPercentage: 100, ApproverID: 999}

			wf := submit(draftWorkflow("100"))
			wf, _ = decide(wf, managerID, approval.OutcomeApproved)
			wf, _ = decide(wf, directorID, approval.OutcomeRejected)
			wf, tr := decide(wf, financeID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictRejected))
			Expect(wf.Expense.Status).To(Equal(expense.StatusRejected))
		})

		It("should reject when the percentage fails and the specific approver rejects", func() {
			wf := submit(draftWorkflow("100"))
			wf, _ = decide(wf, managerID, approval.OutcomeRejected)
			wf, tr := decide(wf, directorID, approval.OutcomeRejected)
			Expect(tr.Verdict).To(Equal(approval.VerdictRejected))
			Expect(wf.Expense.Status).To(Equal(expense.StatusRejected))
		})
	})

	Describe("a high priority step", func() {
		BeforeEach(func() {
			first := managerStep(1)
			first.IsHighPriority = true
			flows.addFlow(&approval.Flow{
				ID: 4, CompanyID: 1, Name: "fast track",
				Steps: []approval.Step{first, fixedStep(2, financeID)},
			})
		})

		It("should approve immediately on its approval", func() {
			wf := submit(draftWorkflow("100"))
			Expect(onlyPending(wf).IsHighPriority).To(BeTrue())

			wf, tr := decide(wf, managerID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictApproved))
			Expect(wf.Expense.Status).To(Equal(expense.StatusApproved))
		})

		It("should fall back to unanimity on its rejection", func() {
			wf := submit(draftWorkflow("100"))
			wf, tr := decide(wf, managerID, approval.OutcomeRejected)
			Expect(tr.Verdict).To(Equal(approval.VerdictRejected))
			Expect(wf.Expense.Status).To(Equal(expense.StatusRejected))
		})
	})

	Describe("an inactive rule", func() {
		It("should not be pinned and unanimity applies", func() {
			rule := flows.addRule(&approval.Rule{ID: 7, CompanyID: 1, Spec: approval.SpecificRule{ApproverID: managerID}, IsActive: false})
			flows.addFlow(&approval.Flow{
				ID: 5, CompanyID: 1, Name: "two step",
				Rule:  rule,
				Steps: []approval.Step{managerStep(1), fixedStep(2, financeID)},
			})

			wf := submit(draftWorkflow("100"))
			Expect(wf.Expense.RuleID).To(BeNil())

			wf, tr := decide(wf, managerID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictPending))
			wf, tr = decide(wf, financeID, approval.OutcomeApproved)
			Expect(tr.Verdict).To(Equal(approval.VerdictApproved))
			Expect(wf.Expense.Status).To(Equal(expense.StatusApproved))
		})
	})

	Describe("a flow that ends undecided", func() {
		It("should report FlowExhausted and leave the workflow untouched", func() {
			rule := flows.addRule(&approval.Rule{ID: 8, CompanyID: 1, Spec: approval.SpecificRule{ApproverID: 999}, IsActive: true})
			flows.addFlow(&approval.Flow{
				ID: 6, CompanyID: 1, Name: "misconfigured",
				Rule:  rule,
				Steps: []approval.Step{managerStep(1)},
			})

			wf := submit(draftWorkflow("100"))
			pending := onlyPending(wf)

			next, _, err := machine.RecordDecision(ctx, wf, submitter, pending.ID, approval.OutcomeApproved, "ok")
			Expect(err).To(MatchError(internal.ErrFlowExhausted))
			Expect(next).To(BeNil())
			Expect(wf.Expense.Status).To(Equal(expense.StatusPending))
			Expect(onlyPending(wf).ID).To(Equal(pending.ID))
		})
	})

	Describe("manager resolution", func() {
		It("should use the submitter's current manager when a later step opens", func() {
			flows.addFlow(&approval.Flow{
				ID: 7, CompanyID: 1, Name: "finance then manager",
				Steps: []approval.Step{fixedStep(1, financeID), managerStep(2)},
			})

			wf := submit(draftWorkflow("100"))
			submitter.ManagerID = int64p(directorID)

			_, tr := decide(wf, financeID, approval.OutcomeApproved)
			Expect(tr.Activated.ApproverID).To(Equal(directorID))
		})
	})
})
