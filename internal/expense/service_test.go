package expense_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approval"
	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/core/metrics"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"github.com/frahmantamala/expense-approval/internal/lock"
	"github.com/frahmantamala/expense-approval/internal/user"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

const (
	adminID    int64 = 1
	strangerID int64 = 900
)


func draftDTO(amt string) expense.CreateExpenseDTO {
	return expense.CreateExpenseDTO{
		Description:  "team lunch",
		Category:     "meals",
		Amount:       decimal.RequireFromString(amt),
		CurrencyCode: "INR",
		ExpenseDate:  time.Now().AddDate(0, 0, -2),
	}
}

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		repo      *memRepository
		inbox     *mockInbox
		directory *mockDirectory
		flows     *fakeFlows
		publisher *recordingPublisher
		m         *metrics.Metrics
		svc       *expense.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMemRepository()
		inbox = &mockInbox{}
		directory = newMockDirectory()
		flows = newFakeFlows()
		publisher = &recordingPublisher{}
		m = metrics.NewMetrics(prometheus.NewRegistry())

		companyID := int64(1)
		directory.companies[companyID] = &user.Company{ID: companyID, Name: "Acme", CurrencyCode: "INR", CurrencySymbol: "₹"}
		directory.add(&user.User{ID: adminID, CompanyID: &companyID, Role: user.RoleAdmin, IsActive: true})
		directory.add(&user.User{ID: managerID, CompanyID: &companyID, Role: user.RoleManager, IsActive: true})
		directory.add(&user.User{ID: financeID, CompanyID: &companyID, Role: user.RoleEmployee, IsActive: true})
		directory.add(&user.User{ID: employeeID, CompanyID: &companyID, Role: user.RoleEmployee, ManagerID: int64p(managerID), IsActive: true})
		otherCompany := int64(2)
		directory.add(&user.User{ID: strangerID, CompanyID: &otherCompany, Role: user.RoleAdmin, IsActive: true})

		flows.addFlow(&approval.Flow{
			ID: 1, CompanyID: 1, Name: "standard",
			MinAmount: amount("0"), MaxAmount: amount("10000"),
			Steps: []approval.Step{managerStep(1), fixedStep(2, financeID)},
		})

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = expense.NewService(expense.Dependencies{
			Repo:      repo,
			Inbox:     inbox,
			Directory: directory,
			Flows:     flows,
			Locker:    lock.NewKeyedMutex(),
			Publisher: publisher,
			Metrics:   m,
			Logger:    logger,
			LockWait:  time.Second,
		})
	})

	createDraft := func(amt string) *expense.Workflow {
		wf, err := svc.CreateDraft(ctx, employeeID, draftDTO(amt))
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return wf
	}

	Describe("CreateDraft", func() {
		It("should default the converted amount for company currency expenses", func() {
			wf := createDraft("1500.50")
			Expect(wf.Expense.ID).To(BeNumerically(">", 0))
			Expect(wf.Expense.Status).To(Equal(expense.StatusDraft))
			Expect(wf.Expense.ConvertedAmount.Equal(decimal.RequireFromString("1500.50"))).To(BeTrue())
			Expect(wf.Expense.ConvertedCurrencyCode).To(Equal("INR"))
			Expect(wf.Expense.ConvertedCurrencySymbol).To(Equal("₹"))
		})

		It("should require a converted amount for foreign currency", func() {
			dto := draftDTO("100")
			dto.CurrencyCode = "USD"
			_, err := svc.CreateDraft(ctx, employeeID, dto)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidAmount))
		})

		It("should accept a converted amount in company currency", func() {
			dto := draftDTO("100")
			dto.CurrencyCode = "USD"
			dto.ConvertedAmount = amount("8300")
			wf, err := svc.CreateDraft(ctx, employeeID, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(wf.Expense.Amount.String()).To(Equal("100"))
			Expect(wf.Expense.ConvertedAmount.String()).To(Equal("8300"))
		})

		It("should reject a converted currency other than the company's", func() {
			dto := draftDTO("100")
			dto.ConvertedAmount = amount("1.2")
			dto.ConvertedCurrencyCode = "EUR"
			_, err := svc.CreateDraft(ctx, employeeID, dto)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidCurrency))
		})

		It("should reject non-positive amounts", func() {
			_, err := svc.CreateDraft(ctx, employeeID, draftDTO("0"))
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(400))
		})

		It("should refuse inactive users", func() {
			directory.users[employeeID].IsActive = false
			_, err := svc.CreateDraft(ctx, employeeID, draftDTO("100"))
			Expect(err).To(MatchError(internal.ErrUnauthorizedAccess))
		})
	})

	Describe("Submit", func() {
		It("should open the first step and publish events", func() {
			wf := createDraft("2000")

			submitted, err := svc.Submit(ctx, employeeID, wf.Expense.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(submitted.Expense.Status).To(Equal(expense.StatusPending))
			Expect(submitted.Approvals).To(HaveLen(1))
			Expect(submitted.Approvals[0].ID).To(BeNumerically(">", 0))
			Expect(submitted.Approvals[0].ApproverID).To(Equal(managerID))

			Expect(publisher.types()).To(Equal([]string{
				events.EventTypeExpenseSubmitted,
				events.EventTypeStepActivated,
			}))
		})

		It("should only let the owner submit", func() {
			wf := createDraft("2000")
			_, err := svc.Submit(ctx, adminID, wf.Expense.ID)
			Expect(err).To(MatchError(internal.ErrUnauthorizedAccess))
		})

		It("should report missing expenses", func() {
			_, err := svc.Submit(ctx, employeeID, 4242)
			Expect(err).To(MatchError(internal.ErrExpenseNotFound))
		})

		It("should count engine errors by code", func() {
			wf := createDraft("50000")
			_, err := svc.Submit(ctx, employeeID, wf.Expense.ID)
			Expect(err).To(MatchError(internal.ErrNoMatchingFlow))
			Expect(testutil.ToFloat64(m.EngineErrors.WithLabelValues("NO_MATCHING_FLOW"))).To(Equal(1.0))

			stored, err := svc.GetExpense(ctx, employeeID, wf.Expense.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Expense.Status).To(Equal(expense.StatusDraft))
		})

		It("should roll back when persisting the approval fails", func() {
			wf := createDraft("2000")
			repo.saveErr = errors.New("disk full")

			_, err := svc.Submit(ctx, employeeID, wf.Expense.ID)
			Expect(err).To(HaveOccurred())

			repo.saveErr = nil
			stored, err := svc.GetExpense(ctx, employeeID, wf.Expense.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Expense.Status).To(Equal(expense.StatusDraft))
			Expect(stored.Approvals).To(BeEmpty())
			Expect(publisher.types()).To(BeEmpty())
		})

		It("should accept exactly one of many concurrent submits", func() {
			wf := createDraft("2000")

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				conflicts int
			)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := svc.Submit(ctx, employeeID, wf.Expense.ID)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						successes++
					} else if errors.Is(err, internal.ErrInvalidState) {
						conflicts++
					}
				}()
			}
			wg.Wait()

			Expect(successes).To(Equal(1))
			Expect(conflicts).To(Equal(9))
			Expect(repo.approvalCount(wf.Expense.ID)).To(Equal(1))
		})
	})

	Describe("RecordDecision", func() {
		var submitted *expense.Workflow

		BeforeEach(func() {
			var err error
			submitted, err = svc.Submit(ctx, employeeID, createDraft("2000").Expense.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		approve := func(actorID int64, wf *expense.Workflow) (*expense.Workflow, error) {
			pending := wf.PendingApprovals()
			ExpectWithOffset(1, pending).To(HaveLen(1))
			return svc.RecordDecision(ctx, actorID, wf.Expense.ID, pending[0].ID,
				expense.DecisionDTO{Outcome: approval.OutcomeApproved, Comments: "fine"})
		}

		It("should walk the flow to approval", func() {
			wf, err := approve(managerID, submitted)
			Expect(err).NotTo(HaveOccurred())
			Expect(wf.Expense.Status).To(Equal(expense.StatusPending))
			Expect(wf.PendingApprovals()[0].ApproverID).To(Equal(financeID))

			wf, err = approve(financeID, wf)
			Expect(err).NotTo(HaveOccurred())
			Expect(wf.Expense.Status).To(Equal(expense.StatusApproved))

			Expect(publisher.types()).To(Equal([]string{
				events.EventTypeExpenseSubmitted,
				events.EventTypeStepActivated,
				events.EventTypeDecisionRecorded,
				events.EventTypeStepActivated,
				events.EventTypeDecisionRecorded,
				events.EventTypeExpenseApproved,
			}))
		})

		It("should refuse approvers who are not assigned", func() {
			_, err := approve(financeID, submitted)
			Expect(err).To(MatchError(internal.ErrNotAssignedToActor))
		})

		It("should validate the outcome", func() {
			_, err := svc.RecordDecision(ctx, managerID, submitted.Expense.ID, submitted.Approvals[0].ID,
				expense.DecisionDTO{Outcome: "LATER"})
			Expect(err).To(MatchError(errValidation))
		})

		It("should record one of many concurrent decisions", func() {
			approvalID := submitted.Approvals[0].ID

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				conflicts int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					outcome := approval.OutcomeApproved
					if i%2 == 1 {
						outcome = approval.OutcomeRejected
					}
					_, err := svc.RecordDecision(ctx, managerID, submitted.Expense.ID, approvalID, expense.DecisionDTO{Outcome: outcome})
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						successes++
					} else if errors.Is(err, internal.ErrInvalidState) {
						conflicts++
					}
				}(i)
			}
			wg.Wait()

			Expect(successes).To(Equal(1))
			Expect(conflicts).To(Equal(7))
		})
	})

	Describe("GetExpense", func() {
		var wf *expense.Workflow

		BeforeEach(func() {
			var err error
			wf, err = svc.Submit(ctx, employeeID, createDraft("2000").Expense.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should allow the owner, the approver and company admins", func() {
			for _, actor := range []int64{employeeID, managerID, adminID} {
				got, err := svc.GetExpense(ctx, actor, wf.Expense.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Approvals).To(HaveLen(1))
			}
		})

		It("should refuse admins of other companies", func() {
			_, err := svc.GetExpense(ctx, strangerID, wf.Expense.ID)
			Expect(err).To(MatchError(internal.ErrUnauthorizedAccess))
		})

		It("should refuse unassigned colleagues", func() {
			_, err := svc.ListApprovals(ctx, financeID, wf.Expense.ID)
			Expect(err).To(MatchError(internal.ErrUnauthorizedAccess))
		})
	})

	Describe("listing", func() {
		It("should page the employee's expenses newest first", func() {
			first := createDraft("10")
			second := createDraft("20")

			list, err := svc.ListMine(ctx, employeeID, 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].ID).To(Equal(second.Expense.ID))
			Expect(list[1].ID).To(Equal(first.Expense.ID))
		})

		It("should clamp inbox paging", func() {
			inbox.items = []expense.InboxItem{{ApprovalID: 3, ExpenseID: 1}}
			items, err := svc.PendingForApprover(ctx, managerID, 5000, -3)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(inbox.gotApprover).To(Equal(managerID))
			Expect(inbox.gotLimit).To(Equal(100))
			Expect(inbox.gotOffset).To(Equal(0))
		})
	})
})
