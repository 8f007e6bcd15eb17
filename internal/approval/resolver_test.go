package approval_test

import (
	"context"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approval"

	"github.com/shopspring/decimal"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func id(v int64) *int64 { return &v }

func managerStep(order int) approval.Step {
	return approval.Step{ID: int64(order), Order: order, Approver: approval.ManagerOfSubmitter{}}
}

func fixedStep(order int, userID int64) approval.Step {
	return approval.Step{ID: int64(order), Order: order, Approver: approval.FixedApprover{UserID: userID}}
}

var _ = Describe("SelectFlow", func() {
	var (
		submitter approval.Submitter
		amount    decimal.Decimal
	)

	BeforeEach(func() {
		submitter = approval.Submitter{UserID: 1, CompanyID: 10, DepartmentID: id(5), ManagerID: id(2)}
		amount = decimal.RequireFromString("5000")
	})

	It("should fail with NoMatchingFlow when nothing matches", func() {
		flows := []*approval.Flow{
			{ID: 1, CompanyID: 10, MinAmount: dec("10000")},
			{ID: 2, CompanyID: 10, DepartmentID: id(99)},
			{ID: 3, CompanyID: 11},
		}
		_, err := approval.SelectFlow(flows, submitter, amount)
		Expect(err).To(MatchError(internal.ErrNoMatchingFlow))
	})

	It("should treat window bounds as inclusive", func() {
		flows := []*approval.Flow{{ID: 1, CompanyID: 10, MinAmount: dec("5000"), MaxAmount: dec("5000")}}
		f, err := approval.SelectFlow(flows, submitter, amount)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.ID).To(Equal(int64(1)))
	})

	It("should prefer a department-scoped flow over a company-wide one", func() {
		flows := []*approval.Flow{
			{ID: 1, CompanyID: 10, MinAmount: dec("4000"), MaxAmount: dec("6000")},
			{ID: 2, CompanyID: 10, DepartmentID: id(5)},
		}
		f, err := approval.SelectFlow(flows, submitter, amount)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.ID).To(Equal(int64(2)))
	})

	It("should prefer the narrowest window and treat open bounds as infinite", func() {
		flows := []*approval.Flow{
			{ID: 1, CompanyID: 10, MinAmount: dec("0")},
			{ID: 2, CompanyID: 10, MinAmount: dec("0"), MaxAmount: dec("100000")},
			{ID: 3, CompanyID: 10, MinAmount: dec("1000"), MaxAmount: dec("10000")},
		}
		f, err := approval.SelectFlow(flows, submitter, amount)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.ID).To(Equal(int64(3)))
	})

	It("should fail with AmbiguousFlow on an unresolved tie", func() {
		flows := []*approval.Flow{
			{ID: 1, CompanyID: 10, MinAmount: dec("0"), MaxAmount: dec("10000")},
			{ID: 2, CompanyID: 10, MinAmount: dec("1000"), MaxAmount: dec("11000")},
		}
		_, err := approval.SelectFlow(flows, submitter, amount)
		Expect(err).To(MatchError(internal.ErrAmbiguousFlow))
	})

	It("should treat two unbounded company-wide flows as ambiguous", func() {
		flows := []*approval.Flow{{ID: 1, CompanyID: 10}, {ID: 2, CompanyID: 10}}
		_, err := approval.SelectFlow(flows, submitter, amount)
		Expect(err).To(MatchError(internal.ErrAmbiguousFlow))
	})

	It("should be deterministic across input order", func() {
		a := &approval.Flow{ID: 1, CompanyID: 10, MinAmount: dec("0"), MaxAmount: dec("9000")}
		b := &approval.Flow{ID: 2, CompanyID: 10, MinAmount: dec("0"), MaxAmount: dec("8000")}
		for i := 0; i < 10; i++ {
			f1, err := approval.SelectFlow([]*approval.Flow{a, b}, submitter, amount)
			Expect(err).NotTo(HaveOccurred())
			f2, err := approval.SelectFlow([]*approval.Flow{b, a}, submitter, amount)
			Expect(err).NotTo(HaveOccurred())
			Expect(f1.ID).To(Equal(int64(2)))
			Expect(f2.ID).To(Equal(int64(2)))
		}
	})

	It("should skip department flows when the submitter has no department", func() {
		submitter.DepartmentID = nil
		flows := []*approval.Flow{
			{ID: 1, CompanyID: 10, DepartmentID: id(5)},
			{ID: 2, CompanyID: 10},
		}
		f, err := approval.SelectFlow(flows, submitter, amount)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.ID).To(Equal(int64(2)))
	})
})

var _ = Describe("ValidateStepOrders", func() {
	It("should accept contiguous orders regardless of slice order", func() {
		f := &approval.Flow{ID: 1, Steps: []approval.Step{fixedStep(2, 7), managerStep(1)}}
		Expect(approval.ValidateStepOrders(f)).To(Succeed())
	})

	It("should reject gaps and duplicates", func() {
		gap := &approval.Flow{ID: 1, Steps: []approval.Step{managerStep(1), fixedStep(3, 7)}}
		Expect(approval.ValidateStepOrders(gap)).To(MatchError(internal.ErrInvalidFlowSteps))

		dup := &approval.Flow{ID: 2, Steps: []approval.Step{managerStep(1), fixedStep(1, 7)}}
		Expect(approval.ValidateStepOrders(dup)).To(MatchError(internal.ErrInvalidFlowSteps))

		zero := &approval.Flow{ID: 3, Steps: []approval.Step{fixedStep(0, 7)}}
		Expect(approval.ValidateStepOrders(zero)).To(MatchError(internal.ErrInvalidFlowSteps))
	})
})

var _ = Describe("MaterializeSteps", func() {
	submitter := approval.Submitter{UserID: 1, CompanyID: 10, ManagerID: id(2)}

	It("should resolve manager and fixed steps in order", func() {
		f := &approval.Flow{ID: 1, Steps: []approval.Step{fixedStep(2, 7), managerStep(1)}}
		planned, err := approval.MaterializeSteps(f, submitter)
		Expect(err).NotTo(HaveOccurred())
		Expect(planned).To(HaveLen(2))
		Expect(planned[0].Order).To(Equal(1))
		Expect(planned[0].ApproverID).To(Equal(int64(2)))
		Expect(planned[1].Order).To(Equal(2))
		Expect(planned[1].ApproverID).To(Equal(int64(7)))
	})

	It("should fail with NoManagerAssigned when a manager step has no manager", func() {
		f := &approval.Flow{ID: 1, Steps: []approval.Step{managerStep(1)}}
		_, err := approval.MaterializeSteps(f, approval.Submitter{UserID: 1, CompanyID: 10})
		Expect(err).To(MatchError(internal.ErrNoManagerAssigned))
	})

	It("should fail with EmptyFlow for a flow without steps", func() {
		_, err := approval.MaterializeSteps(&approval.Flow{ID: 1}, submitter)
		Expect(err).To(MatchError(internal.ErrEmptyFlow))
	})
})

var _ = Describe("Resolver", func() {
	var (
		repo     *mockCatalogRepository
		resolver *approval.Resolver
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockCatalogRepository()
		resolver = approval.NewResolver(repo, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
	})

	It("should load the company's flows and return the selected one", func() {
		seedFlow(repo, &approval.Flow{CompanyID: 10, Name: "small", MinAmount: dec("0"), MaxAmount: dec("10000"),
			Steps: []approval.Step{managerStep(1)}})
		seedFlow(repo, &approval.Flow{CompanyID: 10, Name: "large", MinAmount: dec("10000.01"),
			Steps: []approval.Step{managerStep(1)}})

		f, err := resolver.Resolve(ctx, approval.Submitter{UserID: 1, CompanyID: 10}, decimal.RequireFromString("10000"))
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Name).To(Equal("small"))
	})

	It("should reject a selected flow with non-contiguous steps", func() {
		seedFlow(repo, &approval.Flow{CompanyID: 10, Name: "broken",
			Steps: []approval.Step{managerStep(1), fixedStep(3, 7)}})

		_, err := resolver.Resolve(ctx, approval.Submitter{UserID: 1, CompanyID: 10}, decimal.RequireFromString("1"))
		Expect(err).To(MatchError(internal.ErrInvalidFlowSteps))
	})

	It("should drop an inactive rule", func() {
		rule := &approval.Rule{CompanyID: 10, Name: "off", Spec: approval.SpecificRule{ApproverID: 7}, IsActive: false}
		seedRule(repo, rule)
		seedFlow(repo, &approval.Flow{CompanyID: 10, Name: "f", Rule: rule, Steps: []approval.Step{managerStep(1)}})

		f, err := resolver.Resolve(ctx, approval.Submitter{UserID: 1, CompanyID: 10}, decimal.RequireFromString("1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Rule).NotTo(BeNil())
		Expect(f.ActiveRule()).To(BeNil())
	})

	It("should skip an unloadable flow outside the amount window", func() {
		rule := &approval.Rule{CompanyID: 10, Name: "corrupt", Spec: approval.SpecificRule{ApproverID: 7}, IsActive: true}
		seedRule(repo, rule)
		repo.rules[rule.ID].RuleType = "MAJORITY"
		seedFlow(repo, &approval.Flow{CompanyID: 10, Name: "large", MinAmount: dec("50000"), Rule: rule,
			Steps: []approval.Step{managerStep(1)}})
		seedFlow(repo, &approval.Flow{CompanyID: 10, Name: "small", MinAmount: dec("0"), MaxAmount: dec("10000"),
			Steps: []approval.Step{managerStep(1)}})

		f, err := resolver.Resolve(ctx, approval.Submitter{UserID: 1, CompanyID: 10}, decimal.RequireFromString("500"))
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Name).To(Equal("small"))
	})

	It("should fail with NoMatchingFlow when the covering flow cannot be loaded", func() {
		rule := &approval.Rule{CompanyID: 10, Name: "corrupt", Spec: approval.SpecificRule{ApproverID: 7}, IsActive: true}
		seedRule(repo, rule)
		repo.rules[rule.ID].RuleType = "MAJORITY"
		seedFlow(repo, &approval.Flow{CompanyID: 10, Name: "corrupt", MinAmount: dec("0"), MaxAmount: dec("10000"), Rule: rule,
			Steps: []approval.Step{managerStep(1)}})
		seedFlow(repo, &approval.Flow{CompanyID: 10, Name: "fallback",
			Steps: []approval.Step{managerStep(1)}})

		_, err := resolver.Resolve(ctx, approval.Submitter{UserID: 1, CompanyID: 10}, decimal.RequireFromString("500"))
		Expect(err).To(MatchError(internal.ErrNoMatchingFlow))
		Expect(err.Error()).To(ContainSubstring("cannot be loaded"))
	})
})
