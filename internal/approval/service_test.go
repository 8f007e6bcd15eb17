package approval_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approval"
	"github.com/frahmantamala/expense-approval/internal/user"
)

func intp(v int) *int { return &v }

var _ = Describe("Catalog Service", func() {
	var (
		repo      *mockCatalogRepository
		directory *mockDirectory
		service   *approval.Service
		ctx       context.Context
		admin     *user.User
		employee  *user.User
		cfo       *user.User
		outsider  *user.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockCatalogRepository()
		directory = newMockDirectory()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = approval.NewService(repo, directory, logger)

		admin = directory.add(&user.User{ID: 1, CompanyID: id(10), Role: user.RoleAdmin, IsActive: true})
		employee = directory.add(&user.User{ID: 2, CompanyID: id(10), Role: user.RoleEmployee, IsActive: true})
		cfo = directory.add(&user.User{ID: 3, CompanyID: id(10), Role: user.RoleManager, IsActive: true})
		outsider = directory.add(&user.User{ID: 4, CompanyID: id(11), Role: user.RoleManager, IsActive: true})
		directory.departments[20] = &user.Department{ID: 20, CompanyID: 10, Name: "Finance"}
		directory.departments[21] = &user.Department{ID: 21, CompanyID: 11, Name: "Other"}
	})

	Describe("CreateRule", func() {
		It("should create a typed rule for the admin's company", func() {
			rule, err := service.CreateRule(ctx, admin.ID, approval.CreateRuleDTO{
				Name: "CFO decides", RuleType: approval.RuleTypeSpecific, SpecificApproverID: &cfo.ID,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(rule.ID).To(BeNumerically(">", 0))
			Expect(rule.CompanyID).To(Equal(int64(10)))
			Expect(rule.IsActive).To(BeTrue())
			Expect(rule.Spec).To(Equal(approval.SpecificRule{ApproverID: cfo.ID}))
		})

		It("should reject fields that do not belong to the rule type", func() {
			_, err := service.CreateRule(ctx, admin.ID, approval.CreateRuleDTO{
				Name: "bad", RuleType: approval.RuleTypePercentage, MinimumPercentage: intp(60), SpecificApproverID: &cfo.ID,
			})
			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})

		It("should reject a percentage outside 1..100", func() {
			_, err := service.CreateRule(ctx, admin.ID, approval.CreateRuleDTO{
				Name: "bad", RuleType: approval.RuleTypeHybrid, MinimumPercentage: intp(101), SpecificApproverID: &cfo.ID,
			})
			Expect(err).To(HaveOccurred())
		})

		It("should reject a specific approver from another company", func() {
			_, err := service.CreateRule(ctx, admin.ID, approval.CreateRuleDTO{
				Name: "x", RuleType: approval.RuleTypeSpecific, SpecificApproverID: &outsider.ID,
			})
			Expect(err).To(HaveOccurred())
		})

		It("should deny non-admins", func() {
			_, err := service.CreateRule(ctx, employee.ID, approval.CreateRuleDTO{
				Name: "x", RuleType: approval.RuleTypePercentage, MinimumPercentage: intp(50),
			})
			Expect(err).To(MatchError(internal.ErrUnauthorizedAccess))
		})

		It("should store an inactive rule when asked", func() {
			inactive := false
			rule, err := service.CreateRule(ctx, admin.ID, approval.CreateRuleDTO{
				Name: "off", RuleType: approval.RuleTypePercentage, MinimumPercentage: intp(50), IsActive: &inactive,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(rule.IsActive).To(BeFalse())
		})
	})

	Describe("CreateFlow", func() {
		var validFlow approval.CreateFlowDTO

		BeforeEach(func() {
			validFlow = approval.CreateFlowDTO{
				Name:      "small",
				MinAmount: dec("0"),
				MaxAmount: dec("10000"),
				Steps: []approval.CreateStepDTO{
					{Order: 2, ApproverID: &cfo.ID},
					{Order: 1, IsManagerStep: true},
				},
			}
		})

		It("should create the flow with ordered steps and its rule", func() {
			rule, err := service.CreateRule(ctx, admin.ID, approval.CreateRuleDTO{
				Name: "CFO", RuleType: approval.RuleTypeSpecific, SpecificApproverID: &cfo.ID,
			})
			Expect(err).NotTo(HaveOccurred())
			validFlow.RuleID = &rule.ID

			flow, err := service.CreateFlow(ctx, admin.ID, validFlow)
			Expect(err).NotTo(HaveOccurred())
			Expect(flow.Rule).NotTo(BeNil())
			Expect(flow.Rule.ID).To(Equal(rule.ID))

			steps := flow.OrderedSteps()
			Expect(steps).To(HaveLen(2))
			Expect(steps[0].Approver).To(Equal(approval.ManagerOfSubmitter{}))
			Expect(steps[1].Approver).To(Equal(approval.FixedApprover{UserID: cfo.ID}))
		})

		It("should reject non-contiguous step orders", func() {
			validFlow.Steps[0].Order = 3
			_, err := service.CreateFlow(ctx, admin.ID, validFlow)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a step with both an approver and the manager flag", func() {
			validFlow.Steps[1].ApproverID = &cfo.ID
			_, err := service.CreateFlow(ctx, admin.ID, validFlow)
			Expect(err).To(HaveOccurred())
		})

		It("should reject an inverted amount window", func() {
			validFlow.MinAmount = dec("20000")
			_, err := service.CreateFlow(ctx, admin.ID, validFlow)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a department of another company", func() {
			validFlow.DepartmentID = id(21)
			_, err := service.CreateFlow(ctx, admin.ID, validFlow)
			Expect(err).To(HaveOccurred())
		})

		It("should surface repository failures", func() {
			repo.createErr = errors.New("boom")
			_, err := service.CreateFlow(ctx, admin.ID, validFlow)
			Expect(err).To(MatchError(ContainSubstring("boom")))
		})
	})

	Describe("GetFlow", func() {
		It("should hide flows of other companies", func() {
			f := &approval.Flow{CompanyID: 11, Name: "other", Steps: []approval.Step{managerStep(1)}}
			seedFlow(repo, f)

			_, err := service.GetFlow(ctx, admin.ID, f.ID)
			Expect(err).To(MatchError(internal.ErrFlowNotFound))
		})
	})

	Describe("ListRules", func() {
		It("should list only the actor's company rules", func() {
			seedRule(repo, &approval.Rule{CompanyID: 10, Name: "mine", Spec: approval.PercentageRule{MinimumPercentage: 50}, IsActive: true})
			seedRule(repo, &approval.Rule{CompanyID: 11, Name: "theirs", Spec: approval.PercentageRule{MinimumPercentage: 50}, IsActive: true})

			rules, err := service.ListRules(ctx, employee.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rules).To(HaveLen(1))
			Expect(rules[0].Name).To(Equal("mine"))
		})
	})
})
