package approval_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/expense-approval/internal/approval"
	approvalDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approval"
)

var _ = Describe("RuleSpec", func() {
	DescribeTable("NewRuleSpec",
		func(t approval.RuleType, pct *int, approver *int64, expected approval.RuleSpec, ok bool) {
			spec, err := approval.NewRuleSpec(t, pct, approver)
			if !ok {
				Expect(err).To(HaveOccurred())
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(spec).To(Equal(expected))
		},
		Entry("percentage", approval.RuleTypePercentage, intp(60), nil, approval.PercentageRule{MinimumPercentage: 60}, true),
		Entry("percentage without threshold", approval.RuleTypePercentage, nil, nil, nil, false),
		Entry("specific", approval.RuleTypeSpecific, nil, id(7), approval.SpecificRule{ApproverID: 7}, true),
		Entry("specific with threshold", approval.RuleTypeSpecific, intp(60), id(7), nil, false),
		Entry("hybrid", approval.RuleTypeHybrid, intp(50), id(7), approval.HybridRule{MinimumPercentage: 50, ApproverID: 7}, true),
		Entry("hybrid without approver", approval.RuleTypeHybrid, intp(50), nil, nil, false),
		Entry("unknown type", approval.RuleType("MAJORITY"), intp(50), nil, nil, false),
	)

	It("should fail to load a persisted row with a mismatched shape", func() {
		_, err := approval.RuleFromDataModel(&approvalDatamodel.ApprovalRule{ID: 1, RuleType: "SPECIFIC"})
		Expect(err).To(HaveOccurred())
	})

	It("should keep exactly the columns of its type", func() {
		row := approval.RuleToDataModel(&approval.Rule{Spec: approval.SpecificRule{ApproverID: 7}})
		Expect(row.RuleType).To(Equal("SPECIFIC"))
		Expect(row.MinimumPercentage).To(BeNil())
		Expect(*row.SpecificApproverID).To(Equal(int64(7)))
	})
})
