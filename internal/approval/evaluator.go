package approval

type Verdict string

const (
	VerdictPending  Verdict = "PENDING"
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
)

func (v Verdict) IsTerminal() bool {
	return v == VerdictApproved || v == VerdictRejected
}

type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomeRejected Outcome = "REJECTED"
)

func (o Outcome) Valid() bool {
	return o == OutcomeApproved || o == OutcomeRejected
}

// Decision is one acted-on approval, in activation order.
type Decision struct {
	StepOrder    int
	ApproverID   int64
	Outcome      Outcome
	HighPriority bool
}

// Evaluate computes the verdict for an expense from the decisions recorded so
// far. totalSteps is the number of steps in the whole flow, activated or not.
// A nil rule means every step must approve.
func Evaluate(rule RuleSpec, decisions []Decision, totalSteps int) Verdict {
	for _, d := range decisions {
		if d.HighPriority && d.Outcome == OutcomeApproved {
			return VerdictApproved
		}
	}

	switch r := rule.(type) {
	case PercentageRule:
		return evaluatePercentage(r.MinimumPercentage, decisions, totalSteps)
	case SpecificRule:
		return evaluateSpecific(r.ApproverID, decisions)
	case HybridRule:
		pct := evaluatePercentage(r.MinimumPercentage, decisions, totalSteps)
		spc := evaluateSpecific(r.ApproverID, decisions)
		if pct == VerdictApproved || spc == VerdictApproved {
			return VerdictApproved
		}
		// once every step is decided the specific approver can no longer act
		if pct == VerdictRejected && (spc == VerdictRejected || remaining(decisions, totalSteps) == 0) {
			return VerdictRejected
		}
		return VerdictPending
	default:
		return evaluateUnanimous(decisions, totalSteps)
	}
}

func evaluateUnanimous(decisions []Decision, totalSteps int) Verdict {
	approved := 0
	for _, d := range decisions {
		if d.Outcome == OutcomeRejected {
			return VerdictRejected
		}
		approved++
	}
	if totalSteps > 0 && approved >= totalSteps {
		return VerdictApproved
	}
	return VerdictPending
}

// evaluatePercentage compares in integer space: approved/total*100 >= min
// becomes approved*100 >= min*total.
func evaluatePercentage(minimum int, decisions []Decision, totalSteps int) Verdict {
	if totalSteps <= 0 {
		return VerdictPending
	}
	approved := 0
	for _, d := range decisions {
		if d.Outcome == OutcomeApproved {
			approved++
		}
	}
	need := minimum * totalSteps
	if approved*100 >= need {
		return VerdictApproved
	}
	if (approved+remaining(decisions, totalSteps))*100 < need {
		return VerdictRejected
	}
	return VerdictPending
}

func evaluateSpecific(approverID int64, decisions []Decision) Verdict {
	for _, d := range decisions {
		if d.ApproverID != approverID {
			continue
		}
		if d.Outcome == OutcomeApproved {
			return VerdictApproved
		}
		return VerdictRejected
	}
	return VerdictPending
}

func remaining(decisions []Decision, totalSteps int) int {
	if r := totalSteps - len(decisions); r > 0 {
		return r
	}
	return 0
}
