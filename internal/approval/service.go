package approval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/expense-approval/internal"
	approvalDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approval"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type RepositoryAPI interface {
	CreateRule(ctx context.Context, rule *approvalDatamodel.ApprovalRule) error
	GetRule(ctx context.Context, id int64) (*approvalDatamodel.ApprovalRule, error)
	ListRules(ctx context.Context, companyID int64) ([]*approvalDatamodel.ApprovalRule, error)
	// CreateFlow inserts the flow and its steps in one transaction.
	CreateFlow(ctx context.Context, flow *approvalDatamodel.ApprovalFlow) error
	// GetFlow and ListFlowsByCompany preload the rule and the steps ordered
	// by step order.
	GetFlow(ctx context.Context, id int64) (*approvalDatamodel.ApprovalFlow, error)
	ListFlowsByCompany(ctx context.Context, companyID int64) ([]*approvalDatamodel.ApprovalFlow, error)
}

// Directory is the user lookup the catalog needs for authorization and
// cross-company checks.
type Directory interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	GetDepartment(ctx context.Context, id int64) (*user.Department, error)
}

// Service authors and lists approval rules and flows.
type Service struct {
	repo      RepositoryAPI
	directory Directory
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, directory Directory, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		logger:    logger,
	}
}

func (s *Service) CreateRule(ctx context.Context, actorID int64, dto CreateRuleDTO) (*Rule, error) {
	actor, err := s.requireAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}

	spec, err := dto.Validate()
	if err != nil {
		s.logger.Warn("rule validation failed", "error", err, "actor_id", actorID)
		return nil, err
	}
	companyID := *actor.CompanyID

	if _, _, approverID := specColumns(spec); approverID != nil {
		if err := s.requireMember(ctx, companyID, *approverID, "specific_approver_id"); err != nil {
			return nil, err
		}
	}

	active := true
	if dto.IsActive != nil {
		active = *dto.IsActive
	}
	rule := &Rule{
		CompanyID: companyID,
		Name:      dto.Name,
		Spec:      spec,
		IsActive:  active,
	}

	row := RuleToDataModel(rule)
	if err := s.repo.CreateRule(ctx, row); err != nil {
		s.logger.Error("failed to create rule", "error", err, "company_id", companyID)
		return nil, fmt.Errorf("create rule: %w", err)
	}

	s.logger.Info("approval rule created",
		"rule_id", row.ID,
		"company_id", companyID,
		"rule_type", row.RuleType)

	return RuleFromDataModel(row)
}

func (s *Service) ListRules(ctx context.Context, actorID int64) ([]*Rule, error) {
	companyID, err := s.actorCompany(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListRules(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	rules := make([]*Rule, 0, len(rows))
	for _, row := range rows {
		r, err := RuleFromDataModel(row)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// CreateFlow stores a flow with its inline steps. Steps are checked for
// contiguous ordering here as well as at resolution time.
func (s *Service) CreateFlow(ctx context.Context, actorID int64, dto CreateFlowDTO) (*Flow, error) {
	actor, err := s.requireAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := dto.Validate(); err != nil {
		s.logger.Warn("flow validation failed", "error", err, "actor_id", actorID)
		return nil, err
	}
	companyID := *actor.CompanyID

	if dto.DepartmentID != nil {
		dept, err := s.directory.GetDepartment(ctx, *dto.DepartmentID)
		if err != nil {
			return nil, err
		}
		if dept.CompanyID != companyID {
			return nil, invalidFlow("department_id", "department belongs to another company")
		}
	}

	var rule *Rule
	if dto.RuleID != nil {
		row, err := s.repo.GetRule(ctx, *dto.RuleID)
		if err != nil {
			return nil, err
		}
		if row.CompanyID != companyID {
			return nil, invalidFlow("rule_id", "rule belongs to another company")
		}
		if rule, err = RuleFromDataModel(row); err != nil {
			return nil, err
		}
	}

	flow := &Flow{
		CompanyID:    companyID,
		Name:         dto.Name,
		Description:  dto.Description,
		DepartmentID: dto.DepartmentID,
		MinAmount:    dto.MinAmount,
		MaxAmount:    dto.MaxAmount,
		Rule:         rule,
	}
	for i, st := range dto.Steps {
		step := Step{Order: st.Order, IsHighPriority: st.IsHighPriority}
		if st.IsManagerStep {
			step.Approver = ManagerOfSubmitter{}
		} else {
			if err := s.requireMember(ctx, companyID, *st.ApproverID, fmt.Sprintf("steps[%d].approver_id", i)); err != nil {
				return nil, err
			}
			step.Approver = FixedApprover{UserID: *st.ApproverID}
		}
		flow.Steps = append(flow.Steps, step)
	}

	row := FlowToDataModel(flow)
	if err := s.repo.CreateFlow(ctx, row); err != nil {
		s.logger.Error("failed to create flow", "error", err, "company_id", companyID)
		return nil, fmt.Errorf("create flow: %w", err)
	}

	s.logger.Info("approval flow created",
		"flow_id", row.ID,
		"company_id", companyID,
		"steps", len(row.Steps))

	return s.loadFlow(ctx, row.ID)
}

func (s *Service) ListFlows(ctx context.Context, actorID int64) ([]*Flow, error) {
	companyID, err := s.actorCompany(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListFlowsByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	flows := make([]*Flow, 0, len(rows))
	for _, row := range rows {
		f, err := FlowFromDataModel(row)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, nil
}

func (s *Service) GetFlow(ctx context.Context, actorID, flowID int64) (*Flow, error) {
	companyID, err := s.actorCompany(ctx, actorID)
	if err != nil {
		return nil, err
	}
	f, err := s.loadFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if f.CompanyID != companyID {
		return nil, internal.ErrFlowNotFound
	}
	return f, nil
}

func (s *Service) loadFlow(ctx context.Context, id int64) (*Flow, error) {
	row, err := s.repo.GetFlow(ctx, id)
	if err != nil {
		return nil, err
	}
	return FlowFromDataModel(row)
}

func (s *Service) actorCompany(ctx context.Context, actorID int64) (int64, error) {
	actor, err := s.directory.GetByID(ctx, actorID)
	if err != nil {
		return 0, err
	}
	if actor.CompanyID == nil {
		return 0, internal.ErrUnauthorizedAccess
	}
	return *actor.CompanyID, nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID int64) (*user.User, error) {
	actor, err := s.directory.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.CompanyID == nil || !actor.IsAdminOf(*actor.CompanyID) {
		s.logger.Warn("catalog change denied", "actor_id", actorID, "role", actor.Role)
		return nil, internal.ErrUnauthorizedAccess
	}
	return actor, nil
}

func (s *Service) requireMember(ctx context.Context, companyID, userID int64, field string) error {
	u, err := s.directory.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.BelongsTo(companyID) {
		return internal.NewValidationFieldError(field, "user belongs to another company", internal.ErrCodeValidationFailed)
	}
	return nil
}
