package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approval"
	approvalDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approval"

	"gorm.io/gorm"
)

// CatalogRepository stores approval rules and flows with GORM.
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) approval.RepositoryAPI {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) CreateRule(ctx context.Context, rule *approvalDatamodel.ApprovalRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *CatalogRepository) GetRule(ctx context.Context, id int64) (*approvalDatamodel.ApprovalRule, error) {
	var rule approvalDatamodel.ApprovalRule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func (r *CatalogRepository) ListRules(ctx context.Context, companyID int64) ([]*approvalDatamodel.ApprovalRule, error) {
	var rules []*approvalDatamodel.ApprovalRule
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("id ASC").
		Find(&rules).Error
	return rules, err
}

// CreateFlow relies on GORM's association save for the steps; the rule is
// referenced by id only and never upserted.
func (r *CatalogRepository) CreateFlow(ctx context.Context, flow *approvalDatamodel.ApprovalFlow) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Rule").Create(flow).Error
	})
}

func (r *CatalogRepository) GetFlow(ctx context.Context, id int64) (*approvalDatamodel.ApprovalFlow, error) {
	var flow approvalDatamodel.ApprovalFlow
	err := r.withGraph(ctx).Where("id = ?", id).First(&flow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrFlowNotFound
		}
		return nil, err
	}
	return &flow, nil
}

func (r *CatalogRepository) ListFlowsByCompany(ctx context.Context, companyID int64) ([]*approvalDatamodel.ApprovalFlow, error) {
	var flows []*approvalDatamodel.ApprovalFlow
	err := r.withGraph(ctx).
		Where("company_id = ?", companyID).
		Order("id ASC").
		Find(&flows).Error
	return flows, err
}

func (r *CatalogRepository) withGraph(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Rule").
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		})
}
