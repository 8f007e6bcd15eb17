package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/expense-approval/internal"
	userDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/user"
)

var ErrNotFound = internal.ErrUserNotFound

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	GetCompany(ctx context.Context, id int64) (*userDatamodel.Company, error)
	GetDepartment(ctx context.Context, id int64) (*userDatamodel.Department, error)
	// CreateCompanyWithAdmin persists both rows atomically and links the
	// admin to the new company.
	CreateCompanyWithAdmin(ctx context.Context, company *userDatamodel.Company, admin *userDatamodel.User) error
	CreateDepartment(ctx context.Context, department *userDatamodel.Department) error
	CreateUser(ctx context.Context, user *userDatamodel.User) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// RegisterAdmin provisions a company together with its first admin.
func (s *Service) RegisterAdmin(ctx context.Context, dto RegisterAdminDTO) (*Company, *User, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Warn("admin registration validation failed", "error", err, "username", dto.Username)
		return nil, nil, err
	}

	company := &userDatamodel.Company{
		Name:           dto.CompanyName,
		Country:        dto.Country,
		CurrencyCode:   dto.CurrencyCode,
		CurrencySymbol: dto.CurrencySymbol,
	}
	admin := &userDatamodel.User{
		Username:  dto.Username,
		Email:     dto.Email,
		FirstName: dto.FirstName,
		LastName:  dto.LastName,
		Role:      string(RoleAdmin),
		IsActive:  true,
	}

	if err := s.repo.CreateCompanyWithAdmin(ctx, company, admin); err != nil {
		s.logger.Error("failed to provision company", "error", err, "company", dto.CompanyName)
		return nil, nil, fmt.Errorf("provision company: %w", err)
	}

	s.logger.Info("company provisioned",
		"company_id", company.ID,
		"admin_id", admin.ID,
		"currency", company.CurrencyCode)

	return CompanyFromDataModel(company), FromDataModel(admin), nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return FromDataModel(u), nil
}

func (s *Service) GetCompany(ctx context.Context, id int64) (*Company, error) {
	c, err := s.repo.GetCompany(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return CompanyFromDataModel(c), nil
}

func (s *Service) GetDepartment(ctx context.Context, id int64) (*Department, error) {
	d, err := s.repo.GetDepartment(ctx, id)
	if err != nil {
		if errors.Is(err, internal.ErrDepartmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return DepartmentFromDataModel(d), nil
}

func (s *Service) CreateDepartment(ctx context.Context, actorID int64, dto CreateDepartmentDTO) (*Department, error) {
	actor, err := s.requireAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	d := &userDatamodel.Department{CompanyID: *actor.CompanyID, Name: dto.Name}
	if err := s.repo.CreateDepartment(ctx, d); err != nil {
		s.logger.Error("failed to create department", "error", err, "company_id", d.CompanyID)
		return nil, fmt.Errorf("create department: %w", err)
	}

	s.logger.Info("department created", "department_id", d.ID, "company_id", d.CompanyID)
	return DepartmentFromDataModel(d), nil
}

// CreateUser adds a member to the admin's company. Department and manager
// must belong to the same company.
func (s *Service) CreateUser(ctx context.Context, actorID int64, dto CreateUserDTO) (*User, error) {
	actor, err := s.requireAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	companyID := *actor.CompanyID

	if dto.DepartmentID != nil {
		dept, err := s.GetDepartment(ctx, *dto.DepartmentID)
		if err != nil {
			return nil, err
		}
		if dept.CompanyID != companyID {
			return nil, internal.NewValidationFieldError("department_id", "department belongs to another company", internal.ErrCodeValidationFailed)
		}
	}
	if dto.ManagerID != nil {
		manager, err := s.GetByID(ctx, *dto.ManagerID)
		if err != nil {
			return nil, err
		}
		if !manager.BelongsTo(companyID) {
			return nil, internal.NewValidationFieldError("manager_id", "manager belongs to another company", internal.ErrCodeValidationFailed)
		}
	}

	u := &userDatamodel.User{
		Username:     dto.Username,
		Email:        dto.Email,
		FirstName:    dto.FirstName,
		LastName:     dto.LastName,
		CompanyID:    &companyID,
		DepartmentID: dto.DepartmentID,
		Role:         string(dto.Role),
		ManagerID:    dto.ManagerID,
		IsActive:     true,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		s.logger.Error("failed to create user", "error", err, "company_id", companyID, "username", dto.Username)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user created", "user_id", u.ID, "company_id", companyID, "role", u.Role)
	return FromDataModel(u), nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID int64) (*User, error) {
	actor, err := s.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.CompanyID == nil || !actor.IsAdminOf(*actor.CompanyID) {
		s.logger.Warn("admin action denied", "actor_id", actorID, "role", actor.Role)
		return nil, internal.ErrUnauthorizedAccess
	}
	return actor, nil
}
