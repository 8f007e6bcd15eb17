package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/expense-approval/internal"
	userDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/user"
	"github.com/frahmantamala/expense-approval/internal/user"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetCompany(ctx context.Context, id int64) (*userDatamodel.Company, error) {
	var c userDatamodel.Company
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrCompanyNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *UserRepository) GetDepartment(ctx context.Context, id int64) (*userDatamodel.Department, error) {
	var d userDatamodel.Department
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrDepartmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *UserRepository) CreateCompanyWithAdmin(ctx context.Context, company *userDatamodel.Company, admin *userDatamodel.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(company).Error; err != nil {
			return err
		}
		admin.CompanyID = &company.ID
		return tx.Create(admin).Error
	})
}

func (r *UserRepository) CreateDepartment(ctx context.Context, department *userDatamodel.Department) error {
	return r.db.WithContext(ctx).Create(department).Error
}

func (r *UserRepository) CreateUser(ctx context.Context, u *userDatamodel.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}
