package user

import (
	"time"

	userDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/user"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

type Company struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Country        string    `json:"country"`
	CurrencyCode   string    `json:"currency_code"`
	CurrencySymbol string    `json:"currency_symbol"`
	CreatedAt      time.Time `json:"created_at"`
}

type Department struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	CompanyID    *int64    `json:"company_id,omitempty"`
	DepartmentID *int64    `json:"department_id,omitempty"`
	Role         Role      `json:"role"`
	ManagerID    *int64    `json:"manager_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// BelongsTo reports whether the user is a member of companyID.
func (u *User) BelongsTo(companyID int64) bool {
	return u.CompanyID != nil && *u.CompanyID == companyID
}

// IsAdminOf reports whether the user may author catalog data for companyID.
func (u *User) IsAdminOf(companyID int64) bool {
	return u.IsAdmin() && u.IsActive && u.BelongsTo(companyID)
}

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		CompanyID:    u.CompanyID,
		DepartmentID: u.DepartmentID,
		Role:         string(u.Role),
		ManagerID:    u.ManagerID,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		CompanyID:    u.CompanyID,
		DepartmentID: u.DepartmentID,
		Role:         Role(u.Role),
		ManagerID:    u.ManagerID,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func CompanyToDataModel(c *Company) *userDatamodel.Company {
	return &userDatamodel.Company{
		ID:             c.ID,
		Name:           c.Name,
		Country:        c.Country,
		CurrencyCode:   c.CurrencyCode,
		CurrencySymbol: c.CurrencySymbol,
		CreatedAt:      c.CreatedAt,
	}
}

func CompanyFromDataModel(c *userDatamodel.Company) *Company {
	return &Company{
		ID:             c.ID,
		Name:           c.Name,
		Country:        c.Country,
		CurrencyCode:   c.CurrencyCode,
		CurrencySymbol: c.CurrencySymbol,
		CreatedAt:      c.CreatedAt,
	}
}

func DepartmentFromDataModel(d *userDatamodel.Department) *Department {
	return &Department{
		ID:        d.ID,
		CompanyID: d.CompanyID,
		Name:      d.Name,
		CreatedAt: d.CreatedAt,
	}
}
