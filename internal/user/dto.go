package user

import (
	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
)

// RegisterAdminDTO is the signup payload: the first admin and the company
// they provision.
type RegisterAdminDTO struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	CompanyName    string `json:"company_name"`
	Country        string `json:"country"`
	CurrencyCode   string `json:"currency_code"`
	CurrencySymbol string `json:"currency_symbol"`
}

func (dto RegisterAdminDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("username", dto.Username).Required().MaxLength(150)
	v.Field("email", dto.Email).Required().MaxLength(254)
	v.Field("company_name", dto.CompanyName).Required().MaxLength(200)
	v.Field("country", dto.Country).Required().MaxLength(100)
	v.Field("currency_code", dto.CurrencyCode).Required().CurrencyCode()
	v.Field("currency_symbol", dto.CurrencySymbol).Required().MaxLength(5)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type CreateDepartmentDTO struct {
	Name string `json:"name"`
}

func (dto CreateDepartmentDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", dto.Name).Required().MaxLength(100)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type CreateUserDTO struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         Role   `json:"role"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	ManagerID    *int64 `json:"manager_id,omitempty"`
}

func (dto CreateUserDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("username", dto.Username).Required().MaxLength(150)
	v.Field("email", dto.Email).Required().MaxLength(254)
	v.Field("role", string(dto.Role)).Required().Custom(func(value interface{}) *internal.AppError {
		if !Role(value.(string)).Valid() {
			return internal.NewValidationFieldError("role", "role must be one of ADMIN, MANAGER, EMPLOYEE", internal.ErrCodeValidationFailed)
		}
		return nil
	})
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type RegistrationResponse struct {
	Company *Company `json:"company"`
	User    *User    `json:"user"`
}
