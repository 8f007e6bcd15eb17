package user

import "time"

type Company struct {
	ID             int64     `gorm:"primaryKey"`
	Name           string    `gorm:"column:name;not null"`
	Country        string    `gorm:"column:country;not null"`
	CurrencyCode   string    `gorm:"column:currency_code;not null"`
	CurrencySymbol string    `gorm:"column:currency_symbol;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

type Department struct {
	ID        int64     `gorm:"primaryKey"`
	CompanyID int64     `gorm:"column:company_id;not null;index"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

type User struct {
	ID           int64     `gorm:"primaryKey"`
	Username     string    `gorm:"column:username;uniqueIndex;not null"`
	Email        string    `gorm:"column:email;not null"`
	FirstName    string    `gorm:"column:first_name"`
	LastName     string    `gorm:"column:last_name"`
	CompanyID    *int64    `gorm:"column:company_id;index"`
	DepartmentID *int64    `gorm:"column:department_id"`
	Role         string    `gorm:"column:role;not null"`
	ManagerID    *int64    `gorm:"column:manager_id"`
	IsActive     bool      `gorm:"column:is_active;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
