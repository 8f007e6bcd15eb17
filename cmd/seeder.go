package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/frahmantamala/expense-approval/internal/auth"
	approvalDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approval"
	userDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/user"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const seedCompanyName = "Acme Corp"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed a demo company with users, a department, an approval rule and a two step flow.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGorm(db.DB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := clearSeedData(gormDB); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		var seeded []seededUser
		if err := gormDB.Transaction(func(tx *gorm.DB) error {
			var err error
			seeded, err = seedAcme(tx)
			return err
		}); err != nil {
			log.Fatalf("failed to seed: %v", err)
		}

		if cfg.Auth.JWTSecret == "" {
			return
		}
		tokens := auth.NewJWTTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		for _, u := range seeded {
			token, err := tokens.Issue(u.id)
			if err != nil {
				log.Fatalf("failed to issue token for %s: %v", u.username, err)
			}
			fmt.Printf("Token for %s: %s\n", u.username, token)
		}
	},
}

func clearSeedData(db *gorm.DB) error {
	for _, table := range []string{
		"expense_approvals", "expenses", "flow_steps", "approval_flows",
		"approval_rules", "users", "departments", "companies",
	} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

type seededUser struct {
	id       int64
	username string
}

func seedAcme(tx *gorm.DB) ([]seededUser, error) {
	var existing userDatamodel.Company
	err := tx.Where("name = ?", seedCompanyName).First(&existing).Error
	if err == nil {
		fmt.Println("Acme already seeded; use --clear to reseed")
		return nil, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	var seeded []seededUser

	company := &userDatamodel.Company{Name: seedCompanyName, Country: "India", CurrencyCode: "INR", CurrencySymbol: "₹"}
	if err := tx.Create(company).Error; err != nil {
		return nil, fmt.Errorf("company: %w", err)
	}
	dept := &userDatamodel.Department{CompanyID: company.ID, Name: "Engineering"}
	if err := tx.Create(dept).Error; err != nil {
		return nil, fmt.Errorf("department: %w", err)
	}

	newUser := func(username, first, role string, managerID *int64) (*userDatamodel.User, error) {
		u := &userDatamodel.User{
			Username:     username,
			Email:        username + "@acme.test",
			FirstName:    first,
			CompanyID:    &company.ID,
			DepartmentID: &dept.ID,
			Role:         role,
			ManagerID:    managerID,
			IsActive:     true,
		}
		if err := tx.Create(u).Error; err != nil {
			return nil, fmt.Errorf("user %s: %w", username, err)
		}
		fmt.Printf("Seeded user %s (id=%d, role=%s)\n", username, u.ID, role)
		seeded = append(seeded, seededUser{id: u.ID, username: username})
		return u, nil
	}

	if _, err := newUser("admin", "Asha", "ADMIN", nil); err != nil {
		return nil, err
	}
	cfo, err := newUser("cfo", "Chandra", "MANAGER", nil)
	if err != nil {
		return nil, err
	}
	manager, err := newUser("manager", "Meera", "MANAGER", &cfo.ID)
	if err != nil {
		return nil, err
	}
	if _, err := newUser("employee", "Ravi", "EMPLOYEE", &manager.ID); err != nil {
		return nil, err
	}

	rule := &approvalDatamodel.ApprovalRule{
		CompanyID:          company.ID,
		Name:               "CFO decides",
		RuleType:           "SPECIFIC",
		SpecificApproverID: &cfo.ID,
		IsActive:           true,
	}
	if err := tx.Create(rule).Error; err != nil {
		return nil, fmt.Errorf("rule: %w", err)
	}

	flow := &approvalDatamodel.ApprovalFlow{
		CompanyID:   company.ID,
		Name:        "Standard",
		Description: "Manager, then CFO",
		MinAmount:   decimal.NewNullDecimal(decimal.Zero),
		MaxAmount:   decimal.NewNullDecimal(decimal.NewFromInt(10000)),
		RuleID:      &rule.ID,
		Steps: []approvalDatamodel.FlowStep{
			{StepOrder: 1, IsManagerStep: true},
			{StepOrder: 2, ApproverID: &cfo.ID},
		},
	}
	if err := tx.Omit("Rule").Create(flow).Error; err != nil {
		return nil, fmt.Errorf("flow: %w", err)
	}

	fmt.Printf("Seeded company %q (id=%d) with flow %d and rule %d\n", company.Name, company.ID, flow.ID, rule.ID)
	return seeded, nil
}
