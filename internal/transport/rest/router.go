package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/expense-approval/api"
	"github.com/frahmantamala/expense-approval/internal/approval"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"github.com/frahmantamala/expense-approval/internal/transport/middleware"
	"github.com/frahmantamala/expense-approval/internal/transport/swagger"
	"github.com/frahmantamala/expense-approval/internal/user"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// Handlers groups everything the router mounts. Nil handlers are skipped.
type Handlers struct {
	Health   *HealthHandler
	User     *user.Handler
	Approval *approval.Handler
	Expense  *expense.Handler
	// Metrics is mounted at MetricsPath when set
	Metrics     http.Handler
	MetricsPath string
	Actor       middleware.ActorOptions
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, logger *slog.Logger) {
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.ActorContext(h.Actor))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.Spec())
	})
	router.Handle("/swagger/*", swagger.Handler())

	if h.Metrics != nil {
		path := h.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, h.Metrics)
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.healthCheckHandler)
			r.Get("/ping", h.Health.pingHandler)
		}

		if h.User != nil {
			r.Post("/companies/register", h.User.RegisterCompany)
		}

		r.Group(func(pr chi.Router) {
			pr.Use(middleware.RequireActor)

			if h.User != nil {
				pr.Get("/users/me", h.User.GetCurrentUser)
				pr.Post("/users", h.User.CreateUser)
				pr.Post("/departments", h.User.CreateDepartment)
			}

			if h.Approval != nil {
				pr.Route("/rules", func(rr chi.Router) {
					rr.Post("/", h.Approval.CreateRule)
					rr.Get("/", h.Approval.ListRules)
				})
				pr.Route("/flows", func(fr chi.Router) {
					fr.Post("/", h.Approval.CreateFlow)
					fr.Get("/", h.Approval.ListFlows)
					fr.Get("/{id}", h.Approval.GetFlow)
				})
			}

			if h.Expense != nil {
				pr.Route("/expenses", func(er chi.Router) {
					er.Post("/", h.Expense.CreateExpense)
					er.Get("/", h.Expense.ListExpenses)
					er.Get("/{id}", h.Expense.GetExpense)
					er.Post("/{id}/submit", h.Expense.SubmitExpense)
					er.Get("/{id}/approvals", h.Expense.ListApprovals)
					er.Post("/{id}/approvals/{approvalID}/decision", h.Expense.RecordDecision)
				})
				pr.Get("/approvals/pending", h.Expense.Inbox)
			}
		})
	})
}
