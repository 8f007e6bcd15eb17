package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency of submit / decide including lock wait and the transaction
	OperationDuration *prometheus.HistogramVec

	// Time spent waiting for the per-expense lock
	LockWait prometheus.Histogram

	// Decisions recorded by outcome (APPROVED, REJECTED)
	Decisions *prometheus.CounterVec

	// Terminal verdicts reached by expenses
	Verdicts *prometheus.CounterVec

	// Engine failures by error code (NO_MATCHING_FLOW, INVALID_STATE, ...)
	EngineErrors *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// unregistered local registry when the caller does not expose metrics
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		OperationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "expense_approval_operation_duration_seconds",
			Help:    "Latency of approval engine operations.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation", "result"}),

		LockWait: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "expense_approval_lock_wait_seconds",
			Help:    "Time spent acquiring the per-expense lock.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),

		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "expense_approval_decisions_total",
			Help: "Approval decisions recorded by outcome.",
		}, []string{"outcome"}),

		Verdicts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "expense_approval_verdicts_total",
			Help: "Expenses that reached a terminal status.",
		}, []string{"status"}),

		EngineErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "expense_approval_engine_errors_total",
			Help: "Approval engine failures by error code.",
		}, []string{"code"}),
	}
}

// ObserveOperation records latency and, for AppErrors, the error code.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		code := "INTERNAL_ERROR"
		var appErr *internal.AppError
		if errors.As(err, &appErr) {
			code = string(appErr.Code)
		}
		m.EngineErrors.WithLabelValues(code).Inc()
	}
	m.OperationDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}

// Subscribe counts decisions and verdicts from the event stream.
func (m *Metrics) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeDecisionRecorded, func(_ context.Context, e events.Event) error {
		if d, ok := e.(*events.DecisionRecordedEvent); ok {
			m.Decisions.WithLabelValues(d.Outcome).Inc()
		}
		return nil
	})

	countVerdict := func(_ context.Context, e events.Event) error {
		if d, ok := e.(*events.ExpenseDecidedEvent); ok {
			m.Verdicts.WithLabelValues(d.Status).Inc()
		}
		return nil
	}
	bus.Subscribe(events.EventTypeExpenseApproved, countVerdict)
	bus.Subscribe(events.EventTypeExpenseRejected, countVerdict)
}
