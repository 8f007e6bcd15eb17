package expense

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/pkg/logger"
)

type ServiceAPI interface {
	CreateDraft(ctx context.Context, actorID int64, dto CreateExpenseDTO) (*Workflow, error)
	Submit(ctx context.Context, actorID, expenseID int64) (*Workflow, error)
	RecordDecision(ctx context.Context, actorID, expenseID, approvalID int64, dto DecisionDTO) (*Workflow, error)
	GetExpense(ctx context.Context, actorID, expenseID int64) (*Workflow, error)
	ListApprovals(ctx context.Context, actorID, expenseID int64) ([]*Approval, error)
	ListMine(ctx context.Context, actorID int64, limit, offset int) ([]*Expense, error)
	PendingForApprover(ctx context.Context, actorID int64, limit, offset int) ([]InboxItem, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// CreateExpense handles POST /expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}

	var dto CreateExpenseDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateExpense: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wf, err := h.Service.CreateDraft(r.Context(), actorID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, NewExpenseResponse(wf))
}

// ListExpenses handles GET /expenses
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}

	limit, offset := pagination(r)
	expenses, err := h.Service.ListMine(r.Context(), actorID, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetExpense handles GET /expenses/{id}
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}
	expenseID, err := h.PathInt64(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	wf, err := h.Service.GetExpense(r.Context(), actorID, expenseID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewExpenseResponse(wf))
}

// SubmitExpense handles POST /expenses/{id}/submit
func (h *Handler) SubmitExpense(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}
	expenseID, err := h.PathInt64(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	wf, err := h.Service.Submit(r.Context(), actorID, expenseID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewExpenseResponse(wf))
}

// ListApprovals handles GET /expenses/{id}/approvals
func (h *Handler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}
	expenseID, err := h.PathInt64(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	approvals, err := h.Service.ListApprovals(r.Context(), actorID, expenseID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if approvals == nil {
		approvals = []*Approval{}
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"approvals": approvals})
}

// RecordDecision handles POST /expenses/{id}/approvals/{approvalID}/decision
func (h *Handler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}
	expenseID, err := h.PathInt64(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	approvalID, err := h.PathInt64(r, "approvalID")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto DecisionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("RecordDecision: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wf, err := h.Service.RecordDecision(r.Context(), actorID, expenseID, approvalID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewExpenseResponse(wf))
}

// Inbox handles GET /approvals/pending
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}

	limit, offset := pagination(r)
	items, err := h.Service.PendingForApprover(r.Context(), actorID, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if items == nil {
		items = []InboxItem{}
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"approvals": items})
}

// pagination reads limit/offset query params; bad values fall back to defaults.
func pagination(r *http.Request) (int, int) {
	limit, offset := defaultPageSize, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return page(limit, offset)
}
