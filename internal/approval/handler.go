package approval

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/pkg/logger"
)

type ServiceAPI interface {
	CreateRule(ctx context.Context, actorID int64, dto CreateRuleDTO) (*Rule, error)
	ListRules(ctx context.Context, actorID int64) ([]*Rule, error)
	CreateFlow(ctx context.Context, actorID int64, dto CreateFlowDTO) (*Flow, error)
	ListFlows(ctx context.Context, actorID int64) ([]*Flow, error)
	GetFlow(ctx context.Context, actorID, flowID int64) (*Flow, error)
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

// CreateRule handles POST /rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}

	var dto CreateRuleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateRule: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := h.Service.CreateRule(r.Context(), actorID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, NewRuleResponse(rule))
}

// ListRules handles GET /rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}

	rules, err := h.Service.ListRules(r.Context(), actorID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	resp := make([]*RuleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, NewRuleResponse(rule))
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"rules": resp})
}

// CreateFlow handles POST /flows
func (h *Handler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}

	var dto CreateFlowDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateFlow: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flow, err := h.Service.CreateFlow(r.Context(), actorID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, NewFlowResponse(flow))
}

// ListFlows handles GET /flows
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}

	flows, err := h.Service.ListFlows(r.Context(), actorID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	resp := make([]*FlowResponse, 0, len(flows))
	for _, f := range flows {
		resp = append(resp, NewFlowResponse(f))
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"flows": resp})
}

// GetFlow handles GET /flows/{id}
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrMissingActor)
		return
	}

	flowID, err := h.PathInt64(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	flow, err := h.Service.GetFlow(r.Context(), actorID, flowID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewFlowResponse(flow))
}
