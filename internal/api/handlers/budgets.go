package handlers

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/api/middleware"
	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// BudgetsHandler handles budget endpoints.
type BudgetsHandler struct {
	store storage.BudgetStore
	log   zerolog.Logger
}

// NewBudgetsHandler creates a new budgets handler.
func NewBudgetsHandler(store storage.BudgetStore, log zerolog.Logger) *BudgetsHandler {
	return &BudgetsHandler{store: store, log: log}
}

// CreateBudget handles POST /api/budgets. New budgets are active unless the
// body says otherwise.
func (h *BudgetsHandler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	budget := domain.Budget{IsActive: true}
	if err := middleware.DecodeJSON(w, r, &budget); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	budget.ID = ""
	budget.ApplyDefaults()
	if err := budget.Validate(); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	if err := h.store.CreateBudget(r.Context(), &budget); err != nil {
		middleware.WriteErr(w, r, fmt.Errorf("create budget: %w", err))
		return
	}

	h.log.Info().Str("budget_id", budget.ID).Str("household_id", budget.HouseholdID).Msg("Budget created")
	middleware.WriteJSON(w, http.StatusCreated, budget)
}

// ListBudgets handles GET /api/budgets
func (h *BudgetsHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	filter := storage.BudgetFilter{
		HouseholdID: r.URL.Query().Get("household_id"),
		UserEmail:   r.URL.Query().Get("user_email"),
	}

	var err error
	if filter.Active, err = queryBool(r, "is_active"); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit", defaultListLimit); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	budgets, err := h.store.ListBudgets(r.Context(), filter)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	if budgets == nil {
		budgets = []*domain.Budget{}
	}
	middleware.WriteJSON(w, http.StatusOK, budgets)
}

// GetBudget handles GET /api/budgets/{id}
func (h *BudgetsHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	budget, err := h.store.GetBudget(r.Context(), r.PathValue("id"))
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, budget)
}

// UpdateBudget handles PUT /api/budgets/{id}
func (h *BudgetsHandler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	budget, err := h.store.GetBudget(r.Context(), r.PathValue("id"))
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	id, created := budget.ID, budget.CreatedDate

	if err := middleware.DecodeJSON(w, r, budget); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	budget.ID, budget.CreatedDate = id, created
	if err := budget.Validate(); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	if err := h.store.SaveBudget(r.Context(), budget); err != nil {
		middleware.WriteErr(w, r, fmt.Errorf("save budget %s: %w", id, err))
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Budget updated",
	})
}

// DeleteBudget handles DELETE /api/budgets/{id}
func (h *BudgetsHandler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteBudget(r.Context(), r.PathValue("id")); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Budget deleted",
	})
}
