package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/api/middleware"
	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// HouseholdsHandler handles household endpoints.
type HouseholdsHandler struct {
	store storage.HouseholdStore
	log   zerolog.Logger
}

// NewHouseholdsHandler creates a new households handler.
func NewHouseholdsHandler(store storage.HouseholdStore, log zerolog.Logger) *HouseholdsHandler {
	return &HouseholdsHandler{store: store, log: log}
}

type createHouseholdRequest struct {
	Name    string `json:"name" validate:"required"`
	AdminID string `json:"admin_id"`
}

// CreateHousehold handles POST /api/households
func (h *HouseholdsHandler) CreateHousehold(w http.ResponseWriter, r *http.Request) {
	var req createHouseholdRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	household := &domain.Household{Name: req.Name, AdminID: req.AdminID}
	if err := h.store.CreateHousehold(r.Context(), household); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	h.log.Info().Str("household_id", household.ID).Msg("Household created")
	middleware.WriteJSON(w, http.StatusCreated, household)
}

// ListHouseholds handles GET /api/households
func (h *HouseholdsHandler) ListHouseholds(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	households, err := h.store.ListHouseholds(r.Context(), limit)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	if households == nil {
		households = []*domain.Household{}
	}
	middleware.WriteJSON(w, http.StatusOK, households)
}

// GetHousehold handles GET /api/households/{id}
func (h *HouseholdsHandler) GetHousehold(w http.ResponseWriter, r *http.Request) {
	household, err := h.store.GetHousehold(r.Context(), r.PathValue("id"))
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, household)
}
