package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/api/middleware"
	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// CreditLogsHandler handles the credit ledger endpoints.
type CreditLogsHandler struct {
	store storage.CreditLogStore
	log   zerolog.Logger
}

func NewCreditLogsHandler(store storage.CreditLogStore, log zerolog.Logger) *CreditLogsHandler {
	return &CreditLogsHandler{store: store, log: log}
}

type createCreditLogRequest struct {
	UserID          string     `json:"user_id"`
	UserEmail       string     `json:"user_email" validate:"omitempty,email"`
	HouseholdID     string     `json:"household_id"`
	EventType       string     `json:"event_type" validate:"required"`
	CreditsConsumed int64      `json:"credits_consumed" validate:"gte=0"`
	ReferenceID     string     `json:"reference_id"`
	Timestamp       *time.Time `json:"timestamp"`
}

// CreateCreditLog handles POST /api/credit-logs
func (h *CreditLogsHandler) CreateCreditLog(w http.ResponseWriter, r *http.Request) {
	var req createCreditLogRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	entry := &domain.CreditLog{
		UserID:          req.UserID,
		UserEmail:       req.UserEmail,
		HouseholdID:     req.HouseholdID,
		EventType:       req.EventType,
		CreditsConsumed: req.CreditsConsumed,
		ReferenceID:     req.ReferenceID,
	}
	if req.Timestamp != nil {
		entry.Timestamp = req.Timestamp.UTC()
	}
	if err := h.store.CreateCreditLog(r.Context(), entry); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, entry)
}

// ListCreditLogs handles GET /api/credit-logs
func (h *CreditLogsHandler) ListCreditLogs(w http.ResponseWriter, r *http.Request) {
	filter := storage.CreditLogFilter{
		HouseholdID: r.URL.Query().Get("household_id"),
		UserEmail:   r.URL.Query().Get("user_email"),
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", defaultLedgerLimit); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	logs, err := h.store.ListCreditLogs(r.Context(), filter)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	if logs == nil {
		logs = []*domain.CreditLog{}
	}
	middleware.WriteJSON(w, http.StatusOK, logs)
}

// NutritionFactsHandler lists cached nutrition facts.
type NutritionFactsHandler struct {
	store storage.NutritionStore
	log   zerolog.Logger
}

func NewNutritionFactsHandler(store storage.NutritionStore, log zerolog.Logger) *NutritionFactsHandler {
	return &NutritionFactsHandler{store: store, log: log}
}

// ListNutritionFacts handles GET /api/nutrition-facts
func (h *NutritionFactsHandler) ListNutritionFacts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLedgerLimit)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	facts, err := h.store.ListNutritionFacts(r.Context(), r.URL.Query().Get("household_id"), limit)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	if facts == nil {
		facts = []*domain.NutritionFact{}
	}
	middleware.WriteJSON(w, http.StatusOK, facts)
}

// RecipesHandler handles recipe endpoints.
type RecipesHandler struct {
	store storage.CatalogStore
	log   zerolog.Logger
}

func NewRecipesHandler(store storage.CatalogStore, log zerolog.Logger) *RecipesHandler {
	return &RecipesHandler{store: store, log: log}
}

type createRecipeRequest struct {
	Title           string            `json:"title" validate:"required"`
	Description     string            `json:"description"`
	Ingredients     []json.RawMessage `json:"ingredients"`
	Servings        *int              `json:"servings" validate:"omitempty,gt=0"`
	PrepTimeMinutes *int              `json:"prep_time_minutes" validate:"omitempty,gte=0"`
	CookTimeMinutes *int              `json:"cook_time_minutes" validate:"omitempty,gte=0"`
	Tags            []string          `json:"tags"`
	Allergens       []string          `json:"allergens"`
	ImageURL        string            `json:"image_url" validate:"omitempty,url"`
	SourceURL       string            `json:"source_url" validate:"omitempty,url"`
	ExternalID      string            `json:"external_id"`
	IsCurated       bool              `json:"is_curated"`
	Canonicalized   bool              `json:"canonicalized"`
}

// CreateRecipe handles POST /api/recipes
func (h *RecipesHandler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req createRecipeRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	recipe := &domain.Recipe{
		Title:           req.Title,
		Description:     req.Description,
		Ingredients:     req.Ingredients,
		Servings:        req.Servings,
		PrepTimeMinutes: req.PrepTimeMinutes,
		CookTimeMinutes: req.CookTimeMinutes,
		Tags:            orEmpty(req.Tags),
		Allergens:       orEmpty(req.Allergens),
		ImageURL:        req.ImageURL,
		SourceURL:       req.SourceURL,
		ExternalID:      req.ExternalID,
		IsCurated:       req.IsCurated,
		Canonicalized:   req.Canonicalized,
	}
	if recipe.Ingredients == nil {
		recipe.Ingredients = []json.RawMessage{}
	}
	if err := h.store.CreateRecipe(r.Context(), recipe); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, recipe)
}

// ListRecipes handles GET /api/recipes
func (h *RecipesHandler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	recipes, err := h.store.ListRecipes(r.Context(), limit)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	if recipes == nil {
		recipes = []*domain.Recipe{}
	}
	middleware.WriteJSON(w, http.StatusOK, recipes)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
