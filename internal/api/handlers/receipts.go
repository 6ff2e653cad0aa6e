package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/api/middleware"
	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/receipts"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// ReceiptsHandler handles receipt endpoints.
type ReceiptsHandler struct {
	svc *receipts.Service
	log zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(svc *receipts.Service, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{svc: svc, log: log}
}

// CreateReceipt handles POST /api/receipts. The job ID of an enqueued
// pipeline run is returned in the X-Job-ID header.
func (h *ReceiptsHandler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var receipt domain.Receipt
	if err := middleware.DecodeJSON(w, r, &receipt); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	out, err := h.svc.Create(r.Context(), &receipt)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	if out.JobID != "" {
		w.Header().Set("X-Job-ID", out.JobID)
	}
	middleware.WriteJSON(w, http.StatusCreated, out.Receipt)
}

// ListReceipts handles GET /api/receipts
func (h *ReceiptsHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.ReceiptFilter{
		HouseholdID: query.Get("household_id"),
		UserEmail:   query.Get("user_email"),
		Status:      domain.ValidationStatus(query.Get("validation_status")),
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", receipts.DefaultListLimit); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	list, err := h.svc.List(r.Context(), filter)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Receipt{}
	}
	middleware.WriteJSON(w, http.StatusOK, list)
}

// GetReceipt handles GET /api/receipts/{id}
func (h *ReceiptsHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, receipt)
}

// UpdateReceipt handles PUT /api/receipts/{id}. Fields absent from the body
// keep their stored values.
func (h *ReceiptsHandler) UpdateReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, err := h.svc.Update(r.Context(), id, func(receipt *domain.Receipt) error {
		return middleware.DecodeJSON(w, r, receipt)
	})
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Receipt updated",
	})
}

// DeleteReceipt handles DELETE /api/receipts/{id}
func (h *ReceiptsHandler) DeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Receipt deleted",
	})
}

// ReprocessReceipt handles POST /api/receipts/{id}/reprocess[?force=true]
func (h *ReceiptsHandler) ReprocessReceipt(w http.ResponseWriter, r *http.Request) {
	force, err := queryBool(r, "force")
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	res, err := h.svc.Reprocess(r.Context(), r.PathValue("id"), force != nil && *force)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, res)
}
