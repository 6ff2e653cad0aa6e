package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/api/middleware"
	"github.com/dvloznov/grocery-tracker/internal/housekeeping"
	"github.com/dvloznov/grocery-tracker/internal/nutrition"
	"github.com/dvloznov/grocery-tracker/internal/receipts"
)

// function is one RPC entry point. It decodes its own arguments from r.
type function func(w http.ResponseWriter, r *http.Request) (interface{}, error)

// FunctionsHandler dispatches the RPC functions under /api/functions/{name}.
type FunctionsHandler struct {
	hk        *housekeeping.Service
	nutrition *nutrition.Service
	receipts  *receipts.Service
	log       zerolog.Logger

	post map[string]function
	get  map[string]function
}

// NewFunctionsHandler creates a new functions handler.
func NewFunctionsHandler(hk *housekeeping.Service, nutritionSvc *nutrition.Service, receiptSvc *receipts.Service, log zerolog.Logger) *FunctionsHandler {
	h := &FunctionsHandler{
		hk:        hk,
		nutrition: nutritionSvc,
		receipts:  receiptSvc,
		log:       log,
	}
	h.post = map[string]function{
		"sendInvitation":               h.sendInvitation,
		"deleteUserAccount":            h.deleteUserAccount,
		"getComprehensiveCreditReport": h.creditReportFromBody,
		"generateModeledData":          h.generateModeledData,
		"createTestRun":                h.createTestRun,
		"submitOCRQualityFeedback":     h.submitOCRQualityFeedback,
		"analyzeOCRFeedbackBatch":      h.analyzeOCRFeedbackBatch,
		"rolloverBudget":               h.rolloverBudget,
		"assignHouseholdToOldReceipts": h.assignHouseholdToOldReceipts,
		"aggregateGroceryData":         h.aggregateGroceryData,
		"calorieNinjasNutrition":       h.calorieNinjasNutrition,
		"onsDataFetcher":               h.onsDataFetcher,
		"sendWelcomeEmail":             h.sendWelcomeEmail,
		"sendTestEmail":                h.sendTestEmail,
		"processReceiptInBackground":   h.processReceiptInBackground,
		"reprocessReceipt":             h.reprocessReceipt,
	}
	h.get = map[string]function{
		"onsDataFetcher":               h.onsDataFetcher,
		"getComprehensiveCreditReport": h.creditReportFromQuery,
	}
	return h
}

// Invoke handles POST /api/functions/{name}
func (h *FunctionsHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, h.post)
}

// Query handles GET /api/functions/{name} for the read-only functions.
func (h *FunctionsHandler) Query(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, h.get)
}

func (h *FunctionsHandler) dispatch(w http.ResponseWriter, r *http.Request, table map[string]function) {
	name := r.PathValue("name")
	fn, ok := table[name]
	if !ok {
		if _, exists := h.post[name]; exists {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		middleware.WriteError(w, http.StatusNotFound, "Unknown function: "+name)
		return
	}

	out, err := fn(w, r)
	if err != nil {
		middleware.WriteErr(w, r, err)
		return
	}
	h.log.Debug().Str("function", name).Msg("Function invoked")
	middleware.WriteJSON(w, http.StatusOK, out)
}

// decodeThen decodes the body into a fresh T and passes it to call.
func decodeThen[T any](call func(ctx context.Context, args T) (interface{}, error)) function {
	return func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
		var args T
		if err := middleware.DecodeJSON(w, r, &args); err != nil {
			return nil, err
		}
		return call(r.Context(), args)
	}
}

func (h *FunctionsHandler) sendInvitation(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, req housekeeping.InvitationRequest) (interface{}, error) {
		return h.hk.SendInvitation(ctx, req)
	})(w, r)
}

type accountArgs struct {
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email" validate:"required,email"`
}

func (h *FunctionsHandler) deleteUserAccount(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a accountArgs) (interface{}, error) {
		return h.hk.DeleteUserAccount(ctx, a.UserID, a.UserEmail)
	})(w, r)
}

type creditReportArgs struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (h *FunctionsHandler) creditReportFromBody(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a creditReportArgs) (interface{}, error) {
		return h.creditReport(ctx, a)
	})(w, r)
}

func (h *FunctionsHandler) creditReportFromQuery(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return h.creditReport(r.Context(), creditReportArgs{
		StartDate: r.URL.Query().Get("start_date"),
		EndDate:   r.URL.Query().Get("end_date"),
	})
}

func (h *FunctionsHandler) creditReport(ctx context.Context, a creditReportArgs) (interface{}, error) {
	from, err := parseInstant(a.StartDate, false)
	if err != nil {
		return nil, err
	}
	to, err := parseInstant(a.EndDate, true)
	if err != nil {
		return nil, err
	}
	return h.hk.CreditReport(ctx, from, to)
}

type modeledDataArgs struct {
	Action      string `json:"action" validate:"required"`
	UserEmail   string `json:"user_email" validate:"required,email"`
	HouseholdID string `json:"household_id"`
}

func (h *FunctionsHandler) generateModeledData(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a modeledDataArgs) (interface{}, error) {
		return h.hk.GenerateModeledData(ctx, a.Action, a.UserEmail, a.HouseholdID)
	})(w, r)
}

type testRunArgs struct {
	Name           string `json:"name" validate:"required"`
	Description    string `json:"description"`
	CreatedByEmail string `json:"created_by_email" validate:"omitempty,email"`
}

func (h *FunctionsHandler) createTestRun(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a testRunArgs) (interface{}, error) {
		return h.hk.CreateTestRun(ctx, a.Name, a.Description, a.CreatedByEmail)
	})(w, r)
}

func (h *FunctionsHandler) submitOCRQualityFeedback(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, sub housekeeping.FeedbackSubmission) (interface{}, error) {
		return h.hk.SubmitOCRQualityFeedback(ctx, sub)
	})(w, r)
}

type testRunRef struct {
	TestRunID string `json:"test_run_id" validate:"required"`
}

func (h *FunctionsHandler) analyzeOCRFeedbackBatch(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a testRunRef) (interface{}, error) {
		return h.hk.AnalyzeOCRFeedbackBatch(ctx, a.TestRunID)
	})(w, r)
}

type rolloverArgs struct {
	HouseholdID string `json:"household_id" validate:"required"`
	UserEmail   string `json:"user_email" validate:"omitempty,email"`
}

func (h *FunctionsHandler) rolloverBudget(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a rolloverArgs) (interface{}, error) {
		return h.hk.RolloverBudget(ctx, a.HouseholdID, a.UserEmail)
	})(w, r)
}

type assignArgs struct {
	UserEmail   string `json:"user_email" validate:"required,email"`
	HouseholdID string `json:"household_id" validate:"required"`
}

func (h *FunctionsHandler) assignHouseholdToOldReceipts(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a assignArgs) (interface{}, error) {
		return h.hk.AssignHouseholdToOldReceipts(ctx, a.UserEmail, a.HouseholdID)
	})(w, r)
}

// aggregateGroceryData takes no arguments; any body is ignored.
func (h *FunctionsHandler) aggregateGroceryData(_ http.ResponseWriter, r *http.Request) (interface{}, error) {
	return h.hk.AggregateGroceryData(r.Context())
}

type nutritionArgs struct {
	CanonicalName string `json:"canonical_name" validate:"required"`
	HouseholdID   string `json:"household_id" validate:"required"`
	UserEmail     string `json:"user_email"`
}

func (h *FunctionsHandler) calorieNinjasNutrition(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a nutritionArgs) (interface{}, error) {
		return h.nutrition.Nutrition(ctx, a.CanonicalName, a.HouseholdID, a.UserEmail)
	})(w, r)
}

func (h *FunctionsHandler) onsDataFetcher(http.ResponseWriter, *http.Request) (interface{}, error) {
	return map[string]interface{}{
		"status": housekeeping.StatusSuccess,
		"data":   housekeeping.ONSInflation(),
	}, nil
}

type welcomeArgs struct {
	UserEmail string `json:"user_email" validate:"required,email"`
	UserName  string `json:"user_name"`
}

func (h *FunctionsHandler) sendWelcomeEmail(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a welcomeArgs) (interface{}, error) {
		return h.hk.SendWelcomeEmail(ctx, a.UserEmail, a.UserName), nil
	})(w, r)
}

type testEmailArgs struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *FunctionsHandler) sendTestEmail(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a testEmailArgs) (interface{}, error) {
		return h.hk.SendTestEmail(ctx, a.To, a.Subject, a.Body), nil
	})(w, r)
}

type receiptRef struct {
	ReceiptID string `json:"receipt_id" validate:"required"`
}

func (h *FunctionsHandler) processReceiptInBackground(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a receiptRef) (interface{}, error) {
		jobID, err := h.receipts.ProcessInBackground(ctx, a.ReceiptID)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"status":     housekeeping.StatusSuccess,
			"receipt_id": a.ReceiptID,
			"job_id":     jobID,
		}, nil
	})(w, r)
}

type reprocessArgs struct {
	ReceiptID string `json:"receipt_id" validate:"required"`
	Force     bool   `json:"force"`
}

func (h *FunctionsHandler) reprocessReceipt(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return decodeThen(func(ctx context.Context, a reprocessArgs) (interface{}, error) {
		return h.receipts.Reprocess(ctx, a.ReceiptID, a.Force)
	})(w, r)
}
