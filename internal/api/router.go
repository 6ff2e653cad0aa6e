// Package api assembles the HTTP handler tree served by cmd/api.
package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/api/handlers"
	"github.com/dvloznov/grocery-tracker/internal/api/middleware"
	"github.com/dvloznov/grocery-tracker/internal/blob"
	"github.com/dvloznov/grocery-tracker/internal/housekeeping"
	"github.com/dvloznov/grocery-tracker/internal/jobs"
	"github.com/dvloznov/grocery-tracker/internal/metrics"
	"github.com/dvloznov/grocery-tracker/internal/nutrition"
	"github.com/dvloznov/grocery-tracker/internal/receipts"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// Deps are the services the routes are served from.
type Deps struct {
	Store        storage.Store
	Receipts     *receipts.Service
	Housekeeping *housekeeping.Service
	Nutrition    *nutrition.Service
	Jobs         jobs.JobStore
	Blobs        blob.Store

	// UploadPrefix is the key prefix for uploaded images.
	UploadPrefix   string
	MaxUploadBytes int64

	// UploadsDir, when set, is served read-only under /uploads/.
	UploadsDir string

	// Metrics is optional; when nil neither /metrics nor request metrics are served.
	Metrics *metrics.Metrics

	CORSOrigins []string
}

// NewRouter registers every route and wraps the mux in the middleware chain.
func NewRouter(d Deps, log zerolog.Logger) http.Handler {
	system := handlers.NewSystemHandler(d.Store, log)
	receiptsHandler := handlers.NewReceiptsHandler(d.Receipts, log)
	budgets := handlers.NewBudgetsHandler(d.Store, log)
	households := handlers.NewHouseholdsHandler(d.Store, log)
	uploads := handlers.NewUploadsHandler(d.Blobs, d.UploadPrefix, d.MaxUploadBytes, log)
	creditLogs := handlers.NewCreditLogsHandler(d.Store, log)
	nutritionFacts := handlers.NewNutritionFactsHandler(d.Store, log)
	recipes := handlers.NewRecipesHandler(d.Store, log)
	jobsHandler := handlers.NewJobsHandler(d.Jobs, log)
	functions := handlers.NewFunctionsHandler(d.Housekeeping, d.Nutrition, d.Receipts, log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/{$}", system.Banner)
	mux.HandleFunc("GET /api/health", system.Health)

	// Receipts endpoints
	mux.HandleFunc("POST /api/receipts", receiptsHandler.CreateReceipt)
	mux.HandleFunc("GET /api/receipts", receiptsHandler.ListReceipts)
	mux.HandleFunc("GET /api/receipts/{id}", receiptsHandler.GetReceipt)
	mux.HandleFunc("PUT /api/receipts/{id}", receiptsHandler.UpdateReceipt)
	mux.HandleFunc("DELETE /api/receipts/{id}", receiptsHandler.DeleteReceipt)
	mux.HandleFunc("POST /api/receipts/{id}/reprocess", receiptsHandler.ReprocessReceipt)

	// Budgets endpoints
	mux.HandleFunc("POST /api/budgets", budgets.CreateBudget)
	mux.HandleFunc("GET /api/budgets", budgets.ListBudgets)
	mux.HandleFunc("GET /api/budgets/{id}", budgets.GetBudget)
	mux.HandleFunc("PUT /api/budgets/{id}", budgets.UpdateBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", budgets.DeleteBudget)

	// Households endpoints
	mux.HandleFunc("POST /api/households", households.CreateHousehold)
	mux.HandleFunc("GET /api/households", households.ListHouseholds)
	mux.HandleFunc("GET /api/households/{id}", households.GetHousehold)

	mux.HandleFunc("POST /api/upload", uploads.UploadFile)

	mux.HandleFunc("POST /api/credit-logs", creditLogs.CreateCreditLog)
	mux.HandleFunc("GET /api/credit-logs", creditLogs.ListCreditLogs)
	mux.HandleFunc("GET /api/nutrition-facts", nutritionFacts.ListNutritionFacts)
	mux.HandleFunc("POST /api/recipes", recipes.CreateRecipe)
	mux.HandleFunc("GET /api/recipes", recipes.ListRecipes)

	// Jobs endpoints
	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)

	// Functions endpoints
	mux.HandleFunc("POST /api/functions/{name}", functions.Invoke)
	mux.HandleFunc("GET /api/functions/{name}", functions.Query)

	if d.UploadsDir != "" {
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.UploadsDir))))
	}

	var handler http.Handler = mux
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
		handler = middleware.Metrics(d.Metrics)(handler)
	}

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(d.CORSOrigins)(handler),
			),
		),
	)
}
