package domain

import "time"

// TestRun statuses.
const (
	TestRunPendingReceipts = "pending_receipts"
	TestRunAnalyzed        = "analyzed"
)

// DefaultTestRunVersion is the version stamped on new test runs.
const DefaultTestRunVersion = "1.0"

// TestRun groups receipts under OCR quality review.
type TestRun struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Description          string            `json:"description"`
	Version              string            `json:"version"`
	ParentTestRunID      string            `json:"parent_test_run_id,omitempty"`
	Status               string            `json:"status"`
	ReceiptIDs           []string          `json:"receipt_ids"`
	TotalReceipts        int               `json:"total_receipts"`
	TotalItems           int               `json:"total_items"`
	ReviewedReceipts     int               `json:"reviewed_receipts"`
	BatchAnalysisSummary *FeedbackAnalysis `json:"batch_analysis_summary,omitempty"`
	AnalysisError        string            `json:"analysis_error,omitempty"`
	CreatedByEmail       string            `json:"created_by_email"`
	CreatedDate          time.Time         `json:"created_date"`
	UpdatedDate          time.Time         `json:"updated_date"`
}

// OCRQualityLog is one reviewer-identified discrepancy between OCR output and the real receipt.
type OCRQualityLog struct {
	ID                    string    `json:"id"`
	TestRunID             string    `json:"test_run_id"`
	ReceiptID             string    `json:"receipt_id"`
	ItemIndex             *int      `json:"item_index,omitempty"`
	ErrorOrigin           string    `json:"error_origin"`
	ErrorType             string    `json:"error_type"`
	OriginalValue         string    `json:"original_value"`
	CorrectedValue        string    `json:"corrected_value"`
	Comment               string    `json:"comment,omitempty"`
	IsCriticalError       bool      `json:"is_critical_error"`
	ReceiptQuality        string    `json:"receipt_quality"`
	ReceiptLengthCategory string    `json:"receipt_length_category"`
	StoreName             string    `json:"store_name"`
	ReviewerID            string    `json:"reviewer_id"`
	ReviewerEmail         string    `json:"reviewer_email"`
	Timestamp             time.Time `json:"timestamp"`
}

// FeedbackAnalysis is the LLM summary of a test run's accumulated quality logs.
type FeedbackAnalysis struct {
	Summary         string   `json:"summary"`
	CommonErrors    []string `json:"common_errors"`
	Recommendations []string `json:"recommendations"`
	LogsAnalyzed    int      `json:"logs_analyzed"`
}
