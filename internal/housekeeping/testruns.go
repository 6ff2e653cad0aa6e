package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// qualityLogLimit caps how many logs one batch analysis reads.
const qualityLogLimit = 1000

// CreateTestRun starts a new OCR quality test run.
func (s *Service) CreateTestRun(ctx context.Context, name, description, createdBy string) (*domain.TestRun, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	tr := &domain.TestRun{
		Name:           name,
		Description:    description,
		Version:        domain.DefaultTestRunVersion,
		Status:         domain.TestRunPendingReceipts,
		ReceiptIDs:     []string{},
		CreatedByEmail: createdBy,
	}
	if err := s.store.CreateTestRun(ctx, tr); err != nil {
		return nil, fmt.Errorf("create test run: %w", err)
	}
	return tr, nil
}

// FeedbackItem is one reviewer-reported discrepancy.
type FeedbackItem struct {
	ItemIndex       *int   `json:"item_index"`
	ErrorOrigin     string `json:"error_origin" validate:"required"`
	ErrorType       string `json:"error_type" validate:"required"`
	OriginalValue   string `json:"original_value"`
	CorrectedValue  string `json:"corrected_value"`
	Comment         string `json:"comment"`
	IsCriticalError bool   `json:"is_critical_error"`
}

// FeedbackSubmission is the input of SubmitOCRQualityFeedback.
type FeedbackSubmission struct {
	TestRunID             string         `json:"test_run_id" validate:"required"`
	ReceiptID             string         `json:"receipt_id" validate:"required"`
	FeedbackItems         []FeedbackItem `json:"feedback_items" validate:"dive"`
	ReceiptQuality        string         `json:"receipt_quality"`
	ReceiptLengthCategory string         `json:"receipt_length_category"`
	StoreName             string         `json:"store_name"`
	ReviewerID            string         `json:"reviewer_id"`
	ReviewerEmail         string         `json:"reviewer_email"`
}

// SubmitOCRQualityFeedback stores one quality log per feedback item and
// counts the receipt as reviewed. The first submission for a receipt adds its
// line items to the run's item total.
func (s *Service) SubmitOCRQualityFeedback(ctx context.Context, sub FeedbackSubmission) (*StatusResult, error) {
	if _, err := s.store.GetTestRun(ctx, sub.TestRunID); err != nil {
		return nil, fmt.Errorf("load test run: %w", err)
	}
	items, err := s.receiptItemCount(ctx, sub.ReceiptID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	logs := make([]*domain.OCRQualityLog, 0, len(sub.FeedbackItems))
	for _, item := range sub.FeedbackItems {
		logs = append(logs, &domain.OCRQualityLog{
			TestRunID:             sub.TestRunID,
			ReceiptID:             sub.ReceiptID,
			ItemIndex:             item.ItemIndex,
			ErrorOrigin:           item.ErrorOrigin,
			ErrorType:             item.ErrorType,
			OriginalValue:         item.OriginalValue,
			CorrectedValue:        item.CorrectedValue,
			Comment:               item.Comment,
			IsCriticalError:       item.IsCriticalError,
			ReceiptQuality:        sub.ReceiptQuality,
			ReceiptLengthCategory: sub.ReceiptLengthCategory,
			StoreName:             sub.StoreName,
			ReviewerID:            sub.ReviewerID,
			ReviewerEmail:         sub.ReviewerEmail,
			Timestamp:             now,
		})
	}
	if err := s.store.CreateQualityLogs(ctx, logs); err != nil {
		return nil, fmt.Errorf("store quality logs: %w", err)
	}

	_, err = s.store.UpdateTestRun(ctx, sub.TestRunID, func(tr *domain.TestRun) error {
		tr.ReviewedReceipts++
		if !slices.Contains(tr.ReceiptIDs, sub.ReceiptID) {
			tr.ReceiptIDs = append(tr.ReceiptIDs, sub.ReceiptID)
			tr.TotalReceipts = len(tr.ReceiptIDs)
			tr.TotalItems += items
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update test run: %w", err)
	}
	return &StatusResult{Status: StatusSuccess, Message: "Feedback submitted"}, nil
}

// receiptItemCount returns how many line items the receipt has. Feedback may
// name a receipt that was deleted since; it counts as empty.
func (s *Service) receiptItemCount(ctx context.Context, receiptID string) (int, error) {
	r, err := s.store.GetReceipt(ctx, receiptID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("load receipt %s: %w", receiptID, err)
	}
	return len(r.Items), nil
}

// AnalyzeOCRFeedbackBatch summarizes the run's quality logs and stores the
// analysis on the run. Analyzer failures are recorded on the run and returned.
func (s *Service) AnalyzeOCRFeedbackBatch(ctx context.Context, testRunID string) (*domain.FeedbackAnalysis, error) {
	if _, err := s.store.GetTestRun(ctx, testRunID); err != nil {
		return nil, fmt.Errorf("load test run: %w", err)
	}
	logs, err := s.store.ListQualityLogs(ctx, testRunID, qualityLogLimit)
	if err != nil {
		return nil, fmt.Errorf("list quality logs: %w", err)
	}

	analysis, analyzeErr := s.analyzer.AnalyzeFeedback(ctx, logs)
	_, err = s.store.UpdateTestRun(ctx, testRunID, func(tr *domain.TestRun) error {
		if analyzeErr != nil {
			tr.AnalysisError = analyzeErr.Error()
			return nil
		}
		tr.BatchAnalysisSummary = analysis
		tr.AnalysisError = ""
		tr.Status = domain.TestRunAnalyzed
		return nil
	})
	if analyzeErr != nil {
		s.log.Error().Err(analyzeErr).Str("test_run_id", testRunID).Msg("feedback analysis failed")
		return nil, fmt.Errorf("analyze feedback: %w", analyzeErr)
	}
	if err != nil {
		return nil, fmt.Errorf("update test run: %w", err)
	}
	return analysis, nil
}
