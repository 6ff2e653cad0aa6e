package enhance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// AnalyzeFeedback summarizes a batch of OCR quality logs. Without a model the
// summary is computed locally from error frequencies.
func (e *Enhancer) AnalyzeFeedback(ctx context.Context, logs []*domain.OCRQualityLog) (*domain.FeedbackAnalysis, error) {
	if len(logs) == 0 {
		return nil, fmt.Errorf("analyze feedback: no quality logs: %w", domain.ErrValidation)
	}
	if e.gen == nil {
		return summarizeLocally(logs), nil
	}

	text, err := e.generate(ctx, buildFeedbackPrompt(logs))
	if err != nil {
		return nil, fmt.Errorf("analyze feedback: %w", err)
	}

	raw, err := decodeModelOutput(text)
	if err != nil {
		return nil, fmt.Errorf("analyze feedback: %v: %w", err, domain.ErrMalformedResponse)
	}

	summary, err := getStringField(raw, "summary", true)
	if err != nil {
		return nil, fmt.Errorf("analyze feedback: %v: %w", err, domain.ErrMalformedResponse)
	}
	analysis := &domain.FeedbackAnalysis{
		Summary:         summary,
		CommonErrors:    stringList(raw["common_errors"]),
		Recommendations: stringList(raw["recommendations"]),
		LogsAnalyzed:    len(logs),
	}
	e.log.Info().Int("logs", len(logs)).Msg("feedback analyzed")
	return analysis, nil
}

func stringList(v interface{}) []string {
	out := []string{}
	list, _ := v.([]interface{})
	for _, entry := range list {
		if s, ok := entry.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// summarizeLocally ranks error types and origins by frequency.
func summarizeLocally(logs []*domain.OCRQualityLog) *domain.FeedbackAnalysis {
	types := map[string]int{}
	origins := map[string]int{}
	critical := 0
	for _, l := range logs {
		types[orUnknown(l.ErrorType)]++
		origins[orUnknown(l.ErrorOrigin)]++
		if l.IsCriticalError {
			critical++
		}
	}

	common := []string{}
	for _, kv := range ranked(types) {
		common = append(common, fmt.Sprintf("%s (%d)", kv.key, kv.n))
	}
	recs := []string{}
	for _, kv := range ranked(origins) {
		recs = append(recs, fmt.Sprintf("Review %s handling: %d reported issues", kv.key, kv.n))
	}

	return &domain.FeedbackAnalysis{
		Summary: fmt.Sprintf("%d issues across %d error types, %d critical",
			len(logs), len(types), critical),
		CommonErrors:    common,
		Recommendations: recs,
		LogsAnalyzed:    len(logs),
	}
}

type count struct {
	key string
	n   int
}

func ranked(m map[string]int) []count {
	out := make([]count, 0, len(m))
	for k, n := range m {
		out = append(out, count{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
