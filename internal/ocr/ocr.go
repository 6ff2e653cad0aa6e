// Package ocr extracts text lines from receipt images with AWS Textract.
package ocr

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// textractAPI is the subset of *textract.Client the extractor uses.
type textractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// ImageSource loads image bytes for a reference.
type ImageSource interface {
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Extractor runs OCR over receipt images.
type Extractor struct {
	client      textractAPI
	images      ImageSource
	concurrency int
	log         zerolog.Logger
}

// NewTextractClient builds the SDK client from a resolved AWS config.
func NewTextractClient(cfg sdkaws.Config) *textract.Client {
	return textract.NewFromConfig(cfg)
}

func NewExtractor(client textractAPI, images ImageSource, concurrency int, log zerolog.Logger) *Extractor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Extractor{client: client, images: images, concurrency: concurrency, log: log}
}

// Extract runs OCR on every image concurrently. The result has one entry per
// reference, in input order, and a failing image never aborts the others.
//
// The returned error is non-nil only when there were no references or every
// image failed; its kind follows the most severe per-image failure. The result
// is returned even then so callers can keep it for diagnostics.
func (e *Extractor) Extract(ctx context.Context, refs []string) (*domain.OCRResult, error) {
	result := &domain.OCRResult{
		TotalImages: len(refs),
		Results:     make([]domain.OCRImageResult, len(refs)),
	}
	if len(refs) == 0 {
		return result, fmt.Errorf("%w: no receipt images to process", domain.ErrValidation)
	}

	errs := make([]error, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			lines, confidence, err := e.extractOne(gctx, ref)
			if err != nil {
				e.log.Warn().Err(err).Str("image_url", ref).Msg("OCR failed for image")
				errs[i] = err
				result.Results[i] = domain.OCRImageResult{
					ImageURL: ref,
					Status:   domain.OCRStatusError,
					Error:    err.Error(),
				}
				return nil
			}
			result.Results[i] = domain.OCRImageResult{
				ImageURL:   ref,
				Status:     domain.OCRStatusSuccess,
				Lines:      lines,
				Confidence: confidence,
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if result.Succeeded() == 0 {
		return result, fmt.Errorf("OCR failed for all %d images: %w", len(refs), worst(errs))
	}
	return result, nil
}

func (e *Extractor) extractOne(ctx context.Context, ref string) ([]domain.OCRLine, float64, error) {
	data, err := e.images.Get(ctx, ref)
	if err != nil {
		return nil, 0, fmt.Errorf("load image: %w", err)
	}

	out, err := e.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return nil, 0, classify(err)
	}

	var lines []domain.OCRLine
	var total float64
	for _, b := range out.Blocks {
		if b.BlockType != types.BlockTypeLine || b.Text == nil {
			continue
		}
		conf := float64(sdkaws.ToFloat32(b.Confidence))
		lines = append(lines, domain.OCRLine{Text: *b.Text, Confidence: conf})
		total += conf
	}
	if len(lines) == 0 {
		return nil, 0, fmt.Errorf("no text detected: %w", domain.ErrMalformedResponse)
	}
	return lines, total / float64(len(lines)), nil
}

// classify maps Textract failures onto the domain error kinds.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException", "InvalidSignatureException",
			"ExpiredTokenException", "MissingAuthenticationTokenException":
			return fmt.Errorf("textract %s: %w", apiErr.ErrorCode(), domain.ErrAuth)
		case "InvalidParameterException", "UnsupportedDocumentException", "BadDocumentException",
			"DocumentTooLargeException":
			return fmt.Errorf("textract %s: %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), domain.ErrMalformedResponse)
		}
		return fmt.Errorf("textract %s: %w", apiErr.ErrorCode(), domain.ErrNetwork)
	}
	return fmt.Errorf("textract: %w: %v", domain.ErrNetwork, err)
}

// worst picks the error that best explains a total failure: auth problems
// first, then transient ones, else the first error seen.
func worst(errs []error) error {
	var first, network error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, domain.ErrAuth) {
			return err
		}
		if network == nil && errors.Is(err, domain.ErrNetwork) {
			network = err
		}
		if first == nil {
			first = err
		}
	}
	if network != nil {
		return network
	}
	return first
}
