package enhance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// Generator produces raw model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator calls the Gemini API through google.golang.org/genai.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a client. An empty apiKey lets the SDK read
// GOOGLE_API_KEY / GEMINI_API_KEY from the environment.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if model == "" {
		model = DefaultModelName
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", classifyGenAI(err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response from model: %w", domain.ErrMalformedResponse)
	}
	return text, nil
}

// classifyGenAI maps SDK failures onto the domain error kinds.
func classifyGenAI(err error) error {
	code, msg := 0, ""
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, msg = apiErr.Code, apiErr.Message
	case errors.As(err, &apiErrPtr):
		code, msg = apiErrPtr.Code, apiErrPtr.Message
	default:
		return fmt.Errorf("gemini: %w: %v", domain.ErrNetwork, err)
	}

	switch {
	case code == 401 || code == 403:
		return fmt.Errorf("gemini: %s: %w", msg, domain.ErrAuth)
	case code == 400 && strings.Contains(strings.ToLower(msg), "api key"):
		return fmt.Errorf("gemini: %s: %w", msg, domain.ErrAuth)
	case code == 429 || code >= 500:
		return fmt.Errorf("gemini: status %d: %s: %w", code, msg, domain.ErrNetwork)
	default:
		return fmt.Errorf("gemini: status %d: %s: %w", code, msg, domain.ErrMalformedResponse)
	}
}
