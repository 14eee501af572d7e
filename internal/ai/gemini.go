// Gemini implementation of [ModelClient]
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/groupmix/smartsort/internal/shared"
	"google.golang.org/genai"
)

// GeminiClient implements [ModelClient] over the Google GenAI API.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a Gemini-backed model client.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing GenAI api_key", shared.ErrMissingCredentials)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client}, nil
}

// Generate runs one prompt against the named Gemini model. Temperature is
// pinned to zero and the response is requested as JSON so permutation
// output stays parseable.
func (g *GeminiClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0),
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return "", classifyError(err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty model response", shared.ErrModelResponseInvalid)
	}
	return text, nil
}

// classifyError maps GenAI API failures onto the engine's sentinels so
// the verifier can tell a backoff-worthy error from a terminal one.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return fmt.Errorf("%w: %v", shared.ErrUpstreamRateLimit, err)
		case 403:
			return fmt.Errorf("%w: %v", shared.ErrUpstreamQuota, err)
		}
	}
	return fmt.Errorf("model request failed: %w", err)
}
