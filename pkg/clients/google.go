package clients

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms/googleai"
)

// Default fallback chain for planning and reflection calls: strongest model
// first, cheaper models as overload fallbacks.
var DefaultPlannerModels = []string{
	"gemini-3-pro-preview",
	"gemini-3-flash-preview",
	"gemini-2.5-flash",
}

// GoogleAI builds a langchaingo client pinned to the given Gemini model.
// The signature matches discovery.ModelFactory.
func GoogleAI(model string) (*googleai.GoogleAI, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is not set")
	}

	llm, err := googleai.New(context.Background(),
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model))
	if err != nil {
		return nil, fmt.Errorf("init googleai model %s: %w", model, err)
	}
	return llm, nil
}
