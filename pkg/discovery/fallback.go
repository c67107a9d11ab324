package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// ModelFactory builds an LLM client for a named model. Kept as a function so
// tests can substitute fakes without a live API key.
type ModelFactory func(model string) (llms.Model, error)

// ModelCascade wraps one logical generation call with an ordered list of
// models. Overload-class failures retry the current model, then advance down
// the list after a fixed backoff; any other error surfaces immediately. The
// attempt state is scoped to a single Generate call.
type ModelCascade struct {
	Models           []string
	Factory          ModelFactory
	Backoff          time.Duration
	AttemptsPerModel int
	Logger           *slog.Logger
}

func NewModelCascade(models []string, factory ModelFactory, logger *slog.Logger) *ModelCascade {
	return &ModelCascade{
		Models:           models,
		Factory:          factory,
		Backoff:          2 * time.Second,
		AttemptsPerModel: 2,
		Logger:           logger,
	}
}

// Generate runs the prompts against the cascade and returns the first
// successful response text.
func (c *ModelCascade) Generate(ctx context.Context, prompts []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	if len(c.Models) == 0 {
		return "", fmt.Errorf("model cascade is empty")
	}

	attempts := c.AttemptsPerModel
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for mi, name := range c.Models {
		model, err := c.Factory(name)
		if err != nil {
			return "", fmt.Errorf("init model %s: %w", name, err)
		}

		for try := 0; try < attempts; try++ {
			if mi > 0 || try > 0 {
				c.Logger.Warn("retrying generation", "model", name, "try", try+1, "last_error", lastErr)
				select {
				case <-time.After(c.Backoff):
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}

			resp, err := model.GenerateContent(ctx, prompts, opts...)
			if err != nil {
				if !isOverloadError(err.Error()) {
					return "", fmt.Errorf("model %s: %w", name, err)
				}
				lastErr = err
				continue
			}
			if len(resp.Choices) == 0 {
				lastErr = fmt.Errorf("model %s returned no choices", name)
				continue
			}
			content := resp.Choices[0].Content
			if isOverloadError(content) && strings.TrimSpace(content) != "" && len(content) < 200 {
				// Some backends report overload inside an otherwise-200 body.
				lastErr = fmt.Errorf("model %s reported overload: %s", name, strings.TrimSpace(content))
				continue
			}
			return content, nil
		}
	}

	return "", fmt.Errorf("all models exhausted: %w", lastErr)
}

var overloadMarkers = []string{
	"overloaded",
	"unavailable",
	"resource exhausted",
	"resource_exhausted",
	"resourceexhausted",
	"rate limit",
	"ratelimit",
	"quota",
	"too many requests",
	"429",
	"503",
	"try again later",
}

func isOverloadError(s string) bool {
	s = strings.ToLower(s)
	for _, m := range overloadMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
