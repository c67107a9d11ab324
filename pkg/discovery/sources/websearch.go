package sources

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/mikeboe/talent-scout/pkg/discovery"
)

// WebResearchClient runs free-text candidate research through a Gemini model
// with the google-search grounding tool enabled. The model's answer is free
// text that should contain a JSON array of leads; anything unparseable
// degrades to an empty result.
type WebResearchClient struct {
	Model  string
	Logger *slog.Logger

	client *genai.Client
}

func NewWebResearchClient(ctx context.Context, apiKey, model string, logger *slog.Logger) (*WebResearchClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &WebResearchClient{
		Model:  model,
		Logger: logger,
		client: client,
	}, nil
}

const leadResearchTemplate = `Research real, currently employed professionals matching this search:

%s

Use web search to find them. Only include people whose name, role and employer
appear together on a public page, and cite those pages.

Respond with a JSON array only:
[{"full_name": "...", "current_title": "...", "current_company": "...",
  "location": "...", "notes": "...", "sources": ["https://..."]}]`

// ResearchLeads asks the grounded model for leads matching the query.
func (c *WebResearchClient) ResearchLeads(ctx context.Context, query string) ([]discovery.RawLead, error) {
	prompt := fmt.Sprintf(leadResearchTemplate, query)

	resp, err := c.client.Models.GenerateContent(ctx, c.Model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("grounded search failed: %w", err)
	}

	text := resp.Text()
	var leads []discovery.RawLead
	if !discovery.DecodeFirst(text, &leads) {
		c.Logger.Warn("web research returned no parseable lead JSON", "query", query)
		return nil, nil
	}
	return leads, nil
}
