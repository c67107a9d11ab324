package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/talent-scout/pkg/discovery"
)

// MaxPerPage is the hard cap the client enforces regardless of configuration.
const MaxPerPage = 25

// PeopleSearchClient talks to the structured people-search API. All calls
// share a minimum-interval gate toward the provider.
type PeopleSearchClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Logger  *slog.Logger

	limiter *rate.Limiter
}

func NewPeopleSearchClient(baseURL, apiKey string, minInterval time.Duration, logger *slog.Logger) *PeopleSearchClient {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &PeopleSearchClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 20 * time.Second},
		Logger:  logger,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

type peopleSearchRequest struct {
	PersonTitles          []string `json:"person_titles,omitempty"`
	PersonLocations       []string `json:"person_locations,omitempty"`
	OrganizationLocations []string `json:"organization_locations,omitempty"`
	QKeywords             string   `json:"q_keywords,omitempty"`
	PersonSeniorities     []string `json:"person_seniorities,omitempty"`
	Page                  int      `json:"page"`
	PerPage               int      `json:"per_page"`
}

type personRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	LinkedinURL  string `json:"linkedin_url"`
	Organization struct {
		Name string `json:"name"`
	} `json:"organization"`
}

type peopleSearchResponse struct {
	People []personRecord `json:"people"`
}

// SearchPeople runs one typed filter query against the API and maps the
// person records to leads. Records from this source are pre-trusted: they
// carry their own evidence string and skip page-fetch validation.
func (c *PeopleSearchClient) SearchPeople(ctx context.Context, filters discovery.StructuredFilters, page, perPage int) ([]discovery.RawLead, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	body, err := json.Marshal(peopleSearchRequest{
		PersonTitles:          filters.Titles,
		PersonLocations:       filters.PersonLocations,
		OrganizationLocations: filters.OrganizationLocations,
		QKeywords:             filters.Keywords,
		PersonSeniorities:     filters.Seniorities,
		Page:                  page,
		PerPage:               perPage,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal people search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/mixed_people/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build people search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("people search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("people search returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed peopleSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode people search response: %w", err)
	}

	leads := make([]discovery.RawLead, 0, len(parsed.People))
	for _, p := range parsed.People {
		if p.Name == "" {
			continue
		}
		location := joinNonEmpty(", ", p.City, p.State, p.Country)
		lead := discovery.RawLead{
			FullName: p.Name,
			Title:    p.Title,
			Company:  p.Organization.Name,
			Location: location,
			SourceID: p.ID,
			Evidence: fmt.Sprintf("People-search record %s: %s, %s at %s (%s)",
				p.ID, p.Name, p.Title, p.Organization.Name, location),
		}
		if p.LinkedinURL != "" {
			lead.SourceURLs = []string{p.LinkedinURL}
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
