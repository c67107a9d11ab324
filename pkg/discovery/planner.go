package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// QueryPlanner turns a job context plus the run's exclusions into a bounded,
// diversified set of search queries. It never returns zero queries: when the
// model output is unusable it falls back to deterministic templates built
// straight from the job fields.
type QueryPlanner struct {
	Cascade *ModelCascade
	Logger  *slog.Logger
}

const plannerSystemPrompt = `You are a sourcing strategist for technical recruiting.
Generate diverse people-search queries for the given hiring need. Mix intents:
title-variant searches, location-anchored searches, and keyword/domain searches.

Return a JSON array of query objects:
[{"source_kind": "structured" | "web",
  "intent": "short label",
  "text": "free-text web query (web only)",
  "filters": {"titles": [], "person_locations": [], "organization_locations": [], "keywords": "", "seniorities": []}}]

Never target people named in the exclusion list, and avoid companies already covered.`

// Plan produces up to desired queries for the round.
func (p *QueryPlanner) Plan(ctx context.Context, job JobContext, mode Mode, exclusions *ExclusionSet, desired int) []SearchQuery {
	if desired <= 0 {
		desired = 3
	}

	input := jobBrief(job, exclusions)
	input += fmt.Sprintf("\nGenerate %d queries.", desired)

	text, err := p.Cascade.Generate(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, plannerSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, llms.WithJSONMode())
	if err != nil {
		p.Logger.Warn("query planning failed, using template queries", "error", err)
		return templateQueries(job, mode)
	}

	var queries []SearchQuery
	if !DecodeFirst(text, &queries) {
		p.Logger.Warn("query planning returned no parseable JSON, using template queries")
		return templateQueries(job, mode)
	}

	queries = sanitizeQueries(queries, mode, desired)
	if len(queries) == 0 {
		p.Logger.Warn("query planning produced no usable queries, using template queries")
		return templateQueries(job, mode)
	}

	p.Logger.Info("planned queries", "count", len(queries))
	return queries
}

func jobBrief(job JobContext, exclusions *ExclusionSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s\nLocation: %s\n", job.Title, job.Location)
	if len(job.Keywords) > 0 {
		fmt.Fprintf(&b, "Required skills/keywords: %s\n", strings.Join(job.Keywords, ", "))
	}
	if job.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", job.Summary)
	}
	if job.Guidance != "" {
		fmt.Fprintf(&b, "Recruiter guidance: %s\n", job.Guidance)
	}
	if names := exclusions.Names(); len(names) > 0 {
		fmt.Fprintf(&b, "Already found, exclude these people: %s\n", strings.Join(names, "; "))
	}
	if companies := exclusions.Companies(); len(companies) > 0 {
		fmt.Fprintf(&b, "Companies already covered: %s\n", strings.Join(companies, "; "))
	}
	return b.String()
}

// sanitizeQueries drops queries the dispatcher could not execute: unknown
// source kinds, kinds outside the run mode, web queries without text, and
// structured queries without filters. The result is capped at limit.
func sanitizeQueries(queries []SearchQuery, mode Mode, limit int) []SearchQuery {
	var out []SearchQuery
	seen := make(map[string]bool)
	for _, q := range queries {
		switch q.Kind {
		case SourceStructured:
			if q.Filters == nil || emptyFilters(*q.Filters) {
				continue
			}
		case SourceWeb:
			if mode == ModeStructuredOnly {
				continue
			}
			q.Text = strings.TrimSpace(q.Text)
			if q.Text == "" {
				continue
			}
		default:
			continue
		}
		key := string(q.Kind) + "|" + q.Text
		if q.Filters != nil {
			key += "|" + fmt.Sprintf("%v", *q.Filters)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func emptyFilters(f StructuredFilters) bool {
	return len(f.Titles) == 0 && len(f.PersonLocations) == 0 &&
		len(f.OrganizationLocations) == 0 && f.Keywords == "" && len(f.Seniorities) == 0
}

// templateQueries is the deterministic fallback so a round never starts with
// zero queries.
func templateQueries(job JobContext, mode Mode) []SearchQuery {
	filters := &StructuredFilters{Titles: []string{job.Title}}
	if job.Location != "" {
		filters.PersonLocations = []string{job.Location}
	}
	if len(job.Keywords) > 0 {
		filters.Keywords = strings.Join(job.Keywords, " ")
	}

	queries := []SearchQuery{
		{Kind: SourceStructured, Intent: "role and location", Filters: filters},
		{Kind: SourceStructured, Intent: "role only", Filters: &StructuredFilters{Titles: []string{job.Title}}},
	}

	if mode == ModeStructuredAndWeb {
		text := strings.TrimSpace(fmt.Sprintf("%s %s", job.Title, job.Location))
		queries = append(queries, SearchQuery{
			Kind:   SourceWeb,
			Intent: "web role search",
			Text:   text,
		})
	}
	return queries
}
