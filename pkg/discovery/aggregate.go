package discovery

import (
	"context"
	"log/slog"
	"time"
)

// Aggregator merges the raw leads from all dispatcher branches, runs each
// through the evidence gate, and dedupes by the case-insensitive
// (name, company) identity, first seen wins. The merge is plain
// concatenation, so branch arrival order never matters.
type Aggregator struct {
	Validator *EvidenceValidator
	Logger    *slog.Logger
}

// Aggregate validates one round's leads. seen carries the identities already
// held by the run so later rounds only contribute net-new candidates; it is
// updated in place.
func (a *Aggregator) Aggregate(ctx context.Context, leads []RawLead, seen map[string]bool) []ValidatedCandidate {
	var validated []ValidatedCandidate
	for _, lead := range leads {
		if !structurallyValid(lead) {
			continue
		}
		key := leadKey(lead.FullName, lead.Company)
		if seen[key] {
			continue
		}

		candidate, ok := a.validate(ctx, lead)
		if !ok {
			continue
		}
		// The role filter applies to every source; web titles are only
		// trustworthy after validation, so it runs here rather than in the
		// dispatcher for them.
		if IsExcludedRole(candidate.Title) {
			a.Logger.Info("dropping excluded role", "name", candidate.FullName, "title", candidate.Title)
			continue
		}

		seen[key] = true
		validated = append(validated, candidate)
	}
	return validated
}

func (a *Aggregator) validate(ctx context.Context, lead RawLead) (ValidatedCandidate, bool) {
	if lead.Kind == SourceStructured {
		// Pre-trusted source records carry their own evidence string.
		return ValidatedCandidate{
			RawLead:         lead,
			EvidenceSnippet: lead.Evidence,
			ValidatedAt:     time.Now().UTC(),
			FoundByIntent:   lead.Intent,
		}, true
	}

	ok, url, snippet := a.Validator.Validate(ctx, lead)
	if !ok {
		a.Logger.Info("lead rejected, no confirming page", "name", lead.FullName)
		return ValidatedCandidate{}, false
	}
	return ValidatedCandidate{
		RawLead:         lead,
		EvidenceSnippet: snippet,
		SourceURL:       url,
		ValidatedAt:     time.Now().UTC(),
		FoundByIntent:   lead.Intent,
	}, true
}

// structurallyValid checks required fields before any network work: a name,
// a title or a company, and for web leads at least one claimed source URL.
func structurallyValid(lead RawLead) bool {
	if lead.FullName == "" {
		return false
	}
	if lead.Title == "" && lead.Company == "" {
		return false
	}
	if lead.Kind == SourceWeb && len(lead.SourceURLs) == 0 {
		return false
	}
	return true
}
