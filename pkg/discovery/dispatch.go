package discovery

import (
	"context"
	"log/slog"
	"sync"
)

// StructuredSource is the typed people-search API.
type StructuredSource interface {
	SearchPeople(ctx context.Context, filters StructuredFilters, page, perPage int) ([]RawLead, error)
}

// WebSource is the grounded web-search model call.
type WebSource interface {
	ResearchLeads(ctx context.Context, query string) ([]RawLead, error)
}

// Dispatcher fans a round's queries out to their source clients concurrently.
// A failing query contributes an empty result; it never cancels its siblings.
type Dispatcher struct {
	Structured StructuredSource
	Web        WebSource
	Logger     *slog.Logger

	// PerQueryCap bounds results per query; PageWindow is the modulus for the
	// structured page cursor so repeated loops surface different pages.
	PerQueryCap int
	PageWindow  int
}

// Dispatch executes every query and joins all branches before returning, so
// the aggregator never sees a partial round.
func (d *Dispatcher) Dispatch(ctx context.Context, queries []SearchQuery, loop int, exclusions *ExclusionSet) []RawLead {
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		leads []RawLead
	)

	for qi, q := range queries {
		wg.Add(1)
		go func(qi int, q SearchQuery) {
			defer wg.Done()

			found := d.runQuery(ctx, qi, q, loop, exclusions)
			if len(found) == 0 {
				return
			}
			mu.Lock()
			leads = append(leads, found...)
			mu.Unlock()
		}(qi, q)
	}
	wg.Wait()

	return leads
}

func (d *Dispatcher) runQuery(ctx context.Context, qi int, q SearchQuery, loop int, exclusions *ExclusionSet) []RawLead {
	switch q.Kind {
	case SourceStructured:
		if d.Structured == nil {
			return nil
		}
		page := d.pageCursor(loop, qi)
		people, err := d.Structured.SearchPeople(ctx, *q.Filters, page, d.PerQueryCap)
		if err != nil {
			d.Logger.Error("people search failed", "intent", q.Intent, "page", page, "error", err)
			return nil
		}
		d.Logger.Info("people search done", "intent", q.Intent, "page", page, "count", len(people))
		return d.prepare(people, q, exclusions, true)

	case SourceWeb:
		if d.Web == nil {
			return nil
		}
		found, err := d.Web.ResearchLeads(ctx, q.Text)
		if err != nil {
			d.Logger.Error("web research failed", "intent", q.Intent, "error", err)
			return nil
		}
		d.Logger.Info("web research done", "intent", q.Intent, "count", len(found))
		return d.prepare(found, q, exclusions, false)
	}
	return nil
}

// pageCursor derives the structured-source page from the loop and query
// position so repeated loops against the same intent read different pages.
func (d *Dispatcher) pageCursor(loop, qi int) int {
	window := d.PageWindow
	if window < 1 {
		window = 1
	}
	return 1 + (loop+qi)%window
}

// prepare tags leads with their origin, enforces the per-query cap, skips
// people already in the exclusion set, and applies the excluded-role filter
// to pre-trusted structured results (web results get the same role filter
// after evidence validation).
func (d *Dispatcher) prepare(leads []RawLead, q SearchQuery, exclusions *ExclusionSet, dropExcludedRoles bool) []RawLead {
	out := make([]RawLead, 0, len(leads))
	for _, lead := range leads {
		if d.PerQueryCap > 0 && len(out) >= d.PerQueryCap {
			break
		}
		if exclusions.ContainsName(lead.FullName) {
			continue
		}
		if dropExcludedRoles && IsExcludedRole(lead.Title) {
			continue
		}
		lead.Kind = q.Kind
		lead.Intent = q.Intent
		out = append(out, lead)
	}
	return out
}
