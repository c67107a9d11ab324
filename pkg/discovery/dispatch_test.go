package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
)

type fakeStructuredSource struct {
	mu    sync.Mutex
	calls []int // pages requested
	leads []RawLead
	err   error
}

func (f *fakeStructuredSource) SearchPeople(_ context.Context, _ StructuredFilters, page, _ int) ([]RawLead, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.leads, nil
}

type fakeWebSource struct {
	leads []RawLead
	err   error
}

func (f *fakeWebSource) ResearchLeads(context.Context, string) ([]RawLead, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.leads, nil
}

func structuredQuery(intent string) SearchQuery {
	return SearchQuery{
		Kind:    SourceStructured,
		Intent:  intent,
		Filters: &StructuredFilters{Titles: []string{"VP Engineering"}},
	}
}

func TestDispatchIsolatesFailingBranch(t *testing.T) {
	structured := &fakeStructuredSource{err: errors.New("upstream 500")}
	web := &fakeWebSource{leads: []RawLead{
		{FullName: "Jane Doe", Title: "VP Engineering", SourceURLs: []string{"https://acme.com/team"}},
	}}
	d := &Dispatcher{Structured: structured, Web: web, Logger: slog.Default(), PerQueryCap: 10, PageWindow: 3}

	leads := d.Dispatch(context.Background(), []SearchQuery{
		structuredQuery("role search"),
		{Kind: SourceWeb, Intent: "conference speakers", Text: "engineering leaders speaking at KubeCon"},
	}, 0, NewExclusionSet())

	if len(leads) != 1 {
		t.Fatalf("got %d leads, want 1 from the surviving branch", len(leads))
	}
	if leads[0].FullName != "Jane Doe" {
		t.Errorf("lead = %q", leads[0].FullName)
	}
	if leads[0].Kind != SourceWeb || leads[0].Intent != "conference speakers" {
		t.Errorf("lead not tagged with origin: kind=%q intent=%q", leads[0].Kind, leads[0].Intent)
	}
}

func TestDispatchPageCursor(t *testing.T) {
	d := &Dispatcher{PageWindow: 3}

	tests := []struct {
		loop, qi, want int
	}{
		{0, 0, 1},
		{0, 1, 2},
		{0, 2, 3},
		{1, 0, 2},
		{2, 1, 1},
		{3, 0, 1},
	}
	for _, tt := range tests {
		if got := d.pageCursor(tt.loop, tt.qi); got != tt.want {
			t.Errorf("pageCursor(%d, %d) = %d, want %d", tt.loop, tt.qi, got, tt.want)
		}
	}

	// A zero window must not divide by zero.
	d.PageWindow = 0
	if got := d.pageCursor(5, 2); got != 1 {
		t.Errorf("pageCursor with zero window = %d, want 1", got)
	}
}

func TestDispatchAdvancesPagesAcrossQueries(t *testing.T) {
	structured := &fakeStructuredSource{}
	d := &Dispatcher{Structured: structured, Logger: slog.Default(), PerQueryCap: 5, PageWindow: 3}

	d.Dispatch(context.Background(), []SearchQuery{
		structuredQuery("a"), structuredQuery("b"), structuredQuery("c"),
	}, 1, NewExclusionSet())

	sort.Ints(structured.calls)
	want := []int{1, 2, 3}
	if len(structured.calls) != len(want) {
		t.Fatalf("got %d calls, want %d", len(structured.calls), len(want))
	}
	for i, p := range want {
		if structured.calls[i] != p {
			t.Errorf("pages = %v, want %v", structured.calls, want)
			break
		}
	}
}

func TestDispatchFiltersStructuredResults(t *testing.T) {
	structured := &fakeStructuredSource{leads: []RawLead{
		{FullName: "Jane Doe", Title: "VP Engineering", Company: "Acme"},
		{FullName: "Sam Ruiz", Title: "Co-Founder", Company: "Acme"},
		{FullName: "Priya Nair", Title: "Head of Platform", Company: "Beta"},
		{FullName: "Max Vogel", Title: "Director of Engineering", Company: "Gamma"},
	}}
	d := &Dispatcher{Structured: structured, Logger: slog.Default(), PerQueryCap: 2, PageWindow: 3}

	exclusions := NewExclusionSet()
	exclusions.Add("Jane Doe", "Acme")

	leads := d.Dispatch(context.Background(), []SearchQuery{structuredQuery("role search")}, 0, exclusions)

	// Jane is excluded, Sam holds an excluded role, and the cap stops at two.
	if len(leads) != 2 {
		t.Fatalf("got %d leads, want 2", len(leads))
	}
	if leads[0].FullName != "Priya Nair" || leads[1].FullName != "Max Vogel" {
		t.Errorf("leads = %q, %q", leads[0].FullName, leads[1].FullName)
	}
}

func TestDispatchSkipsMissingClients(t *testing.T) {
	d := &Dispatcher{Logger: slog.Default(), PerQueryCap: 5, PageWindow: 3}

	leads := d.Dispatch(context.Background(), []SearchQuery{
		structuredQuery("role search"),
		{Kind: SourceWeb, Intent: "web", Text: "anything"},
	}, 0, NewExclusionSet())

	if len(leads) != 0 {
		t.Fatalf("got %d leads from nil clients, want 0", len(leads))
	}
}
