package discovery

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies which client a query or lead belongs to.
type SourceKind string

const (
	SourceStructured SourceKind = "structured"
	SourceWeb        SourceKind = "web"
)

// JobContext is the immutable input of one discovery run, built once from the
// job record and never mutated.
type JobContext struct {
	JobID    uuid.UUID
	Title    string
	Location string
	Keywords []string
	Summary  string
	Guidance string // optional user-supplied steering prompt
}

// StructuredFilters is the typed payload for the people-search API.
type StructuredFilters struct {
	Titles                []string `json:"titles,omitempty"`
	PersonLocations       []string `json:"person_locations,omitempty"`
	OrganizationLocations []string `json:"organization_locations,omitempty"`
	Keywords              string   `json:"keywords,omitempty"`
	Seniorities           []string `json:"seniorities,omitempty"`
}

// SearchQuery is produced by the query planner or the reflection planner and
// consumed exactly once by the dispatcher. Exactly one of Text / Filters is
// set, depending on Kind.
type SearchQuery struct {
	Kind    SourceKind         `json:"source_kind"`
	Intent  string             `json:"intent"`
	Text    string             `json:"text,omitempty"`
	Filters *StructuredFilters `json:"filters,omitempty"`
}

// RawLead is an unvalidated candidate assertion from a source client.
type RawLead struct {
	FullName   string   `json:"full_name"`
	Title      string   `json:"current_title"`
	Company    string   `json:"current_company"`
	Location   string   `json:"location"`
	Notes      string   `json:"notes"`
	SourceURLs []string `json:"sources"`

	// Set by the structured client only: the record id and the pre-trusted
	// evidence string that lets the lead bypass page-fetch validation.
	SourceID string `json:"source_id,omitempty"`
	Evidence string `json:"-"`

	Kind   SourceKind `json:"-"`
	Intent string     `json:"-"` // intent of the query that surfaced this lead
}

// ValidatedCandidate is a RawLead that passed the evidence gate. Immutable
// once created.
type ValidatedCandidate struct {
	RawLead

	EvidenceSnippet string
	SourceURL       string
	ValidatedAt     time.Time
	FoundByIntent   string
}

// Key returns the case-insensitive dedupe identity (name, company).
func (c ValidatedCandidate) Key() string {
	return leadKey(c.FullName, c.Company)
}

func leadKey(name, company string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(company))
}

// ExclusionSet accumulates names and companies already found during a run (and
// prior runs of the same job). It only ever grows.
type ExclusionSet struct {
	mu        sync.Mutex
	names     map[string]bool
	companies map[string]bool
}

func NewExclusionSet() *ExclusionSet {
	return &ExclusionSet{
		names:     make(map[string]bool),
		companies: make(map[string]bool),
	}
}

func (s *ExclusionSet) Add(name, company string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := strings.ToLower(strings.TrimSpace(name)); n != "" {
		s.names[n] = true
	}
	if c := strings.ToLower(strings.TrimSpace(company)); c != "" {
		s.companies[c] = true
	}
}

func (s *ExclusionSet) ContainsName(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names[strings.ToLower(strings.TrimSpace(name))]
}

func (s *ExclusionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

// Names returns the excluded names sorted, for prompt injection.
func (s *ExclusionSet) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Companies returns the excluded companies sorted.
func (s *ExclusionSet) Companies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.companies))
	for c := range s.companies {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// RunState tracks the progress of one discovery run. It is mutated only by
// the engine between phases; the Mu guards snapshotting for OnStateUpdate.
type RunState struct {
	JobID        uuid.UUID `json:"job_id"`
	Loop         int       `json:"loop"`
	MaxLoops     int       `json:"max_loops"`
	StartedAt    time.Time `json:"started_at"`
	IsSufficient bool      `json:"is_sufficient"`
	CoverageGaps []string  `json:"coverage_gaps"`
	FoundCount   int       `json:"found_count"`
	TargetCount  int       `json:"target_count"`

	Mu sync.Mutex `json:"-"`
}

// Reflection is the reflection planner's verdict for one round. An empty
// FollowUpQueries list is a valid terminal signal.
type Reflection struct {
	IsSufficient    bool          `json:"is_sufficient"`
	CoverageGaps    []string      `json:"coverage_gaps"`
	FollowUpQueries []SearchQuery `json:"follow_up_queries"`
	Notes           string        `json:"reflection_notes"`
}

// Mode selects which source clients a run uses.
type Mode string

const (
	ModeStructuredOnly   Mode = "structured_only"
	ModeStructuredAndWeb Mode = "structured_and_web"
)
