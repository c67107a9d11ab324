package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]ValidatedCandidate
	ctxErrs []error
	err     error
}

func (f *fakeSink) SaveCandidates(ctx context.Context, _ JobContext, _ string, batch []ValidatedCandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return f.err
}

func peopleNamed(names ...string) []RawLead {
	leads := make([]RawLead, 0, len(names))
	for i, n := range names {
		leads = append(leads, RawLead{
			FullName: n,
			Title:    "VP Engineering",
			Company:  fmt.Sprintf("Company %d", i),
			Evidence: "people-search record",
		})
	}
	return leads
}

func testEngine(t *testing.T, structured StructuredSource, reflectModel *fakeModel, sink CandidateSink, opts Options) *Engine {
	t.Helper()
	logger := slog.Default()
	return &Engine{
		Planner: &QueryPlanner{
			// An erroring planner cascade forces the deterministic templates,
			// which is all these tests need.
			Cascade: testCascade(t, map[string]*fakeModel{"p": failingModel(errors.New("invalid request"))}, "p"),
			Logger:  logger,
		},
		Reflector: &ReflectionPlanner{
			Cascade: testCascade(t, map[string]*fakeModel{"r": reflectModel}, "r"),
			Logger:  logger,
		},
		Dispatcher: &Dispatcher{Structured: structured, Logger: logger, PerQueryCap: 25, PageWindow: 3},
		Aggregator: &Aggregator{Logger: logger},
		Sink:       sink,
		Options:    opts,
		Logger:     logger,
	}
}

func engineOptions() Options {
	opts := DefaultOptions()
	opts.Mode = ModeStructuredOnly
	opts.TargetCount = 3
	opts.MaxLoops = 3
	opts.TimeBudget = time.Minute
	return opts
}

func testJobContext() JobContext {
	job := testJob()
	job.JobID = uuid.New()
	return job
}

func TestRunStopsOnSufficiency(t *testing.T) {
	structured := &fakeStructuredSource{leads: peopleNamed("Jane Doe", "Priya Nair", "Max Vogel")}
	reflectModel := staticModel(`{"is_sufficient": false, "follow_up_queries": [
		{"source_kind": "structured", "intent": "more", "filters": {"keywords": "platform"}}]}`)
	sink := &fakeSink{}

	e := testEngine(t, structured, reflectModel, sink, engineOptions())
	found, err := e.Run(context.Background(), testJobContext(), "user-1", NewExclusionSet())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("found %d candidates, want 3", len(found))
	}
	// The target was met in round one, so reflection never calls the model and
	// the loop ends there.
	if reflectModel.calls != 0 {
		t.Errorf("reflection model called %d times, want 0", reflectModel.calls)
	}
	if len(sink.batches) != 1 || len(sink.batches[0]) != 3 {
		t.Fatalf("sink batches = %v", sink.batches)
	}
}

func TestRunStopsOnEmptyFollowUps(t *testing.T) {
	structured := &fakeStructuredSource{leads: peopleNamed("Jane Doe")}
	reflectModel := staticModel(`{"is_sufficient": false, "coverage_gaps": ["thin"], "follow_up_queries": []}`)
	sink := &fakeSink{}

	e := testEngine(t, structured, reflectModel, sink, engineOptions())
	found, err := e.Run(context.Background(), testJobContext(), "user-1", NewExclusionSet())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d candidates, want 1", len(found))
	}
	if reflectModel.calls != 1 {
		t.Errorf("reflection model called %d times, want 1", reflectModel.calls)
	}
	// Partial results still reach the sink.
	if len(sink.batches) != 1 {
		t.Fatalf("sink batches = %d, want 1", len(sink.batches))
	}
}

func TestRunHonorsLoopBudget(t *testing.T) {
	structured := &fakeStructuredSource{leads: peopleNamed("Jane Doe")}
	// Reflection always asks for another round; the loop budget must stop it.
	reflectModel := staticModel(`{"is_sufficient": false, "follow_up_queries": [
		{"source_kind": "structured", "intent": "more", "filters": {"keywords": "platform"}}]}`)
	sink := &fakeSink{}

	e := testEngine(t, structured, reflectModel, sink, engineOptions())
	_, err := e.Run(context.Background(), testJobContext(), "user-1", NewExclusionSet())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if reflectModel.calls != 3 {
		t.Errorf("reflection model called %d times, want one per loop = 3", reflectModel.calls)
	}
}

func TestRunHonorsTimeBudget(t *testing.T) {
	structured := &fakeStructuredSource{leads: peopleNamed("Jane Doe")}
	// Reflection keeps proposing work; the expired time budget must win.
	reflectModel := staticModel(`{"is_sufficient": false, "follow_up_queries": [
		{"source_kind": "structured", "intent": "more", "filters": {"keywords": "platform"}}]}`)
	sink := &fakeSink{}

	opts := engineOptions()
	opts.TimeBudget = -time.Millisecond

	e := testEngine(t, structured, reflectModel, sink, opts)
	found, err := e.Run(context.Background(), testJobContext(), "user-1", NewExclusionSet())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if reflectModel.calls != 1 {
		t.Errorf("reflection model called %d times, want 1 (single round)", reflectModel.calls)
	}
	// The round that ran still reaches the sink.
	if len(found) != 1 || len(sink.batches) != 1 {
		t.Fatalf("found %d candidates, %d sink batches; want 1 and 1", len(found), len(sink.batches))
	}
}

func TestRunPersistsPartialResultsOnCancellation(t *testing.T) {
	structured := &fakeStructuredSource{leads: peopleNamed("Jane Doe")}
	reflectModel := staticModel(`{"is_sufficient": false, "follow_up_queries": [
		{"source_kind": "structured", "intent": "more", "filters": {"keywords": "platform"}}]}`)
	sink := &fakeSink{}

	ctx, cancel := context.WithCancel(context.Background())
	e := testEngine(t, structured, reflectModel, sink, engineOptions())
	// Cancel after the first round has aggregated, via the state callback.
	e.OnStateUpdate = func(state RunState) {
		if state.FoundCount > 0 {
			cancel()
		}
	}

	found, err := e.Run(ctx, testJobContext(), "user-1", NewExclusionSet())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d candidates, want 1", len(found))
	}
	if len(sink.batches) != 1 {
		t.Fatalf("sink batches = %d, want 1", len(sink.batches))
	}
	// The sink write must survive the cancelled run context.
	if sink.ctxErrs[0] != nil {
		t.Errorf("sink saw cancelled context: %v", sink.ctxErrs[0])
	}
}

func TestRunSurfacesSinkErrors(t *testing.T) {
	structured := &fakeStructuredSource{leads: peopleNamed("Jane Doe", "Priya Nair", "Max Vogel")}
	sink := &fakeSink{err: errors.New("connection refused")}

	e := testEngine(t, structured, staticModel(`{}`), sink, engineOptions())
	found, err := e.Run(context.Background(), testJobContext(), "user-1", NewExclusionSet())
	if err == nil {
		t.Fatal("expected error from failing sink")
	}
	// The found set is still returned alongside the error.
	if len(found) != 3 {
		t.Errorf("found %d candidates, want 3", len(found))
	}
}

func TestRunPassesThreadsExclusions(t *testing.T) {
	structured := &fakeStructuredSource{leads: peopleNamed("Jane Doe", "Priya Nair", "Max Vogel")}
	sink := &fakeSink{}

	e := testEngine(t, structured, staticModel(`{}`), sink, engineOptions())
	exclusions := NewExclusionSet()

	found, err := e.RunPasses(context.Background(), testJobContext(), "user-1", exclusions, 2)
	if err != nil {
		t.Fatalf("RunPasses returned error: %v", err)
	}
	// The second pass sees everyone from the first pass in the exclusion set,
	// so it contributes nothing new.
	if len(found) != 3 {
		t.Fatalf("found %d candidates across passes, want 3", len(found))
	}
	if exclusions.Len() != 3 {
		t.Errorf("exclusion set has %d names, want 3", exclusions.Len())
	}
	if len(sink.batches) != 1 {
		t.Errorf("sink batches = %d, want 1 (empty passes skip the sink)", len(sink.batches))
	}
}

func TestRunEmitsStateUpdates(t *testing.T) {
	structured := &fakeStructuredSource{leads: peopleNamed("Jane Doe", "Priya Nair", "Max Vogel")}
	sink := &fakeSink{}

	var states []RunState
	e := testEngine(t, structured, staticModel(`{}`), sink, engineOptions())
	e.OnStateUpdate = func(state RunState) { states = append(states, state) }

	if _, err := e.Run(context.Background(), testJobContext(), "user-1", NewExclusionSet()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(states) < 2 {
		t.Fatalf("got %d state updates, want at least 2", len(states))
	}
	last := states[len(states)-1]
	if !last.IsSufficient || last.FoundCount != 3 {
		t.Errorf("final state = %+v", last)
	}
}
