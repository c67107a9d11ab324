package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CandidateSink receives the finalized batch of a run. Implemented by the
// database layer; faked in tests.
type CandidateSink interface {
	SaveCandidates(ctx context.Context, job JobContext, userID string, batch []ValidatedCandidate) error
}

// Options bound one discovery run.
type Options struct {
	Mode            Mode
	TargetCount     int
	MaxLoops        int
	TimeBudget      time.Duration
	QueriesPerRound int
}

func DefaultOptions() Options {
	return Options{
		Mode:            ModeStructuredAndWeb,
		TargetCount:     10,
		MaxLoops:        3,
		TimeBudget:      8 * time.Minute,
		QueriesPerRound: 4,
	}
}

// Engine drives the plan → dispatch → aggregate → reflect loop for one job.
// Rounds repeat until sufficiency, an empty reflection, the loop budget, the
// time budget, or cancellation — whichever comes first. The exclusion set is
// the only state that survives across rounds and across back-to-back runs.
type Engine struct {
	Planner    *QueryPlanner
	Reflector  *ReflectionPlanner
	Dispatcher *Dispatcher
	Aggregator *Aggregator
	Sink       CandidateSink
	Options    Options
	Logger     *slog.Logger

	OnStateUpdate func(state RunState)
}

// Run executes one discovery run and emits whatever it found to the sink,
// even when the run was cut short. The caller-owned exclusion set is grown
// with every validated candidate so subsequent runs surface net-new people.
func (e *Engine) Run(ctx context.Context, job JobContext, userID string, exclusions *ExclusionSet) ([]ValidatedCandidate, error) {
	opts := e.Options
	state := RunState{
		JobID:       job.JobID,
		Loop:        1,
		MaxLoops:    opts.MaxLoops,
		StartedAt:   time.Now(),
		TargetCount: opts.TargetCount,
	}
	deadline := state.StartedAt.Add(opts.TimeBudget)

	e.Logger.Info("starting discovery run",
		"job", job.JobID, "mode", opts.Mode, "target", opts.TargetCount, "max_loops", opts.MaxLoops)
	e.emit(&state)

	// Planning: only the first round plans; later rounds run the reflection's
	// follow-up queries as-is.
	queries := e.Planner.Plan(ctx, job, opts.Mode, exclusions, opts.QueriesPerRound)

	var total []ValidatedCandidate
	seen := make(map[string]bool)

	for {
		e.Logger.Info("starting round", "loop", state.Loop, "queries", len(queries))

		// Dispatching: all branches join before aggregation starts.
		leads := e.Dispatcher.Dispatch(ctx, queries, state.Loop-1, exclusions)

		// Aggregating.
		fresh := e.Aggregator.Aggregate(ctx, leads, seen)
		for _, c := range fresh {
			exclusions.Add(c.FullName, c.Company)
		}
		total = append(total, fresh...)

		state.FoundCount = len(total)
		state.IsSufficient = len(total) >= opts.TargetCount
		e.emit(&state)
		e.Logger.Info("round aggregated",
			"loop", state.Loop, "leads", len(leads), "new", len(fresh), "total", len(total))

		// Reflecting.
		reflection := e.Reflector.Reflect(ctx, job, opts.Mode, total, opts.TargetCount, exclusions)
		if reflection.IsSufficient {
			state.IsSufficient = true
		}
		state.CoverageGaps = reflection.CoverageGaps
		e.emit(&state)

		if !e.shouldLoop(ctx, &state, deadline, reflection) {
			break
		}
		state.Loop++
		queries = reflection.FollowUpQueries
	}

	// Finalizing: partial results always reach the sink, even after
	// cancellation or budget exhaustion.
	e.Logger.Info("finalizing run", "job", job.JobID, "found", len(total), "loops", state.Loop)
	if e.Sink != nil && len(total) > 0 {
		sinkCtx := context.WithoutCancel(ctx)
		if err := e.Sink.SaveCandidates(sinkCtx, job, userID, total); err != nil {
			return total, fmt.Errorf("persist candidates: %w", err)
		}
	}
	return total, nil
}

// shouldLoop decides Reflecting → LoopAgain. Every condition must hold;
// otherwise the run finalizes.
func (e *Engine) shouldLoop(ctx context.Context, state *RunState, deadline time.Time, reflection Reflection) bool {
	switch {
	case ctx.Err() != nil:
		e.Logger.Info("run cancelled, finalizing", "loop", state.Loop)
		return false
	case state.IsSufficient:
		return false
	case state.Loop >= state.MaxLoops:
		e.Logger.Info("loop budget reached", "loop", state.Loop)
		return false
	case time.Now().After(deadline):
		e.Logger.Info("time budget reached", "loop", state.Loop)
		return false
	case len(reflection.FollowUpQueries) == 0:
		e.Logger.Info("no follow-up queries, finalizing", "loop", state.Loop)
		return false
	}
	return true
}

// RunPasses executes count back-to-back runs against the same job, threading
// the exclusion set forward so each pass only surfaces net-new candidates.
func (e *Engine) RunPasses(ctx context.Context, job JobContext, userID string, exclusions *ExclusionSet, count int) ([]ValidatedCandidate, error) {
	var all []ValidatedCandidate
	for pass := 0; pass < count; pass++ {
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
		found, err := e.Run(ctx, job, userID, exclusions)
		all = append(all, found...)
		if err != nil {
			return all, fmt.Errorf("pass %d: %w", pass+1, err)
		}
	}
	return all, nil
}

func (e *Engine) emit(state *RunState) {
	if e.OnStateUpdate == nil {
		return
	}
	state.Mu.Lock()
	snapshot := RunState{
		JobID:        state.JobID,
		Loop:         state.Loop,
		MaxLoops:     state.MaxLoops,
		StartedAt:    state.StartedAt,
		IsSufficient: state.IsSufficient,
		CoverageGaps: state.CoverageGaps,
		FoundCount:   state.FoundCount,
		TargetCount:  state.TargetCount,
	}
	state.Mu.Unlock()
	e.OnStateUpdate(snapshot)
}
