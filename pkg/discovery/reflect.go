package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// ReflectionPlanner reviews the validated set against the target count and
// either declares sufficiency or proposes coverage gaps plus follow-up
// queries for the next round.
type ReflectionPlanner struct {
	Cascade *ModelCascade
	Logger  *slog.Logger
}

const reflectionSystemPrompt = `You are reviewing progress of a candidate sourcing run.
Given the hiring need and the candidates found so far, decide whether coverage is
sufficient. If not, name the coverage gaps and propose follow-up queries that
target people and companies not yet covered.

Return a JSON object:
{"is_sufficient": bool,
 "coverage_gaps": ["..."],
 "follow_up_queries": [{"source_kind": "structured" | "web", "intent": "...", "text": "...", "filters": {...}}],
 "reflection_notes": "..."}

An empty follow_up_queries list means no productive angle remains.`

// Reflect evaluates the round. It short-circuits without a model call when
// the target is already met, and degrades to an empty (terminal) reflection
// when the model cascade is exhausted or the output is unusable.
func (r *ReflectionPlanner) Reflect(ctx context.Context, job JobContext, mode Mode, found []ValidatedCandidate, target int, exclusions *ExclusionSet) Reflection {
	if len(found) >= target {
		return Reflection{IsSufficient: true}
	}

	input := jobBrief(job, exclusions)
	input += fmt.Sprintf("\nTarget: %d candidates. Found so far: %d.\n", target, len(found))
	input += "Candidates found:\n" + summarizeCandidates(found)

	text, err := r.Cascade.Generate(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, reflectionSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, llms.WithJSONMode())
	if err != nil {
		r.Logger.Warn("reflection failed, terminating loop", "error", err)
		return Reflection{}
	}

	var reflection Reflection
	if !DecodeFirst(text, &reflection) {
		r.Logger.Warn("reflection returned no parseable JSON, terminating loop")
		return Reflection{}
	}

	// Follow-ups face the same execution constraints as planned queries.
	reflection.FollowUpQueries = sanitizeQueries(reflection.FollowUpQueries, mode, 0)

	r.Logger.Info("reflection complete",
		"sufficient", reflection.IsSufficient,
		"gaps", len(reflection.CoverageGaps),
		"follow_ups", len(reflection.FollowUpQueries))
	return reflection
}

// summarizeCandidates renders a compact one-line-per-candidate view for the
// reflection prompt rather than the full payload.
func summarizeCandidates(found []ValidatedCandidate) string {
	if len(found) == 0 {
		return "(none yet)\n"
	}
	var b strings.Builder
	for _, c := range found {
		fmt.Fprintf(&b, "- %s, %s at %s (%s)\n", c.FullName, c.Title, c.Company, c.Location)
	}
	return b.String()
}
