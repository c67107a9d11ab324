package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/talent-scout/pkg/discovery"
	"github.com/mikeboe/talent-scout/pkg/embeddings"
	"github.com/mikeboe/talent-scout/pkg/vectorstore"
)

// CandidateStore is the persistence sink for validated candidates. Inserts go
// out as one batch; when the batch fails, rows are retried individually so a
// single malformed row cannot discard the rest. Evidence snippets are
// additionally embedded and stored for later search when an embedder is
// configured.
type CandidateStore struct {
	DB       *PostgresDB
	Embedder *embeddings.GoogleEmbedder
	Evidence *vectorstore.EvidenceStore
	Logger   *slog.Logger
}

const insertCandidateSQL = `
	INSERT INTO candidates (
		id, job_id, requested_by, full_name, title, company, location, notes,
		source_kind, source_id, source_url, evidence_snippet, found_by_intent, validated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

// SaveCandidates implements discovery.CandidateSink.
func (s *CandidateStore) SaveCandidates(ctx context.Context, job discovery.JobContext, userID string, batch []discovery.ValidatedCandidate) error {
	if len(batch) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(batch))
	for i := range batch {
		ids[i] = uuid.New()
	}

	if err := s.insertBatch(ctx, job.JobID, userID, ids, batch); err != nil {
		s.Logger.Warn("candidate batch insert failed, retrying rows individually", "error", err)
		failed := 0
		for i, c := range batch {
			if rowErr := s.insertOne(ctx, job.JobID, userID, ids[i], c); rowErr != nil {
				failed++
				s.Logger.Error("candidate row insert failed", "name", c.FullName, "error", rowErr)
			}
		}
		if failed == len(batch) {
			return fmt.Errorf("all %d candidate rows failed to insert: %w", len(batch), err)
		}
		if failed > 0 {
			s.Logger.Warn("some candidate rows failed to insert", "failed", failed, "total", len(batch))
		}
	}

	s.storeEvidenceEmbeddings(ctx, job.JobID, ids, batch)
	return nil
}

func (s *CandidateStore) insertBatch(ctx context.Context, jobID uuid.UUID, userID string, ids []uuid.UUID, batch []discovery.ValidatedCandidate) error {
	b := &pgx.Batch{}
	for i, c := range batch {
		b.Queue(insertCandidateSQL, candidateArgs(jobID, userID, ids[i], c)...)
	}
	br := s.DB.Pool.SendBatch(ctx, b)
	defer br.Close()
	for range batch {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (s *CandidateStore) insertOne(ctx context.Context, jobID uuid.UUID, userID string, id uuid.UUID, c discovery.ValidatedCandidate) error {
	_, err := s.DB.Pool.Exec(ctx, insertCandidateSQL, candidateArgs(jobID, userID, id, c)...)
	return err
}

func candidateArgs(jobID uuid.UUID, userID string, id uuid.UUID, c discovery.ValidatedCandidate) []any {
	return []any{
		id, jobID, userID, c.FullName, c.Title, c.Company, c.Location, c.Notes,
		string(c.Kind), c.SourceID, c.SourceURL, c.EvidenceSnippet, c.FoundByIntent, c.ValidatedAt,
	}
}

// storeEvidenceEmbeddings is best-effort: an embedding or insert failure is
// logged and never fails the run.
func (s *CandidateStore) storeEvidenceEmbeddings(ctx context.Context, jobID uuid.UUID, ids []uuid.UUID, batch []discovery.ValidatedCandidate) {
	if s.Embedder == nil || s.Evidence == nil {
		return
	}

	var docs []vectorstore.EvidenceDoc
	for i, c := range batch {
		if c.EvidenceSnippet == "" {
			continue
		}
		vec, err := s.Embedder.EmbedText(ctx, c.EvidenceSnippet)
		if err != nil {
			s.Logger.Warn("evidence embedding failed", "name", c.FullName, "error", err)
			continue
		}
		docs = append(docs, vectorstore.EvidenceDoc{
			CandidateID: ids[i],
			JobID:       jobID,
			SourceURL:   c.SourceURL,
			Snippet:     c.EvidenceSnippet,
			Embedding:   vec,
		})
	}
	if len(docs) == 0 {
		return
	}
	if err := s.Evidence.Add(ctx, docs); err != nil {
		s.Logger.Warn("evidence embedding insert failed", "error", err)
	}
}

// LoadExclusions seeds an exclusion set from the candidates already stored
// for a job, so back-to-back runs only surface net-new people.
func (s *CandidateStore) LoadExclusions(ctx context.Context, jobID uuid.UUID) (*discovery.ExclusionSet, error) {
	rows, err := s.DB.Pool.Query(ctx,
		"SELECT full_name, company FROM candidates WHERE job_id = $1", jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exclusions: %w", err)
	}
	defer rows.Close()

	set := discovery.NewExclusionSet()
	for rows.Next() {
		var name, company string
		if err := rows.Scan(&name, &company); err != nil {
			continue
		}
		set.Add(name, company)
	}
	return set, rows.Err()
}
