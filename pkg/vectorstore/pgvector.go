package vectorstore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// EvidenceDoc is one candidate's evidence snippet plus its embedding.
type EvidenceDoc struct {
	CandidateID uuid.UUID
	JobID       uuid.UUID
	SourceURL   string
	Snippet     string
	Embedding   []float32
}

// EvidenceStore keeps evidence-snippet embeddings so the surrounding product
// can search a job's evidence later.
type EvidenceStore struct {
	pool      *pgxpool.Pool
	tableName string
}

// isValidTableName validates that a table name contains only safe characters
// to prevent SQL injection attacks
func isValidTableName(name string) bool {
	// Table names must start with a letter or underscore, use only
	// alphanumerics/underscores, and stay within PostgreSQL's 63-char limit.
	matched, _ := regexp.MatchString(`^[a-z_][a-zA-Z0-9_]{0,62}$`, name)
	return matched
}

func NewEvidenceStore(pool *pgxpool.Pool, tableName string) (*EvidenceStore, error) {
	if !isValidTableName(tableName) {
		return nil, fmt.Errorf("invalid table name %q", tableName)
	}
	return &EvidenceStore{pool: pool, tableName: tableName}, nil
}

// EnsureTable creates the evidence table and its similarity index.
func (vs *EvidenceStore) EnsureTable(ctx context.Context, dimension int) error {
	table := pgx.Identifier{vs.tableName}.Sanitize()
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			candidate_id UUID NOT NULL,
			job_id UUID NOT NULL,
			source_url TEXT,
			snippet TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, table, dimension)
	if _, err := vs.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", vs.tableName, err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s USING hnsw (embedding vector_cosine_ops)
	`, vs.tableName, table)
	if _, err := vs.pool.Exec(ctx, indexQuery); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", vs.tableName, err)
	}
	return nil
}

// Add inserts evidence docs as one batch.
func (vs *EvidenceStore) Add(ctx context.Context, docs []EvidenceDoc) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (candidate_id, job_id, source_url, snippet, embedding)
		VALUES ($1, $2, $3, $4, $5)
	`, pgx.Identifier{vs.tableName}.Sanitize())

	batch := &pgx.Batch{}
	for _, doc := range docs {
		batch.Queue(query, doc.CandidateID, doc.JobID, doc.SourceURL, doc.Snippet, pgvector.NewVector(doc.Embedding))
	}

	br := vs.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range docs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert evidence doc: %w", err)
		}
	}
	return nil
}

// EvidenceMatch is a similarity search hit.
type EvidenceMatch struct {
	Doc   EvidenceDoc
	Score float64
}

// SearchSimilar returns the topK evidence docs for a job closest to the query
// embedding.
func (vs *EvidenceStore) SearchSimilar(ctx context.Context, jobID uuid.UUID, queryEmbedding []float32, topK int) ([]EvidenceMatch, error) {
	query := fmt.Sprintf(`
		SELECT candidate_id, job_id, source_url, snippet, 1 - (embedding <=> $1) as similarity
		FROM %s
		WHERE job_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgx.Identifier{vs.tableName}.Sanitize())

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(queryEmbedding), jobID, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var results []EvidenceMatch
	for rows.Next() {
		var m EvidenceMatch
		if err := rows.Scan(&m.Doc.CandidateID, &m.Doc.JobID, &m.Doc.SourceURL, &m.Doc.Snippet, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}
