package database

import (
	"context"
	"fmt"
)

func (db *PostgresDB) InitSchema(ctx context.Context) error {
	// 1. Discovery Jobs Table
	jobsQuery := `
		CREATE TABLE IF NOT EXISTS discovery_jobs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			title TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			keywords TEXT[] NOT NULL DEFAULT '{}',
			summary TEXT NOT NULL DEFAULT '',
			guidance TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL DEFAULT 'structured_and_web',
			status TEXT NOT NULL DEFAULT 'pending',
			requested_by TEXT NOT NULL DEFAULT '',
			state JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, jobsQuery); err != nil {
		return fmt.Errorf("failed to create discovery_jobs table: %w", err)
	}

	// 2. Discovery Logs Table
	logsQuery := `
		CREATE TABLE IF NOT EXISTS discovery_logs (
			id SERIAL PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES discovery_jobs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		);
	`
	if _, err := db.Pool.Exec(ctx, logsQuery); err != nil {
		return fmt.Errorf("failed to create discovery_logs table: %w", err)
	}

	// 3. Candidates Table
	candidatesQuery := `
		CREATE TABLE IF NOT EXISTS candidates (
			id UUID PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES discovery_jobs(id) ON DELETE CASCADE,
			requested_by TEXT NOT NULL DEFAULT '',
			full_name TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			company TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			source_kind TEXT NOT NULL,
			source_id TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL DEFAULT '',
			evidence_snippet TEXT NOT NULL DEFAULT '',
			found_by_intent TEXT NOT NULL DEFAULT '',
			validated_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, candidatesQuery); err != nil {
		return fmt.Errorf("failed to create candidates table: %w", err)
	}

	// Indexes for faster querying
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_discovery_logs_job_id ON discovery_logs(job_id)"); err != nil {
		return fmt.Errorf("failed to create index on discovery_logs: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_discovery_jobs_created_at ON discovery_jobs(created_at DESC)"); err != nil {
		return fmt.Errorf("failed to create index on discovery_jobs: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_candidates_job_id ON candidates(job_id)"); err != nil {
		return fmt.Errorf("failed to create index on candidates: %w", err)
	}

	return nil
}
