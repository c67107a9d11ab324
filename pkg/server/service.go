package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/talent-scout/pkg/clients"
	"github.com/mikeboe/talent-scout/pkg/config"
	"github.com/mikeboe/talent-scout/pkg/database"
	"github.com/mikeboe/talent-scout/pkg/discovery"
	"github.com/mikeboe/talent-scout/pkg/discovery/sources"
)

type Service struct {
	DB    *database.PostgresDB
	Store *database.CandidateStore
	Cfg   *config.Config
}

func NewService(db *database.PostgresDB, store *database.CandidateStore, cfg *config.Config) *Service {
	return &Service{DB: db, Store: store, Cfg: cfg}
}

type Job struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Location    string          `json:"location"`
	Keywords    []string        `json:"keywords"`
	Mode        string          `json:"mode"`
	Status      string          `json:"status"`
	RequestedBy string          `json:"requested_by"`
	State       json.RawMessage `json:"state,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type CreateJobRequest struct {
	Title       string   `json:"title" binding:"required"`
	Location    string   `json:"location"`
	Keywords    []string `json:"keywords"`
	Summary     string   `json:"summary"`
	Guidance    string   `json:"guidance"`
	Mode        string   `json:"mode"`
	RequestedBy string   `json:"requested_by"`
	Passes      int      `json:"passes"`
}

func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	mode := normalizeMode(req.Mode)
	if req.Passes < 1 {
		req.Passes = 1
	}

	jobID := uuid.New()
	query := `
		INSERT INTO discovery_jobs (id, title, location, keywords, summary, guidance, mode, status, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
		RETURNING id, title, location, keywords, mode, status, requested_by, created_at, updated_at
	`

	job := &Job{}
	err := s.DB.Pool.QueryRow(ctx, query,
		jobID, req.Title, req.Location, req.Keywords, req.Summary, req.Guidance, string(mode), req.RequestedBy,
	).Scan(&job.ID, &job.Title, &job.Location, &job.Keywords, &job.Mode, &job.Status, &job.RequestedBy, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	jobCtx := discovery.JobContext{
		JobID:    jobID,
		Title:    req.Title,
		Location: req.Location,
		Keywords: req.Keywords,
		Summary:  req.Summary,
		Guidance: req.Guidance,
	}
	go s.RunDiscovery(context.Background(), jobCtx, mode, req.Guidance, req.RequestedBy, req.Passes)

	return job, nil
}

// Rerun triggers an additional discovery pass for an existing job. The stored
// candidates are preloaded as exclusions, so the pass only surfaces net-new
// people.
func (s *Service) Rerun(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var keywords []string
	var summary, guidance string
	err = s.DB.Pool.QueryRow(ctx,
		"SELECT keywords, summary, guidance FROM discovery_jobs WHERE id = $1", jobID,
	).Scan(&keywords, &summary, &guidance)
	if err != nil {
		return nil, fmt.Errorf("failed to load job fields: %w", err)
	}

	jobCtx := discovery.JobContext{
		JobID:    jobID,
		Title:    job.Title,
		Location: job.Location,
		Keywords: keywords,
		Summary:  summary,
		Guidance: guidance,
	}
	go s.RunDiscovery(context.Background(), jobCtx, normalizeMode(job.Mode), guidance, job.RequestedBy, 1)
	return job, nil
}

// RunDiscovery is the async run trigger: it executes the requested number of
// discovery passes for the job and records status, state snapshots, and logs
// in the database. Meant to be called on its own goroutine. Cancelling ctx
// stops the engine between rounds; status writes use a detached context so
// the job record reflects the outcome either way.
func (s *Service) RunDiscovery(ctx context.Context, job discovery.JobContext, mode discovery.Mode, customPrompt, userID string, passes int) {
	dbCtx := context.WithoutCancel(ctx)

	_, _ = s.DB.Pool.Exec(dbCtx, "UPDATE discovery_jobs SET status = 'running', updated_at = NOW() WHERE id = $1", job.JobID)

	dbLogger := slog.New(NewDBLogHandler(s.DB, job.JobID))
	if customPrompt != "" {
		job.Guidance = customPrompt
	}

	engine, err := s.buildEngine(dbCtx, dbLogger, mode)
	if err != nil {
		s.failJob(dbCtx, job.JobID, fmt.Sprintf("Failed to init engine: %v", err))
		return
	}

	engine.OnStateUpdate = func(state discovery.RunState) {
		stateJSON, err := json.Marshal(state)
		if err != nil {
			dbLogger.Error("Failed to marshal state", "error", err)
			return
		}
		_, err = s.DB.Pool.Exec(context.Background(),
			"UPDATE discovery_jobs SET state = $2, updated_at = NOW() WHERE id = $1",
			job.JobID, stateJSON)
		if err != nil {
			dbLogger.Error("Failed to save state to DB", "error", err)
		}
	}

	// Prior runs' candidates seed the exclusion set.
	exclusions, err := s.Store.LoadExclusions(dbCtx, job.JobID)
	if err != nil {
		dbLogger.Warn("Failed to preload exclusions, starting empty", "error", err)
		exclusions = discovery.NewExclusionSet()
	}

	found, err := engine.RunPasses(ctx, job, userID, exclusions, passes)
	switch {
	case errors.Is(err, context.Canceled):
		// An interrupted run already persisted what it found.
		dbLogger.Warn("Discovery interrupted", "candidates", len(found))
		_, _ = s.DB.Pool.Exec(dbCtx, "UPDATE discovery_jobs SET status = 'completed', updated_at = NOW() WHERE id = $1", job.JobID)
		return
	case err != nil:
		s.failJob(dbCtx, job.JobID, fmt.Sprintf("Discovery failed: %v", err))
		return
	}

	dbLogger.Info("Discovery run stored", "candidates", len(found))
	_, _ = s.DB.Pool.Exec(dbCtx, "UPDATE discovery_jobs SET status = 'completed', updated_at = NOW() WHERE id = $1", job.JobID)
}

func (s *Service) buildEngine(ctx context.Context, logger *slog.Logger, mode discovery.Mode) (*discovery.Engine, error) {
	cfg := s.Cfg

	factory := func(model string) (llms.Model, error) { return clients.GoogleAI(model) }
	cascade := discovery.NewModelCascade(cfg.PlannerModels, factory, logger)

	validator := discovery.NewEvidenceValidator(logger)
	validator.Client.Timeout = cfg.FetchTimeout
	validator.FetchDelay = cfg.FetchDelay
	validator.NameThreshold = cfg.NameThreshold
	validator.FieldThreshold = cfg.FieldThreshold

	people := sources.NewPeopleSearchClient(cfg.PeopleSearchURL, cfg.PeopleSearchKey, cfg.PeopleSearchInterval, logger)

	var web discovery.WebSource
	if mode == discovery.ModeStructuredAndWeb {
		client, err := sources.NewWebResearchClient(ctx, cfg.GoogleApiKey, cfg.GroundingModel, logger)
		if err != nil {
			return nil, err
		}
		web = client
	}

	opts := discovery.DefaultOptions()
	opts.Mode = mode
	opts.TargetCount = cfg.TargetCount
	opts.MaxLoops = cfg.MaxLoops
	opts.TimeBudget = cfg.TimeBudget
	opts.QueriesPerRound = cfg.QueriesPerRound

	return &discovery.Engine{
		Planner:   &discovery.QueryPlanner{Cascade: cascade, Logger: logger},
		Reflector: &discovery.ReflectionPlanner{Cascade: cascade, Logger: logger},
		Dispatcher: &discovery.Dispatcher{
			Structured:  people,
			Web:         web,
			Logger:      logger,
			PerQueryCap: cfg.PeopleSearchPerPage,
			PageWindow:  cfg.PageWindow,
		},
		Aggregator: &discovery.Aggregator{Validator: validator, Logger: logger},
		Sink:       s.Store,
		Options:    opts,
		Logger:     logger,
	}, nil
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, reason string) {
	dbLogger := slog.New(NewDBLogHandler(s.DB, jobID))
	dbLogger.Error(reason)
	_, _ = s.DB.Pool.Exec(ctx, "UPDATE discovery_jobs SET status = 'failed', updated_at = NOW() WHERE id = $1", jobID)
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `
		SELECT id, title, location, keywords, mode, status, requested_by, state, created_at, updated_at
		FROM discovery_jobs
		WHERE id = $1
	`
	job := &Job{}
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Title, &job.Location, &job.Keywords, &job.Mode, &job.Status,
		&job.RequestedBy, &job.State, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	query := `
		SELECT id, title, location, keywords, mode, status, requested_by, created_at, updated_at
		FROM discovery_jobs
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.Title, &job.Location, &job.Keywords, &job.Mode,
			&job.Status, &job.RequestedBy, &job.CreatedAt, &job.UpdatedAt); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

type Candidate struct {
	ID              uuid.UUID  `json:"id"`
	FullName        string     `json:"full_name"`
	Title           string     `json:"title"`
	Company         string     `json:"company"`
	Location        string     `json:"location"`
	Notes           string     `json:"notes"`
	SourceKind      string     `json:"source_kind"`
	SourceURL       string     `json:"source_url"`
	EvidenceSnippet string     `json:"evidence_snippet"`
	FoundByIntent   string     `json:"found_by_intent"`
	ValidatedAt     *time.Time `json:"validated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (s *Service) ListCandidates(ctx context.Context, jobID uuid.UUID) ([]Candidate, error) {
	query := `
		SELECT id, full_name, title, company, location, notes, source_kind,
		       source_url, evidence_snippet, found_by_intent, validated_at, created_at
		FROM candidates
		WHERE job_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.FullName, &c.Title, &c.Company, &c.Location, &c.Notes,
			&c.SourceKind, &c.SourceURL, &c.EvidenceSnippet, &c.FoundByIntent, &c.ValidatedAt, &c.CreatedAt); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM discovery_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

type EvidenceHit struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	SourceURL   string    `json:"source_url"`
	Snippet     string    `json:"snippet"`
	Score       float64   `json:"score"`
}

// SearchEvidence runs a semantic search over a job's stored evidence
// snippets. Requires the embedding store to be configured.
func (s *Service) SearchEvidence(ctx context.Context, jobID uuid.UUID, query string, topK int) ([]EvidenceHit, error) {
	if s.Store.Embedder == nil || s.Store.Evidence == nil {
		return nil, fmt.Errorf("evidence search is not configured")
	}
	if topK < 1 {
		topK = 5
	}

	vec, err := s.Store.Embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	matches, err := s.Store.Evidence.SearchSimilar(ctx, jobID, vec, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]EvidenceHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, EvidenceHit{
			CandidateID: m.Doc.CandidateID,
			SourceURL:   m.Doc.SourceURL,
			Snippet:     m.Doc.Snippet,
			Score:       m.Score,
		})
	}
	return hits, nil
}

func normalizeMode(mode string) discovery.Mode {
	switch mode {
	case string(discovery.ModeStructuredOnly):
		return discovery.ModeStructuredOnly
	default:
		return discovery.ModeStructuredAndWeb
	}
}
