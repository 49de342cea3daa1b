package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

const schemaLockKey int64 = 2026101801

const jobColumns = `id, file_name, content_type, storage_path, extracted_text_path, status, message,
	document_type, confidence_score, extracted_entities, retrieved_knowledge, summary, key_findings,
	safety_assessment, uploaded_at, updated_at, completed_at`

type AnalysisRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *AnalysisRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	content_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	extracted_text_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL DEFAULT '',
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	extracted_entities JSONB NOT NULL DEFAULT '[]'::jsonb,
	retrieved_knowledge JSONB NOT NULL DEFAULT '[]'::jsonb,
	summary TEXT NOT NULL DEFAULT '',
	key_findings JSONB NOT NULL DEFAULT '[]'::jsonb,
	safety_assessment JSONB NOT NULL DEFAULT '[]'::jsonb,
	uploaded_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs(status);
CREATE INDEX IF NOT EXISTS idx_analysis_jobs_uploaded_at ON analysis_jobs(uploaded_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) Create(ctx context.Context, job *domain.AnalysisJob) error {
	payload, err := encodeResult(job.Result())
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO analysis_jobs (`+jobColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
		job.DocumentID, job.FileName, job.ContentType, job.StoragePath, job.ExtractedTextPath,
		string(job.Status), job.Message, job.DocumentType, job.ConfidenceScore,
		payload.entities, payload.knowledge, job.Summary, payload.findings, payload.alerts,
		job.UploadedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis job: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) GetByID(ctx context.Context, id string) (*domain.AnalysisJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get analysis job", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return job, nil
}

// Update locks the row, merges the update through the status machine and
// writes it back in one transaction.
func (r *AnalysisRepository) Update(ctx context.Context, id string, update domain.JobUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1 FOR UPDATE`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrDocumentNotFound, "update analysis job", fmt.Errorf("id=%s", id))
		}
		return err
	}

	if err := update.Apply(job, r.now()); err != nil {
		return fmt.Errorf("update analysis job %s: %w", id, err)
	}

	payload, err := encodeResult(job.Result())
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE analysis_jobs
SET status = $2, message = $3, document_type = $4, confidence_score = $5,
	extracted_entities = $6, retrieved_knowledge = $7, summary = $8, key_findings = $9,
	safety_assessment = $10, updated_at = $11, completed_at = COALESCE(completed_at, $12)
WHERE id = $1
`,
		id, string(job.Status), job.Message, job.DocumentType, job.ConfidenceScore,
		payload.entities, payload.knowledge, job.Summary, payload.findings, payload.alerts,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update analysis job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.AnalysisJob, error) {
	var job domain.AnalysisJob
	var status string
	var entitiesRaw, knowledgeRaw, findingsRaw, alertsRaw []byte

	err := row.Scan(
		&job.DocumentID, &job.FileName, &job.ContentType, &job.StoragePath, &job.ExtractedTextPath,
		&status, &job.Message, &job.DocumentType, &job.ConfidenceScore,
		&entitiesRaw, &knowledgeRaw, &job.Summary, &findingsRaw, &alertsRaw,
		&job.UploadedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan analysis job: %w", err)
	}
	job.Status = domain.ProcessingStatus(status)

	if err := unmarshalColumn(entitiesRaw, &job.ExtractedEntities, "extracted_entities"); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(knowledgeRaw, &job.RetrievedKnowledge, "retrieved_knowledge"); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(findingsRaw, &job.KeyFindings, "key_findings"); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(alertsRaw, &job.SafetyAssessment, "safety_assessment"); err != nil {
		return nil, err
	}

	if job.ExtractedEntities == nil {
		job.ExtractedEntities = []domain.MedicalEntity{}
	}
	if job.RetrievedKnowledge == nil {
		job.RetrievedKnowledge = []string{}
	}
	if job.KeyFindings == nil {
		job.KeyFindings = []string{}
	}
	if job.SafetyAssessment == nil {
		job.SafetyAssessment = []domain.SafetyAlert{}
	}
	return &job, nil
}

func unmarshalColumn(raw []byte, dest any, column string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", column, err)
	}
	return nil
}

type resultPayload struct {
	entities  []byte
	knowledge []byte
	findings  []byte
	alerts    []byte
}

func encodeResult(result domain.AnalysisResult) (resultPayload, error) {
	var payload resultPayload
	var err error
	if payload.entities, err = marshalList(result.ExtractedEntities); err != nil {
		return resultPayload{}, fmt.Errorf("marshal extracted_entities: %w", err)
	}
	if payload.knowledge, err = marshalList(result.RetrievedKnowledge); err != nil {
		return resultPayload{}, fmt.Errorf("marshal retrieved_knowledge: %w", err)
	}
	if payload.findings, err = marshalList(result.KeyFindings); err != nil {
		return resultPayload{}, fmt.Errorf("marshal key_findings: %w", err)
	}
	if payload.alerts, err = marshalList(result.SafetyAssessment); err != nil {
		return resultPayload{}, fmt.Errorf("marshal safety_assessment: %w", err)
	}
	return payload, nil
}

func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
