package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"parallax/internal/domain"
)

// PostgresLedger implements domain.JobLedger on PostgreSQL.
//
// The lifecycle invariants are enforced in SQL: every UPDATE carries a
// status-not-terminal predicate, and progress is written through GREATEST so
// a stale writer can never move it backwards.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a ledger backed by the given pool.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// Migrate creates the jobs and assets tables when missing.
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
    id                TEXT PRIMARY KEY,
    status            TEXT NOT NULL DEFAULT 'pending',
    input_type        TEXT,
    progress          INTEGER NOT NULL DEFAULT 0,
    error_message     TEXT,
    original_filename TEXT NOT NULL,
    outputs           JSONB,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS assets (
    id           TEXT PRIMARY KEY,
    job_id       TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    asset_type   TEXT NOT NULL,
    filename     TEXT NOT NULL,
    content_type TEXT NOT NULL,
    bytes        BIGINT NOT NULL,
    metadata     JSONB,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (job_id, asset_type)
);
`)
	if err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	return nil
}

// CreateJob inserts a new job record.
func (l *PostgresLedger) CreateJob(ctx context.Context, job *domain.Job) error {
	_, err := l.pool.Exec(ctx, `
INSERT INTO jobs (id, status, input_type, progress, original_filename)
VALUES ($1, $2, NULLIF($3, ''), $4, $5);
`, job.ID, job.Status, string(job.InputType), job.Progress, job.OriginalFilename)
	return err
}

// GetJob fetches a job by its identifier.
func (l *PostgresLedger) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := l.pool.QueryRow(ctx, `
SELECT id, status, COALESCE(input_type, ''), progress, COALESCE(error_message, ''),
       original_filename, outputs, created_at, updated_at
FROM jobs
WHERE id = $1;
`, id)
	return scanJob(row)
}

// UpdateJob applies a partial update. Updates against a terminal job match no
// row and surface as ErrJobTerminal so callers never silently lose a write.
func (l *PostgresLedger) UpdateJob(ctx context.Context, id string, upd domain.JobUpdate) error {
	var outputs []byte
	if upd.Outputs != nil {
		encoded, err := json.Marshal(upd.Outputs)
		if err != nil {
			return fmt.Errorf("ledger: encode outputs: %w", err)
		}
		outputs = encoded
	}
	tag, err := l.pool.Exec(ctx, `
UPDATE jobs
SET status        = COALESCE($2, status),
    input_type    = COALESCE($3, input_type),
    progress      = GREATEST(progress, COALESCE($4, progress)),
    error_message = COALESCE($5, error_message),
    outputs       = COALESCE($6, outputs),
    updated_at    = NOW()
WHERE id = $1
  AND status NOT IN ('completed', 'failed');
`, id, statusArg(upd.Status), inputTypeArg(upd.InputType), upd.Progress, upd.Error, outputs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := l.GetJob(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrJobTerminal
	}
	return nil
}

// DeleteJob removes the job; assets cascade.
func (l *PostgresLedger) DeleteJob(ctx context.Context, id string) error {
	tag, err := l.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateAsset inserts an asset record.
func (l *PostgresLedger) CreateAsset(ctx context.Context, asset *domain.Asset) error {
	metadata, err := json.Marshal(asset.Metadata)
	if err != nil {
		return fmt.Errorf("ledger: encode metadata: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
INSERT INTO assets (id, job_id, asset_type, filename, content_type, bytes, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`, asset.ID, asset.JobID, asset.Type, asset.Filename, asset.ContentType, asset.Size, metadata)
	return err
}

// GetAsset fetches an asset by id.
func (l *PostgresLedger) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	row := l.pool.QueryRow(ctx, `
SELECT id, job_id, asset_type, filename, content_type, bytes, metadata, created_at
FROM assets
WHERE id = $1;
`, id)
	return scanAsset(row)
}

// ListAssetsByJob returns all assets belonging to the job.
func (l *PostgresLedger) ListAssetsByJob(ctx context.Context, jobID string) ([]domain.Asset, error) {
	rows, err := l.pool.Query(ctx, `
SELECT id, job_id, asset_type, filename, content_type, bytes, metadata, created_at
FROM assets
WHERE job_id = $1
ORDER BY created_at ASC;
`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var status, inputType string
	var outputs []byte
	if err := row.Scan(
		&job.ID,
		&status,
		&inputType,
		&job.Progress,
		&job.Error,
		&job.OriginalFilename,
		&outputs,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	parsedStatus, err := domain.ParseJobStatus(status)
	if err != nil {
		return nil, err
	}
	job.Status = parsedStatus
	if inputType != "" {
		parsedType, err := domain.ParseInputType(inputType)
		if err != nil {
			return nil, err
		}
		job.InputType = parsedType
	}
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &job.Outputs); err != nil {
			return nil, fmt.Errorf("ledger: decode outputs: %w", err)
		}
	}
	return &job, nil
}

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var asset domain.Asset
	var assetType string
	var metadata []byte
	if err := row.Scan(
		&asset.ID,
		&asset.JobID,
		&assetType,
		&asset.Filename,
		&asset.ContentType,
		&asset.Size,
		&metadata,
		&asset.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	parsed, err := domain.ParseAssetType(assetType)
	if err != nil {
		return nil, err
	}
	asset.Type = parsed
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &asset.Metadata); err != nil {
			return nil, fmt.Errorf("ledger: decode metadata: %w", err)
		}
	}
	return &asset, nil
}

func statusArg(s *domain.JobStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func inputTypeArg(t *domain.InputType) *string {
	if t == nil {
		return nil
	}
	v := string(*t)
	return &v
}

var _ domain.JobLedger = (*PostgresLedger)(nil)
