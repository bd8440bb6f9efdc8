package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/framefold/framefold/internal/domain"
)

const runSchemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	job JSONB NOT NULL,
	source_keys JSONB NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	result_key TEXT NOT NULL DEFAULT '',
	result_name TEXT NOT NULL DEFAULT '',
	result_mime TEXT NOT NULL DEFAULT '',
	rejected JSONB NOT NULL DEFAULT '[]',
	error_message TEXT NOT NULL DEFAULT '',
	progress_label TEXT NOT NULL DEFAULT '',
	progress_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	items_processed INTEGER NOT NULL,
	pixels_processed BIGINT NOT NULL,
	output_bytes BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresRunStore struct {
	db *sql.DB
}

func NewPostgresRunStore(ctx context.Context, dsn string) (*PostgresRunStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresRunStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresRunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, runSchemaSQL); err != nil {
		return fmt.Errorf("ensure runs schema: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) Close() error {
	return s.db.Close()
}

func (s *PostgresRunStore) Create(ctx context.Context, run domain.Run) error {
	jobJSON, err := json.Marshal(run.Job)
	if err != nil {
		return fmt.Errorf("marshal run job: %w", err)
	}
	sourceKeysJSON, err := json.Marshal(run.SourceKeys)
	if err != nil {
		return fmt.Errorf("marshal source keys: %w", err)
	}
	rejectedJSON, err := json.Marshal(run.Rejected)
	if err != nil {
		return fmt.Errorf("marshal rejected names: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, status, job, source_keys, webhook_url, result_key, result_name, result_mime,
		                   rejected, error_message, progress_label, progress_percent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.ID,
		run.Status,
		jobJSON,
		sourceKeysJSON,
		run.WebhookURL,
		run.ResultKey,
		run.ResultName,
		run.ResultMIME,
		rejectedJSON,
		run.ErrMessage,
		run.Progress.Label,
		run.Progress.Percent,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	return nil
}

func (s *PostgresRunStore) Get(ctx context.Context, id string) (domain.Run, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, job, source_keys, webhook_url, result_key, result_name, result_mime,
		        rejected, error_message, progress_label, progress_percent, created_at, updated_at
		 FROM runs
		 WHERE id = $1`,
		id,
	)

	var (
		run            domain.Run
		jobJSON        []byte
		sourceKeysJSON []byte
		rejectedJSON   []byte
	)
	if err := row.Scan(
		&run.ID,
		&run.Status,
		&jobJSON,
		&sourceKeysJSON,
		&run.WebhookURL,
		&run.ResultKey,
		&run.ResultName,
		&run.ResultMIME,
		&rejectedJSON,
		&run.ErrMessage,
		&run.Progress.Label,
		&run.Progress.Percent,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Run{}, false, nil
		}
		return domain.Run{}, false, fmt.Errorf("query run: %w", err)
	}

	if err := json.Unmarshal(jobJSON, &run.Job); err != nil {
		return domain.Run{}, false, fmt.Errorf("unmarshal run job: %w", err)
	}
	if err := json.Unmarshal(sourceKeysJSON, &run.SourceKeys); err != nil {
		return domain.Run{}, false, fmt.Errorf("unmarshal source keys: %w", err)
	}
	if err := json.Unmarshal(rejectedJSON, &run.Rejected); err != nil {
		return domain.Run{}, false, fmt.Errorf("unmarshal rejected names: %w", err)
	}

	return run, true, nil
}

func (s *PostgresRunStore) UpdateStatus(ctx context.Context, id, status string) (domain.Run, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.Run{}, fmt.Errorf("update run status: %w", err)
	}

	run, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Run{}, err
	}
	if !ok {
		return domain.Run{}, ErrRunNotFound
	}

	return run, nil
}

func (s *PostgresRunStore) UpdateProgress(ctx context.Context, id string, progress domain.ProgressUpdate) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET progress_label = $1, progress_percent = $2, updated_at = $3 WHERE id = $4`,
		progress.Label,
		progress.Percent,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) SetResult(ctx context.Context, id, resultKey, resultName, resultMIME string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET result_key = $1, result_name = $2, result_mime = $3, updated_at = $4 WHERE id = $5`,
		resultKey,
		resultName,
		resultMIME,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("set run result: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) SetError(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET error_message = $1, updated_at = $2 WHERE id = $3`,
		message,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("set run error: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) CreateUsageLog(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (run_id, items_processed, pixels_processed, output_bytes, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		usage.RunID,
		usage.ItemsProcessed,
		usage.PixelsProcessed,
		usage.OutputBytes,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}
