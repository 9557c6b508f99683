// Package history records finished runs in PostgreSQL for auditing.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jwhan/csvlingo/internal/domain"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Repository stores one summary row per completed or failed run. It is an
// audit log only; runs are never resumed from it.
type Repository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewRepository(cfg PostgresConfig, logger *zap.Logger) (*Repository, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	repo := &Repository{
		db:     db,
		logger: logger,
	}

	if err := repo.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("PostgreSQL connected",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
	)

	return repo, nil
}

func (r *Repository) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS run_history (
	id              BIGSERIAL PRIMARY KEY,
	job_id          TEXT NOT NULL,
	source_language TEXT NOT NULL,
	target_language TEXT NOT NULL,
	total_rows      INTEGER NOT NULL,
	processed_rows  INTEGER NOT NULL,
	failed_rows     INTEGER NOT NULL,
	failed_batches  INTEGER NOT NULL,
	degraded_cells  INTEGER NOT NULL,
	status          TEXT NOT NULL,
	duration_ms     BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create run_history table: %w", err)
	}
	return nil
}

// Record inserts one run summary. Failures are surfaced so the caller can log
// them; they never affect the run result.
func (r *Repository) Record(ctx context.Context, summary *domain.RunSummary) error {
	const query = `
INSERT INTO run_history
	(job_id, source_language, target_language, total_rows, processed_rows,
	 failed_rows, failed_batches, degraded_cells, status, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		summary.JobID,
		summary.SourceLanguage,
		summary.TargetLanguage,
		summary.TotalRows,
		summary.ProcessedRows,
		summary.FailedRows,
		summary.FailedBatches,
		summary.DegradedCells,
		summary.Status,
		summary.DurationMillis,
	)
	if err != nil {
		r.logger.Error("Failed to record run summary",
			zap.String("job_id", summary.JobID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// Recent returns the latest run summaries, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]*domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
SELECT job_id, source_language, target_language, total_rows, processed_rows,
       failed_rows, failed_batches, degraded_cells, status, duration_ms
FROM run_history
ORDER BY id DESC
LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	summaries := make([]*domain.RunSummary, 0, limit)
	for rows.Next() {
		s := &domain.RunSummary{}
		if err := rows.Scan(
			&s.JobID,
			&s.SourceLanguage,
			&s.TargetLanguage,
			&s.TotalRows,
			&s.ProcessedRows,
			&s.FailedRows,
			&s.FailedBatches,
			&s.DegradedCells,
			&s.Status,
			&s.DurationMillis,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run history row: %w", err)
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
