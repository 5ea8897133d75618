package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when no row matches the requested job.
var ErrNotFound = errors.New("record not found")

type Repository interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListUnfinished(ctx context.Context) ([]*models.Job, error)
	SaveResult(ctx context.Context, result *models.AnalysisResult) error
	GetResult(ctx context.Context, jobID string) (*models.AnalysisResult, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	AppendChatMessage(ctx context.Context, msg *models.ChatMessage) error
	ListChatMessages(ctx context.Context, jobID string) ([]*models.ChatMessage, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const jobColumns = `id, kind, filename, file_size, content_type, staging_key, status, stage,
	stage_progress, progress, page_count, text_length, error, created_at, updated_at, completed_at`

var terminalStatuses = []models.JobStatus{
	models.JobStatusComplete,
	models.JobStatusFailed,
	models.JobStatusCancelled,
}

func (r *repository) SaveJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO analysis_jobs (` + jobColumns + `)
		VALUES (:id, :kind, :filename, :file_size, :content_type, :staging_key, :status, :stage,
			:stage_progress, :progress, :page_count, :text_length, :error, :created_at, :updated_at, :completed_at)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			stage = excluded.stage,
			stage_progress = excluded.stage_progress,
			progress = excluded.progress,
			page_count = excluded.page_count,
			text_length = excluded.text_length,
			error = excluded.error,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`

	if _, err := r.db.NamedExecContext(ctx, query, toUTC(job)); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (r *repository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id = ?`

	err := r.db.GetContext(ctx, &job, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

func (r *repository) ListUnfinished(ctx context.Context) ([]*models.Job, error) {
	query, args, err := sqlx.In(
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE status NOT IN (?) ORDER BY created_at`,
		terminalStatuses,
	)
	if err != nil {
		return nil, err
	}

	jobs := []*models.Job{}
	if err := r.db.SelectContext(ctx, &jobs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}
	return jobs, nil
}

func (r *repository) SaveResult(ctx context.Context, result *models.AnalysisResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	var rawJSON []byte
	if result.Raw != nil {
		if rawJSON, err = json.Marshal(result.Raw); err != nil {
			return fmt.Errorf("failed to encode raw analysis: %w", err)
		}
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE analysis_jobs SET result_json = ?, raw_json = ? WHERE id = ?`,
		string(resultJSON), nullString(rawJSON), result.JobID,
	)
	if err != nil {
		return fmt.Errorf("failed to save result for job %s: %w", result.JobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) GetResult(ctx context.Context, jobID string) (*models.AnalysisResult, error) {
	var row struct {
		Result sql.NullString `db:"result_json"`
		Raw    sql.NullString `db:"raw_json"`
	}

	err := r.db.GetContext(ctx, &row, `SELECT result_json, raw_json FROM analysis_jobs WHERE id = ?`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result for job %s: %w", jobID, err)
	}
	if !row.Result.Valid || row.Result.String == "" {
		return nil, ErrNotFound
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(row.Result.String), &result); err != nil {
		return nil, fmt.Errorf("failed to decode result for job %s: %w", jobID, err)
	}
	if row.Raw.Valid && row.Raw.String != "" {
		result.Raw = &models.RemoteAnalysis{}
		if err := json.Unmarshal([]byte(row.Raw.String), result.Raw); err != nil {
			return nil, fmt.Errorf("failed to decode raw analysis for job %s: %w", jobID, err)
		}
	}
	return &result, nil
}

// DeleteFinishedBefore removes terminal jobs last updated before cutoff, with their transcripts.
func (r *repository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	selectIDs, args, err := sqlx.In(
		`SELECT id FROM analysis_jobs WHERE status IN (?) AND updated_at < ?`,
		terminalStatuses, cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}

	var ids []string
	if err := tx.SelectContext(ctx, &ids, tx.Rebind(selectIDs), args...); err != nil {
		return 0, fmt.Errorf("failed to select expired jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, stmt := range []string{
		`DELETE FROM chat_messages WHERE job_id IN (?)`,
		`DELETE FROM analysis_jobs WHERE id IN (?)`,
	} {
		query, args, err := sqlx.In(stmt, ids)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return 0, fmt.Errorf("failed to delete expired jobs: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (r *repository) AppendChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (job_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.JobID, msg.Role, msg.Content, msg.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

func (r *repository) ListChatMessages(ctx context.Context, jobID string) ([]*models.ChatMessage, error) {
	messages := []*models.ChatMessage{}
	err := r.db.SelectContext(ctx, &messages,
		`SELECT id, job_id, role, content, created_at FROM chat_messages WHERE job_id = ? ORDER BY id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	return messages, nil
}

func toUTC(job *models.Job) *models.Job {
	c := job.Clone()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if c.CompletedAt != nil {
		t := c.CompletedAt.UTC()
		c.CompletedAt = &t
	}
	return c
}

func nullString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
