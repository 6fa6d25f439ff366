package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/srcf/warden/internal/models"
)

const jobColumns = `job_id, created_at, coalesce(owner, ''), type, state,
	state_message, environment, args`

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	var args pgtype.Hstore
	err := row.Scan(&job.ID, &job.CreatedAt, &job.Owner, &job.Type, &job.State,
		&job.StateMessage, &job.Environment, &args)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Args = make(map[string]string, len(args))
	for key, value := range args {
		if value != nil {
			job.Args[key] = *value
		}
	}
	return &job, nil
}

func hstoreArgs(args map[string]string) pgtype.Hstore {
	out := make(pgtype.Hstore, len(args))
	for key, value := range args {
		v := value
		out[key] = &v
	}
	return out
}

func (s *Store) CreateJob(ctx context.Context, job *models.Job) (int64, error) {
	owner := sql.NullString{String: job.Owner, Valid: job.Owner != ""}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (owner, type, state, state_message, environment, args)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING job_id, created_at`,
		owner, job.Type, job.State, job.StateMessage, job.Environment,
		hstoreArgs(job.Args)).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("creating %s job: %w", job.Type, err)
	}
	return job.ID, nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, id)
	job, err := scanJob(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("getting job %d: %w", id, err)
	}
	return job, err
}

func (s *Store) ListQueued(ctx context.Context, environment string) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE state = 'queued' AND environment = $1
		 ORDER BY job_id`, environment)
	if err != nil {
		return nil, fmt.Errorf("listing queued jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Job, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, fmt.Errorf("listing queued jobs: %w", err)
	}
	return jobs, nil
}

func (s *Store) CountByState(ctx context.Context, environment string) (map[models.JobState]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT state, count(*) FROM jobs WHERE environment = $1 GROUP BY state`,
		environment)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()
	counts := make(map[models.JobState]int)
	for rows.Next() {
		var state models.JobState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("counting jobs: %w", err)
		}
		counts[state] = count
	}
	return counts, rows.Err()
}

func (s *Store) UpdateJobState(ctx context.Context, id int64, state models.JobState, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = $2, state_message = $3 WHERE job_id = $1`,
		id, state, message)
	if err != nil {
		return fmt.Errorf("updating job %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AppendJobLog(ctx context.Context, entry *models.JobLogEntry) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO job_log (job_id, level, type, message, raw)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING log_id, created_at`,
		entry.JobID, entry.Level, entry.Type, entry.Message, entry.Raw).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("logging for job %d: %w", entry.JobID, err)
	}
	return nil
}

// Scrub predicates. Rows are matched regardless of state: personal data
// must go even from rows still sitting unapproved or queued.
const (
	// scrubStatement strips the named argument keys from every matching
	// row of one job type.
	scrubStatement = `UPDATE jobs SET args = delete(args, $3::text[])
		 WHERE type = $2 AND `
	// scrubMemberCondition catches jobs owned by the member plus the
	// ownerless rows (signup) that carry the crsid as an argument.
	scrubMemberCondition = `(owner = $1 OR args -> 'crsid' = $1)`
	// scrubSocietyCondition matches on the society argument; the owner
	// column always holds a member crsid, never a society name.
	scrubSocietyCondition = `args -> 'society' = $1`
)

// ScrubMemberJobs blanks the secret arguments across the member's whole
// job history, so deleting an account leaves no personal data behind.
func (s *Store) ScrubMemberJobs(ctx context.Context, crsid string, sensitive map[string][]string) error {
	return s.scrubJobs(ctx, scrubMemberCondition, crsid, sensitive)
}

// ScrubSocietyJobs blanks the secret arguments of every job that names
// the society.
func (s *Store) ScrubSocietyJobs(ctx context.Context, society string, sensitive map[string][]string) error {
	return s.scrubJobs(ctx, scrubSocietyCondition, society, sensitive)
}

func (s *Store) scrubJobs(ctx context.Context, condition, subject string, sensitive map[string][]string) error {
	for jobType, keys := range sensitive {
		if len(keys) == 0 {
			continue
		}
		_, err := s.pool.Exec(ctx, scrubStatement+condition, subject, jobType, keys)
		if err != nil {
			return fmt.Errorf("scrubbing %s jobs of %s: %w", jobType, subject, err)
		}
	}
	return nil
}
