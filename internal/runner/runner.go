// Package runner is the job queue daemon: it holds the global advisory
// lock, listens for inserted jobs, and executes them one at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/srcf/warden/internal/common"
	"github.com/srcf/warden/internal/interfaces"
	"github.com/srcf/warden/internal/jobs"
	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/tasks"
)

// LockKey is the advisory lock constant every runner contends on; the
// holder is the one live runner.
const LockKey = 0x366636F6E7472

// NotifyChannel is the Postgres channel submitters signal on.
const NotifyChannel = "jobs_insert"

// ErrDatabaseLocked means another runner already holds the lock.
var ErrDatabaseLocked = errors.New("job database is locked by another runner")

// Runner drains and executes the job queue.
type Runner struct {
	store       interfaces.JobStore
	deps        *tasks.Deps
	logger      arbor.ILogger
	environment string
	wakeEvery   time.Duration
	schedule    string

	// lockConn is a dedicated connection outside any pool; the advisory
	// lock and the LISTEN subscription live on it for the process
	// lifetime.
	lockConn *pgx.Conn
	cron     *cron.Cron
}

// New assembles a runner around an already-connected task dependency
// set.
func New(store interfaces.JobStore, deps *tasks.Deps, config *common.Config, logger arbor.ILogger) *Runner {
	return &Runner{
		store:       store,
		deps:        deps,
		logger:      logger,
		environment: config.Environment,
		wakeEvery:   config.Runner.WakeInterval,
		schedule:    config.Runner.MaintenanceSchedule,
	}
}

// AcquireLock connects a dedicated session and takes the advisory lock,
// failing with ErrDatabaseLocked when another runner holds it.
func (r *Runner) AcquireLock(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting lock session: %w", err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, int64(LockKey)).Scan(&locked); err != nil {
		conn.Close(ctx)
		return fmt.Errorf("acquiring runner lock: %w", err)
	}
	if !locked {
		conn.Close(ctx)
		return ErrDatabaseLocked
	}
	r.lockConn = conn
	r.logger.Info().Str("key", fmt.Sprintf("%#x", int64(LockKey))).Msg("Acquired runner lock")
	return nil
}

// Close releases the lock session.
func (r *Runner) Close(ctx context.Context) {
	if r.cron != nil {
		r.cron.Stop()
	}
	if r.lockConn != nil {
		r.lockConn.Close(ctx)
		r.lockConn = nil
	}
}

// Run subscribes, drains the backlog, and then dispatches ids as they
// arrive until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.lockConn == nil {
		return errors.New("runner lock not held")
	}
	if _, err := r.lockConn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("subscribing to %s: %w", NotifyChannel, err)
	}
	r.startMaintenance()

	if err := r.drainBacklog(ctx); err != nil {
		return err
	}

	for {
		id, err := r.waitForJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if id == 0 {
			// Wake interval elapsed without a notification; re-poll in
			// case one was missed.
			if err := r.drainBacklog(ctx); err != nil {
				return err
			}
			continue
		}
		if err := r.Dispatch(ctx, id); err != nil {
			return err
		}
	}
}

// drainBacklog runs every queued job, oldest first.
func (r *Runner) drainBacklog(ctx context.Context) error {
	queued, err := r.store.ListQueued(ctx, r.environment)
	if err != nil {
		return err
	}
	for _, job := range queued {
		if err := r.Dispatch(ctx, job.ID); err != nil {
			return err
		}
	}
	return nil
}

// waitForJob blocks for the next notification, bounded by the wake
// interval. A zero id means the interval elapsed quietly.
func (r *Runner) waitForJob(ctx context.Context) (int64, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.wakeEvery)
	defer cancel()
	notification, err := r.lockConn.WaitForNotification(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, nil
		}
		return 0, err
	}
	id, err := strconv.ParseInt(notification.Payload, 10, 64)
	if err != nil {
		r.logger.Warn().Str("payload", notification.Payload).Msg("Ignoring malformed notification")
		return 0, nil
	}
	return id, nil
}

// Dispatch runs one job id end to end. Ids may arrive more than once;
// the state recheck makes duplicates harmless.
func (r *Runner) Dispatch(ctx context.Context, id int64) error {
	job, err := r.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil || job.State != models.JobQueued {
		return nil
	}

	handler, err := jobs.Lookup(job.Type)
	if err != nil {
		return r.failJob(ctx, job, err.Error(), "")
	}
	description := handler.Describe(job)

	r.logger.Info().Int64("job", id).Str("type", job.Type).Msg("Started: " + description)
	if err := r.logJob(ctx, id, models.LogInfo, models.LogStarted, description, ""); err != nil {
		return err
	}
	if err := job.MarkRunning(); err != nil {
		// Lost a race with an operator action; leave the row alone.
		r.logger.Warn().Int64("job", id).Err(err).Msg("Skipping job")
		return nil
	}
	if err := r.store.UpdateJobState(ctx, id, job.State, job.StateMessage); err != nil {
		return err
	}

	result, runErr := handler.Run(ctx, r.deps, job)
	if runErr == nil {
		if result != nil {
			if err := r.logJob(ctx, id, models.LogInfo, models.LogOutput, "Result", result.String()); err != nil {
				return err
			}
		}
		job.MarkDone("")
		if err := r.store.UpdateJobState(ctx, id, job.State, job.StateMessage); err != nil {
			return err
		}
		r.logger.Info().Int64("job", id).Msg("Completed: " + description)
		return r.logJob(ctx, id, models.LogInfo, models.LogDone, "Completed", "")
	}

	var failed *jobs.JobFailed
	if errors.As(runErr, &failed) {
		// A clean failure: the task itself reported why.
		job.MarkFailed(failed.Message)
		if err := r.store.UpdateJobState(ctx, id, job.State, job.StateMessage); err != nil {
			return err
		}
		r.logger.Warn().Int64("job", id).Str("reason", failed.Message).Msg("Failed: " + description)
		if err := r.logJob(ctx, id, models.LogWarning, models.LogTypeFail, failed.Message, failed.Raw); err != nil {
			return err
		}
		return r.mailFailure(ctx, job, description, failed.Message, failed.Raw)
	}

	// Unexpected error: the row may be dirty from the in-flight step, so
	// re-read before recording the failure.
	return r.failUnexpected(ctx, id, description, runErr)
}

func (r *Runner) failUnexpected(ctx context.Context, id int64, description string, runErr error) error {
	job, err := r.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	r.logger.Error().Int64("job", id).Err(runErr).Msg("Job crashed: " + description)
	if err := r.logJob(ctx, id, models.LogError, models.LogTypeFail, runErr.Error(), fmt.Sprintf("%+v", runErr)); err != nil {
		return err
	}
	job.MarkFailed(runErr.Error())
	if err := r.store.UpdateJobState(ctx, id, job.State, job.StateMessage); err != nil {
		return err
	}
	return r.mailFailure(ctx, job, description, runErr.Error(), fmt.Sprintf("%+v", runErr))
}

func (r *Runner) failJob(ctx context.Context, job *models.Job, message, raw string) error {
	job.MarkFailed(message)
	if err := r.store.UpdateJobState(ctx, job.ID, job.State, job.StateMessage); err != nil {
		return err
	}
	if err := r.logJob(ctx, job.ID, models.LogError, models.LogTypeFail, message, raw); err != nil {
		return err
	}
	return r.mailFailure(ctx, job, job.Type, message, raw)
}

func (r *Runner) logJob(ctx context.Context, id int64, level models.LogLevel, logType models.LogType, message, raw string) error {
	return r.store.AppendJobLog(ctx, &models.JobLogEntry{
		JobID:   id,
		Level:   level,
		Type:    logType,
		Message: message,
		Raw:     raw,
	})
}

// mailFailure reports a failed job to the sysadmins.
func (r *Runner) mailFailure(ctx context.Context, job *models.Job, description, message, raw string) error {
	subject := fmt.Sprintf("Job %d failed: %s", job.ID, description)
	body := fmt.Sprintf("Job:    %d (%s)\nOwner:  %s\nError:  %s\n", job.ID, job.Type, job.Owner, message)
	if raw != "" {
		body += "\n" + raw + "\n"
	}
	return r.deps.Notifier.SendSysadmins(ctx, subject, body)
}


// startMaintenance schedules the daily digest of jobs needing operator
// attention.
func (r *Runner) startMaintenance() {
	if r.schedule == "" {
		return
	}
	r.cron = cron.New()
	r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := r.sendDigest(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("Maintenance digest failed")
		}
	})
	r.cron.Start()
}

// sendDigest mails sysadmins when jobs are stuck awaiting approval or
// left running by a crashed process.
func (r *Runner) sendDigest(ctx context.Context) error {
	counts, err := r.store.CountByState(ctx, r.environment)
	if err != nil {
		return err
	}
	unapproved := counts[models.JobUnapproved]
	running := counts[models.JobRunning]
	if unapproved == 0 && running == 0 {
		return nil
	}
	body := fmt.Sprintf("Jobs awaiting approval: %d\nJobs stuck in running:  %d\n", unapproved, running)
	return r.deps.Notifier.SendSysadmins(ctx, "Job queue needs attention", body)
}
