package jobs

import (
	"context"
	"fmt"

	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/tasks"
)

// Job type tags for SQL databases, one per (account kind, dialect,
// operation) combination.
const (
	TypeCreateMySQLUserDatabase = "create_mysql_user_database"
	TypeResetMySQLUserPassword  = "reset_mysql_user_password"
	TypeCreateMySQLSocDatabase  = "create_mysql_society_database"
	TypeResetMySQLSocPassword   = "reset_mysql_society_password"
	TypeCreatePgUserDatabase    = "create_postgres_user_database"
	TypeResetPgUserPassword     = "reset_postgres_user_password"
	TypeCreatePgSocDatabase     = "create_postgres_society_database"
	TypeResetPgSocPassword      = "reset_postgres_society_password"
)

func init() {
	register(databaseJob{TypeCreateMySQLUserDatabase, "Create user MySQL database", false, false, runCreateMySQL})
	register(databaseJob{TypeResetMySQLUserPassword, "Reset user MySQL password", false, true, runResetMySQL})
	register(databaseJob{TypeCreateMySQLSocDatabase, "Create society MySQL database", true, false, runCreateMySQL})
	register(databaseJob{TypeResetMySQLSocPassword, "Reset society MySQL password", true, true, runResetMySQL})
	register(databaseJob{TypeCreatePgUserDatabase, "Create user PostgreSQL database", false, false, runCreatePg})
	register(databaseJob{TypeResetPgUserPassword, "Reset user PostgreSQL password", false, true, runResetPg})
	register(databaseJob{TypeCreatePgSocDatabase, "Create society PostgreSQL database", true, false, runCreatePg})
	register(databaseJob{TypeResetPgSocPassword, "Reset society PostgreSQL password", true, true, runResetPg})
}

// databaseJob covers all eight database job variants: the same small
// workflow parameterised by dialect, account kind and operation.
type databaseJob struct {
	tag     string
	label   string
	society bool
	reset   bool
	run     func(ctx context.Context, deps *tasks.Deps, owner plumbing.Owner) (*plumbing.Result, error)
}

func (j databaseJob) Type() string { return j.tag }

func (j databaseJob) Describe(job *models.Job) string {
	subject := job.Owner
	if j.society {
		subject = job.Arg("society")
	}
	return fmt.Sprintf("%s: %s", j.label, subject)
}

func (j databaseJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	owner, err := jobOwner(ctx, deps, job)
	if err != nil {
		return nil, err
	}
	if !j.society {
		return j.run(ctx, deps, owner)
	}
	society, err := getSociety(ctx, deps, job.Arg("society"))
	if err != nil {
		return nil, err
	}
	res := &plumbing.Result{Caller: "jobs." + j.tag}
	if !j.reset {
		// Society database creation also ensures the requesting admin's
		// own account, so they can actually use it.
		part, err := j.run(ctx, deps, owner)
		if err != nil {
			return nil, err
		}
		res.Extend(part)
	}
	part, err := j.run(ctx, deps, society)
	if err != nil {
		return nil, err
	}
	res.Extend(part)
	return res, nil
}

func runCreateMySQL(ctx context.Context, deps *tasks.Deps, owner plumbing.Owner) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	b.Step(deps.EnsureMySQLAccount(ctx, owner))
	b.Step(deps.CreateMySQLDatabase(ctx, owner, ""))
	return b.Done(nil)
}

func runResetMySQL(ctx context.Context, deps *tasks.Deps, owner plumbing.Owner) (*plumbing.Result, error) {
	return deps.ResetMySQLPassword(ctx, owner)
}

func runCreatePg(ctx context.Context, deps *tasks.Deps, owner plumbing.Owner) (*plumbing.Result, error) {
	return deps.CreatePostgresDatabase(ctx, owner, "")
}

func runResetPg(ctx context.Context, deps *tasks.Deps, owner plumbing.Owner) (*plumbing.Result, error) {
	return deps.ResetPostgresPassword(ctx, owner)
}

// NewUserDatabaseJob queues a personal database create or password
// reset; jobType is one of the *_user_* tags.
func (s *Submitter) NewUserDatabaseJob(ctx context.Context, jobType string, member *models.Member) (*models.Job, error) {
	if _, err := Lookup(jobType); err != nil {
		return nil, err
	}
	return s.submit(ctx, member.CRSid, jobType, nil, member.Danger)
}

// NewSocietyDatabaseJob queues a society database create or password
// reset; jobType is one of the *_society_* tags.
func (s *Submitter) NewSocietyDatabaseJob(ctx context.Context, jobType string, member *models.Member, society *models.Society) (*models.Job, error) {
	if _, err := Lookup(jobType); err != nil {
		return nil, err
	}
	return s.submit(ctx, member.CRSid, jobType, map[string]string{"society": society.Society},
		society.Danger || member.Danger)
}
