// Package jobs defines the catalogue of job types: their argument
// shapes, submission policy (queued versus needing approval), and the
// handlers the runner dispatches to.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/srcf/warden/internal/interfaces"
	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/storage/postgres"
	"github.com/srcf/warden/internal/tasks"
)

// JobFailed is a clean, user-reportable failure: the job lands in
// failed state with Message, and Raw (if any) goes to the sysadmins.
type JobFailed struct {
	Message string
	Raw     string
}

func (e *JobFailed) Error() string {
	return e.Message
}

// Failf builds a JobFailed from a format string.
func Failf(format string, args ...any) error {
	return &JobFailed{Message: fmt.Sprintf(format, args...)}
}

// Handler executes one job type.
type Handler interface {
	// Type is the fixed tag stored in the jobs table.
	Type() string
	// Describe renders the job for logs and operator listings.
	Describe(job *models.Job) string
	// Run executes the job's task and returns its result tree.
	Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error)
}

var registry = make(map[string]Handler)

func register(h Handler) {
	if _, dup := registry[h.Type()]; dup {
		panic("duplicate job type " + h.Type())
	}
	registry[h.Type()] = h
}

// Lookup returns the handler for a job type tag.
func Lookup(jobType string) (Handler, error) {
	h, ok := registry[jobType]
	if !ok {
		return nil, fmt.Errorf("unknown job type %s", jobType)
	}
	return h, nil
}

// Types lists every registered job type tag, sorted.
func Types() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// SensitiveArgs names, per job type, the argument keys that carry
// personal data and are redacted when the owning entity is deleted.
var SensitiveArgs = map[string][]string{
	TypeSignup:                 {"preferred_name", "surname", "email"},
	TypeReactivate:             {"preferred_name", "surname", "email"},
	TypeUpdateName:             {"preferred_name", "surname"},
	TypeUpdateEmail:            {"email"},
	TypeCreateUserList:         {"listname"},
	TypeResetUserListPassword:  {"listname"},
	TypeAddUserVhost:           {"domain", "root"},
	TypeChangeUserVhostDocroot: {"domain", "root"},
	TypeRemoveUserVhost:        {"domain"},
	TypeCreateSociety:          {"description"},
	TypeUpdateSocietyDesc:      {"description"},
	TypeUpdateSocietyRoleEmail: {"email"},
	TypeCreateSocList:          {"listname"},
	TypeResetSocListPassword:   {"listname"},
	TypeAddSocVhost:            {"domain", "root"},
	TypeChangeSocVhostDocroot:  {"domain", "root"},
	TypeRemoveSocVhost:         {"domain"},
}

var validate = validator.New()

// Submitter writes new job rows. The environment tag is stamped on
// every job so parallel deployments can share one table.
type Submitter struct {
	Store       interfaces.JobStore
	Environment string
}

// submit validates policy, picks the initial state and inserts the row.
func (s *Submitter) submit(ctx context.Context, owner, jobType string, args map[string]string, requireApproval bool) (*models.Job, error) {
	state := models.JobQueued
	if requireApproval {
		state = models.JobUnapproved
	}
	job := &models.Job{
		Owner:       owner,
		Type:        jobType,
		State:       state,
		Environment: s.Environment,
		Args:        args,
	}
	if _, err := s.Store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// getMember loads a job's referenced member, translating absence into a
// clean failure.
func getMember(ctx context.Context, deps *tasks.Deps, crsid string) (*models.Member, error) {
	member, err := deps.Store.GetMember(ctx, crsid)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, Failf("%s is not a SRCF member", crsid)
	}
	return member, err
}

// getSociety loads a job's referenced society likewise.
func getSociety(ctx context.Context, deps *tasks.Deps, name string) (*models.Society, error) {
	society, err := deps.Store.GetSociety(ctx, name)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, Failf("society %s does not exist", name)
	}
	return society, err
}

// jobOwner loads the member who submitted the job.
func jobOwner(ctx context.Context, deps *tasks.Deps, job *models.Job) (*models.Member, error) {
	if job.Owner == "" {
		return nil, Failf("job %d has no owner", job.ID)
	}
	return getMember(ctx, deps, job.Owner)
}
