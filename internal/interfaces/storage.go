// Package interfaces defines the service contracts between the storage
// layer, the task layer, and the job runner.
package interfaces

import (
	"context"

	"github.com/srcf/warden/internal/models"
)

// MemberStore is the membership table of the main database.
type MemberStore interface {
	// GetMember returns the member with the given crsid.
	GetMember(ctx context.Context, crsid string) (*models.Member, error)
	// CreateMember inserts a new member record.
	CreateMember(ctx context.Context, member *models.Member) error
	// UpdateMember persists changed fields of an existing record.
	UpdateMember(ctx context.Context, member *models.Member) error
}

// SocietyStore is the society table plus its admin relations.
type SocietyStore interface {
	// GetSociety returns the society with the given short name, with its
	// current admin set populated.
	GetSociety(ctx context.Context, name string) (*models.Society, error)
	// CreateSociety inserts a new society record.
	CreateSociety(ctx context.Context, society *models.Society) error
	// UpdateSociety persists changed fields of an existing record.
	UpdateSociety(ctx context.Context, society *models.Society) error
	// DeleteSociety removes the record and its admin relations.
	DeleteSociety(ctx context.Context, name string) error
	// AddAdmin records crsid as an admin of the society.
	AddAdmin(ctx context.Context, society, crsid string) error
	// RemoveAdmin drops crsid from the society's admins.
	RemoveAdmin(ctx context.Context, society, crsid string) error
	// ListSocietiesOf returns the societies the member administers.
	ListSocietiesOf(ctx context.Context, crsid string) ([]*models.Society, error)
	// AddPendingAdmin records a member-to-be as a future admin.
	AddPendingAdmin(ctx context.Context, society, crsid string) error
	// TakePendingAdmins removes and returns the pending admin entries
	// for the member, so signup can promote them.
	TakePendingAdmins(ctx context.Context, crsid string) ([]models.PendingAdmin, error)
}

// DomainStore is the custom domain and certificate tables.
type DomainStore interface {
	// GetDomain returns the domain record by name.
	GetDomain(ctx context.Context, domain string) (*models.Domain, error)
	// CreateDomain inserts a new domain record and returns its id.
	CreateDomain(ctx context.Context, d *models.Domain) error
	// UpdateDomain persists changed fields of an existing record.
	UpdateDomain(ctx context.Context, d *models.Domain) error
	// DeleteDomain removes the record.
	DeleteDomain(ctx context.Context, domain string) error
	// QueueCert queues a certificate request for the domain.
	QueueCert(ctx context.Context, domain string) error
	// ListDomainsOf returns the domains owned by the given account.
	ListDomainsOf(ctx context.Context, class models.DomainClass, owner string) ([]*models.Domain, error)
}

// JobStore is the job queue and its log.
type JobStore interface {
	// CreateJob inserts a job and returns its assigned id. A database
	// trigger notifies listening runners.
	CreateJob(ctx context.Context, job *models.Job) (int64, error)
	// GetJob returns the job with the given id.
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	// ListQueued returns queued jobs for the environment, oldest first.
	ListQueued(ctx context.Context, environment string) ([]*models.Job, error)
	// CountByState returns per-state job counts for the environment.
	CountByState(ctx context.Context, environment string) (map[models.JobState]int, error)
	// UpdateJobState persists a state transition with its message.
	UpdateJobState(ctx context.Context, id int64, state models.JobState, message string) error
	// AppendJobLog attaches a log entry to the job.
	AppendJobLog(ctx context.Context, entry *models.JobLogEntry) error
	// ScrubMemberJobs blanks sensitive arguments across the member's
	// whole job history, including ownerless signup rows that name the
	// crsid only in their arguments. sensitive maps a job type to its
	// secret argument names.
	ScrubMemberJobs(ctx context.Context, crsid string, sensitive map[string][]string) error
	// ScrubSocietyJobs blanks sensitive arguments of every job that
	// names the society in its arguments; job rows are owned by member
	// crsids, so society jobs are only reachable this way.
	ScrubSocietyJobs(ctx context.Context, society string, sensitive map[string][]string) error
}

// Store bundles the stores a task or job needs, so call sites take one
// dependency instead of four.
type Store interface {
	MemberStore
	SocietyStore
	DomainStore
	JobStore
}
