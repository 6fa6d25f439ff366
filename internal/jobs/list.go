package jobs

import (
	"context"
	"fmt"

	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/plumbing/mailman"
	"github.com/srcf/warden/internal/tasks"
)

// Job type tags for mailing lists.
const (
	TypeCreateUserList        = "create_user_mailing_list"
	TypeResetUserListPassword = "reset_user_mailing_list_password"
	TypeCreateSocList         = "create_society_mailing_list"
	TypeResetSocListPassword  = "reset_society_mailing_list_password"
)

func init() {
	register(listJob{TypeCreateUserList, "Create user mailing list", false, false})
	register(listJob{TypeResetUserListPassword, "Reset user mailing list password", false, true})
	register(listJob{TypeCreateSocList, "Create society mailing list", true, false})
	register(listJob{TypeResetSocListPassword, "Reset society mailing list password", true, true})
}

// listJob covers the four mailing list variants.
type listJob struct {
	tag     string
	label   string
	society bool
	reset   bool
}

func (j listJob) Type() string { return j.tag }

func (j listJob) Describe(job *models.Job) string {
	subject := job.Owner
	if j.society {
		subject = job.Arg("society")
	}
	return fmt.Sprintf("%s: %s (%s)", j.label, subject, job.Arg("listname"))
}

func (j listJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	var owner plumbing.Owner
	if j.society {
		society, err := getSociety(ctx, deps, job.Arg("society"))
		if err != nil {
			return nil, err
		}
		owner = society
	} else {
		member, err := jobOwner(ctx, deps, job)
		if err != nil {
			return nil, err
		}
		owner = member
	}

	suffix := job.Arg("listname")
	full := owner.OwnerName()
	if suffix != "" {
		full += "-" + suffix
	}
	if err := mailman.ValidateListName(full); err != nil {
		return nil, Failf("Invalid list suffix %s", suffix)
	}

	if j.reset {
		return deps.ResetListPassword(ctx, owner, suffix)
	}
	return deps.CreateList(ctx, owner, suffix)
}

// NewUserListJob queues a personal list create or password reset.
func (s *Submitter) NewUserListJob(ctx context.Context, jobType string, member *models.Member, listname string) (*models.Job, error) {
	if _, err := Lookup(jobType); err != nil {
		return nil, err
	}
	return s.submit(ctx, member.CRSid, jobType,
		map[string]string{"listname": listname}, member.Danger)
}

// NewSocietyListJob queues a society list create or password reset.
func (s *Submitter) NewSocietyListJob(ctx context.Context, jobType string, member *models.Member, society *models.Society, listname string) (*models.Job, error) {
	if _, err := Lookup(jobType); err != nil {
		return nil, err
	}
	return s.submit(ctx, member.CRSid, jobType, map[string]string{
		"society":  society.Society,
		"listname": listname,
	}, society.Danger || member.Danger)
}
