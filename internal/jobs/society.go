package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/tasks"
)

// Job type tags for group accounts.
const (
	TypeCreateSociety          = "create_society"
	TypeUpdateSocietyDesc      = "update_society_description"
	TypeUpdateSocietyRoleEmail = "update_society_role_email"
	TypeChangeSocietyAdmin     = "change_society_admin"
)

func init() {
	register(createSocietyJob{})
	register(updateSocietyDescJob{})
	register(updateSocietyRoleEmailJob{})
	register(changeSocietyAdminJob{})
}

type createSocietyJob struct{}

func (createSocietyJob) Type() string { return TypeCreateSociety }

func (createSocietyJob) Describe(job *models.Job) string {
	return fmt.Sprintf("Create society: %s (%s)", job.Arg("society"), job.Arg("description"))
}

func (createSocietyJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	society := &models.Society{
		Society:     job.Arg("society"),
		Description: job.Arg("description"),
	}
	admins := strings.Fields(job.Arg("admins"))
	return deps.CreateSociety(ctx, society, admins)
}

type createSocietyArgs struct {
	Society     string `validate:"required,min=1,max=16,lowercase"`
	Description string `validate:"required"`
}

// NewCreateSociety queues a society creation; the submitting member is
// always included in the admin set.
func (s *Submitter) NewCreateSociety(ctx context.Context, member *models.Member, name, description string, admins []string) (*models.Job, error) {
	if err := validate.Struct(createSocietyArgs{Society: name, Description: description}); err != nil {
		return nil, err
	}
	all := []string{member.CRSid}
	for _, crsid := range admins {
		if crsid != member.CRSid {
			all = append(all, crsid)
		}
	}
	return s.submit(ctx, member.CRSid, TypeCreateSociety, map[string]string{
		"society":     name,
		"description": description,
		"admins":      strings.Join(all, " "),
	}, member.Danger)
}

type updateSocietyDescJob struct{}

func (updateSocietyDescJob) Type() string { return TypeUpdateSocietyDesc }

func (updateSocietyDescJob) Describe(job *models.Job) string {
	return fmt.Sprintf("Update society description: %s (%s)", job.Arg("society"), job.Arg("description"))
}

func (updateSocietyDescJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	society, err := getSociety(ctx, deps, job.Arg("society"))
	if err != nil {
		return nil, err
	}
	return deps.UpdateSocietyDescription(ctx, society, job.Arg("description"))
}

func (s *Submitter) NewUpdateSocietyDescription(ctx context.Context, member *models.Member, society *models.Society, description string) (*models.Job, error) {
	if description == "" {
		return nil, fmt.Errorf("description is required")
	}
	return s.submit(ctx, member.CRSid, TypeUpdateSocietyDesc, map[string]string{
		"society":     society.Society,
		"description": description,
	}, society.Danger || member.Danger)
}

type updateSocietyRoleEmailJob struct{}

func (updateSocietyRoleEmailJob) Type() string { return TypeUpdateSocietyRoleEmail }

func (updateSocietyRoleEmailJob) Describe(job *models.Job) string {
	return fmt.Sprintf("Update society role email: %s (%s)", job.Arg("society"), job.Arg("email"))
}

func (updateSocietyRoleEmailJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	society, err := getSociety(ctx, deps, job.Arg("society"))
	if err != nil {
		return nil, err
	}
	return deps.UpdateRoleEmail(ctx, society, job.Arg("email"))
}

func (s *Submitter) NewUpdateSocietyRoleEmail(ctx context.Context, member *models.Member, society *models.Society, email string) (*models.Job, error) {
	if email != "" {
		if err := validate.Var(email, "email"); err != nil {
			return nil, err
		}
	}
	return s.submit(ctx, member.CRSid, TypeUpdateSocietyRoleEmail, map[string]string{
		"society": society.Society,
		"email":   email,
	}, society.Danger || member.Danger)
}

type changeSocietyAdminJob struct{}

func (changeSocietyAdminJob) Type() string { return TypeChangeSocietyAdmin }

func (changeSocietyAdminJob) Describe(job *models.Job) string {
	verb := job.Arg("action")
	if verb != "" {
		verb = strings.ToUpper(verb[:1]) + verb[1:]
	}
	prep := "to"
	if job.Arg("action") == "remove" {
		prep = "from"
	}
	return fmt.Sprintf("%s society admin: %s %s %s", verb, job.Arg("target_member"), prep, job.Arg("society"))
}

func (changeSocietyAdminJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	owner, err := jobOwner(ctx, deps, job)
	if err != nil {
		return nil, err
	}
	society, err := getSociety(ctx, deps, job.Arg("society"))
	if err != nil {
		return nil, err
	}
	if !society.HasAdmin(owner.CRSid) {
		return nil, Failf("%s is not permitted to change the admins of %s", owner.CRSid, society.Society)
	}
	target, err := getMember(ctx, deps, job.Arg("target_member"))
	if err != nil {
		return nil, err
	}

	switch job.Arg("action") {
	case "add":
		if !target.Member {
			return nil, Failf("%s is not a SRCF member", target.CRSid)
		}
		if !target.User {
			return nil, Failf("%s is not a SRCF user", target.CRSid)
		}
		return deps.AddSocietyAdmin(ctx, society, target)
	case "remove":
		if len(society.Admins) == 1 {
			return nil, Failf("Removing all admins not implemented")
		}
		return deps.RemoveSocietyAdmin(ctx, society, target)
	default:
		return nil, Failf("unknown admin action %s", job.Arg("action"))
	}
}

// NewChangeSocietyAdmin queues an admin add or removal. Removing the
// last admin of a society that has a role email set requires approval,
// as does any change involving a flagged entity.
func (s *Submitter) NewChangeSocietyAdmin(ctx context.Context, requester *models.Member, society *models.Society, target *models.Member, action string) (*models.Job, error) {
	if action != "add" && action != "remove" {
		return nil, fmt.Errorf("action should be add or remove, not %s", action)
	}
	requireApproval := society.Danger || target.Danger || requester.Danger ||
		(action == "remove" && len(society.Admins) == 1 && society.RoleEmail != "")
	return s.submit(ctx, requester.CRSid, TypeChangeSocietyAdmin, map[string]string{
		"society":       society.Society,
		"target_member": target.CRSid,
		"action":        action,
	}, requireApproval)
}
