package jobs

import (
	"context"
	"fmt"

	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/tasks"
)

// Job type tags for custom domains.
const (
	TypeAddUserVhost           = "add_user_vhost"
	TypeChangeUserVhostDocroot = "change_user_vhost_docroot"
	TypeRemoveUserVhost        = "remove_user_vhost"
	TypeAddSocVhost            = "add_society_vhost"
	TypeChangeSocVhostDocroot  = "change_society_vhost_docroot"
	TypeRemoveSocVhost         = "remove_society_vhost"
)

func init() {
	register(vhostJob{TypeAddUserVhost, "Add custom domain", false, vhostAdd})
	register(vhostJob{TypeChangeUserVhostDocroot, "Change custom domain document root", false, vhostChange})
	register(vhostJob{TypeRemoveUserVhost, "Remove custom domain", false, vhostRemove})
	register(vhostJob{TypeAddSocVhost, "Add custom society domain", true, vhostAdd})
	register(vhostJob{TypeChangeSocVhostDocroot, "Change custom society domain document root", true, vhostChange})
	register(vhostJob{TypeRemoveSocVhost, "Remove custom society domain", true, vhostRemove})
}

type vhostOp int

const (
	vhostAdd vhostOp = iota
	vhostChange
	vhostRemove
)

// vhostJob covers the six custom domain variants.
type vhostJob struct {
	tag     string
	label   string
	society bool
	op      vhostOp
}

func (j vhostJob) Type() string { return j.tag }

func (j vhostJob) Describe(job *models.Job) string {
	subject := job.Owner
	if j.society {
		subject = job.Arg("society")
	}
	if j.op == vhostRemove {
		return fmt.Sprintf("%s: %s (%s)", j.label, subject, job.Arg("domain"))
	}
	return fmt.Sprintf("%s: %s (%s -> %s)", j.label, subject, job.Arg("domain"), job.Arg("root"))
}

func (j vhostJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
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

	domain := job.Arg("domain")
	switch j.op {
	case vhostAdd:
		return deps.AddVhost(ctx, owner, domain, job.Arg("root"))
	case vhostChange:
		return deps.ChangeVhostRoot(ctx, owner, domain, job.Arg("root"))
	default:
		return deps.RemoveVhost(ctx, owner, domain)
	}
}

// vhostRoot normalises a user-supplied document root under public_html.
func vhostRoot(root string) string {
	if root == "" {
		return ""
	}
	return "public_html/" + root
}

type vhostArgs struct {
	Domain string `validate:"required,fqdn"`
}

// NewUserVhostJob queues a personal domain change. Adds always require
// approval; changes and removals only for flagged members.
func (s *Submitter) NewUserVhostJob(ctx context.Context, jobType string, member *models.Member, domain, root string) (*models.Job, error) {
	if _, err := Lookup(jobType); err != nil {
		return nil, err
	}
	if err := validate.Struct(vhostArgs{Domain: domain}); err != nil {
		return nil, err
	}
	requireApproval := member.Danger || jobType == TypeAddUserVhost
	return s.submit(ctx, member.CRSid, jobType, map[string]string{
		"domain": domain,
		"root":   vhostRoot(root),
	}, requireApproval)
}

// NewSocietyVhostJob queues a society domain change under the same
// policy.
func (s *Submitter) NewSocietyVhostJob(ctx context.Context, jobType string, member *models.Member, society *models.Society, domain, root string) (*models.Job, error) {
	if _, err := Lookup(jobType); err != nil {
		return nil, err
	}
	if err := validate.Struct(vhostArgs{Domain: domain}); err != nil {
		return nil, err
	}
	requireApproval := member.Danger || society.Danger || jobType == TypeAddSocVhost
	return s.submit(ctx, member.CRSid, jobType, map[string]string{
		"society": society.Society,
		"domain":  domain,
		"root":    vhostRoot(root),
	}, requireApproval)
}
