package jobs

import (
	"context"
	"fmt"

	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/tasks"
)

// Job type tags for personal accounts. The strings are part of the
// database contract and never change.
const (
	TypeTest              = "test"
	TypeSignup            = "signup"
	TypeReactivate        = "reactivate"
	TypeResetUserPassword = "reset_user_password"
	TypeUpdateName        = "update_name"
	TypeUpdateEmail       = "update_email_address"
	TypeUpdateMailHandler = "update_mail_handler"
)

func init() {
	register(testJob{})
	register(signupJob{})
	register(reactivateJob{})
	register(resetUserPasswordJob{})
	register(updateNameJob{})
	register(updateEmailJob{})
	register(updateMailHandlerJob{})
}

// testJob exercises the queue without side effects.
type testJob struct{}

func (testJob) Type() string { return TypeTest }

func (testJob) Describe(job *models.Job) string {
	return "Test: " + job.Arg("message")
}

func (testJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	if job.Arg("mode") == "fail" {
		return nil, Failf("test job asked to fail")
	}
	return plumbing.NewResultValue(plumbing.StateSuccess, job.Arg("message")), nil
}

// NewTest queues a test job.
func (s *Submitter) NewTest(ctx context.Context, message, mode string) (*models.Job, error) {
	return s.submit(ctx, "", TypeTest, map[string]string{"message": message, "mode": mode}, false)
}

type signupArgs struct {
	CRSid         string `validate:"required,min=3,max=7,lowercase,alphanum"`
	PreferredName string `validate:"required"`
	Surname       string `validate:"required"`
	Email         string `validate:"required,email"`
	MailHandler   string `validate:"required"`
}

type signupJob struct{}

func (signupJob) Type() string { return TypeSignup }

func (signupJob) Describe(job *models.Job) string {
	return fmt.Sprintf("Signup: %s (%s %s, %s, %s mail)", job.Arg("crsid"),
		job.Arg("preferred_name"), job.Arg("surname"), job.Arg("email"), job.Arg("mail_handler"))
}

func (signupJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	member := &models.Member{
		CRSid:         job.Arg("crsid"),
		PreferredName: job.Arg("preferred_name"),
		Surname:       job.Arg("surname"),
		Email:         job.Arg("email"),
		MailHandler:   models.MailHandler(job.Arg("mail_handler")),
	}
	return deps.CreateMember(ctx, member, job.Arg("social") == "y")
}

// NewSignup queues an account creation. Signups have no owner yet, so
// the row's owner is empty and the crsid rides in the arguments.
func (s *Submitter) NewSignup(ctx context.Context, crsid, preferredName, surname, email string, social bool, handler models.MailHandler) (*models.Job, error) {
	args := signupArgs{
		CRSid:         crsid,
		PreferredName: preferredName,
		Surname:       surname,
		Email:         email,
		MailHandler:   string(handler),
	}
	if err := validate.Struct(args); err != nil {
		return nil, err
	}
	if !models.ValidMailHandler(string(handler)) {
		return nil, fmt.Errorf("unknown mail handler %s", handler)
	}
	socialFlag := "n"
	if social {
		socialFlag = "y"
	}
	return s.submit(ctx, "", TypeSignup, map[string]string{
		"crsid":          crsid,
		"preferred_name": preferredName,
		"surname":        surname,
		"email":          email,
		"mail_handler":   string(handler),
		"social":         socialFlag,
	}, false)
}

type reactivateJob struct{}

func (reactivateJob) Type() string { return TypeReactivate }

func (reactivateJob) Describe(job *models.Job) string {
	return fmt.Sprintf("Reactivate user: %s (%s)", job.Owner, job.Arg("email"))
}

func (reactivateJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	member, err := jobOwner(ctx, deps, job)
	if err != nil {
		return nil, err
	}
	member.Email = job.Arg("email")
	member.Member = true
	return deps.ReactivateMember(ctx, member)
}

// NewReactivate queues a reactivation; these always need approval.
func (s *Submitter) NewReactivate(ctx context.Context, member *models.Member, email string) (*models.Job, error) {
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, err
	}
	return s.submit(ctx, member.CRSid, TypeReactivate, map[string]string{"email": email}, true)
}

type resetUserPasswordJob struct{}

func (resetUserPasswordJob) Type() string { return TypeResetUserPassword }

func (resetUserPasswordJob) Describe(job *models.Job) string {
	return "Reset user password: " + job.Owner
}

func (resetUserPasswordJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	member, err := jobOwner(ctx, deps, job)
	if err != nil {
		return nil, err
	}
	return deps.ResetUserPassword(ctx, member)
}

func (s *Submitter) NewResetUserPassword(ctx context.Context, member *models.Member) (*models.Job, error) {
	return s.submit(ctx, member.CRSid, TypeResetUserPassword, nil, member.Danger)
}

type updateNameJob struct{}

func (updateNameJob) Type() string { return TypeUpdateName }

func (updateNameJob) Describe(job *models.Job) string {
	return fmt.Sprintf("Update name: %s (%s %s)", job.Owner,
		job.Arg("preferred_name"), job.Arg("surname"))
}

func (updateNameJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	member, err := jobOwner(ctx, deps, job)
	if err != nil {
		return nil, err
	}
	return deps.UpdateMemberName(ctx, member, job.Arg("preferred_name"), job.Arg("surname"))
}

func (s *Submitter) NewUpdateName(ctx context.Context, member *models.Member, preferred, surname string) (*models.Job, error) {
	if preferred == "" || surname == "" {
		return nil, fmt.Errorf("both names are required")
	}
	return s.submit(ctx, member.CRSid, TypeUpdateName, map[string]string{
		"preferred_name": preferred,
		"surname":        surname,
	}, member.Danger)
}

type updateEmailJob struct{}

func (updateEmailJob) Type() string { return TypeUpdateEmail }

func (updateEmailJob) Describe(job *models.Job) string {
	return fmt.Sprintf("Update email address: %s (%s)", job.Owner, job.Arg("email"))
}

func (updateEmailJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	member, err := jobOwner(ctx, deps, job)
	if err != nil {
		return nil, err
	}
	return deps.UpdateMemberEmail(ctx, member, job.Arg("email"))
}

func (s *Submitter) NewUpdateEmail(ctx context.Context, member *models.Member, email string) (*models.Job, error) {
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, err
	}
	return s.submit(ctx, member.CRSid, TypeUpdateEmail, map[string]string{"email": email}, member.Danger)
}

type updateMailHandlerJob struct{}

func (updateMailHandlerJob) Type() string { return TypeUpdateMailHandler }

func (updateMailHandlerJob) Describe(job *models.Job) string {
	return fmt.Sprintf("Update mail handler: %s (%s)", job.Owner, job.Arg("mail_handler"))
}

func (updateMailHandlerJob) Run(ctx context.Context, deps *tasks.Deps, job *models.Job) (*plumbing.Result, error) {
	member, err := jobOwner(ctx, deps, job)
	if err != nil {
		return nil, err
	}
	handler := job.Arg("mail_handler")
	if !models.ValidMailHandler(handler) {
		return nil, Failf("unknown mail handler %s", handler)
	}
	return deps.UpdateMailHandler(ctx, member, models.MailHandler(handler))
}

func (s *Submitter) NewUpdateMailHandler(ctx context.Context, member *models.Member, handler models.MailHandler) (*models.Job, error) {
	if !models.ValidMailHandler(string(handler)) {
		return nil, fmt.Errorf("unknown mail handler %s", handler)
	}
	return s.submit(ctx, member.CRSid, TypeUpdateMailHandler,
		map[string]string{"mail_handler": string(handler)}, member.Danger)
}
