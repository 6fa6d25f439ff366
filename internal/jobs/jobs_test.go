package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srcf/warden/internal/models"
)

// fakeJobStore records submissions without a database.
type fakeJobStore struct {
	created []*models.Job
}

func (f *fakeJobStore) CreateJob(ctx context.Context, job *models.Job) (int64, error) {
	job.ID = int64(len(f.created) + 1)
	f.created = append(f.created, job)
	return job.ID, nil
}

func (f *fakeJobStore) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	for _, job := range f.created {
		if job.ID == id {
			return job, nil
		}
	}
	return nil, nil
}

func (f *fakeJobStore) ListQueued(ctx context.Context, environment string) ([]*models.Job, error) {
	return nil, nil
}

func (f *fakeJobStore) CountByState(ctx context.Context, environment string) (map[models.JobState]int, error) {
	return nil, nil
}

func (f *fakeJobStore) UpdateJobState(ctx context.Context, id int64, state models.JobState, message string) error {
	return nil
}

func (f *fakeJobStore) AppendJobLog(ctx context.Context, entry *models.JobLogEntry) error {
	return nil
}

func (f *fakeJobStore) ScrubMemberJobs(ctx context.Context, crsid string, sensitive map[string][]string) error {
	return nil
}

func (f *fakeJobStore) ScrubSocietyJobs(ctx context.Context, society string, sensitive map[string][]string) error {
	return nil
}

func newSubmitter() (*Submitter, *fakeJobStore) {
	store := &fakeJobStore{}
	return &Submitter{Store: store, Environment: "test"}, store
}

func TestRegistryComplete(t *testing.T) {
	expected := []string{
		TypeTest, TypeSignup, TypeReactivate, TypeResetUserPassword,
		TypeUpdateName, TypeUpdateEmail, TypeUpdateMailHandler,
		TypeCreateSociety, TypeUpdateSocietyDesc, TypeUpdateSocietyRoleEmail,
		TypeChangeSocietyAdmin,
		TypeCreateUserList, TypeResetUserListPassword,
		TypeCreateSocList, TypeResetSocListPassword,
		TypeCreateMySQLUserDatabase, TypeResetMySQLUserPassword,
		TypeCreateMySQLSocDatabase, TypeResetMySQLSocPassword,
		TypeCreatePgUserDatabase, TypeResetPgUserPassword,
		TypeCreatePgSocDatabase, TypeResetPgSocPassword,
		TypeAddUserVhost, TypeChangeUserVhostDocroot, TypeRemoveUserVhost,
		TypeAddSocVhost, TypeChangeSocVhostDocroot, TypeRemoveSocVhost,
	}
	assert.Len(t, Types(), len(expected))
	for _, tag := range expected {
		h, err := Lookup(tag)
		require.NoError(t, err, tag)
		assert.Equal(t, tag, h.Type())
	}

	_, err := Lookup("no_such_job")
	assert.Error(t, err)
}

func TestSensitiveArgsNameRealTypes(t *testing.T) {
	for tag := range SensitiveArgs {
		_, err := Lookup(tag)
		assert.NoError(t, err, tag)
	}
}

func TestSignupSubmission(t *testing.T) {
	s, store := newSubmitter()
	job, err := s.NewSignup(context.Background(), "spqr2", "Test", "Person",
		"spqr2@cam.ac.uk", true, models.MailHandlerForward)
	require.NoError(t, err)

	assert.Equal(t, models.JobQueued, job.State)
	assert.Empty(t, job.Owner)
	assert.Equal(t, "test", job.Environment)
	assert.Equal(t, "spqr2", job.Arg("crsid"))
	assert.Equal(t, "y", job.Arg("social"))
	require.Len(t, store.created, 1)

	_, err = s.NewSignup(context.Background(), "NOT A CRSID", "Test", "Person",
		"spqr2@cam.ac.uk", false, models.MailHandlerForward)
	assert.Error(t, err)

	_, err = s.NewSignup(context.Background(), "spqr2", "Test", "Person",
		"not-an-email", false, models.MailHandlerForward)
	assert.Error(t, err)
}

func TestVhostAddsAlwaysNeedApproval(t *testing.T) {
	s, _ := newSubmitter()
	member := &models.Member{CRSid: "spqr2"}
	society := &models.Society{Society: "test"}

	job, err := s.NewUserVhostJob(context.Background(), TypeAddUserVhost, member, "example.org", "site")
	require.NoError(t, err)
	assert.Equal(t, models.JobUnapproved, job.State)
	assert.Equal(t, "public_html/site", job.Arg("root"))

	job, err = s.NewSocietyVhostJob(context.Background(), TypeAddSocVhost, member, society, "example.org", "")
	require.NoError(t, err)
	assert.Equal(t, models.JobUnapproved, job.State)

	job, err = s.NewUserVhostJob(context.Background(), TypeRemoveUserVhost, member, "example.org", "")
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.State)
}

func TestDangerEntitiesNeedApproval(t *testing.T) {
	s, _ := newSubmitter()
	flagged := &models.Member{CRSid: "spqr2", Danger: true}
	normal := &models.Member{CRSid: "abc1"}

	job, err := s.NewResetUserPassword(context.Background(), flagged)
	require.NoError(t, err)
	assert.Equal(t, models.JobUnapproved, job.State)

	job, err = s.NewResetUserPassword(context.Background(), normal)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.State)
}

func TestChangeAdminApprovalPolicy(t *testing.T) {
	s, _ := newSubmitter()
	requester := &models.Member{CRSid: "spqr2", Member: true, User: true}
	target := &models.Member{CRSid: "abc1", Member: true, User: true}

	// Removing the sole admin of a role-email society needs approval.
	soleWithRole := &models.Society{Society: "x", RoleEmail: "x@y.test", Admins: []string{"spqr2"}}
	job, err := s.NewChangeSocietyAdmin(context.Background(), requester, soleWithRole, requester, "remove")
	require.NoError(t, err)
	assert.Equal(t, models.JobUnapproved, job.State)

	// Without a role email the same removal is queued directly.
	soleNoRole := &models.Society{Society: "y", Admins: []string{"spqr2"}}
	job, err = s.NewChangeSocietyAdmin(context.Background(), requester, soleNoRole, requester, "remove")
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.State)

	// Adds to a healthy society are queued directly.
	healthy := &models.Society{Society: "test", Admins: []string{"spqr2"}}
	job, err = s.NewChangeSocietyAdmin(context.Background(), requester, healthy, target, "add")
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.State)

	_, err = s.NewChangeSocietyAdmin(context.Background(), requester, healthy, target, "promote")
	assert.Error(t, err)
}

func TestReactivateAlwaysNeedsApproval(t *testing.T) {
	s, _ := newSubmitter()
	member := &models.Member{CRSid: "spqr2"}
	job, err := s.NewReactivate(context.Background(), member, "spqr2@gmail.test")
	require.NoError(t, err)
	assert.Equal(t, models.JobUnapproved, job.State)
}

func TestDescribe(t *testing.T) {
	h, err := Lookup(TypeSignup)
	require.NoError(t, err)
	job := &models.Job{Type: TypeSignup, Args: map[string]string{
		"crsid": "spqr2", "preferred_name": "Test", "surname": "Person",
		"email": "a@b.test", "mail_handler": "forward",
	}}
	assert.Equal(t, "Signup: spqr2 (Test Person, a@b.test, forward mail)", h.Describe(job))

	h, err = Lookup(TypeChangeSocietyAdmin)
	require.NoError(t, err)
	job = &models.Job{Type: TypeChangeSocietyAdmin, Owner: "spqr2", Args: map[string]string{
		"society": "test", "target_member": "abc1", "action": "add",
	}}
	assert.Equal(t, "Add society admin: abc1 to test", h.Describe(job))
}

func TestJobFailedError(t *testing.T) {
	err := Failf("Invalid list suffix %s", "mylist-admin")
	assert.Equal(t, "Invalid list suffix mylist-admin", err.Error())

	var failed *JobFailed
	require.ErrorAs(t, err, &failed)
	assert.Empty(t, failed.Raw)
}
