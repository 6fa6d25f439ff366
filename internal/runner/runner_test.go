package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srcf/warden/internal/common"
	"github.com/srcf/warden/internal/jobs"
	"github.com/srcf/warden/internal/mail"
	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/tasks"
)

// fakeStore keeps jobs in memory and records every state transition.
type fakeStore struct {
	jobs        map[int64]*models.Job
	transitions []models.JobState
	dispatched  []int64
	logs        []*models.JobLogEntry
}

func newFakeStore(queued ...*models.Job) *fakeStore {
	f := &fakeStore{jobs: make(map[int64]*models.Job)}
	for _, job := range queued {
		f.jobs[job.ID] = job
	}
	return f
}

func (f *fakeStore) CreateJob(ctx context.Context, job *models.Job) (int64, error) {
	job.ID = int64(len(f.jobs) + 1)
	f.jobs[job.ID] = job
	return job.ID, nil
}

func (f *fakeStore) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (f *fakeStore) ListQueued(ctx context.Context, environment string) ([]*models.Job, error) {
	var queued []*models.Job
	for id := int64(1); id <= int64(len(f.jobs)); id++ {
		if job, ok := f.jobs[id]; ok && job.State == models.JobQueued && job.Environment == environment {
			queued = append(queued, job)
		}
	}
	return queued, nil
}

func (f *fakeStore) CountByState(ctx context.Context, environment string) (map[models.JobState]int, error) {
	counts := make(map[models.JobState]int)
	for _, job := range f.jobs {
		counts[job.State]++
	}
	return counts, nil
}

func (f *fakeStore) UpdateJobState(ctx context.Context, id int64, state models.JobState, message string) error {
	f.jobs[id].State = state
	f.jobs[id].StateMessage = message
	f.transitions = append(f.transitions, state)
	if state == models.JobRunning {
		f.dispatched = append(f.dispatched, id)
	}
	return nil
}

func (f *fakeStore) AppendJobLog(ctx context.Context, entry *models.JobLogEntry) error {
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeStore) ScrubMemberJobs(ctx context.Context, crsid string, sensitive map[string][]string) error {
	return nil
}

func (f *fakeStore) ScrubSocietyJobs(ctx context.Context, society string, sensitive map[string][]string) error {
	return nil
}

// fakeNotifier records sysadmin mail instead of sending it.
type fakeNotifier struct {
	sysadminSubjects []string
}

func (f *fakeNotifier) Send(ctx context.Context, to mail.Recipient, templateName string, data any) (*plumbing.Result, error) {
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

func (f *fakeNotifier) SendSysadmins(ctx context.Context, subject, body string) error {
	f.sysadminSubjects = append(f.sysadminSubjects, subject)
	return nil
}

func newTestRunner(store *fakeStore) (*Runner, *fakeNotifier) {
	notifier := &fakeNotifier{}
	deps := &tasks.Deps{Notifier: notifier, Logger: common.GetLogger()}
	config := common.NewDefaultConfig()
	config.Runner.WakeInterval = time.Second
	return New(store, deps, config, common.GetLogger()), notifier
}

func testJob(id int64, state models.JobState, mode string) *models.Job {
	return &models.Job{
		ID:    id,
		Type:  jobs.TypeTest,
		State: state,
		Args:  map[string]string{"message": "hello", "mode": mode},
	}
}

func TestDispatchSuccess(t *testing.T) {
	store := newFakeStore(testJob(1, models.JobQueued, ""))
	r, notifier := newTestRunner(store)

	require.NoError(t, r.Dispatch(context.Background(), 1))

	assert.Equal(t, models.JobDone, store.jobs[1].State)
	assert.Equal(t, []models.JobState{models.JobRunning, models.JobDone}, store.transitions)
	assert.Empty(t, notifier.sysadminSubjects)

	var types []models.LogType
	for _, entry := range store.logs {
		types = append(types, entry.Type)
	}
	assert.Equal(t, []models.LogType{models.LogStarted, models.LogOutput, models.LogDone}, types)
}

func TestDispatchSkipsSettledJobs(t *testing.T) {
	store := newFakeStore(
		testJob(1, models.JobRunning, ""),
		testJob(2, models.JobDone, ""),
		testJob(3, models.JobUnapproved, ""),
	)
	r, _ := newTestRunner(store)

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, r.Dispatch(context.Background(), id))
	}
	assert.Empty(t, store.transitions)
	assert.Empty(t, store.logs)
}

func TestDispatchMissingJob(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestRunner(store)
	require.NoError(t, r.Dispatch(context.Background(), 42))
	assert.Empty(t, store.transitions)
}

func TestDispatchCleanFailure(t *testing.T) {
	store := newFakeStore(testJob(1, models.JobQueued, "fail"))
	r, notifier := newTestRunner(store)

	require.NoError(t, r.Dispatch(context.Background(), 1))

	assert.Equal(t, models.JobFailed, store.jobs[1].State)
	assert.Equal(t, "test job asked to fail", store.jobs[1].StateMessage)
	require.Len(t, notifier.sysadminSubjects, 1)
	assert.Contains(t, notifier.sysadminSubjects[0], "Job 1 failed")

	last := store.logs[len(store.logs)-1]
	assert.Equal(t, models.LogTypeFail, last.Type)
	assert.Equal(t, models.LogWarning, last.Level)
}

func TestDispatchUnknownType(t *testing.T) {
	store := newFakeStore(&models.Job{ID: 1, Type: "no_such_job", State: models.JobQueued})
	r, notifier := newTestRunner(store)

	require.NoError(t, r.Dispatch(context.Background(), 1))
	assert.Equal(t, models.JobFailed, store.jobs[1].State)
	assert.Len(t, notifier.sysadminSubjects, 1)
}

func TestBacklogDrainsInOrder(t *testing.T) {
	store := newFakeStore(
		testJob(1, models.JobQueued, ""),
		testJob(2, models.JobQueued, ""),
		testJob(3, models.JobQueued, ""),
	)
	r, _ := newTestRunner(store)

	require.NoError(t, r.drainBacklog(context.Background()))
	assert.Equal(t, []int64{1, 2, 3}, store.dispatched)
	for id := int64(1); id <= 3; id++ {
		assert.Equal(t, models.JobDone, store.jobs[id].State)
	}
}

func TestRunRequiresLock(t *testing.T) {
	r, _ := newTestRunner(newFakeStore())
	assert.Error(t, r.Run(context.Background()))
}

func TestDigestQuietWhenHealthy(t *testing.T) {
	store := newFakeStore(testJob(1, models.JobDone, ""))
	r, notifier := newTestRunner(store)
	require.NoError(t, r.sendDigest(context.Background()))
	assert.Empty(t, notifier.sysadminSubjects)

	store.jobs[2] = testJob(2, models.JobUnapproved, "")
	require.NoError(t, r.sendDigest(context.Background()))
	require.Len(t, notifier.sysadminSubjects, 1)
	assert.Contains(t, notifier.sysadminSubjects[0], "needs attention")
}
