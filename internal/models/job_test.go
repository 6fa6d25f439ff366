package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTransitions(t *testing.T) {
	tests := []struct {
		name   string
		state  JobState
		action JobAction
		want   JobState
	}{
		{"approve", JobUnapproved, ActionApprove, JobQueued},
		{"reject", JobUnapproved, ActionReject, JobWithdrawn},
		{"cancel", JobQueued, ActionCancel, JobFailed},
		{"abort", JobRunning, ActionAbort, JobFailed},
		{"repeat", JobDone, ActionRepeat, JobQueued},
		{"retry", JobFailed, ActionRetry, JobQueued},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{State: tt.state}
			require.NoError(t, job.Transition(tt.action))
			assert.Equal(t, tt.want, job.State)
			assert.Equal(t, "Job "+tt.action.PastLabel, job.StateMessage)
		})
	}
}

func TestJobInvalidTransitions(t *testing.T) {
	// Every action applied in every state other than its precondition
	// must leave the job untouched.
	states := []JobState{JobUnapproved, JobQueued, JobRunning, JobDone, JobFailed, JobWithdrawn}
	for _, action := range Actions {
		for _, state := range states {
			if state == action.OldState {
				continue
			}
			job := &Job{State: state, StateMessage: "original"}
			err := job.Transition(action)
			require.Error(t, err, "%s from %s", action.Name, state)

			var invalid *InvalidTransitionError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, action.Name, invalid.Action.Name)
			assert.Equal(t, state, invalid.State)
			assert.Equal(t, state, job.State)
			assert.Equal(t, "original", job.StateMessage)
		}
	}
}

func TestJobRunnerTransitions(t *testing.T) {
	job := &Job{State: JobQueued}
	require.NoError(t, job.MarkRunning())
	assert.Equal(t, JobRunning, job.State)

	job.MarkDone("Society created")
	assert.Equal(t, JobDone, job.State)
	assert.Equal(t, "Society created", job.StateMessage)

	// Claiming a non-queued row must fail; the dispatch loop relies on
	// this recheck for at-least-once id delivery.
	assert.Error(t, job.MarkRunning())

	job = &Job{State: JobRunning}
	job.MarkFailed("Removing all admins not implemented")
	assert.Equal(t, JobFailed, job.State)
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, JobDone.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobWithdrawn.Terminal())
	assert.False(t, JobUnapproved.Terminal())
	assert.False(t, JobQueued.Terminal())
	assert.False(t, JobRunning.Terminal())
}

func TestSocietyEmail(t *testing.T) {
	soc := &Society{Society: "test"}
	assert.Equal(t, "test-admins@srcf.net", soc.Email())
	soc.RoleEmail = "test@srcf.net"
	assert.Equal(t, "test@srcf.net", soc.Email())
	assert.Equal(t, "test-admins@srcf.net", soc.AdminEmail())
}

func TestMemberName(t *testing.T) {
	m := &Member{CRSid: "spqr2", PreferredName: "A", Surname: "B"}
	assert.Equal(t, "A B", m.Name())
	assert.Equal(t, "spqr2", m.OwnerName())
	assert.False(t, m.IsSociety())
	assert.True(t, (&Society{Society: "test"}).IsSociety())
}
