package plumbing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateOrdering(t *testing.T) {
	assert.True(t, StateUnchanged < StateSuccess)
	assert.True(t, StateSuccess < StateCreated)
}

func TestResultAggregation(t *testing.T) {
	parent := &Result{Caller: "test.parent"}
	parent.Extend(NewResult(StateUnchanged))
	assert.Equal(t, StateUnchanged, parent.State())

	parent.Extend(NewResult(StateSuccess))
	assert.Equal(t, StateSuccess, parent.State())

	parent.Extend(NewResult(StateCreated))
	assert.Equal(t, StateCreated, parent.State())
}

func TestResultExplicitStateOverridesParts(t *testing.T) {
	parent := &Result{Caller: "test.parent"}
	parent.Extend(NewResult(StateCreated))
	parent.SetState(StateUnchanged)
	assert.Equal(t, StateUnchanged, parent.State())
	assert.False(t, parent.Changed())
}

func TestResultTruthiness(t *testing.T) {
	assert.False(t, NewResult(StateUnchanged).Changed())
	assert.True(t, NewResult(StateSuccess).Changed())
	assert.True(t, NewResult(StateCreated).Changed())
}

func TestResultStringTree(t *testing.T) {
	parent := &Result{Caller: "tasks.CreateMember"}
	child := &Result{Caller: "unix.EnsureUser"}
	child.SetState(StateCreated)
	grandchild := &Result{Caller: "unix.ResetPassword"}
	grandchild.SetState(StateSuccess)
	child.Extend(grandchild)
	parent.Extend(child)

	lines := strings.Split(parent.String(), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "tasks.CreateMember: created", lines[0])
	assert.Equal(t, "  unix.EnsureUser: created", lines[1])
	assert.Equal(t, "    unix.ResetPassword: success", lines[2])
}

func TestNewResultCapturesCaller(t *testing.T) {
	res := NewResult(StateSuccess)
	assert.Contains(t, res.Caller, "TestNewResultCapturesCaller")
}

func TestBuilderCollectsSteps(t *testing.T) {
	b := NewBuilder()
	first := b.Step(NewResult(StateCreated), nil)
	assert.Equal(t, StateCreated, first.State())
	b.Step(NewResult(StateUnchanged), nil)

	res, err := b.Done("value")
	require.NoError(t, err)
	assert.Equal(t, StateCreated, res.State())
	assert.Equal(t, "value", res.Value)
	assert.Len(t, res.Parts, 2)
}

func TestBuilderShortCircuitsAfterError(t *testing.T) {
	boom := errors.New("boom")
	b := NewBuilder()
	b.Step(NewResult(StateSuccess), nil)
	b.Step(nil, boom)
	assert.True(t, b.Skip())

	// Steps after a failure must not contribute parts.
	b.Step(NewResult(StateCreated), nil)

	res, err := b.Done(nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

func TestBuilderFail(t *testing.T) {
	b := NewBuilder()
	b.Fail(errors.New("precondition"))
	_, err := b.Done(nil)
	require.Error(t, err)
	assert.Equal(t, "precondition", err.Error())
}
