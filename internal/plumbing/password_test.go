package plumbing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordRedaction(t *testing.T) {
	pw := NewPassword("hunter2")
	assert.NotContains(t, pw.String(), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%v", pw), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%+v", pw), "hunter2")
	assert.Equal(t, "hunter2", pw.Reveal())
}

func TestPasswordWrap(t *testing.T) {
	pw := NewPassword("hunter2").Wrap("spqr2:%s")
	assert.Equal(t, "spqr2:hunter2", pw.Reveal())
	assert.Equal(t, "spqr2:***", pw.String())
}

func TestPasswordEmpty(t *testing.T) {
	assert.True(t, Password{}.Empty())
	assert.False(t, NewPassword("x").Empty())
}

func TestRequireHost(t *testing.T) {
	orig := hostname
	defer func() { hostname = orig }()
	hostname = func() string { return "pip" }

	assert.NoError(t, RequireHost("pip"))
	assert.NoError(t, RequireHost("sinkhole", "pip"))
	err := RequireHost("sinkhole")
	assert.ErrorContains(t, err, "must be run on sinkhole")
	assert.ErrorContains(t, err, "this is pip")
}

func TestOwnerPaths(t *testing.T) {
	member := fakeOwner{name: "spqr2"}
	soc := fakeOwner{name: "test", society: true}

	assert.Equal(t, "/home/spqr2", OwnerHome(member, false))
	assert.Equal(t, "/public/home/spqr2", OwnerHome(member, true))
	assert.Equal(t, "/societies/test", OwnerHome(soc, false))
	assert.Equal(t, "/public/societies/test", OwnerHome(soc, true))
	assert.Equal(t, "https://spqr2.user.srcf.net", OwnerWebsite(member))
	assert.Equal(t, "https://test.soc.srcf.net", OwnerWebsite(soc))
}

type fakeOwner struct {
	name    string
	society bool
}

func (f fakeOwner) OwnerName() string { return f.name }
func (f fakeOwner) OwnerDesc() string { return f.name }
func (f fakeOwner) OwnerEmail() string {
	return f.name + "@example.test"
}
func (f fakeOwner) IsSociety() bool { return f.society }
