package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
)

func TestSQLNaming(t *testing.T) {
	member := &models.Member{CRSid: "spqr2"}
	society := &models.Society{Society: "x-files"}

	assert.Equal(t, "spqr2", sqlUserName(member))
	assert.Equal(t, "x_files", sqlUserName(society))
	assert.Equal(t, "spqr2", databaseName(member, ""))
	assert.Equal(t, "spqr2/wiki", databaseName(member, "wiki"))
	assert.Equal(t, "x_files/%", wildcardDatabases(society))
}

func TestDiffRoles(t *testing.T) {
	grant, revoke := diffRoles([]string{"abc1", "spqr2"}, []string{"spqr2", "xyz9"})
	assert.Equal(t, []string{"xyz9"}, grant)
	assert.Equal(t, []string{"abc1"}, revoke)

	grant, revoke = diffRoles([]string{"spqr2"}, []string{"spqr2"})
	assert.Empty(t, grant)
	assert.Empty(t, revoke)

	grant, revoke = diffRoles(nil, []string{"b", "a"})
	assert.Equal(t, []string{"a", "b"}, grant)
	assert.Empty(t, revoke)
}

func TestResultPassword(t *testing.T) {
	passwd := plumbing.NewPassword("hunter2")

	_, ok := resultPassword(plumbing.NewResult(plumbing.StateSuccess))
	assert.False(t, ok)

	direct := plumbing.NewResultValue(plumbing.StateSuccess, passwd)
	found, ok := resultPassword(direct)
	require.True(t, ok)
	assert.Equal(t, "hunter2", found.Reveal())

	parent := plumbing.NewResult(plumbing.StateUnchanged)
	parent.Extend(plumbing.NewResult(plumbing.StateSuccess))
	parent.Extend(direct)
	found, ok = resultPassword(parent)
	require.True(t, ok)
	assert.Equal(t, "hunter2", found.Reveal())
}

func TestListNaming(t *testing.T) {
	member := &models.Member{CRSid: "spqr2", Email: "a@b.test"}
	society := &models.Society{Society: "test"}

	assert.Equal(t, "spqr2", listName(member, ""))
	assert.Equal(t, "spqr2-announce", listName(member, "announce"))
	assert.Equal(t, "test-committee", listName(society, "committee"))

	assert.Equal(t, "spqr2@srcf.net", listAdmin(member))
	assert.Equal(t, "test-admins@srcf.net", listAdmin(society))
}

func TestDomainClass(t *testing.T) {
	assert.Equal(t, models.DomainClassUser, domainClass(&models.Member{CRSid: "spqr2"}))
	assert.Equal(t, models.DomainClassSoc, domainClass(&models.Society{Society: "test"}))
}

func TestRemoveLastAdminRefused(t *testing.T) {
	d := &Deps{}
	society := &models.Society{Society: "test", RoleEmail: "x@y.test", Admins: []string{"spqr2"}}
	member := &models.Member{CRSid: "spqr2"}

	_, err := d.RemoveSocietyAdmin(context.Background(), society, member)
	require.Error(t, err)
	assert.Equal(t, "Removing all admins not implemented", err.Error())
	assert.Equal(t, []string{"spqr2"}, society.Admins)
}

func TestSummariseSociety(t *testing.T) {
	d := &Deps{}
	society := &models.Society{
		Society:     "test",
		Description: "Test Society",
		RoleEmail:   "committee@test.soc.srcf.net",
		Admins:      []string{"abc1", "spqr2"},
	}
	summary := d.summariseSociety(society)
	assert.Contains(t, summary, "Society:     test")
	assert.Contains(t, summary, "Description: Test Society")
	assert.Contains(t, summary, "abc1, spqr2")
}
