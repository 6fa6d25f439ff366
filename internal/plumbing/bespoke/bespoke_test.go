package bespoke

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srcf/warden/internal/plumbing"
)

func TestEditWebsites(t *testing.T) {
	lines := []string{"spqr2:subdomain", "test:subdomain"}

	// Adding a new entry.
	out, changed := editWebsites(lines, "abc1", "subdomain")
	assert.True(t, changed)
	assert.Equal(t, []string{"spqr2:subdomain", "test:subdomain", "abc1:subdomain"}, out)

	// Updating in place.
	out, changed = editWebsites(lines, "spqr2", "custom")
	assert.True(t, changed)
	assert.Equal(t, "spqr2:custom", out[0])

	// Idempotent set.
	_, changed = editWebsites(lines, "spqr2", "subdomain")
	assert.False(t, changed)

	// Removal.
	out, changed = editWebsites(lines, "test", "")
	assert.True(t, changed)
	assert.Equal(t, []string{"spqr2:subdomain"}, out)

	// Removing a missing entry.
	_, changed = editWebsites(lines, "nobody", "")
	assert.False(t, changed)
}

func TestEmptyLegacyMailbox(t *testing.T) {
	orig := MailDir
	defer func() { MailDir = orig }()
	MailDir = t.TempDir()

	// Missing mailbox.
	res, err := EmptyLegacyMailbox("spqr2")
	require.NoError(t, err)
	assert.False(t, res.Changed())

	// Empty mailbox.
	path := filepath.Join(MailDir, "spqr2")
	require.NoError(t, os.WriteFile(path, nil, 0660))
	res, err = EmptyLegacyMailbox("spqr2")
	require.NoError(t, err)
	assert.False(t, res.Changed())

	// Non-empty mailbox is truncated.
	require.NoError(t, os.WriteFile(path, []byte("From ..."), 0660))
	res, err = EmptyLegacyMailbox("spqr2")
	require.NoError(t, err)
	assert.True(t, res.Changed())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	assert.False(t, LegacyMailboxExists("nobody"))
	assert.True(t, LegacyMailboxExists("spqr2"))
}

func TestLogToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.log")
	res, err := LogToFile(path, "cancelled user spqr2")
	require.NoError(t, err)
	assert.True(t, res.Changed())

	_, err = LogToFile(path, "second entry")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), " -- cancelled user spqr2\n")
	assert.Contains(t, string(data), " -- second entry\n")
}

func TestForwardingFile(t *testing.T) {
	root := t.TempDir()
	orig := plumbing.FilesystemRoot
	defer func() { plumbing.FilesystemRoot = orig }()
	plumbing.FilesystemRoot = root

	owner := testOwner{name: "spqr2", email: "a@b.test"}
	home := filepath.Join(root, "home", "spqr2")
	require.NoError(t, os.MkdirAll(home, 0755))

	res, err := CreateForwardingFile(owner)
	require.NoError(t, err)
	assert.Equal(t, plumbing.StateCreated, res.State())

	data, err := os.ReadFile(filepath.Join(home, ".forward"))
	require.NoError(t, err)
	assert.Equal(t, "a@b.test\n", string(data))

	// Existing files are never overwritten.
	require.NoError(t, os.WriteFile(filepath.Join(home, ".forward"), []byte("custom\n"), 0644))
	res, err = CreateForwardingFile(owner)
	require.NoError(t, err)
	assert.False(t, res.Changed())

	res, err = RemoveForwardingFile(owner)
	require.NoError(t, err)
	assert.True(t, res.Changed())
	res, err = RemoveForwardingFile(owner)
	require.NoError(t, err)
	assert.False(t, res.Changed())
}

type testOwner struct {
	name  string
	email string
}

func (o testOwner) OwnerName() string  { return o.name }
func (o testOwner) OwnerDesc() string  { return o.name }
func (o testOwner) OwnerEmail() string { return o.email }
func (o testOwner) IsSociety() bool    { return false }
