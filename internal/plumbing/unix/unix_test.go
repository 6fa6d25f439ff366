package unix

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandACLAliases(t *testing.T) {
	assert.Equal(t, "rntcy", expandACLAliases("R"))
	assert.Equal(t, "watTNcCyD", expandACLAliases("W"))
	assert.Equal(t, "xtcy", expandACLAliases("X"))
	// Duplicates collapse; plain letters pass through.
	assert.Equal(t, "rntcyx", expandACLAliases("RX"))
	assert.Equal(t, "rw", expandACLAliases("rw"))
}

func TestParseNFSACL(t *testing.T) {
	output := strings.Join([]string{
		"# file: /home/spqr2",
		"A::OWNER@:rwaDxtTnNcCoy",
		"A::Debian-exim@srcf.net:rntcy",
		"A::Debian-exim@srcf.net:x",
		"D::Debian-exim@srcf.net:t",
		"A::GROUP@:rxtcy",
	}, "\n")

	perms := parseNFSACL(output, "Debian-exim@srcf.net")
	// Allow union minus deny: rntcy + x, minus t.
	assert.Contains(t, perms, "r")
	assert.Contains(t, perms, "x")
	assert.NotContains(t, perms, "t")

	assert.Equal(t, "", parseNFSACL(output, "nobody@srcf.net"))
}

func TestEditNetgroupAdd(t *testing.T) {
	lines := []string{
		"# managed by warden",
		"members (,spqr2,)",
		"socs (,test,)",
	}
	out, changed, err := editNetgroup(lines, "members", "abc1", true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "members (,spqr2,) (,abc1,)", out[1])
	assert.Equal(t, lines[2], out[2])

	// Second add is a no-op.
	out, changed, err = editNetgroup(out, "members", "abc1", true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "members (,spqr2,) (,abc1,)", out[1])
}

func TestEditNetgroupRemove(t *testing.T) {
	lines := []string{"members (,spqr2,) (,abc1,)"}
	out, changed, err := editNetgroup(lines, "members", "spqr2", false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "members (,abc1,)", out[0])

	out, changed, err = editNetgroup(out, "members", "spqr2", false)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestEditNetgroupMissingGroup(t *testing.T) {
	_, _, err := editNetgroup([]string{"other (,x,)"}, "members", "spqr2", true)
	assert.ErrorContains(t, err, "netgroup members not found")

	// Removal from a missing group is a no-op, not an error.
	_, changed, err := editNetgroup([]string{"other (,x,)"}, "members", "spqr2", false)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestReplaceFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netgroup")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0644))

	require.NoError(t, ReplaceFile(path, []byte("new\n")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSymlinkIdempotent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "societies", "test")
	require.NoError(t, os.MkdirAll(target, 0755))
	link := filepath.Join(dir, "test")

	res, err := Symlink(target, link)
	require.NoError(t, err)
	assert.True(t, res.Changed())

	res, err = Symlink(target, link)
	require.NoError(t, err)
	assert.False(t, res.Changed())
}

func TestSymlinkLeavesForeignFiles(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "test")
	require.NoError(t, os.WriteFile(link, []byte("not a link"), 0644))

	res, err := Symlink("/societies/test", link)
	require.NoError(t, err)
	assert.False(t, res.Changed())

	data, err := os.ReadFile(link)
	require.NoError(t, err)
	assert.Equal(t, "not a link", string(data))
}

func TestCopytreeChownChmod(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "profile"), []byte("x"), 0640))
	require.NoError(t, os.Mkdir(filepath.Join(src, "dir"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "dir", "inner"), []byte("y"), 0600))

	uid := os.Getuid()
	gid := os.Getgid()
	require.NoError(t, CopytreeChownChmod(src, dst, uid, gid))

	// User mode bits are copied onto the group bits.
	info, err := os.Stat(filepath.Join(dst, "profile"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0660), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(dst, "dir", "inner"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0660), info.Mode().Perm())
}

func TestSplitHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCommas("a,b"))
	assert.Nil(t, splitCommas(""))
	fields := splitColons("test:x:1234:spqr2,abc1\n")
	require.Len(t, fields, 4)
	assert.Equal(t, "spqr2,abc1", fields[3])
}
