package mysql

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdentifier(t *testing.T) {
	quoted, err := quoteIdentifier("spqr2/test")
	require.NoError(t, err)
	assert.Equal(t, "`spqr2/test`", quoted)

	quoted, err = quoteIdentifier("test/%")
	require.NoError(t, err)
	assert.Equal(t, "`test/%`", quoted)

	// A backtick is rejected, never escaped.
	_, err = quoteIdentifier("evil`name")
	assert.ErrorContains(t, err, "invalid MySQL identifier")

	_, err = quoteIdentifier("evil name")
	assert.Error(t, err)

	_, err = quoteIdentifier("")
	assert.Error(t, err)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "test/\\_", escapeLike("test/%"))
	assert.Equal(t, "spqr2", escapeLike("spqr2"))
}

func TestParseDefaultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".my.cnf")
	content := `# admin credentials
[mysqld]
port = 3306

[client]
user = srcf_admin
password = "s3cret"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	user, password, err := ParseDefaultsFile(path)
	require.NoError(t, err)
	assert.Equal(t, "srcf_admin", user)
	assert.Equal(t, "s3cret", password)
}

func TestParseDefaultsFileMissingPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".my.cnf")
	require.NoError(t, os.WriteFile(path, []byte("[client]\nuser = x\n"), 0600))
	_, _, err := ParseDefaultsFile(path)
	assert.ErrorContains(t, err, "no client password")
}
