package pgsql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdentifier(t *testing.T) {
	quoted, err := quoteIdentifier("spqr2")
	require.NoError(t, err)
	assert.Equal(t, `"spqr2"`, quoted)

	quoted, err = quoteIdentifier("some_soc")
	require.NoError(t, err)
	assert.Equal(t, `"some_soc"`, quoted)

	// Hyphenated owner names must be mapped to underscores before they
	// reach this layer.
	_, err = quoteIdentifier("some-soc")
	assert.ErrorContains(t, err, "invalid PostgreSQL identifier")

	// The quote character is forbidden, never escaped.
	_, err = quoteIdentifier(`evil"name`)
	assert.ErrorContains(t, err, "invalid PostgreSQL identifier")

	_, err = quoteIdentifier("evil;drop")
	assert.Error(t, err)
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'hunter2'", quoteLiteral("hunter2"))

	// Embedded quotes are doubled, never left to break the statement.
	assert.Equal(t, "'pa''ss''wd'", quoteLiteral("pa'ss'wd"))

	// Backslashes pass through untouched.
	assert.Equal(t, `'a\b'`, quoteLiteral(`a\b`))
}

func TestIdentifierCheckedBeforeStatement(t *testing.T) {
	// A client with no pool: if the identifier check fires first, no
	// statement is ever attempted and no panic reaches the server path.
	c := NewClient(nil)
	ctx := context.Background()

	_, err := c.DropUser(ctx, `bad"user`)
	assert.Error(t, err)
	_, err = c.DropDatabase(ctx, `bad"db`)
	assert.Error(t, err)
	_, err = c.ResetPassword(ctx, `bad"user`)
	assert.Error(t, err)
}

func TestRoleLoginTransitions(t *testing.T) {
	c := NewClient(nil)
	ctx := context.Background()

	// Already in the desired state: no statement is issued.
	res, err := c.EnableRole(ctx, Role{Name: "spqr2", CanLogin: true})
	require.NoError(t, err)
	assert.False(t, res.Changed())

	res, err = c.DisableRole(ctx, Role{Name: "spqr2", CanLogin: false})
	require.NoError(t, err)
	assert.False(t, res.Changed())
}
