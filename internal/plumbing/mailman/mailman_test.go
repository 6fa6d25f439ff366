package mailman

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateListName(t *testing.T) {
	assert.NoError(t, ValidateListName("spqr2-mylist"))
	assert.NoError(t, ValidateListName("test-committee"))
	// "admin" is only reserved as the final segment.
	assert.NoError(t, ValidateListName("test-admin-chat"))

	assert.ErrorContains(t, ValidateListName("mylist-admin"), "invalid list suffix mylist-admin")
	for _, suffix := range []string{"bounces", "confirm", "join", "leave", "owner", "request", "subscribe", "unsubscribe"} {
		assert.Error(t, ValidateListName("spqr2-"+suffix), suffix)
	}

	assert.ErrorContains(t, ValidateListName("My-List"), "invalid list name")
	assert.Error(t, ValidateListName("list with spaces"))
	assert.Error(t, ValidateListName(""))
}

func TestParseNewPassword(t *testing.T) {
	output := "Some preamble\nNew test-list password: abc123XYZ\n"
	passwd, err := parseNewPassword(output, "test-list")
	require.NoError(t, err)
	assert.Equal(t, "abc123XYZ", passwd.Reveal())
	assert.NotContains(t, passwd.String(), "abc123XYZ")

	_, err = parseNewPassword("nothing here", "test-list")
	assert.ErrorContains(t, err, "no password in change_pw output")
}
