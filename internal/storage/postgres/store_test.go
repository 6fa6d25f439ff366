package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrubMatchesOwnerlessSignups(t *testing.T) {
	// Signup rows have no owner; the crsid rides in the arguments, and
	// those rows must still be caught when the member is deleted.
	assert.Contains(t, scrubMemberCondition, `owner = $1`)
	assert.Contains(t, scrubMemberCondition, `args -> 'crsid' = $1`)
}

func TestScrubMatchesSocietiesByArgs(t *testing.T) {
	// The owner column always holds a member crsid; society jobs are
	// only reachable through the society argument.
	assert.Contains(t, scrubSocietyCondition, `args -> 'society' = $1`)
	assert.NotContains(t, scrubSocietyCondition, "owner")
}

func TestScrubCoversAllStates(t *testing.T) {
	// Personal data must go even from rows still unapproved or queued.
	assert.NotContains(t, scrubStatement, "state")
	assert.Contains(t, scrubStatement, "delete(args, $3::text[])")
}

func TestSchemaAllocatesUnixIDs(t *testing.T) {
	assert.Contains(t, schema, "CREATE SEQUENCE IF NOT EXISTS unix_ids")
	assert.Contains(t, schema, "members_allocate_ids")
	assert.Contains(t, schema, "societies_allocate_ids")
	assert.Contains(t, schema, "NEW.gid := NEW.uid")
}

func TestSchemaIntegrityConstraints(t *testing.T) {
	for _, constraint := range []string{
		"members_crsid_lower",
		"members_user_implies_member",
		"members_details_if_member",
		"members_email_has_at",
		"societies_name_lower",
		"societies_email_has_at",
	} {
		assert.Contains(t, schema, constraint)
	}
}

func TestNullableID(t *testing.T) {
	// Zero means "let the database allocate".
	assert.False(t, nullableID(0).Valid)

	id := nullableID(3042)
	assert.True(t, id.Valid)
	assert.EqualValues(t, 3042, id.Int64)
}
