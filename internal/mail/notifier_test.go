package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srcf/warden/internal/common"
)

func testNotifier(t *testing.T, config common.MailConfig) *Notifier {
	t.Helper()
	n, err := NewNotifier(config, common.GetLogger())
	require.NoError(t, err)
	return n
}

func TestLoadTemplates(t *testing.T) {
	n := testNotifier(t, common.MailConfig{})
	for _, name := range []string{
		"plumbing/legacy_mailbox",
		"tasks/mysql_create",
		"tasks/pgsql_password",
		"tasks/mailman_create",
		"member/signup",
		"society/admin_remove",
		"jobs/vhost_add",
	} {
		assert.Contains(t, n.templates, name)
	}
}

func TestRender(t *testing.T) {
	n := testNotifier(t, common.MailConfig{})

	subject, body, err := n.Render("tasks/mysql_password", map[string]any{
		"Name":     "Test Person",
		"Username": "spqr2",
		"Password": "hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, "[SRCF] Your MySQL password", subject)
	assert.Contains(t, body, "Dear Test Person,")
	assert.Contains(t, body, "Password: hunter2")
	assert.NotContains(t, subject, "\n")
}

func TestRenderFooter(t *testing.T) {
	n := testNotifier(t, common.MailConfig{})
	n.Footer = "SRCF Sysadmins\nsupport@srcf.net"

	_, body, err := n.Render("member/password", map[string]any{
		"Name": "Test", "CRSid": "spqr2", "Password": "pw",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "\n\n-- \nSRCF Sysadmins\nsupport@srcf.net\n")
}

func TestRenderUnknownTemplate(t *testing.T) {
	n := testNotifier(t, common.MailConfig{})
	_, _, err := n.Render("nope/missing", nil)
	assert.Error(t, err)
}

func TestSendSuppressed(t *testing.T) {
	n := testNotifier(t, common.MailConfig{Suppress: true})

	res, err := n.Send(context.Background(), Recipient{Email: "spqr2@cam.ac.uk"},
		"member/update_email", map[string]any{"Name": "Test", "CRSid": "spqr2"})
	require.NoError(t, err)
	assert.False(t, res.Changed())

	assert.NoError(t, n.SendSysadmins(context.Background(), "job failed", "details"))
}

func TestRecipientAddress(t *testing.T) {
	assert.Equal(t, "spqr2@cam.ac.uk", Recipient{Email: "spqr2@cam.ac.uk"}.address())
	assert.Equal(t, "Test Person <spqr2@cam.ac.uk>",
		Recipient{Name: "Test Person", Email: "spqr2@cam.ac.uk"}.address())
}
