package interfaces

import (
	"context"

	"github.com/srcf/warden/internal/mail"
	"github.com/srcf/warden/internal/plumbing"
)

// Notifier sends rendered notification mail. Satisfied by mail.Notifier
// and by test fakes.
type Notifier interface {
	// Send renders the named template with data and mails the recipient.
	Send(ctx context.Context, to mail.Recipient, templateName string, data any) (*plumbing.Result, error)
	// SendSysadmins mails the sysadmin contact address directly.
	SendSysadmins(ctx context.Context, subject, body string) error
}
