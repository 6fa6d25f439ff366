package bespoke

import (
	"os"
	"path/filepath"

	"github.com/srcf/warden/internal/plumbing"
)

// MailDir holds the legacy system mailboxes.
var MailDir = "/var/mail"

// LegacyMailboxExists reports whether the member already has a legacy
// mailbox. Creation happens as a side effect of delivering the first
// message to real-<crsid>@srcf.net; the task layer sends that message.
func LegacyMailboxExists(crsid string) bool {
	_, err := os.Stat(filepath.Join(MailDir, crsid))
	return err == nil
}

// EmptyLegacyMailbox truncates the member's legacy mailbox; a missing or
// already-empty mailbox is unchanged.
func EmptyLegacyMailbox(crsid string) (*plumbing.Result, error) {
	path := filepath.Join(MailDir, crsid)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if err := os.Truncate(path, 0); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}
