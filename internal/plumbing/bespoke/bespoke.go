// Package bespoke wraps the site-specific helpers and file surgery that
// don't belong to any one subsystem: NIS propagation, quotas, crontabs,
// audit logs, the sudoers and Apache group generators, and the legacy
// mail plumbing.
package bespoke

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/srcf/warden/internal/plumbing"
)

// Site helper locations.
var (
	SlayCommand           = "/usr/local/sbin/srcf-slay"
	QuotasCommand         = "/usr/local/sbin/srcf-update-quotas"
	ApacheGroupsCommand   = "/usr/local/sbin/srcf-updateapachegroups"
	SudoersCommand        = "/usr/local/sbin/srcf-generate-society-sudoers"
	MemberExportCommand   = "/usr/local/sbin/srcf-memberdb-export"
	ListSubscribeCommand  = "/usr/local/sbin/srcf-enqueue-mlsub"
	MailmanAliasesCommand = "/usr/local/sbin/srcf-generate-mailman-aliases"
	CrontabCommand        = "/usr/bin/crontab"
	YPDir                 = "/var/yp"
)

// Audit logs, one line per admin-visible change.
var (
	MemberAuditLog  = "/var/log/admin/users.log"
	SocietyAuditLog = "/var/log/admin/socs.log"
)

// LogToFile appends a timestamped line to an audit log.
func LogToFile(path, message string) (*plumbing.Result, error) {
	log, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return nil, err
	}
	defer log.Close()
	now := time.Now().Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(log, "%s -- %s\n", now, message); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// UpdateNIS regenerates the NIS maps. Set wait when a freshly created
// uid or gid is about to be used over NFS, to avoid the server caching
// its nonexistence.
func UpdateNIS(ctx context.Context, wait time.Duration) (*plumbing.Result, error) {
	if err := plumbing.RequireHost(plumbing.HostUser); err != nil {
		return nil, err
	}
	if _, err := plumbing.Command(ctx, "make", "-C", YPDir); err != nil {
		return nil, err
	}
	if wait > 0 {
		time.Sleep(wait)
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// GetCrontab returns the account's crontab, empty if none.
func GetCrontab(ctx context.Context, username string) (string, error) {
	out, err := plumbing.Command(ctx, CrontabCommand, "-u", username, "-l")
	if err != nil {
		var cmdErr *plumbing.CommandError
		if errors.As(err, &cmdErr) {
			// crontab -l exits 1 when there is no crontab.
			return "", nil
		}
		return "", err
	}
	return string(out), nil
}

// ClearCrontab removes the account's crontab.
func ClearCrontab(ctx context.Context, username string) (*plumbing.Result, error) {
	current, err := GetCrontab(ctx, username)
	if err != nil {
		return nil, err
	}
	if current == "" {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if _, err := plumbing.Command(ctx, CrontabCommand, "-u", username, "-r"); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// SlayUser kills every process belonging to the account. Nothing to
// kill, or no such account, is unchanged.
func SlayUser(ctx context.Context, username string) (*plumbing.Result, error) {
	out, err := plumbing.Command(ctx, SlayCommand, username)
	if err != nil {
		var cmdErr *plumbing.CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitCode == 2 {
			// User not found.
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return nil, err
	}
	if len(out) == 0 {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// UpdateQuotas reapplies filesystem quotas from the member database.
func UpdateQuotas(ctx context.Context) (*plumbing.Result, error) {
	if _, err := plumbing.Command(ctx, QuotasCommand); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// GenerateApacheGroups regenerates the web server's group map.
func GenerateApacheGroups(ctx context.Context) (*plumbing.Result, error) {
	if _, err := plumbing.Command(ctx, ApacheGroupsCommand); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// GenerateSudoers regenerates the society sudoers fragments.
func GenerateSudoers(ctx context.Context) (*plumbing.Result, error) {
	if _, err := plumbing.Command(ctx, SudoersCommand); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// ExportMembers regenerates the legacy flat-file membership list.
func ExportMembers(ctx context.Context) (*plumbing.Result, error) {
	if _, err := plumbing.Command(ctx, MemberExportCommand); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// QueueListSubscription enqueues the member onto site mailing lists
// ("maintenance", "social", ...), keyed soc-srcf-<name>.
func QueueListSubscription(ctx context.Context, name, email string, lists ...string) (*plumbing.Result, error) {
	if len(lists) == 0 {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	entry := fmt.Sprintf("%q <%s>", name, email)
	args := []string{ListSubscribeCommand}
	for _, list := range lists {
		args = append(args, fmt.Sprintf("soc-srcf-%s:%s", list, entry))
	}
	if _, err := plumbing.Command(ctx, args...); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// ConfigureMailingList applies the site's default list settings.
func ConfigureMailingList(ctx context.Context, name string) (*plumbing.Result, error) {
	_, err := plumbing.Command(ctx, "config_list", "--inputfile", "/root/mailman-newlist-defaults", name)
	if err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// GenerateMailmanAliases regenerates the MTA's list alias map.
func GenerateMailmanAliases(ctx context.Context) (*plumbing.Result, error) {
	if _, err := plumbing.Command(ctx, MailmanAliasesCommand); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}
