package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srcf/warden/internal/mail"
	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/plumbing/bespoke"
	"github.com/srcf/warden/internal/plumbing/unix"
	"github.com/srcf/warden/internal/storage/postgres"
)

// CreateSociety provisions a group account: database row, shared UNIX
// user and group, home directories, the initial admin set, website and
// sudoers plumbing.
func (d *Deps) CreateSociety(ctx context.Context, society *models.Society, admins []string) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()

	existing, err := d.Store.GetSociety(ctx, society.Society)
	if errors.Is(err, postgres.ErrNotFound) {
		if err := d.Store.CreateSociety(ctx, society); err != nil {
			return nil, err
		}
		b.Step(plumbing.NewResult(plumbing.StateCreated), nil)
	} else if err != nil {
		return nil, err
	} else {
		society.UID = existing.UID
		society.GID = existing.GID
		society.Admins = existing.Admins
	}

	b.Step(unix.EnsureGroup(ctx, society.Society, society.GID, true))
	userRes := b.Step(unix.EnsureUser(ctx, society.Society, unix.UserOptions{
		UID:      society.UID,
		GID:      society.GID,
		System:   true,
		Active:   false,
		HomeDir:  plumbing.OwnerHome(society, false),
		RealName: society.Description,
	}))
	userCreated := userRes != nil && userRes.State() == plumbing.StateCreated

	wait := d.NISWait
	if !userCreated {
		wait = 0
	}
	b.Step(bespoke.UpdateNIS(ctx, wait))

	b.Step(unix.CreateHome(plumbing.OwnerHome(society, false), society.UID, society.GID, false))
	b.Step(unix.CreateHome(plumbing.OwnerHome(society, true), society.UID, society.GID, true))
	b.Step(bespoke.PopulateHomeDir(society, society.UID, society.GID))
	b.Step(bespoke.CreatePublicHTML(society, society.UID, society.GID))

	for _, crsid := range admins {
		member, err := d.Store.GetMember(ctx, crsid)
		if errors.Is(err, postgres.ErrNotFound) {
			// Not signed up yet; promoted when they are.
			if err := d.Store.AddPendingAdmin(ctx, society.Society, crsid); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		b.Step(d.AddSocietyAdmin(ctx, society, member))
	}

	b.Step(bespoke.UpdateQuotas(ctx))
	b.Step(bespoke.EnableWebsite(society.Society, "subdomain"))
	b.Step(bespoke.GenerateSudoers(ctx))
	b.Step(bespoke.ExportMembers(ctx))
	b.Step(bespoke.LogToFile(bespoke.SocietyAuditLog, "added society "+society.Society))

	b.Step(d.Notifier.Send(ctx, mail.RecipientFor(society), "society/create", map[string]any{
		"Society":     society.Society,
		"Description": society.Description,
		"Website":     plumbing.OwnerWebsite(society),
	}))
	return b.Done(nil)
}

// AddSocietyAdmin grants a member admin rights over a society: the
// database relation, UNIX group membership, the home symlink, and SQL
// role synchronisation.
func (d *Deps) AddSocietyAdmin(ctx context.Context, society *models.Society, member *models.Member) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	if !society.HasAdmin(member.CRSid) {
		if err := d.Store.AddAdmin(ctx, society.Society, member.CRSid); err != nil {
			return nil, err
		}
		society.Admins = append(society.Admins, member.CRSid)
		b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)
	}
	b.Step(unix.AddToGroup(ctx, member.CRSid, society.Society))
	b.Step(bespoke.LinkSocHomeDir(plumbing.OwnerHome(member, false), society.Society))
	b.Step(d.SyncMySQLRoles(ctx, society))
	b.Step(d.SyncPostgresRoles(ctx, society))
	b.Step(bespoke.GenerateSudoers(ctx))
	b.Step(bespoke.UpdateNIS(ctx, 0))
	b.Step(d.Notifier.Send(ctx, mail.RecipientFor(society), "society/admin_add", map[string]any{
		"Society":     society.Society,
		"Description": society.Description,
		"Member":      member.CRSid,
		"MemberName":  member.Name(),
	}))
	return b.Done(nil)
}

// RemoveSocietyAdmin revokes a member's admin rights. Removing the last
// admin is not supported; the society should be deleted instead.
func (d *Deps) RemoveSocietyAdmin(ctx context.Context, society *models.Society, member *models.Member) (*plumbing.Result, error) {
	if len(society.Admins) == 1 && society.HasAdmin(member.CRSid) {
		return nil, errors.New("Removing all admins not implemented")
	}
	b := plumbing.NewBuilder()
	if society.HasAdmin(member.CRSid) {
		if err := d.Store.RemoveAdmin(ctx, society.Society, member.CRSid); err != nil {
			return nil, err
		}
		remaining := society.Admins[:0]
		for _, crsid := range society.Admins {
			if crsid != member.CRSid {
				remaining = append(remaining, crsid)
			}
		}
		society.Admins = remaining
		b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)
	}
	b.Step(unix.RemoveFromGroup(ctx, member.CRSid, society.Society))
	b.Step(bespoke.UnlinkSocHomeDir(plumbing.OwnerHome(member, false), society.Society))
	b.Step(d.SyncMySQLRoles(ctx, society))
	b.Step(d.SyncPostgresRoles(ctx, society))
	b.Step(bespoke.GenerateSudoers(ctx))
	b.Step(bespoke.UpdateNIS(ctx, 0))
	b.Step(d.Notifier.Send(ctx, mail.RecipientFor(society), "society/admin_remove", map[string]any{
		"Society":     society.Society,
		"Description": society.Description,
		"Member":      member.CRSid,
		"MemberName":  member.Name(),
	}))
	return b.Done(nil)
}

// UpdateSocietyDescription renames the society in its record and GECOS.
func (d *Deps) UpdateSocietyDescription(ctx context.Context, society *models.Society, description string) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	if society.Description != description {
		society.Description = description
		if err := d.Store.UpdateSociety(ctx, society); err != nil {
			return nil, err
		}
		b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)
	}
	b.Step(unix.SetRealName(ctx, society.Society, description))
	b.Step(bespoke.ExportMembers(ctx))
	return b.Done(nil)
}

// UpdateRoleEmail changes where society notifications are sent.
func (d *Deps) UpdateRoleEmail(ctx context.Context, society *models.Society, roleEmail string) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	if society.RoleEmail != roleEmail {
		society.RoleEmail = roleEmail
		if err := d.Store.UpdateSociety(ctx, society); err != nil {
			return nil, err
		}
		b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)
	}
	return b.Done(nil)
}

// DeleteSociety archives and then erases a group account entirely.
// sensitive maps job types to their secret argument names for the job
// history scrub.
func (d *Deps) DeleteSociety(ctx context.Context, society *models.Society, sensitive map[string][]string) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()

	b.Step(bespoke.ClearCrontab(ctx, society.Society))
	b.Step(bespoke.SlayUser(ctx, society.Society))
	b.Step(bespoke.ArchiveSocietyFiles(ctx, society, d.summariseSociety(society)))

	for _, crsid := range append([]string(nil), society.Admins...) {
		member, err := d.Store.GetMember(ctx, crsid)
		if err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				continue
			}
			return nil, err
		}
		b.Step(bespoke.UnlinkSocHomeDir(plumbing.OwnerHome(member, false), society.Society))
		b.Step(unix.RemoveFromGroup(ctx, crsid, society.Society))
		if err := d.Store.RemoveAdmin(ctx, society.Society, crsid); err != nil {
			return nil, err
		}
	}
	society.Admins = nil

	b.Step(d.DropAllMySQLDatabases(ctx, society))
	b.Step(d.DropAllPostgresDatabases(ctx, society))
	b.Step(d.RemoveAllLists(ctx, society))
	b.Step(bespoke.DisableWebsite(society.Society))
	if err := d.removeAllDomains(ctx, models.DomainClassSoc, society.Society, b); err != nil {
		return nil, err
	}
	b.Step(bespoke.DeleteFiles(society))

	b.Step(bespoke.ScrubUser(ctx, society, society.UID))
	b.Step(bespoke.ScrubGroup(ctx, society, society.GID))
	if err := d.Store.ScrubSocietyJobs(ctx, society.Society, sensitive); err != nil {
		return nil, err
	}

	if err := d.Store.DeleteSociety(ctx, society.Society); err != nil {
		return nil, err
	}
	b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)

	b.Step(bespoke.GenerateSudoers(ctx))
	b.Step(bespoke.UpdateNIS(ctx, 0))
	b.Step(bespoke.ExportMembers(ctx))
	b.Step(bespoke.LogToFile(bespoke.SocietyAuditLog, "deleted society "+society.Society))
	if err := d.Notifier.SendSysadmins(ctx, "Deleted society "+society.Society,
		fmt.Sprintf("Society %s has been deleted and archived.\n", society.Society)); err != nil {
		return nil, err
	}
	return b.Done(nil)
}

// summariseSociety renders the human-readable record preserved next to
// a deleted society's archive.
func (d *Deps) summariseSociety(society *models.Society) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Society:     %s\n", society.Society)
	fmt.Fprintf(&sb, "Description: %s\n", society.Description)
	if society.RoleEmail != "" {
		fmt.Fprintf(&sb, "Role email:  %s\n", society.RoleEmail)
	}
	if society.Joined != nil {
		fmt.Fprintf(&sb, "Joined:      %s\n", society.Joined.Format("2006-01-02"))
	}
	fmt.Fprintf(&sb, "Admins:      %s\n", strings.Join(society.Admins, ", "))
	return sb.String()
}
