package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/srcf/warden/internal/mail"
	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/plumbing/bespoke"
	"github.com/srcf/warden/internal/plumbing/pgsql"
	"github.com/srcf/warden/internal/plumbing/unix"
	"github.com/srcf/warden/internal/storage/postgres"
)

// CreateMember provisions a whole personal account: database row, UNIX
// user and group, home directories, mail plumbing, list subscriptions
// and the welcome email.
func (d *Deps) CreateMember(ctx context.Context, member *models.Member, social bool) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()

	recordChanged, err := d.ensureMemberRecord(ctx, member)
	if err != nil {
		return nil, err
	}
	if recordChanged {
		b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)
	}

	b.Step(unix.EnsureGroup(ctx, member.CRSid, member.GID, false))
	userRes := b.Step(unix.EnsureUser(ctx, member.CRSid, unix.UserOptions{
		UID:      member.UID,
		GID:      member.GID,
		Active:   true,
		HomeDir:  plumbing.OwnerHome(member, false),
		RealName: member.Name(),
	}))

	var passwd plumbing.Password
	userCreated := userRes != nil && userRes.State() == plumbing.StateCreated
	if userCreated {
		pwRes := b.Step(unix.ResetPassword(ctx, member.CRSid))
		passwd, _ = resultPassword(pwRes)
	}

	wait := d.NISWait
	if !userCreated {
		wait = 0
	}
	b.Step(bespoke.UpdateNIS(ctx, wait))

	b.Step(unix.CreateHome(plumbing.OwnerHome(member, false), member.UID, member.GID, false))
	b.Step(unix.CreateHome(plumbing.OwnerHome(member, true), member.UID, member.GID, true))
	b.Step(bespoke.SetHomeEximACL(ctx, member))
	b.Step(bespoke.PopulateHomeDir(member, member.UID, member.GID))
	b.Step(bespoke.CreatePublicHTML(member, member.UID, member.GID))

	if recordChanged {
		b.Step(bespoke.UpdateQuotas(ctx))
	}
	if member.MailHandler == models.MailHandlerForward {
		b.Step(bespoke.CreateForwardingFile(member))
	}
	b.Step(bespoke.EnableWebsite(member.CRSid, "subdomain"))

	// The first delivery to the real address creates the mailbox.
	if !bespoke.LegacyMailboxExists(member.CRSid) {
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(member), "plumbing/legacy_mailbox",
			map[string]any{"Name": member.Name(), "CRSid": member.CRSid}))
	}

	lists := []string{"maintenance"}
	if social {
		lists = append(lists, "social")
	}
	b.Step(bespoke.QueueListSubscription(ctx, member.Name(), member.Email, lists...))
	b.Step(bespoke.ExportMembers(ctx))

	if err := d.promotePendingAdmins(ctx, member, b); err != nil {
		return nil, err
	}

	b.Step(bespoke.LogToFile(bespoke.MemberAuditLog, "added member "+member.CRSid))

	if userCreated {
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(member), "member/signup", map[string]any{
			"Name":     member.Name(),
			"CRSid":    member.CRSid,
			"Password": passwd.Reveal(),
			"Website":  plumbing.OwnerWebsite(member),
		}))
	}
	return b.Done(nil)
}

// ensureMemberRecord inserts or refreshes the database row, reporting
// whether anything changed.
func (d *Deps) ensureMemberRecord(ctx context.Context, member *models.Member) (bool, error) {
	existing, err := d.Store.GetMember(ctx, member.CRSid)
	if errors.Is(err, postgres.ErrNotFound) {
		member.Member = true
		member.User = true
		return true, d.Store.CreateMember(ctx, member)
	}
	if err != nil {
		return false, err
	}
	member.UID = existing.UID
	member.GID = existing.GID
	member.Danger = existing.Danger
	if existing.PreferredName == member.PreferredName &&
		existing.Surname == member.Surname &&
		existing.Email == member.Email &&
		existing.MailHandler == member.MailHandler &&
		existing.User {
		member.Member = existing.Member
		member.User = existing.User
		return false, nil
	}
	member.Member = true
	member.User = true
	return true, d.Store.UpdateMember(ctx, member)
}

// promotePendingAdmins turns pre-registration admin entries into real
// society admin roles once the member exists.
func (d *Deps) promotePendingAdmins(ctx context.Context, member *models.Member, b *plumbing.Builder) error {
	pending, err := d.Store.TakePendingAdmins(ctx, member.CRSid)
	if err != nil {
		return err
	}
	for _, p := range pending {
		society, err := d.Store.GetSociety(ctx, p.Society)
		if errors.Is(err, postgres.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		b.Step(d.AddSocietyAdmin(ctx, society, member))
	}
	return nil
}

// UpdateMemberName changes the stored and GECOS names.
func (d *Deps) UpdateMemberName(ctx context.Context, member *models.Member, preferred, surname string) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	if member.PreferredName != preferred || member.Surname != surname {
		member.PreferredName = preferred
		member.Surname = surname
		if err := d.Store.UpdateMember(ctx, member); err != nil {
			return nil, err
		}
		b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)
	}
	b.Step(unix.SetRealName(ctx, member.CRSid, member.Name()))
	b.Step(bespoke.ExportMembers(ctx))
	return b.Done(nil)
}

// UpdateMemberEmail changes the contact address, rewrites .forward when
// forwarding, and confirms to the new address.
func (d *Deps) UpdateMemberEmail(ctx context.Context, member *models.Member, email string) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	if member.Email != email {
		member.Email = email
		if err := d.Store.UpdateMember(ctx, member); err != nil {
			return nil, err
		}
		b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)
		if member.MailHandler == models.MailHandlerForward {
			b.Step(bespoke.RemoveForwardingFile(member))
			b.Step(bespoke.CreateForwardingFile(member))
		}
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(member), "member/update_email",
			map[string]any{"Name": member.Name(), "CRSid": member.CRSid}))
	}
	return b.Done(nil)
}

// UpdateMailHandler switches how @srcf.net mail is delivered.
func (d *Deps) UpdateMailHandler(ctx context.Context, member *models.Member, handler models.MailHandler) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	if member.MailHandler != handler {
		member.MailHandler = handler
		if err := d.Store.UpdateMember(ctx, member); err != nil {
			return nil, err
		}
		b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)
	}
	if handler == models.MailHandlerForward {
		b.Step(bespoke.CreateForwardingFile(member))
	} else {
		b.Step(bespoke.RemoveForwardingFile(member))
	}
	b.Step(bespoke.SetHomeEximACL(ctx, member))
	return b.Done(nil)
}

// ResetUserPassword resets the shell password and mails it.
func (d *Deps) ResetUserPassword(ctx context.Context, member *models.Member) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	pwRes := b.Step(unix.ResetPassword(ctx, member.CRSid))
	if passwd, ok := resultPassword(pwRes); ok {
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(member), "member/password", map[string]any{
			"Name":     member.Name(),
			"CRSid":    member.CRSid,
			"Password": passwd.Reveal(),
		}))
	}
	return b.Done(nil)
}

// CancelMember shuts an account down without destroying data: shell
// disabled, processes slain, website archived, SQL access revoked, and
// society admin roles dropped unless keepGroups is set.
func (d *Deps) CancelMember(ctx context.Context, member *models.Member, keepGroups bool) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	b.Step(unix.DisableUser(ctx, member.CRSid))
	b.Step(bespoke.ClearCrontab(ctx, member.CRSid))
	b.Step(bespoke.SlayUser(ctx, member.CRSid))
	b.Step(bespoke.DisableWebsite(member.CRSid))
	b.Step(bespoke.ArchiveWebsite(member))

	if member.User {
		member.User = false
		if err := d.Store.UpdateMember(ctx, member); err != nil {
			return nil, err
		}
		b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)
	}

	b.Step(d.MySQL.DropUser(ctx, sqlUserName(member)))
	if err := d.disablePostgresUser(ctx, member, b); err != nil {
		return nil, err
	}

	if !keepGroups {
		societies, err := d.Store.ListSocietiesOf(ctx, member.CRSid)
		if err != nil {
			return nil, err
		}
		for _, society := range societies {
			b.Step(d.RemoveSocietyAdmin(ctx, society, member))
		}
	}

	b.Step(bespoke.UpdateNIS(ctx, 0))
	b.Step(bespoke.LogToFile(bespoke.MemberAuditLog, "cancelled user "+member.CRSid))
	if err := d.Notifier.SendSysadmins(ctx, "Cancelled user "+member.CRSid,
		fmt.Sprintf("Account %s has been cancelled.\n", member.CRSid)); err != nil {
		return nil, err
	}
	return b.Done(nil)
}

// disablePostgresUser revokes login without touching data.
func (d *Deps) disablePostgresUser(ctx context.Context, member *models.Member, b *plumbing.Builder) error {
	role, err := d.PgSQL.GetRole(ctx, sqlUserName(member))
	if errors.Is(err, pgsql.ErrNoRole) {
		b.Step(plumbing.NewResult(plumbing.StateUnchanged), nil)
		return nil
	}
	if err != nil {
		return err
	}
	b.Step(d.PgSQL.DisableRole(ctx, role))
	return nil
}

// enablePostgresUser restores login for an account that had one.
func (d *Deps) enablePostgresUser(ctx context.Context, member *models.Member, b *plumbing.Builder) error {
	role, err := d.PgSQL.GetRole(ctx, sqlUserName(member))
	if errors.Is(err, pgsql.ErrNoRole) {
		b.Step(plumbing.NewResult(plumbing.StateUnchanged), nil)
		return nil
	}
	if err != nil {
		return err
	}
	b.Step(d.PgSQL.EnableRole(ctx, role))
	return nil
}

// ReactivateMember brings a cancelled account back.
func (d *Deps) ReactivateMember(ctx context.Context, member *models.Member) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	if !member.User {
		member.User = true
		if err := d.Store.UpdateMember(ctx, member); err != nil {
			return nil, err
		}
		b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)
	}
	b.Step(unix.EnableUser(ctx, member.CRSid))
	if err := d.enablePostgresUser(ctx, member, b); err != nil {
		return nil, err
	}
	pwRes := b.Step(unix.ResetPassword(ctx, member.CRSid))
	b.Step(bespoke.EnableWebsite(member.CRSid, "subdomain"))
	b.Step(bespoke.UpdateNIS(ctx, 0))
	b.Step(bespoke.ExportMembers(ctx))

	data := map[string]any{"Name": member.Name(), "CRSid": member.CRSid}
	if passwd, ok := resultPassword(pwRes); ok {
		data["Password"] = passwd.Reveal()
	}
	b.Step(d.Notifier.Send(ctx, mail.RecipientFor(member), "member/reactivate", data))
	return b.Done(nil)
}

// DeleteMember erases a cancelled account: scrubbed names, scrubbed job
// history, dropped databases and lists, emptied mailbox, removed
// domains and files. sensitive maps job types to their secret argument
// names.
func (d *Deps) DeleteMember(ctx context.Context, member *models.Member, sensitive map[string][]string) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()

	b.Step(bespoke.ScrubUser(ctx, member, member.UID))
	b.Step(bespoke.ScrubGroup(ctx, member, member.GID))
	if err := d.Store.ScrubMemberJobs(ctx, member.CRSid, sensitive); err != nil {
		return nil, err
	}

	b.Step(d.DropAllMySQLDatabases(ctx, member))
	b.Step(d.DropAllPostgresDatabases(ctx, member))
	b.Step(d.RemoveAllLists(ctx, member))
	b.Step(bespoke.EmptyLegacyMailbox(member.CRSid))

	if err := d.removeAllDomains(ctx, models.DomainClassUser, member.CRSid, b); err != nil {
		return nil, err
	}
	b.Step(bespoke.DeleteFiles(member))

	member.PreferredName = ""
	member.Surname = ""
	member.Email = ""
	member.Notes = ""
	member.Member = false
	member.User = false
	if err := d.Store.UpdateMember(ctx, member); err != nil {
		return nil, err
	}
	b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)

	b.Step(bespoke.LogToFile(bespoke.MemberAuditLog, "deleted member "+member.CRSid))
	if err := d.Notifier.SendSysadmins(ctx, "Deleted member "+member.CRSid,
		fmt.Sprintf("Member %s has been deleted and scrubbed.\n", member.CRSid)); err != nil {
		return nil, err
	}
	return b.Done(nil)
}

// removeAllDomains drops every custom domain of an owner.
func (d *Deps) removeAllDomains(ctx context.Context, class models.DomainClass, owner string, b *plumbing.Builder) error {
	domains, err := d.Store.ListDomainsOf(ctx, class, owner)
	if err != nil {
		return err
	}
	for _, domain := range domains {
		if err := d.Store.DeleteDomain(ctx, domain.Domain); err != nil {
			return err
		}
		b.Step(plumbing.NewResultValue(plumbing.StateSuccess, domain.Domain), nil)
	}
	return nil
}
