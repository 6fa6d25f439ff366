package tasks

import (
	"context"

	"github.com/srcf/warden/internal/mail"
	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/plumbing/bespoke"
	"github.com/srcf/warden/internal/plumbing/mailman"
)

// listName derives a mailing list's name from its owner and an optional
// suffix: "<owner>" or "<owner>-<suffix>".
func listName(owner plumbing.Owner, suffix string) string {
	if suffix == "" {
		return owner.OwnerName()
	}
	return owner.OwnerName() + "-" + suffix
}

// listAdmin is the address that owns an account's lists.
func listAdmin(owner plumbing.Owner) string {
	if society, ok := owner.(*models.Society); ok {
		return society.AdminEmail()
	}
	return owner.OwnerName() + "@srcf.net"
}

// CreateList creates a mailing list for the owner, applies the site's
// default settings, regenerates the alias map, and mails the admin
// password.
func (d *Deps) CreateList(ctx context.Context, owner plumbing.Owner, suffix string) (*plumbing.Result, error) {
	name := listName(owner, suffix)
	b := plumbing.NewBuilder()
	listRes := b.Step(mailman.EnsureList(ctx, name, listAdmin(owner)))
	created := listRes != nil && listRes.State() == plumbing.StateCreated
	if created {
		b.Step(bespoke.ConfigureMailingList(ctx, name))
		b.Step(bespoke.GenerateMailmanAliases(ctx))
	}
	if passwd, ok := resultPassword(listRes); ok {
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(owner), "tasks/mailman_create", map[string]any{
			"Name":     owner.OwnerDesc(),
			"List":     name,
			"Password": passwd.Reveal(),
		}))
	}
	return b.Done(nil)
}

// ResetListPassword regenerates the list admin password and mails it.
func (d *Deps) ResetListPassword(ctx context.Context, owner plumbing.Owner, suffix string) (*plumbing.Result, error) {
	name := listName(owner, suffix)
	b := plumbing.NewBuilder()
	pwRes := b.Step(mailman.ResetPassword(ctx, name))
	if passwd, ok := resultPassword(pwRes); ok {
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(owner), "tasks/mailman_password", map[string]any{
			"Name":     owner.OwnerDesc(),
			"List":     name,
			"Password": passwd.Reveal(),
		}))
	}
	return b.Done(nil)
}

// RemoveAllLists deletes every list belonging to the owner, archives
// included, and regenerates the alias map if anything went.
func (d *Deps) RemoveAllLists(ctx context.Context, owner plumbing.Owner) (*plumbing.Result, error) {
	lists, err := mailman.OwnedLists(owner.OwnerName())
	if err != nil {
		return nil, err
	}
	b := plumbing.NewBuilder()
	removed := false
	for _, name := range lists {
		part := b.Step(mailman.RemoveList(ctx, name, true))
		if part != nil && part.Changed() {
			removed = true
		}
	}
	if removed {
		b.Step(bespoke.GenerateMailmanAliases(ctx))
	}
	return b.Done(nil)
}
