package tasks

import (
	"context"
	"errors"

	"github.com/srcf/warden/internal/mail"
	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/storage/postgres"
)

// domainClass picks the domains table class for an owner.
func domainClass(owner plumbing.Owner) models.DomainClass {
	if owner.IsSociety() {
		return models.DomainClassSoc
	}
	return models.DomainClassUser
}

// AddVhost points a custom domain at the owner's web space and queues a
// certificate for it.
func (d *Deps) AddVhost(ctx context.Context, owner plumbing.Owner, domain, root string) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	existing, err := d.Store.GetDomain(ctx, domain)
	if err != nil && !errors.Is(err, postgres.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Owner != owner.OwnerName() {
			return nil, errors.New("domain " + domain + " belongs to another account")
		}
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	record := &models.Domain{
		Class:  domainClass(owner),
		Owner:  owner.OwnerName(),
		Domain: domain,
		Root:   root,
	}
	if err := d.Store.CreateDomain(ctx, record); err != nil {
		return nil, err
	}
	b.Step(plumbing.NewResultValue(plumbing.StateCreated, domain), nil)
	if err := d.Store.QueueCert(ctx, domain); err != nil {
		return nil, err
	}
	b.Step(d.Notifier.Send(ctx, mail.RecipientFor(owner), "jobs/vhost_add", map[string]any{
		"Name":   owner.OwnerDesc(),
		"Domain": domain,
		"Root":   root,
	}))
	return b.Done(nil)
}

// ChangeVhostRoot updates the document root of an existing domain.
func (d *Deps) ChangeVhostRoot(ctx context.Context, owner plumbing.Owner, domain, root string) (*plumbing.Result, error) {
	record, err := d.Store.GetDomain(ctx, domain)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, errors.New("domain " + domain + " is not registered")
	}
	if err != nil {
		return nil, err
	}
	if record.Owner != owner.OwnerName() {
		return nil, errors.New("domain " + domain + " belongs to another account")
	}
	b := plumbing.NewBuilder()
	if record.Root != root {
		record.Root = root
		if err := d.Store.UpdateDomain(ctx, record); err != nil {
			return nil, err
		}
		b.Step(plumbing.NewResult(plumbing.StateSuccess), nil)
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(owner), "jobs/vhost_change", map[string]any{
			"Name":   owner.OwnerDesc(),
			"Domain": domain,
			"Root":   root,
		}))
	}
	return b.Done(nil)
}

// RemoveVhost detaches a custom domain from the owner's web space.
func (d *Deps) RemoveVhost(ctx context.Context, owner plumbing.Owner, domain string) (*plumbing.Result, error) {
	record, err := d.Store.GetDomain(ctx, domain)
	if errors.Is(err, postgres.ErrNotFound) {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if err != nil {
		return nil, err
	}
	if record.Owner != owner.OwnerName() {
		return nil, errors.New("domain " + domain + " belongs to another account")
	}
	if err := d.Store.DeleteDomain(ctx, domain); err != nil {
		return nil, err
	}
	b := plumbing.NewBuilder()
	b.Step(plumbing.NewResultValue(plumbing.StateSuccess, domain), nil)
	b.Step(d.Notifier.Send(ctx, mail.RecipientFor(owner), "jobs/vhost_remove", map[string]any{
		"Name":   owner.OwnerDesc(),
		"Domain": domain,
	}))
	return b.Done(nil)
}
