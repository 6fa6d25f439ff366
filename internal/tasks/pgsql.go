package tasks

import (
	"context"
	"errors"

	"github.com/srcf/warden/internal/mail"
	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/plumbing/pgsql"
)

// EnsurePostgresAccount creates the owner's login role; a fresh role's
// password is mailed.
func (d *Deps) EnsurePostgresAccount(ctx context.Context, owner plumbing.Owner) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	name := sqlUserName(owner)
	roleRes := b.Step(d.PgSQL.EnsureUser(ctx, name))
	if passwd, ok := resultPassword(roleRes); ok {
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(owner), "tasks/pgsql_create", map[string]any{
			"Name":     owner.OwnerDesc(),
			"Username": name,
			"Database": name,
			"Password": passwd.Reveal(),
		}))
	}
	return b.Done(nil)
}

// CreatePostgresDatabase ensures the account and a database owned by it.
func (d *Deps) CreatePostgresDatabase(ctx context.Context, owner plumbing.Owner, suffix string) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	b.Step(d.EnsurePostgresAccount(ctx, owner))
	if b.Skip() {
		return b.Done(nil)
	}
	role, err := d.PgSQL.GetRole(ctx, sqlUserName(owner))
	if err != nil {
		return nil, err
	}
	name := sqlUserName(owner)
	if suffix != "" {
		name += "_" + suffix
	}
	dbRes := b.Step(d.PgSQL.CreateDatabase(ctx, name, role))
	if dbRes != nil && dbRes.State() == plumbing.StateCreated {
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(owner), "tasks/pgsql_create", map[string]any{
			"Name":     owner.OwnerDesc(),
			"Username": role.Name,
			"Database": name,
		}))
	}
	return b.Done(nil)
}

// ResetPostgresPassword sets a fresh password and mails it.
func (d *Deps) ResetPostgresPassword(ctx context.Context, owner plumbing.Owner) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	pwRes := b.Step(d.PgSQL.ResetPassword(ctx, sqlUserName(owner)))
	if passwd, ok := resultPassword(pwRes); ok {
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(owner), "tasks/pgsql_password", map[string]any{
			"Name":     owner.OwnerDesc(),
			"Username": sqlUserName(owner),
			"Password": passwd.Reveal(),
		}))
	}
	return b.Done(nil)
}

// SyncPostgresRoles reconciles membership of the society's group role
// against its admin set. Only roles belonging to known members are
// touched.
func (d *Deps) SyncPostgresRoles(ctx context.Context, society *models.Society) (*plumbing.Result, error) {
	role, err := d.PgSQL.GetRole(ctx, sqlUserName(society))
	if errors.Is(err, pgsql.ErrNoRole) {
		// No society role means nothing to synchronise.
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if err != nil {
		return nil, err
	}

	holders, err := d.PgSQL.GetRoleUsers(ctx, role)
	if err != nil {
		return nil, err
	}
	var current []string
	for _, name := range holders {
		ok, err := d.isMemberAccount(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			current = append(current, name)
		}
	}

	var wanted []string
	admins := make([]string, 0, len(society.Admins))
	for _, crsid := range society.Admins {
		admins = append(admins, sqlUserName(&models.Member{CRSid: crsid}))
	}
	existing, err := d.PgSQL.GetRoles(ctx, admins...)
	if err != nil {
		return nil, err
	}
	for _, admin := range existing {
		wanted = append(wanted, admin.Name)
	}

	grant, revoke := diffRoles(current, wanted)
	b := plumbing.NewBuilder()
	for _, name := range grant {
		b.Step(d.PgSQL.GrantRole(ctx, name, role))
	}
	for _, name := range revoke {
		b.Step(d.PgSQL.RevokeRole(ctx, name, role))
	}
	return b.Done(nil)
}

// DropAllPostgresDatabases removes every database owned by the account
// and then the role itself.
func (d *Deps) DropAllPostgresDatabases(ctx context.Context, owner plumbing.Owner) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	role, err := d.PgSQL.GetRole(ctx, sqlUserName(owner))
	if errors.Is(err, pgsql.ErrNoRole) {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if err != nil {
		return nil, err
	}
	databases, err := d.PgSQL.GetRoleDatabases(ctx, role)
	if err != nil {
		return nil, err
	}
	for _, database := range databases {
		b.Step(d.PgSQL.DropDatabase(ctx, database))
	}
	b.Step(d.PgSQL.DropUser(ctx, role.Name))
	return b.Done(nil)
}
