package tasks

import (
	"context"
	"errors"

	"github.com/srcf/warden/internal/mail"
	"github.com/srcf/warden/internal/models"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/storage/postgres"
)

// EnsureMySQLAccount creates the owner's MySQL user and grants it the
// owner's database patterns. A new account's password is mailed.
func (d *Deps) EnsureMySQLAccount(ctx context.Context, owner plumbing.Owner) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	name := sqlUserName(owner)
	userRes := b.Step(d.MySQL.EnsureUser(ctx, name))
	b.Step(d.MySQL.GrantDatabase(ctx, name, databaseName(owner, "")))
	b.Step(d.MySQL.GrantDatabase(ctx, name, wildcardDatabases(owner)))

	if passwd, ok := resultPassword(userRes); ok {
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(owner), "tasks/mysql_create", map[string]any{
			"Name":     owner.OwnerDesc(),
			"Username": name,
			"Database": databaseName(owner, ""),
			"Password": passwd.Reveal(),
		}))
	}
	return b.Done(nil)
}

// CreateMySQLDatabase ensures the account and the named (optionally
// suffixed) database.
func (d *Deps) CreateMySQLDatabase(ctx context.Context, owner plumbing.Owner, suffix string) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	b.Step(d.EnsureMySQLAccount(ctx, owner))
	dbRes := b.Step(d.MySQL.CreateDatabase(ctx, databaseName(owner, suffix)))
	if dbRes != nil && dbRes.State() == plumbing.StateCreated {
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(owner), "tasks/mysql_create", map[string]any{
			"Name":     owner.OwnerDesc(),
			"Username": sqlUserName(owner),
			"Database": databaseName(owner, suffix),
		}))
	}
	return b.Done(nil)
}

// ResetMySQLPassword sets a fresh password and mails it.
func (d *Deps) ResetMySQLPassword(ctx context.Context, owner plumbing.Owner) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	pwRes := b.Step(d.MySQL.ResetPassword(ctx, sqlUserName(owner)))
	if passwd, ok := resultPassword(pwRes); ok {
		b.Step(d.Notifier.Send(ctx, mail.RecipientFor(owner), "tasks/mysql_password", map[string]any{
			"Name":     owner.OwnerDesc(),
			"Username": sqlUserName(owner),
			"Password": passwd.Reveal(),
		}))
	}
	return b.Done(nil)
}

// SyncMySQLRoles reconciles which members hold grants on a society's
// databases against its current admin set. Only accounts belonging to
// known members are touched.
func (d *Deps) SyncMySQLRoles(ctx context.Context, society *models.Society) (*plumbing.Result, error) {
	databases := []string{databaseName(society, ""), wildcardDatabases(society)}

	seen := make(map[string]bool)
	var current []string
	for _, database := range databases {
		users, err := d.MySQL.GetDatabaseUsers(ctx, database)
		if err != nil {
			return nil, err
		}
		for _, name := range users {
			if name == sqlUserName(society) || seen[name] {
				continue
			}
			seen[name] = true
			ok, err := d.isMemberAccount(ctx, name)
			if err != nil {
				return nil, err
			}
			if ok {
				current = append(current, name)
			}
		}
	}

	wanted := make([]string, 0, len(society.Admins))
	for _, crsid := range society.Admins {
		name := sqlUserName(&models.Member{CRSid: crsid})
		users, err := d.MySQL.GetUsers(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(users) > 0 {
			wanted = append(wanted, name)
		}
	}

	grant, revoke := diffRoles(current, wanted)
	b := plumbing.NewBuilder()
	for _, name := range grant {
		for _, database := range databases {
			b.Step(d.MySQL.GrantDatabase(ctx, name, database))
		}
	}
	for _, name := range revoke {
		for _, database := range databases {
			b.Step(d.MySQL.RevokeDatabase(ctx, name, database))
		}
	}
	return b.Done(nil)
}

// isMemberAccount reports whether a MySQL account name corresponds to a
// registered member.
func (d *Deps) isMemberAccount(ctx context.Context, name string) (bool, error) {
	_, err := d.Store.GetMember(ctx, name)
	if errors.Is(err, postgres.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DropAllMySQLDatabases removes every database of the owner and then the
// account itself.
func (d *Deps) DropAllMySQLDatabases(ctx context.Context, owner plumbing.Owner) (*plumbing.Result, error) {
	b := plumbing.NewBuilder()
	databases, err := d.MySQL.GetMatchedDatabases(ctx, wildcardDatabases(owner))
	if err != nil {
		return nil, err
	}
	exact, err := d.MySQL.GetMatchedDatabases(ctx, databaseName(owner, ""))
	if err != nil {
		return nil, err
	}
	for _, database := range append(exact, databases...) {
		b.Step(d.MySQL.DropDatabase(ctx, database))
	}
	b.Step(d.MySQL.DropUser(ctx, sqlUserName(owner)))
	return b.Done(nil)
}
