// Package pgsql manages roles, grants and databases on the shared
// PostgreSQL server. Primitives are idempotent; database create/drop
// runs outside any transaction, so callers must use the plain pool
// connection rather than an open transaction for those.
package pgsql

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/srcf/warden/internal/plumbing"
)

// Server error codes translated to unchanged.
const (
	codeDuplicateDatabase  = "42P04"
	codeInvalidCatalogName = "3D000"
	codeUndefinedObject    = "42704"
	codeDuplicateObject    = "42710"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// quoteIdentifier wraps a user-controlled identifier in double quotes.
// Only plain word characters are accepted; hyphenated owner names are
// mapped to underscores before they reach this layer. The quote
// character itself is forbidden, never escaped.
func quoteIdentifier(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("invalid PostgreSQL identifier %q", name)
	}
	return `"` + name + `"`, nil
}

// quoteLiteral renders a string literal for utility statements (CREATE
// ROLE, ALTER ROLE) that cannot take bind parameters. Embedded quotes
// are doubled per the SQL standard; backslashes are inert under
// standard_conforming_strings.
func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Role is a server role; CanLogin distinguishes user accounts from pure
// group roles.
type Role struct {
	Name     string
	CanLogin bool
}

// ErrNoRole is returned by lookups for roles that do not exist.
var ErrNoRole = errors.New("no such role")

// Client wraps an administrative connection pool to the server.
type Client struct {
	pool *pgxpool.Pool
}

// NewClient wraps an existing pool.
func NewClient(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// Connect opens the administrative pool, normally via ident auth on the
// database host.
func Connect(ctx context.Context, dsn string) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Client{pool: pool}, nil
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}

// GetRole looks up a single role; ErrNoRole if absent.
func (c *Client) GetRole(ctx context.Context, name string) (Role, error) {
	var role Role
	err := c.pool.QueryRow(ctx,
		"SELECT rolname, rolcanlogin FROM pg_roles WHERE rolname = $1", name).
		Scan(&role.Name, &role.CanLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, fmt.Errorf("%w: %s", ErrNoRole, name)
	}
	return role, err
}

// GetRoles looks up several roles at once, skipping missing ones.
func (c *Client) GetRoles(ctx context.Context, names ...string) ([]Role, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := c.pool.Query(ctx,
		"SELECT rolname, rolcanlogin FROM pg_roles WHERE rolname = ANY($1)", names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.Name, &role.CanLogin); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetUserRoles lists the roles granted to a user.
func (c *Client) GetUserRoles(ctx context.Context, name string) ([]Role, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT g.rolname, g.rolcanlogin
		FROM pg_auth_members m
		JOIN pg_roles g ON g.oid = m.roleid
		JOIN pg_roles u ON u.oid = m.member
		WHERE u.rolname = $1`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.Name, &role.CanLogin); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRoleUsers lists the user names granted a role.
func (c *Client) GetRoleUsers(ctx context.Context, role Role) ([]string, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT u.rolname
		FROM pg_auth_members m
		JOIN pg_roles g ON g.oid = m.roleid
		JOIN pg_roles u ON u.oid = m.member
		WHERE g.rolname = $1`, role.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetRoleDatabases lists databases owned by a role.
func (c *Client) GetRoleDatabases(ctx context.Context, role Role) ([]string, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT datname FROM pg_database
		JOIN pg_roles ON pg_roles.oid = pg_database.datdba
		WHERE rolname = $1 ORDER BY datname`, role.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dbs []string
	for rows.Next() {
		var db string
		if err := rows.Scan(&db); err != nil {
			return nil, err
		}
		dbs = append(dbs, db)
	}
	return dbs, rows.Err()
}

// EnsureUser creates a login role with a fresh password if absent, and
// re-enables login on an existing role that lost it. The password is
// present on the Result only when the role was created.
func (c *Client) EnsureUser(ctx context.Context, name string) (*plumbing.Result, error) {
	quoted, err := quoteIdentifier(name)
	if err != nil {
		return nil, err
	}
	role, err := c.GetRole(ctx, name)
	if err == nil {
		if role.CanLogin {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return c.EnableRole(ctx, role)
	}
	if !errors.Is(err, ErrNoRole) {
		return nil, err
	}
	passwd, err := plumbing.GeneratePassword(ctx)
	if err != nil {
		return nil, err
	}
	_, err = c.pool.Exec(ctx,
		"CREATE ROLE "+quoted+" LOGIN PASSWORD "+quoteLiteral(passwd.Reveal()))
	if err != nil {
		if pgErrCode(err) == codeDuplicateObject {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return nil, err
	}
	return plumbing.NewResultValue(plumbing.StateCreated, passwd), nil
}

// ResetPassword sets a fresh password unconditionally.
func (c *Client) ResetPassword(ctx context.Context, name string) (*plumbing.Result, error) {
	quoted, err := quoteIdentifier(name)
	if err != nil {
		return nil, err
	}
	passwd, err := plumbing.GeneratePassword(ctx)
	if err != nil {
		return nil, err
	}
	_, err = c.pool.Exec(ctx, "ALTER ROLE "+quoted+" PASSWORD "+quoteLiteral(passwd.Reveal()))
	if err != nil {
		return nil, err
	}
	return plumbing.NewResultValue(plumbing.StateSuccess, passwd), nil
}

// DropUser removes the role; missing is unchanged.
func (c *Client) DropUser(ctx context.Context, name string) (*plumbing.Result, error) {
	quoted, err := quoteIdentifier(name)
	if err != nil {
		return nil, err
	}
	if _, err := c.pool.Exec(ctx, "DROP ROLE "+quoted); err != nil {
		if pgErrCode(err) == codeUndefinedObject {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// EnableRole grants LOGIN.
func (c *Client) EnableRole(ctx context.Context, role Role) (*plumbing.Result, error) {
	return c.setLogin(ctx, role, true)
}

// DisableRole revokes LOGIN, locking the account out without dropping
// its objects.
func (c *Client) DisableRole(ctx context.Context, role Role) (*plumbing.Result, error) {
	return c.setLogin(ctx, role, false)
}

func (c *Client) setLogin(ctx context.Context, role Role, login bool) (*plumbing.Result, error) {
	if role.CanLogin == login {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	quoted, err := quoteIdentifier(role.Name)
	if err != nil {
		return nil, err
	}
	clause := " NOLOGIN"
	if login {
		clause = " LOGIN"
	}
	if _, err := c.pool.Exec(ctx, "ALTER ROLE "+quoted+clause); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// GrantRole makes the user a member of the role.
func (c *Client) GrantRole(ctx context.Context, username string, role Role) (*plumbing.Result, error) {
	current, err := c.GetUserRoles(ctx, username)
	if err != nil {
		return nil, err
	}
	for _, r := range current {
		if r.Name == role.Name {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
	}
	quotedRole, err := quoteIdentifier(role.Name)
	if err != nil {
		return nil, err
	}
	quotedUser, err := quoteIdentifier(username)
	if err != nil {
		return nil, err
	}
	if _, err := c.pool.Exec(ctx, "GRANT "+quotedRole+" TO "+quotedUser); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// RevokeRole removes the user's membership of the role.
func (c *Client) RevokeRole(ctx context.Context, username string, role Role) (*plumbing.Result, error) {
	current, err := c.GetUserRoles(ctx, username)
	if err != nil {
		return nil, err
	}
	member := false
	for _, r := range current {
		if r.Name == role.Name {
			member = true
			break
		}
	}
	if !member {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	quotedRole, err := quoteIdentifier(role.Name)
	if err != nil {
		return nil, err
	}
	quotedUser, err := quoteIdentifier(username)
	if err != nil {
		return nil, err
	}
	if _, err := c.pool.Exec(ctx, "REVOKE "+quotedRole+" FROM "+quotedUser); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// CreateDatabase creates a database owned by the role. This statement
// cannot run inside a transaction; the pool connection autocommits.
func (c *Client) CreateDatabase(ctx context.Context, name string, owner Role) (*plumbing.Result, error) {
	quotedName, err := quoteIdentifier(name)
	if err != nil {
		return nil, err
	}
	quotedOwner, err := quoteIdentifier(owner.Name)
	if err != nil {
		return nil, err
	}
	_, err = c.pool.Exec(ctx, "CREATE DATABASE "+quotedName+" OWNER "+quotedOwner)
	if err != nil {
		if pgErrCode(err) == codeDuplicateDatabase {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateCreated), nil
}

// DropDatabase drops the database; missing is unchanged.
func (c *Client) DropDatabase(ctx context.Context, name string) (*plumbing.Result, error) {
	quoted, err := quoteIdentifier(name)
	if err != nil {
		return nil, err
	}
	if _, err := c.pool.Exec(ctx, "DROP DATABASE "+quoted); err != nil {
		if pgErrCode(err) == codeInvalidCatalogName {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}
