// Package mysql manages user accounts, grants and databases on the
// shared MySQL server. All primitives are idempotent: already-exists and
// doesn't-exist server errors collapse to an unchanged Result.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/srcf/warden/internal/plumbing"
)

// Users are created at the wildcard host; access control is by password,
// not origin.
const Host = "%"

// Server error codes translated to unchanged.
const (
	errCannotUser       = 1396 // CREATE/DROP USER on an existing/missing user
	errDBCreateExists   = 1007
	errDBDropExists     = 1008
	errNonexistingGrant = 1141
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_/%]+$`)

// quoteIdentifier wraps a user-controlled identifier in backticks. The
// character set is restricted outright; a backtick is rejected, never
// escaped.
func quoteIdentifier(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("invalid MySQL identifier %q", name)
	}
	return "`" + name + "`", nil
}

// escapeLike escapes a database name for use in a LIKE pattern against
// the grant tables, where a literal % (wildcard grant) must match a
// single stored character.
func escapeLike(name string) string {
	return strings.ReplaceAll(name, "%", "\\_")
}

// Client wraps an administrative connection to the MySQL server.
type Client struct {
	db *sql.DB
}

// NewClient wraps an existing handle, typically opened through Connect.
func NewClient(db *sql.DB) *Client {
	return &Client{db: db}
}

// Connect opens the administrative connection using credentials from a
// .my.cnf-style defaults file.
func Connect(defaultsFile, host, database string) (*Client, error) {
	user, password, err := ParseDefaultsFile(defaultsFile)
	if err != nil {
		return nil, err
	}
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = host
	cfg.DBName = database
	// Client-side interpolation: statements like CREATE USER take string
	// literals, not server-side placeholders.
	cfg.InterpolateParams = true
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// ParseDefaultsFile extracts user and password from the [client] section
// of a MySQL defaults file.
func ParseDefaultsFile(path string) (user, password string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	section := ""
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			continue
		}
		if section != "client" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch key {
		case "user":
			user = value
		case "password":
			password = value
		}
	}
	if password == "" {
		return "", "", fmt.Errorf("no client password in %s", path)
	}
	return user, password, nil
}

// Close releases the underlying handle.
func (c *Client) Close() error {
	return c.db.Close()
}

func mysqlErrNumber(err error) int {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return int(myErr.Number)
	}
	return 0
}

// GetUsers returns which of the given accounts exist at the wildcard
// host.
func (c *Client) GetUsers(ctx context.Context, names ...string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		args = append(args, name)
	}
	args = append(args, Host)
	rows, err := c.db.QueryContext(ctx,
		"SELECT User FROM mysql.user WHERE User IN ("+placeholders+") AND Host = ?", args...)
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

// GetUserDatabases lists the databases a user holds grants on.
func (c *Client) GetUserDatabases(ctx context.Context, user string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT Db FROM mysql.db WHERE User = ? AND Host = ?", user, Host)
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
		dbs = append(dbs, strings.ReplaceAll(db, "\\_", "_"))
	}
	return dbs, rows.Err()
}

// GetDatabaseUsers lists the users holding grants on a database.
func (c *Client) GetDatabaseUsers(ctx context.Context, database string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT User FROM mysql.db WHERE Db = ? AND Host = ?", escapeLike(database), Host)
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

// GetMatchedDatabases lists existing databases matching a LIKE pattern.
func (c *Client) GetMatchedDatabases(ctx context.Context, pattern string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SHOW DATABASES LIKE ?", pattern)
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

// EnsureUser creates the account with a fresh password if absent. The
// password is only present on the Result when a user was actually
// created; an existing account is left alone.
func (c *Client) EnsureUser(ctx context.Context, name string) (*plumbing.Result, error) {
	existing, err := c.GetUsers(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	passwd, err := plumbing.GeneratePassword(ctx)
	if err != nil {
		return nil, err
	}
	_, err = c.db.ExecContext(ctx, "CREATE USER ?@? IDENTIFIED BY ?",
		name, Host, passwd.Reveal())
	if err != nil {
		if mysqlErrNumber(err) == errCannotUser {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return nil, err
	}
	return plumbing.NewResultValue(plumbing.StateCreated, passwd), nil
}

// ResetPassword sets a fresh password unconditionally.
func (c *Client) ResetPassword(ctx context.Context, name string) (*plumbing.Result, error) {
	passwd, err := plumbing.GeneratePassword(ctx)
	if err != nil {
		return nil, err
	}
	_, err = c.db.ExecContext(ctx, "ALTER USER ?@? IDENTIFIED BY ?",
		name, Host, passwd.Reveal())
	if err != nil {
		return nil, err
	}
	return plumbing.NewResultValue(plumbing.StateSuccess, passwd), nil
}

// DropUser removes the account; a missing account is unchanged.
func (c *Client) DropUser(ctx context.Context, name string) (*plumbing.Result, error) {
	_, err := c.db.ExecContext(ctx, "DROP USER ?@?", name, Host)
	if err != nil {
		if mysqlErrNumber(err) == errCannotUser {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// CreateDatabase creates the named database; existing is unchanged.
func (c *Client) CreateDatabase(ctx context.Context, name string) (*plumbing.Result, error) {
	quoted, err := quoteIdentifier(name)
	if err != nil {
		return nil, err
	}
	if _, err := c.db.ExecContext(ctx, "CREATE DATABASE "+quoted); err != nil {
		if mysqlErrNumber(err) == errDBCreateExists {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateCreated), nil
}

// DropDatabase drops the named database; missing is unchanged.
func (c *Client) DropDatabase(ctx context.Context, name string) (*plumbing.Result, error) {
	quoted, err := quoteIdentifier(name)
	if err != nil {
		return nil, err
	}
	if _, err := c.db.ExecContext(ctx, "DROP DATABASE "+quoted); err != nil {
		if mysqlErrNumber(err) == errDBDropExists {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// GrantDatabase gives the user full rights on a database (or wildcard
// pattern like "test/%").
func (c *Client) GrantDatabase(ctx context.Context, user, database string) (*plumbing.Result, error) {
	current, err := c.GetUserDatabases(ctx, user)
	if err != nil {
		return nil, err
	}
	plain := strings.ReplaceAll(database, "%", "_")
	for _, db := range current {
		if strings.ReplaceAll(db, "%", "_") == plain {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
	}
	quoted, err := quoteIdentifier(database)
	if err != nil {
		return nil, err
	}
	_, err = c.db.ExecContext(ctx, "GRANT ALL ON "+quoted+".* TO ?@?", user, Host)
	if err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// RevokeDatabase removes the user's rights on a database; a grant that
// was never made is unchanged.
func (c *Client) RevokeDatabase(ctx context.Context, user, database string) (*plumbing.Result, error) {
	quoted, err := quoteIdentifier(database)
	if err != nil {
		return nil, err
	}
	_, err = c.db.ExecContext(ctx, "REVOKE ALL ON "+quoted+".* FROM ?@?", user, Host)
	if err != nil {
		if mysqlErrNumber(err) == errNonexistingGrant {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}
