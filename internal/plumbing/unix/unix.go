// Package unix manages local users and groups through the system
// account tools. Every operation is idempotent and reports what it did
// through a Result. Account mutation must happen on the user-database
// host, where NIS maps are generated.
package unix

import (
	"context"
	"fmt"
	"os/user"
	"strconv"

	"github.com/srcf/warden/internal/plumbing"
)

// NologinShells are the shells that mark an account as disabled.
var NologinShells = []string{"/bin/false", "/usr/sbin/nologin"}

// EnabledShell is the shell given to active accounts.
const EnabledShell = "/bin/bash"

// User is a local account as reported by the passwd map.
type User struct {
	Name     string
	UID      int
	GID      int
	HomeDir  string
	RealName string
}

// Group is a local group and its member names.
type Group struct {
	Name    string
	GID     int
	Members []string
}

// GetUser looks up an account by name.
func GetUser(name string) (*User, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, err
	}
	uid, _ := strconv.Atoi(u.Uid)
	gid, _ := strconv.Atoi(u.Gid)
	return &User{Name: u.Username, UID: uid, GID: gid, HomeDir: u.HomeDir, RealName: u.Name}, nil
}

// GetGroup looks up a group by name.
func GetGroup(ctx context.Context, name string) (*Group, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return nil, err
	}
	gid, _ := strconv.Atoi(g.Gid)
	members, err := groupMembers(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Group{Name: g.Name, GID: gid, Members: members}, nil
}

// groupMembers reads the member list via getent, which sees NIS as well
// as local files.
func groupMembers(ctx context.Context, name string) ([]string, error) {
	out, err := plumbing.Command(ctx, "getent", "group", name)
	if err != nil {
		return nil, err
	}
	fields := splitColons(string(out))
	if len(fields) < 4 {
		return nil, nil
	}
	return splitCommas(fields[3]), nil
}

// UserOptions carries the desired attributes for EnsureUser. Zero UID or
// GID means "any".
type UserOptions struct {
	UID      int
	GID      int
	System   bool
	Active   bool
	HomeDir  string
	RealName string
}

// EnsureUser creates the account if absent, or reconciles shell, default
// group, home directory and real name if present. A pre-existing account
// with a different uid is an error, not something to fix silently.
func EnsureUser(ctx context.Context, name string, opts UserOptions) (*plumbing.Result, error) {
	if err := plumbing.RequireHost(plumbing.HostUser); err != nil {
		return nil, err
	}
	existing, err := GetUser(name)
	if err == nil {
		if opts.UID != 0 && existing.UID != opts.UID {
			return nil, fmt.Errorf("user %s has uid %d, expected %d", name, existing.UID, opts.UID)
		}
		res := &plumbing.Result{Caller: "unix.EnsureUser"}
		part, err := setShell(ctx, existing, opts.Active)
		if err != nil {
			return nil, err
		}
		res.Extend(part)
		if opts.GID != 0 && existing.GID != opts.GID {
			part, err = SetDefaultGroup(ctx, name, opts.GID)
			if err != nil {
				return nil, err
			}
			res.Extend(part)
		}
		if opts.HomeDir != "" && existing.HomeDir != opts.HomeDir {
			part, err = SetHomeDir(ctx, name, opts.HomeDir)
			if err != nil {
				return nil, err
			}
			res.Extend(part)
		}
		if opts.RealName != "" && existing.RealName != opts.RealName {
			part, err = SetRealName(ctx, name, opts.RealName)
			if err != nil {
				return nil, err
			}
			res.Extend(part)
		}
		return res, nil
	}

	args := []string{"adduser", "--no-create-home", "--disabled-password"}
	if opts.System {
		args = append(args, "--system")
	}
	if opts.UID != 0 {
		args = append(args, "--uid", strconv.Itoa(opts.UID))
	}
	if opts.GID != 0 {
		args = append(args, "--gid", strconv.Itoa(opts.GID))
	}
	if opts.HomeDir != "" {
		args = append(args, "--home", opts.HomeDir)
	}
	if opts.RealName != "" {
		args = append(args, "--gecos", opts.RealName)
	}
	if !opts.Active {
		args = append(args, "--shell", NologinShells[0])
	}
	args = append(args, name)
	if _, err := plumbing.Command(ctx, args...); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateCreated), nil
}

// EnsureGroup creates the group if absent; an existing group with a
// different gid is an error.
func EnsureGroup(ctx context.Context, name string, gid int, system bool) (*plumbing.Result, error) {
	if err := plumbing.RequireHost(plumbing.HostUser); err != nil {
		return nil, err
	}
	if existing, err := user.LookupGroup(name); err == nil {
		if gid != 0 {
			if current, _ := strconv.Atoi(existing.Gid); current != gid {
				return nil, fmt.Errorf("group %s has gid %s, expected %d", name, existing.Gid, gid)
			}
		}
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	args := []string{"addgroup"}
	if system {
		args = append(args, "--system")
	}
	if gid != 0 {
		args = append(args, "--gid", strconv.Itoa(gid))
	}
	args = append(args, name)
	if _, err := plumbing.Command(ctx, args...); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateCreated), nil
}

// AddToGroup adds a user to a group's member list.
func AddToGroup(ctx context.Context, username, group string) (*plumbing.Result, error) {
	g, err := GetGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	for _, member := range g.Members {
		if member == username {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
	}
	if _, err := plumbing.Command(ctx, "adduser", username, group); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// RemoveFromGroup removes a user from a group's member list.
func RemoveFromGroup(ctx context.Context, username, group string) (*plumbing.Result, error) {
	g, err := GetGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	present := false
	for _, member := range g.Members {
		if member == username {
			present = true
			break
		}
	}
	if !present {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if _, err := plumbing.Command(ctx, "deluser", username, group); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// RenameUser changes an account's login name, keeping uid and home.
func RenameUser(ctx context.Context, oldName, newName string) (*plumbing.Result, error) {
	if oldName == newName {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if _, err := plumbing.Command(ctx, "usermod", "--login", newName, oldName); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// RenameGroup changes a group's name, keeping its gid.
func RenameGroup(ctx context.Context, oldName, newName string) (*plumbing.Result, error) {
	if oldName == newName {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if _, err := plumbing.Command(ctx, "groupmod", "--new-name", newName, oldName); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// SetRealName updates the GECOS full-name field.
func SetRealName(ctx context.Context, name, realName string) (*plumbing.Result, error) {
	u, err := GetUser(name)
	if err != nil {
		return nil, err
	}
	if u.RealName == realName {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if _, err := plumbing.Command(ctx, "chfn", "--full-name", realName, name); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// SetHomeDir points the account at a new home directory (files are not
// moved).
func SetHomeDir(ctx context.Context, name, homeDir string) (*plumbing.Result, error) {
	u, err := GetUser(name)
	if err != nil {
		return nil, err
	}
	if u.HomeDir == homeDir {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if _, err := plumbing.Command(ctx, "usermod", "--home", homeDir, name); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// SetDefaultGroup sets the account's primary group.
func SetDefaultGroup(ctx context.Context, name string, gid int) (*plumbing.Result, error) {
	u, err := GetUser(name)
	if err != nil {
		return nil, err
	}
	if u.GID == gid {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if _, err := plumbing.Command(ctx, "usermod", "--gid", strconv.Itoa(gid), name); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// EnableUser restores the login shell.
func EnableUser(ctx context.Context, name string) (*plumbing.Result, error) {
	u, err := GetUser(name)
	if err != nil {
		return nil, err
	}
	return setShell(ctx, u, true)
}

// DisableUser sets a no-login shell, locking the account out.
func DisableUser(ctx context.Context, name string) (*plumbing.Result, error) {
	u, err := GetUser(name)
	if err != nil {
		return nil, err
	}
	return setShell(ctx, u, false)
}

func setShell(ctx context.Context, u *User, active bool) (*plumbing.Result, error) {
	shell, err := currentShell(ctx, u.Name)
	if err != nil {
		return nil, err
	}
	disabled := false
	for _, nologin := range NologinShells {
		if shell == nologin {
			disabled = true
			break
		}
	}
	if active == !disabled {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	target := NologinShells[0]
	if active {
		target = EnabledShell
	}
	if _, err := plumbing.Command(ctx, "chsh", "--shell", target, u.Name); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

func currentShell(ctx context.Context, name string) (string, error) {
	out, err := plumbing.Command(ctx, "getent", "passwd", name)
	if err != nil {
		return "", err
	}
	fields := splitColons(string(out))
	if len(fields) < 7 {
		return "", fmt.Errorf("malformed passwd entry for %s", name)
	}
	return fields[6], nil
}

// ResetPassword sets a freshly generated password via chpasswd.
func ResetPassword(ctx context.Context, name string) (*plumbing.Result, error) {
	passwd, err := plumbing.GeneratePassword(ctx)
	if err != nil {
		return nil, err
	}
	record := passwd.Wrap(name + ":%s")
	if _, err := plumbing.CommandInput(ctx, record.Reveal()+"\n", "chpasswd"); err != nil {
		return nil, err
	}
	return plumbing.NewResultValue(plumbing.StateSuccess, passwd), nil
}
