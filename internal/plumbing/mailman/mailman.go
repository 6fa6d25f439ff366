// Package mailman drives the list manager on the list host through its
// command-line helpers.
package mailman

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/srcf/warden/internal/plumbing"
)

// ListsDir is where the list manager keeps per-list state; a directory
// here means the list exists.
var ListsDir = "/var/lib/mailman/lists"

// Final name segments reserved by the list manager for its own aliases.
var reservedSuffixes = map[string]bool{
	"admin":       true,
	"bounces":     true,
	"confirm":     true,
	"join":        true,
	"leave":       true,
	"owner":       true,
	"request":     true,
	"subscribe":   true,
	"unsubscribe": true,
}

var listNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidateListName enforces the naming policy: lowercase alphanumerics
// and hyphens, with the final hyphen-separated segment not colliding
// with a reserved list-manager alias.
func ValidateListName(name string) error {
	if !listNamePattern.MatchString(name) {
		return fmt.Errorf("invalid list name %s", name)
	}
	segments := strings.Split(name, "-")
	if reservedSuffixes[segments[len(segments)-1]] {
		return fmt.Errorf("invalid list suffix %s", name)
	}
	return nil
}

// ListExists checks for the list's state directory.
func ListExists(name string) bool {
	info, err := os.Stat(filepath.Join(ListsDir, name))
	return err == nil && info.IsDir()
}

// OwnedLists returns every list belonging to the account: the bare name
// plus any "<name>-<suffix>" list.
func OwnedLists(owner string) ([]string, error) {
	entries, err := os.ReadDir(ListsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var lists []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == owner || strings.HasPrefix(name, owner+"-") {
			lists = append(lists, name)
		}
	}
	return lists, nil
}

// EnsureList creates the list with a fresh admin password, or syncs the
// owner address if it already exists. The password is on the Result only
// when a list was created.
func EnsureList(ctx context.Context, name, ownerEmail string) (*plumbing.Result, error) {
	if err := plumbing.RequireHost(plumbing.HostList); err != nil {
		return nil, err
	}
	if err := ValidateListName(name); err != nil {
		return nil, err
	}
	if ListExists(name) {
		res := &plumbing.Result{Caller: "mailman.EnsureList"}
		part, err := SetOwner(ctx, name, ownerEmail)
		if err != nil {
			return nil, err
		}
		res.Extend(part)
		return res, nil
	}
	passwd, err := plumbing.GeneratePassword(ctx)
	if err != nil {
		return nil, err
	}
	// newlist reads the admin password from stdin.
	_, err = plumbing.CommandInput(ctx, passwd.Reveal()+"\n",
		"newlist", "--quiet", name, ownerEmail)
	if err != nil {
		return nil, err
	}
	return plumbing.NewResultValue(plumbing.StateCreated, passwd), nil
}

// SetOwner overwrites the list's owner set by injecting configuration.
func SetOwner(ctx context.Context, name string, owners ...string) (*plumbing.Result, error) {
	if err := plumbing.RequireHost(plumbing.HostList); err != nil {
		return nil, err
	}
	if err := ValidateListName(name); err != nil {
		return nil, err
	}
	quoted := make([]string, len(owners))
	for i, owner := range owners {
		quoted[i] = "'" + owner + "'"
	}
	config := "owner = [" + strings.Join(quoted, ", ") + "]\n"
	_, err := plumbing.CommandInput(ctx, config,
		"config_list", "--inputfile", "/dev/stdin", name)
	if err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// ResetPassword regenerates the list admin password, parsed from the
// helper's output.
func ResetPassword(ctx context.Context, name string) (*plumbing.Result, error) {
	if err := plumbing.RequireHost(plumbing.HostList); err != nil {
		return nil, err
	}
	if err := ValidateListName(name); err != nil {
		return nil, err
	}
	out, err := plumbing.Command(ctx, "change_pw", "--quiet", "--listname", name)
	if err != nil {
		return nil, err
	}
	passwd, err := parseNewPassword(string(out), name)
	if err != nil {
		return nil, err
	}
	return plumbing.NewResultValue(plumbing.StateSuccess, passwd), nil
}

// parseNewPassword extracts the password from change_pw output.
func parseNewPassword(output, name string) (plumbing.Password, error) {
	prefix := "New " + name + " password: "
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, prefix) {
			return plumbing.NewPassword(strings.TrimSpace(line[len(prefix):])), nil
		}
	}
	return plumbing.Password{}, fmt.Errorf("no password in change_pw output for %s", name)
}

// RemoveList deletes the list, and its archives too when requested. A
// list that does not exist is unchanged.
func RemoveList(ctx context.Context, name string, removeArchive bool) (*plumbing.Result, error) {
	if err := plumbing.RequireHost(plumbing.HostList); err != nil {
		return nil, err
	}
	if err := ValidateListName(name); err != nil {
		return nil, err
	}
	if !ListExists(name) {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	args := []string{"rmlist"}
	if removeArchive {
		args = append(args, "--archives")
	}
	args = append(args, name)
	if _, err := plumbing.Command(ctx, args...); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}
