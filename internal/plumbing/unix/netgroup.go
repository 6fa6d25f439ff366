package unix

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/srcf/warden/internal/plumbing"
)

// NetgroupFile is the NIS netgroup source, edited in place.
var NetgroupFile = "/etc/netgroup"

// netgroupEntry is the triple form used for a plain user entry.
func netgroupEntry(username string) string {
	return "(," + username + ",)"
}

// editNetgroup rewrites the lines of a netgroup file, adding or removing
// a user entry on the line for the given group. Returns the new lines
// and whether anything changed; a missing group line is an error for
// adds and a no-op for removals.
func editNetgroup(lines []string, group, username string, add bool) ([]string, bool, error) {
	entry := netgroupEntry(username)
	found := false
	changed := false
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != group {
			out = append(out, line)
			continue
		}
		found = true
		present := false
		members := make([]string, 0, len(fields)-1)
		for _, field := range fields[1:] {
			if field == entry {
				present = true
				if !add {
					changed = true
					continue
				}
			}
			members = append(members, field)
		}
		if add && !present {
			members = append(members, entry)
			changed = true
		}
		out = append(out, strings.Join(append([]string{group}, members...), " "))
	}
	if !found && add {
		return nil, false, fmt.Errorf("netgroup %s not found", group)
	}
	return out, changed, nil
}

// AddToNetgroup adds a `(,user,)` entry to the group's line.
func AddToNetgroup(username, group string) (*plumbing.Result, error) {
	return updateNetgroup(username, group, true)
}

// RemoveFromNetgroup removes the user's entry from the group's line.
func RemoveFromNetgroup(username, group string) (*plumbing.Result, error) {
	return updateNetgroup(username, group, false)
}

func updateNetgroup(username, group string, add bool) (*plumbing.Result, error) {
	if err := plumbing.RequireHost(plumbing.HostUser); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(NetgroupFile)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	out, changed, err := editNetgroup(lines, group, username, add)
	if err != nil {
		return nil, err
	}
	if !changed {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if err := ReplaceFile(NetgroupFile, []byte(strings.Join(out, "\n")+"\n")); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// ReplaceFile writes content to a temp file in the target's directory
// and renames it into place, so a crash mid-write cannot leave a
// truncated system file.
func ReplaceFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if info, err := os.Stat(path); err == nil {
		_ = tmp.Chmod(info.Mode().Perm())
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
