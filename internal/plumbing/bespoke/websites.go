package bespoke

import (
	"os"
	"strings"

	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/plumbing/unix"
)

// WebsitesFile lists enabled hosted sites, one "<username>:<status>"
// line each, consumed by the web server config generator.
var WebsitesFile = "/societies/srcf-admin/websites"

// editWebsites rewrites the website lines for a user: status "" removes
// the entry, anything else appends or updates it.
func editWebsites(lines []string, username, status string) ([]string, bool) {
	prefix := username + ":"
	found := false
	changed := false
	out := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		if !strings.HasPrefix(line, prefix) {
			out = append(out, line)
			continue
		}
		found = true
		if status == "" {
			changed = true
			continue
		}
		if line != prefix+status {
			line = prefix + status
			changed = true
		}
		out = append(out, line)
	}
	if !found && status != "" {
		out = append(out, prefix+status)
		changed = true
	}
	return out, changed
}

// EnableWebsite records the account's site with the given status
// (normally "subdomain"), updating any existing entry.
func EnableWebsite(username, status string) (*plumbing.Result, error) {
	return updateWebsites(username, status)
}

// DisableWebsite removes the account's entry.
func DisableWebsite(username string) (*plumbing.Result, error) {
	return updateWebsites(username, "")
}

func updateWebsites(username, status string) (*plumbing.Result, error) {
	data, err := os.ReadFile(WebsitesFile)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	var lines []string
	if len(data) > 0 {
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	}
	out, changed := editWebsites(lines, username, status)
	if !changed {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	content := ""
	if len(out) > 0 {
		content = strings.Join(out, "\n") + "\n"
	}
	if err := unix.ReplaceFile(WebsitesFile, []byte(content)); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}
