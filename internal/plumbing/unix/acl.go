package unix

import (
	"context"
	"strings"

	"github.com/srcf/warden/internal/plumbing"
)

// NFSv4 ACE permission aliases, as understood by nfs4_setfacl.
var aclAliases = map[rune]string{
	'R': "rntcy",
	'W': "watTNcCyD",
	'X': "xtcy",
}

// expandACLAliases rewrites R/W/X shorthand into the underlying
// permission letters, preserving order of first appearance and dropping
// duplicates.
func expandACLAliases(perms string) string {
	var sb strings.Builder
	seen := make(map[rune]bool)
	add := func(r rune) {
		if !seen[r] {
			seen[r] = true
			sb.WriteRune(r)
		}
	}
	for _, r := range perms {
		if expansion, ok := aclAliases[r]; ok {
			for _, e := range expansion {
				add(e)
			}
		} else {
			add(r)
		}
	}
	return sb.String()
}

// parseNFSACL extracts the effective permissions for a principal from
// nfs4_getfacl output: the union of allow ACEs minus the union of deny
// ACEs.
func parseNFSACL(output, principal string) string {
	allow := make(map[rune]bool)
	deny := make(map[rune]bool)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, ":", 4)
		if len(fields) != 4 || fields[2] != principal {
			continue
		}
		perms := expandACLAliases(fields[3])
		switch fields[0] {
		case "A":
			for _, r := range perms {
				allow[r] = true
			}
		case "D":
			for _, r := range perms {
				deny[r] = true
			}
		}
	}
	var sb strings.Builder
	for _, r := range "rwaxdDtTnNcCoyW" {
		if allow[r] && !deny[r] {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// GetNFSACL returns the effective permission string a principal holds on
// a path.
func GetNFSACL(ctx context.Context, path, principal string) (string, error) {
	out, err := plumbing.Command(ctx, "nfs4_getfacl", path)
	if err != nil {
		return "", err
	}
	return parseNFSACL(string(out), principal), nil
}

// SetNFSACL grants the principal the requested permissions by adding an
// allow ACE, unless every requested permission is already held.
func SetNFSACL(ctx context.Context, path, principal, perms string) (*plumbing.Result, error) {
	current, err := GetNFSACL(ctx, path, principal)
	if err != nil {
		return nil, err
	}
	wanted := expandACLAliases(perms)
	missing := false
	for _, r := range wanted {
		if !strings.ContainsRune(current, r) {
			missing = true
			break
		}
	}
	if !missing {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	ace := "A::" + principal + ":" + perms
	if _, err := plumbing.Command(ctx, "nfs4_setfacl", "-a", ace, path); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}
