// Package tasks composes plumbing primitives into the workflows jobs
// execute: account lifecycle, society administration, SQL accounts and
// databases, mailing lists and custom domains.
package tasks

import (
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/srcf/warden/internal/interfaces"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/plumbing/mysql"
	"github.com/srcf/warden/internal/plumbing/pgsql"
)

// Deps carries the shared services every task needs. The runner builds
// one per process and threads it through each job.
type Deps struct {
	Store    interfaces.Store
	Notifier interfaces.Notifier
	MySQL    *mysql.Client
	PgSQL    *pgsql.Client
	Logger   arbor.ILogger

	// NISWait is how long to sleep after a NIS rebuild when a freshly
	// created uid or gid is about to be used over NFS.
	NISWait time.Duration
}

// sqlUserName is the SQL account name of an owner: hyphens are not
// valid in either dialect's unquoted identifiers, so they become
// underscores.
func sqlUserName(owner plumbing.Owner) string {
	return strings.ReplaceAll(owner.OwnerName(), "-", "_")
}

// databaseName is the name of an owner's database, optionally suffixed
// ("<owner>" or "<owner>/<suffix>").
func databaseName(owner plumbing.Owner, suffix string) string {
	name := sqlUserName(owner)
	if suffix != "" {
		name += "/" + suffix
	}
	return name
}

// wildcardDatabases is the grant pattern covering all of an owner's
// suffixed databases.
func wildcardDatabases(owner plumbing.Owner) string {
	return sqlUserName(owner) + "/%"
}

// diffRoles computes the minimal grant and revoke sets to turn current
// into wanted. Both outputs are sorted for stable command ordering.
func diffRoles(current, wanted []string) (grant, revoke []string) {
	have := make(map[string]bool, len(current))
	for _, name := range current {
		have[name] = true
	}
	want := make(map[string]bool, len(wanted))
	for _, name := range wanted {
		want[name] = true
		if !have[name] {
			grant = append(grant, name)
		}
	}
	for _, name := range current {
		if !want[name] {
			revoke = append(revoke, name)
		}
	}
	sort.Strings(grant)
	sort.Strings(revoke)
	return grant, revoke
}

// resultPassword digs a generated password out of a result tree.
func resultPassword(res *plumbing.Result) (plumbing.Password, bool) {
	if res == nil {
		return plumbing.Password{}, false
	}
	if passwd, ok := res.Value.(plumbing.Password); ok && !passwd.Empty() {
		return passwd, true
	}
	for _, part := range res.Parts {
		if passwd, ok := resultPassword(part); ok {
			return passwd, true
		}
	}
	return plumbing.Password{}, false
}
