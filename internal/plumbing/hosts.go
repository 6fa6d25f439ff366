package plumbing

import (
	"fmt"
	"os"
	"strings"
)

// Host roles. Certain primitives only make sense on the machine that
// owns the relevant subsystem: the user database (NIS master), the
// mailing-list host, the web server. The defaults match the production
// fleet and can be overridden from configuration at startup.
var (
	HostUser = "pip"
	HostList = "pip"
	HostWeb  = "sinkhole"
)

// SetHosts overrides the role hostnames from configuration. Empty values
// leave the default in place.
func SetHosts(user, list, web string) {
	if user != "" {
		HostUser = user
	}
	if list != "" {
		HostList = list
	}
	if web != "" {
		HostWeb = web
	}
}

// SetHostname fixes the local hostname instead of asking the platform,
// for containers whose kernel hostname is not the fleet name. An empty
// value leaves detection alone.
func SetHostname(name string) {
	if name != "" {
		hostname = func() string { return name }
	}
}

// hostname is swappable in tests.
var hostname = func() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	// Compare on the short name; the fleet uses unqualified hostnames.
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		name = name[:idx]
	}
	return name
}

// RequireHost refuses to proceed unless the current machine is one of
// the given role hosts.
func RequireHost(hosts ...string) error {
	current := hostname()
	for _, h := range hosts {
		if current == h {
			return nil
		}
	}
	return fmt.Errorf("must be run on %s (this is %s)", strings.Join(hosts, " or "), current)
}
