package unix

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/srcf/warden/internal/plumbing"
)

// Mkdir creates a directory with the given mode and owner, fixing mode
// and ownership if it already exists.
func Mkdir(path string, mode os.FileMode, uid, gid int) (*plumbing.Result, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("%s exists and is not a directory", path)
		}
		changed := false
		if info.Mode().Perm() != mode.Perm() || info.Mode()&os.ModeSetgid != mode&os.ModeSetgid {
			if err := os.Chmod(path, mode); err != nil {
				return nil, err
			}
			changed = true
		}
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			if int(stat.Uid) != uid || int(stat.Gid) != gid {
				if err := NFSAwareChown(path, uid, gid); err != nil {
					return nil, err
				}
				changed = true
			}
		}
		if changed {
			return plumbing.NewResult(plumbing.StateSuccess), nil
		}
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	case os.IsNotExist(err):
		if err := os.Mkdir(path, mode); err != nil {
			return nil, err
		}
		// Mkdir is subject to umask; re-assert the mode.
		if err := os.Chmod(path, mode); err != nil {
			return nil, err
		}
		if err := NFSAwareChown(path, uid, gid); err != nil {
			return nil, err
		}
		return plumbing.NewResult(plumbing.StateCreated), nil
	default:
		return nil, err
	}
}

// CreateHome provisions a home directory: setgid, group-writable, and
// world-readable variants get mode 2775 instead of 2770.
func CreateHome(path string, uid, gid int, worldRead bool) (*plumbing.Result, error) {
	mode := os.FileMode(0770) | os.ModeSetgid
	if worldRead {
		mode = os.FileMode(0775) | os.ModeSetgid
	}
	res, err := Mkdir(path, mode, uid, gid)
	if err != nil {
		return nil, err
	}
	out := &plumbing.Result{Caller: "unix.CreateHome"}
	out.Extend(res)
	return out, nil
}

// Symlink creates link -> target if nothing sits at the link path. An
// existing symlink to the same target is unchanged; any other file there
// is left alone.
func Symlink(target, link string) (*plumbing.Result, error) {
	existing, err := os.Lstat(link)
	if err == nil {
		if existing.Mode()&os.ModeSymlink != 0 {
			if dest, err := os.Readlink(link); err == nil && dest == target {
				return plumbing.NewResult(plumbing.StateUnchanged), nil
			}
		}
		// Something else lives here; not ours to replace.
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	if err := os.Symlink(target, link); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateCreated), nil
}

// CopytreeChownChmod copies a tree (normally /etc/skel) into an existing
// destination directory, overriding ownership and copying user mode bits
// onto the group bits so the account's group shares access.
func CopytreeChownChmod(src, dst string, uid, gid int) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcName := filepath.Join(src, entry.Name())
		dstName := filepath.Join(dst, entry.Name())
		info, err := os.Lstat(srcName)
		if err != nil {
			return err
		}
		isLink := info.Mode()&os.ModeSymlink != 0
		switch {
		case isLink:
			linkTo, err := os.Readlink(srcName)
			if err != nil {
				return err
			}
			if err := os.Symlink(linkTo, dstName); err != nil {
				return err
			}
		case info.IsDir():
			if err := os.Mkdir(dstName, 0700); err != nil {
				return err
			}
			if err := CopytreeChownChmod(srcName, dstName, uid, gid); err != nil {
				return err
			}
		default:
			if err := copyFile(srcName, dstName); err != nil {
				return err
			}
		}
		if err := os.Lchown(dstName, uid, gid); err != nil {
			return err
		}
		if !isLink {
			mode := info.Mode().Perm()
			// Copy user mode bits to group mode.
			mode = (mode & 0707) | ((mode & 0700) >> 3)
			if err := os.Chmod(dstName, mode); err != nil {
				return err
			}
			times := info.ModTime()
			if err := os.Chtimes(dstName, times, times); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// NFSAwareChown wraps chown with a diagnostic for EINVAL over NFSv4: the
// server may not yet know a freshly created uid/gid, and NetApp caches
// nonexistence aggressively. The error names the server so the operator
// can flush its caches rather than chase a phantom bug.
func NFSAwareChown(path string, uid, gid int) error {
	err := os.Chown(path, uid, gid)
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if pathErr, ok := err.(*os.PathError); ok {
		errno, _ = pathErr.Err.(syscall.Errno)
	}
	if errno != syscall.EINVAL {
		return err
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		return err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return err
	}
	devStr := fmt.Sprintf("%d:%d", major(uint64(stat.Dev)), minor(uint64(stat.Dev)))
	server, version, hostname := lookupNFSServer(devStr)
	if hostname == "" {
		return err
	}
	_ = server
	return fmt.Errorf("got EINVAL when attempting to chown(%s) on %s via NFS%s; "+
		"the user or group may be unknown to the NFS server. If this seems wrong, "+
		"it may have cached nonexistence: on a NetApp try 'nfs nsdb flush' on %s, "+
		"or wait an hour or two then retry", path, hostname, version, hostname)
}

func major(dev uint64) uint64 { return (dev >> 8) & 0xfff }
func minor(dev uint64) uint64 { return (dev & 0xff) | ((dev >> 12) & 0xfff00) }

// lookupNFSServer maps a device number onto the serving host via
// /proc/net/nfsfs.
func lookupNFSServer(devStr string) (server, version, hostname string) {
	volumes, err := os.Open("/proc/net/nfsfs/volumes")
	if err != nil {
		return "", "", ""
	}
	defer volumes.Close()
	scanner := bufio.NewScanner(volumes)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 3 && fields[3] == devStr {
			version, server = fields[0], fields[1]
			break
		}
	}
	if server == "" {
		return "", "", ""
	}
	servers, err := os.Open("/proc/net/nfsfs/servers")
	if err != nil {
		return server, version, ""
	}
	defer servers.Close()
	scanner = bufio.NewScanner(servers)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 4 && fields[1] == server {
			hostname = fields[4]
			break
		}
	}
	return server, version, hostname
}
