package bespoke

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/plumbing/unix"
)

// SkelDir is copied into every new home directory.
var SkelDir = "/etc/skel"

// EximPrincipal is granted read access to home directories so the MTA
// can read .forward files.
const EximPrincipal = "Debian-exim@srcf.net"

// PopulateHomeDir fills an empty new home from the skeleton. A non-empty
// home is left alone to avoid clobbering existing files.
func PopulateHomeDir(owner plumbing.Owner, uid, gid int) (*plumbing.Result, error) {
	target := plumbing.OwnerHome(owner, false)
	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if err := unix.CopytreeChownChmod(SkelDir, target, uid, gid); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// CreatePublicHTML creates the web root in the public mirror and links
// it from the private home.
func CreatePublicHTML(owner plumbing.Owner, uid, gid int) (*plumbing.Result, error) {
	link := filepath.Join(plumbing.OwnerHome(owner, false), "public_html")
	target := filepath.Join(plumbing.OwnerHome(owner, true), "public_html")
	res := &plumbing.Result{Caller: "bespoke.CreatePublicHTML"}
	part, err := unix.Mkdir(target, os.FileMode(0775)|os.ModeSetgid, uid, gid)
	if err != nil {
		return nil, err
	}
	res.Extend(part)
	part, err = unix.Symlink(target, link)
	if err != nil {
		return nil, err
	}
	res.Extend(part)
	return res, nil
}

// LinkSocHomeDir maintains the ~/<society> convenience symlink in an
// admin's home.
func LinkSocHomeDir(memberHome, society string) (*plumbing.Result, error) {
	link := filepath.Join(memberHome, society)
	target := filepath.Join("/societies", society)
	return unix.Symlink(target, link)
}

// UnlinkSocHomeDir removes the symlink when an admin leaves; anything
// that is not our symlink stays.
func UnlinkSocHomeDir(memberHome, society string) (*plumbing.Result, error) {
	link := filepath.Join(memberHome, society)
	target := filepath.Join("/societies", society)
	info, err := os.Lstat(link)
	if os.IsNotExist(err) {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if dest, err := os.Readlink(link); err != nil || dest != target {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if err := os.Remove(link); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// SetHomeEximACL grants the MTA read access to the home directory so it
// can pick up .forward.
func SetHomeEximACL(ctx context.Context, owner plumbing.Owner) (*plumbing.Result, error) {
	return unix.SetNFSACL(ctx, plumbing.OwnerHome(owner, false), EximPrincipal, "RX")
}

// CreateForwardingFile writes a default .forward pointing at the
// contact address; an existing file is never overwritten.
func CreateForwardingFile(owner plumbing.Owner) (*plumbing.Result, error) {
	path := filepath.Join(plumbing.OwnerHome(owner, false), ".forward")
	if _, err := os.Stat(path); err == nil {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(owner.OwnerEmail()+"\n"), 0644); err != nil {
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateCreated), nil
}

// RemoveForwardingFile deletes the .forward file, e.g. when switching
// the mail handler away from forwarding.
func RemoveForwardingFile(owner plumbing.Owner) (*plumbing.Result, error) {
	path := filepath.Join(plumbing.OwnerHome(owner, false), ".forward")
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return plumbing.NewResult(plumbing.StateUnchanged), nil
		}
		return nil, err
	}
	return plumbing.NewResult(plumbing.StateSuccess), nil
}

// ArchiveWebsite moves public_html aside with a timestamp suffix,
// leaving the account's web presence disabled but recoverable.
func ArchiveWebsite(owner plumbing.Owner) (*plumbing.Result, error) {
	publicHTML := filepath.Join(plumbing.OwnerHome(owner, true), "public_html")
	if _, err := os.Stat(publicHTML); os.IsNotExist(err) {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	} else if err != nil {
		return nil, err
	}
	target := fmt.Sprintf("%s_%s", publicHTML, time.Now().Format("2006-01-02-150405"))
	if err := os.Rename(publicHTML, target); err != nil {
		return nil, err
	}
	return plumbing.NewResultValue(plumbing.StateSuccess, target), nil
}

// DeleteFiles removes both the private and public trees of an owner.
func DeleteFiles(owner plumbing.Owner) (*plumbing.Result, error) {
	res := &plumbing.Result{Caller: "bespoke.DeleteFiles"}
	for _, path := range []string{plumbing.OwnerHome(owner, false), plumbing.OwnerHome(owner, true)} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			res.Extend(plumbing.NewResult(plumbing.StateUnchanged))
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, err
		}
		res.Extend(plumbing.NewResult(plumbing.StateSuccess))
	}
	return res, nil
}
