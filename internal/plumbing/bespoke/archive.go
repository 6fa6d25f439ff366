package bespoke

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/plumbing/unix"
)

// ArchiveRoot is where deleted societies' files are preserved.
var ArchiveRoot = "/archive/societies"

// ArchiveSocietyFiles preserves a society before deletion: a dated
// tarball of both trees, the crontab, and a human-readable summary.
func ArchiveSocietyFiles(ctx context.Context, owner plumbing.Owner, summary string) (*plumbing.Result, error) {
	root := filepath.Join(ArchiveRoot, owner.OwnerName())
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, err
	}
	res := &plumbing.Result{Caller: "bespoke.ArchiveSocietyFiles"}

	part, err := archiveFiles(ctx, owner, root)
	if err != nil {
		return nil, err
	}
	res.Extend(part)

	part, err = archiveCrontab(ctx, owner, root)
	if err != nil {
		return nil, err
	}
	res.Extend(part)

	if err := unix.ReplaceFile(filepath.Join(root, "society_info"), []byte(summary)); err != nil {
		return nil, err
	}
	return res, nil
}

func archiveFiles(ctx context.Context, owner plumbing.Owner, root string) (*plumbing.Result, error) {
	name := "soc-" + owner.OwnerName() + "-" + time.Now().Format("20060102") + ".tar.bz2"
	target := filepath.Join(root, name)

	var paths []string
	for _, path := range []string{plumbing.OwnerHome(owner, false), plumbing.OwnerHome(owner, true)} {
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	if _, err := os.Stat(target); err == nil {
		// Don't overwrite an archive made earlier today.
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	args := append([]string{"/bin/tar", "cjf", target}, paths...)
	if _, err := plumbing.Command(ctx, args...); err != nil {
		return nil, err
	}
	return plumbing.NewResultValue(plumbing.StateSuccess, target), nil
}

func archiveCrontab(ctx context.Context, owner plumbing.Owner, root string) (*plumbing.Result, error) {
	crontab, err := GetCrontab(ctx, owner.OwnerName())
	if err != nil {
		return nil, err
	}
	if crontab == "" {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	target := filepath.Join(root, "crontab")
	if err := unix.ReplaceFile(target, []byte(crontab)); err != nil {
		return nil, err
	}
	return plumbing.NewResultValue(plumbing.StateSuccess, target), nil
}
