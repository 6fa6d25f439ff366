package bespoke

import (
	"context"
	"fmt"
	"os/user"
	"strconv"

	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/plumbing/unix"
)

// scrubClass is the prefix of anonymised account names.
func scrubClass(owner plumbing.Owner) string {
	if owner.IsSociety() {
		return "soc"
	}
	return "user"
}

// ScrubUser anonymises the UNIX account of a deleted member or society:
// real name cleared, society homes detached, and the login renamed to
// ex<kind><uid>.
func ScrubUser(ctx context.Context, owner plumbing.Owner, uid int) (*plumbing.Result, error) {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	res := &plumbing.Result{Caller: "bespoke.ScrubUser"}
	part, err := unix.SetRealName(ctx, u.Username, "")
	if err != nil {
		return nil, err
	}
	res.Extend(part)
	if owner.IsSociety() {
		part, err = unix.SetHomeDir(ctx, u.Username, "/nonexistent")
		if err != nil {
			return nil, err
		}
		res.Extend(part)
	}
	part, err = unix.RenameUser(ctx, u.Username, fmt.Sprintf("ex%s%d", scrubClass(owner), uid))
	if err != nil {
		return nil, err
	}
	res.Extend(part)
	return res, nil
}

// ScrubGroup anonymises the UNIX group to match.
func ScrubGroup(ctx context.Context, owner plumbing.Owner, gid int) (*plumbing.Result, error) {
	g, err := user.LookupGroupId(strconv.Itoa(gid))
	if err != nil {
		return plumbing.NewResult(plumbing.StateUnchanged), nil
	}
	return unix.RenameGroup(ctx, g.Name, fmt.Sprintf("ex%s%d", scrubClass(owner), gid))
}
