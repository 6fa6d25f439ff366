package plumbing

import "path"

// Owner is the common face of a member or a society: anything that can
// own UNIX accounts, databases, lists and domains.
type Owner interface {
	// OwnerName is the crsid of a member or the short name of a society.
	OwnerName() string
	// OwnerDesc is "Firstname Surname" for a member, the description for
	// a society.
	OwnerDesc() string
	// OwnerEmail is the address notifications go to.
	OwnerEmail() string
	// IsSociety distinguishes group accounts from personal ones.
	IsSociety() bool
}

// OwnerWebsite returns the canonical hosted URL for an owner.
func OwnerWebsite(o Owner) string {
	if o.IsSociety() {
		return "https://" + o.OwnerName() + ".soc.srcf.net"
	}
	return "https://" + o.OwnerName() + ".user.srcf.net"
}

// FilesystemRoot anchors the home hierarchies; overridable for tests.
var FilesystemRoot = "/"

// OwnerHome returns the home directory, or its world-readable mirror
// under public/ when public is set.
func OwnerHome(o Owner, public bool) string {
	root := FilesystemRoot
	if public {
		root = path.Join(root, "public")
	}
	if o.IsSociety() {
		return path.Join(root, "societies", o.OwnerName())
	}
	return path.Join(root, "home", o.OwnerName())
}
