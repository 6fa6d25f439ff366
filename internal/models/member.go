package models

import (
	"strings"
	"time"
)

// MailHandler selects how a member's @srcf.net mail is delivered.
type MailHandler string

const (
	// MailHandlerForward relays to the contact address via ~/.forward.
	MailHandlerForward MailHandler = "forward"
	// MailHandlerPip delivers to the local mailbox on the user host.
	MailHandlerPip MailHandler = "pip"
	// MailHandlerHades delivers to the webmail store.
	MailHandlerHades MailHandler = "hades"
)

// ValidMailHandler reports whether the string is a known handler.
func ValidMailHandler(s string) bool {
	switch MailHandler(s) {
	case MailHandlerForward, MailHandlerPip, MailHandlerHades:
		return true
	}
	return false
}

// Member is a personal account holder, keyed by crsid.
type Member struct {
	CRSid         string      `json:"crsid" validate:"required,min=1,max=7,lowercase"`
	PreferredName string      `json:"preferred_name"`
	Surname       string      `json:"surname"`
	Email         string      `json:"email" validate:"omitempty,email"`
	MailHandler   MailHandler `json:"mail_handler"`
	// Member records whether the person ever registered; User whether
	// the account is currently active. User implies Member.
	Member bool       `json:"member"`
	User   bool       `json:"user"`
	Danger bool       `json:"danger"`
	Notes  string     `json:"notes,omitempty"`
	UID    int        `json:"uid"`
	GID    int        `json:"gid"`
	Joined *time.Time `json:"joined,omitempty"`
}

// Name returns the member's full name.
func (m *Member) Name() string {
	return strings.TrimSpace(m.PreferredName + " " + m.Surname)
}

func (m *Member) OwnerName() string  { return m.CRSid }
func (m *Member) OwnerDesc() string  { return m.Name() }
func (m *Member) OwnerEmail() string { return m.Email }
func (m *Member) IsSociety() bool    { return false }

// Society is a group account, keyed by its short name. Admins is the set
// of member crsids entitled to operate as the society.
type Society struct {
	Society     string     `json:"society" validate:"required,min=1,max=16,lowercase"`
	Description string     `json:"description"`
	RoleEmail   string     `json:"role_email,omitempty" validate:"omitempty,email"`
	Danger      bool       `json:"danger"`
	Notes       string     `json:"notes,omitempty"`
	UID         int        `json:"uid"`
	GID         int        `json:"gid"`
	Joined      *time.Time `json:"joined,omitempty"`
	Admins      []string   `json:"admins"`
}

// HasAdmin reports whether crsid is in the admin set.
func (s *Society) HasAdmin(crsid string) bool {
	for _, admin := range s.Admins {
		if admin == crsid {
			return true
		}
	}
	return false
}

// AdminEmail is the derived alias every society owns.
func (s *Society) AdminEmail() string {
	return s.Society + "-admins@srcf.net"
}

// Email is the address notifications go to: the role email when set,
// falling back to the admins alias.
func (s *Society) Email() string {
	if s.RoleEmail != "" {
		return s.RoleEmail
	}
	return s.AdminEmail()
}

func (s *Society) OwnerName() string { return s.Society }
func (s *Society) OwnerDesc() string { return s.Description }
func (s *Society) OwnerEmail() string {
	return s.Email()
}
func (s *Society) IsSociety() bool { return true }

// PendingAdmin records a would-be society admin who has not yet signed
// up; consumed when the member is created.
type PendingAdmin struct {
	CRSid   string `json:"crsid"`
	Society string `json:"society"`
}
