package models

import "time"

// DomainClass records which kind of account owns a domain.
type DomainClass string

const (
	DomainClassUser DomainClass = "user"
	DomainClassSoc  DomainClass = "soc"
)

// Domain maps an external DNS name onto an owner and an optional
// document root under their web space.
type Domain struct {
	ID       int64       `json:"id"`
	Class    DomainClass `json:"class"`
	Owner    string      `json:"owner"`
	Domain   string      `json:"domain" validate:"required,fqdn"`
	Root     string      `json:"root,omitempty"`
	Wild     bool        `json:"wild"`
	Danger   bool        `json:"danger"`
	LastGood *time.Time  `json:"last_good,omitempty"`
}

// HTTPSCert is a pending TLS certificate issue request for a domain.
type HTTPSCert struct {
	ID     int64  `json:"id"`
	Domain string `json:"domain"`
	Name   string `json:"name,omitempty"`
	Danger bool   `json:"danger"`
}
