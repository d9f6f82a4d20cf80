// Package session maintains an authenticated connection to an Active
// Directory domain controller and exposes typed read and write operations
// over it.
package session

import (
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/dsbridge/dsbridge/internal/dserr"
)

const (
	// PageSize is the paged-results window; domain controllers cap result
	// sets at 1500 entries per request.
	PageSize = 1499

	// rangeStep is the chunk size for ranged retrieval of oversized
	// multi-valued attributes.
	rangeStep = 1499
)

// Scope selects how deep a search descends from its base.
type Scope string

const (
	ScopeBase     Scope = "base"
	ScopeOneLevel Scope = "onelevel"
	ScopeSubtree  Scope = "subtree"
)

func (s Scope) ldapScope() (int, error) {
	switch s {
	case ScopeBase:
		return ldap.ScopeBaseObject, nil
	case ScopeOneLevel:
		return ldap.ScopeSingleLevel, nil
	case ScopeSubtree, "":
		return ldap.ScopeWholeSubtree, nil
	}
	return 0, dserr.New("", dserr.KindValidation, "unknown search scope %q", s)
}

// Config describes how to reach and authenticate against the directory.
type Config struct {
	// Hosts are tried in order until one accepts a connection.
	Hosts []string `yaml:"hosts"`
	// Port must be 636 (TLS) or 389 (plain).
	Port int `yaml:"port" default:"636"`

	// Login is the bind identity. Password, Keytab and CCache select the
	// bind method, in that priority order; with none set the default
	// Kerberos credential cache is used.
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
	Keytab   string `yaml:"keytab"`
	CCache   string `yaml:"ccache"`
	// Realm is the Kerberos realm for keytab binds.
	Realm string `yaml:"realm"`
	// Krb5Conf is the Kerberos client configuration path.
	Krb5Conf string `yaml:"krb5_conf" default:"/etc/krb5.conf"`

	// Base limits all searches; discovered from the root DSE when empty.
	Base string `yaml:"base"`

	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration `yaml:"dial_timeout" default:"10s"`

	// DryRun logs write operations without sending them.
	DryRun bool `yaml:"dry_run"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// directoryConn is the subset of *ldap.Conn the session drives. Tests
// substitute a fake.
type directoryConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Modify(req *ldap.ModifyRequest) error
	Add(req *ldap.AddRequest) error
	Del(req *ldap.DelRequest) error
	ModifyDN(req *ldap.ModifyDNRequest) error
	Unbind() error
}

// SearchOptions tunes Search and the typed lookups built on it.
type SearchOptions struct {
	// Properties lists the attributes to return. A single "*" requests
	// everything; empty falls back to the kind's default set.
	Properties []string
	Scope      Scope
}
