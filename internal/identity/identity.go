// Package identity classifies the caller-supplied reference to a directory
// object (distinguished name, GUID, SID or account name) and renders the
// matching LDAP filter clause.
package identity

import (
	"regexp"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/dsbridge/dsbridge/internal/codec"
	"github.com/dsbridge/dsbridge/internal/dserr"
)

// Kind is the category of directory object an operation targets.
type Kind string

const (
	KindObject   Kind = "object"
	KindUser     Kind = "user"
	KindGroup    Kind = "group"
	KindComputer Kind = "computer"
	KindContact  Kind = "contact"
	// KindMember matches any object that can belong to a group.
	KindMember Kind = "member"
)

// accountKinds are the kinds that carry sAMAccountName and objectSid, so a
// bare string or SID can identify them.
var accountKinds = map[Kind]bool{
	KindUser:     true,
	KindGroup:    true,
	KindComputer: true,
	KindMember:   true,
}

// IsAccountKind reports whether objects of this kind are addressable by
// account name or SID.
func IsAccountKind(k Kind) bool { return accountKinds[k] }

// Reference is a classified identity: the attribute to search on and the raw
// value to match.
type Reference struct {
	Attribute string
	Value     string
}

var (
	dnPattern   = regexp.MustCompile(`(?i)^(cn=|ou=|dc=)`)
	guidPattern = regexp.MustCompile(`^[{]?[0-9a-fA-F]{8}-([0-9a-fA-F]{4}-){3}[0-9a-fA-F]{12}[}]?$`)
)

// Classify determines how to look up an identity string for a given object
// kind. The checks run in fixed order: distinguished name, GUID, SID, then
// account name. SID and account name apply to account kinds only.
func Classify(identity string, kind Kind) (Reference, error) {
	switch {
	case dnPattern.MatchString(identity):
		return Reference{Attribute: "distinguishedName", Value: identity}, nil
	case guidPattern.MatchString(identity):
		return Reference{Attribute: "objectGUID", Value: strings.Trim(identity, "{}")}, nil
	case strings.Contains(strings.ToLower(identity), "s-1-5") && IsAccountKind(kind):
		return Reference{Attribute: "objectSid", Value: identity}, nil
	case IsAccountKind(kind):
		return Reference{Attribute: "sAMAccountName", Value: identity}, nil
	}
	return Reference{}, dserr.New("", dserr.KindValidation,
		"cannot determine lookup method for %q as %s", identity, kind)
}

// Filter renders the LDAP filter clause matching a classified reference.
// GUID values are encoded as escaped binary octets; everything else goes
// through standard filter escaping.
func Filter(ref Reference) (string, error) {
	if ref.Attribute == "objectGUID" {
		octets, err := codec.GUIDFilterValue(ref.Value)
		if err != nil {
			return "", err
		}
		return "(objectGUID=" + octets + ")", nil
	}
	return "(" + ref.Attribute + "=" + ldap.EscapeFilter(ref.Value) + ")", nil
}

// BaseFilter is the type filter combined with every search for a kind.
func BaseFilter(kind Kind) string {
	switch kind {
	case KindUser:
		return "(&(objectCategory=person)(objectClass=user))"
	case KindGroup:
		return "(objectCategory=group)"
	case KindComputer:
		return "(objectCategory=computer)"
	case KindContact:
		return "(objectClass=contact)"
	case KindMember:
		return "(|(&(objectCategory=person)(objectClass=user))(objectCategory=group)" +
			"(objectCategory=computer)(objectClass=contact))"
	}
	return ""
}

// DefaultProperties is the attribute set returned when the caller does not
// request specific properties.
func DefaultProperties(kind Kind) []string {
	switch kind {
	case KindUser:
		return []string{"distinguishedName", "Name", "ObjectClass", "ObjectGUID", "GivenName",
			"sAMAccountName", "objectSid", "sn", "UserPrincipalName", "Enabled"}
	case KindGroup:
		return []string{"distinguishedName", "Name", "ObjectClass", "ObjectGUID",
			"sAMAccountName", "objectSid", "GroupScope", "GroupCategory"}
	case KindComputer:
		return []string{"distinguishedName", "Name", "ObjectClass", "ObjectGUID", "DNSHostName",
			"Enabled", "sAMAccountName", "objectSid", "UserPrincipalName", "userAccountControl"}
	case KindMember:
		return []string{"distinguishedName", "Name", "ObjectClass", "ObjectGUID",
			"sAMAccountName", "objectSid"}
	}
	return []string{"distinguishedName", "Name", "ObjectClass", "ObjectGUID"}
}
