package session

import (
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/identity"
)

// MemberRef identifies a prospective group member. Either Identity alone, or
// a pre-resolved object with DN (plus SID and Class for cross-domain
// members).
type MemberRef struct {
	Identity string
	DN       string
	SID      string
	Class    string
}

// AddGroupMember adds members to a group one at a time. Members already in
// the group are skipped silently.
func (s *Session) AddGroupMember(groupID string, members []MemberRef) error {
	return s.setMembers("add_group_member", groupID, members, s.addMember)
}

// RemoveGroupMember removes members from a group one at a time. Members not
// in the group are skipped silently.
func (s *Session) RemoveGroupMember(groupID string, members []MemberRef) error {
	return s.setMembers("remove_group_member", groupID, members, s.removeMember)
}

func (s *Session) setMembers(op, groupID string, members []MemberRef, apply func(op, group, member string) error) error {
	if len(members) == 0 {
		return dserr.New(op, dserr.KindValidation, "no members given")
	}

	group, err := s.searchOne(groupID, identity.KindGroup, []string{"distinguishedName"})
	if err != nil {
		return err
	}
	groupDN := group.GetString("distinguishedName")

	// The group's domain decides whether a member is cross-domain.
	base := strings.ToLower(s.base)
	idx := strings.Index(base, "dc=")
	if idx < 0 {
		return dserr.New(op, dserr.KindValidation, "search base %q has no domain component", s.base)
	}
	domain := base[idx:]

	dns := make([]string, 0, len(members))
	for _, member := range members {
		dn, err := s.resolveMember(op, member, domain)
		if err != nil {
			return err
		}
		dns = append(dns, dn)
	}

	s.log.Debug("group membership change", map[string]any{"op": op, "group": groupDN, "members": dns})
	for _, dn := range dns {
		if err := apply(op, groupDN, dn); err != nil {
			return err
		}
	}
	return nil
}

// resolveMember turns a member reference into the DN to write into the
// group's member attribute. Members from another domain are addressed
// through their foreign security principal.
func (s *Session) resolveMember(op string, member MemberRef, groupDomain string) (string, error) {
	dn := member.DN
	sid := member.SID
	class := member.Class

	if dn == "" && member.Identity != "" {
		ref, err := identity.Classify(member.Identity, identity.KindMember)
		if err != nil {
			return "", err
		}
		if ref.Attribute == "distinguishedName" {
			dn = ref.Value
		} else {
			obj, err := s.searchOne(member.Identity, identity.KindMember,
				[]string{"distinguishedName", "objectClass"})
			if err != nil {
				return "", err
			}
			dn = obj.GetString("distinguishedName")
			return dn, nil
		}
	}
	if dn == "" {
		return "", dserr.New(op, dserr.KindValidation, "member reference has no identity")
	}

	if !strings.Contains(strings.ToLower(dn), groupDomain) {
		if sid == "" || class == "" {
			return "", dserr.New(op, dserr.KindValidation,
				"cross-domain member %s needs a resolved object with distinguishedName, objectSid and objectClass", dn)
		}
		return "CN=" + sid + ",CN=ForeignSecurityPrincipals," + groupDomain, nil
	}
	return dn, nil
}

func (s *Session) addMember(op, group, member string) error {
	s.log.Info("add group member", map[string]any{"group": group, "member": member})
	if s.dryRun {
		s.log.Warn("dry run enabled, membership change skipped", nil)
		return nil
	}

	req := ldap.NewModifyRequest(group, nil)
	req.Add("member", []string{member})
	err := s.conn.Modify(req)
	switch {
	case err == nil:
		return nil
	case ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists),
		ldap.IsErrorWithCode(err, ldap.LDAPResultAttributeOrValueExists):
		s.log.Debug("object already in group", map[string]any{"group": group, "member": member})
		return nil
	}
	return dserr.Wrap(op, dserr.KindDirectoryRejected, err, "add %s to %s", member, group)
}

func (s *Session) removeMember(op, group, member string) error {
	s.log.Info("remove group member", map[string]any{"group": group, "member": member})
	if s.dryRun {
		s.log.Warn("dry run enabled, membership change skipped", nil)
		return nil
	}

	req := ldap.NewModifyRequest(group, nil)
	req.Delete("member", []string{member})
	err := s.conn.Modify(req)
	switch {
	case err == nil:
		return nil
	case ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchAttribute):
		s.log.Debug("object not in group", map[string]any{"group": group, "member": member})
		return nil
	case ldap.IsErrorWithCode(err, ldap.LDAPResultUnwillingToPerform):
		s.log.Warn("directory unwilling to perform, object not in group",
			map[string]any{"group": group, "member": member})
		return nil
	}
	return dserr.Wrap(op, dserr.KindDirectoryRejected, err, "remove %s from %s", member, group)
}
