package session

import (
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/identity"
)

// MoveObject relocates an object under a new organizational unit. The
// identity is re-resolved first so a stale DN still finds the object.
func (s *Session) MoveObject(id, targetPath string) error {
	const op = "move_object"
	if targetPath == "" {
		return dserr.New(op, dserr.KindValidation, "target path is required")
	}

	obj, err := s.searchOne(id, identity.KindObject, []string{"cn", "distinguishedName"})
	if err != nil {
		return err
	}
	dn := obj.GetString("distinguishedName")
	rdn, _, _ := strings.Cut(dn, ",")

	s.log.Info("move object", map[string]any{"dn": dn, "target": targetPath})
	if s.dryRun {
		s.log.Warn("dry run enabled, move skipped", map[string]any{"dn": dn})
		return nil
	}

	req := ldap.NewModifyDNRequest(dn, rdn, true, targetPath)
	if err := s.conn.ModifyDN(req); err != nil {
		return dserr.Wrap(op, dserr.KindDirectoryRejected, err, "move %s to %s", dn, targetPath)
	}
	return nil
}

// RenameObject changes an object's CN, name and therefore its DN.
func (s *Session) RenameObject(id, newName string) error {
	const op = "rename_object"
	if newName == "" {
		return dserr.New(op, dserr.KindValidation, "new name is required")
	}

	obj, err := s.searchOne(id, identity.KindObject, []string{"cn", "name", "distinguishedName"})
	if err != nil {
		return err
	}
	dn := obj.GetString("distinguishedName")
	oldName := obj.GetString("name")

	s.log.Info("rename object", map[string]any{"dn": dn, "new_name": newName, "old_name": oldName})
	if s.dryRun {
		s.log.Warn("dry run enabled, rename skipped", map[string]any{"dn": dn})
		return nil
	}

	req := ldap.NewModifyDNRequest(dn, "CN="+ldap.EscapeDN(newName), true, "")
	if err := s.conn.ModifyDN(req); err != nil {
		return dserr.Wrap(op, dserr.KindDirectoryRejected, err, "rename %s to %s", dn, newName)
	}
	return nil
}

// RemoveObject deletes an object of the given kind.
func (s *Session) RemoveObject(id string, kind identity.Kind) error {
	op := "remove_" + string(kind)

	obj, err := s.searchOne(id, kind, []string{"distinguishedName"})
	if err != nil {
		return err
	}
	dn := obj.GetString("distinguishedName")

	s.log.Info("remove object", map[string]any{"op": op, "dn": dn})
	if s.dryRun {
		s.log.Warn("dry run enabled, delete skipped", map[string]any{"dn": dn})
		return nil
	}

	if err := s.conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
		return dserr.Wrap(op, dserr.KindDirectoryRejected, err, "delete %s", dn)
	}
	return nil
}

// RemoveUser deletes a user.
func (s *Session) RemoveUser(id string) error { return s.RemoveObject(id, identity.KindUser) }

// RemoveGroup deletes a group.
func (s *Session) RemoveGroup(id string) error { return s.RemoveObject(id, identity.KindGroup) }

// RemoveComputer deletes a computer.
func (s *Session) RemoveComputer(id string) error { return s.RemoveObject(id, identity.KindComputer) }

// RemoveContact deletes a contact.
func (s *Session) RemoveContact(id string) error { return s.RemoveObject(id, identity.KindContact) }
