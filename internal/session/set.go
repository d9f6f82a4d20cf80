package session

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/go-ldap/ldap/v3"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/dsobj"
	"github.com/dsbridge/dsbridge/internal/flags"
	"github.com/dsbridge/dsbridge/internal/identity"
)

// AttributeOps carries raw attribute modifications: Remove deletes specific
// values, Add appends, Replace overwrites all values, Clear empties the
// attribute.
type AttributeOps struct {
	Remove  map[string][]string
	Add     map[string][]string
	Replace map[string][]string
	Clear   []string
}

func (ops AttributeOps) empty() bool {
	return len(ops.Remove) == 0 && len(ops.Add) == 0 && len(ops.Replace) == 0 && len(ops.Clear) == 0
}

// Expiry sets or disables an account expiration date.
type Expiry struct {
	// Disable clears the expiration instead of setting At.
	Disable bool
	At      time.Time
}

// specialAttr is a managed attribute whose replacement value is derived from
// the object's current state.
type specialAttr struct {
	name  string
	value any
}

type uacToggles struct {
	enabled              *bool
	passwordNeverExpires *bool
	accountNotDelegated  *bool
	passwordNotRequired  *bool
}

type groupTypeChange struct {
	scope    string
	category string
}

// applyModify is the shared read-modify-write path behind every Set
// operation. It resolves the target, derives replacement values for managed
// attributes from the fetched state, and sends a single modify request.
func (s *Session) applyModify(op string, kind identity.Kind, id string, ops AttributeOps, special []specialAttr) error {
	type mod struct {
		action int
		attr   string
		values []string
	}
	const (
		actDelete = iota
		actAdd
		actReplace
		actClear
	)

	var mods []mod
	for attr, values := range ops.Remove {
		mods = append(mods, mod{actDelete, attr, values})
	}
	for attr, values := range ops.Add {
		mods = append(mods, mod{actAdd, attr, values})
	}
	for attr, values := range ops.Replace {
		mods = append(mods, mod{actReplace, attr, values})
	}
	for _, attr := range ops.Clear {
		mods = append(mods, mod{actClear, attr, nil})
	}

	for _, sp := range special {
		for _, m := range mods {
			if strings.EqualFold(m.attr, sp.name) {
				return dserr.New(op, dserr.KindValidation,
					"attribute %s cannot be both a raw and a managed modification", sp.name)
			}
		}
	}

	properties := make([]string, 0, len(mods)+len(special))
	for _, m := range mods {
		properties = append(properties, m.attr)
	}
	for _, sp := range special {
		properties = append(properties, sp.name)
	}

	current, err := s.searchOne(id, kind, properties)
	if err != nil {
		return err
	}
	dn := current.GetString("distinguishedName")

	for _, sp := range special {
		value, err := deriveSpecial(op, sp, current)
		if err != nil {
			return err
		}
		mods = append(mods, mod{actReplace, sp.name, []string{value}})
	}

	if len(mods) == 0 {
		return dserr.New(op, dserr.KindValidation, "no changes requested")
	}

	req := ldap.NewModifyRequest(dn, nil)
	logged := make(map[string]any, len(mods))
	for _, m := range mods {
		values := make([]string, len(m.values))
		for i, v := range m.values {
			if strings.EqualFold(m.attr, "unicodePwd") {
				values[i] = EncodePassword(v)
			} else {
				values[i] = v
			}
		}
		switch m.action {
		case actDelete:
			req.Delete(m.attr, values)
		case actAdd:
			req.Add(m.attr, values)
		case actReplace:
			req.Replace(m.attr, values)
		case actClear:
			req.Delete(m.attr, nil)
		}
		logged[strings.ToLower(m.attr)] = values
	}

	s.log.Info("directory modify", map[string]any{
		"op": op, "dn": dn, "changes": SanitizeFields(logged),
	})
	if s.dryRun {
		s.log.Warn("dry run enabled, modify skipped", map[string]any{"dn": dn})
		return nil
	}
	if err := s.conn.Modify(req); err != nil {
		return dserr.Wrap(op, dserr.KindDirectoryRejected, err, "modify %s", dn)
	}
	return nil
}

func deriveSpecial(op string, sp specialAttr, current *dsobj.Object) (string, error) {
	switch value := sp.value.(type) {
	case uacToggles:
		cur, err := currentInt(op, current, "userAccountControl")
		if err != nil {
			return "", err
		}
		next := flags.GenUAC(cur, value.enabled, value.passwordNeverExpires,
			value.accountNotDelegated, value.passwordNotRequired)
		return strconv.FormatInt(next, 10), nil

	case groupTypeChange:
		cur, err := currentInt(op, current, "groupType")
		if err != nil {
			return "", err
		}
		next, err := flags.GenGroupType(int32(cur), value.scope, value.category)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(next), 10), nil

	case bool:
		// pwdLastSet: force or clear change-password-at-logon
		return flags.EncodeChangePasswordAtLogon(value), nil

	case Expiry:
		if value.Disable {
			return flags.EncodeAccountExpires(nil), nil
		}
		at := value.At
		return flags.EncodeAccountExpires(&at), nil

	case string:
		return value, nil
	}
	return "", dserr.New(op, dserr.KindValidation, "unsupported value for managed attribute %s: %T", sp.name, sp.value)
}

func currentInt(op string, obj *dsobj.Object, attr string) (int64, error) {
	v, ok := obj.Get(attr)
	if !ok {
		return 0, dserr.New(op, dserr.KindValidation, "object has no %s attribute", attr)
	}
	n, ok := v.(int64)
	if !ok {
		return 0, dserr.New(op, dserr.KindValidation, "%s is not an integer: %T", attr, v)
	}
	return n, nil
}

// ObjectChanges are the managed attributes shared by every object class.
type ObjectChanges struct {
	DisplayName *string
	Description *string
}

func (c ObjectChanges) specials() []specialAttr {
	var out []specialAttr
	if c.DisplayName != nil {
		out = append(out, specialAttr{"displayName", *c.DisplayName})
	}
	if c.Description != nil {
		out = append(out, specialAttr{"description", *c.Description})
	}
	return out
}

// UserChanges are the managed attributes of a user modification.
type UserChanges struct {
	ObjectChanges
	SAMAccountName        *string
	UserPrincipalName     *string
	Enabled               *bool
	PasswordNeverExpires  *bool
	AccountNotDelegated   *bool
	ChangePasswordAtLogon *bool
	AccountExpires        *Expiry
}

// GroupChanges are the managed attributes of a group modification.
type GroupChanges struct {
	ObjectChanges
	SAMAccountName *string
	GroupScope     string
	GroupCategory  string
}

// SetObject modifies attributes of an arbitrary object.
func (s *Session) SetObject(id string, ops AttributeOps, changes ObjectChanges) error {
	return s.applyModify("set_object", identity.KindObject, id, ops, changes.specials())
}

// SetUser modifies attributes of a user.
func (s *Session) SetUser(id string, ops AttributeOps, changes UserChanges) error {
	const op = "set_user"

	if changes.UserPrincipalName != nil && !strings.Contains(*changes.UserPrincipalName, "@") {
		return dserr.New(op, dserr.KindValidation, "userPrincipalName must include the domain after @")
	}

	special := changes.specials()
	if changes.SAMAccountName != nil {
		special = append(special, specialAttr{"sAMAccountName", *changes.SAMAccountName})
	}
	if changes.UserPrincipalName != nil {
		special = append(special, specialAttr{"userPrincipalName", *changes.UserPrincipalName})
	}
	if changes.AccountExpires != nil {
		special = append(special, specialAttr{"accountExpires", *changes.AccountExpires})
	}
	if changes.ChangePasswordAtLogon != nil {
		special = append(special, specialAttr{"pwdLastSet", *changes.ChangePasswordAtLogon})
	}
	if changes.Enabled != nil || changes.PasswordNeverExpires != nil || changes.AccountNotDelegated != nil {
		special = append(special, specialAttr{"userAccountControl", uacToggles{
			enabled:              changes.Enabled,
			passwordNeverExpires: changes.PasswordNeverExpires,
			accountNotDelegated:  changes.AccountNotDelegated,
		}})
	}

	return s.applyModify(op, identity.KindUser, id, ops, special)
}

// SetGroup modifies attributes of a group.
func (s *Session) SetGroup(id string, ops AttributeOps, changes GroupChanges) error {
	special := changes.specials()
	if changes.SAMAccountName != nil {
		special = append(special, specialAttr{"sAMAccountName", *changes.SAMAccountName})
	}
	if changes.GroupScope != "" || changes.GroupCategory != "" {
		special = append(special, specialAttr{"groupType", groupTypeChange{
			scope:    changes.GroupScope,
			category: changes.GroupCategory,
		}})
	}

	return s.applyModify("set_group", identity.KindGroup, id, ops, special)
}

// SetComputer modifies attributes of a computer.
func (s *Session) SetComputer(id string, ops AttributeOps, changes ObjectChanges) error {
	return s.applyModify("set_computer", identity.KindComputer, id, ops, changes.specials())
}

// SetContact modifies attributes of a contact.
func (s *Session) SetContact(id string, ops AttributeOps, changes ObjectChanges) error {
	return s.applyModify("set_contact", identity.KindContact, id, ops, changes.specials())
}

// SetAccountPassword replaces a user's password and clears PASSWD_NOTREQD so
// the new password is actually required.
func (s *Session) SetAccountPassword(id, password string) error {
	notRequired := false
	return s.applyModify("set_account_password", identity.KindUser, id,
		AttributeOps{Replace: map[string][]string{"unicodePwd": {password}}},
		[]specialAttr{{"userAccountControl", uacToggles{passwordNotRequired: &notRequired}}},
	)
}

// SetAccountUnlock clears a temporary lockout.
func (s *Session) SetAccountUnlock(id string) error {
	return s.applyModify("set_account_unlock", identity.KindUser, id,
		AttributeOps{Replace: map[string][]string{"lockoutTime": {"0"}}}, nil)
}

// EncodePassword renders a password in the quoted UTF-16LE form the
// unicodePwd attribute requires.
func EncodePassword(password string) string {
	units := utf16.Encode([]rune(`"` + password + `"`))
	b := make([]byte, len(units)*2)
	for i, u := range units {
		b[i*2] = byte(u)
		b[i*2+1] = byte(u >> 8)
	}
	return string(b)
}
