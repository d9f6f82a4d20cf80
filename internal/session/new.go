package session

import (
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/dsobj"
	"github.com/dsbridge/dsbridge/internal/flags"
)

// NewUserParams describes a user to create. Name becomes the CN and the RDN
// under Path.
type NewUserParams struct {
	Path              string
	Name              string
	SAMAccountName    string
	AccountPassword   string
	DisplayName       string
	UserPrincipalName string

	Enabled               *bool
	PasswordNeverExpires  *bool
	AccountNotDelegated   *bool
	ChangePasswordAtLogon *bool
	AccountExpires        *Expiry

	OtherAttributes map[string][]string
}

// NewGroupParams describes a group to create.
type NewGroupParams struct {
	Path           string
	Name           string
	SAMAccountName string
	DisplayName    string
	// GroupScope defaults to Global, GroupCategory to Security.
	GroupScope    string
	GroupCategory string

	OtherAttributes map[string][]string
}

// NewContactParams describes a contact to create.
type NewContactParams struct {
	Path        string
	Name        string
	DisplayName string

	OtherAttributes map[string][]string
}

// NewUser creates a user object. The password is set at creation and
// PASSWD_NOTREQD is always cleared.
func (s *Session) NewUser(p NewUserParams) error {
	const op = "new_user"

	notRequired := false
	attrs := dsobj.New()
	attrs.Set("userAccountControl", []string{strconv.FormatInt(flags.GenUAC(
		flags.UACNormalAccount,
		p.Enabled, p.PasswordNeverExpires, p.AccountNotDelegated, &notRequired,
	), 10)})

	if p.ChangePasswordAtLogon != nil {
		attrs.Set("pwdLastSet", []string{flags.EncodeChangePasswordAtLogon(*p.ChangePasswordAtLogon)})
	}
	if p.AccountExpires != nil {
		if p.AccountExpires.Disable {
			attrs.Set("accountExpires", []string{flags.EncodeAccountExpires(nil)})
		} else {
			at := p.AccountExpires.At
			attrs.Set("accountExpires", []string{flags.EncodeAccountExpires(&at)})
		}
	}
	if p.UserPrincipalName != "" {
		attrs.Set("userPrincipalName", []string{p.UserPrincipalName})
	}
	attrs.Set("unicodePwd", []string{p.AccountPassword})
	attrs.Set("sAMAccountName", []string{p.SAMAccountName})

	return s.addObject(op, "user", p.Path, p.Name, p.DisplayName, attrs, p.OtherAttributes)
}

// NewGroup creates a group object, Global Security by default.
func (s *Session) NewGroup(p NewGroupParams) error {
	const op = "new_group"

	scope := p.GroupScope
	if scope == "" {
		scope = flags.ScopeGlobal
	}
	category := p.GroupCategory
	if category == "" {
		category = flags.CategorySecurity
	}

	gt, err := flags.GenGroupType(0, scope, category)
	if err != nil {
		return err
	}

	attrs := dsobj.New()
	attrs.Set("sAMAccountName", []string{p.SAMAccountName})
	attrs.Set("groupType", []string{strconv.FormatInt(int64(gt), 10)})

	return s.addObject(op, "group", p.Path, p.Name, p.DisplayName, attrs, p.OtherAttributes)
}

// NewContact creates a contact object.
func (s *Session) NewContact(p NewContactParams) error {
	return s.addObject("new_contact", "contact", p.Path, p.Name, p.DisplayName, dsobj.New(), p.OtherAttributes)
}

// addObject assembles and sends the add request shared by every New
// operation.
func (s *Session) addObject(op, class, path, name, displayName string, extend *dsobj.Object, other map[string][]string) error {
	if name == "" {
		return dserr.New(op, dserr.KindValidation, "name is required")
	}
	if path == "" {
		return dserr.New(op, dserr.KindValidation, "path is required")
	}

	chain, err := flags.ObjectClassChain(class)
	if err != nil {
		return err
	}

	dn := "CN=" + ldap.EscapeDN(name) + "," + path

	attrs := dsobj.New()
	attrs.Set("objectClass", chain)
	attrs.Set("cn", []string{name})
	attrs.Set("name", []string{name})
	if displayName != "" {
		attrs.Set("displayName", []string{displayName})
	}
	attrs.Update(extend)

	for attr, values := range other {
		if attrs.Has(attr) {
			return dserr.New(op, dserr.KindValidation,
				"attribute %s is already set, remove it from other attributes", attr)
		}
		attrs.Set(attr, values)
	}

	req := ldap.NewAddRequest(dn, nil)
	logged := make(map[string]any, attrs.Len())
	for _, key := range attrs.Keys() {
		raw, _ := attrs.Get(key)
		values, ok := raw.([]string)
		if !ok {
			return dserr.New(op, dserr.KindValidation, "attribute %s has unsupported values: %T", key, raw)
		}
		if strings.EqualFold(key, "unicodePwd") {
			encoded := make([]string, len(values))
			for i, v := range values {
				encoded[i] = EncodePassword(v)
			}
			values = encoded
		}
		req.Attribute(key, values)
		logged[strings.ToLower(key)] = values
	}

	s.log.Info("directory add", map[string]any{
		"op": op, "dn": dn, "attributes": SanitizeFields(logged),
	})
	if s.dryRun {
		s.log.Warn("dry run enabled, add skipped", map[string]any{"dn": dn})
		return nil
	}
	if err := s.conn.Add(req); err != nil {
		return dserr.Wrap(op, dserr.KindDirectoryRejected, err, "add %s", dn)
	}
	return nil
}
