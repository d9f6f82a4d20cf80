package relay

import (
	"strings"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/dsobj"
	"github.com/dsbridge/dsbridge/internal/identity"
	"github.com/dsbridge/dsbridge/internal/session"
)

// Operation names as they travel in type_query and on the HTTP path.
const (
	OpGetObject      = "get_object"
	OpGetUser        = "get_user"
	OpGetGroup       = "get_group"
	OpGetComputer    = "get_computer"
	OpGetContact     = "get_contact"
	OpGetGroupMember = "get_group_member"

	OpSetObject          = "set_object"
	OpSetUser            = "set_user"
	OpSetGroup           = "set_group"
	OpSetComputer        = "set_computer"
	OpSetContact         = "set_contact"
	OpSetAccountPassword = "set_account_password"
	OpSetAccountUnlock   = "set_account_unlock"

	OpAddGroupMember    = "add_group_member"
	OpRemoveGroupMember = "remove_group_member"

	OpMoveObject   = "move_object"
	OpRenameObject = "rename_object"

	OpNewUser    = "new_user"
	OpNewGroup   = "new_group"
	OpNewContact = "new_contact"

	OpRemoveObject   = "remove_object"
	OpRemoveUser     = "remove_user"
	OpRemoveGroup    = "remove_group"
	OpRemoveComputer = "remove_computer"
	OpRemoveContact  = "remove_contact"
)

// Handler runs one named operation against an open directory.
type Handler func(dir session.Directory, p Params) (any, error)

// handlers is the closed dispatch table. Anything not listed here is
// rejected before touching the directory.
var handlers = map[string]Handler{
	OpGetObject:      handleGetObject,
	OpGetUser:        getHandler(session.Directory.GetUser),
	OpGetGroup:       getHandler(session.Directory.GetGroup),
	OpGetComputer:    getHandler(session.Directory.GetComputer),
	OpGetContact:     getHandler(session.Directory.GetContact),
	OpGetGroupMember: handleGetGroupMember,

	OpSetObject:          setHandler(OpSetObject, session.Directory.SetObject),
	OpSetUser:            handleSetUser,
	OpSetGroup:           handleSetGroup,
	OpSetComputer:        setHandler(OpSetComputer, session.Directory.SetComputer),
	OpSetContact:         setHandler(OpSetContact, session.Directory.SetContact),
	OpSetAccountPassword: handleSetAccountPassword,
	OpSetAccountUnlock:   handleSetAccountUnlock,

	OpAddGroupMember:    memberHandler(OpAddGroupMember, session.Directory.AddGroupMember),
	OpRemoveGroupMember: memberHandler(OpRemoveGroupMember, session.Directory.RemoveGroupMember),

	OpMoveObject:   handleMoveObject,
	OpRenameObject: handleRenameObject,

	OpNewUser:    handleNewUser,
	OpNewGroup:   handleNewGroup,
	OpNewContact: handleNewContact,

	OpRemoveObject:   handleRemoveObject,
	OpRemoveUser:     removeHandler(OpRemoveUser, session.Directory.RemoveUser),
	OpRemoveGroup:    removeHandler(OpRemoveGroup, session.Directory.RemoveGroup),
	OpRemoveComputer: removeHandler(OpRemoveComputer, session.Directory.RemoveComputer),
	OpRemoveContact:  removeHandler(OpRemoveContact, session.Directory.RemoveContact),
}

// Dispatch runs the named operation. Unknown names are a Validation
// error; nothing is looked up by reflection.
func Dispatch(dir session.Directory, op string, p Params) (any, error) {
	h, ok := handlers[op]
	if !ok {
		return nil, dserr.New("relay", dserr.KindValidation, "unknown operation %q", op)
	}
	return h(dir, p)
}

func queryParams(op string, p Params) (session.Query, error) {
	var q session.Query
	id, err := p.identity(op, "identity")
	if err != nil {
		return q, err
	}
	filter, err := p.str(op, "ldap_filter")
	if err != nil {
		return q, err
	}
	properties, err := p.strings(op, "properties")
	if err != nil {
		return q, err
	}
	scope, err := scopeParam(op, p)
	if err != nil {
		return q, err
	}
	return session.Query{Identity: id, Filter: filter, Properties: properties, Scope: scope}, nil
}

func getHandler(get func(session.Directory, session.Query) ([]*dsobj.Object, error)) Handler {
	return func(dir session.Directory, p Params) (any, error) {
		q, err := queryParams("get", p)
		if err != nil {
			return nil, err
		}
		return get(dir, q)
	}
}

func handleGetObject(dir session.Directory, p Params) (any, error) {
	const op = OpGetObject
	q, err := queryParams(op, p)
	if err != nil {
		return nil, err
	}
	kind, err := objectKind(op, p, identity.KindObject)
	if err != nil {
		return nil, err
	}
	switch kind {
	case identity.KindUser:
		return dir.GetUser(q)
	case identity.KindGroup:
		return dir.GetGroup(q)
	case identity.KindComputer:
		return dir.GetComputer(q)
	case identity.KindContact:
		return dir.GetContact(q)
	default:
		return dir.GetObject(q)
	}
}

func handleGetGroupMember(dir session.Directory, p Params) (any, error) {
	id, err := p.requiredIdentity(OpGetGroupMember)
	if err != nil {
		return nil, err
	}
	return dir.GetGroupMember(id)
}

func attributeOps(op string, p Params) (session.AttributeOps, error) {
	var ops session.AttributeOps
	var err error
	if ops.Remove, err = p.attrMap(op, "remove"); err != nil {
		return ops, err
	}
	if ops.Add, err = p.attrMap(op, "add"); err != nil {
		return ops, err
	}
	if ops.Replace, err = p.attrMap(op, "replace"); err != nil {
		return ops, err
	}
	if ops.Clear, err = p.strings(op, "clear"); err != nil {
		return ops, err
	}
	return ops, nil
}

func objectChanges(op string, p Params) (session.ObjectChanges, error) {
	var c session.ObjectChanges
	var err error
	if c.DisplayName, err = p.strPtr(op, "display_name"); err != nil {
		return c, err
	}
	if c.Description, err = p.strPtr(op, "description"); err != nil {
		return c, err
	}
	return c, nil
}

func setHandler(op string, set func(session.Directory, string, session.AttributeOps, session.ObjectChanges) error) Handler {
	return func(dir session.Directory, p Params) (any, error) {
		id, err := p.requiredIdentity(op)
		if err != nil {
			return nil, err
		}
		ops, err := attributeOps(op, p)
		if err != nil {
			return nil, err
		}
		changes, err := objectChanges(op, p)
		if err != nil {
			return nil, err
		}
		return nil, set(dir, id, ops, changes)
	}
}

func handleSetUser(dir session.Directory, p Params) (any, error) {
	const op = OpSetUser
	id, err := p.requiredIdentity(op)
	if err != nil {
		return nil, err
	}
	ops, err := attributeOps(op, p)
	if err != nil {
		return nil, err
	}
	base, err := objectChanges(op, p)
	if err != nil {
		return nil, err
	}
	changes := session.UserChanges{ObjectChanges: base}
	if changes.SAMAccountName, err = p.strPtr(op, "sam_account_name"); err != nil {
		return nil, err
	}
	if changes.UserPrincipalName, err = p.strPtr(op, "user_principal_name"); err != nil {
		return nil, err
	}
	if changes.Enabled, err = p.boolPtr(op, "enabled"); err != nil {
		return nil, err
	}
	if changes.PasswordNeverExpires, err = p.boolPtr(op, "password_never_expires"); err != nil {
		return nil, err
	}
	if changes.AccountNotDelegated, err = p.boolPtr(op, "account_not_delegated"); err != nil {
		return nil, err
	}
	if changes.ChangePasswordAtLogon, err = p.boolPtr(op, "change_password_at_logon"); err != nil {
		return nil, err
	}
	if changes.AccountExpires, err = p.expiry(op, "account_expiration_date"); err != nil {
		return nil, err
	}
	return nil, dir.SetUser(id, ops, changes)
}

func handleSetGroup(dir session.Directory, p Params) (any, error) {
	const op = OpSetGroup
	id, err := p.requiredIdentity(op)
	if err != nil {
		return nil, err
	}
	ops, err := attributeOps(op, p)
	if err != nil {
		return nil, err
	}
	base, err := objectChanges(op, p)
	if err != nil {
		return nil, err
	}
	changes := session.GroupChanges{ObjectChanges: base}
	if changes.SAMAccountName, err = p.strPtr(op, "sam_account_name"); err != nil {
		return nil, err
	}
	if changes.GroupScope, err = p.str(op, "group_scope"); err != nil {
		return nil, err
	}
	if changes.GroupCategory, err = p.str(op, "group_category"); err != nil {
		return nil, err
	}
	return nil, dir.SetGroup(id, ops, changes)
}

func handleSetAccountPassword(dir session.Directory, p Params) (any, error) {
	const op = OpSetAccountPassword
	id, err := p.requiredIdentity(op)
	if err != nil {
		return nil, err
	}
	password, err := p.requiredStr(op, "account_password")
	if err != nil {
		return nil, err
	}
	return nil, dir.SetAccountPassword(id, password)
}

func handleSetAccountUnlock(dir session.Directory, p Params) (any, error) {
	id, err := p.requiredIdentity(OpSetAccountUnlock)
	if err != nil {
		return nil, err
	}
	return nil, dir.SetAccountUnlock(id)
}

func memberHandler(op string, apply func(session.Directory, string, []session.MemberRef) error) Handler {
	return func(dir session.Directory, p Params) (any, error) {
		id, err := p.requiredIdentity(op)
		if err != nil {
			return nil, err
		}
		members, err := p.members(op, "members")
		if err != nil {
			return nil, err
		}
		if members == nil {
			return nil, dserr.New(op, dserr.KindValidation, "parameter \"members\" is required")
		}
		return nil, apply(dir, id, members)
	}
}

func handleMoveObject(dir session.Directory, p Params) (any, error) {
	const op = OpMoveObject
	id, err := p.requiredIdentity(op)
	if err != nil {
		return nil, err
	}
	target, err := p.requiredStr(op, "target_path")
	if err != nil {
		return nil, err
	}
	return nil, dir.MoveObject(id, target)
}

func handleRenameObject(dir session.Directory, p Params) (any, error) {
	const op = OpRenameObject
	id, err := p.requiredIdentity(op)
	if err != nil {
		return nil, err
	}
	newName, err := p.requiredStr(op, "new_name")
	if err != nil {
		return nil, err
	}
	return nil, dir.RenameObject(id, newName)
}

func handleNewUser(dir session.Directory, p Params) (any, error) {
	const op = OpNewUser
	var np session.NewUserParams
	var err error
	if np.Path, err = p.requiredStr(op, "path"); err != nil {
		return nil, err
	}
	if np.Name, err = p.requiredStr(op, "name"); err != nil {
		return nil, err
	}
	if np.SAMAccountName, err = p.str(op, "sam_account_name"); err != nil {
		return nil, err
	}
	if np.AccountPassword, err = p.str(op, "account_password"); err != nil {
		return nil, err
	}
	if np.DisplayName, err = p.str(op, "display_name"); err != nil {
		return nil, err
	}
	if np.UserPrincipalName, err = p.str(op, "user_principal_name"); err != nil {
		return nil, err
	}
	if np.Enabled, err = p.boolPtr(op, "enabled"); err != nil {
		return nil, err
	}
	if np.PasswordNeverExpires, err = p.boolPtr(op, "password_never_expires"); err != nil {
		return nil, err
	}
	if np.AccountNotDelegated, err = p.boolPtr(op, "account_not_delegated"); err != nil {
		return nil, err
	}
	if np.ChangePasswordAtLogon, err = p.boolPtr(op, "change_password_at_logon"); err != nil {
		return nil, err
	}
	if np.AccountExpires, err = p.expiry(op, "account_expiration_date"); err != nil {
		return nil, err
	}
	if np.OtherAttributes, err = p.attrMap(op, "other_attributes"); err != nil {
		return nil, err
	}
	return nil, dir.NewUser(np)
}

func handleNewGroup(dir session.Directory, p Params) (any, error) {
	const op = OpNewGroup
	var np session.NewGroupParams
	var err error
	if np.Path, err = p.requiredStr(op, "path"); err != nil {
		return nil, err
	}
	if np.Name, err = p.requiredStr(op, "name"); err != nil {
		return nil, err
	}
	if np.SAMAccountName, err = p.str(op, "sam_account_name"); err != nil {
		return nil, err
	}
	if np.DisplayName, err = p.str(op, "display_name"); err != nil {
		return nil, err
	}
	if np.GroupScope, err = p.str(op, "group_scope"); err != nil {
		return nil, err
	}
	if np.GroupCategory, err = p.str(op, "group_category"); err != nil {
		return nil, err
	}
	if np.OtherAttributes, err = p.attrMap(op, "other_attributes"); err != nil {
		return nil, err
	}
	return nil, dir.NewGroup(np)
}

func handleNewContact(dir session.Directory, p Params) (any, error) {
	const op = OpNewContact
	var np session.NewContactParams
	var err error
	if np.Path, err = p.requiredStr(op, "path"); err != nil {
		return nil, err
	}
	if np.Name, err = p.requiredStr(op, "name"); err != nil {
		return nil, err
	}
	if np.DisplayName, err = p.str(op, "display_name"); err != nil {
		return nil, err
	}
	if np.OtherAttributes, err = p.attrMap(op, "other_attributes"); err != nil {
		return nil, err
	}
	return nil, dir.NewContact(np)
}

func handleRemoveObject(dir session.Directory, p Params) (any, error) {
	const op = OpRemoveObject
	id, err := p.requiredIdentity(op)
	if err != nil {
		return nil, err
	}
	kind, err := objectKind(op, p, identity.KindObject)
	if err != nil {
		return nil, err
	}
	return nil, dir.RemoveObject(id, kind)
}

func removeHandler(op string, remove func(session.Directory, string) error) Handler {
	return func(dir session.Directory, p Params) (any, error) {
		id, err := p.requiredIdentity(op)
		if err != nil {
			return nil, err
		}
		return nil, remove(dir, id)
	}
}

func objectKind(op string, p Params, fallback identity.Kind) (identity.Kind, error) {
	s, err := p.str(op, "type_object")
	if err != nil {
		return "", err
	}
	if s == "" {
		return fallback, nil
	}
	switch strings.ToLower(s) {
	case "object", "user", "group", "computer", "contact":
		return identity.Kind(strings.ToLower(s)), nil
	default:
		return "", dserr.New(op, dserr.KindValidation, "unknown type_object %q", s)
	}
}
