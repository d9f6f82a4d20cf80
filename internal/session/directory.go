package session

import (
	"github.com/dsbridge/dsbridge/internal/dsobj"
	"github.com/dsbridge/dsbridge/internal/identity"
)

// Directory is the full operation surface of a session. The relay dispatches
// against this interface so tests can substitute a fake directory.
type Directory interface {
	GetObject(q Query) ([]*dsobj.Object, error)
	GetUser(q Query) ([]*dsobj.Object, error)
	GetGroup(q Query) ([]*dsobj.Object, error)
	GetComputer(q Query) ([]*dsobj.Object, error)
	GetContact(q Query) ([]*dsobj.Object, error)
	GetGroupMember(id string) ([]*dsobj.Object, error)

	SetObject(id string, ops AttributeOps, changes ObjectChanges) error
	SetUser(id string, ops AttributeOps, changes UserChanges) error
	SetGroup(id string, ops AttributeOps, changes GroupChanges) error
	SetComputer(id string, ops AttributeOps, changes ObjectChanges) error
	SetContact(id string, ops AttributeOps, changes ObjectChanges) error
	SetAccountPassword(id, password string) error
	SetAccountUnlock(id string) error

	AddGroupMember(groupID string, members []MemberRef) error
	RemoveGroupMember(groupID string, members []MemberRef) error

	MoveObject(id, targetPath string) error
	RenameObject(id, newName string) error

	NewUser(p NewUserParams) error
	NewGroup(p NewGroupParams) error
	NewContact(p NewContactParams) error

	RemoveObject(id string, kind identity.Kind) error
	RemoveUser(id string) error
	RemoveGroup(id string) error
	RemoveComputer(id string) error
	RemoveContact(id string) error

	Close() error
}

var _ Directory = (*Session)(nil)
