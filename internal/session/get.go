package session

import (
	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/dsobj"
	"github.com/dsbridge/dsbridge/internal/identity"
)

// Query selects objects either by a unique identity or by an LDAP filter,
// never both. Identity lookups must match exactly one object.
type Query struct {
	Identity   string
	Filter     string
	Properties []string
	Scope      Scope
}

func (s *Session) getObjects(q Query, kind identity.Kind) ([]*dsobj.Object, error) {
	op := "get_" + string(kind)
	switch {
	case q.Identity != "" && q.Filter != "":
		return nil, dserr.New(op, dserr.KindValidation, "identity and filter are mutually exclusive")
	case q.Identity != "":
		obj, err := s.searchOne(q.Identity, kind, q.Properties)
		if err != nil {
			return nil, err
		}
		return []*dsobj.Object{obj}, nil
	case q.Filter != "":
		return s.Search(q.Filter, kind, SearchOptions{Properties: q.Properties, Scope: q.Scope})
	}
	return nil, dserr.New(op, dserr.KindValidation, "either identity or filter is required")
}

// GetObject looks up directory objects of any class.
func (s *Session) GetObject(q Query) ([]*dsobj.Object, error) {
	return s.getObjects(q, identity.KindObject)
}

// GetUser looks up user objects.
func (s *Session) GetUser(q Query) ([]*dsobj.Object, error) {
	return s.getObjects(q, identity.KindUser)
}

// GetGroup looks up group objects.
func (s *Session) GetGroup(q Query) ([]*dsobj.Object, error) {
	return s.getObjects(q, identity.KindGroup)
}

// GetComputer looks up computer objects.
func (s *Session) GetComputer(q Query) ([]*dsobj.Object, error) {
	return s.getObjects(q, identity.KindComputer)
}

// GetContact looks up contact objects.
func (s *Session) GetContact(q Query) ([]*dsobj.Object, error) {
	return s.getObjects(q, identity.KindContact)
}

// GetGroupMember returns the members of a group with the member default
// attribute set.
func (s *Session) GetGroupMember(id string) ([]*dsobj.Object, error) {
	group, err := s.searchOne(id, identity.KindGroup, nil)
	if err != nil {
		return nil, err
	}
	dn := group.GetString("distinguishedName")

	// Search escapes clause values itself, so the DN goes in raw.
	return s.Search(
		"(memberOf="+dn+")",
		identity.KindMember,
		SearchOptions{Properties: identity.DefaultProperties(identity.KindMember)},
	)
}
