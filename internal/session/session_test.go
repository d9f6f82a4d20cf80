package session

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/identity"
)

type fakeConn struct {
	searchFn   func(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	modifyErr  error
	searches   []*ldap.SearchRequest
	modifies   []*ldap.ModifyRequest
	adds       []*ldap.AddRequest
	dels       []*ldap.DelRequest
	modifyDNs  []*ldap.ModifyDNRequest
	unbindDone bool
}

func (f *fakeConn) Bind(string, string) error { return nil }

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.searches = append(f.searches, req)
	if f.searchFn == nil {
		return &ldap.SearchResult{}, nil
	}
	return f.searchFn(req)
}

func (f *fakeConn) Modify(req *ldap.ModifyRequest) error {
	f.modifies = append(f.modifies, req)
	return f.modifyErr
}

func (f *fakeConn) Add(req *ldap.AddRequest) error {
	f.adds = append(f.adds, req)
	return nil
}

func (f *fakeConn) Del(req *ldap.DelRequest) error {
	f.dels = append(f.dels, req)
	return nil
}

func (f *fakeConn) ModifyDN(req *ldap.ModifyDNRequest) error {
	f.modifyDNs = append(f.modifyDNs, req)
	return nil
}

func (f *fakeConn) Unbind() error {
	f.unbindDone = true
	return nil
}

func newTestSession(conn *fakeConn) *Session {
	return &Session{conn: conn, log: NopLogger{}, base: "DC=example,DC=com"}
}

func userEntry(dn, sam string, uac string) *ldap.Entry {
	return ldap.NewEntry(dn, map[string][]string{
		"distinguishedName":  {dn},
		"objectClass":        {"top", "person", "organizationalPerson", "user"},
		"sAMAccountName":     {sam},
		"userAccountControl": {uac},
	})
}

func singleResult(entries ...*ldap.Entry) func(*ldap.SearchRequest) (*ldap.SearchResult, error) {
	return func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
		return &ldap.SearchResult{Entries: entries}, nil
	}
}

func TestEscapeFilterValues(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   string
	}{
		{
			name:   "plain clause untouched",
			filter: "(sAMAccountName=jdoe)",
			want:   "(sAMAccountName=jdoe)",
		},
		{
			name:   "wildcard survives escaping",
			filter: "(name=adm*)",
			want:   "(name=adm*)",
		},
		{
			name:   "metacharacters escaped",
			filter: `(description=a\b)`,
			want:   `(description=a\5cb)`,
		},
		{
			name:   "nested filter handled clause by clause",
			filter: "(&(objectClass=user)(name=j*))",
			want:   "(&(objectClass=user)(name=j*))",
		},
		{
			name:   "guid clause becomes binary octets",
			filter: "(objectGUID=12345678-9abc-def0-1234-56789abcdef0)",
			want:   `(objectGUID=\78\56\34\12\bc\9a\f0\de\12\34\56\78\9a\bc\de\f0)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EscapeFilterValues(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrepareProperties(t *testing.T) {
	t.Run("defaults when empty", func(t *testing.T) {
		props, effective, shadow, wildcard, err := prepareProperties(identity.KindUser, nil)
		require.NoError(t, err)
		assert.False(t, wildcard)
		assert.Equal(t, identity.DefaultProperties(identity.KindUser), effective)
		// the default set names Enabled, so its base rides along
		assert.Contains(t, props, "userAccountControl")
		assert.Equal(t, []string{"userAccountControl"}, shadow)
	})

	t.Run("defaults merge into explicit requests", func(t *testing.T) {
		props, effective, _, _, err := prepareProperties(identity.KindUser, []string{"mail"})
		require.NoError(t, err)
		assert.Equal(t, "mail", effective[0])
		for _, def := range identity.DefaultProperties(identity.KindUser) {
			assert.Contains(t, effective, def)
		}
		assert.Contains(t, props, "mail")
		assert.Contains(t, props, "sAMAccountName")
	})

	t.Run("forces dn and objectClass", func(t *testing.T) {
		props, _, _, _, err := prepareProperties(identity.Kind("widget"), []string{"mail"})
		require.NoError(t, err)
		assert.Contains(t, props, "distinguishedName")
	})

	t.Run("derived attribute shadow-fetches its base", func(t *testing.T) {
		props, _, shadow, _, err := prepareProperties(identity.KindUser, []string{"Enabled"})
		require.NoError(t, err)
		assert.Contains(t, props, "userAccountControl")
		assert.Equal(t, []string{"userAccountControl"}, shadow)
	})

	t.Run("explicit base is not shadowed", func(t *testing.T) {
		_, _, shadow, _, err := prepareProperties(identity.KindUser, []string{"Enabled", "userAccountControl"})
		require.NoError(t, err)
		assert.Empty(t, shadow)
	})

	t.Run("group defaults shadow-fetch groupType", func(t *testing.T) {
		props, _, shadow, _, err := prepareProperties(identity.KindGroup, nil)
		require.NoError(t, err)
		assert.Contains(t, props, "groupType")
		assert.Equal(t, []string{"groupType"}, shadow)
	})

	t.Run("lone wildcard", func(t *testing.T) {
		props, _, _, wildcard, err := prepareProperties(identity.KindUser, []string{"*"})
		require.NoError(t, err)
		assert.True(t, wildcard)
		assert.Equal(t, []string{"*"}, props)
	})

	t.Run("wildcard mixed with names rejected", func(t *testing.T) {
		_, _, _, _, err := prepareProperties(identity.KindUser, []string{"*", "mail"})
		require.Error(t, err)
	})
}

func TestSearchPaging(t *testing.T) {
	conn := &fakeConn{}
	page := 0
	conn.searchFn = func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
		page++
		ctrl := ldap.NewControlPaging(PageSize)
		if page == 1 {
			ctrl.SetCookie([]byte("next"))
			return &ldap.SearchResult{
				Entries:  []*ldap.Entry{userEntry("CN=a,DC=example,DC=com", "a", "512")},
				Controls: []ldap.Control{ctrl},
			}, nil
		}
		return &ldap.SearchResult{
			Entries:  []*ldap.Entry{userEntry("CN=b,DC=example,DC=com", "b", "512")},
			Controls: []ldap.Control{ctrl},
		}, nil
	}

	s := newTestSession(conn)
	results, err := s.Search("(name=*)", identity.KindUser, SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, page)

	// the kind filter wraps the caller's filter
	assert.True(t, strings.HasPrefix(conn.searches[0].Filter, "(&(&(objectCategory=person)(objectClass=user))"))
}

func TestSearchOneErrors(t *testing.T) {
	conn := &fakeConn{searchFn: singleResult()}
	s := newTestSession(conn)

	_, err := s.GetUser(Query{Identity: "jdoe"})
	require.Error(t, err)
	assert.True(t, dserr.IsNotFound(err))

	conn.searchFn = singleResult(
		userEntry("CN=a,DC=example,DC=com", "jdoe", "512"),
		userEntry("CN=b,DC=example,DC=com", "jdoe", "512"),
	)
	_, err = s.GetUser(Query{Identity: "jdoe"})
	require.Error(t, err)
	assert.True(t, dserr.IsAmbiguous(err))

	_, err = s.GetUser(Query{Identity: "jdoe", Filter: "(name=x)"})
	require.Error(t, err)
	assert.True(t, dserr.IsValidation(err))

	_, err = s.GetUser(Query{})
	require.Error(t, err)
	assert.True(t, dserr.IsValidation(err))
}

func TestSearchOneRejectsWildcard(t *testing.T) {
	s := newTestSession(&fakeConn{})
	_, err := s.GetUser(Query{Identity: "adm*"})
	require.Error(t, err)
	assert.True(t, dserr.IsValidation(err))
}

func TestGetUserDerivesEnabled(t *testing.T) {
	conn := &fakeConn{searchFn: singleResult(userEntry("CN=a,DC=example,DC=com", "jdoe", "514"))}
	s := newTestSession(conn)

	results, err := s.GetUser(Query{Identity: "jdoe", Properties: []string{"sAMAccountName", "Enabled"}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	enabled, ok := results[0].Get("Enabled")
	require.True(t, ok)
	assert.Equal(t, false, enabled)
	// the shadow-fetched base attribute is stripped from the result
	assert.False(t, results[0].Has("userAccountControl"))
}

func TestGetUserDefaultPropertiesDeriveEnabled(t *testing.T) {
	conn := &fakeConn{searchFn: singleResult(userEntry("CN=a,DC=example,DC=com", "jdoe", "514"))}
	s := newTestSession(conn)

	results, err := s.GetUser(Query{Identity: "jdoe"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// the Enabled promised by the default set forces userAccountControl
	// onto the wire
	require.NotEmpty(t, conn.searches)
	assert.Contains(t, conn.searches[0].Attributes, "userAccountControl")

	enabled, ok := results[0].Get("Enabled")
	require.True(t, ok)
	assert.Equal(t, false, enabled)
	assert.False(t, results[0].Has("userAccountControl"))
}

func TestGetUserExplicitPropertiesKeepDefaults(t *testing.T) {
	conn := &fakeConn{searchFn: singleResult(userEntry("CN=a,DC=example,DC=com", "jdoe", "512"))}
	s := newTestSession(conn)

	results, err := s.GetUser(Query{Identity: "jdoe", Properties: []string{"mail"}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NotEmpty(t, conn.searches)
	assert.Contains(t, conn.searches[0].Attributes, "mail")
	assert.Contains(t, conn.searches[0].Attributes, "sAMAccountName")

	assert.Equal(t, "jdoe", results[0].GetString("sAMAccountName"))
	enabled, ok := results[0].Get("Enabled")
	require.True(t, ok)
	assert.Equal(t, true, enabled)
}

func TestRangedAttributeRetrieval(t *testing.T) {
	groupDN := "CN=big,DC=example,DC=com"

	memberDNs := func(from, to int) []string {
		var out []string
		for i := from; i < to; i++ {
			out = append(out, fmt.Sprintf("CN=u%d,DC=example,DC=com", i))
		}
		return out
	}

	conn := &fakeConn{}
	conn.searchFn = func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
		if req.BaseDN == groupDN {
			// ranged follow-ups against the object itself
			switch {
			case strings.Contains(req.Attributes[0], ";range=1500-"):
				return singleResult(ldap.NewEntry(groupDN, map[string][]string{
					"member;range=1500-2999": memberDNs(1500, 3000),
				}))(req)
			case strings.Contains(req.Attributes[0], ";range=3000-"):
				return singleResult(ldap.NewEntry(groupDN, map[string][]string{
					"member;range=3000-*": memberDNs(3000, 3035),
				}))(req)
			}
			return singleResult()(req)
		}
		return singleResult(ldap.NewEntry(groupDN, map[string][]string{
			"distinguishedName":   {groupDN},
			"objectClass":         {"top", "group"},
			"member;range=0-1499": memberDNs(0, 1500),
		}))(req)
	}

	s := newTestSession(conn)
	results, err := s.GetGroup(Query{Identity: "big", Properties: []string{"member"}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	members, ok := results[0].Get("member")
	require.True(t, ok)
	assert.Len(t, members.([]any), 3035)
}

func TestSetUserReadModifyWrite(t *testing.T) {
	dn := "CN=a,DC=example,DC=com"
	conn := &fakeConn{searchFn: singleResult(userEntry(dn, "jdoe", "514"))}
	s := newTestSession(conn)

	enabled := true
	require.NoError(t, s.SetUser("jdoe", AttributeOps{}, UserChanges{Enabled: &enabled}))

	require.Len(t, conn.modifies, 1)
	req := conn.modifies[0]
	assert.Equal(t, dn, req.DN)
	require.Len(t, req.Changes, 1)
	change := req.Changes[0]
	assert.Equal(t, uint(ldap.ReplaceAttribute), change.Operation)
	assert.Equal(t, "userAccountControl", change.Modification.Type)
	assert.Equal(t, []string{"512"}, change.Modification.Vals)
}

func TestSetUserRawAndManagedCollision(t *testing.T) {
	conn := &fakeConn{searchFn: singleResult(userEntry("CN=a,DC=example,DC=com", "jdoe", "512"))}
	s := newTestSession(conn)

	enabled := false
	err := s.SetUser("jdoe",
		AttributeOps{Replace: map[string][]string{"userAccountControl": {"66050"}}},
		UserChanges{Enabled: &enabled})
	require.Error(t, err)
	assert.True(t, dserr.IsValidation(err))
	assert.Empty(t, conn.modifies)
}

func TestSetUserNoChanges(t *testing.T) {
	conn := &fakeConn{searchFn: singleResult(userEntry("CN=a,DC=example,DC=com", "jdoe", "512"))}
	s := newTestSession(conn)

	err := s.SetUser("jdoe", AttributeOps{}, UserChanges{})
	require.Error(t, err)
	assert.True(t, dserr.IsValidation(err))
}

func TestSetUserRejectsBareUPN(t *testing.T) {
	s := newTestSession(&fakeConn{})
	upn := "jdoe"
	err := s.SetUser("jdoe", AttributeOps{}, UserChanges{UserPrincipalName: &upn})
	require.Error(t, err)
	assert.True(t, dserr.IsValidation(err))
}

func TestSetAccountPassword(t *testing.T) {
	dn := "CN=a,DC=example,DC=com"
	conn := &fakeConn{searchFn: singleResult(userEntry(dn, "jdoe", "544"))}
	s := newTestSession(conn)

	require.NoError(t, s.SetAccountPassword("jdoe", "pw"))

	require.Len(t, conn.modifies, 1)
	var sawPassword, sawUAC bool
	for _, change := range conn.modifies[0].Changes {
		switch change.Modification.Type {
		case "unicodePwd":
			sawPassword = true
			// quoted UTF-16LE encoding of "pw"
			assert.Equal(t, []string{"\"\x00p\x00w\x00\"\x00"}, change.Modification.Vals)
		case "userAccountControl":
			sawUAC = true
			// PASSWD_NOTREQD (0x20) cleared from 544
			assert.Equal(t, []string{"512"}, change.Modification.Vals)
		}
	}
	assert.True(t, sawPassword)
	assert.True(t, sawUAC)
}

func TestSetAccountUnlock(t *testing.T) {
	dn := "CN=a,DC=example,DC=com"
	conn := &fakeConn{searchFn: singleResult(userEntry(dn, "jdoe", "512"))}
	s := newTestSession(conn)

	require.NoError(t, s.SetAccountUnlock("jdoe"))
	require.Len(t, conn.modifies, 1)
	change := conn.modifies[0].Changes[0]
	assert.Equal(t, "lockoutTime", change.Modification.Type)
	assert.Equal(t, []string{"0"}, change.Modification.Vals)
}

func TestDryRunSkipsWrites(t *testing.T) {
	conn := &fakeConn{searchFn: singleResult(userEntry("CN=a,DC=example,DC=com", "jdoe", "514"))}
	s := newTestSession(conn)
	s.dryRun = true

	enabled := true
	require.NoError(t, s.SetUser("jdoe", AttributeOps{}, UserChanges{Enabled: &enabled}))
	require.NoError(t, s.RemoveUser("jdoe"))
	assert.Empty(t, conn.modifies)
	assert.Empty(t, conn.dels)
}

func TestNewUser(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn)

	enabled := true
	change := true
	require.NoError(t, s.NewUser(NewUserParams{
		Path:                  "OU=Staff,DC=example,DC=com",
		Name:                  "John Doe",
		SAMAccountName:        "jdoe",
		AccountPassword:       "pw",
		DisplayName:           "John Doe",
		UserPrincipalName:     "jdoe@example.com",
		Enabled:               &enabled,
		ChangePasswordAtLogon: &change,
	}))

	require.Len(t, conn.adds, 1)
	req := conn.adds[0]
	assert.Equal(t, "CN=John Doe,OU=Staff,DC=example,DC=com", req.DN)

	byName := map[string][]string{}
	for _, attr := range req.Attributes {
		byName[attr.Type] = attr.Vals
	}
	assert.Equal(t, []string{"top", "person", "organizationalPerson", "user"}, byName["objectClass"])
	assert.Equal(t, []string{"John Doe"}, byName["cn"])
	assert.Equal(t, []string{"512"}, byName["userAccountControl"])
	assert.Equal(t, []string{"0"}, byName["pwdLastSet"])
	assert.Equal(t, []string{"jdoe"}, byName["sAMAccountName"])
	assert.Equal(t, []string{"\"\x00p\x00w\x00\"\x00"}, byName["unicodePwd"])
}

func TestNewUserOtherAttributeCollision(t *testing.T) {
	s := newTestSession(&fakeConn{})
	err := s.NewUser(NewUserParams{
		Path:            "OU=Staff,DC=example,DC=com",
		Name:            "John Doe",
		SAMAccountName:  "jdoe",
		AccountPassword: "pw",
		OtherAttributes: map[string][]string{"samaccountname": {"other"}},
	})
	require.Error(t, err)
	assert.True(t, dserr.IsValidation(err))
}

func TestNewGroupDefaults(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn)

	require.NoError(t, s.NewGroup(NewGroupParams{
		Path:           "OU=Groups,DC=example,DC=com",
		Name:           "ops",
		SAMAccountName: "ops",
	}))

	require.Len(t, conn.adds, 1)
	for _, attr := range conn.adds[0].Attributes {
		if attr.Type == "groupType" {
			// Global Security
			assert.Equal(t, []string{"-2147483646"}, attr.Vals)
		}
	}
}

func TestMoveObject(t *testing.T) {
	dn := "CN=John Doe,OU=Staff,DC=example,DC=com"
	conn := &fakeConn{searchFn: singleResult(ldap.NewEntry(dn, map[string][]string{
		"distinguishedName": {dn},
		"cn":                {"John Doe"},
	}))}
	s := newTestSession(conn)

	require.NoError(t, s.MoveObject(dn, "OU=Leavers,DC=example,DC=com"))
	require.Len(t, conn.modifyDNs, 1)
	req := conn.modifyDNs[0]
	assert.Equal(t, dn, req.DN)
	assert.Equal(t, "CN=John Doe", req.NewRDN)
	assert.Equal(t, "OU=Leavers,DC=example,DC=com", req.NewSuperior)
}

func TestRenameObject(t *testing.T) {
	dn := "CN=John Doe,OU=Staff,DC=example,DC=com"
	conn := &fakeConn{searchFn: singleResult(ldap.NewEntry(dn, map[string][]string{
		"distinguishedName": {dn},
		"cn":                {"John Doe"},
		"name":              {"John Doe"},
	}))}
	s := newTestSession(conn)

	require.NoError(t, s.RenameObject(dn, "Jane Doe"))
	require.Len(t, conn.modifyDNs, 1)
	req := conn.modifyDNs[0]
	assert.Equal(t, "CN=Jane Doe", req.NewRDN)
	assert.Equal(t, "", req.NewSuperior)
}

func TestRemoveObject(t *testing.T) {
	dn := "CN=a,DC=example,DC=com"
	conn := &fakeConn{searchFn: singleResult(userEntry(dn, "jdoe", "512"))}
	s := newTestSession(conn)

	require.NoError(t, s.RemoveUser("jdoe"))
	require.Len(t, conn.dels, 1)
	assert.Equal(t, dn, conn.dels[0].DN)
}

func TestAddGroupMemberIdempotent(t *testing.T) {
	groupDN := "CN=ops,DC=example,DC=com"
	conn := &fakeConn{
		searchFn: singleResult(ldap.NewEntry(groupDN, map[string][]string{
			"distinguishedName": {groupDN},
			"objectClass":       {"top", "group"},
		})),
		modifyErr: ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("entry already exists")),
	}
	s := newTestSession(conn)

	err := s.AddGroupMember("ops", []MemberRef{{DN: "CN=a,DC=example,DC=com"}})
	require.NoError(t, err)
	require.Len(t, conn.modifies, 1)
}

func TestRemoveGroupMemberIdempotent(t *testing.T) {
	groupDN := "CN=ops,DC=example,DC=com"
	conn := &fakeConn{
		searchFn: singleResult(ldap.NewEntry(groupDN, map[string][]string{
			"distinguishedName": {groupDN},
			"objectClass":       {"top", "group"},
		})),
		modifyErr: ldap.NewError(ldap.LDAPResultNoSuchAttribute, errors.New("no such attribute")),
	}
	s := newTestSession(conn)

	err := s.RemoveGroupMember("ops", []MemberRef{{DN: "CN=a,DC=example,DC=com"}})
	require.NoError(t, err)
}

func TestGroupMemberBaseWithoutDomainComponent(t *testing.T) {
	groupDN := "CN=ops,O=example"
	conn := &fakeConn{searchFn: singleResult(ldap.NewEntry(groupDN, map[string][]string{
		"distinguishedName": {groupDN},
		"objectClass":       {"top", "group"},
	}))}
	s := &Session{conn: conn, log: NopLogger{}, base: "O=example"}

	err := s.AddGroupMember("ops", []MemberRef{{DN: "CN=a,O=example"}})
	require.Error(t, err)
	assert.True(t, dserr.IsValidation(err))
	assert.Contains(t, err.Error(), "no domain component")
	assert.Empty(t, conn.modifies)
}

func TestCrossDomainMember(t *testing.T) {
	groupDN := "CN=ops,DC=example,DC=com"
	conn := &fakeConn{searchFn: singleResult(ldap.NewEntry(groupDN, map[string][]string{
		"distinguishedName": {groupDN},
		"objectClass":       {"top", "group"},
	}))}
	s := newTestSession(conn)

	// resolved foreign object routes through its security principal
	err := s.AddGroupMember("ops", []MemberRef{{
		DN:    "CN=b,DC=other,DC=org",
		SID:   "S-1-5-21-9-8-7-6",
		Class: "user",
	}})
	require.NoError(t, err)
	require.Len(t, conn.modifies, 1)
	change := conn.modifies[0].Changes[0]
	assert.Equal(t, []string{"CN=S-1-5-21-9-8-7-6,CN=ForeignSecurityPrincipals,dc=example,dc=com"},
		change.Modification.Vals)

	// a bare foreign DN cannot be resolved to a principal
	err = s.AddGroupMember("ops", []MemberRef{{DN: "CN=c,DC=other,DC=org"}})
	require.Error(t, err)
	assert.True(t, dserr.IsValidation(err))
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn)
	require.NoError(t, s.Close())
	assert.True(t, conn.unbindDone)
	require.NoError(t, s.Close())
}
