package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsbridge/dsbridge/internal/dsobj"
)

// binarySID builds the wire form of S-1-5-21-1-2-3-4.
func binarySID() []byte {
	return []byte{
		1, 5, // revision, sub-authority count
		0, 0, 0, 0, 0, 5, // authority 5, big-endian 48-bit
		21, 0, 0, 0, // sub-authorities, little-endian
		1, 0, 0, 0,
		2, 0, 0, 0,
		3, 0, 0, 0,
		4, 0, 0, 0,
	}
}

func TestDecodeStrings(t *testing.T) {
	got, err := Decode("sAMAccountName", [][]byte{[]byte("jdoe")})
	require.NoError(t, err)
	assert.Equal(t, "jdoe", got)

	got, err = Decode("proxyAddresses", [][]byte{[]byte("SMTP:a@b"), []byte("smtp:c@d")})
	require.NoError(t, err)
	assert.Equal(t, []any{"SMTP:a@b", "smtp:c@d"}, got)
}

func TestDecodeBool(t *testing.T) {
	got, err := Decode("showInAdvancedViewOnly", [][]byte{[]byte("TRUE")})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	_, err = Decode("showInAdvancedViewOnly", [][]byte{[]byte("yes")})
	require.Error(t, err)
}

func TestDecodeInteger(t *testing.T) {
	got, err := Decode("userAccountControl", [][]byte{[]byte("514")})
	require.NoError(t, err)
	assert.Equal(t, int64(514), got)

	got, err = Decode("groupType", [][]byte{[]byte("-2147483646")})
	require.NoError(t, err)
	assert.Equal(t, int64(-2147483646), got)
}

func TestDecodeGeneralizedTime(t *testing.T) {
	got, err := Decode("whenCreated", [][]byte{[]byte("20240916132547.0Z")})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.September, 16, 13, 25, 47, 0, time.UTC), got)
}

func TestDecodeFiletime(t *testing.T) {
	got, err := Decode("pwdLastSet", [][]byte{[]byte("135509760000000000")})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, time.June, 1, 0, 0, 0, 0, time.UTC), got)

	for _, sentinel := range []string{"0", "9223372036850000000", "9223372036854775807", "-9223372036854775808"} {
		got, err := Decode("accountExpires", [][]byte{[]byte(sentinel)})
		require.NoError(t, err)
		_, isInt := got.(int64)
		assert.True(t, isInt, "sentinel %s must stay numeric", sentinel)
	}
}

func TestDecodeSID(t *testing.T) {
	got, err := Decode("objectSid", [][]byte{binarySID()})
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-21-1-2-3-4", got)

	_, err = Decode("objectSid", [][]byte{{1, 5, 0}})
	require.Error(t, err)
}

func TestDecodeGUID(t *testing.T) {
	guid := "12345678-9abc-def0-1234-56789abcdef0"
	b, err := GUIDToBytes(guid)
	require.NoError(t, err)
	// first three groups are byte-swapped on the wire
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12, 0xbc, 0x9a, 0xf0, 0xde}, b[:8])

	got, err := Decode("objectGUID", [][]byte{b})
	require.NoError(t, err)
	assert.Equal(t, guid, got)
}

func TestGUIDFilterValue(t *testing.T) {
	v, err := GUIDFilterValue("12345678-9abc-def0-1234-56789abcdef0")
	require.NoError(t, err)
	assert.Equal(t, `\78\56\34\12\bc\9a\f0\de\12\34\56\78\9a\bc\de\f0`, v)

	_, err = GUIDFilterValue("not-a-guid")
	require.Error(t, err)
}

func TestDecodeObjectClass(t *testing.T) {
	got, err := Decode("objectClass", [][]byte{
		[]byte("top"), []byte("person"), []byte("organizationalPerson"), []byte("user"),
	})
	require.NoError(t, err)
	assert.Equal(t, "user", got)

	got, err = Decode("objectClass", [][]byte{[]byte("top"), []byte("printQueue")})
	require.NoError(t, err)
	assert.Equal(t, []any{"top", "printQueue"}, got)
}

func TestDecodeUnknownFallsBackToHex(t *testing.T) {
	got, err := Decode("nTSecurityDescriptor", [][]byte{{0xde, 0xad, 0xbe, 0xef}})
	require.NoError(t, err)
	assert.Equal(t, []any{"hex:deadbeef"}, got)
}

func TestDerivedBase(t *testing.T) {
	base, ok := DerivedBase("enabled")
	require.True(t, ok)
	assert.Equal(t, "userAccountControl", base)

	base, ok = DerivedBase("GroupScope")
	require.True(t, ok)
	assert.Equal(t, "groupType", base)

	base, ok = DerivedBase("ChangePasswordAtLogon")
	require.True(t, ok)
	assert.Equal(t, "pwdLastSet", base)

	_, ok = DerivedBase("sAMAccountName")
	assert.False(t, ok)
}

func TestApplyDerived(t *testing.T) {
	obj := dsobj.New()
	obj.Set("userAccountControl", int64(0x10202))
	obj.Set("groupType", int64(-2147483646))
	obj.Set("pwdLastSet", int64(0))

	require.NoError(t, ApplyDerived(obj, nil, true))

	enabled, _ := obj.Get("Enabled")
	assert.Equal(t, false, enabled)
	pwdNever, _ := obj.Get("PasswordNeverExpires")
	assert.Equal(t, true, pwdNever)
	notDeleg, _ := obj.Get("AccountNotDelegated")
	assert.Equal(t, false, notDeleg)
	scope, _ := obj.Get("GroupScope")
	assert.Equal(t, "Global", scope)
	category, _ := obj.Get("GroupCategory")
	assert.Equal(t, "Security", category)
	change, _ := obj.Get("ChangePasswordAtLogon")
	assert.Equal(t, true, change)
}

func TestApplyDerivedStableOrder(t *testing.T) {
	obj := dsobj.New()
	obj.Set("userAccountControl", int64(0x200))
	obj.Set("groupType", int64(-2147483646))
	obj.Set("pwdLastSet", int64(0))

	require.NoError(t, ApplyDerived(obj, nil, true))

	keys := obj.Keys()
	require.Len(t, keys, 10)
	assert.Equal(t, []string{
		"Enabled",
		"PasswordNeverExpires",
		"AccountNotDelegated",
		"PasswordNotRequired",
		"GroupScope",
		"GroupCategory",
		"ChangePasswordAtLogon",
	}, keys[3:])
}

func TestApplyDerivedRequestedOnly(t *testing.T) {
	obj := dsobj.New()
	obj.Set("userAccountControl", int64(0x200))

	require.NoError(t, ApplyDerived(obj, []string{"enabled"}, false))

	enabled, ok := obj.Get("Enabled")
	require.True(t, ok)
	assert.Equal(t, true, enabled)
	assert.False(t, obj.Has("PasswordNeverExpires"))
}

func TestLookup(t *testing.T) {
	meta, ok := Lookup("samaccountname")
	require.True(t, ok)
	assert.Equal(t, SyntaxUnicode, meta.Syntax)
	assert.True(t, meta.SingleValued)

	meta, ok = Lookup("member")
	require.True(t, ok)
	assert.False(t, meta.SingleValued)

	_, ok = Lookup("noSuchAttribute")
	assert.False(t, ok)
}
