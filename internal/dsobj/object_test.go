package dsobj

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject_CasingPreserved(t *testing.T) {
	o := New()
	o.Set("Name", "first")
	o.Set("name", "second")

	assert.Equal(t, 1, o.Len())
	v, ok := o.Get("NAME")
	require.True(t, ok)
	assert.Equal(t, "second", v)
	assert.Equal(t, []string{"Name"}, o.Keys())
}

func TestObject_DeleteThenSetReplacesCasing(t *testing.T) {
	o := New()
	o.Set("Name", "first")
	o.Delete("NAME")
	o.Set("name", "second")

	assert.Equal(t, []string{"name"}, o.Keys())
	assert.Equal(t, "second", o.GetString("Name"))
}

func TestObject_InsertionOrder(t *testing.T) {
	o := New()
	o.Set("distinguishedName", "CN=x,DC=example,DC=com")
	o.Set("objectClass", "user")
	o.Set("sAMAccountName", "jdoe")
	o.Set("OBJECTCLASS", "group") // overwrite keeps position and casing

	assert.Equal(t, []string{"distinguishedName", "objectClass", "sAMAccountName"}, o.Keys())
	assert.Equal(t, "group", o.GetString("objectclass"))
}

func TestObject_UpdateLaterSourcesWin(t *testing.T) {
	a := FromPairs(Pair{"cn", "old"}, Pair{"mail", "a@example.com"})
	b := FromPairs(Pair{"CN", "new"}, Pair{"sn", "Doe"})

	a.Update(b)

	assert.Equal(t, "new", a.GetString("cn"))
	assert.Equal(t, []string{"cn", "mail", "sn"}, a.Keys())
}

func TestObject_CopyIsIndependent(t *testing.T) {
	a := FromPairs(Pair{"Name", "x"})
	b := a.Copy()
	b.Set("name", "y")
	b.Set("extra", 1)

	assert.Equal(t, "x", a.GetString("name"))
	assert.False(t, a.Has("extra"))
	assert.Equal(t, []string{"Name"}, b.Keys())
}

func TestObject_JSONRoundTrip(t *testing.T) {
	o := FromPairs(
		Pair{"distinguishedName", "CN=x"},
		Pair{"Enabled", true},
		Pair{"memberOf", []any{"CN=a", "CN=b"}},
	)

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(t, `{"distinguishedName":"CN=x","Enabled":true,"memberOf":["CN=a","CN=b"]}`, string(data))

	decoded := New()
	require.NoError(t, json.Unmarshal(data, decoded))
	assert.Equal(t, o.Keys(), decoded.Keys())
	assert.Equal(t, true, mustGet(t, decoded, "enabled"))
}

func mustGet(t *testing.T, o *Object, key string) any {
	t.Helper()
	v, ok := o.Get(key)
	require.True(t, ok)
	return v
}
