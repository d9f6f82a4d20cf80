package envelope

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsbridge/dsbridge/internal/dserr"
)

func testKeys(t *testing.T) (pubEncoded, privEncoded string) {
	t.Helper()
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)
	return pub, priv
}

func TestRoundTrip(t *testing.T) {
	pubEncoded, privEncoded := testKeys(t)
	pub, err := LoadPublicKey(pubEncoded)
	require.NoError(t, err)
	priv, err := LoadPrivateKey(privEncoded)
	require.NoError(t, err)

	payloads := []map[string]any{
		{},
		{"identity": "jdoe"},
		{"identity": "jdoe", "properties": []any{"mail", "Enabled"}, "nested": map[string]any{"a": float64(1)}},
	}
	for _, payload := range payloads {
		encoded, err := Encode(pub, payload)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, Decode(priv, encoded, &got))
		assert.Equal(t, payload, got)
	}
}

func TestLargePayload(t *testing.T) {
	pubEncoded, privEncoded := testKeys(t)
	pub, _ := LoadPublicKey(pubEncoded)
	priv, _ := LoadPrivateKey(privEncoded)

	// far beyond what plain RSA-OAEP could carry
	big := make([]string, 5000)
	for i := range big {
		big[i] = "CN=member,DC=example,DC=com"
	}
	encoded, err := Encode(pub, map[string]any{"members": big})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, Decode(priv, encoded, &got))
	assert.Len(t, got["members"], 5000)
}

func TestTamperDetected(t *testing.T) {
	pubEncoded, privEncoded := testKeys(t)
	pub, _ := LoadPublicKey(pubEncoded)
	priv, _ := LoadPrivateKey(privEncoded)

	encoded, err := Encode(pub, map[string]any{"identity": "jdoe"})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	var got map[string]any
	err = Decode(priv, tampered, &got)
	require.Error(t, err)
	assert.True(t, dserr.IsCrypto(err))
}

func TestTruncatedEnvelope(t *testing.T) {
	_, privEncoded := testKeys(t)
	priv, _ := LoadPrivateKey(privEncoded)

	var got map[string]any
	for _, bad := range []string{"", "AAAA", base64.StdEncoding.EncodeToString([]byte{0, 0, 1, 0, 1})} {
		err := Decode(priv, bad, &got)
		require.Error(t, err)
		assert.True(t, dserr.IsCrypto(err))
	}
}

func TestWrongKeyFails(t *testing.T) {
	pubEncoded, _ := testKeys(t)
	_, otherPriv := testKeys(t)
	pub, _ := LoadPublicKey(pubEncoded)
	priv, _ := LoadPrivateKey(otherPriv)

	encoded, err := Encode(pub, map[string]any{"identity": "jdoe"})
	require.NoError(t, err)

	var got map[string]any
	err = Decode(priv, encoded, &got)
	require.Error(t, err)
	assert.True(t, dserr.IsCrypto(err))
}

func TestLoadKeyErrors(t *testing.T) {
	_, err := LoadPublicKey("not base64!!")
	require.Error(t, err)

	_, err = LoadPublicKey(base64.StdEncoding.EncodeToString([]byte("not pem")))
	require.Error(t, err)
}
