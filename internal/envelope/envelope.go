// Package envelope encrypts queue payloads with a hybrid scheme: a random
// AES-256 key sealed by RSA-OAEP carries the payload through AES-GCM, so
// payload size is not limited by the RSA modulus.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"encoding/pem"

	"github.com/dsbridge/dsbridge/internal/dserr"
)

const (
	aesKeySize = 32
	nonceSize  = 12
)

// Encode serializes v to JSON and encrypts it for the holder of the private
// key. The output is base64: a 4-byte big-endian wrapped-key length, the
// RSA-OAEP wrapped AES key, the GCM nonce, then the sealed payload.
func Encode(pub *rsa.PublicKey, v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", dserr.Wrap("", dserr.KindCrypto, err, "marshal payload")
	}

	key := make([]byte, aesKeySize)
	if _, err := rand.Read(key); err != nil {
		return "", dserr.Wrap("", dserr.KindCrypto, err, "generate session key")
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return "", dserr.Wrap("", dserr.KindCrypto, err, "wrap session key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", dserr.Wrap("", dserr.KindCrypto, err, "init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", dserr.Wrap("", dserr.KindCrypto, err, "init GCM")
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", dserr.Wrap("", dserr.KindCrypto, err, "generate nonce")
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, 4+len(wrapped)+nonceSize+len(sealed))
	out = binary.BigEndian.AppendUint32(out, uint32(len(wrapped)))
	out = append(out, wrapped...)
	out = append(out, nonce...)
	out = append(out, sealed...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decode reverses Encode into v. Any truncation or tampering fails with a
// crypto error rather than corrupt output.
func Decode(priv *rsa.PrivateKey, encoded string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return dserr.Wrap("", dserr.KindCrypto, err, "decode envelope")
	}
	if len(raw) < 4 {
		return dserr.New("", dserr.KindCrypto, "envelope too short")
	}

	keyLen := int(binary.BigEndian.Uint32(raw[:4]))
	raw = raw[4:]
	if keyLen <= 0 || len(raw) < keyLen+nonceSize {
		return dserr.New("", dserr.KindCrypto, "envelope truncated")
	}

	key, err := rsa.DecryptOAEP(sha256.New(), nil, priv, raw[:keyLen], nil)
	if err != nil {
		return dserr.Wrap("", dserr.KindCrypto, err, "unwrap session key")
	}

	nonce := raw[keyLen : keyLen+nonceSize]
	sealed := raw[keyLen+nonceSize:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return dserr.Wrap("", dserr.KindCrypto, err, "init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return dserr.Wrap("", dserr.KindCrypto, err, "init GCM")
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return dserr.Wrap("", dserr.KindCrypto, err, "open envelope")
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return dserr.Wrap("", dserr.KindCrypto, err, "unmarshal payload")
	}
	return nil
}

// GenerateKeyPair creates a 2048-bit RSA pair as base64-wrapped PEM, the
// transport form stored in configuration.
func GenerateKeyPair() (publicKey, privateKey string, err error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", "", dserr.Wrap("genkey", dserr.KindCrypto, err, "generate RSA key")
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", dserr.Wrap("genkey", dserr.KindCrypto, err, "marshal private key")
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", "", dserr.Wrap("genkey", dserr.KindCrypto, err, "marshal public key")
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	return base64.StdEncoding.EncodeToString(pubPEM),
		base64.StdEncoding.EncodeToString(privPEM), nil
}

// LoadPublicKey parses a base64-wrapped PEM public key.
func LoadPublicKey(encoded string) (*rsa.PublicKey, error) {
	block, err := decodePEM(encoded)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, dserr.Wrap("", dserr.KindCrypto, err, "parse public key")
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, dserr.New("", dserr.KindCrypto, "public key is not RSA")
	}
	return pub, nil
}

// LoadPrivateKey parses a base64-wrapped PEM private key.
func LoadPrivateKey(encoded string) (*rsa.PrivateKey, error) {
	block, err := decodePEM(encoded)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, dserr.Wrap("", dserr.KindCrypto, err, "parse private key")
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, dserr.New("", dserr.KindCrypto, "private key is not RSA")
	}
	return priv, nil
}

func decodePEM(encoded string) (*pem.Block, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, dserr.Wrap("", dserr.KindCrypto, err, "decode key")
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, dserr.New("", dserr.KindCrypto, "no PEM block in key material")
	}
	return block, nil
}
