package codec

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dsbridge/dsbridge/internal/dserr"
)

// Active Directory stores objectGUID in mixed-endian order: the first three
// groups are little-endian, the last eight bytes keep their order.
func swapGUIDEndianness(b []byte) []byte {
	out := make([]byte, 16)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:], b[8:])
	return out
}

// GUIDFromBytes converts a directory objectGUID value to its canonical
// hyphenated string form.
func GUIDFromBytes(b []byte) (string, error) {
	if len(b) != 16 {
		return "", dserr.New("", dserr.KindValidation, "objectGUID must be 16 bytes, got %d", len(b))
	}
	id, err := uuid.FromBytes(swapGUIDEndianness(b))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// GUIDToBytes converts a GUID string (with or without braces) to the
// directory's mixed-endian byte form.
func GUIDToBytes(s string) ([]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, dserr.Wrap("", dserr.KindValidation, err, "invalid GUID %q", s)
	}
	return swapGUIDEndianness(id[:]), nil
}

// GUIDFilterValue renders a GUID as the backslash-escaped octet string used
// inside LDAP filters.
func GUIDFilterValue(s string) (string, error) {
	b, err := GUIDToBytes(s)
	if err != nil {
		return "", err
	}
	var out []byte
	for _, c := range b {
		out = append(out, []byte(fmt.Sprintf("\\%02x", c))...)
	}
	return string(out), nil
}
