// Package codec converts raw LDAP attribute values into typed Go values that
// survive JSON transport, and back into the binary forms Active Directory
// expects in filters and modifications.
package codec

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/go-objectsid"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/flags"
)

// FILETIME sentinel strings that pass through decoding as raw integers
// instead of timestamps: zero, "never" and the rounded "never" some tooling
// writes.
var filetimeSentinels = map[string]bool{
	"0":                    true,
	"9223372036850000000":  true,
	"9223372036854775807":  true,
	"-9223372036854775808": true,
}

type valueHandler func(values [][]byte) ([]any, error)

var syntaxHandlers = map[string]valueHandler{
	SyntaxDN:            decodeStrings,
	SyntaxCaseIgnore:    decodeStrings,
	SyntaxUnicode:       decodeStrings,
	SyntaxBool:          decodeBools,
	SyntaxInteger:       decodeInts,
	SyntaxTime:          decodeGeneralizedTimes,
	SyntaxLargeInterval: decodeFiletimes,
	SyntaxSID:           decodeSIDs,
}

// Decode converts the raw values of a named attribute into its typed form.
// Single-valued attributes collapse to a scalar; multi-valued attributes
// return a slice. Attributes without metadata fall back to hex encoding.
func Decode(name string, values [][]byte) (any, error) {
	meta, known := Lookup(name)

	var (
		decoded []any
		err     error
	)
	switch {
	case strings.EqualFold(name, "objectGUID"):
		decoded, err = decodeGUIDs(values)
	case strings.EqualFold(name, "objectClass"):
		return decodeObjectClass(values), nil
	case known && syntaxHandlers[meta.Syntax] != nil:
		decoded, err = syntaxHandlers[meta.Syntax](values)
	default:
		decoded = decodeHex(values)
	}
	if err != nil {
		return nil, dserr.Wrap("", dserr.KindValidation, err, "decode attribute %s", name)
	}

	if known && meta.SingleValued {
		if len(decoded) == 0 {
			return nil, nil
		}
		return decoded[0], nil
	}
	return decoded, nil
}

func decodeStrings(values [][]byte) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out, nil
}

func decodeBools(values [][]byte) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		switch string(v) {
		case "TRUE":
			out = append(out, true)
		case "FALSE":
			out = append(out, false)
		default:
			return nil, dserr.New("", dserr.KindValidation, "invalid boolean value %q", string(v))
		}
	}
	return out, nil
}

func decodeInts(values [][]byte) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// generalizedTimeLayout matches values like 20240916132547.0Z after the
// fractional suffix is stripped.
const generalizedTimeLayout = "20060102150405"

func decodeGeneralizedTimes(values [][]byte) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		s := strings.TrimSuffix(string(v), ".0Z")
		t, err := time.ParseInLocation(generalizedTimeLayout, s, time.UTC)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeFiletimes(values [][]byte) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		s := string(v)
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		if filetimeSentinels[s] {
			out = append(out, n)
			continue
		}
		out = append(out, flags.DecodeFiletime(n))
	}
	return out, nil
}

func decodeSIDs(values [][]byte) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		// objectsid.Decode indexes into the buffer, so reject anything
		// shorter than the fixed header plus the declared sub-authorities
		if len(v) < 8 || len(v) < 8+4*int(v[1]) {
			return nil, dserr.New("", dserr.KindValidation, "binary SID too short: %d bytes", len(v))
		}
		sid := objectsid.Decode(v)
		out = append(out, sid.String())
	}
	return out, nil
}

func decodeGUIDs(values [][]byte) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		s, err := GUIDFromBytes(v)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// decodeObjectClass collapses a recognized inheritance chain to its short
// kind name and returns unknown chains verbatim.
func decodeObjectClass(values [][]byte) any {
	chain := make([]string, 0, len(values))
	for _, v := range values {
		chain = append(chain, string(v))
	}
	if name, ok := flags.ObjectClassName(chain); ok {
		return name
	}
	out := make([]any, 0, len(chain))
	for _, c := range chain {
		out = append(out, c)
	}
	return out
}

func decodeHex(values [][]byte) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, "hex:"+hex.EncodeToString(v))
	}
	return out
}
