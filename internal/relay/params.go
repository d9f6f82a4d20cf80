// Package relay carries directory operations between callers and a
// directory session, either directly, through the SQLite task queue, or
// over an HTTP peer.
package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/session"
)

// Params is a decoded operation parameter set. Keys are snake_case as
// they travel on the wire; values are what encoding/json produces
// (string, float64, bool, []any, map[string]any).
type Params map[string]any

func (p Params) str(op, key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", dserr.New(op, dserr.KindValidation, "parameter %q must be a string", key)
	}
	return s, nil
}

func (p Params) requiredStr(op, key string) (string, error) {
	s, err := p.str(op, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", dserr.New(op, dserr.KindValidation, "parameter %q is required", key)
	}
	return s, nil
}

func (p Params) boolPtr(op, key string) (*bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, dserr.New(op, dserr.KindValidation, "parameter %q must be a boolean", key)
	}
	return &b, nil
}

func (p Params) strPtr(op, key string) (*string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, dserr.New(op, dserr.KindValidation, "parameter %q must be a string", key)
	}
	return &s, nil
}

// strings accepts a single string or a list of strings, matching the
// loose caller contract for properties and clear.
func (p Params) strings(op, key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, dserr.New(op, dserr.KindValidation, "parameter %q must contain only strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, dserr.New(op, dserr.KindValidation, "parameter %q must be a string or list of strings", key)
	}
}

// attrMap decodes an attribute-to-values mapping. Each value may be a
// single scalar or a list.
func (p Params) attrMap(op, key string) (map[string][]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, dserr.New(op, dserr.KindValidation, "parameter %q must be an object", key)
	}
	out := make(map[string][]string, len(m))
	for attr, raw := range m {
		switch t := raw.(type) {
		case []any:
			vals := make([]string, 0, len(t))
			for _, item := range t {
				vals = append(vals, scalarString(item))
			}
			out[attr] = vals
		default:
			out[attr] = []string{scalarString(t)}
		}
	}
	return out, nil
}

// identity accepts either an identity string or a previously fetched
// object, in which case its distinguishedName wins.
func (p Params) identity(op, key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case map[string]any:
		if dn, ok := t["distinguishedName"].(string); ok && dn != "" {
			return dn, nil
		}
		return "", dserr.New(op, dserr.KindValidation, "parameter %q object has no distinguishedName", key)
	default:
		return "", dserr.New(op, dserr.KindValidation, "parameter %q must be a string or a directory object", key)
	}
}

func (p Params) requiredIdentity(op string) (string, error) {
	id, err := p.identity(op, "identity")
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", dserr.New(op, dserr.KindValidation, "parameter \"identity\" is required")
	}
	return id, nil
}

// members decodes the members parameter: a single identity, a list of
// identities, or a list of fetched objects carrying distinguishedName
// (plus objectSid and objectClass for cross-domain members).
func (p Params) members(op, key string) ([]session.MemberRef, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}
	out := make([]session.MemberRef, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, session.MemberRef{Identity: t})
		case map[string]any:
			ref := session.MemberRef{}
			ref.DN, _ = t["distinguishedName"].(string)
			ref.SID, _ = t["objectSid"].(string)
			ref.Class = objectClassString(t["objectClass"])
			if ref.DN == "" {
				return nil, dserr.New(op, dserr.KindValidation, "member object has no distinguishedName")
			}
			out = append(out, ref)
		default:
			return nil, dserr.New(op, dserr.KindValidation, "parameter %q must hold identities or directory objects", key)
		}
	}
	if len(out) == 0 {
		return nil, dserr.New(op, dserr.KindValidation, "parameter %q is empty", key)
	}
	return out, nil
}

// expiry decodes account_expiration_date: false disables the expiration,
// a timestamp string sets it.
func (p Params) expiry(op, key string) (*session.Expiry, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case bool:
		if t {
			return nil, dserr.New(op, dserr.KindValidation, "parameter %q accepts false or a timestamp", key)
		}
		return &session.Expiry{Disable: true}, nil
	case string:
		at, err := parseTime(t)
		if err != nil {
			return nil, dserr.New(op, dserr.KindValidation, "parameter %q: %v", key, err)
		}
		return &session.Expiry{At: at}, nil
	case time.Time:
		return &session.Expiry{At: t}, nil
	default:
		return nil, dserr.New(op, dserr.KindValidation, "parameter %q accepts false or a timestamp", key)
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// objectClassString collapses a decoded objectClass value, which may be a
// short name or the full chain, to its most derived class.
func objectClassString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) == 0 {
			return ""
		}
		if s, ok := t[len(t)-1].(string); ok {
			return s
		}
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ReviveTimes walks a decoded JSON value and converts timestamp-looking
// strings back into time.Time, so queued and relayed results match what a
// direct session returns.
func ReviveTimes(v any) any {
	switch t := v.(type) {
	case string:
		if looksLikeTime(t) {
			if at, err := parseTime(t); err == nil {
				return at
			}
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = ReviveTimes(item)
		}
		return t
	case map[string]any:
		for k, item := range t {
			t[k] = ReviveTimes(item)
		}
		return t
	default:
		return v
	}
}

func looksLikeTime(s string) bool {
	if len(s) < len("2006-01-02") || len(s) > len(time.RFC3339Nano)+5 {
		return false
	}
	if s[4] != '-' || s[7] != '-' {
		return false
	}
	for _, r := range s[:4] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func scopeParam(op string, p Params) (session.Scope, error) {
	s, err := p.str(op, "search_scope")
	if err != nil {
		return "", err
	}
	if s == "" {
		return session.ScopeSubtree, nil
	}
	switch strings.ToLower(s) {
	case "base", "onelevel", "subtree":
		return session.Scope(strings.ToLower(s)), nil
	default:
		return "", dserr.New(op, dserr.KindValidation, "unknown search_scope %q", s)
	}
}
