package session

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/dsbridge/dsbridge/internal/codec"
	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/dsobj"
	"github.com/dsbridge/dsbridge/internal/identity"
)

// filterClause matches one flat (attribute=value) clause of an LDAP filter
// so the value part can be escaped in place.
var filterClause = regexp.MustCompile(`\(([A-Za-z0-9]+)([><~]?=)([^()]*)\)`)

// EscapeFilterValues escapes the value of every clause in a user-supplied
// filter, keeping "*" wildcards intact. objectGUID values are rewritten to
// their binary octet form.
func EscapeFilterValues(filter string) (string, error) {
	var firstErr error
	out := filterClause.ReplaceAllStringFunc(filter, func(clause string) string {
		m := filterClause.FindStringSubmatch(clause)
		attr, op, value := m[1], m[2], m[3]

		if strings.EqualFold(attr, "objectGUID") {
			octets, err := codec.GUIDFilterValue(value)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return clause
			}
			return "(" + attr + op + octets + ")"
		}

		escaped := strings.ReplaceAll(ldap.EscapeFilter(value), `\2a`, "*")
		return "(" + attr + op + escaped + ")"
	})
	return out, firstErr
}

// Search runs a paged search combining the caller's filter with the kind's
// type filter and returns decoded objects.
func (s *Session) Search(filter string, kind identity.Kind, opts SearchOptions) ([]*dsobj.Object, error) {
	return s.search(filter, kind, opts, false)
}

// searchOne resolves an identity to exactly one object.
func (s *Session) searchOne(id string, kind identity.Kind, properties []string) (*dsobj.Object, error) {
	ref, err := identity.Classify(id, kind)
	if err != nil {
		return nil, err
	}
	clause, err := identity.Filter(ref)
	if err != nil {
		return nil, err
	}
	results, err := s.search(clause, kind, SearchOptions{Properties: properties}, true)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (s *Session) search(filter string, kind identity.Kind, opts SearchOptions, onlyOne bool) ([]*dsobj.Object, error) {
	op := "get_" + string(kind)

	escaped, err := EscapeFilterValues(filter)
	if err != nil {
		return nil, err
	}
	full := "(&" + identity.BaseFilter(kind) + escaped + ")"

	if onlyOne && strings.Contains(full, "*") {
		return nil, dserr.New(op, dserr.KindValidation,
			"wildcards are not allowed when resolving a single object: %s", full)
	}

	properties, effective, shadow, wildcard, err := prepareProperties(kind, opts.Properties)
	if err != nil {
		return nil, err
	}

	scope, err := opts.Scope.ldapScope()
	if err != nil {
		return nil, err
	}

	s.log.Info("directory search", map[string]any{
		"base": s.base, "scope": string(opts.Scope), "filter": full, "properties": properties,
	})

	paging := ldap.NewControlPaging(PageSize)
	var results []*dsobj.Object
	for {
		req := ldap.NewSearchRequest(
			s.base, scope, ldap.NeverDerefAliases, 0, 0, false,
			full, properties,
			[]ldap.Control{paging},
		)
		res, err := s.conn.Search(req)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", full, err)
		}

		for _, entry := range res.Entries {
			obj, err := s.decodeEntry(entry, effective, shadow, wildcard)
			if err != nil {
				return nil, err
			}
			results = append(results, obj)
		}

		ctrl, ok := ldap.FindControl(res.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
		if !ok || len(ctrl.Cookie) == 0 {
			break
		}
		paging.SetCookie(ctrl.Cookie)
	}

	if onlyOne {
		if len(results) == 0 {
			return nil, dserr.New(op, dserr.KindNotFound, "object not found: %s", full)
		}
		if len(results) > 1 {
			return nil, dserr.New(op, dserr.KindAmbiguous, "found %d objects for %s", len(results), full)
		}
	}
	return results, nil
}

// prepareProperties normalises the requested attribute list: the kind's
// default set rides along with every request, duplicates fold away,
// distinguishedName and objectClass are forced, and the base attribute of
// every derived attribute in the effective list is shadow-fetched. The
// wire list includes the shadow bases; effective is what the caller gets
// back, and shadow attributes are stripped from results after derivation.
func prepareProperties(kind identity.Kind, requested []string) (properties, effective, shadow []string, wildcard bool, err error) {
	for _, p := range requested {
		if p == "*" {
			if len(requested) != 1 {
				return nil, nil, nil, false, dserr.New("", dserr.KindValidation,
					"\"*\" must be the only requested property")
			}
			return []string{"*"}, nil, nil, true, nil
		}
	}

	merged := make([]string, 0, len(requested)+10)
	merged = append(merged, requested...)
	merged = append(merged, identity.DefaultProperties(kind)...)

	seen := make(map[string]bool, len(merged))
	for _, p := range merged {
		key := strings.ToLower(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		effective = append(effective, p)
	}

	for _, forced := range []string{"distinguishedName", "objectClass"} {
		if !seen[strings.ToLower(forced)] {
			seen[strings.ToLower(forced)] = true
			effective = append(effective, forced)
		}
	}

	properties = append(properties, effective...)
	for _, p := range effective {
		base, ok := codec.DerivedBase(p)
		if !ok || seen[strings.ToLower(base)] {
			continue
		}
		seen[strings.ToLower(base)] = true
		properties = append(properties, base)
		shadow = append(shadow, base)
	}
	return properties, effective, shadow, false, nil
}

// decodeEntry converts a raw entry into a typed object, completing ranged
// attributes and computing derived ones.
func (s *Session) decodeEntry(entry *ldap.Entry, requested, shadow []string, wildcard bool) (*dsobj.Object, error) {
	obj := dsobj.New()

	for _, attr := range entry.Attributes {
		name := attr.Name
		values := attr.ByteValues

		if idx := strings.Index(name, ";range="); idx >= 0 {
			rest, err := s.fetchAttributeRange(entry.DN, name)
			if err != nil {
				return nil, err
			}
			values = append(values, rest...)
			name = name[:idx]
		}

		decoded, err := codec.Decode(name, values)
		if err != nil {
			return nil, err
		}
		obj.Set(name, decoded)
	}

	if err := codec.ApplyDerived(obj, requested, wildcard); err != nil {
		return nil, err
	}
	for _, name := range shadow {
		obj.Delete(name)
	}
	return obj, nil
}

// fetchAttributeRange re-queries an object until all chunks of a ranged
// attribute are collected. The first chunk already came with the entry; this
// returns the remainder.
func (s *Session) fetchAttributeRange(dn, rangedName string) ([][]byte, error) {
	name, bounds, _ := strings.Cut(rangedName, ";range=")
	_, endStr, _ := strings.Cut(bounds, "-")
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return nil, dserr.New("", dserr.KindValidation, "malformed range attribute %q", rangedName)
	}

	var all [][]byte
	start := end + 1
	for {
		attr := fmt.Sprintf("%s;range=%d-%d", name, start, start+rangeStep)
		s.log.Debug("ranged attribute fetch", map[string]any{"dn": dn, "attribute": attr})

		req := ldap.NewSearchRequest(
			dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, 0, false,
			"(objectClass=*)", []string{attr}, nil,
		)
		res, err := s.conn.Search(req)
		if err != nil {
			return nil, fmt.Errorf("ranged fetch of %s on %s: %w", name, dn, err)
		}
		if len(res.Entries) == 0 {
			break
		}

		var chunk *ldap.EntryAttribute
		for _, a := range res.Entries[0].Attributes {
			if strings.HasPrefix(a.Name, name+";range=") {
				chunk = a
				break
			}
		}
		if chunk == nil || len(chunk.ByteValues) == 0 {
			break
		}
		all = append(all, chunk.ByteValues...)

		_, bounds, _ := strings.Cut(chunk.Name, ";range=")
		_, chunkEnd, _ := strings.Cut(bounds, "-")
		if strings.Contains(chunkEnd, "*") {
			break
		}
		n, err := strconv.Atoi(chunkEnd)
		if err != nil {
			return nil, dserr.New("", dserr.KindValidation, "malformed range bound %q", chunk.Name)
		}
		start = n + 1
	}
	return all, nil
}
