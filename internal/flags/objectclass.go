package flags

import (
	"sort"
	"strings"

	"github.com/dsbridge/dsbridge/internal/dserr"
)

// objectClass inheritance chains for the object kinds the bridge handles.
var objectClassChains = map[string][]string{
	"user":                     {"top", "person", "organizationalPerson", "user"},
	"contact":                  {"top", "person", "organizationalPerson", "contact"},
	"group":                    {"top", "group"},
	"computer":                 {"top", "person", "organizationalPerson", "user", "computer"},
	"organizationalUnit":       {"top", "organizationalUnit"},
	"builtinDomain":            {"top", "builtinDomain"},
	"foreignSecurityPrincipal": {"top", "foreignSecurityPrincipal"},
	"domainDNS":                {"top", "domain", "domainDNS"},
	"inetOrgPerson":            {"top", "user", "person", "inetOrgPerson", "organizationalPerson"},
}

// ObjectClassChain returns the full objectClass value list for a short kind
// name. The lookup is case-insensitive.
func ObjectClassChain(kind string) ([]string, error) {
	for name, chain := range objectClassChains {
		if strings.EqualFold(name, kind) {
			out := make([]string, len(chain))
			copy(out, chain)
			return out, nil
		}
	}
	return nil, dserr.New("", dserr.KindValidation, "unknown object kind %q", kind)
}

// ObjectClassName collapses an objectClass value list to its short kind name.
// An unrecognized chain is returned unchanged as ok=false.
func ObjectClassName(chain []string) (string, bool) {
	have := make([]string, len(chain))
	copy(have, chain)
	sort.Strings(have)

	for name, want := range objectClassChains {
		if len(want) != len(have) {
			continue
		}
		sorted := make([]string, len(want))
		copy(sorted, want)
		sort.Strings(sorted)

		match := true
		for i := range sorted {
			if sorted[i] != have[i] {
				match = false
				break
			}
		}
		if match {
			return name, true
		}
	}
	return "", false
}
