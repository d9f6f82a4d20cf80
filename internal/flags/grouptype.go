package flags

import (
	"sort"

	"github.com/dsbridge/dsbridge/internal/dserr"
)

// groupType bits, per MS-ADTS 2.2.12 Group Type Flags. The attribute is a
// 32-bit signed integer on the wire; SECURITY_ENABLED occupies the sign bit.
const (
	GroupBuiltinLocal    int32 = 1
	GroupAccount         int32 = 2
	GroupResource        int32 = 4
	GroupUniversal       int32 = 8
	GroupAppBasic        int32 = 16
	GroupAppQuery        int32 = 32
	GroupSecurityEnabled int32 = -2147483648
)

type groupTypeFlag struct {
	name  string
	value int32
	// mutexGroup partitions the flags into sets from which at most one
	// flag may be set at a time.
	mutexGroup int
}

var groupTypeFlags = []groupTypeFlag{
	{"BUILTIN_LOCAL_GROUP", GroupBuiltinLocal, 1},
	{"ACCOUNT_GROUP", GroupAccount, 2},
	{"RESOURCE_GROUP", GroupResource, 2},
	{"UNIVERSAL_GROUP", GroupUniversal, 2},
	{"APP_BASIC", GroupAppBasic, 2},
	{"APP_QUERY", GroupAppQuery, 2},
	{"SECURITY_ENABLED", GroupSecurityEnabled, 1},
}

func checkGroupTypeMutex(selected []groupTypeFlag) error {
	seen := make(map[int]string, 2)
	for _, f := range selected {
		if prev, ok := seen[f.mutexGroup]; ok {
			return dserr.New("", dserr.KindValidation,
				"group type flags %s and %s are mutually exclusive", prev, f.name)
		}
		seen[f.mutexGroup] = f.name
	}
	return nil
}

// GroupTypeToNames expands a groupType value into flag names. It fails on
// unknown bits or a combination that violates the mutual-exclusion rules.
func GroupTypeToNames(gt int32) ([]string, error) {
	var known int32
	for _, f := range groupTypeFlags {
		known |= f.value
	}
	if gt&known != gt {
		return nil, dserr.New("", dserr.KindValidation, "group type %d contains unknown bits", gt)
	}

	var selected []groupTypeFlag
	for _, f := range groupTypeFlags {
		if gt&f.value == f.value && f.value != 0 {
			selected = append(selected, f)
		}
	}
	if err := checkGroupTypeMutex(selected); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(selected))
	for _, f := range selected {
		names = append(names, f.name)
	}
	return names, nil
}

// GroupTypeFromNames combines flag names into a groupType value, enforcing
// the same mutual-exclusion rules as GroupTypeToNames.
func GroupTypeFromNames(names []string) (int32, error) {
	byName := make(map[string]groupTypeFlag, len(groupTypeFlags))
	for _, f := range groupTypeFlags {
		byName[f.name] = f
	}

	var selected []groupTypeFlag
	for _, name := range names {
		f, ok := byName[name]
		if !ok {
			return 0, dserr.New("", dserr.KindValidation, "unknown group type flag %q", name)
		}
		selected = append(selected, f)
	}
	if err := checkGroupTypeMutex(selected); err != nil {
		return 0, err
	}

	var gt int32
	for _, f := range selected {
		gt |= f.value
	}
	return gt, nil
}

// GroupScope and GroupCategory are the symbolic projections of groupType
// exposed as derived attributes.
const (
	ScopeDomainLocal = "DomainLocal"
	ScopeGlobal      = "Global"
	ScopeUniversal   = "Universal"

	CategorySecurity     = "Security"
	CategoryDistribution = "Distribution"
)

var scopeFlag = map[string]string{
	ScopeDomainLocal: "RESOURCE_GROUP",
	ScopeGlobal:      "ACCOUNT_GROUP",
	ScopeUniversal:   "UNIVERSAL_GROUP",
}

// GroupScope maps a groupType value to its scope name, or "" when no scope
// bit is set.
func GroupScope(gt int32) string {
	switch {
	case gt&GroupResource != 0:
		return ScopeDomainLocal
	case gt&GroupAccount != 0:
		return ScopeGlobal
	case gt&GroupUniversal != 0:
		return ScopeUniversal
	}
	return ""
}

// GroupCategory maps a groupType value to Security or Distribution.
func GroupCategory(gt int32) string {
	if gt&GroupSecurityEnabled != 0 {
		return CategorySecurity
	}
	return CategoryDistribution
}

// GenGroupType derives a replacement groupType from an existing value and the
// requested scope and/or category, leaving all other bits intact. Empty
// strings leave the corresponding aspect unchanged.
func GenGroupType(existing int32, scope, category string) (int32, error) {
	names, err := GroupTypeToNames(existing)
	if err != nil {
		return 0, err
	}

	if scope != "" {
		add, ok := scopeFlag[scope]
		if !ok {
			return 0, dserr.New("", dserr.KindValidation,
				"group scope must be %q, %q or %q", ScopeDomainLocal, ScopeGlobal, ScopeUniversal)
		}
		kept := names[:0]
		for _, n := range names {
			if n != "RESOURCE_GROUP" && n != "ACCOUNT_GROUP" && n != "UNIVERSAL_GROUP" {
				kept = append(kept, n)
			}
		}
		names = append(kept, add)
	}

	switch category {
	case "":
	case CategorySecurity:
		if !contains(names, "SECURITY_ENABLED") {
			names = append(names, "SECURITY_ENABLED")
		}
	case CategoryDistribution:
		kept := names[:0]
		for _, n := range names {
			if n != "SECURITY_ENABLED" {
				kept = append(kept, n)
			}
		}
		names = kept
	default:
		return 0, dserr.New("", dserr.KindValidation,
			"group category must be %q or %q", CategorySecurity, CategoryDistribution)
	}

	sort.Strings(names)
	return GroupTypeFromNames(names)
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
