package codec

import (
	"strings"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/dsobj"
	"github.com/dsbridge/dsbridge/internal/flags"
)

// deriveFunc computes a derived attribute from its decoded base value.
type deriveFunc func(base any) (any, error)

type derivedRule struct {
	name   string
	base   string
	derive deriveFunc
}

// derivedRules lists every derived attribute with the base it is computed
// from. Requesting a derived attribute forces a shadow fetch of the base;
// the slice order fixes the order derived attributes appear in results.
var derivedRules = []derivedRule{
	{"Enabled", "userAccountControl",
		uacDerive(func(uac int64) any { return uac&flags.UACAccountDisable == 0 })},
	{"PasswordNeverExpires", "userAccountControl",
		uacDerive(func(uac int64) any { return uac&flags.UACDontExpirePassword != 0 })},
	{"AccountNotDelegated", "userAccountControl",
		uacDerive(func(uac int64) any { return uac&flags.UACNotDelegated != 0 })},
	{"PasswordNotRequired", "userAccountControl",
		uacDerive(func(uac int64) any { return uac&flags.UACPasswdNotRequired != 0 })},
	{"GroupScope", "groupType", func(base any) (any, error) {
		gt, err := asInt64(base, "groupType")
		if err != nil {
			return nil, err
		}
		return flags.GroupScope(int32(gt)), nil
	}},
	{"GroupCategory", "groupType", func(base any) (any, error) {
		gt, err := asInt64(base, "groupType")
		if err != nil {
			return nil, err
		}
		return flags.GroupCategory(int32(gt)), nil
	}},
	{"ChangePasswordAtLogon", "pwdLastSet", func(base any) (any, error) {
		// a zero pwdLastSet means the user must change the password at
		// next logon
		n, ok := base.(int64)
		return ok && n == 0, nil
	}},
}

func uacDerive(f func(uac int64) any) deriveFunc {
	return func(base any) (any, error) {
		uac, err := asInt64(base, "userAccountControl")
		if err != nil {
			return nil, err
		}
		return f(uac), nil
	}
}

func asInt64(v any, attr string) (int64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, dserr.New("", dserr.KindValidation, "%s is not an integer: %T", attr, v)
	}
	return n, nil
}

// DerivedBase returns the base attribute a derived attribute is computed
// from, or ok=false when the name is not a derived attribute.
func DerivedBase(name string) (string, bool) {
	for _, rule := range derivedRules {
		if strings.EqualFold(rule.name, name) {
			return rule.base, true
		}
	}
	return "", false
}

// ApplyDerived appends derived attributes to obj for every base attribute
// present in it. With wildcard set, every derivable attribute is added;
// otherwise only the names in requested (compared case-insensitively).
func ApplyDerived(obj *dsobj.Object, requested []string, wildcard bool) error {
	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[strings.ToLower(name)] = true
	}

	for _, rule := range derivedRules {
		if !wildcard && !want[strings.ToLower(rule.name)] {
			continue
		}
		baseValue, ok := obj.Get(rule.base)
		if !ok {
			continue
		}
		value, err := rule.derive(baseValue)
		if err != nil {
			return err
		}
		obj.Set(rule.name, value)
	}
	return nil
}
