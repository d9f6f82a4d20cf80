package flags

import (
	"strconv"
	"time"
)

// filetimeEpoch is 1601-01-01 UTC, the zero point of Windows FILETIME values.
var filetimeEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// GenUAC derives a replacement userAccountControl from an existing value and
// a set of optional toggles. A nil toggle leaves its bit unchanged. Enabled is
// inverted into ACCOUNTDISABLE.
func GenUAC(uac int64, enabled, passwordNeverExpires, accountNotDelegated, passwordNotRequired *bool) int64 {
	if enabled != nil {
		if *enabled {
			uac &^= UACAccountDisable
		} else {
			uac |= UACAccountDisable
		}
	}
	if passwordNeverExpires != nil {
		if *passwordNeverExpires {
			uac |= UACDontExpirePassword
		} else {
			uac &^= UACDontExpirePassword
		}
	}
	if accountNotDelegated != nil {
		if *accountNotDelegated {
			uac |= UACNotDelegated
		} else {
			uac &^= UACNotDelegated
		}
	}
	if passwordNotRequired != nil {
		if *passwordNotRequired {
			uac |= UACPasswdNotRequired
		} else {
			uac &^= UACPasswdNotRequired
		}
	}
	return uac
}

// EncodeChangePasswordAtLogon renders the pwdLastSet value that forces (or
// clears) a password change at next logon: "0" forces, "-1" preserves the
// current password timestamp.
func EncodeChangePasswordAtLogon(force bool) string {
	if force {
		return "0"
	}
	return "-1"
}

// EncodeAccountExpires renders an accountExpires value as 100-nanosecond
// intervals since 1601. A nil time disables expiration ("0").
func EncodeAccountExpires(t *time.Time) string {
	if t == nil {
		return "0"
	}
	d := t.UTC().Sub(filetimeEpoch)
	return strconv.FormatInt(d.Nanoseconds()/100, 10)
}

// DecodeFiletime converts a FILETIME tick count to a UTC time. Sentinel
// values ("never", zero) must be filtered by the caller.
func DecodeFiletime(ticks int64) time.Time {
	secs := ticks / 10_000_000
	nanos := (ticks % 10_000_000) * 100
	return filetimeEpoch.Add(time.Duration(secs)*time.Second + time.Duration(nanos)*time.Nanosecond)
}
