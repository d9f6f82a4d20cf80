// Package flags converts Active Directory bitfield attributes between their
// numeric wire form and symbolic flag names, and derives replacement values
// for read-modify-write updates.
package flags

// userAccountControl bits, per MS-SAMR 2.2.1.12 / ADS_USER_FLAG_ENUM.
const (
	UACScript                     int64 = 0x0001
	UACAccountDisable             int64 = 0x0002
	UACHomeDirRequired            int64 = 0x0008
	UACLockout                    int64 = 0x0010
	UACPasswdNotRequired          int64 = 0x0020
	UACPasswdCantChange           int64 = 0x0040
	UACEncryptedTextPwdAllowed    int64 = 0x0080
	UACTempDuplicateAccount       int64 = 0x0100
	UACNormalAccount              int64 = 0x0200
	UACInterdomainTrustAccount    int64 = 0x0800
	UACWorkstationTrustAccount    int64 = 0x1000
	UACServerTrustAccount         int64 = 0x2000
	UACDontExpirePassword         int64 = 0x10000
	UACMNSLogonAccount            int64 = 0x20000
	UACSmartcardRequired          int64 = 0x40000
	UACTrustedForDelegation       int64 = 0x80000
	UACNotDelegated               int64 = 0x100000
	UACUseDESKeyOnly              int64 = 0x200000
	UACDontRequirePreauth         int64 = 0x400000
	UACPasswordExpired            int64 = 0x800000
	UACTrustedToAuthForDelegation int64 = 0x1000000
	UACPartialSecretsAccount      int64 = 0x04000000
)

type uacFlag struct {
	name string
	bit  int64
}

// Ordered by bit value so decoded flag lists are stable.
var uacFlags = []uacFlag{
	{"SCRIPT", UACScript},
	{"ACCOUNTDISABLE", UACAccountDisable},
	{"HOMEDIR_REQUIRED", UACHomeDirRequired},
	{"LOCKOUT", UACLockout},
	{"PASSWD_NOTREQD", UACPasswdNotRequired},
	{"PASSWD_CANT_CHANGE", UACPasswdCantChange},
	{"ENCRYPTED_TEXT_PWD_ALLOWED", UACEncryptedTextPwdAllowed},
	{"TEMP_DUPLICATE_ACCOUNT", UACTempDuplicateAccount},
	{"NORMAL_ACCOUNT", UACNormalAccount},
	{"INTERDOMAIN_TRUST_ACCOUNT", UACInterdomainTrustAccount},
	{"WORKSTATION_TRUST_ACCOUNT", UACWorkstationTrustAccount},
	{"SERVER_TRUST_ACCOUNT", UACServerTrustAccount},
	{"DONT_EXPIRE_PASSWORD", UACDontExpirePassword},
	{"MNS_LOGON_ACCOUNT", UACMNSLogonAccount},
	{"SMARTCARD_REQUIRED", UACSmartcardRequired},
	{"TRUSTED_FOR_DELEGATION", UACTrustedForDelegation},
	{"NOT_DELEGATED", UACNotDelegated},
	{"USE_DES_KEY_ONLY", UACUseDESKeyOnly},
	{"DONT_REQ_PREAUTH", UACDontRequirePreauth},
	{"PASSWORD_EXPIRED", UACPasswordExpired},
	{"TRUSTED_TO_AUTH_FOR_DELEGATION", UACTrustedToAuthForDelegation},
	{"PARTIAL_SECRETS_ACCOUNT", UACPartialSecretsAccount},
}

// UACToNames expands a userAccountControl value into the names of the bits
// that are set. Unknown bits are ignored.
func UACToNames(uac int64) []string {
	var names []string
	for _, f := range uacFlags {
		if uac&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return names
}
