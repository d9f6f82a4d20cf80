package codec

import "strings"

// Attribute syntax OIDs, per MS-ADTS 3.1.1.2.2.2.
const (
	SyntaxDN            = "2.5.5.1"  // distinguished name
	SyntaxCaseIgnore    = "2.5.5.4"  // case-insensitive string
	SyntaxBool          = "2.5.5.8"  // TRUE / FALSE
	SyntaxInteger       = "2.5.5.9"  // 32-bit integer
	SyntaxTime          = "2.5.5.11" // generalized time, e.g. 20240916132547.0Z
	SyntaxUnicode       = "2.5.5.12" // unicode string
	SyntaxLargeInterval = "2.5.5.16" // 64-bit FILETIME interval
	SyntaxSID           = "2.5.5.17" // binary security identifier
)

// Meta describes how an attribute decodes: its syntax and whether the schema
// declares it single-valued.
type Meta struct {
	Syntax       string
	SingleValued bool
}

// attrMeta covers the attributes the bridge reads. Attributes absent from the
// table decode through the hex fallback so binary blobs survive JSON
// transport.
var attrMeta = map[string]Meta{
	// distinguished names
	"distinguishedName": {SyntaxDN, true},
	"objectCategory":    {SyntaxDN, true},
	"member":            {SyntaxDN, false},
	"memberOf":          {SyntaxDN, false},
	"manager":           {SyntaxDN, true},
	"managedBy":         {SyntaxDN, true},
	"directReports":     {SyntaxDN, false},

	// unicode strings
	"cn":                         {SyntaxUnicode, true},
	"name":                       {SyntaxUnicode, true},
	"displayName":                {SyntaxUnicode, true},
	"givenName":                  {SyntaxUnicode, true},
	"sn":                         {SyntaxUnicode, true},
	"initials":                   {SyntaxUnicode, true},
	"description":                {SyntaxUnicode, false},
	"sAMAccountName":             {SyntaxUnicode, true},
	"userPrincipalName":          {SyntaxUnicode, true},
	"mail":                       {SyntaxUnicode, true},
	"mailNickname":               {SyntaxUnicode, true},
	"proxyAddresses":             {SyntaxUnicode, false},
	"telephoneNumber":            {SyntaxUnicode, true},
	"otherTelephone":             {SyntaxUnicode, false},
	"mobile":                     {SyntaxUnicode, true},
	"department":                 {SyntaxUnicode, true},
	"company":                    {SyntaxUnicode, true},
	"title":                      {SyntaxUnicode, true},
	"physicalDeliveryOfficeName": {SyntaxUnicode, true},
	"streetAddress":              {SyntaxUnicode, true},
	"postalCode":                 {SyntaxUnicode, true},
	"l":                          {SyntaxUnicode, true},
	"st":                         {SyntaxUnicode, true},
	"c":                          {SyntaxUnicode, true},
	"co":                         {SyntaxUnicode, true},
	"employeeID":                 {SyntaxUnicode, true},
	"employeeNumber":             {SyntaxUnicode, true},
	"info":                       {SyntaxUnicode, true},
	"wWWHomePage":                {SyntaxUnicode, true},
	"homeDirectory":              {SyntaxUnicode, true},
	"homeDrive":                  {SyntaxUnicode, true},
	"scriptPath":                 {SyntaxUnicode, true},
	"profilePath":                {SyntaxUnicode, true},
	"dNSHostName":                {SyntaxUnicode, true},
	"operatingSystem":            {SyntaxUnicode, true},
	"operatingSystemVersion":     {SyntaxUnicode, true},
	"servicePrincipalName":       {SyntaxUnicode, false},
	"ou":                         {SyntaxUnicode, false},

	// booleans
	"showInAdvancedViewOnly": {SyntaxBool, true},
	"isCriticalSystemObject": {SyntaxBool, true},
	"isDeleted":              {SyntaxBool, true},

	// 32-bit integers
	"userAccountControl":            {SyntaxInteger, true},
	"groupType":                     {SyntaxInteger, true},
	"primaryGroupID":                {SyntaxInteger, true},
	"sAMAccountType":                {SyntaxInteger, true},
	"instanceType":                  {SyntaxInteger, true},
	"adminCount":                    {SyntaxInteger, true},
	"badPwdCount":                   {SyntaxInteger, true},
	"logonCount":                    {SyntaxInteger, true},
	"codePage":                      {SyntaxInteger, true},
	"countryCode":                   {SyntaxInteger, true},
	"msDS-SupportedEncryptionTypes": {SyntaxInteger, true},
	// replication counters share the large-integer syntax but are not
	// timestamps, so they decode as plain integers
	"uSNCreated": {SyntaxInteger, true},
	"uSNChanged": {SyntaxInteger, true},

	// generalized time
	"whenCreated":           {SyntaxTime, true},
	"whenChanged":           {SyntaxTime, true},
	"dSCorePropagationData": {SyntaxTime, false},

	// FILETIME intervals
	"pwdLastSet":         {SyntaxLargeInterval, true},
	"lastLogon":          {SyntaxLargeInterval, true},
	"lastLogonTimestamp": {SyntaxLargeInterval, true},
	"lastLogoff":         {SyntaxLargeInterval, true},
	"badPasswordTime":    {SyntaxLargeInterval, true},
	"accountExpires":     {SyntaxLargeInterval, true},
	"lockoutTime":        {SyntaxLargeInterval, true},

	// security identifiers
	"objectSid":  {SyntaxSID, true},
	"sIDHistory": {SyntaxSID, false},

	// handled by dedicated decoders, listed for the single-valued flag
	"objectGUID":  {"", true},
	"objectClass": {"", false},
}

var attrMetaFold = func() map[string]Meta {
	m := make(map[string]Meta, len(attrMeta))
	for name, meta := range attrMeta {
		m[strings.ToLower(name)] = meta
	}
	return m
}()

// Lookup finds attribute metadata by name, case-insensitively.
func Lookup(name string) (Meta, bool) {
	m, ok := attrMetaFold[strings.ToLower(name)]
	return m, ok
}
