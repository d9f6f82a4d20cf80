package session

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// kerberosBind authenticates through SASL GSSAPI. Active Directory rejects
// PA-FX-FAST from non-Windows clients, so it is disabled on every path.
func kerberosBind(conn *ldap.Conn, cfg Config, host string) error {
	gssapiClient, err := newGSSAPIClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn := "ldap/" + strings.ToLower(host)
	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind as %s to %s: %w", cfg.Login, spn, err)
	}
	return nil
}

func newGSSAPIClient(cfg Config) (*gssapi.Client, error) {
	krb5conf := cfg.Krb5Conf
	if krb5conf == "" {
		krb5conf = "/etc/krb5.conf"
	}

	if cfg.Keytab != "" {
		return gssapi.NewClientWithKeytab(cfg.Login, cfg.Realm, cfg.Keytab, krb5conf,
			krb5client.DisablePAFXFAST(true))
	}

	ccache := cfg.CCache
	if ccache == "" {
		if env := os.Getenv("KRB5CCNAME"); env != "" {
			ccache = strings.TrimPrefix(env, "FILE:")
		} else {
			ccache = fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
		}
	}
	return gssapi.NewClientFromCCache(ccache, krb5conf, krb5client.DisablePAFXFAST(true))
}
