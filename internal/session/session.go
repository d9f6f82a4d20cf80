package session

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/dsbridge/dsbridge/internal/dserr"
)

// Session is an authenticated directory connection scoped to a search base.
type Session struct {
	conn   directoryConn
	cfg    Config
	log    Logger
	base   string
	dryRun bool
}

// Open dials the configured hosts in order, binds, and resolves the search
// base. The caller must Close the returned session.
func Open(cfg Config, log Logger) (*Session, error) {
	if log == nil {
		log = NopLogger{}
	}

	scheme, err := uriScheme(cfg.Port)
	if err != nil {
		return nil, err
	}
	if len(cfg.Hosts) == 0 {
		return nil, dserr.New("open", dserr.KindValidation, "no directory hosts configured")
	}

	var conn *ldap.Conn
	var lastErr error
	for _, host := range cfg.Hosts {
		url := fmt.Sprintf("%s://%s:%d", scheme, host, cfg.Port)
		log.Info("connecting to directory", map[string]any{"url": url, "login": cfg.Login})

		conn, lastErr = dial(url, cfg)
		if lastErr == nil {
			lastErr = bind(conn, cfg, host)
			if lastErr == nil {
				break
			}
			_ = conn.Unbind()
			conn = nil
			if !isUnreachable(lastErr) {
				return nil, lastErr
			}
		}
		log.Warn("directory host unavailable", map[string]any{"url": url, "error": lastErr.Error()})
	}
	if conn == nil {
		return nil, dserr.Wrap("open", dserr.KindConnectivity, lastErr, "all directory hosts unreachable")
	}

	s := &Session{conn: conn, cfg: cfg, log: log, base: cfg.Base, dryRun: cfg.DryRun}
	if s.base == "" {
		base, err := s.discoverBase()
		if err != nil {
			_ = conn.Unbind()
			return nil, err
		}
		s.base = base
	}
	log.Debug("session ready", map[string]any{"base": s.base, "dry_run": s.dryRun})
	return s, nil
}

// Close releases the connection. Safe to call on an already-closed session.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Unbind()
	s.conn = nil
	return err
}

// Base returns the search base the session operates under.
func (s *Session) Base() string { return s.base }

// DryRun reports whether writes are suppressed.
func (s *Session) DryRun() bool { return s.dryRun }

func uriScheme(port int) (string, error) {
	switch port {
	case 636:
		return "ldaps", nil
	case 389:
		return "ldap", nil
	}
	return "", dserr.New("open", dserr.KindValidation, "only ports 636 and 389 are allowed, got %d", port)
}

func dial(url string, cfg Config) (*ldap.Conn, error) {
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: cfg.DialTimeout}),
	}
	if strings.HasPrefix(url, "ldaps://") {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}))
	}
	return ldap.DialURL(url, opts...)
}

// bind authenticates by password when one is given, otherwise through
// Kerberos: an explicit keytab first, falling back to the credential cache.
func bind(conn *ldap.Conn, cfg Config, host string) error {
	if cfg.Password != "" {
		if err := conn.Bind(cfg.Login, cfg.Password); err != nil {
			return fmt.Errorf("simple bind as %s: %w", cfg.Login, err)
		}
		return nil
	}
	return kerberosBind(conn, cfg, host)
}

// isUnreachable reports whether an error means the host is down, as opposed
// to the credentials being rejected. Failover only advances on the former.
func isUnreachable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// discoverBase reads namingContexts from the root DSE and picks the first
// domain context, skipping the DNS application partitions.
func (s *Session) discoverBase() (string, error) {
	req := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=*)",
		[]string{"namingContexts"},
		nil,
	)
	res, err := s.conn.Search(req)
	if err != nil {
		return "", fmt.Errorf("root DSE search: %w", err)
	}
	if len(res.Entries) == 0 {
		return "", dserr.New("open", dserr.KindConnectivity, "root DSE returned no entries")
	}

	for _, nc := range res.Entries[0].GetAttributeValues("namingContexts") {
		lower := strings.ToLower(nc)
		if !strings.HasPrefix(lower, "dc=") {
			continue
		}
		if strings.Contains(lower, "domaindnszones") || strings.Contains(lower, "forestdnszones") {
			continue
		}
		return nc, nil
	}
	return "", dserr.New("open", dserr.KindConnectivity, "no domain naming context found in root DSE")
}
