package relay

import (
	"time"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/session"
)

// connParams flattens a session config into the wire shape carried in
// param_conn. Only fields a remote worker can act on travel.
func connParams(cfg session.Config) map[string]any {
	m := map[string]any{
		"hosts": cfg.Hosts,
		"port":  cfg.Port,
	}
	if cfg.Login != "" {
		m["login"] = cfg.Login
	}
	if cfg.Password != "" {
		m["password"] = cfg.Password
	}
	if cfg.Base != "" {
		m["base"] = cfg.Base
	}
	if cfg.DryRun {
		m["dry_run"] = true
	}
	return m
}

// connKeys are the wire keys that describe the connection rather than
// the operation.
var connKeys = map[string]bool{
	"host":     true,
	"hosts":    true,
	"port":     true,
	"login":    true,
	"password": true,
	"base":     true,
	"dry_run":  true,
}

// IsConnKey reports whether a wire key belongs to the connection
// parameter set.
func IsConnKey(k string) bool { return connKeys[k] }

// ConnFromParams rebuilds a session config from wire form. A single
// "host" key is accepted alongside the "hosts" list.
func ConnFromParams(m map[string]any) (session.Config, error) {
	const op = "relay.conn"
	var cfg session.Config

	if v, ok := m["hosts"].([]any); ok {
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				cfg.Hosts = append(cfg.Hosts, s)
			}
		}
	}
	if s, ok := m["host"].(string); ok && s != "" {
		cfg.Hosts = append(cfg.Hosts, s)
	}
	if len(cfg.Hosts) == 0 {
		return cfg, dserr.New(op, dserr.KindValidation, "connection parameters name no host")
	}

	switch v := m["port"].(type) {
	case float64:
		cfg.Port = int(v)
	case nil:
		cfg.Port = 636
	default:
		return cfg, dserr.New(op, dserr.KindValidation, "port must be a number")
	}

	cfg.Login, _ = m["login"].(string)
	cfg.Password, _ = m["password"].(string)
	cfg.Base, _ = m["base"].(string)
	cfg.DryRun, _ = m["dry_run"].(bool)
	cfg.DialTimeout = 10 * time.Second

	return cfg, nil
}
