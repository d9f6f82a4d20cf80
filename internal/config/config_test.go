package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dsbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "directory:\n  hosts: [dc01.example.com]\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"dc01.example.com"}, cfg.Directory.Hosts)
	assert.Equal(t, 636, cfg.Directory.Port)
	assert.Equal(t, "/etc/krb5.conf", cfg.Directory.Krb5Conf)
	assert.Equal(t, 10*time.Second, cfg.Directory.DialTimeout)

	assert.Equal(t, "dsbridge.db", cfg.Queue.DatabasePath)
	assert.Equal(t, 5*time.Minute, cfg.Queue.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Queue.WarmupDelay)
	assert.Equal(t, time.Minute, cfg.Queue.WorkerInterval)
	assert.Equal(t, time.Hour, cfg.Queue.Retention)

	assert.Equal(t, ":8443", cfg.Serve.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
directory:
  hosts: [dc01.example.com, dc02.example.com]
  port: 389
  login: svc-bridge@EXAMPLE.COM
  password: s3cret
  base: DC=example,DC=com
  dry_run: true
queue:
  database_path: /var/lib/dsbridge/tasks.db
  private_key_file: /etc/dsbridge/worker.key
serve:
  listen: 127.0.0.1:9443
  cert_file: /etc/dsbridge/tls.crt
  key_file: /etc/dsbridge/tls.key
  client_ca_file: /etc/dsbridge/ca.crt
log_level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"dc01.example.com", "dc02.example.com"}, cfg.Directory.Hosts)
	assert.Equal(t, 389, cfg.Directory.Port)
	assert.True(t, cfg.Directory.DryRun)
	assert.Equal(t, "/var/lib/dsbridge/tasks.db", cfg.Queue.DatabasePath)
	assert.Equal(t, "/etc/dsbridge/worker.key", cfg.Queue.PrivateKeyFile)
	assert.Equal(t, "127.0.0.1:9443", cfg.Serve.Listen)
	assert.Equal(t, "/etc/dsbridge/ca.crt", cfg.Serve.ClientCAFile)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestReadKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("  dGVzdA==\n"), 0o600))

	key, err := ReadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dGVzdA==", key)

	_, err = ReadKeyFile(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
