package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, e := range envs {
			t.Setenv(e, "")
			require.NoError(t, os.Unsetenv(e))
		}
	}
	t.Setenv("CALM_HOME", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Server.RetryMax)
	assert.Equal(t, 5*time.Second, cfg.Server.PollInterval)
	assert.Equal(t, DefaultLintImage, cfg.Lint.Image)
	assert.Equal(t, os.Getenv("CALM_HOME"), cfg.Home)
	assert.Equal(t, filepath.Join(cfg.Home, DefaultArchiveDir), cfg.SCM.ArchiveDir)
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: pc.example.com
  port: 9441
  username: admin
  password: from-file
  poll_timeout: 10m
project:
  name: default
`), 0o600))
	t.Setenv("CALM_PASSWORD", "from-env")
	t.Setenv("CALM_VERIFY_TLS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pc.example.com", cfg.Server.Host)
	assert.Equal(t, 9441, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Server.Password)
	assert.True(t, cfg.Server.VerifyTLS)
	assert.Equal(t, 10*time.Minute, cfg.Server.PollTimeout)
	assert.Equal(t, "default", cfg.Project.Name)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "error reading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing host", func(c *Config) { c.Server.Host = "" }, "server.host is required"},
		{"bad host", func(c *Config) { c.Server.Host = "not a host!" }, "server.host must be a hostname or IP address"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port is out of range"},
		{"missing password", func(c *Config) { c.Server.Password = "" }, "server.password is required"},
		{"bad gitlab url", func(c *Config) { c.SCM.GitLabURL = "gitlab" }, "scm.gitlaburl must be a URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server: Server{Host: "10.0.0.5", Port: 9440, Username: "admin", Password: "pw"},
				Lint:   Lint{Image: DefaultLintImage},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{Server: Server{Password: "pw"}, SCM: SCM{Token: "glpat"}}
	r := cfg.Redacted()
	assert.Equal(t, redacted, r.Server.Password)
	assert.Equal(t, redacted, r.SCM.Token)
	assert.Equal(t, "pw", cfg.Server.Password)
}

func TestSet(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "calm", "config.yaml")

	require.NoError(t, Set(path, "server.host", "pc.local"))
	require.NoError(t, Set(path, "server.port", "9500"))
	require.NoError(t, Set(path, "server.verify_tls", "true"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pc.local", cfg.Server.Host)
	assert.Equal(t, 9500, cfg.Server.Port)
	assert.True(t, cfg.Server.VerifyTLS)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.ErrorContains(t, Set(path, "server.nope", "x"), `unknown config key "server.nope"`)
	assert.ErrorContains(t, Set(path, "server.port", "abc"), "must be an integer")
	assert.ErrorContains(t, Set(path, "server.timeout", "soon"), "must be a duration")
}
