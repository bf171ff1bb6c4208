package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "database:\n  type: memory\n"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 5334, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.True(t, cfg.Scheduler.IsEnabled())
	assert.Equal(t, DefaultCron, cfg.Scheduler.Cron)
	assert.Equal(t, 100, cfg.Scheduler.BatchSize)
	assert.Equal(t, 10000, cfg.Scheduler.MaxRecords)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.TickTimeout)
	assert.Equal(t, 256, cfg.Events.BufferSize)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 30, cfg.Monitoring.RetentionDays)
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
server:
  port: 8080
database:
  type: sqlite
  path: /tmp/quill-test.db
scheduler:
  enabled: false
  cron: "0 * * * * ?"
  batch_size: 10
  max_records: 50
  tick_timeout: 30s
publication:
  base_url: https://intranet.example.com
authorization:
  publisher_groups: ["/communication"]
  manager_groups: ["/admins"]
events:
  webhooks:
    - name: search
      url: https://search.example.com/hook
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/tmp/quill-test.db", cfg.Database.Path)
	assert.False(t, cfg.Scheduler.IsEnabled())
	assert.Equal(t, "0 * * * * ?", cfg.Scheduler.Cron)
	assert.Equal(t, 10, cfg.Scheduler.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickTimeout)
	assert.Equal(t, []string{"/communication"}, cfg.Authorization.PublisherGroups)
	require.Len(t, cfg.Events.Webhooks, 1)
	assert.Equal(t, 10*time.Second, cfg.Events.Webhooks[0].Timeout)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown database", body: "database:\n  type: mysql\n"},
		{name: "max below batch", body: "database:\n  type: memory\nscheduler:\n  batch_size: 100\n  max_records: 10\n"},
		{name: "webhook without url", body: "database:\n  type: memory\nevents:\n  webhooks:\n    - name: broken\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
