package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/modguard/agent"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, agent.DefaultConfig(), cfg.Agent)
	assert.Equal(t, 5*time.Second, cfg.WatchdogInterval)
	assert.GreaterOrEqual(t, cfg.Workers, 1)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	content := `
trace: true
leak_double_release: true
thread_affinity: false
watchdog_interval: 250ms
workers: 3
metrics_addr: ":9102"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "modguard.yaml"), []byte(content), 0o644))

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.True(t, cfg.Agent.Trace)
	assert.True(t, cfg.Agent.LeakDoubleRelease)
	assert.False(t, cfg.Agent.ThreadAffinity)
	assert.True(t, cfg.Agent.LeakUnreleased, "unset keys keep their defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.WatchdogInterval)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	chdir(t, t.TempDir())

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("constant_drift: false\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.False(t, cfg.Agent.ConstantDrift)

	_, err = Load(filepath.Join(dir, "missing.yaml"), nil)
	assert.Error(t, err, "an explicit config file must exist")
}

func TestLoadEnvAndFlags(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MODGUARD_UNCLOSED_TRACKING", "false")
	t.Setenv("MODGUARD_WORKERS", "2")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("leak-double-release", false, "")
	flags.Int("workers", 1, "")
	require.NoError(t, flags.Parse([]string{"--leak-double-release", "--workers=7"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.False(t, cfg.Agent.UnclosedTracking)
	assert.True(t, cfg.Agent.LeakDoubleRelease)
	assert.Equal(t, 7, cfg.Workers, "flags override the environment")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		value   string
		wantErr string
	}{
		{"zero workers", "MODGUARD_WORKERS", "0", "workers fails min=1"},
		{"zero interval", "MODGUARD_WATCHDOG_INTERVAL", "0s", "watchdog_interval fails gt=0"},
		{"bad metrics address", "MODGUARD_METRICS_ADDR", "not an address", "metrics_addr fails hostname_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.env, tt.value)

			_, err := Load("", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateMetricsPortOnly(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MODGUARD_METRICS_ADDR", ":9090")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}
