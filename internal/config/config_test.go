package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/riverfog7/SophonCore/internal/config"
)

func withTempConfigHome(t *testing.T) string {
	t.Helper()
	orig := xdg.ConfigHome
	xdg.ConfigHome = t.TempDir()
	t.Cleanup(func() { xdg.ConfigHome = orig })
	return cfg.Path()
}

func TestGet_Table(t *testing.T) {
	cfgFile := withTempConfigHome(t)
	def := cfg.Default()

	tests := []struct {
		name      string
		preWrite  bool
		contents  string
		expectErr bool
		check     func(t *testing.T, got *cfg.Config)
	}{
		{
			name: "missing_file_returns_defaults",
			check: func(t *testing.T, got *cfg.Config) {
				assert.Equal(t, def, *got)
			},
		},
		{
			name:     "empty_file_returns_defaults",
			preWrite: true,
			check: func(t *testing.T, got *cfg.Config) {
				assert.Equal(t, def, *got)
			},
		},
		{
			name:      "invalid_yaml_returns_error",
			preWrite:  true,
			contents:  ": not yaml",
			expectErr: true,
		},
		{
			name:     "partial_override_and_fallback",
			preWrite: true,
			contents: `
edition: china
threads: 4
speedLimit: 1048576
skipFreeSpaceCheck: true
`,
			check: func(t *testing.T, got *cfg.Config) {
				assert.Equal(t, "china", got.Edition)
				assert.Equal(t, 4, got.Threads)
				assert.Equal(t, int64(1048576), got.SpeedLimit)
				assert.True(t, got.SkipFreeSpaceCheck)

				assert.Equal(t, def.TempDir, got.TempDir)
				assert.Equal(t, def.HPatchzPath, got.HPatchzPath)
				assert.Equal(t, def.MaxConnections, got.MaxConnections)
				assert.Equal(t, def.HashCachePath, got.HashCachePath)
				assert.Equal(t, def.LogLevel, got.LogLevel)
			},
		},
		{
			name:     "explicit_zero_values_fall_back_to_defaults",
			preWrite: true,
			contents: `
threads: 0
tempDir: ""
maxConnections: 0
`,
			check: func(t *testing.T, got *cfg.Config) {
				assert.Equal(t, def.Threads, got.Threads)
				assert.Equal(t, def.TempDir, got.TempDir)
				assert.Equal(t, def.MaxConnections, got.MaxConnections)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Remove(cfgFile)
			if tc.preWrite {
				require.NoError(t, os.MkdirAll(filepath.Dir(cfgFile), 0o755))
				require.NoError(t, os.WriteFile(cfgFile, []byte(tc.contents), 0o600))
			}

			got, err := cfg.Get()
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, got)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	want := cfg.Default()
	want.Threads = 3
	want.SpeedLimit = 4096
	want.HPatchzPath = "/opt/hdiff/hpatchz"
	require.NoError(t, cfg.Save(path, &want))

	got, err := cfg.Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestDefault(t *testing.T) {
	d := cfg.Default()
	assert.Equal(t, 14, d.Threads)
	assert.Equal(t, "global", d.Edition)
	assert.Zero(t, d.SpeedLimit)
	assert.NotEmpty(t, d.TempDir)
	assert.NotEmpty(t, d.HashCachePath)
}
