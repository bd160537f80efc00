// File: internal/control/loader_test.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultWorkerConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*WorkerConfig)
	}{
		{"zero normal cores", func(c *WorkerConfig) { c.NumNormalCores = 0 }},
		{"negative reserved cores", func(c *WorkerConfig) { c.NumReservedCores = -1 }},
		{"non-pow2 sw queue capacity", func(c *WorkerConfig) { c.SwQueueCapacity = 40 }},
		{"non-pow2 local ring", func(c *WorkerConfig) { c.LocalRingSize = 1000 }},
		{"zero epoch thresh", func(c *WorkerConfig) { c.EpochPacketThresh = 0 }},
		{"empty profile curve", func(c *WorkerConfig) { c.ProfileCurve = nil }},
		{"zero pps profile point", func(c *WorkerConfig) {
			c.ProfileCurve = []ProfileSample{{FlowCount: 0, MaxPps: 0}}
		}},
		{"duplicate profile flow count", func(c *WorkerConfig) {
			c.ProfileCurve = []ProfileSample{
				{FlowCount: 10, MaxPps: 100},
				{FlowCount: 10, MaxPps: 200},
			}
		}},
		{"too many cores", func(c *WorkerConfig) { c.NumNormalCores = 60; c.NumReservedCores = 10 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultWorkerConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadWorkerConfigFromToml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
ncore = 2
rcore = 1
short_epoch_us = 500
epoch_packet_thresh = 4000
`), 0o644))

	cfg, err := LoadWorkerConfig(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.NumNormalCores)
	require.Equal(t, 1, cfg.NumReservedCores)
	require.EqualValues(t, 500_000, cfg.ShortEpochNs())
	require.EqualValues(t, 4000, cfg.EpochPacketThresh)
	// Untouched keys keep defaults.
	require.Equal(t, 40, cfg.SwQueuePoolSize)
}

func TestLoadProfileCurveFile(t *testing.T) {
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile.toml")
	require.NoError(t, os.WriteFile(profile, []byte(`
[[points]]
flow_count = 0
max_pps = 2000000

[[points]]
flow_count = 50000
max_pps = 900000
`), 0o644))

	points, err := LoadProfileCurve(profile)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.EqualValues(t, 900_000, points[1].MaxPps)

	cfgPath := filepath.Join(dir, "worker.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("profile = '"+profile+"'\n"), 0o644))
	cfg, err := LoadWorkerConfig(viper.New(), cfgPath)
	require.NoError(t, err)
	require.Len(t, cfg.ProfileCurve, 2)
}

func TestLoadWorkerConfigBadFile(t *testing.T) {
	_, err := LoadWorkerConfig(viper.New(), "/nonexistent/worker.toml")
	require.Error(t, err)
}

func TestConfigStoreReload(t *testing.T) {
	cs := NewConfigStore()
	ch := make(chan struct{}, 1)
	cs.OnReload(func() { ch <- struct{}{} })
	cs.SetConfig(map[string]any{"burst": 64})
	<-ch
	require.Equal(t, 64, cs.GetSnapshot()["burst"])
}
