// File: internal/control/loader.go
// Package control
// Author: momentics <momentics@gmail.com>
//
// WorkerConfig loading and validation. The main config file (TOML or
// JSON) is loaded through viper so CLI flags and environment variables
// layer on top of it; a standalone NF-profile curve file is decoded
// directly with go-toml/v2. Validation failures here are fatal at
// startup: exit code 2.

package control

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// WorkerConfig is the full process configuration.
type WorkerConfig struct {
	NumNormalCores   int `mapstructure:"ncore"`
	NumReservedCores int `mapstructure:"rcore"`
	MaxCoreSlots     int `mapstructure:"max_core_slots"`

	ShortEpochUs int64 `mapstructure:"short_epoch_us"`
	LongEpochMs  int64 `mapstructure:"long_epoch_ms"`
	RssSize      int   `mapstructure:"rss_size"`

	SwQueuePoolSize int    `mapstructure:"sw_queue_pool"`
	SwQueueCapacity uint64 `mapstructure:"sw_queue_capacity"`
	LocalRingSize   uint64 `mapstructure:"local_ring_size"`

	EpochPacketThresh uint32 `mapstructure:"epoch_packet_thresh"`
	LargeQueueThresh  int    `mapstructure:"large_queue_thresh"`
	Burst             int    `mapstructure:"burst"`
	PullBatches       int    `mapstructure:"pull_batches"`

	Snaplen     int    `mapstructure:"snaplen"`
	ProfilePath string `mapstructure:"profile"`

	// ProfileCurve is the monotone (flow_count, max_pps) table, either
	// inlined in the main config or loaded from ProfilePath.
	ProfileCurve []ProfileSample `mapstructure:"profile_curve"`
}

// ProfileSample is one point of the NF-profile curve as it appears on disk.
type ProfileSample struct {
	FlowCount uint64 `mapstructure:"flow_count" toml:"flow_count"`
	MaxPps    uint64 `mapstructure:"max_pps" toml:"max_pps"`
}

// profileFile is the on-disk shape of a standalone profile-curve file.
type profileFile struct {
	Points []ProfileSample `toml:"points"`
}

// DefaultWorkerConfig carries the typical deployment values: 1 ms/1 s
// epochs, 512 RSS buckets, a 40-slot sw-queue pool, an 8000-packet
// admission budget.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		NumNormalCores:    1,
		NumReservedCores:  0,
		MaxCoreSlots:      64,
		ShortEpochUs:      1000,
		LongEpochMs:       1000,
		RssSize:           512,
		SwQueuePoolSize:   40,
		SwQueueCapacity:   8192,
		LocalRingSize:     8192,
		EpochPacketThresh: 8000,
		LargeQueueThresh:  4096,
		Burst:             32,
		PullBatches:       8,
		Snaplen:           2048,
		ProfileCurve: []ProfileSample{
			{FlowCount: 0, MaxPps: 1_000_000},
			{FlowCount: 100_000, MaxPps: 600_000},
		},
	}
}

// BindDefaults seeds v with the default config so flag/env/file layers
// merge on top of complete values.
func BindDefaults(v *viper.Viper) {
	def := DefaultWorkerConfig()
	v.SetDefault("ncore", def.NumNormalCores)
	v.SetDefault("rcore", def.NumReservedCores)
	v.SetDefault("max_core_slots", def.MaxCoreSlots)
	v.SetDefault("short_epoch_us", def.ShortEpochUs)
	v.SetDefault("long_epoch_ms", def.LongEpochMs)
	v.SetDefault("rss_size", def.RssSize)
	v.SetDefault("sw_queue_pool", def.SwQueuePoolSize)
	v.SetDefault("sw_queue_capacity", def.SwQueueCapacity)
	v.SetDefault("local_ring_size", def.LocalRingSize)
	v.SetDefault("epoch_packet_thresh", def.EpochPacketThresh)
	v.SetDefault("large_queue_thresh", def.LargeQueueThresh)
	v.SetDefault("burst", def.Burst)
	v.SetDefault("pull_batches", def.PullBatches)
	v.SetDefault("snaplen", def.Snaplen)
}

// LoadWorkerConfig reads the optional config file at path into v, unmarshals
// the merged view, resolves an external profile file if referenced, and
// validates the result.
func LoadWorkerConfig(v *viper.Viper, path string) (WorkerConfig, error) {
	BindDefaults(v)
	v.SetEnvPrefix("NFVWORKER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return WorkerConfig{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return WorkerConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.ProfilePath != "" {
		points, err := LoadProfileCurve(cfg.ProfilePath)
		if err != nil {
			return WorkerConfig{}, err
		}
		cfg.ProfileCurve = points
	}
	if len(cfg.ProfileCurve) == 0 {
		cfg.ProfileCurve = DefaultWorkerConfig().ProfileCurve
	}

	if err := cfg.Validate(); err != nil {
		return WorkerConfig{}, err
	}
	return cfg, nil
}

// LoadProfileCurve decodes a standalone TOML profile-curve file.
func LoadProfileCurve(path string) ([]ProfileSample, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %q: %w", path, err)
	}
	var pf profileFile
	if err := toml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}
	return pf.Points, nil
}

func isPowerOfTwo(n uint64) bool { return n != 0 && n&(n-1) == 0 }

// Validate rejects unusable configurations. Every violation here must
// terminate the process with exit code 2.
func (c WorkerConfig) Validate() error {
	if c.NumNormalCores <= 0 {
		return fmt.Errorf("ncore must be positive, got %d", c.NumNormalCores)
	}
	if c.NumReservedCores < 0 {
		return fmt.Errorf("rcore must be non-negative, got %d", c.NumReservedCores)
	}
	if c.NumNormalCores+c.NumReservedCores > c.MaxCoreSlots {
		return fmt.Errorf("ncore+rcore %d exceeds max_core_slots %d",
			c.NumNormalCores+c.NumReservedCores, c.MaxCoreSlots)
	}
	if c.RssSize <= 0 {
		return fmt.Errorf("rss_size must be positive, got %d", c.RssSize)
	}
	if c.ShortEpochUs <= 0 || c.LongEpochMs <= 0 {
		return fmt.Errorf("epoch periods must be positive (short %dus, long %dms)",
			c.ShortEpochUs, c.LongEpochMs)
	}
	if c.SwQueuePoolSize <= 0 {
		return fmt.Errorf("sw_queue_pool must be positive, got %d", c.SwQueuePoolSize)
	}
	if !isPowerOfTwo(c.SwQueueCapacity) {
		return fmt.Errorf("sw_queue_capacity must be a power of two, got %d", c.SwQueueCapacity)
	}
	if !isPowerOfTwo(c.LocalRingSize) {
		return fmt.Errorf("local_ring_size must be a power of two, got %d", c.LocalRingSize)
	}
	if c.EpochPacketThresh == 0 {
		return fmt.Errorf("epoch_packet_thresh must be positive")
	}
	if c.Burst <= 0 || c.PullBatches <= 0 {
		return fmt.Errorf("burst and pull_batches must be positive (got %d, %d)", c.Burst, c.PullBatches)
	}
	if err := validateProfileCurve(c.ProfileCurve); err != nil {
		return err
	}
	return nil
}

// validateProfileCurve rejects malformed curves: empty, zero-rate
// points, or duplicate flow counts.
func validateProfileCurve(points []ProfileSample) error {
	if len(points) == 0 {
		return fmt.Errorf("profile curve is empty")
	}
	seen := make(map[uint64]struct{}, len(points))
	for _, p := range points {
		if p.MaxPps == 0 {
			return fmt.Errorf("profile curve has zero max_pps at flow_count %d", p.FlowCount)
		}
		if _, dup := seen[p.FlowCount]; dup {
			return fmt.Errorf("profile curve has duplicate flow_count %d", p.FlowCount)
		}
		seen[p.FlowCount] = struct{}{}
	}
	return nil
}

// ShortEpochNs / LongEpochNs convert the CLI-unit periods to nanoseconds.
func (c WorkerConfig) ShortEpochNs() int64 { return c.ShortEpochUs * 1000 }
func (c WorkerConfig) LongEpochNs() int64  { return c.LongEpochMs * 1_000_000 }
