package types

import "time"

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr"`
}

// CoordinationConfig holds the green-wave offset parameters.
// Speeds are km/h to match how agents report traffic data; the
// topology graph converts internally.
type CoordinationConfig struct {
	AssumedSpeedKmh     float64 `yaml:"assumed_speed_kmh" mapstructure:"assumed_speed_kmh"`
	MinSpeedKmh         float64 `yaml:"min_speed_kmh" mapstructure:"min_speed_kmh"`
	ConnectionDistanceM float64 `yaml:"connection_distance_m" mapstructure:"connection_distance_m"`
	DefaultCycleS       float64 `yaml:"default_cycle_s" mapstructure:"default_cycle_s"`
}

// LivenessConfig holds the staleness sweep configuration
type LivenessConfig struct {
	StaleAfterSecs    int `yaml:"stale_after_secs" mapstructure:"stale_after_secs"`
	SweepIntervalSecs int `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
}

// StaleAfter returns the staleness threshold as a duration
func (c LivenessConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSecs) * time.Second
}

// SweepInterval returns the sweep interval as a duration
func (c LivenessConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

// MetricsConfig holds the per-agent time series configuration
type MetricsConfig struct {
	HistoryLimit int `yaml:"history_limit" mapstructure:"history_limit"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	Path                 string `yaml:"path" mapstructure:"path"`
	SnapshotPath         string `yaml:"snapshot_path" mapstructure:"snapshot_path"`
	SnapshotIntervalSecs int    `yaml:"snapshot_interval_secs" mapstructure:"snapshot_interval_secs"`
}

// SnapshotInterval returns the snapshot interval as a duration
func (c StorageConfig) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSecs) * time.Second
}

// PathsConfig holds directory paths
type PathsConfig struct {
	Logs   string `yaml:"logs" mapstructure:"logs"`
	Charts string `yaml:"charts" mapstructure:"charts"`
}

// Config is the root configuration structure
type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Coordination CoordinationConfig `yaml:"coordination" mapstructure:"coordination"`
	Liveness     LivenessConfig     `yaml:"liveness" mapstructure:"liveness"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
	Storage      StorageConfig      `yaml:"storage" mapstructure:"storage"`
	Paths        PathsConfig        `yaml:"paths" mapstructure:"paths"`
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":5000",
		},
		Coordination: CoordinationConfig{
			AssumedSpeedKmh:     40.0,
			MinSpeedKmh:         5.0,
			ConnectionDistanceM: 1500,
			DefaultCycleS:       38,
		},
		Liveness: LivenessConfig{
			StaleAfterSecs:    60,
			SweepIntervalSecs: 10,
		},
		Metrics: MetricsConfig{
			HistoryLimit: 500,
		},
		Storage: StorageConfig{
			Path:                 ".greenwave/greenwave.db",
			SnapshotPath:         ".greenwave/agent_data.json",
			SnapshotIntervalSecs: 30,
		},
		Paths: PathsConfig{
			Logs:   ".greenwave/logs",
			Charts: ".greenwave/charts",
		},
	}
}
