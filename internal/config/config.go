package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the default directory for greenwave state
	DefaultConfigDir = ".greenwave"
	// ConfigFileName is the config file name without extension
	ConfigFileName = "config"
)

// Load reads configuration from the .greenwave directory
func Load(projectDir string) (*types.Config, error) {
	configDir := filepath.Join(projectDir, DefaultConfigDir)

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	// Set defaults from types.DefaultConfig()
	defaults := types.DefaultConfig()
	setDefaults(v, defaults)

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create one with defaults
			configPath := filepath.Join(configDir, ConfigFileName+".yaml")
			if err := WriteDefault(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
			// Re-read the newly created config
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read new config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// WriteDefault writes the default configuration to a file. Marshalled
// with yaml.v3 directly so the file keeps the struct's key order.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(types.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func setDefaults(v *viper.Viper, cfg *types.Config) {
	// Server defaults
	v.SetDefault("server.listen_addr", cfg.Server.ListenAddr)

	// Coordination defaults
	v.SetDefault("coordination.assumed_speed_kmh", cfg.Coordination.AssumedSpeedKmh)
	v.SetDefault("coordination.min_speed_kmh", cfg.Coordination.MinSpeedKmh)
	v.SetDefault("coordination.connection_distance_m", cfg.Coordination.ConnectionDistanceM)
	v.SetDefault("coordination.default_cycle_s", cfg.Coordination.DefaultCycleS)

	// Liveness defaults
	v.SetDefault("liveness.stale_after_secs", cfg.Liveness.StaleAfterSecs)
	v.SetDefault("liveness.sweep_interval_secs", cfg.Liveness.SweepIntervalSecs)

	// Metrics defaults
	v.SetDefault("metrics.history_limit", cfg.Metrics.HistoryLimit)

	// Storage defaults
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.snapshot_path", cfg.Storage.SnapshotPath)
	v.SetDefault("storage.snapshot_interval_secs", cfg.Storage.SnapshotIntervalSecs)

	// Path defaults
	v.SetDefault("paths.logs", cfg.Paths.Logs)
	v.SetDefault("paths.charts", cfg.Paths.Charts)
}

// EnsureDirectories creates all required directories for greenwave operation
func EnsureDirectories(projectDir string, cfg *types.Config) error {
	dirs := []string{
		filepath.Join(projectDir, cfg.Paths.Logs),
		filepath.Join(projectDir, cfg.Paths.Charts),
		filepath.Dir(filepath.Join(projectDir, cfg.Storage.Path)),
		filepath.Dir(filepath.Join(projectDir, cfg.Storage.SnapshotPath)),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// GetProjectDir finds the project root by looking for .greenwave or .git
func GetProjectDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	dir := cwd
	for {
		// Check for .greenwave directory
		stateDir := filepath.Join(dir, DefaultConfigDir)
		if info, err := os.Stat(stateDir); err == nil && info.IsDir() {
			return dir, nil
		}

		// Check for .git directory
		gitDir := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
			return dir, nil
		}

		// Move up one directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root, use current working directory
			return cwd, nil
		}
		dir = parent
	}
}
