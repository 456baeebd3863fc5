// Package config provides configuration loading for the governance gate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for governance-gate.yaml/
// .yml in standard locations.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("governance-gate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: GOVERNANCE_GATE_STORAGE_ROOT
	viper.SetEnvPrefix("GOVERNANCE_GATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a governance-gate config
// file with an explicit YAML extension, so it never matches the binary
// itself (same base name, no extension).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".governance-gate"),
		"/etc/governance-gate",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "governance-gate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the config keys most useful to override via
// environment variable. Arrays (rules) are left to the config file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("storage.root")
	_ = viper.BindEnv("policy.preset")
	_ = viper.BindEnv("policy.enforce")
	_ = viper.BindEnv("policy.default_policy")
	_ = viper.BindEnv("rate_limit.sqlite_path")
	_ = viper.BindEnv("event_stream.min_severity")
	_ = viper.BindEnv("event_stream.max_size_mb")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the validated GovernanceConfig.
func LoadConfig() (*GovernanceConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg GovernanceConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SetDevDefaults()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or empty if none was found (environment-only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
