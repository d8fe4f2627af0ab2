// Package config resolves process-wide settings with precedence
// flag > env var > config file > default, mirroring the source engine's
// viper-based configuration layer (SPEC_FULL.md §6.7).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper singleton. Should be called once at
// startup, before any Get* accessor. specRoot is the resolved
// --specs-root (or its default), used only for the path defaults; the
// .claude/sdd_config.json file is found by walking up from the working
// directory.
func Initialize(specRoot string) error {
	v = viper.New()
	v.SetConfigType("json")

	configFileSet := false

	// 1. ./.claude/sdd_config.json relative to cwd (§6.2).
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; ; dir = filepath.Dir(dir) {
			candidate := filepath.Join(dir, ".claude", "sdd_config.json")
			if _, statErr := os.Stat(candidate); statErr == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
		}
	}

	// 2. User config directory fallback.
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			candidate := filepath.Join(configDir, "sdd", "sdd_config.json")
			if _, statErr := os.Stat(candidate); statErr == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("SDD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("output.json", false)
	v.SetDefault("output.compact", false)
	v.SetDefault("output.default_format", "text")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", filepath.Join(specRoot, ".cache"))
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.max_size_mb", 512)

	v.SetDefault("lock.timeout", "10s")
	v.SetDefault("consult.timeout", "90s")
	v.SetDefault("consult.max_concurrent", 4)

	v.SetDefault("git.commit_cadence_default", "manual")

	v.SetDefault("log.dir", filepath.Join(specRoot, ".logs"))
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 5)

	v.SetDefault("specs_root", specRoot)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// ConfigSource identifies where an effective value originated.
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// GetValueSource returns where key's effective value came from.
// Priority (highest to lowest): env var > config file > default.
// Flag overrides are applied by callers on top of this (cobra owns flags).
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}
	envKey := "SDD_" + strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(key, "-", "_"), ".", "_"))
	if os.Getenv(envKey) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a configuration value at runtime (used to fold resolved
// cobra flags back in so downstream Get* calls see the final value).
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}

// UnmarshalKey decodes the sub-tree at key into out (mapstructure tags),
// used for structured config like consult.providers.
func UnmarshalKey(key string, out any) error {
	if v == nil {
		return nil
	}
	return v.UnmarshalKey(key, out)
}
