// Package config holds the layered settings of chmigrate: command-line
// flags, CHMIGRATE_* environment variables (optionally loaded from .env), an
// optional chmigrate.yaml file and built-in defaults, in that precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by viper.
const EnvPrefix = "CHMIGRATE"

// Config file discovery.
const (
	ConfigName = "chmigrate"
	ConfigType = "yaml"
)

var v *viper.Viper

// Initialize sets up the viper singleton. An explicit cfgFile must exist;
// otherwise chmigrate.yaml is looked up in the working directory, then in
// $XDG_CONFIG_HOME/chmigrate (or ~/.config/chmigrate). A missing discovered
// file is not an error.
func Initialize(cfgFile string) error {
	v = viper.New()
	v.SetConfigType(ConfigType)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	v.AddConfigPath(".")
	if dir := userConfigDir(); dir != "" {
		v.AddConfigPath(filepath.Join(dir, ConfigName))
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dry-run", false)
	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
	v.SetDefault("log-file", DefaultLogFile)
	v.SetDefault("log-format", "text")

	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("drain-timeout", DefaultDrainTimeout)
	v.SetDefault("max-attempts", 0)

	v.SetDefault("shortcut.project", "")
	v.SetDefault("shortcut.endpoint", "")
	v.SetDefault("shortcut.rate", DefaultShortcutRate)
	v.SetDefault("shortcut.token", "")

	v.SetDefault("github.repo", "")
	v.SetDefault("github.endpoint", "")
	v.SetDefault("github.token", "")
	v.SetDefault("state", "open")

	v.SetDefault("trello.organization", "")
	v.SetDefault("trello.endpoint", "")
	v.SetDefault("trello.key", "")
	v.SetDefault("trello.token", "")
}

func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config")
	}
	return ""
}

// BindFlag makes a command-line flag the highest-precedence source of key.
func BindFlag(key string, flag *pflag.Flag) error {
	if v == nil || flag == nil {
		return nil
	}
	return v.BindPFlag(key, flag)
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value.
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

// Set overrides a configuration value.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// ResetForTesting drops the singleton so tests start from a clean state.
func ResetForTesting() {
	v = nil
}
