// Package config carries the ambient configuration for programs using the
// argument boundary: the image to relaunch into, the sentinel name,
// container runtime knobs, environment passthrough and standing extra
// mounts. Loaded from ~/.config/redock/config.yaml and REDOCK_* environment
// variables via viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/redock/redock/container"
	"github.com/redock/redock/dockpath"
)

// Config represents the full configuration structure
type Config struct {
	Image       ImageConfig       `mapstructure:"image" yaml:"image"`
	Boundary    BoundaryConfig    `mapstructure:"boundary" yaml:"boundary"`
	Container   ContainerConfig   `mapstructure:"container" yaml:"container"`
	Environment EnvironmentConfig `mapstructure:"environment" yaml:"environment"`
	Mounts      MountsConfig      `mapstructure:"mounts" yaml:"mounts"`
}

// ImageConfig configures the container image
type ImageConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
}

// BoundaryConfig configures the boundary itself
type BoundaryConfig struct {
	// Sentinel overrides the in-container marker variable name. Empty
	// means the built-in default.
	Sentinel string `mapstructure:"sentinel" yaml:"sentinel"`
}

// ContainerConfig configures container runtime settings
type ContainerConfig struct {
	User        string `mapstructure:"user" yaml:"user"`                 // auto, or uid:gid
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit"` // e.g. "4g"
	Network     string `mapstructure:"network" yaml:"network"`           // bridge, none, host
	WorkDir     string `mapstructure:"workdir" yaml:"workdir"`
}

// EnvironmentConfig configures environment variables
type EnvironmentConfig struct {
	Passthrough []string          `mapstructure:"passthrough" yaml:"passthrough"`
	Custom      map[string]string `mapstructure:"custom" yaml:"custom"`
}

// MountsConfig configures standing mounts applied on every relaunch
type MountsConfig struct {
	Extra []MountEntry `mapstructure:"extra" yaml:"extra"`
}

// MountEntry represents a single mount configuration. An empty target
// mounts the host path at the same path inside the container.
type MountEntry struct {
	Path     string `mapstructure:"path" yaml:"path"`
	Target   string `mapstructure:"target" yaml:"target"`
	ReadOnly bool   `mapstructure:"readonly" yaml:"readonly"`
}

// Init points viper at the config file and environment. An empty cfgFile
// falls back to the standard search locations.
func Init(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Warning: could not find home directory:", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".config", "redock"))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REDOCK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Warning: error reading config file:", err)
		}
	}
}

// Load loads configuration from viper with defaults
func Load() *Config {
	setDefaults()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		// Return defaults on error
		return defaultConfig()
	}

	return cfg
}

func setDefaults() {
	viper.SetDefault("image.name", "")

	viper.SetDefault("boundary.sentinel", "")

	viper.SetDefault("container.user", "")
	viper.SetDefault("container.memory_limit", "")
	viper.SetDefault("container.network", "bridge")
	viper.SetDefault("container.workdir", "")

	viper.SetDefault("environment.passthrough", []string{"TERM", "COLORTERM", "LANG"})
	viper.SetDefault("environment.custom", map[string]string{})

	viper.SetDefault("mounts.extra", []MountEntry{})
}

func defaultConfig() *Config {
	return &Config{
		Image: ImageConfig{
			Name: "",
		},
		Boundary: BoundaryConfig{
			Sentinel: "",
		},
		Container: ContainerConfig{
			User:        "",
			MemoryLimit: "",
			Network:     "bridge",
			WorkDir:     "",
		},
		Environment: EnvironmentConfig{
			Passthrough: []string{"TERM", "COLORTERM", "LANG"},
			Custom:      map[string]string{},
		},
		Mounts: MountsConfig{
			Extra: []MountEntry{},
		},
	}
}

// ContainerEnv collects the environment to inject into the container:
// passthrough variables that are actually set on the host, with custom
// entries layered on top.
func (c *Config) ContainerEnv() map[string]string {
	env := make(map[string]string)
	for _, key := range c.Environment.Passthrough {
		if val, ok := os.LookupEnv(key); ok {
			env[key] = val
		}
	}
	for key, val := range c.Environment.Custom {
		env[key] = val
	}
	return env
}

// ExtraMounts expands the configured standing mounts. Invalid entries are
// skipped with a warning rather than failing the run.
func (c *Config) ExtraMounts() []container.Mount {
	var mounts []container.Mount
	for _, e := range c.Mounts.Extra {
		expanded, err := dockpath.Expand(e.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid extra mount %q: %v\n", e.Path, err)
			continue
		}
		target := e.Target
		if target == "" {
			target = filepath.ToSlash(expanded)
		}
		mounts = append(mounts, container.Mount{Source: expanded, Target: target, ReadOnly: e.ReadOnly})
	}
	return mounts
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "redock", "config.yaml")
}

// WriteDefault writes a starter config file with the default values.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(defaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# redock configuration\n# Image is required for programs that do not set one themselves.\n")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
