// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/qmlrun/lib/console"
)

// EnvVar names the environment variable [Load] reads the config path
// from.
const EnvVar = "QMLRUN_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is an interactive developer machine.
	Development Environment = "development"
	// Staging is a shared test bench.
	Staging Environment = "staging"
	// Production is an unattended runner (CI, device farms).
	Production Environment = "production"
)

// Config is the qmlrun configuration.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	Device      DeviceConfig      `yaml:"device"`
	Application ApplicationConfig `yaml:"application"`
	Launch      LaunchConfig      `yaml:"launch"`
	Log         LogConfig         `yaml:"log"`
	Console     ConsoleConfig     `yaml:"console"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the sections that can be overridden per
// environment. Empty strings and zero ports leave the base value alone.
type ConfigOverrides struct {
	Device      *DeviceConfig      `yaml:"device,omitempty"`
	Application *ApplicationConfig `yaml:"application,omitempty"`
	Launch      *LaunchConfig      `yaml:"launch,omitempty"`
	Log         *LogConfig         `yaml:"log,omitempty"`
	Console     *ConsoleConfig     `yaml:"console,omitempty"`
}

// DeviceConfig identifies the paired device.
type DeviceConfig struct {
	// Address is the device host, without a port.
	Address string `yaml:"address"`

	// ControlPort is where the device accepts launch commands.
	// Default: 12000
	ControlPort uint16 `yaml:"control_port"`

	// DialTimeout bounds each TCP connection attempt to the device.
	// Default: 5s
	DialTimeout string `yaml:"dial_timeout"`
}

// ApplicationConfig describes what to run.
type ApplicationConfig struct {
	// ID is the run-configuration identifier sent with the launch
	// command.
	ID string `yaml:"id"`

	// ProjectDir is served to the device over the callback listener.
	// ${HOME}, ${CONFIG_DIR}, and ${VAR:-default} are expanded; a
	// relative path is resolved against the config file's directory.
	ProjectDir string `yaml:"project_dir"`

	// Debug starts the application under the QML debugger. An override
	// section can turn it on but not off.
	Debug bool `yaml:"debug"`
}

// LaunchConfig tunes the launch handshake.
type LaunchConfig struct {
	// ListenAddress is where the callback listener binds.
	// Default: ":0"
	ListenAddress string `yaml:"listen_address"`

	// ReplyTimeout bounds the wait for the device's launch reply. "0"
	// waits forever.
	// Default: 30s (development), 10s (production)
	ReplyTimeout string `yaml:"reply_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`
}

// ConsoleConfig configures relayed output.
type ConsoleConfig struct {
	// Color is one of auto, always, never.
	// Default: auto (development), never (production)
	Color string `yaml:"color"`
}

// Default returns the default configuration. The defaults fill fields
// the file leaves out; they are not a substitute for the file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Device: DeviceConfig{
			ControlPort: 12000,
			DialTimeout: "5s",
		},
		Launch: LaunchConfig{
			ListenAddress: ":0",
			ReplyTimeout:  "30s",
		},
		Log: LogConfig{
			Level: "info",
		},
		Console: ConsoleConfig{
			Color: console.ColorAuto,
		},
	}
}

// defaultsFor returns [Default] adjusted for environment. Production
// runs unattended: no color, and a launch that hangs fails the run
// instead of blocking it. Values in the file still win.
func defaultsFor(environment Environment) *Config {
	cfg := Default()
	if environment == Production {
		cfg.Launch.ReplyTimeout = "10s"
		cfg.Console.Color = console.ColorNever
	}
	return cfg
}

// Load loads configuration from the file named by QMLRUN_CONFIG. There
// is no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your qmlrun.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies the section for the
// configured environment, and expands variables in paths. It does not
// validate: callers apply command-line overrides first, then call
// [Config.Validate].
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// The environment picks the defaults the file is layered over.
	var header struct {
		Environment Environment `yaml:"environment"`
	}
	if err := yaml.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg := defaultsFor(header.Environment)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()

	configDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving config directory: %w", err)
	}
	cfg.expandVariables(configDir)
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if device := overrides.Device; device != nil {
		setString(&c.Device.Address, device.Address)
		setString(&c.Device.DialTimeout, device.DialTimeout)
		if device.ControlPort != 0 {
			c.Device.ControlPort = device.ControlPort
		}
	}
	if application := overrides.Application; application != nil {
		setString(&c.Application.ID, application.ID)
		setString(&c.Application.ProjectDir, application.ProjectDir)
		c.Application.Debug = c.Application.Debug || application.Debug
	}
	if launch := overrides.Launch; launch != nil {
		setString(&c.Launch.ListenAddress, launch.ListenAddress)
		setString(&c.Launch.ReplyTimeout, launch.ReplyTimeout)
	}
	if overrides.Log != nil {
		setString(&c.Log.Level, overrides.Log.Level)
	}
	if overrides.Console != nil {
		setString(&c.Console.Color, overrides.Console.Color)
	}
}

func setString(field *string, override string) {
	if override != "" {
		*field = override
	}
}

func (c *Config) expandVariables(configDir string) {
	vars := map[string]string{
		"CONFIG_DIR": configDir,
		"HOME":       os.Getenv("HOME"),
	}

	projectDir := expandVars(c.Application.ProjectDir, vars)
	if projectDir != "" && !filepath.IsAbs(projectDir) {
		projectDir = filepath.Join(configDir, projectDir)
	}
	c.Application.ProjectDir = projectDir
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// DialTimeout returns device.dial_timeout as a duration. Call after
// [Config.Validate].
func (c *Config) DialTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Device.DialTimeout)
	return d
}

// ReplyTimeout returns launch.reply_timeout as a duration. Zero means no
// timeout. Call after [Config.Validate].
func (c *Config) ReplyTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Launch.ReplyTimeout)
	return d
}

// LogLevel returns log.level as a slog level. Call after
// [Config.Validate].
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	level.UnmarshalText([]byte(c.Log.Level))
	return level
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	if c.Device.Address == "" {
		errs = append(errs, errors.New("device.address is required"))
	}
	if c.Device.ControlPort == 0 {
		errs = append(errs, errors.New("device.control_port is required"))
	}
	if err := validateDuration("device.dial_timeout", c.Device.DialTimeout); err != nil {
		errs = append(errs, err)
	}

	if c.Application.ID == "" {
		errs = append(errs, errors.New("application.id is required"))
	}
	if c.Application.ProjectDir == "" {
		errs = append(errs, errors.New("application.project_dir is required"))
	} else if info, err := os.Stat(c.Application.ProjectDir); err != nil {
		errs = append(errs, fmt.Errorf("application.project_dir: %w", err))
	} else if !info.IsDir() {
		errs = append(errs, fmt.Errorf("application.project_dir: %s is not a directory", c.Application.ProjectDir))
	}

	if c.Launch.ListenAddress == "" {
		errs = append(errs, errors.New("launch.listen_address is required"))
	}
	if err := validateDuration("launch.reply_timeout", c.Launch.ReplyTimeout); err != nil {
		errs = append(errs, err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if colorModes := console.ColorModes(); !slices.Contains(colorModes, c.Console.Color) {
		errs = append(errs, fmt.Errorf("console.color must be one of: %v", colorModes))
	}

	return errors.Join(errs...)
}

func validateDuration(field, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative, got %s", field, value)
	}
	return nil
}
