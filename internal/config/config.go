// Package config provides configuration management for the reload proxy
// using Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the RELOADPROXY_ prefix. All settings that select the
// upstream, the two listening ports, and the watch root are required;
// missing or malformed values are fatal before any listener binds.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"

	"github.com/InsiderPie/http-reload-proxy/internal/errs"
)

// Defaults for the optional settings.
const (
	DefaultMaxRetries   = 5
	DefaultRetryDelayMS = 200
)

type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Notify   NotifyConfig   `yaml:"notify"`
	Reload   ReloadConfig   `yaml:"reload"`
	Watch    WatchConfig    `yaml:"watch"`
	Log      LogConfig      `yaml:"log"`
}

// UpstreamConfig selects the server the proxy forwards to.
type UpstreamConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProxyConfig configures the forwarding listener and its retry policy.
type ProxyConfig struct {
	Port         int `yaml:"port"`
	MaxRetries   int `yaml:"max-retries"`
	RetryDelayMS int `yaml:"retry-delay-ms"`
}

// NotifyConfig configures the notification (event stream) listener.
type NotifyConfig struct {
	Port          int    `yaml:"port"`
	AllowedOrigin string `yaml:"allowed-origin"`
}

// ReloadConfig configures the browser-side reload behavior baked into the
// injected script.
type ReloadConfig struct {
	DelayMS int `yaml:"delay-ms"`
}

// WatchConfig selects the directory tree observed for changes.
type WatchConfig struct {
	Root string `yaml:"root"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration from viper (already primed by the CLI with
// file, env, and flag sources), applies defaults, and validates it.
func Load() (*Config, error) {
	var config Config

	// Required string settings.
	config.Upstream.Host = viper.GetString("upstream.host")
	config.Watch.Root = viper.GetString("watch.root")

	// Numeric settings are read as strings so a non-integer value fails
	// loudly instead of silently becoming zero.
	var err error
	if config.Upstream.Port, err = requiredInt("upstream.port"); err != nil {
		return nil, err
	}
	if config.Proxy.Port, err = requiredInt("proxy.port"); err != nil {
		return nil, err
	}
	if config.Notify.Port, err = requiredInt("notify.port"); err != nil {
		return nil, err
	}
	if config.Reload.DelayMS, err = requiredInt("reload.delay-ms"); err != nil {
		return nil, err
	}

	// Optional settings with defaults.
	if config.Proxy.MaxRetries, err = optionalInt("proxy.max-retries", DefaultMaxRetries); err != nil {
		return nil, err
	}
	if config.Proxy.RetryDelayMS, err = optionalInt("proxy.retry-delay-ms", DefaultRetryDelayMS); err != nil {
		return nil, err
	}
	config.Notify.AllowedOrigin = viper.GetString("notify.allowed-origin")
	if config.Notify.AllowedOrigin == "" {
		config.Notify.AllowedOrigin = fmt.Sprintf("http://localhost:%d", config.Proxy.Port)
	}
	config.Log.Level = viper.GetString("log.level")
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	config.Log.Format = viper.GetString("log.format")
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// requiredInt reads a required numeric setting, distinguishing "missing"
// from "not an integer".
func requiredInt(key string) (int, error) {
	if !viper.IsSet(key) {
		return 0, errs.NewConfigError(key, "required setting is missing")
	}
	raw := viper.GetString(key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.NewConfigError(key, fmt.Sprintf("%q is not an integer", raw))
	}
	return n, nil
}

// optionalInt reads an optional numeric setting, falling back to def.
func optionalInt(key string, def int) (int, error) {
	if !viper.IsSet(key) {
		return def, nil
	}
	raw := viper.GetString(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.NewConfigError(key, fmt.Sprintf("%q is not an integer", raw))
	}
	return n, nil
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if config.Upstream.Host == "" {
		return errs.NewConfigError("upstream.host", "required setting is missing")
	}
	if err := validatePort("upstream.port", config.Upstream.Port); err != nil {
		return err
	}
	if err := validatePort("proxy.port", config.Proxy.Port); err != nil {
		return err
	}
	if err := validatePort("notify.port", config.Notify.Port); err != nil {
		return err
	}
	if config.Reload.DelayMS < 0 {
		return errs.NewConfigError("reload.delay-ms", fmt.Sprintf("%d is negative", config.Reload.DelayMS))
	}
	if config.Proxy.MaxRetries < 0 {
		return errs.NewConfigError("proxy.max-retries", fmt.Sprintf("%d is negative", config.Proxy.MaxRetries))
	}
	if config.Proxy.RetryDelayMS < 0 {
		return errs.NewConfigError("proxy.retry-delay-ms", fmt.Sprintf("%d is negative", config.Proxy.RetryDelayMS))
	}

	if config.Watch.Root == "" {
		return errs.NewConfigError("watch.root", "required setting is missing")
	}
	info, err := os.Stat(config.Watch.Root)
	if err != nil {
		return errs.NewConfigError("watch.root", fmt.Sprintf("%q does not exist", config.Watch.Root))
	}
	if !info.IsDir() {
		return errs.NewConfigError("watch.root", fmt.Sprintf("%q is not a directory", config.Watch.Root))
	}

	return nil
}

// validatePort validates a listening or upstream port value
func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return errs.NewConfigError(key, fmt.Sprintf("port %d is not in valid range 1-65535", port))
	}
	return nil
}
