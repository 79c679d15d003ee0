// Package cmd provides the command-line interface for the reload proxy with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--proxy-port, --upstream-host, etc.) - highest priority
//	2. Individual environment variables (RELOADPROXY_UPSTREAM_HOST, etc.)
//	3. Configuration file (.reloadproxy.yml) - lowest priority
//
// Environment Variables:
//
//	RELOADPROXY_CONFIG_FILE: Path to custom configuration file
//	RELOADPROXY_UPSTREAM_HOST: Host of the server being proxied
//	RELOADPROXY_UPSTREAM_PORT: Port of the server being proxied
//	RELOADPROXY_PROXY_PORT: Port the proxy listens on
//	RELOADPROXY_NOTIFY_PORT: Port of the reload notification endpoint
//	RELOADPROXY_RELOAD_DELAY_MS: Browser-side delay before reloading
//	RELOADPROXY_WATCH_ROOT: Directory tree watched for changes
//	And the optional settings following the RELOADPROXY_<SECTION>_<OPTION> pattern
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "http-reload-proxy",
	Short: "A development reverse proxy with live browser reload",
	Long: `http-reload-proxy sits in front of your development server, forwards every
request to it, and injects a small script into HTML responses that reloads
the page whenever a watched file changes.

Key Features:
  • Transparent request forwarding, credentials and headers included
  • Automatic retry while the upstream server is still starting up
  • Live-reload script injection with CSP-safe hash sources
  • Server-Sent-Events notification endpoint (WebSocket variant on /ws)
  • Recursive file watching with change debouncing

Quick Start:
  http-reload-proxy init          Write a starter configuration file
  http-reload-proxy run           Start the proxy
  http-reload-proxy version       Show version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .reloadproxy.yml, can also use RELOADPROXY_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig initializes the configuration system.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. RELOADPROXY_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .reloadproxy.yml in current directory
//
// All settings may also be supplied via environment variables with the
// RELOADPROXY_ prefix, e.g. RELOADPROXY_PROXY_PORT=8080.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("RELOADPROXY_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".reloadproxy")
	}

	viper.SetEnvPrefix("RELOADPROXY")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// A missing config file is fine: everything can come from environment
	// variables and flags. Required settings are validated at load time.
	viper.ReadInConfig()
}
