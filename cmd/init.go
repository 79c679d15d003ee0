package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/InsiderPie/http-reload-proxy/internal/config"
)

const defaultConfigFile = ".reloadproxy.yml"

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a starter .reloadproxy.yml into the current directory. Edit the
upstream, port, and watch settings to match your project, then start the
proxy with "http-reload-proxy run".`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if !initForce {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", defaultConfigFile)
		}
	}

	starter := config.Config{
		Upstream: config.UpstreamConfig{Host: "localhost", Port: 3000},
		Proxy: config.ProxyConfig{
			Port:         8080,
			MaxRetries:   config.DefaultMaxRetries,
			RetryDelayMS: config.DefaultRetryDelayMS,
		},
		Notify: config.NotifyConfig{Port: 8090, AllowedOrigin: "http://localhost:8080"},
		Reload: config.ReloadConfig{DelayMS: 100},
		Watch:  config.WatchConfig{Root: "./public"},
		Log:    config.LogConfig{Level: "info", Format: "text"},
	}

	out, err := yaml.Marshal(&starter)
	if err != nil {
		return err
	}

	header := []byte("# http-reload-proxy configuration.\n# Every setting can be overridden with RELOADPROXY_* environment variables.\n")
	if err := os.WriteFile(defaultConfigFile, append(header, out...), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", defaultConfigFile, err)
	}

	fmt.Printf("Wrote %s\n", defaultConfigFile)
	return nil
}
