package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/InsiderPie/http-reload-proxy/internal/config"
	"github.com/InsiderPie/http-reload-proxy/internal/logging"
	"github.com/InsiderPie/http-reload-proxy/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the reload proxy",
	Long: `Start the reload proxy: the forwarding listener, the notification
endpoint, and the file watcher.

Examples:
  http-reload-proxy run
  http-reload-proxy run --upstream-host localhost --upstream-port 3000 \
      --proxy-port 8080 --notify-port 8090 --reload-delay-ms 100 --watch-root ./public`,
	RunE: runProxy,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("upstream-host", "", "Host of the upstream development server")
	runCmd.Flags().Int("upstream-port", 0, "Port of the upstream development server")
	runCmd.Flags().Int("proxy-port", 0, "Port the proxy listens on")
	runCmd.Flags().Int("notify-port", 0, "Port of the reload notification endpoint")
	runCmd.Flags().Int("reload-delay-ms", 0, "Browser-side delay before reloading, in milliseconds")
	runCmd.Flags().String("watch-root", "", "Directory tree watched for changes")
	runCmd.Flags().String("allowed-origin", "", "Access-Control-Allow-Origin value for the notification endpoint")
	runCmd.Flags().Int("max-retries", config.DefaultMaxRetries, "Additional attempts after a refused upstream connection")
	runCmd.Flags().Int("retry-delay-ms", config.DefaultRetryDelayMS, "Delay between upstream attempts, in milliseconds")

	viper.BindPFlag("upstream.host", runCmd.Flags().Lookup("upstream-host"))
	viper.BindPFlag("upstream.port", runCmd.Flags().Lookup("upstream-port"))
	viper.BindPFlag("proxy.port", runCmd.Flags().Lookup("proxy-port"))
	viper.BindPFlag("notify.port", runCmd.Flags().Lookup("notify-port"))
	viper.BindPFlag("reload.delay-ms", runCmd.Flags().Lookup("reload-delay-ms"))
	viper.BindPFlag("watch.root", runCmd.Flags().Lookup("watch-root"))
	viper.BindPFlag("notify.allowed-origin", runCmd.Flags().Lookup("allowed-origin"))
	viper.BindPFlag("proxy.max-retries", runCmd.Flags().Lookup("max-retries"))
	viper.BindPFlag("proxy.retry-delay-ms", runCmd.Flags().Lookup("retry-delay-ms"))
}

func runProxy(cmd *cobra.Command, args []string) error {
	// Configuration errors are the only fatal failures; they happen here,
	// before any listener binds.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	// Wait for a termination request, then run the shutdown contract:
	// closing notice, both listeners drained, close notice, exit 0.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	return srv.Shutdown(ctx)
}
