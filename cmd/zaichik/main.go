package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raventid/zaichik/pkg/config"
	"github.com/raventid/zaichik/pkg/log"
	"github.com/raventid/zaichik/pkg/metrics"
	"github.com/raventid/zaichik/pkg/registry"
	"github.com/raventid/zaichik/pkg/server"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zaichik",
	Short: "Zaichik - Minimal in-memory pub/sub message broker",
	Long: `Zaichik is a minimal in-memory publish/subscribe message broker
speaking a length-prefixed binary protocol over TCP.

Topics support time-based retention for late subscribers, key-based
compaction within a sliding window, and per-frame commit acknowledgement
for slow-consumer backpressure. All state is in memory and lost on
restart.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Zaichik version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	// Initialize logging before command execution
	cobra.OnInitialize(initLogging)

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(topicCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(subscribeCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Zaichik broker",
	Long: `Run the Zaichik broker.

The listen port comes from --port, the PORT environment variable, or the
config file, in that order of precedence. Topics and messages live in
process memory only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
		}
		if cmd.Flags().Changed("buffer-capacity") {
			cfg.BufferCapacity, _ = cmd.Flags().GetInt("buffer-capacity")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// Flags win over the config file for log settings only when set.
		levelSet := cmd.Flags().Changed("log-level")
		jsonSet := cmd.Flags().Changed("log-json")
		if !levelSet || !jsonSet {
			logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
			if !levelSet && cfg.LogLevel != "" {
				logLevel = cfg.LogLevel
			}
			logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
			if !jsonSet {
				logJSON = cfg.LogJSON
			}
			log.Init(log.Config{
				Level:      log.Level(logLevel),
				JSONOutput: logJSON,
			})
		}

		metrics.SetVersion(Version)

		reg := registry.New(cfg.BufferCapacity)

		collector := metrics.NewCollector(reg)
		collector.Start()
		defer collector.Stop()

		if cfg.MetricsAddr != "" {
			go func() {
				if err := metrics.Serve(cfg.MetricsAddr); err != nil {
					log.Errorf("metrics server failed", err)
				}
			}()
			log.Logger.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics server starting")
		}

		srv := server.NewServer(reg)
		if err := srv.Listen(cfg.Addr()); err != nil {
			return err
		}

		// Graceful shutdown on SIGINT/SIGTERM
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			log.Logger.Info().Str("signal", sig.String()).Msg("Shutting down")
			srv.Stop()
		}()

		return srv.Serve()
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML config file")
	serveCmd.Flags().Int("port", config.DefaultPort, "TCP port to listen on")
	serveCmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "Metrics/health HTTP address (empty to disable)")
	serveCmd.Flags().Int("buffer-capacity", config.DefaultBufferCapacity, "Per-topic broadcast buffer capacity")
}
