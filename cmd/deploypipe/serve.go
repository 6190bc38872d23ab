package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"deploypipe/internal/broker"
	"deploypipe/internal/history"
	"deploypipe/internal/registry"
	"deploypipe/internal/server"
	"deploypipe/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	serveConfigFile string
	serveLogFile    string
	serveDBPath     string
	serveHost       string
	servePort       int
	serveSecret     string
	serveBrokers    string
	serveTopic      string
	serveTestMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook receiver",
	Long: `Start the HTTP server that receives GitHub webhook deliveries.

Verified push events to main/master are normalized into deployment events
and published to the Kafka input topic, keyed by repository name.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigFile, "config", "c", getEnvOrDefault("DEPLOYPIPE_CONFIG_FILE", ""), "Path to repos.yaml registry file")
	serveCmd.Flags().StringVar(&serveLogFile, "log", getEnvOrDefault("DEPLOYPIPE_LOG_FILE", "./deploypipe.log"), "Path to log file")
	serveCmd.Flags().StringVar(&serveDBPath, "db", getEnvOrDefault("DEPLOYPIPE_DB_PATH", ""), "Path to SQLite history database (enables /status)")
	serveCmd.Flags().StringVar(&serveHost, "host", getEnvOrDefault("DEPLOYPIPE_HOST", "0.0.0.0"), "Host to bind to")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", getEnvOrDefaultInt("DEPLOYPIPE_PORT", 8000), "Port to listen on")
	serveCmd.Flags().StringVar(&serveSecret, "secret", getEnvOrDefault("GITHUB_WEBHOOK_SECRET", ""), "Shared webhook secret")
	serveCmd.Flags().StringVar(&serveBrokers, "brokers", getEnvOrDefault("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"), "Comma-separated Kafka bootstrap servers")
	serveCmd.Flags().StringVar(&serveTopic, "topic", getEnvOrDefault("KAFKA_TOPIC", "deployment-webhooks"), "Kafka input topic")
	serveCmd.Flags().BoolVar(&serveTestMode, "test-mode", false, "Disable rate limiting and broker health checks")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveSecret == "" {
		return fmt.Errorf("webhook secret is required (--secret or GITHUB_WEBHOOK_SECRET)")
	}

	configFile, err := findRegistryFile(serveConfigFile)
	if err != nil {
		return err
	}

	logger, logFileHandle, err := setupLogging(serveLogFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("loading registry", "config", configFile)
	reg, err := registry.Load(configFile)
	if err != nil {
		logger.Error("failed to load registry", "error", err)
		return fmt.Errorf("failed to load registry: %w", err)
	}
	logger.Info("registry loaded", "repositories", reg.Count())

	var hist *history.History
	if serveDBPath != "" {
		hist, err = history.Open(serveDBPath)
		if err != nil {
			logger.Error("failed to open history database", "error", err)
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer hist.Close()
	}

	brokerCfg := broker.Config{
		Brokers: strings.Split(serveBrokers, ","),
		Topic:   serveTopic,
	}

	srv := server.NewServer(reg, hist, serveSecret, brokerCfg, func() broker.Publisher {
		return broker.NewProducer(brokerCfg, logger)
	}, logger, serveTestMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx, serveHost, servePort); err != nil {
		logger.Error("server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// findRegistryFile resolves the registry path, searching default
// locations when no flag or environment override is given.
func findRegistryFile(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	searchPaths := fileutil.DefaultConfigPaths("repos.yaml")
	found := fileutil.SearchPathsOptional(searchPaths)
	if found == "" {
		fmt.Fprintf(os.Stderr, "Error: No registry file found in default locations:\n")
		for _, path := range searchPaths {
			fmt.Fprintf(os.Stderr, "  - %s\n", path)
		}
		fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
		return "", fmt.Errorf("registry file not found")
	}
	return found, nil
}
