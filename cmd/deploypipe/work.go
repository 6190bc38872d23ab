package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"deploypipe/internal/broker"
	"deploypipe/internal/deploy"
	"deploypipe/internal/history"
	"deploypipe/internal/registry"
	"deploypipe/internal/worker"

	"github.com/spf13/cobra"
)

var (
	workConfigFile  string
	workLogFile     string
	workDBPath      string
	workBrokers     string
	workInputTopic  string
	workOutputTopic string
	workGroupID     string
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Start the deployment worker",
	Long: `Start the worker that consumes deployment events from Kafka.

Each event is processed sequentially: git pull in the repository checkout,
then docker compose up for its stack if one is configured. Every event
produces exactly one result event on the output topic. An interrupt stops
the loop after the in-flight deployment finishes.`,
	RunE: runWork,
}

func init() {
	workCmd.Flags().StringVarP(&workConfigFile, "config", "c", getEnvOrDefault("DEPLOYPIPE_CONFIG_FILE", ""), "Path to repos.yaml registry file")
	workCmd.Flags().StringVar(&workLogFile, "log", getEnvOrDefault("DEPLOYPIPE_LOG_FILE", "./deploypipe-worker.log"), "Path to log file")
	workCmd.Flags().StringVar(&workDBPath, "db", getEnvOrDefault("DEPLOYPIPE_DB_PATH", ""), "Path to SQLite history database")
	workCmd.Flags().StringVar(&workBrokers, "brokers", getEnvOrDefault("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"), "Comma-separated Kafka bootstrap servers")
	workCmd.Flags().StringVar(&workInputTopic, "input-topic", getEnvOrDefault("KAFKA_INPUT_TOPIC", "deployment-webhooks"), "Kafka topic to consume deployment events from")
	workCmd.Flags().StringVar(&workOutputTopic, "output-topic", getEnvOrDefault("KAFKA_OUTPUT_TOPIC", "deployment-results"), "Kafka topic to publish result events to")
	workCmd.Flags().StringVar(&workGroupID, "group", getEnvOrDefault("KAFKA_GROUP_ID", "deployment-worker"), "Kafka consumer group id")
}

func runWork(cmd *cobra.Command, args []string) error {
	configFile, err := findRegistryFile(workConfigFile)
	if err != nil {
		return err
	}

	logger, logFileHandle, err := setupLogging(workLogFile)
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
	if workDBPath != "" {
		hist, err = history.Open(workDBPath)
		if err != nil {
			logger.Error("failed to open history database", "error", err)
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer hist.Close()
	}

	brokers := strings.Split(workBrokers, ",")
	logger.Info("connecting to broker",
		"brokers", brokers,
		"input_topic", workInputTopic,
		"output_topic", workOutputTopic,
		"group", workGroupID)

	consumer := broker.NewConsumer(broker.Config{
		Brokers: brokers,
		Topic:   workInputTopic,
		GroupID: workGroupID,
	})
	defer consumer.Close()

	producer := broker.NewProducer(broker.Config{
		Brokers: brokers,
		Topic:   workOutputTopic,
	}, logger)
	defer producer.Close()

	w := &worker.Worker{
		Consumer: consumer,
		Producer: producer,
		Executor: deploy.NewExecutor(reg, logger),
		History:  hist,
		Logger:   logger,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil {
		logger.Error("worker failed", "error", err)
		return fmt.Errorf("worker failed: %w", err)
	}

	logger.Info("worker stopped, broker connections closing")
	return nil
}
