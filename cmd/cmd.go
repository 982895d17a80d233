package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "caz-payments",
	Short: "Clean Air Zone payments",
	Long:  `Matches clean air zone charge payments to vehicle entries and reconciles them with the payment provider.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
		return cfg, nil
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("cleanup.dangling_after", "90m")
	v.SetDefault("cleanup.batch_size", 100)
	v.SetDefault("cleanup.concurrency", 4)
	v.SetDefault("cleanup.max_retries", 3)
	v.SetDefault("cleanup.retry_backoff", "500ms")
	v.SetDefault("events.channel", "caz-payments.events")
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	return &cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory containing config.yml")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(workerCmd)
}
