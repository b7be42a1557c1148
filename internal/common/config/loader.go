package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_POSTGRES_HOST
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, ignored when absent
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from several relative locations so the binary and
// the tests can run from different working directories.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	for _, p := range possiblePaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "notifyhub"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 20
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "notifications"
	}
	if cfg.Notifications.DispatchWorkers == 0 {
		cfg.Notifications.DispatchWorkers = 8
	}
	if cfg.Notifications.QueueSize == 0 {
		cfg.Notifications.QueueSize = 256
	}
	if cfg.Notifications.MaxRetries == 0 {
		cfg.Notifications.MaxRetries = 3
	}
	if cfg.Notifications.RetryBaseDelay == 0 {
		cfg.Notifications.RetryBaseDelay = 30000
	}
	if cfg.Notifications.RetryMaxDelay == 0 {
		cfg.Notifications.RetryMaxDelay = 900000
	}
	if cfg.Notifications.DedupWindow == 0 {
		cfg.Notifications.DedupWindow = 300000
	}
	if cfg.Notifications.SweepInterval == 0 {
		cfg.Notifications.SweepInterval = 15000
	}
	if cfg.Notifications.SweepBatchSize == 0 {
		cfg.Notifications.SweepBatchSize = 100
	}
	if cfg.Notifications.SweepConcurrency == 0 {
		cfg.Notifications.SweepConcurrency = 8
	}
	if cfg.Notifications.StaleSendingAfter == 0 {
		cfg.Notifications.StaleSendingAfter = 300000
	}
	if cfg.Notifications.TemplateCacheTTL == 0 {
		cfg.Notifications.TemplateCacheTTL = 60000
	}
	if cfg.Notifications.DispatchTimeout == 0 {
		cfg.Notifications.DispatchTimeout = 30000
	}
	if cfg.Integrations.AWS.Region == "" {
		cfg.Integrations.AWS.Region = "us-east-1"
	}
	if cfg.Integrations.AWS.SES.RateLimit == 0 {
		cfg.Integrations.AWS.SES.RateLimit = 10
	}
	if cfg.Integrations.AWS.SNS.RateLimit == 0 {
		cfg.Integrations.AWS.SNS.RateLimit = 10
	}
	if cfg.Integrations.Chat.Timeout == 0 {
		cfg.Integrations.Chat.Timeout = 5000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Notifications.MaxRetries < 0 {
		return fmt.Errorf("notifications.max_retries must not be negative")
	}
	if cfg.Integrations.Chat.Enabled && cfg.Integrations.Chat.WebhookURL == "" {
		return fmt.Errorf("integrations.chat.webhook_url is required when chat is enabled")
	}
	return nil
}
