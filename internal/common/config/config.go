package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Integrations  IntegrationConfig  `mapstructure:"integrations"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// NotificationConfig holds the pipeline settings: dispatch pool, dedup
// window, retry backoff and the background sweep cadence.
type NotificationConfig struct {
	DispatchWorkers   int `mapstructure:"dispatch_workers"`
	QueueSize         int `mapstructure:"queue_size"`
	MaxRetries        int `mapstructure:"max_retries"`
	RetryBaseDelay    int `mapstructure:"retry_base_delay"`    // milliseconds
	RetryMaxDelay     int `mapstructure:"retry_max_delay"`     // milliseconds
	DedupWindow       int `mapstructure:"dedup_window"`        // milliseconds
	SweepInterval     int `mapstructure:"sweep_interval"`      // milliseconds
	SweepBatchSize    int `mapstructure:"sweep_batch_size"`
	SweepConcurrency  int `mapstructure:"sweep_concurrency"`
	StaleSendingAfter int `mapstructure:"stale_sending_after"` // milliseconds
	TemplateCacheTTL  int `mapstructure:"template_cache_ttl"`  // milliseconds
	DispatchTimeout   int `mapstructure:"dispatch_timeout"`    // milliseconds
}

// IntegrationConfig holds settings for the channel providers.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
			RateLimit int    `mapstructure:"rate_limit"` // sends per second
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
			RateLimit          int    `mapstructure:"rate_limit"` // publishes per second
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	Chat struct {
		Enabled    bool   `mapstructure:"enabled"`
		WebhookURL string `mapstructure:"webhook_url"`
		Timeout    int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"chat"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
